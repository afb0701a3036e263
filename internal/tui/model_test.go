package tui

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestreldev/kestrel/internal/api"
	"github.com/kestreldev/kestrel/internal/core/entity"
	"github.com/kestreldev/kestrel/internal/core/scheduler"
	"github.com/kestreldev/kestrel/internal/core/search"
	"github.com/kestreldev/kestrel/internal/core/store"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type stubClient struct{}

func (stubClient) Fetch(context.Context, api.Scope, string) (api.Page, error) {
	return api.Page{}, nil
}

func (stubClient) UpdateTask(_ context.Context, gid string, update entity.TaskUpdate) (*entity.Task, error) {
	t := &entity.Task{Gid: gid, ModifiedAt: testNow}
	return update.ApplyTo(t), nil
}

func (stubClient) CreateComment(_ context.Context, taskGID, text string) (*entity.Comment, error) {
	return &entity.Comment{Gid: "c1", TaskGID: taskGID, Text: text, CreatedAt: testNow}, nil
}

func newTestModel(t *testing.T) *Model {
	t.Helper()

	st := store.New(store.Options{MaxEntries: 100, Now: func() time.Time { return testNow }})
	sched := scheduler.New(scheduler.Options{
		Client: stubClient{},
		Store:  st,
		Now:    func() time.Time { return testNow },
	})
	m := New(Options{
		Store:        st,
		Scheduler:    sched,
		Index:        search.New(),
		WorkspaceGID: "w1",
		UserGID:      "me",
		Now:          func() time.Time { return testNow },
	})
	t.Cleanup(m.Close)

	m.width, m.height = 80, 24
	return m
}

func putTask(m *Model, gid, name string, due *time.Time) {
	task := &entity.Task{
		Gid: gid, Name: name, DueAt: due,
		WorkspaceGID: "w1", AssigneeGID: "me", ModifiedAt: testNow,
	}
	m.store.Put(task, testNow)
	m.index.Upsert(task)
}

func keyPress(m *Model, s string) {
	var msg tea.KeyMsg
	switch s {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
	m.Update(msg)
}

func TestReloadTasksSortsByDueDate(t *testing.T) {
	m := newTestModel(t)

	soon := testNow.Add(24 * time.Hour)
	later := testNow.Add(96 * time.Hour)
	putTask(m, "undated", "no due", nil)
	putTask(m, "later", "later task", &later)
	putTask(m, "soon", "soon task", &soon)

	m.reloadTasks()

	require.Len(t, m.tasks, 3)
	assert.Equal(t, "soon", m.tasks[0].Gid)
	assert.Equal(t, "later", m.tasks[1].Gid)
	assert.Equal(t, "undated", m.tasks[2].Gid)
}

func TestReloadTasksHidesCompletedByDefault(t *testing.T) {
	m := newTestModel(t)
	putTask(m, "open", "open task", nil)
	m.store.Put(&entity.Task{
		Gid: "done", Name: "done task", Completed: true,
		WorkspaceGID: "w1", ModifiedAt: testNow,
	}, testNow)

	m.reloadTasks()
	require.Len(t, m.tasks, 1)
	assert.Equal(t, "open", m.tasks[0].Gid)

	m.showCompleted = true
	m.reloadTasks()
	assert.Len(t, m.tasks, 2)
}

func TestCursorSurvivesRefresh(t *testing.T) {
	m := newTestModel(t)
	putTask(m, "a", "alpha", nil)
	putTask(m, "b", "beta", nil)
	putTask(m, "c", "gamma", nil)
	m.reloadTasks()

	keyPress(m, "j")
	keyPress(m, "j")
	onGID := m.tasks[m.cursor].Gid

	// A refresh lands and reorders the list.
	newer := testNow.Add(time.Hour)
	m.store.Put(&entity.Task{
		Gid: "a", Name: "alpha", WorkspaceGID: "w1",
		AssigneeGID: "me", ModifiedAt: newer,
	}, testNow)
	m.reloadTasks()

	assert.Equal(t, onGID, m.tasks[m.cursor].Gid, "cursor follows the task, not the index")
}

func TestCursorClamping(t *testing.T) {
	m := newTestModel(t)
	putTask(m, "only", "only task", nil)
	m.reloadTasks()

	keyPress(m, "k")
	assert.Equal(t, 0, m.cursor)
	keyPress(m, "j")
	keyPress(m, "j")
	assert.Equal(t, 0, m.cursor)
}

func TestToggleCompleteIsOptimistic(t *testing.T) {
	m := newTestModel(t)
	putTask(m, "t1", "the task", nil)
	m.reloadTasks()

	keyPress(m, "c")

	// The optimistic flip is visible without waiting for the network.
	entry, ok := m.store.Get(entity.KindTask, "t1")
	require.True(t, ok)
	assert.True(t, entry.Entity.(*entity.Task).Completed)

	require.Eventually(t, func() bool { return !m.store.HasPendingEdit("t1") },
		2*time.Second, 5*time.Millisecond)
}

func TestEnterOpensDetailAndEscReturns(t *testing.T) {
	m := newTestModel(t)
	putTask(m, "t1", "the task", nil)
	m.reloadTasks()

	keyPress(m, "enter")
	assert.Equal(t, ViewDetail, m.view)
	require.NotNil(t, m.selected)
	assert.Equal(t, "t1", m.selected.Gid)

	keyPress(m, "esc")
	assert.Equal(t, ViewTasks, m.view)
	assert.Nil(t, m.selected)
}

func TestSearchFiltersAndOpensResult(t *testing.T) {
	m := newTestModel(t)
	putTask(m, "t1", "deploy website", nil)
	putTask(m, "t2", "write report", nil)
	m.reloadTasks()

	keyPress(m, "/")
	assert.Equal(t, ViewSearch, m.view)
	assert.Len(t, m.results, 2, "empty query lists everything")

	for _, r := range "deploy" {
		keyPress(m, string(r))
	}
	require.Len(t, m.results, 1)
	assert.Equal(t, "t1", m.results[0].GID)

	keyPress(m, "enter")
	assert.Equal(t, ViewDetail, m.view)
	assert.Equal(t, "t1", m.selected.Gid)
}

func TestStoreEventReloadsList(t *testing.T) {
	m := newTestModel(t)
	putTask(m, "t1", "first", nil)

	m.Update(storeEventMsg{ev: store.Event{
		Type: store.EventUpdated, Kind: entity.KindTask, GID: "t1",
	}})

	require.Len(t, m.tasks, 1)
	assert.Equal(t, "t1", m.tasks[0].Gid)
}

func TestViewRendersWithoutPanic(t *testing.T) {
	m := newTestModel(t)
	due := testNow.Add(-24 * time.Hour)
	putTask(m, "t1", "overdue thing", &due)
	m.reloadTasks()

	out := m.View()
	assert.Contains(t, out, "overdue thing")

	keyPress(m, "enter")
	assert.NotEmpty(t, m.View())

	keyPress(m, "esc")
	keyPress(m, "?")
	assert.Equal(t, ViewHelp, m.view)
	assert.NotEmpty(t, m.View())
}
