package tui

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kestreldev/kestrel/internal/api"
	"github.com/kestreldev/kestrel/internal/core/entity"
	"github.com/kestreldev/kestrel/internal/core/eventbus"
	"github.com/kestreldev/kestrel/internal/core/scheduler"
)

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	// Any key leaves the help screen.
	if m.view == ViewHelp {
		m.view = m.prevView
		return m, nil
	}

	// Inline prompts capture everything until resolved.
	if m.mode != inputNone {
		return m.handleInputKey(msg)
	}

	switch m.view {
	case ViewSearch:
		return m.handleSearchKey(msg)
	case ViewDetail:
		return m.handleDetailKey(msg)
	default:
		return m.handleListKey(msg)
	}
}

func (m *Model) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.prevView = m.view
		m.view = ViewHelp

	case key.Matches(msg, m.keys.Up):
		m.moveCursor(-1)

	case key.Matches(msg, m.keys.Down):
		m.moveCursor(1)

	case key.Matches(msg, m.keys.Select):
		return m, m.openDetail()

	case key.Matches(msg, m.keys.Complete):
		m.toggleComplete(m.cursorTask())

	case key.Matches(msg, m.keys.Search):
		return m, m.openSearch()

	case key.Matches(msg, m.keys.Refresh):
		m.sched.Refresh(m.taskScope(), scheduler.Foreground)

	case key.Matches(msg, m.keys.ShowCompleted):
		m.showCompleted = !m.showCompleted
		m.reloadTasks()
		m.sched.Refresh(m.taskScope(), scheduler.Background)
	}
	return m, nil
}

func (m *Model) handleDetailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.prevView = m.view
		m.view = ViewHelp

	case key.Matches(msg, m.keys.Back):
		m.closeDetail()

	case key.Matches(msg, m.keys.Complete):
		m.toggleComplete(m.selected)

	case key.Matches(msg, m.keys.Comment):
		m.startInput(inputComment, "Write a comment...")

	case key.Matches(msg, m.keys.DueDate):
		m.startInput(inputDue, `Due date ("tomorrow", "next friday", empty clears)`)

	case key.Matches(msg, m.keys.Refresh):
		if m.selected != nil {
			m.sched.Refresh(api.Scope{Kind: entity.KindTask, GID: m.selected.Gid}, scheduler.Foreground)
			m.sched.Refresh(commentScope(m.selected.Gid), scheduler.Foreground)
		}

	default:
		var cmd tea.Cmd
		m.detailVP, cmd = m.detailVP.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.view = ViewTasks
		m.searchInput.Blur()
		return m, nil

	case "up", "ctrl+p":
		if m.searchCursor > 0 {
			m.searchCursor--
		}
		return m, nil

	case "down", "ctrl+n":
		if m.searchCursor < len(m.results)-1 {
			m.searchCursor++
		}
		return m, nil

	case "enter":
		if m.searchCursor < len(m.results) {
			r := m.results[m.searchCursor]
			if entry, ok := m.store.Get(r.Kind, r.GID); ok {
				if t, isTask := entry.Entity.(*entity.Task); isTask {
					m.selected = t
					m.searchInput.Blur()
					return m, m.openSelected()
				}
			}
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	m.runQuery()
	return m, cmd
}

func (m *Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = inputNone
		m.textInput.Blur()
		return m, nil

	case "enter":
		mode := m.mode
		value := m.textInput.Value()
		m.mode = inputNone
		m.textInput.Blur()
		m.submitInput(mode, value)
		return m, nil
	}

	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m *Model) submitInput(mode inputMode, value string) {
	if m.selected == nil {
		return
	}
	switch mode {
	case inputComment:
		if value != "" {
			m.sched.SubmitComment(m.selected.Gid, value)
		}
	case inputDue:
		due, err := parseDueDate(value, m.now())
		if err != nil {
			m.showToast(eventbus.LevelWarning, err.Error())
			return
		}
		m.sched.SubmitUpdate(m.selected.Gid, entity.TaskUpdate{DueOn: &due})
	}
}

func (m *Model) startInput(mode inputMode, placeholder string) {
	if m.selected == nil {
		return
	}
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = 500
	ti.Width = max(m.width-8, 20)
	ti.Focus()
	m.textInput = ti
	m.mode = mode
}

func (m *Model) moveCursor(delta int) {
	m.cursor += delta
	if m.cursor < 0 {
		m.cursor = 0
	}
	if m.cursor >= len(m.tasks) {
		m.cursor = len(m.tasks) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *Model) cursorTask() *entity.Task {
	if m.cursor < 0 || m.cursor >= len(m.tasks) {
		return nil
	}
	return m.tasks[m.cursor]
}

// toggleComplete flips completion through the scheduler. The store
// shows the optimistic flip immediately.
func (m *Model) toggleComplete(t *entity.Task) {
	if t == nil {
		return
	}
	next := !t.Completed
	m.sched.SubmitUpdate(t.Gid, entity.TaskUpdate{Completed: &next})
}

// openDetail selects the task under the cursor and schedules the
// refreshes the detail pane depends on.
func (m *Model) openDetail() tea.Cmd {
	t := m.cursorTask()
	if t == nil {
		return nil
	}
	m.selected = t
	return m.openSelected()
}

func (m *Model) openSelected() tea.Cmd {
	m.prevView = ViewTasks
	m.view = ViewDetail
	m.resizeDetailViewport()
	m.reloadComments()

	if _, _, needsRefresh := m.store.GetOrMarkStale(entity.KindTask, m.selected.Gid); needsRefresh {
		m.sched.Refresh(api.Scope{Kind: entity.KindTask, GID: m.selected.Gid}, scheduler.Foreground)
	}
	m.sched.Refresh(commentScope(m.selected.Gid), scheduler.Foreground)
	return nil
}

// closeDetail leaves the detail view and abandons its in-flight
// fetches; their results are no longer wanted.
func (m *Model) closeDetail() {
	if m.selected != nil {
		m.sched.Cancel(commentScope(m.selected.Gid))
		m.sched.Cancel(api.Scope{Kind: entity.KindTask, GID: m.selected.Gid})
	}
	m.selected = nil
	m.comments = nil
	m.view = ViewTasks
}

func (m *Model) openSearch() tea.Cmd {
	m.prevView = m.view
	m.view = ViewSearch
	m.searchCursor = 0
	m.searchInput.SetValue("")
	m.runQuery()
	return m.searchInput.Focus()
}

func (m *Model) runQuery() {
	m.results = m.results[:0]
	for r := range m.index.Query(m.searchInput.Value(), entity.KindTask) {
		m.results = append(m.results, r)
		if len(m.results) >= 50 {
			break
		}
	}
	if m.searchCursor >= len(m.results) {
		m.searchCursor = 0
	}
}
