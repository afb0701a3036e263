// Package tui is the interactive terminal frontend. It renders only
// from the entity store and turns key presses into scheduler work; no
// network call ever happens on the render path.
package tui

import (
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/kestreldev/kestrel/internal/api"
	"github.com/kestreldev/kestrel/internal/core/entity"
	"github.com/kestreldev/kestrel/internal/core/eventbus"
	"github.com/kestreldev/kestrel/internal/core/logging"
	"github.com/kestreldev/kestrel/internal/core/richtext"
	"github.com/kestreldev/kestrel/internal/core/scheduler"
	"github.com/kestreldev/kestrel/internal/core/search"
	"github.com/kestreldev/kestrel/internal/core/store"
	"github.com/kestreldev/kestrel/pkg/kv"
)

// View identifies the active screen.
type View int

const (
	ViewTasks View = iota
	ViewDetail
	ViewSearch
	ViewHelp
)

// inputMode tracks which inline text prompt is active, if any.
type inputMode int

const (
	inputNone inputMode = iota
	inputComment
	inputDue
)

// Options wires the model to the engine.
type Options struct {
	Store     *store.Store
	Scheduler *scheduler.Scheduler
	Index     *search.Index
	Bus       *eventbus.EventBus

	WorkspaceGID  string
	WorkspaceName string
	UserGID       string

	// Now injects a clock for tests.
	Now func() time.Time
}

// Model is the root Bubble Tea model.
type Model struct {
	store *store.Store
	sched *scheduler.Scheduler
	index *search.Index
	bus   *eventbus.EventBus
	now   func() time.Time
	log   zerolog.Logger

	workspaceGID  string
	workspaceName string
	userGID       string

	view     View
	prevView View
	width    int
	height   int

	tasks         []*entity.Task
	cursor        int
	showCompleted bool

	selected    *entity.Task
	comments    []*entity.Comment
	detailVP    viewport.Model
	detailReady bool

	searchInput  textinput.Model
	results      []search.Result
	searchCursor int

	mode      inputMode
	textInput textinput.Model

	spinner spinner.Model
	syncing map[uint64]struct{}

	help help.Model
	keys keyMap

	buffer *NotificationBuffer
	toasts []toast
	bridge chan tea.Msg
	sub    *store.Subscription

	renderer    *richtext.Renderer
	renderCache *kv.Store[string, string]
}

// New creates the root model and wires it to the bus and store.
func New(opts Options) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styleSelected

	searchInput := textinput.New()
	searchInput.Placeholder = "Search tasks..."
	searchInput.CharLimit = 120

	m := &Model{
		store:         opts.Store,
		sched:         opts.Scheduler,
		index:         opts.Index,
		bus:           opts.Bus,
		now:           opts.Now,
		log:           logging.Component("tui"),
		workspaceGID:  opts.WorkspaceGID,
		workspaceName: opts.WorkspaceName,
		userGID:       opts.UserGID,
		searchInput:   searchInput,
		spinner:       s,
		syncing:       make(map[uint64]struct{}),
		help:          help.New(),
		keys:          defaultKeyMap(),
		buffer:        NewNotificationBuffer(),
		bridge:        make(chan tea.Msg, 64),
		renderCache:   kv.New[string, string](),
	}
	if m.now == nil {
		m.now = time.Now
	}

	m.sub = opts.Store.Subscribe(store.Filter{})

	if opts.Bus != nil {
		opts.Bus.SubscribeNotificationPublished(func(p eventbus.NotificationPublishedPayload) {
			m.buffer.Push(p.Notification)
		})
		opts.Bus.SubscribeJobStatusChanged(func(p eventbus.JobStatusChangedPayload) {
			m.pushBridge(jobStatusMsg(p))
		})
		opts.Bus.SubscribeAuthExpired(func(eventbus.AuthExpiredPayload) {
			m.pushBridge(authExpiredMsg{})
		})
	}
	return m
}

func (m *Model) pushBridge(msg tea.Msg) {
	select {
	case m.bridge <- msg:
	default:
		m.log.Warn().Msg("bridge channel full, dropping message")
	}
}

func (m *Model) taskScope() api.Scope {
	return api.Scope{
		Kind:             entity.KindTask,
		WorkspaceGID:     m.workspaceGID,
		AssigneeGID:      m.userGID,
		IncludeCompleted: m.showCompleted,
	}
}

func commentScope(taskGID string) api.Scope {
	return api.Scope{Kind: entity.KindComment, TaskGID: taskGID}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	m.sched.Refresh(m.taskScope(), scheduler.Foreground)
	return tea.Batch(
		m.spinner.Tick,
		waitForStoreEvent(m.sub),
		m.buffer.WaitForSignal(),
		waitForBridgeMsg(m.bridge),
	)
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		if r, err := richtext.NewRenderer(max(msg.Width-6, 20)); err == nil {
			m.renderer = r
		}
		m.renderCache.Clear()
		m.resizeDetailViewport()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case storeEventMsg:
		m.applyStoreEvent(msg.ev)
		return m, waitForStoreEvent(m.sub)

	case drainNotificationsMsg:
		expires := m.now().Add(toastLifetime)
		for _, n := range m.buffer.Drain() {
			m.toasts = append(m.toasts, toast{notification: n, expiresAt: expires})
		}
		return m, tea.Batch(m.buffer.WaitForSignal(), expireToasts())

	case toastExpiredMsg:
		m.pruneToasts()
		if len(m.toasts) > 0 {
			return m, expireToasts()
		}
		return m, nil

	case jobStatusMsg:
		m.applyJobStatus(eventbus.JobStatusChangedPayload(msg))
		return m, waitForBridgeMsg(m.bridge)

	case authExpiredMsg:
		m.showToast(eventbus.LevelError, "session expired: run `kestrel auth` with a fresh token")
		return m, tea.Batch(waitForBridgeMsg(m.bridge), expireToasts())
	}

	return m, nil
}

func (m *Model) applyStoreEvent(ev store.Event) {
	switch ev.Kind {
	case entity.KindTask:
		m.reloadTasks()
		if m.selected != nil && ev.GID == m.selected.Gid {
			if entry, ok := m.store.Get(entity.KindTask, ev.GID); ok {
				m.selected = entry.Entity.(*entity.Task)
				m.detailReady = false
			}
		}
	case entity.KindComment:
		if m.selected != nil && ev.Parent == m.selected.Gid {
			m.reloadComments()
		}
	}
}

func (m *Model) applyJobStatus(p eventbus.JobStatusChangedPayload) {
	switch scheduler.State(p.State) {
	case scheduler.StateQueued, scheduler.StateInFlight:
		m.syncing[p.JobID] = struct{}{}
	default:
		delete(m.syncing, p.JobID)
	}
	if scheduler.State(p.State) == scheduler.StateFailed && p.Err != nil &&
		p.Class != string(api.ClassUnauthorized) {
		m.showToast(eventbus.LevelWarning, "sync failed: "+p.Err.Error())
	}
}

func (m *Model) showToast(level eventbus.Level, message string) {
	m.toasts = append(m.toasts, toast{
		notification: eventbus.Notification{Level: level, Message: message},
		expiresAt:    m.now().Add(toastLifetime),
	})
}

func (m *Model) pruneToasts() {
	now := m.now()
	kept := m.toasts[:0]
	for _, t := range m.toasts {
		if t.expiresAt.After(now) {
			kept = append(kept, t)
		}
	}
	m.toasts = kept
}

// reloadTasks rebuilds the visible list from the store, keeping the
// cursor on the same task across refreshes when possible.
func (m *Model) reloadTasks() {
	var keepGID string
	if m.cursor >= 0 && m.cursor < len(m.tasks) {
		keepGID = m.tasks[m.cursor].Gid
	}

	m.tasks = m.tasks[:0]
	for _, e := range m.store.List(entity.KindTask, "") {
		t, ok := e.(*entity.Task)
		if !ok {
			continue
		}
		if !m.showCompleted && t.Completed {
			continue
		}
		m.tasks = append(m.tasks, t)
	}
	m.sortTasks()

	m.cursor = 0
	for i, t := range m.tasks {
		if t.Gid == keepGID {
			m.cursor = i
			break
		}
	}
}

// sortTasks orders by due date (earliest first, undated last), then by
// last modification.
func (m *Model) sortTasks() {
	sort.SliceStable(m.tasks, func(i, j int) bool {
		return taskLess(m.tasks[i], m.tasks[j])
	})
}

func taskLess(a, b *entity.Task) bool {
	switch {
	case a.DueAt != nil && b.DueAt == nil:
		return true
	case a.DueAt == nil && b.DueAt != nil:
		return false
	case a.DueAt != nil && b.DueAt != nil && !a.DueAt.Equal(*b.DueAt):
		return a.DueAt.Before(*b.DueAt)
	}
	return a.ModifiedAt.After(b.ModifiedAt)
}

// reloadComments pulls the selected task's comments from the store in
// chronological order.
func (m *Model) reloadComments() {
	if m.selected == nil {
		return
	}
	list := m.store.List(entity.KindComment, m.selected.Gid)
	m.comments = m.comments[:0]
	// List is newest-first; comments read top-down.
	for i := len(list) - 1; i >= 0; i-- {
		if c, ok := list[i].(*entity.Comment); ok {
			m.comments = append(m.comments, c)
		}
	}
	m.detailReady = false
}

func (m *Model) resizeDetailViewport() {
	vpHeight := max(m.height-8, 5)
	vpWidth := max(m.width-4, 20)
	if !m.detailReady && m.detailVP.Width == 0 {
		m.detailVP = viewport.New(vpWidth, vpHeight)
	} else {
		m.detailVP.Width = vpWidth
		m.detailVP.Height = vpHeight
	}
	m.detailReady = false
}

// Close releases the model's store subscription.
func (m *Model) Close() {
	m.sub.Close()
}
