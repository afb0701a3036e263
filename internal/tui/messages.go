package tui

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kestreldev/kestrel/internal/core/eventbus"
	"github.com/kestreldev/kestrel/internal/core/store"
)

// Messages bridged in from outside the render loop.
type (
	storeEventMsg         struct{ ev store.Event }
	drainNotificationsMsg struct{}
	jobStatusMsg          eventbus.JobStatusChangedPayload
	authExpiredMsg        struct{}
	toastExpiredMsg       struct{}
)

// waitForStoreEvent blocks on the store subscription and turns the
// next event into a message. Re-armed after every delivery.
func waitForStoreEvent(sub *store.Subscription) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-sub.C
		if !ok {
			return nil
		}
		return storeEventMsg{ev: ev}
	}
}

// waitForBridgeMsg forwards one message from the bus bridge channel.
func waitForBridgeMsg(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

// NotificationBuffer buffers notifications and emits coalesced drain
// signals so bursts cost one render, not one per message.
type NotificationBuffer struct {
	mu            sync.Mutex
	notifications []eventbus.Notification
	signal        chan struct{}
}

// NewNotificationBuffer constructs a buffer for async notification delivery.
func NewNotificationBuffer() *NotificationBuffer {
	return &NotificationBuffer{
		notifications: make([]eventbus.Notification, 0),
		signal:        make(chan struct{}, 1),
	}
}

// Push appends a notification and emits a non-blocking drain signal.
func (b *NotificationBuffer) Push(n eventbus.Notification) {
	b.mu.Lock()
	b.notifications = append(b.notifications, n)
	b.mu.Unlock()

	select {
	case b.signal <- struct{}{}:
	default:
	}
}

// Drain returns all buffered notifications and clears the buffer.
func (b *NotificationBuffer) Drain() []eventbus.Notification {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.notifications) == 0 {
		return nil
	}

	out := make([]eventbus.Notification, len(b.notifications))
	copy(out, b.notifications)
	b.notifications = b.notifications[:0]
	return out
}

// WaitForSignal blocks until there are notifications ready to drain.
func (b *NotificationBuffer) WaitForSignal() tea.Cmd {
	return func() tea.Msg {
		<-b.signal
		return drainNotificationsMsg{}
	}
}

const toastLifetime = 4 * time.Second

// toast is one notification currently shown in the status area.
type toast struct {
	notification eventbus.Notification
	expiresAt    time.Time
}

func expireToasts() tea.Cmd {
	return tea.Tick(toastLifetime, func(time.Time) tea.Msg {
		return toastExpiredMsg{}
	})
}
