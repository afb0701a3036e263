package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestreldev/kestrel/internal/core/entity"
)

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event delivery")
	}
}

func TestPublishSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := New()
	bus.Start(ctx)

	got := make(chan struct{})
	var received EntityUpdatedPayload
	bus.SubscribeEntityUpdated(func(p EntityUpdatedPayload) {
		received = p
		close(got)
	})

	bus.PublishEntityUpdated(EntityUpdatedPayload{Kind: entity.KindTask, GID: "42", Parent: "p1"})
	waitFor(t, got)

	assert.Equal(t, entity.KindTask, received.Kind)
	assert.Equal(t, "42", received.GID)
	assert.Equal(t, "p1", received.Parent)
}

func TestSubscriberPanicDoesNotStopDispatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := New()
	bus.Start(ctx)

	panicked := make(chan struct{})
	bus.OnPanic(func(_ Event, _ any, _ any) { close(panicked) })

	delivered := make(chan struct{})
	bus.SubscribeAuthExpired(func(AuthExpiredPayload) { panic("boom") })
	bus.SubscribeAuthExpired(func(AuthExpiredPayload) { close(delivered) })

	bus.PublishAuthExpired(AuthExpiredPayload{})

	waitFor(t, panicked)
	waitFor(t, delivered)
}

func TestDropOnFullBuffer(t *testing.T) {
	// Bus is never started, so the buffer fills and overflow drops.
	bus := New()

	dropped := make(chan Event, 1)
	bus.OnDrop(func(e Event, _ any) {
		select {
		case dropped <- e:
		default:
		}
	})

	for range defaultBuffer + 1 {
		bus.PublishConfigReloaded(ConfigReloadedPayload{})
	}

	select {
	case e := <-dropped:
		require.Equal(t, EventConfigReloaded, e)
	default:
		t.Fatal("expected an overflow drop")
	}
}

func TestNotifyWrapsNotification(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := New()
	bus.Start(ctx)

	got := make(chan Notification, 1)
	bus.SubscribeNotificationPublished(func(p NotificationPublishedPayload) {
		got <- p.Notification
	})

	bus.Notify(LevelWarning, "rate limited")

	select {
	case n := <-got:
		assert.Equal(t, LevelWarning, n.Level)
		assert.Equal(t, "rate limited", n.Message)
	case <-time.After(2 * time.Second):
		t.Fatal("notification not delivered")
	}
}
