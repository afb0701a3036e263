// Package eventbus provides a typed publish/subscribe event bus for
// cross-component communication between the sync scheduler, the entity
// store, and the TUI.
package eventbus

import (
	"context"
	"sync"
)

const defaultBuffer = 256

type envelope struct {
	event   Event
	payload any
}

// EventBus is an asynchronous, buffered event bus. Publishing never
// blocks: if the buffer is full the event is dropped and the OnDrop
// hooks fire. Subscribers run on the dispatch goroutine; panics are
// recovered and reported through OnPanic.
type EventBus struct {
	ch chan envelope

	mu   sync.RWMutex
	subs map[Event][]func(any)

	hookMu      sync.RWMutex
	onPublish   []func(Event, any)
	onDrop      []func(Event, any)
	onPanic     []func(Event, any, any)
}

// New creates a bus with the default buffer size.
func New() *EventBus {
	return &EventBus{
		ch:   make(chan envelope, defaultBuffer),
		subs: make(map[Event][]func(any)),
	}
}

// Start runs the dispatch loop until ctx is cancelled.
func (bus *EventBus) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case env := <-bus.ch:
				bus.dispatch(env)
			}
		}
	}()
}

// OnPublish registers a hook that fires after an event is successfully enqueued.
func (bus *EventBus) OnPublish(fn func(Event, any)) {
	bus.hookMu.Lock()
	bus.onPublish = append(bus.onPublish, fn)
	bus.hookMu.Unlock()
}

// OnDrop registers a hook that fires when an event is dropped due to a full buffer.
func (bus *EventBus) OnDrop(fn func(Event, any)) {
	bus.hookMu.Lock()
	bus.onDrop = append(bus.onDrop, fn)
	bus.hookMu.Unlock()
}

// OnPanic registers a hook that fires when a subscriber panics.
func (bus *EventBus) OnPanic(fn func(Event, any, any)) {
	bus.hookMu.Lock()
	bus.onPanic = append(bus.onPanic, fn)
	bus.hookMu.Unlock()
}

func (bus *EventBus) send(event Event, payload any) {
	if bus == nil {
		return
	}
	select {
	case bus.ch <- envelope{event: event, payload: payload}:
		bus.runHooks(bus.snapshotHooks(&bus.onPublish), event, payload)
	default:
		bus.runHooks(bus.snapshotHooks(&bus.onDrop), event, payload)
	}
}

func (bus *EventBus) snapshotHooks(src *[]func(Event, any)) []func(Event, any) {
	bus.hookMu.RLock()
	defer bus.hookMu.RUnlock()
	out := make([]func(Event, any), len(*src))
	copy(out, *src)
	return out
}

func (bus *EventBus) runHooks(hooks []func(Event, any), event Event, payload any) {
	for _, fn := range hooks {
		fn(event, payload)
	}
}

func (bus *EventBus) dispatch(env envelope) {
	bus.mu.RLock()
	subs := make([]func(any), len(bus.subs[env.event]))
	copy(subs, bus.subs[env.event])
	bus.mu.RUnlock()

	for _, fn := range subs {
		bus.safeCall(env, fn)
	}
}

func (bus *EventBus) safeCall(env envelope, fn func(any)) {
	defer func() {
		if r := recover(); r != nil {
			bus.hookMu.RLock()
			hooks := make([]func(Event, any, any), len(bus.onPanic))
			copy(hooks, bus.onPanic)
			bus.hookMu.RUnlock()
			for _, h := range hooks {
				func() {
					defer func() { recover() }() //nolint:errcheck
					h(env.event, env.payload, r)
				}()
			}
		}
	}()
	fn(env.payload)
}

func subscribe[T any](bus *EventBus, event Event, fn func(T)) {
	bus.mu.Lock()
	bus.subs[event] = append(bus.subs[event], func(v any) {
		if p, ok := v.(T); ok {
			fn(p)
		}
	})
	bus.mu.Unlock()
}
