package store

import "github.com/kestreldev/kestrel/internal/core/entity"

// EventType distinguishes store notifications.
type EventType int

const (
	// EventUpdated fires after a put is applied.
	EventUpdated EventType = iota
	// EventInvalidated fires after an entry is removed or staled.
	EventInvalidated
)

// Event is a store change notification. Events for a given entity id
// are delivered in the order the store applied them.
type Event struct {
	Type   EventType
	Kind   entity.Kind
	GID    string
	Parent string
}

// Filter restricts a subscription. The zero value matches everything;
// set GID for a single entity or Parent for a scope. Kind narrows
// either form.
type Filter struct {
	Kind   entity.Kind
	GID    string
	Parent string
}

func (f Filter) matches(ev Event) bool {
	if f.Kind != "" && f.Kind != ev.Kind {
		return false
	}
	if f.GID != "" && f.GID != ev.GID {
		return false
	}
	if f.Parent != "" && f.Parent != ev.Parent {
		return false
	}
	return true
}

const subscriptionBuffer = 128

// Subscription is a stream of store events. Consumers read from C;
// slow consumers lose the newest events rather than blocking the store.
type Subscription struct {
	C      <-chan Event
	ch     chan Event
	id     int
	filter Filter
	store  *Store
}

// Subscribe registers for events matching the filter.
func (s *Store) Subscribe(filter Filter) *Subscription {
	ch := make(chan Event, subscriptionBuffer)
	sub := &Subscription{C: ch, ch: ch, filter: filter, store: s}

	s.mu.Lock()
	s.nextSub++
	sub.id = s.nextSub
	s.subs[sub.id] = sub
	s.mu.Unlock()
	return sub
}

// Close unregisters the subscription. The channel is left open; any
// buffered events may still be drained.
func (sub *Subscription) Close() {
	sub.store.mu.Lock()
	delete(sub.store.subs, sub.id)
	sub.store.mu.Unlock()
}

// notifyLocked fans an event out to matching subscribers. Called with
// the store lock held, which is what guarantees per-id ordering.
func (s *Store) notifyLocked(ev Event) {
	for _, sub := range s.subs {
		if !sub.filter.matches(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			s.log.Warn().
				Str("kind", string(ev.Kind)).
				Str("gid", ev.GID).
				Msg("subscriber buffer full, dropping event")
		}
	}
}
