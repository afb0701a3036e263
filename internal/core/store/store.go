// Package store implements the authoritative in-memory cache of remote
// entities. It is the only state shared between the sync workers and
// the render loop; every operation is a short critical section and
// never blocks on I/O.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kestreldev/kestrel/internal/core/entity"
	"github.com/kestreldev/kestrel/internal/core/eventbus"
	"github.com/kestreldev/kestrel/internal/core/logging"
)

// Entry is a cached entity plus its local freshness metadata.
type Entry struct {
	Entity    entity.Entity
	FetchedAt time.Time
}

// Options configures a Store.
type Options struct {
	// TTL is the advisory staleness window per entity kind. Zero
	// durations mean entries of that kind never self-expire.
	TTL map[entity.Kind]time.Duration
	// MaxEntries bounds the cache size. Entries pinned by a pending
	// edit are never evicted, even when that exceeds the bound.
	MaxEntries int
	// Bus optionally mirrors store notifications onto the event bus.
	Bus *eventbus.EventBus
	// Now injects a clock for tests.
	Now func() time.Time
}

type record struct {
	ent        entity.Entity
	fetchedAt  time.Time
	lastAccess uint64
	stale      bool
}

// pendingEdit tracks which task fields are covered by unresolved edit
// intents. Counts are per field: stacked edits to the same field keep
// it protected until the last one resolves.
type pendingEdit struct {
	fields map[entity.Field]int
}

// Store is the entity cache. All methods are safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	opts    Options
	entries map[string]*record
	pending map[string]*pendingEdit
	subs    map[int]*Subscription
	nextSub int
	seq     uint64
	log     zerolog.Logger
}

// New creates an empty store.
func New(opts Options) *Store {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 10_000
	}
	return &Store{
		opts:    opts,
		entries: make(map[string]*record),
		pending: make(map[string]*pendingEdit),
		subs:    make(map[int]*Subscription),
		log:     logging.Component("store"),
	}
}

// Get returns the cached entry for kind/gid, if any. Never blocks.
func (s *Store) Get(kind entity.Kind, gid string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.entries[entity.Key(kind, gid)]
	if !ok {
		return Entry{}, false
	}
	s.seq++
	rec.lastAccess = s.seq
	return Entry{Entity: rec.ent, FetchedAt: rec.fetchedAt}, true
}

// GetOrMarkStale returns the current value (possibly stale) and
// whether the caller should schedule a refresh. A missing entry, an
// explicit invalidation, or an entry past its TTL all request one.
func (s *Store) GetOrMarkStale(kind entity.Kind, gid string) (Entry, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.entries[entity.Key(kind, gid)]
	if !ok {
		return Entry{}, false, true
	}
	s.seq++
	rec.lastAccess = s.seq

	needsRefresh := rec.stale || s.expired(kind, rec)
	return Entry{Entity: rec.ent, FetchedAt: rec.fetchedAt}, true, needsRefresh
}

// List returns every cached entity of the given kind, most recently
// modified first. Parent, when non-empty, restricts to that scope.
func (s *Store) List(kind entity.Kind, parent string) []entity.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []entity.Entity
	for _, rec := range s.entries {
		if rec.ent.Kind() != kind {
			continue
		}
		if parent != "" && rec.ent.Parent() != parent {
			continue
		}
		out = append(out, rec.ent)
	}
	sortByModifiedDesc(out)
	return out
}

// Put applies a fetched entity. Resolution is last-writer-wins by the
// remote version marker, not arrival order: a result older than the
// cached version is discarded, guarding against out-of-order network
// completions. Fields covered by a pending edit intent keep their
// optimistic local value. Returns whether the entity was applied.
func (s *Store) Put(e entity.Entity, fetchedAt time.Time) bool {
	s.mu.Lock()
	key := entity.Key(e.Kind(), e.GID())

	if rec, ok := s.entries[key]; ok {
		if rec.ent.Modified().After(e.Modified()) {
			s.mu.Unlock()
			s.log.Debug().
				Str("key", key).
				Time("cached", rec.ent.Modified()).
				Time("incoming", e.Modified()).
				Msg("discarding stale refresh result")
			return false
		}
		e = s.mergePendingLocked(key, rec.ent, e)
	}

	s.seq++
	s.entries[key] = &record{ent: e, fetchedAt: fetchedAt, lastAccess: s.seq}
	ev := Event{Type: EventUpdated, Kind: e.Kind(), GID: e.GID(), Parent: e.Parent()}
	s.notifyLocked(ev)
	s.evictLocked(key)
	s.mu.Unlock()

	if s.opts.Bus != nil {
		s.opts.Bus.PublishEntityUpdated(eventbus.EntityUpdatedPayload{Kind: ev.Kind, GID: ev.GID, Parent: ev.Parent})
	}
	return true
}

// PutBatch applies a page of entities, preserving order.
func (s *Store) PutBatch(entities []entity.Entity, fetchedAt time.Time) {
	for _, e := range entities {
		s.Put(e, fetchedAt)
	}
}

// Invalidate removes an entry, e.g. on a deletion notice.
func (s *Store) Invalidate(kind entity.Kind, gid string) {
	s.mu.Lock()
	key := entity.Key(kind, gid)
	rec, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return
	}
	parent := rec.ent.Parent()
	delete(s.entries, key)
	ev := Event{Type: EventInvalidated, Kind: kind, GID: gid, Parent: parent}
	s.notifyLocked(ev)
	s.mu.Unlock()

	if s.opts.Bus != nil {
		s.opts.Bus.PublishEntityInvalidated(eventbus.EntityInvalidatedPayload{Kind: kind, GID: gid, Parent: parent})
	}
}

// InvalidateScope marks every child of parent stale. Children are not
// dropped: their identity survives the parent's invalidation, they
// just need a refresh before being trusted again.
func (s *Store) InvalidateScope(parentGID string) {
	s.mu.Lock()
	var staled []Event
	for _, rec := range s.entries {
		if rec.ent.Parent() != parentGID {
			continue
		}
		rec.stale = true
		staled = append(staled, Event{Type: EventInvalidated, Kind: rec.ent.Kind(), GID: rec.ent.GID(), Parent: parentGID})
	}
	for _, ev := range staled {
		s.notifyLocked(ev)
	}
	s.mu.Unlock()

	if s.opts.Bus != nil {
		for _, ev := range staled {
			s.opts.Bus.PublishEntityInvalidated(eventbus.EntityInvalidatedPayload{Kind: ev.Kind, GID: ev.GID, Parent: ev.Parent})
		}
	}
}

// MarkStale flags a single entry as needing refresh without removing it.
func (s *Store) MarkStale(kind entity.Kind, gid string) {
	s.mu.Lock()
	if rec, ok := s.entries[entity.Key(kind, gid)]; ok {
		rec.stale = true
	}
	s.mu.Unlock()
}

// Len returns the number of cached entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) expired(kind entity.Kind, rec *record) bool {
	ttl := s.opts.TTL[kind]
	return ttl > 0 && s.opts.Now().Sub(rec.fetchedAt) > ttl
}

// mergePendingLocked layers a refresh result over a pending optimistic
// edit: protected fields keep the local value so a server refresh
// cannot visually revert the user's own in-flight change.
func (s *Store) mergePendingLocked(key string, cached, incoming entity.Entity) entity.Entity {
	pe, ok := s.pending[key]
	if !ok || len(pe.fields) == 0 {
		return incoming
	}
	cachedTask, okCached := cached.(*entity.Task)
	incomingTask, okIncoming := incoming.(*entity.Task)
	if !okCached || !okIncoming {
		return incoming
	}

	merged := *incomingTask
	fields := make([]entity.Field, 0, len(pe.fields))
	for f := range pe.fields {
		fields = append(fields, f)
	}
	entity.CopyFields(&merged, cachedTask, fields)
	return &merged
}

// evictLocked enforces the size bound, removing the least recently
// accessed entries. Entries with a pending edit intent are pinned and
// skipped, even when that temporarily exceeds the bound.
func (s *Store) evictLocked(justAdded string) {
	for len(s.entries) > s.opts.MaxEntries {
		var victimKey string
		var victim *record
		for key, rec := range s.entries {
			if key == justAdded {
				continue
			}
			if _, pinned := s.pending[key]; pinned {
				continue
			}
			if victim == nil || rec.lastAccess < victim.lastAccess {
				victimKey, victim = key, rec
			}
		}
		if victim == nil {
			return // everything else is pinned
		}
		delete(s.entries, victimKey)
		s.notifyLocked(Event{
			Type:   EventInvalidated,
			Kind:   victim.ent.Kind(),
			GID:    victim.ent.GID(),
			Parent: victim.ent.Parent(),
		})
	}
}

func sortByModifiedDesc(entities []entity.Entity) {
	sort.Slice(entities, func(i, j int) bool {
		return entities[i].Modified().After(entities[j].Modified())
	})
}
