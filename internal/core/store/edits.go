package store

import (
	"time"

	"github.com/kestreldev/kestrel/internal/core/entity"
	"github.com/kestreldev/kestrel/internal/core/eventbus"
)

// BeginEdit applies an optimistic task update to the cached copy and
// pins the covered fields against concurrent refresh results and
// eviction. Each BeginEdit must be paired with exactly one EndEdit.
// Returns false when the task is not cached; the edit may still be
// submitted, there is just nothing to show optimistically.
func (s *Store) BeginEdit(gid string, update entity.TaskUpdate) bool {
	fields := update.Fields()

	s.mu.Lock()
	key := entity.Key(entity.KindTask, gid)

	pe, ok := s.pending[key]
	if !ok {
		pe = &pendingEdit{fields: make(map[entity.Field]int)}
		s.pending[key] = pe
	}
	for _, f := range fields {
		pe.fields[f]++
	}

	rec, cached := s.entries[key]
	var ev Event
	if cached {
		if task, isTask := rec.ent.(*entity.Task); isTask {
			rec.ent = update.ApplyTo(task)
			ev = Event{Type: EventUpdated, Kind: entity.KindTask, GID: gid, Parent: rec.ent.Parent()}
			s.notifyLocked(ev)
		}
	}
	s.mu.Unlock()

	if cached && s.opts.Bus != nil && ev.GID != "" {
		s.opts.Bus.PublishEntityUpdated(eventbus.EntityUpdatedPayload{Kind: ev.Kind, GID: ev.GID, Parent: ev.Parent})
	}
	return cached
}

// EndEdit releases the field pins taken by a BeginEdit. When the edit
// was confirmed, the server's entity is applied (fields still pinned
// by other queued edits keep their optimistic value). When it failed,
// the entry is marked stale so the next read schedules a corrective
// refresh.
func (s *Store) EndEdit(gid string, update entity.TaskUpdate, confirmed *entity.Task, fetchedAt time.Time) {
	s.mu.Lock()
	key := entity.Key(entity.KindTask, gid)
	if pe, ok := s.pending[key]; ok {
		for _, f := range update.Fields() {
			if pe.fields[f] > 1 {
				pe.fields[f]--
			} else {
				delete(pe.fields, f)
			}
		}
		if len(pe.fields) == 0 {
			delete(s.pending, key)
		}
	}
	if confirmed == nil {
		if rec, ok := s.entries[key]; ok {
			rec.stale = true
		}
	}
	s.mu.Unlock()

	if confirmed != nil {
		s.Put(confirmed, fetchedAt)
	}
}

// HasPendingEdit reports whether any edit intent is unresolved for the
// task. The eviction policy consults this to pin entries.
func (s *Store) HasPendingEdit(gid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[entity.Key(entity.KindTask, gid)]
	return ok
}

// PendingFields returns the task fields currently covered by
// unresolved edit intents.
func (s *Store) PendingFields(gid string) []entity.Field {
	s.mu.Lock()
	defer s.mu.Unlock()

	pe, ok := s.pending[entity.Key(entity.KindTask, gid)]
	if !ok {
		return nil
	}
	fields := make([]entity.Field, 0, len(pe.fields))
	for f := range pe.fields {
		fields = append(fields, f)
	}
	return fields
}
