// Package search maintains an incremental fuzzy index over the entity
// store. The index updates from store notifications, so query results
// reflect whatever has synced so far without re-walking the cache.
package search

import (
	"context"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sahilm/fuzzy"

	"github.com/kestreldev/kestrel/internal/core/entity"
	"github.com/kestreldev/kestrel/internal/core/logging"
	"github.com/kestreldev/kestrel/internal/core/store"
)

// Result is one query hit.
type Result struct {
	Kind     entity.Kind
	GID      string
	Text     string
	Score    int
	Modified time.Time
	// MatchedIndexes are rune positions in Text, for highlight rendering.
	MatchedIndexes []int
}

type record struct {
	kind     entity.Kind
	gid      string
	text     string
	modified time.Time
}

// Index is an incrementally maintained fuzzy search index. Safe for
// concurrent use.
type Index struct {
	mu      sync.RWMutex
	records map[string]record
	log     zerolog.Logger
}

// New creates an empty index.
func New() *Index {
	return &Index{
		records: make(map[string]record),
		log:     logging.Component("search"),
	}
}

// Upsert adds or replaces the entity's index entry.
func (i *Index) Upsert(e entity.Entity) {
	i.mu.Lock()
	i.records[entity.Key(e.Kind(), e.GID())] = record{
		kind:     e.Kind(),
		gid:      e.GID(),
		text:     e.SearchText(),
		modified: e.Modified(),
	}
	i.mu.Unlock()
}

// Remove drops the entity from the index.
func (i *Index) Remove(kind entity.Kind, gid string) {
	i.mu.Lock()
	delete(i.records, entity.Key(kind, gid))
	i.mu.Unlock()
}

// Len returns the number of indexed entities.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.records)
}

// Watch keeps the index in sync with the store until ctx is cancelled.
// Blocks; run in a goroutine.
func (i *Index) Watch(ctx context.Context, st *store.Store) {
	sub := st.Subscribe(store.Filter{})
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-sub.C:
			// An invalidation can mean removed or merely staled; the
			// store is the tiebreaker. Stale entries stay searchable.
			entry, ok := st.Get(ev.Kind, ev.GID)
			if ok {
				i.Upsert(entry.Entity)
			} else {
				i.Remove(ev.Kind, ev.GID)
			}
		}
	}
}

// source adapts a record snapshot for the fuzzy matcher.
type source []record

func (s source) String(n int) string { return s[n].text }
func (s source) Len() int            { return len(s) }

// Query runs a fuzzy match over the index. Results are ranked by match
// score, ties broken by recency. An empty query returns everything,
// most recently modified first. Kinds, when given, restrict the
// candidate set. The returned sequence is rankable and re-rangeable;
// it reflects the index as of the call.
func (i *Index) Query(q string, kinds ...entity.Kind) iter.Seq[Result] {
	snapshot := i.snapshot(kinds)

	var results []Result
	if q == "" {
		for _, rec := range snapshot {
			results = append(results, Result{
				Kind: rec.kind, GID: rec.gid, Text: rec.text, Modified: rec.modified,
			})
		}
		sort.Slice(results, func(a, b int) bool {
			return results[a].Modified.After(results[b].Modified)
		})
	} else {
		for _, m := range fuzzy.FindFrom(q, source(snapshot)) {
			rec := snapshot[m.Index]
			results = append(results, Result{
				Kind:           rec.kind,
				GID:            rec.gid,
				Text:           rec.text,
				Score:          m.Score,
				Modified:       rec.modified,
				MatchedIndexes: m.MatchedIndexes,
			})
		}
		sort.SliceStable(results, func(a, b int) bool {
			if results[a].Score != results[b].Score {
				return results[a].Score > results[b].Score
			}
			return results[a].Modified.After(results[b].Modified)
		})
	}

	return func(yield func(Result) bool) {
		for _, r := range results {
			if !yield(r) {
				return
			}
		}
	}
}

func (i *Index) snapshot(kinds []entity.Kind) []record {
	i.mu.RLock()
	defer i.mu.RUnlock()

	out := make([]record, 0, len(i.records))
	for _, rec := range i.records {
		if len(kinds) > 0 && !containsKind(kinds, rec.kind) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func containsKind(kinds []entity.Kind, k entity.Kind) bool {
	for _, kind := range kinds {
		if kind == k {
			return true
		}
	}
	return false
}
