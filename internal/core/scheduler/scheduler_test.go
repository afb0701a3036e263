package scheduler

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestreldev/kestrel/internal/api"
	"github.com/kestreldev/kestrel/internal/core/entity"
	"github.com/kestreldev/kestrel/internal/core/store"
)

var testBase = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeClient struct {
	mu           sync.Mutex
	fetchCalls   int
	updateCalls  int
	commentCalls int
	updates      []entity.TaskUpdate

	fetchFn   func(ctx context.Context, scope api.Scope, token string) (api.Page, error)
	updateFn  func(ctx context.Context, gid string, update entity.TaskUpdate) (*entity.Task, error)
	commentFn func(ctx context.Context, taskGID, text string) (*entity.Comment, error)
}

func (f *fakeClient) Fetch(ctx context.Context, scope api.Scope, token string) (api.Page, error) {
	f.mu.Lock()
	f.fetchCalls++
	fn := f.fetchFn
	f.mu.Unlock()
	if fn == nil {
		return api.Page{}, nil
	}
	return fn(ctx, scope, token)
}

func (f *fakeClient) setFetchFn(fn func(ctx context.Context, scope api.Scope, token string) (api.Page, error)) {
	f.mu.Lock()
	f.fetchFn = fn
	f.mu.Unlock()
}

func (f *fakeClient) UpdateTask(ctx context.Context, gid string, update entity.TaskUpdate) (*entity.Task, error) {
	f.mu.Lock()
	f.updateCalls++
	f.updates = append(f.updates, update)
	f.mu.Unlock()
	if f.updateFn == nil {
		return &entity.Task{Gid: gid, ModifiedAt: testBase}, nil
	}
	return f.updateFn(ctx, gid, update)
}

func (f *fakeClient) CreateComment(ctx context.Context, taskGID, text string) (*entity.Comment, error) {
	f.mu.Lock()
	f.commentCalls++
	f.mu.Unlock()
	if f.commentFn == nil {
		return &entity.Comment{Gid: "c1", TaskGID: taskGID, Text: text, CreatedAt: testBase}, nil
	}
	return f.commentFn(ctx, taskGID, text)
}

func (f *fakeClient) calls() (fetch, update, comment int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls, f.updateCalls, f.commentCalls
}

type testHarness struct {
	sched  *Scheduler
	client *fakeClient
	store  *store.Store
	delays *[]time.Duration
	cancel context.CancelFunc
}

func newHarness(t *testing.T, client *fakeClient) *testHarness {
	t.Helper()

	st := store.New(store.Options{
		MaxEntries: 100,
		Now:        func() time.Time { return testBase },
	})

	var mu sync.Mutex
	delays := []time.Duration{}
	sched := New(Options{
		Client:         client,
		Store:          st,
		MaxConcurrent:  2,
		RetryAttempts:  2,
		BackoffBase:    100 * time.Millisecond,
		RequestTimeout: time.Second,
		Now:            func() time.Time { return testBase },
		Sleep: func(_ context.Context, d time.Duration) error {
			mu.Lock()
			delays = append(delays, d)
			mu.Unlock()
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go sched.Run(ctx) //nolint:errcheck

	return &testHarness{sched: sched, client: client, store: st, delays: &delays, cancel: cancel}
}

func taskPage(gids ...string) api.Page {
	var page api.Page
	for _, gid := range gids {
		page.Entities = append(page.Entities, &entity.Task{Gid: gid, Name: gid, ModifiedAt: testBase})
	}
	return page
}

func TestRefreshAppliesAllPages(t *testing.T) {
	client := &fakeClient{
		fetchFn: func(_ context.Context, _ api.Scope, token string) (api.Page, error) {
			if token == "" {
				page := taskPage("1", "2")
				page.NextPage = "tok"
				return page, nil
			}
			return taskPage("3"), nil
		},
	}
	h := newHarness(t, client)

	h.sched.Refresh(api.Scope{Kind: entity.KindTask, WorkspaceGID: "w"}, Foreground)

	require.Eventually(t, func() bool { return h.store.Len() == 3 }, 2*time.Second, 5*time.Millisecond)
	fetch, _, _ := client.calls()
	assert.Equal(t, 2, fetch, "one call per page")
}

func TestConcurrentRefreshesCoalesce(t *testing.T) {
	release := make(chan struct{})
	client := &fakeClient{
		fetchFn: func(ctx context.Context, _ api.Scope, _ string) (api.Page, error) {
			select {
			case <-release:
			case <-ctx.Done():
				return api.Page{}, ctx.Err()
			}
			return taskPage("1"), nil
		},
	}
	h := newHarness(t, client)

	scope := api.Scope{Kind: entity.KindTask, WorkspaceGID: "w"}
	id1 := h.sched.Refresh(scope, Foreground)

	require.Eventually(t, func() bool {
		fetch, _, _ := client.calls()
		return fetch == 1
	}, 2*time.Second, 5*time.Millisecond)

	// Duplicate requests while the first is in flight attach to it.
	id2 := h.sched.Refresh(scope, Foreground)
	id3 := h.sched.Refresh(scope, Background)
	assert.Equal(t, id1, id2)
	assert.Equal(t, id1, id3)

	close(release)
	require.Eventually(t, func() bool { return h.store.Len() == 1 }, 2*time.Second, 5*time.Millisecond)

	fetch, _, _ := client.calls()
	assert.Equal(t, 1, fetch, "coalesced requests must issue exactly one network call")
}

func TestTransientFailureRetriesWithBackoff(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	client := &fakeClient{
		fetchFn: func(_ context.Context, _ api.Scope, _ string) (api.Page, error) {
			mu.Lock()
			attempts++
			n := attempts
			mu.Unlock()
			if n <= 2 {
				return api.Page{}, &api.Error{Status: http.StatusInternalServerError}
			}
			return taskPage("1"), nil
		},
	}
	h := newHarness(t, client)

	h.sched.Refresh(api.Scope{Kind: entity.KindTask, WorkspaceGID: "w"}, Foreground)

	require.Eventually(t, func() bool { return h.store.Len() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, *h.delays)
}

func TestRateLimitHonorsRetryAfter(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	client := &fakeClient{
		fetchFn: func(_ context.Context, _ api.Scope, _ string) (api.Page, error) {
			mu.Lock()
			attempts++
			n := attempts
			mu.Unlock()
			if n == 1 {
				return api.Page{}, &api.Error{Status: http.StatusTooManyRequests, RetryAfter: 7 * time.Second}
			}
			return taskPage("1"), nil
		},
	}
	h := newHarness(t, client)

	h.sched.Refresh(api.Scope{Kind: entity.KindTask, WorkspaceGID: "w"}, Foreground)

	require.Eventually(t, func() bool { return h.store.Len() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Len(t, *h.delays, 1)
	assert.Equal(t, 7*time.Second, (*h.delays)[0], "server-requested delay overrides backoff")
}

func TestRejectedFailureDoesNotRetry(t *testing.T) {
	client := &fakeClient{
		fetchFn: func(_ context.Context, _ api.Scope, _ string) (api.Page, error) {
			return api.Page{}, &api.Error{Status: http.StatusNotFound}
		},
	}
	h := newHarness(t, client)

	h.sched.Refresh(api.Scope{Kind: entity.KindTask, GID: "missing"}, Foreground)

	require.Eventually(t, func() bool { return h.sched.Pending() == 0 }, 2*time.Second, 5*time.Millisecond)
	fetch, _, _ := client.calls()
	assert.Equal(t, 1, fetch)
	assert.Empty(t, *h.delays)
}

func TestUnauthorizedSuspendsBackgroundScheduling(t *testing.T) {
	client := &fakeClient{
		fetchFn: func(_ context.Context, _ api.Scope, _ string) (api.Page, error) {
			return api.Page{}, &api.Error{Status: http.StatusUnauthorized}
		},
	}
	h := newHarness(t, client)

	h.sched.Refresh(api.Scope{Kind: entity.KindTask, WorkspaceGID: "w"}, Foreground)
	require.Eventually(t, func() bool { return h.sched.Pending() == 0 }, 2*time.Second, 5*time.Millisecond)

	// Background work is parked while unauthorized.
	h.sched.Refresh(api.Scope{Kind: entity.KindProject, WorkspaceGID: "w"}, Background)
	time.Sleep(50 * time.Millisecond)
	fetch, _, _ := client.calls()
	assert.Equal(t, 1, fetch, "suspended scheduler must not dispatch background jobs")

	// Replacing the token resumes it.
	client.setFetchFn(func(_ context.Context, _ api.Scope, _ string) (api.Page, error) {
		return taskPage("1"), nil
	})
	h.sched.Resume()
	require.Eventually(t, func() bool { return h.store.Len() == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestCancelledJobNeverWritesBack(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	client := &fakeClient{
		fetchFn: func(ctx context.Context, _ api.Scope, _ string) (api.Page, error) {
			close(started)
			<-release
			// The transport finished, but the job was cancelled while
			// it was in flight.
			return taskPage("1"), nil
		},
	}
	h := newHarness(t, client)

	scope := api.Scope{Kind: entity.KindTask, WorkspaceGID: "w"}
	h.sched.Refresh(scope, Foreground)
	<-started

	h.sched.Cancel(scope)
	close(release)

	require.Eventually(t, func() bool { return h.sched.Pending() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, h.store.Len(), "cancelled result must be discarded")
}

func TestForegroundDispatchesBeforeBackground(t *testing.T) {
	var mu sync.Mutex
	var order []string
	release := make(chan struct{})
	client := &fakeClient{
		fetchFn: func(_ context.Context, scope api.Scope, _ string) (api.Page, error) {
			<-release
			mu.Lock()
			order = append(order, scope.WorkspaceGID)
			mu.Unlock()
			return api.Page{}, nil
		},
	}

	st := store.New(store.Options{MaxEntries: 100, Now: func() time.Time { return testBase }})
	sched := New(Options{
		Client:        client,
		Store:         st,
		MaxConcurrent: 1,
		Now:           func() time.Time { return testBase },
	})

	// Queue before starting the dispatcher so ordering is deterministic.
	sched.Refresh(api.Scope{Kind: entity.KindTask, WorkspaceGID: "bg1"}, Background)
	sched.Refresh(api.Scope{Kind: entity.KindTask, WorkspaceGID: "bg2"}, Background)
	sched.Refresh(api.Scope{Kind: entity.KindTask, WorkspaceGID: "fg1"}, Foreground)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Run(ctx) //nolint:errcheck
	close(release)

	require.Eventually(t, func() bool { return sched.Pending() == 0 }, 2*time.Second, 5*time.Millisecond)
	require.Len(t, order, 3)
	assert.Equal(t, "fg1", order[0])
}

func TestSubmitUpdateAppliesOptimisticallyThenConfirms(t *testing.T) {
	confirmed := make(chan struct{})
	client := &fakeClient{
		updateFn: func(_ context.Context, gid string, update entity.TaskUpdate) (*entity.Task, error) {
			defer close(confirmed)
			return &entity.Task{Gid: gid, Completed: *update.Completed, ModifiedAt: testBase.Add(time.Minute)}, nil
		},
	}
	h := newHarness(t, client)

	h.store.Put(&entity.Task{Gid: "42", ModifiedAt: testBase}, testBase)

	done := true
	h.sched.SubmitUpdate("42", entity.TaskUpdate{Completed: &done})

	// Optimistic value is visible immediately, before the submit lands.
	entry, ok := h.store.Get(entity.KindTask, "42")
	require.True(t, ok)
	assert.True(t, entry.Entity.(*entity.Task).Completed)

	<-confirmed
	require.Eventually(t, func() bool { return !h.store.HasPendingEdit("42") }, 2*time.Second, 5*time.Millisecond)

	entry, _ = h.store.Get(entity.KindTask, "42")
	assert.True(t, entry.Entity.(*entity.Task).Completed)
	assert.Equal(t, testBase.Add(time.Minute), entry.Entity.Modified())
}

func TestEditsForSameTaskSubmitInOrder(t *testing.T) {
	var mu sync.Mutex
	var seen []bool
	client := &fakeClient{
		updateFn: func(_ context.Context, gid string, update entity.TaskUpdate) (*entity.Task, error) {
			mu.Lock()
			seen = append(seen, *update.Completed)
			mu.Unlock()
			return &entity.Task{Gid: gid, Completed: *update.Completed, ModifiedAt: testBase}, nil
		},
	}
	h := newHarness(t, client)
	h.store.Put(&entity.Task{Gid: "42", ModifiedAt: testBase}, testBase)

	done, undone := true, false
	h.sched.SubmitUpdate("42", entity.TaskUpdate{Completed: &done})
	h.sched.SubmitUpdate("42", entity.TaskUpdate{Completed: &undone})

	require.Eventually(t, func() bool {
		_, updates, _ := client.calls()
		return updates == 2
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false}, seen)
}

func TestFailedUpdateReleasesPinAndMarksStale(t *testing.T) {
	client := &fakeClient{
		updateFn: func(_ context.Context, _ string, _ entity.TaskUpdate) (*entity.Task, error) {
			return nil, &api.Error{Status: http.StatusBadRequest, Message: "invalid"}
		},
	}
	h := newHarness(t, client)
	h.store.Put(&entity.Task{Gid: "42", ModifiedAt: testBase}, testBase)

	done := true
	h.sched.SubmitUpdate("42", entity.TaskUpdate{Completed: &done})

	require.Eventually(t, func() bool { return !h.store.HasPendingEdit("42") }, 2*time.Second, 5*time.Millisecond)

	_, ok, needsRefresh := h.store.GetOrMarkStale(entity.KindTask, "42")
	assert.True(t, ok)
	assert.True(t, needsRefresh, "failed edit schedules a corrective refresh")

	_, updates, _ := client.calls()
	assert.Equal(t, 1, updates, "rejected edits are not retried")
}

func TestSubmitCommentStoresResult(t *testing.T) {
	h := newHarness(t, &fakeClient{})

	h.sched.SubmitComment("42", "hello there")

	require.Eventually(t, func() bool {
		_, ok := h.store.Get(entity.KindComment, "c1")
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	entry, _ := h.store.Get(entity.KindComment, "c1")
	comment := entry.Entity.(*entity.Comment)
	assert.Equal(t, "42", comment.TaskGID)
	assert.Equal(t, "hello there", comment.Text)
}
