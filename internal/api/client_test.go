package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestreldev/kestrel/internal/core/entity"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New("test-token", WithBaseURL(srv.URL), WithPageSize(2))
}

func TestFetchTasksPaginates(t *testing.T) {
	var gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/tasks", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		assert.Equal(t, "now", r.URL.Query().Get("completed_since"))

		if r.URL.Query().Get("offset") == "" {
			w.Write([]byte(`{
				"data": [
					{"gid": "1", "name": "first", "created_at": "2026-01-01T00:00:00Z", "modified_at": "2026-01-02T00:00:00Z"},
					{"gid": "2", "name": "second", "created_at": "2026-01-01T00:00:00Z", "modified_at": "2026-01-03T00:00:00Z"}
				],
				"next_page": {"offset": "tok123"}
			}`))
			return
		}
		assert.Equal(t, "tok123", r.URL.Query().Get("offset"))
		w.Write([]byte(`{"data": [
			{"gid": "3", "name": "third", "created_at": "2026-01-01T00:00:00Z", "modified_at": "2026-01-04T00:00:00Z"}
		]}`))
	})

	scope := Scope{Kind: entity.KindTask, WorkspaceGID: "w1", AssigneeGID: "me"}

	page1, err := c.Fetch(context.Background(), scope, "")
	require.NoError(t, err)
	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Len(t, page1.Entities, 2)
	assert.Equal(t, "tok123", page1.NextPage)

	page2, err := c.Fetch(context.Background(), scope, page1.NextPage)
	require.NoError(t, err)
	assert.Len(t, page2.Entities, 1)
	assert.Empty(t, page2.NextPage)

	task := page2.Entities[0].(*entity.Task)
	assert.Equal(t, "third", task.Name)
}

func TestFetchDropsMalformedEntities(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		// Second record is missing its gid, third has a bad timestamp.
		w.Write([]byte(`{"data": [
			{"gid": "1", "name": "good", "created_at": "2026-01-01T00:00:00Z", "modified_at": "2026-01-02T00:00:00Z"},
			{"name": "no gid", "created_at": "2026-01-01T00:00:00Z", "modified_at": "2026-01-02T00:00:00Z"},
			{"gid": "3", "name": "bad time", "created_at": "nope", "modified_at": "nope"}
		]}`))
	})

	page, err := c.Fetch(context.Background(), Scope{Kind: entity.KindTask, WorkspaceGID: "w"}, "")
	require.NoError(t, err)
	require.Len(t, page.Entities, 1)
	assert.Equal(t, "1", page.Entities[0].GID())
}

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		headers    map[string]string
		wantClass  Class
	}{
		{"unauthorized", http.StatusUnauthorized, nil, ClassUnauthorized},
		{"forbidden", http.StatusForbidden, nil, ClassUnauthorized},
		{"not found", http.StatusNotFound, nil, ClassRejected},
		{"validation", http.StatusBadRequest, nil, ClassRejected},
		{"rate limited", http.StatusTooManyRequests, map[string]string{"Retry-After": "7"}, ClassTransient},
		{"server error", http.StatusInternalServerError, nil, ClassTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				for k, v := range tt.headers {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"errors": [{"message": "nope"}]}`))
			})

			_, err := c.Fetch(context.Background(), Scope{Kind: entity.KindWorkspace}, "")
			require.Error(t, err)
			assert.Equal(t, tt.wantClass, Classify(err))

			if tt.status == http.StatusTooManyRequests {
				assert.Equal(t, 7*time.Second, RetryAfter(err))
			}
		})
	}
}

func TestClassifyCancellation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.Write([]byte(`{"data": []}`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Fetch(ctx, Scope{Kind: entity.KindWorkspace}, "")
	require.Error(t, err)
	assert.Equal(t, ClassCancelled, Classify(err))
}

func TestUpdateTaskSendsEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/tasks/42", r.URL.Path)

		var body struct {
			Data map[string]any `json:"data"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, true, body.Data["completed"])
		assert.NotContains(t, body.Data, "name")

		w.Write([]byte(`{"data": {"gid": "42", "name": "t", "completed": true,
			"created_at": "2026-01-01T00:00:00Z", "modified_at": "2026-02-01T00:00:00Z"}}`))
	})

	completed := true
	task, err := c.UpdateTask(context.Background(), "42", entity.TaskUpdate{Completed: &completed})
	require.NoError(t, err)
	assert.True(t, task.Completed)
	assert.Equal(t, "42", task.Gid)
}

func TestCreateComment(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/tasks/42/stories", r.URL.Path)
		w.Write([]byte(`{"data": {"gid": "900", "text": "hello",
			"resource_subtype": "comment_added", "created_at": "2026-02-01T00:00:00Z"}}`))
	})

	comment, err := c.CreateComment(context.Background(), "42", "hello")
	require.NoError(t, err)
	assert.Equal(t, "42", comment.TaskGID)
	assert.True(t, comment.IsUserComment())
}

func TestScopeKeyCoalescingIdentity(t *testing.T) {
	a := Scope{Kind: entity.KindTask, WorkspaceGID: "w", AssigneeGID: "u"}
	b := Scope{Kind: entity.KindTask, WorkspaceGID: "w", AssigneeGID: "u"}
	c := Scope{Kind: entity.KindTask, WorkspaceGID: "w", AssigneeGID: "u", IncludeCompleted: true}

	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
}
