// Package api implements the Asana REST client consumed by the sync
// scheduler and the non-interactive CLI commands.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kestreldev/kestrel/internal/core/entity"
	"github.com/kestreldev/kestrel/internal/core/logging"
)

const defaultBaseURL = "https://app.asana.com/api/1.0"

// Fields requested on task reads. Asana returns compact records
// without an explicit field list.
const taskOptFields = "name,notes,html_notes,completed,due_on,due_at," +
	"assignee.name,projects.name,tags.name,workspace.name,created_at,modified_at"

const storyOptFields = "text,html_text,created_by.name,created_at,resource_subtype"

// Client talks to the Asana REST API with bearer token auth.
type Client struct {
	httpc    *http.Client
	baseURL  string
	pageSize int
	log      zerolog.Logger
	now      func() time.Time

	mu    sync.RWMutex
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API root (tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpc = h }
}

// WithPageSize sets the listing page size (1-100).
func WithPageSize(n int) Option {
	return func(c *Client) { c.pageSize = n }
}

// New creates a client authenticated with the given personal access token.
func New(token string, opts ...Option) *Client {
	c := &Client{
		httpc:    &http.Client{},
		baseURL:  defaultBaseURL,
		pageSize: 50,
		token:    token,
		log:      logging.Component("api"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken swaps the bearer token, e.g. after re-authentication.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// CurrentUser fetches the authenticated user.
func (c *Client) CurrentUser(ctx context.Context) (*entity.User, error) {
	var dto userDTO
	if err := c.getOne(ctx, "/users/me", nil, &dto); err != nil {
		return nil, err
	}
	return dto.toEntity(c.now())
}

// Fetch retrieves one page of the given scope. An empty pageToken
// starts from the beginning; the returned Page carries the token for
// the next call, empty when exhausted. Malformed entities within a
// page are dropped with a logged diagnostic; the rest of the page is
// returned.
func (c *Client) Fetch(ctx context.Context, scope Scope, pageToken string) (Page, error) {
	switch scope.Kind {
	case entity.KindUser:
		return c.fetchUser(ctx, scope)
	case entity.KindWorkspace:
		return c.fetchList(ctx, "/workspaces", nil, pageToken, c.decodeWorkspace)
	case entity.KindProject:
		q := url.Values{"workspace": {scope.WorkspaceGID}, "archived": {"false"}}
		return c.fetchList(ctx, "/projects", q, pageToken, c.decodeProject)
	case entity.KindTask:
		if scope.GID != "" {
			return c.fetchTask(ctx, scope.GID)
		}
		return c.fetchList(ctx, "/tasks", taskQuery(scope), pageToken, c.decodeTask)
	case entity.KindComment:
		path := "/tasks/" + scope.TaskGID + "/stories"
		q := url.Values{"opt_fields": {storyOptFields}}
		return c.fetchList(ctx, path, q, pageToken, c.decodeStory(scope.TaskGID))
	}
	return Page{}, fmt.Errorf("unsupported scope kind %q", scope.Kind)
}

// UpdateTask submits a partial task patch and returns the confirmed
// remote state.
func (c *Client) UpdateTask(ctx context.Context, gid string, update entity.TaskUpdate) (*entity.Task, error) {
	var dto taskDTO
	q := url.Values{"opt_fields": {taskOptFields}}
	if err := c.send(ctx, http.MethodPut, "/tasks/"+gid, q, updateDTO(update), &dto); err != nil {
		return nil, err
	}
	return dto.toEntity()
}

// CreateComment posts a comment story on a task.
func (c *Client) CreateComment(ctx context.Context, taskGID, text string) (*entity.Comment, error) {
	var dto storyDTO
	q := url.Values{"opt_fields": {storyOptFields}}
	if err := c.send(ctx, http.MethodPost, "/tasks/"+taskGID+"/stories", q, storyCreateDTO{Text: text}, &dto); err != nil {
		return nil, err
	}
	return dto.toEntity(taskGID)
}

func taskQuery(scope Scope) url.Values {
	q := url.Values{"opt_fields": {taskOptFields}}
	if scope.WorkspaceGID != "" {
		q.Set("workspace", scope.WorkspaceGID)
	}
	if scope.ProjectGID != "" {
		q.Set("project", scope.ProjectGID)
	}
	if scope.AssigneeGID != "" {
		q.Set("assignee", scope.AssigneeGID)
	}
	if !scope.IncludeCompleted {
		// Excludes tasks completed before now, i.e. incomplete only.
		q.Set("completed_since", "now")
	}
	return q
}

func (c *Client) fetchUser(ctx context.Context, scope Scope) (Page, error) {
	gid := scope.GID
	if gid == "" {
		gid = "me"
	}
	var dto userDTO
	if err := c.getOne(ctx, "/users/"+gid, nil, &dto); err != nil {
		return Page{}, err
	}
	u, err := dto.toEntity(c.now())
	if err != nil {
		return Page{}, err
	}
	return Page{Entities: []entity.Entity{u}}, nil
}

func (c *Client) fetchTask(ctx context.Context, gid string) (Page, error) {
	var dto taskDTO
	q := url.Values{"opt_fields": {taskOptFields}}
	if err := c.getOne(ctx, "/tasks/"+gid, q, &dto); err != nil {
		return Page{}, err
	}
	t, err := dto.toEntity()
	if err != nil {
		return Page{}, err
	}
	return Page{Entities: []entity.Entity{t}}, nil
}

type decodeFunc func(json.RawMessage) (entity.Entity, error)

func (c *Client) decodeTask(raw json.RawMessage) (entity.Entity, error) {
	var dto taskDTO
	if err := json.Unmarshal(raw, &dto); err != nil {
		return nil, err
	}
	return dto.toEntity()
}

func (c *Client) decodeProject(raw json.RawMessage) (entity.Entity, error) {
	var dto projectDTO
	if err := json.Unmarshal(raw, &dto); err != nil {
		return nil, err
	}
	return dto.toEntity()
}

func (c *Client) decodeWorkspace(raw json.RawMessage) (entity.Entity, error) {
	var dto workspaceDTO
	if err := json.Unmarshal(raw, &dto); err != nil {
		return nil, err
	}
	return dto.toEntity(c.now())
}

func (c *Client) decodeStory(taskGID string) decodeFunc {
	return func(raw json.RawMessage) (entity.Entity, error) {
		var dto storyDTO
		if err := json.Unmarshal(raw, &dto); err != nil {
			return nil, err
		}
		return dto.toEntity(taskGID)
	}
}

func (c *Client) fetchList(ctx context.Context, path string, q url.Values, pageToken string, decode decodeFunc) (Page, error) {
	if q == nil {
		q = url.Values{}
	}
	q.Set("limit", strconv.Itoa(c.pageSize))
	if pageToken != "" {
		q.Set("offset", pageToken)
	}

	body, err := c.do(ctx, http.MethodGet, path, q, nil)
	if err != nil {
		return Page{}, err
	}

	var env listEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Page{}, fmt.Errorf("parse list response: %w", err)
	}

	page := Page{}
	for _, raw := range env.Data {
		e, err := decode(raw)
		if err != nil {
			// One malformed entity must not sink the page.
			c.log.Warn().Err(err).Str("path", path).Msg("dropping malformed entity")
			continue
		}
		page.Entities = append(page.Entities, e)
	}
	if env.NextPage != nil {
		page.NextPage = env.NextPage.Offset
	}
	return page, nil
}

func (c *Client) getOne(ctx context.Context, path string, q url.Values, dest any) error {
	body, err := c.do(ctx, http.MethodGet, path, q, nil)
	if err != nil {
		return err
	}
	return decodeEnvelope(body, dest)
}

func (c *Client) send(ctx context.Context, method, path string, q url.Values, payload, dest any) error {
	// Asana wraps request bodies the same way as responses.
	body, err := json.Marshal(map[string]any{"data": payload})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	resp, err := c.do(ctx, method, path, q, body)
	if err != nil {
		return err
	}
	return decodeEnvelope(resp, dest)
}

func decodeEnvelope(body []byte, dest any) error {
	var env dataEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	if err := json.Unmarshal(env.Data, dest); err != nil {
		return fmt.Errorf("parse response data: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body []byte) ([]byte, error) {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		// Surface the context error so cancellation classifies cleanly.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}

	apiErr := &Error{Status: resp.StatusCode, Message: errorMessage(data)}
	if resp.StatusCode == http.StatusTooManyRequests {
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			apiErr.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return nil, apiErr
}

// errorMessage pulls the first human-readable message out of an Asana
// error body.
func errorMessage(body []byte) string {
	var parsed struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && len(parsed.Errors) > 0 {
		return parsed.Errors[0].Message
	}
	return ""
}
