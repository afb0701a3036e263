package api

import (
	"strings"

	"github.com/kestreldev/kestrel/internal/core/entity"
)

// Scope describes one refreshable slice of remote data. Exactly one
// shape is valid per kind: a single entity by gid, or a list under a
// parent (workspace, project, or task).
type Scope struct {
	Kind entity.Kind

	// GID selects a single entity. For KindUser, the literal "me"
	// resolves to the authenticated user.
	GID string

	// List filters. WorkspaceGID scopes projects and tasks,
	// ProjectGID narrows tasks to a project, AssigneeGID to a user,
	// TaskGID scopes comments.
	WorkspaceGID string
	ProjectGID   string
	AssigneeGID  string
	TaskGID      string

	// IncludeCompleted widens task lists to completed work. The
	// default mirrors the main view: incomplete tasks only.
	IncludeCompleted bool
}

// Key is the coalescing identity: two refresh requests with equal keys
// target the same remote data and collapse into one job.
func (s Scope) Key() string {
	parts := []string{string(s.Kind), s.GID, s.WorkspaceGID, s.ProjectGID, s.AssigneeGID, s.TaskGID}
	if s.IncludeCompleted {
		parts = append(parts, "all")
	}
	return strings.Join(parts, "|")
}

// Target returns the most specific id the scope refreshes, used for
// status reporting.
func (s Scope) Target() string {
	switch {
	case s.GID != "":
		return s.GID
	case s.TaskGID != "":
		return s.TaskGID
	case s.ProjectGID != "":
		return s.ProjectGID
	case s.WorkspaceGID != "":
		return s.WorkspaceGID
	}
	return ""
}

// Page is one page of fetched entities plus the opaque continuation
// token, empty when the listing is exhausted.
type Page struct {
	Entities []entity.Entity
	NextPage string
}
