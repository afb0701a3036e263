// Package entity defines the domain objects mirrored from the remote
// Asana workspace: workspaces, projects, tasks, comments, and users.
package entity

import "time"

// Kind identifies one of the closed set of entity kinds.
type Kind string

const (
	KindWorkspace Kind = "workspace"
	KindProject   Kind = "project"
	KindTask      Kind = "task"
	KindComment   Kind = "comment"
	KindUser      Kind = "user"
)

// Kinds lists every entity kind, used for exhaustive per-kind config.
var Kinds = []Kind{KindWorkspace, KindProject, KindTask, KindComment, KindUser}

// Entity is the closed union over remote domain objects. Every variant
// carries a globally unique gid per kind, a freshness marker from the
// remote system, and an optional parent back-reference. Parents are
// plain gids, never pointers, so the entity graph stays acyclic in
// ownership terms.
type Entity interface {
	GID() string
	Kind() Kind
	// Modified is the remote freshness marker used for
	// last-writer-wins resolution in the store.
	Modified() time.Time
	// Parent returns the gid of the logical parent entity, or "" when
	// the entity is a root (workspaces, users).
	Parent() string
	// SearchText is the projection indexed by the search layer.
	SearchText() string
}

// Field names a mutable task field for edit-intent conflict tracking.
type Field string

const (
	FieldName      Field = "name"
	FieldNotes     Field = "notes"
	FieldCompleted Field = "completed"
	FieldDue       Field = "due"
	FieldAssignee  Field = "assignee"
)

// Key returns the store key for a kind/gid pair. Gids are unique per
// kind, not across kinds, so keys are namespaced.
func Key(kind Kind, gid string) string {
	return string(kind) + ":" + gid
}
