package entity

import (
	"fmt"
	"strings"
	"time"
)

// Priority is a derived urgency class, computed from due date and
// completion state rather than stored remotely.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	default:
		return "low"
	}
}

// Task is a remote Asana task mirrored locally. Notes hold the
// display-ready text produced by the rich-text normalizer at ingestion.
type Task struct {
	Gid          string     `json:"gid"`
	Name         string     `json:"name"`
	Notes        string     `json:"notes,omitempty"`
	Completed    bool       `json:"completed"`
	DueAt        *time.Time `json:"due_at,omitempty"`
	AssigneeGID  string     `json:"assignee_gid,omitempty"`
	AssigneeName string     `json:"assignee_name,omitempty"`
	ProjectGIDs  []string   `json:"project_gids,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
	WorkspaceGID string     `json:"workspace_gid"`
	CreatedAt    time.Time  `json:"created_at"`
	ModifiedAt   time.Time  `json:"modified_at"`
}

func (t *Task) GID() string         { return t.Gid }
func (t *Task) Kind() Kind          { return KindTask }
func (t *Task) Modified() time.Time { return t.ModifiedAt }

// Parent is the first containing project, or the workspace for tasks
// not filed into any project.
func (t *Task) Parent() string {
	if len(t.ProjectGIDs) > 0 {
		return t.ProjectGIDs[0]
	}
	return t.WorkspaceGID
}

func (t *Task) SearchText() string {
	parts := []string{t.Name}
	if len(t.Tags) > 0 {
		parts = append(parts, strings.Join(t.Tags, " "))
	}
	if t.AssigneeName != "" {
		parts = append(parts, t.AssigneeName)
	}
	return strings.Join(parts, " ")
}

// IsOverdue reports whether the task has a due date in the past and is
// not completed.
func (t *Task) IsOverdue(now time.Time) bool {
	return t.DueAt != nil && t.DueAt.Before(now) && !t.Completed
}

// Priority derives urgency: completed tasks are low, overdue critical,
// due today high, due within three days medium.
func (t *Task) Priority(now time.Time) Priority {
	if t.Completed || t.DueAt == nil {
		return PriorityLow
	}
	if t.IsOverdue(now) {
		return PriorityCritical
	}
	days := daysBetween(now, *t.DueAt)
	switch {
	case days == 0:
		return PriorityHigh
	case days <= 3:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// DueDisplay renders the due date relative to now: "Today", "Tomorrow",
// "In 3 days", "2 days ago", or the plain date for far-off work.
func (t *Task) DueDisplay(now time.Time) string {
	if t.DueAt == nil {
		return "No due date"
	}
	days := daysBetween(now, *t.DueAt)
	switch {
	case days == 0:
		return "Today"
	case days == 1:
		return "Tomorrow"
	case days == -1:
		return "Yesterday"
	case days < 0:
		return fmt.Sprintf("%d days ago", -days)
	case days <= 7:
		return fmt.Sprintf("In %d days", days)
	default:
		return t.DueAt.Format("2006-01-02")
	}
}

func daysBetween(from, to time.Time) int {
	fy, fm, fd := from.UTC().Date()
	ty, tm, td := to.UTC().Date()
	a := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	b := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// TaskUpdate is a partial patch against a task. Nil fields are left
// untouched; for DueOn and Assignee an explicit empty string clears the
// value remotely.
type TaskUpdate struct {
	Name      *string
	Notes     *string
	Completed *bool
	DueOn     *string // YYYY-MM-DD, "" clears
	Assignee  *string // user gid, "" unassigns
}

// Fields lists the task fields this update covers. The store protects
// exactly these fields from concurrent refresh results while the update
// is pending.
func (u TaskUpdate) Fields() []Field {
	var fields []Field
	if u.Name != nil {
		fields = append(fields, FieldName)
	}
	if u.Notes != nil {
		fields = append(fields, FieldNotes)
	}
	if u.Completed != nil {
		fields = append(fields, FieldCompleted)
	}
	if u.DueOn != nil {
		fields = append(fields, FieldDue)
	}
	if u.Assignee != nil {
		fields = append(fields, FieldAssignee)
	}
	return fields
}

// IsZero reports whether the update patches nothing.
func (u TaskUpdate) IsZero() bool {
	return len(u.Fields()) == 0
}

// ApplyTo layers the update onto a copy of the task, producing the
// optimistic local view shown while the update is in flight. The
// remote freshness marker is left untouched so a genuine remote change
// still wins version resolution.
func (u TaskUpdate) ApplyTo(t *Task) *Task {
	out := *t
	out.ProjectGIDs = append([]string(nil), t.ProjectGIDs...)
	out.Tags = append([]string(nil), t.Tags...)
	if u.Name != nil {
		out.Name = *u.Name
	}
	if u.Notes != nil {
		out.Notes = *u.Notes
	}
	if u.Completed != nil {
		out.Completed = *u.Completed
	}
	if u.DueOn != nil {
		if *u.DueOn == "" {
			out.DueAt = nil
		} else if d, err := time.ParseInLocation("2006-01-02", *u.DueOn, time.UTC); err == nil {
			out.DueAt = &d
		}
	}
	if u.Assignee != nil {
		out.AssigneeGID = *u.Assignee
		if *u.Assignee == "" {
			out.AssigneeName = ""
		}
	}
	return &out
}

// CopyFields copies the named fields from src onto dst in place. Used
// when merging a refresh result over a pending optimistic edit.
func CopyFields(dst, src *Task, fields []Field) {
	for _, f := range fields {
		switch f {
		case FieldName:
			dst.Name = src.Name
		case FieldNotes:
			dst.Notes = src.Notes
		case FieldCompleted:
			dst.Completed = src.Completed
		case FieldDue:
			dst.DueAt = src.DueAt
		case FieldAssignee:
			dst.AssigneeGID = src.AssigneeGID
			dst.AssigneeName = src.AssigneeName
		}
	}
}
