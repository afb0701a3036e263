package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kestreldev/kestrel/internal/core/entity"
	"github.com/kestreldev/kestrel/internal/core/richtext"
)

// Response envelopes. Asana wraps every payload in {"data": ...} and
// appends next_page on paginated listings.
type dataEnvelope struct {
	Data json.RawMessage `json:"data"`
}

type listEnvelope struct {
	Data     []json.RawMessage `json:"data"`
	NextPage *nextPage         `json:"next_page"`
}

type nextPage struct {
	Offset string `json:"offset"`
}

type taskDTO struct {
	Gid        string        `json:"gid"`
	Name       string        `json:"name"`
	Notes      string        `json:"notes"`
	HTMLNotes  string        `json:"html_notes"`
	Completed  bool          `json:"completed"`
	DueOn      string        `json:"due_on"` // YYYY-MM-DD
	DueAt      string        `json:"due_at"` // RFC 3339
	Assignee   *userDTO      `json:"assignee"`
	Projects   []projectDTO  `json:"projects"`
	Tags       []tagDTO      `json:"tags"`
	Workspace  *workspaceDTO `json:"workspace"`
	CreatedAt  string        `json:"created_at"`
	ModifiedAt string        `json:"modified_at"`
}

type projectDTO struct {
	Gid        string        `json:"gid"`
	Name       string        `json:"name"`
	Notes      string        `json:"notes"`
	Color      string        `json:"color"`
	Archived   bool          `json:"archived"`
	Workspace  *workspaceDTO `json:"workspace"`
	CreatedAt  string        `json:"created_at"`
	ModifiedAt string        `json:"modified_at"`
}

type workspaceDTO struct {
	Gid            string `json:"gid"`
	Name           string `json:"name"`
	IsOrganization bool   `json:"is_organization"`
}

type userDTO struct {
	Gid   string    `json:"gid"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Photo *photoDTO `json:"photo"`
}

type photoDTO struct {
	Image60 string `json:"image_60x60"`
}

type tagDTO struct {
	Gid  string `json:"gid"`
	Name string `json:"name"`
}

type storyDTO struct {
	Gid             string   `json:"gid"`
	Text            string   `json:"text"`
	HTMLText        string   `json:"html_text"`
	CreatedBy       *userDTO `json:"created_by"`
	CreatedAt       string   `json:"created_at"`
	ResourceSubtype string   `json:"resource_subtype"`
}

// Request bodies.
type taskUpdateDTO struct {
	Name      *string `json:"name,omitempty"`
	Notes     *string `json:"notes,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
	DueOn     *string `json:"due_on,omitempty"`
	Assignee  *string `json:"assignee,omitempty"`
}

type storyCreateDTO struct {
	Text string `json:"text"`
}

func updateDTO(u entity.TaskUpdate) taskUpdateDTO {
	dto := taskUpdateDTO{
		Name:      u.Name,
		Notes:     u.Notes,
		Completed: u.Completed,
		Assignee:  u.Assignee,
	}
	if u.DueOn != nil {
		// Asana clears due_on with an explicit null, which omitempty
		// would swallow; send the empty string through a pointer so
		// the field is always serialized when covered.
		dto.DueOn = u.DueOn
	}
	return dto
}

func (d taskDTO) toEntity() (*entity.Task, error) {
	if d.Gid == "" {
		return nil, fmt.Errorf("task missing gid")
	}

	modified, err := parseRFC3339(d.ModifiedAt)
	if err != nil {
		return nil, fmt.Errorf("task %s: bad modified_at: %w", d.Gid, err)
	}
	created, err := parseRFC3339(d.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("task %s: bad created_at: %w", d.Gid, err)
	}

	t := &entity.Task{
		Gid:        d.Gid,
		Name:       d.Name,
		Completed:  d.Completed,
		CreatedAt:  created,
		ModifiedAt: modified,
	}

	// Prefer html_notes; normalization happens here at ingestion so
	// the render path never touches markup.
	if d.HTMLNotes != "" {
		t.Notes = richtext.Normalize(d.HTMLNotes)
	} else {
		t.Notes = d.Notes
	}

	// Prefer the exact timestamp over the bare date.
	if d.DueAt != "" {
		if due, err := parseRFC3339(d.DueAt); err == nil {
			t.DueAt = &due
		}
	} else if d.DueOn != "" {
		if due, err := time.ParseInLocation("2006-01-02", d.DueOn, time.UTC); err == nil {
			t.DueAt = &due
		}
	}

	if d.Assignee != nil {
		t.AssigneeGID = d.Assignee.Gid
		t.AssigneeName = d.Assignee.Name
	}
	for _, p := range d.Projects {
		t.ProjectGIDs = append(t.ProjectGIDs, p.Gid)
	}
	for _, tag := range d.Tags {
		t.Tags = append(t.Tags, tag.Name)
	}
	if d.Workspace != nil {
		t.WorkspaceGID = d.Workspace.Gid
	}
	return t, nil
}

func (d projectDTO) toEntity() (*entity.Project, error) {
	if d.Gid == "" {
		return nil, fmt.Errorf("project missing gid")
	}

	p := &entity.Project{
		Gid:      d.Gid,
		Name:     d.Name,
		Notes:    d.Notes,
		Color:    d.Color,
		Archived: d.Archived,
	}
	if d.Workspace != nil {
		p.WorkspaceGID = d.Workspace.Gid
	}
	// Project listings omit timestamps unless requested; fall back to
	// the zero time, which always loses version resolution.
	p.CreatedAt, _ = parseRFC3339(d.CreatedAt)
	p.ModifiedAt, _ = parseRFC3339(d.ModifiedAt)
	return p, nil
}

func (d workspaceDTO) toEntity(fetchedAt time.Time) (*entity.Workspace, error) {
	if d.Gid == "" {
		return nil, fmt.Errorf("workspace missing gid")
	}
	return &entity.Workspace{
		Gid:            d.Gid,
		Name:           d.Name,
		IsOrganization: d.IsOrganization,
		FetchedAt:      fetchedAt,
	}, nil
}

func (d userDTO) toEntity(fetchedAt time.Time) (*entity.User, error) {
	if d.Gid == "" {
		return nil, fmt.Errorf("user missing gid")
	}
	u := &entity.User{
		Gid:       d.Gid,
		Name:      d.Name,
		Email:     d.Email,
		FetchedAt: fetchedAt,
	}
	if d.Photo != nil {
		u.PhotoURL = d.Photo.Image60
	}
	return u, nil
}

func (d storyDTO) toEntity(taskGID string) (*entity.Comment, error) {
	if d.Gid == "" {
		return nil, fmt.Errorf("story missing gid")
	}
	created, err := parseRFC3339(d.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("story %s: bad created_at: %w", d.Gid, err)
	}

	c := &entity.Comment{
		Gid:             d.Gid,
		TaskGID:         taskGID,
		ResourceSubtype: d.ResourceSubtype,
		CreatedAt:       created,
	}
	if d.HTMLText != "" {
		c.Text = richtext.Normalize(d.HTMLText)
	} else {
		c.Text = d.Text
	}
	if d.CreatedBy != nil {
		c.AuthorGID = d.CreatedBy.Gid
		c.AuthorName = d.CreatedBy.Name
	}
	return c, nil
}

func parseRFC3339(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	return time.Parse(time.RFC3339, s)
}
