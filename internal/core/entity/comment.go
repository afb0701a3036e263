package entity

import "time"

// Comment is a user-authored story on a task. Asana models comments as
// stories with resource_subtype "comment_added"; system stories keep
// their subtype so the UI can render them differently.
type Comment struct {
	Gid             string    `json:"gid"`
	Text            string    `json:"text"`
	AuthorGID       string    `json:"author_gid,omitempty"`
	AuthorName      string    `json:"author_name,omitempty"`
	TaskGID         string    `json:"task_gid"`
	ResourceSubtype string    `json:"resource_subtype,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

func (c *Comment) GID() string { return c.Gid }
func (c *Comment) Kind() Kind  { return KindComment }

// Modified: stories are immutable in Asana, so creation time is the
// freshness marker.
func (c *Comment) Modified() time.Time { return c.CreatedAt }
func (c *Comment) Parent() string      { return c.TaskGID }
func (c *Comment) SearchText() string  { return c.Text }

// IsUserComment reports whether the story was written by a person, as
// opposed to a system-generated activity entry.
func (c *Comment) IsUserComment() bool {
	return c.ResourceSubtype == "" || c.ResourceSubtype == "comment_added"
}
