package entity

import "time"

// Project is a remote Asana project.
type Project struct {
	Gid          string    `json:"gid"`
	Name         string    `json:"name"`
	Notes        string    `json:"notes,omitempty"`
	Color        string    `json:"color,omitempty"`
	Archived     bool      `json:"archived"`
	WorkspaceGID string    `json:"workspace_gid"`
	CreatedAt    time.Time `json:"created_at"`
	ModifiedAt   time.Time `json:"modified_at"`
}

func (p *Project) GID() string         { return p.Gid }
func (p *Project) Kind() Kind          { return KindProject }
func (p *Project) Modified() time.Time { return p.ModifiedAt }
func (p *Project) Parent() string      { return p.WorkspaceGID }
func (p *Project) SearchText() string  { return p.Name }
