package entity

import "time"

// Workspace is a remote Asana workspace or organization.
type Workspace struct {
	Gid            string    `json:"gid"`
	Name           string    `json:"name"`
	IsOrganization bool      `json:"is_organization"`
	FetchedAt      time.Time `json:"-"`
}

func (w *Workspace) GID() string { return w.Gid }
func (w *Workspace) Kind() Kind  { return KindWorkspace }

// Modified: the workspaces endpoint exposes no modification timestamp,
// so the local fetch time stands in. Re-fetches therefore always win.
func (w *Workspace) Modified() time.Time { return w.FetchedAt }
func (w *Workspace) Parent() string      { return "" }
func (w *Workspace) SearchText() string  { return w.Name }

// User is a remote Asana user.
type User struct {
	Gid       string    `json:"gid"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	PhotoURL  string    `json:"photo_url,omitempty"`
	FetchedAt time.Time `json:"-"`
}

func (u *User) GID() string         { return u.Gid }
func (u *User) Kind() Kind          { return KindUser }
func (u *User) Modified() time.Time { return u.FetchedAt }
func (u *User) Parent() string      { return "" }
func (u *User) SearchText() string  { return u.Name + " " + u.Email }
