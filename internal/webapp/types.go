package webapp

import (
	"errors"
	"time"
)

// ErrNotFound indicates the web application has no record for the id.
var ErrNotFound = errors.New("webapp record not found")

// Membership roles, highest privilege first. RoleGuest is the
// lowest-privilege default when no membership row exists yet.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
	RoleGuest  = "guest"
)

type Tenant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Project struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
	Archived bool   `json:"archived"`
}

type Task struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority,omitempty"`
	AssigneeID  string     `json:"assignee_id,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	URL         string     `json:"url,omitempty"`
}

type User struct {
	ID            string `json:"id"`
	DisplayName   string `json:"display_name"`
	DiscordUserID string `json:"discord_user_id,omitempty"`
}
