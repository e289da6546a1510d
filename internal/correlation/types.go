package correlation

import "time"

// ChannelKind identifies one of the fixed per-project channel kinds.
type ChannelKind string

const (
	KindGeneral  ChannelKind = "general"
	KindTasks    ChannelKind = "tasks"
	KindFiles    ChannelKind = "files"
	KindActivity ChannelKind = "activity"
)

// Kinds returns every channel kind a synced project owns, in creation order.
func Kinds() []ChannelKind {
	return []ChannelKind{KindGeneral, KindTasks, KindFiles, KindActivity}
}

func (k ChannelKind) String() string { return string(k) }

// Valid reports whether the kind is one of the fixed set.
func (k ChannelKind) Valid() bool {
	switch k {
	case KindGeneral, KindTasks, KindFiles, KindActivity:
		return true
	}
	return false
}

// TenantGuildLink maps a tenant to its Discord guild. At most one guild per
// tenant; created by the setup wizard and never auto-deleted.
type TenantGuildLink struct {
	TenantID       string `json:"tenant_id"`
	GuildID        string `json:"guild_id"`
	ParentCategory string `json:"parent_category,omitempty"`
	// RoleMap maps an internal membership role to the Discord role ids a
	// member with that role should hold.
	RoleMap   map[string][]string `json:"role_map,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// ProjectChannelLink maps one project channel kind to its Discord channel.
type ProjectChannelLink struct {
	ProjectID string      `json:"project_id"`
	TenantID  string      `json:"tenant_id"`
	Kind      ChannelKind `json:"kind"`
	GuildID   string      `json:"guild_id"`
	ChannelID string      `json:"channel_id"`
	Archived  bool        `json:"archived"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// TaskPostingLink maps a task to its single live posting. An update replaces
// the message and overwrites MessageID; there is never more than one live
// posting per task.
type TaskPostingLink struct {
	TaskID    string    `json:"task_id"`
	ProjectID string    `json:"project_id"`
	ChannelID string    `json:"channel_id"`
	MessageID string    `json:"message_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CategoryLink maps a tenant category to its Discord category channel.
type CategoryLink struct {
	TenantID   string    `json:"tenant_id"`
	CategoryID string    `json:"category_id"`
	ExternalID string    `json:"external_id"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
