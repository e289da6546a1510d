package ingest

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Topic names are part of the wire contract with the web application; the
// exact strings matter for compatibility.
const (
	TopicUserLinked           = "user-linked"
	TopicUserUnlinked         = "user-unlinked"
	TopicUserRoleChanged      = "user-role-changed"
	TopicUserDeactivated      = "user-deactivated"
	TopicProjectCreated       = "project-created"
	TopicProjectArchived      = "project-archived"
	TopicProjectMemberAdded   = "project-member-added"
	TopicProjectMemberRemoved = "project-member-removed"
	TopicTaskCreated          = "task-created"
	TopicTaskUpdated          = "task-updated"
	TopicTaskDeleted          = "task-deleted"
	TopicTaskAssigned         = "task-assigned"
	TopicFileUploaded         = "file-uploaded"
	TopicCategoryCreated      = "category-created"
	TopicCategoryDeleted      = "category-deleted"
	TopicCategorySync         = "category-sync"
)

// Event is one claimed outbox row: a topic plus its flat JSON payload.
type Event struct {
	ID        string
	Topic     string
	EntityKey string
	Payload   json.RawMessage
	CreatedAt time.Time
}

// UserEvent covers user-linked, user-unlinked, user-role-changed and
// user-deactivated payloads.
type UserEvent struct {
	TenantID      string `json:"tenant_id" validate:"required"`
	UserID        string `json:"user_id"`
	DiscordUserID string `json:"discord_user_id" validate:"required"`
	Role          string `json:"role"`
}

// ProjectEvent covers project-created and project-archived payloads.
type ProjectEvent struct {
	TenantID  string `json:"tenant_id" validate:"required"`
	ProjectID string `json:"project_id" validate:"required"`
	Name      string `json:"name"`
}

// MemberEvent covers project-member-added and project-member-removed.
type MemberEvent struct {
	ProjectID string `json:"project_id" validate:"required"`
	UserID    string `json:"user_id" validate:"required"`
}

// TaskEvent is the flat task snapshot carried by task lifecycle topics.
type TaskEvent struct {
	TaskID       string     `json:"task_id" validate:"required"`
	ProjectID    string     `json:"project_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Status       string     `json:"status"`
	Priority     string     `json:"priority"`
	AssigneeID   string     `json:"assignee_id"`
	AssigneeName string     `json:"assignee_name"`
	ProjectName  string     `json:"project_name"`
	URL          string     `json:"url"`
	DueDate      *time.Time `json:"due_date"`
}

// FileEvent is the file-uploaded payload.
type FileEvent struct {
	ProjectID   string `json:"project_id" validate:"required"`
	FileName    string `json:"file_name" validate:"required"`
	AuthorName  string `json:"author_name"`
	ProjectName string `json:"project_name"`
}

// CategoryEvent covers category-created and category-deleted.
type CategoryEvent struct {
	TenantID   string `json:"tenant_id" validate:"required"`
	CategoryID string `json:"category_id" validate:"required"`
	Name       string `json:"name"`
	Type       string `json:"type"`
}

// CategorySyncEvent is the declarative category-sync payload.
type CategorySyncEvent struct {
	TenantID   string `json:"tenant_id" validate:"required"`
	GuildID    string `json:"guild_id"`
	Categories []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"categories"`
}

// decode unmarshals and validates one payload. A failure here means the
// event is malformed and must never reach a reconciler.
func decode[T any](validate *validator.Validate, payload json.RawMessage) (T, error) {
	var out T
	if err := json.Unmarshal(payload, &out); err != nil {
		return out, fmt.Errorf("decode payload: %w", err)
	}
	if validate != nil {
		if err := validate.Struct(&out); err != nil {
			return out, fmt.Errorf("validate payload: %w", err)
		}
	}
	return out, nil
}

// EntityKey derives the serialization key for an event when the publisher
// did not set one. Events sharing a key are processed one at a time, in
// order; everything else runs concurrently.
func (e Event) entityKey() string {
	if key := strings.TrimSpace(e.EntityKey); key != "" {
		return key
	}
	var ids struct {
		TaskID    string `json:"task_id"`
		ProjectID string `json:"project_id"`
		TenantID  string `json:"tenant_id"`
	}
	if err := json.Unmarshal(e.Payload, &ids); err == nil {
		for _, key := range []string{ids.TaskID, ids.ProjectID, ids.TenantID} {
			if key != "" {
				return key
			}
		}
	}
	return e.Topic
}
