package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/crewlane/guildsync/internal/channels"
	"github.com/crewlane/guildsync/internal/correlation"
	"github.com/crewlane/guildsync/internal/notify"
	"github.com/crewlane/guildsync/internal/postings"
	"github.com/crewlane/guildsync/internal/roles"
	"github.com/crewlane/guildsync/internal/webapp"
)

// HandlerFunc processes one decoded event. Returning an error marks the
// row failed; skips and degraded side effects are not errors.
type HandlerFunc func(ctx context.Context, ev Event) error

type guildResolver interface {
	GetTenantGuild(ctx context.Context, tenantID string) (correlation.TenantGuildLink, error)
}

// Router maps topics onto the reconcilers. It owns payload decoding so a
// malformed event fails here, with a reason, before any external call.
type Router struct {
	logger   *slog.Logger
	validate *validator.Validate
	handlers map[string]HandlerFunc

	channels *channels.Reconciler
	postings *postings.Reconciler
	roles    *roles.Reconciler
	links    guildResolver
	notifier *notify.Activity
}

func NewRouter(log *slog.Logger, ch *channels.Reconciler, po *postings.Reconciler, ro *roles.Reconciler, links guildResolver, notifier *notify.Activity) *Router {
	if log == nil {
		log = slog.Default()
	}
	r := &Router{
		logger:   log.With(slog.String("component", "ingest")),
		validate: validator.New(),
		channels: ch,
		postings: po,
		roles:    ro,
		links:    links,
		notifier: notifier,
	}
	r.handlers = map[string]HandlerFunc{
		TopicUserLinked:           r.handleUserLinked,
		TopicUserUnlinked:         r.handleUserUnlinked,
		TopicUserRoleChanged:      r.handleUserRoleChanged,
		TopicUserDeactivated:      r.handleUserUnlinked,
		TopicProjectCreated:       r.handleProjectCreated,
		TopicProjectArchived:      r.handleProjectArchived,
		TopicProjectMemberAdded:   r.memberHandler(true),
		TopicProjectMemberRemoved: r.memberHandler(false),
		TopicTaskCreated:          r.handleTaskCreated,
		TopicTaskUpdated:          r.handleTaskUpdated,
		TopicTaskDeleted:          r.handleTaskDeleted,
		TopicTaskAssigned:         r.handleTaskAssigned,
		TopicFileUploaded:         r.handleFileUploaded,
		TopicCategoryCreated:      r.handleCategoryCreated,
		TopicCategoryDeleted:      r.handleCategoryDeleted,
		TopicCategorySync:         r.handleCategorySync,
	}
	return r
}

// Dispatch runs the handler registered for the event's topic.
func (r *Router) Dispatch(ctx context.Context, ev Event) error {
	handler, ok := r.handlers[ev.Topic]
	if !ok {
		return fmt.Errorf("no handler for topic %q", ev.Topic)
	}
	return handler(ctx, ev)
}

func (r *Router) handleUserLinked(ctx context.Context, ev Event) error {
	payload, err := decode[UserEvent](r.validate, ev.Payload)
	if err != nil {
		return err
	}
	return r.roles.UserLinked(ctx, payload.TenantID, payload.UserID, payload.DiscordUserID)
}

func (r *Router) handleUserUnlinked(ctx context.Context, ev Event) error {
	payload, err := decode[UserEvent](r.validate, ev.Payload)
	if err != nil {
		return err
	}
	return r.roles.UserUnlinked(ctx, payload.TenantID, payload.DiscordUserID)
}

func (r *Router) handleUserRoleChanged(ctx context.Context, ev Event) error {
	payload, err := decode[UserEvent](r.validate, ev.Payload)
	if err != nil {
		return err
	}
	return r.roles.RoleChanged(ctx, payload.TenantID, payload.DiscordUserID, payload.Role)
}

func (r *Router) handleProjectCreated(ctx context.Context, ev Event) error {
	payload, err := decode[ProjectEvent](r.validate, ev.Payload)
	if err != nil {
		return err
	}
	_, err = r.channels.EnsureProjectChannels(ctx, payload.TenantID, payload.ProjectID, payload.Name)
	if errors.Is(err, correlation.ErrTenantNotLinked) {
		r.logger.Debug("project created for unlinked tenant, skipping",
			slog.String("tenant_id", payload.TenantID),
			slog.String("project_id", payload.ProjectID))
		return nil
	}
	return err
}

func (r *Router) handleProjectArchived(ctx context.Context, ev Event) error {
	payload, err := decode[ProjectEvent](r.validate, ev.Payload)
	if err != nil {
		return err
	}
	return r.channels.ArchiveProjectChannels(ctx, payload.TenantID, payload.ProjectID)
}

func (r *Router) memberHandler(added bool) HandlerFunc {
	return func(ctx context.Context, ev Event) error {
		payload, err := decode[MemberEvent](r.validate, ev.Payload)
		if err != nil {
			return err
		}
		return r.roles.ProjectMemberChanged(ctx, payload.ProjectID, payload.UserID, added)
	}
}

func (r *Router) handleTaskCreated(ctx context.Context, ev Event) error {
	payload, err := decode[TaskEvent](r.validate, ev.Payload)
	if err != nil {
		return err
	}
	outcome, err := r.postings.TaskCreated(ctx, payload.task())
	r.logOutcome(ev.Topic, payload.TaskID, outcome)
	return err
}

func (r *Router) handleTaskUpdated(ctx context.Context, ev Event) error {
	payload, err := decode[TaskEvent](r.validate, ev.Payload)
	if err != nil {
		return err
	}
	outcome, err := r.postings.TaskUpdated(ctx, payload.task())
	r.logOutcome(ev.Topic, payload.TaskID, outcome)
	return err
}

func (r *Router) handleTaskDeleted(ctx context.Context, ev Event) error {
	payload, err := decode[TaskEvent](r.validate, ev.Payload)
	if err != nil {
		return err
	}
	outcome, err := r.postings.TaskDeleted(ctx, payload.TaskID, payload.Title)
	r.logOutcome(ev.Topic, payload.TaskID, outcome)
	return err
}

func (r *Router) handleTaskAssigned(ctx context.Context, ev Event) error {
	payload, err := decode[TaskEvent](r.validate, ev.Payload)
	if err != nil {
		return err
	}
	channelOutcome, dmOutcome, err := r.postings.TaskAssigned(ctx, payload.task(), payload.AssigneeName, payload.ProjectName)
	r.logOutcome(ev.Topic, payload.TaskID, channelOutcome)
	r.logOutcome(ev.Topic+"-dm", payload.TaskID, dmOutcome)
	return err
}

func (r *Router) handleFileUploaded(ctx context.Context, ev Event) error {
	payload, err := decode[FileEvent](r.validate, ev.Payload)
	if err != nil {
		return err
	}
	outcome := r.notifier.PostTo(ctx, payload.ProjectID, correlation.KindFiles,
		notify.FileUploaded(payload.ProjectName, payload.FileName, payload.AuthorName))
	r.logOutcome(ev.Topic, payload.ProjectID, outcome)
	return nil
}

func (r *Router) handleCategoryCreated(ctx context.Context, ev Event) error {
	payload, err := decode[CategoryEvent](r.validate, ev.Payload)
	if err != nil {
		return err
	}
	link, err := r.links.GetTenantGuild(ctx, payload.TenantID)
	if errors.Is(err, correlation.ErrTenantNotLinked) {
		r.logger.Debug("category created for unlinked tenant, skipping",
			slog.String("tenant_id", payload.TenantID))
		return nil
	}
	if err != nil {
		return err
	}
	return r.channels.EnsureCategory(ctx, link.GuildID, payload.TenantID, channels.CategorySpec{
		ID:   payload.CategoryID,
		Name: payload.Name,
		Type: payload.Type,
	})
}

func (r *Router) handleCategoryDeleted(ctx context.Context, ev Event) error {
	payload, err := decode[CategoryEvent](r.validate, ev.Payload)
	if err != nil {
		return err
	}
	return r.channels.RemoveCategory(ctx, payload.TenantID, payload.CategoryID)
}

func (r *Router) handleCategorySync(ctx context.Context, ev Event) error {
	payload, err := decode[CategorySyncEvent](r.validate, ev.Payload)
	if err != nil {
		return err
	}
	guildID := payload.GuildID
	if guildID == "" {
		link, err := r.links.GetTenantGuild(ctx, payload.TenantID)
		if errors.Is(err, correlation.ErrTenantNotLinked) {
			r.logger.Debug("category sync for unlinked tenant, skipping",
				slog.String("tenant_id", payload.TenantID))
			return nil
		}
		if err != nil {
			return err
		}
		guildID = link.GuildID
	}
	specs := make([]channels.CategorySpec, 0, len(payload.Categories))
	for _, c := range payload.Categories {
		specs = append(specs, channels.CategorySpec{ID: c.ID, Name: c.Name, Type: c.Type})
	}
	return r.channels.SyncCategoryStructure(ctx, guildID, payload.TenantID, specs)
}

func (r *Router) logOutcome(topic, taskID string, outcome notify.Outcome) {
	if outcome.IsOk() {
		return
	}
	r.logger.Info("event applied with degraded side effect",
		slog.String("topic", topic),
		slog.String("task_id", taskID),
		slog.String("status", string(outcome.Status)),
		slog.String("reason", outcome.Reason))
}

func (p TaskEvent) task() webapp.Task {
	return webapp.Task{
		ID:          p.TaskID,
		ProjectID:   p.ProjectID,
		Title:       p.Title,
		Description: p.Description,
		Status:      p.Status,
		Priority:    p.Priority,
		AssigneeID:  p.AssigneeID,
		DueDate:     p.DueDate,
		URL:         p.URL,
	}
}
