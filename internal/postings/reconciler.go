// Package postings keeps the single live Discord message per task in step
// with task lifecycle events. Everything here is best effort relative to the
// web application's own write: sync failures are reported as outcomes, never
// as errors that could block the originating write.
package postings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/crewlane/guildsync/internal/correlation"
	"github.com/crewlane/guildsync/internal/gateway"
	"github.com/crewlane/guildsync/internal/notify"
	"github.com/crewlane/guildsync/internal/webapp"
)

// postingStore is the slice of the correlation store this reconciler needs.
type postingStore interface {
	GetProjectChannel(ctx context.Context, projectID string, kind correlation.ChannelKind) (correlation.ProjectChannelLink, error)
	GetTaskPosting(ctx context.Context, taskID string) (correlation.TaskPostingLink, error)
	UpsertTaskPosting(ctx context.Context, link correlation.TaskPostingLink) (correlation.TaskPostingLink, error)
	DeleteTaskPosting(ctx context.Context, taskID string) error
}

// messageGateway is the slice of the external gateway this reconciler needs.
type messageGateway interface {
	PostMessage(ctx context.Context, channelID string, msg gateway.Message) (string, error)
	DeleteMessage(ctx context.Context, channelID, messageID string) error
}

// directSender delivers the DM leg of assignment notices.
type directSender interface {
	Direct(ctx context.Context, discordUserID string, msg notify.Message) notify.Outcome
}

// directory resolves assignee account links for the DM leg.
type directory interface {
	LinkedDiscordID(ctx context.Context, userID string) (string, error)
}

// Reconciler drives the per-task posting state machine.
type Reconciler struct {
	logger    *slog.Logger
	store     postingStore
	gw        messageGateway
	directory directory
	dm        directSender
}

// NewReconciler creates a task posting Reconciler.
func NewReconciler(log *slog.Logger, store postingStore, gw messageGateway, dir directory, dm directSender) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{
		logger:    log.With(slog.String("component", "postings")),
		store:     store,
		gw:        gw,
		directory: dir,
		dm:        dm,
	}
}

// resolveTasksChannel returns the project's tasks channel, or a skip outcome
// when the project was never synced or its channels are archived.
func (r *Reconciler) resolveTasksChannel(ctx context.Context, projectID string) (correlation.ProjectChannelLink, notify.Outcome, error) {
	link, err := r.store.GetProjectChannel(ctx, projectID, correlation.KindTasks)
	if err != nil {
		if errors.Is(err, correlation.ErrChannelLinkNotFound) {
			return correlation.ProjectChannelLink{}, notify.Skipped("project not synced"), nil
		}
		return correlation.ProjectChannelLink{}, notify.Outcome{}, fmt.Errorf("resolve tasks channel: %w", err)
	}
	if link.Archived {
		return correlation.ProjectChannelLink{}, notify.Skipped("project archived"), nil
	}
	return link, notify.Ok(), nil
}

// TaskCreated posts the task card and records the posting link. A
// redelivered create finds an existing link and replaces the live card
// instead of adding a second one.
// NoPosting -> Posted.
func (r *Reconciler) TaskCreated(ctx context.Context, task webapp.Task) (notify.Outcome, error) {
	if r.store == nil || r.gw == nil {
		return notify.Outcome{}, fmt.Errorf("posting reconciler not configured")
	}
	prior, err := r.store.GetTaskPosting(ctx, task.ID)
	if err == nil {
		return r.replacePosting(ctx, task, prior, notify.TaskCreated(task))
	}
	if !errors.Is(err, correlation.ErrPostingNotFound) {
		return notify.Outcome{}, fmt.Errorf("lookup posting link: %w", err)
	}
	channel, outcome, err := r.resolveTasksChannel(ctx, task.ProjectID)
	if err != nil || !outcome.IsOk() {
		return outcome, err
	}
	messageID, err := r.gw.PostMessage(ctx, channel.ChannelID, notify.TaskCreated(task))
	if err != nil {
		r.logger.Warn("post task card failed",
			slog.String("task_id", task.ID), slog.Any("error", err))
		return notify.Warning(err.Error()), nil
	}
	if _, err := r.store.UpsertTaskPosting(ctx, correlation.TaskPostingLink{
		TaskID:    task.ID,
		ProjectID: task.ProjectID,
		ChannelID: channel.ChannelID,
		MessageID: messageID,
	}); err != nil {
		return notify.Outcome{}, fmt.Errorf("store posting link: %w", err)
	}
	return notify.Ok(), nil
}

// EnsurePosting posts the task card only when no link exists yet. The full
// sync uses it to backfill tasks whose create event was lost; a task that
// already has a live card is left untouched so a sweep never churns the
// channel.
func (r *Reconciler) EnsurePosting(ctx context.Context, task webapp.Task) (notify.Outcome, error) {
	if r.store == nil || r.gw == nil {
		return notify.Outcome{}, fmt.Errorf("posting reconciler not configured")
	}
	_, err := r.store.GetTaskPosting(ctx, task.ID)
	if err == nil {
		return notify.Skipped("posting exists"), nil
	}
	if !errors.Is(err, correlation.ErrPostingNotFound) {
		return notify.Outcome{}, fmt.Errorf("lookup posting link: %w", err)
	}
	return r.TaskCreated(ctx, task)
}

// TaskUpdated replaces the live card.
// Posted -> Posted'.
func (r *Reconciler) TaskUpdated(ctx context.Context, task webapp.Task) (notify.Outcome, error) {
	if r.store == nil || r.gw == nil {
		return notify.Outcome{}, fmt.Errorf("posting reconciler not configured")
	}
	prior, err := r.store.GetTaskPosting(ctx, task.ID)
	if err != nil {
		if errors.Is(err, correlation.ErrPostingNotFound) {
			// Never posted (or link was repaired away): treat as create.
			return r.TaskCreated(ctx, task)
		}
		return notify.Outcome{}, fmt.Errorf("lookup posting link: %w", err)
	}
	return r.replacePosting(ctx, task, prior, notify.TaskUpdated(task))
}

// replacePosting deletes the prior message (an already deleted message is
// success), posts a fresh card, and overwrites the link. The channel never
// shows more than one live card per task.
func (r *Reconciler) replacePosting(ctx context.Context, task webapp.Task, prior correlation.TaskPostingLink, msg gateway.Message) (notify.Outcome, error) {
	channel, outcome, err := r.resolveTasksChannel(ctx, task.ProjectID)
	if err != nil || !outcome.IsOk() {
		return outcome, err
	}
	if err := r.gw.DeleteMessage(ctx, prior.ChannelID, prior.MessageID); err != nil {
		r.logger.Warn("delete prior task card failed",
			slog.String("task_id", task.ID),
			slog.String("message_id", prior.MessageID),
			slog.Any("error", err),
		)
	}
	messageID, err := r.gw.PostMessage(ctx, channel.ChannelID, msg)
	if err != nil {
		r.logger.Warn("post replacement task card failed",
			slog.String("task_id", task.ID), slog.Any("error", err))
		return notify.Warning(err.Error()), nil
	}
	if _, err := r.store.UpsertTaskPosting(ctx, correlation.TaskPostingLink{
		TaskID:    task.ID,
		ProjectID: task.ProjectID,
		ChannelID: channel.ChannelID,
		MessageID: messageID,
	}); err != nil {
		return notify.Outcome{}, fmt.Errorf("store posting link: %w", err)
	}
	return notify.Ok(), nil
}

// TaskDeleted removes the live card and the link, then posts a standalone
// removal notice for audit visibility.
// Posted -> NoPosting.
func (r *Reconciler) TaskDeleted(ctx context.Context, taskID, taskTitle string) (notify.Outcome, error) {
	if r.store == nil || r.gw == nil {
		return notify.Outcome{}, fmt.Errorf("posting reconciler not configured")
	}
	link, err := r.store.GetTaskPosting(ctx, taskID)
	if err != nil {
		if errors.Is(err, correlation.ErrPostingNotFound) {
			return notify.Skipped("no live posting"), nil
		}
		return notify.Outcome{}, fmt.Errorf("lookup posting link: %w", err)
	}
	if err := r.gw.DeleteMessage(ctx, link.ChannelID, link.MessageID); err != nil {
		r.logger.Warn("delete task card failed",
			slog.String("task_id", taskID), slog.Any("error", err))
	}
	if err := r.store.DeleteTaskPosting(ctx, taskID); err != nil {
		return notify.Outcome{}, fmt.Errorf("delete posting link: %w", err)
	}
	if _, err := r.gw.PostMessage(ctx, link.ChannelID, notify.TaskRemoved(taskTitle)); err != nil {
		r.logger.Warn("post removal notice failed",
			slog.String("task_id", taskID), slog.Any("error", err))
		return notify.Warning(err.Error()), nil
	}
	return notify.Ok(), nil
}

// TaskAssigned posts an additive assignment notice and, when the assignee
// has a linked Discord account, sends a DM with the task summary. The
// posting link is untouched. The DM leg is independent: its failure or skip
// never degrades the channel notice's outcome.
func (r *Reconciler) TaskAssigned(ctx context.Context, task webapp.Task, assigneeName, projectName string) (channelOutcome, dmOutcome notify.Outcome, err error) {
	if r.store == nil || r.gw == nil {
		return notify.Outcome{}, notify.Outcome{}, fmt.Errorf("posting reconciler not configured")
	}
	channel, outcome, err := r.resolveTasksChannel(ctx, task.ProjectID)
	if err != nil {
		return notify.Outcome{}, notify.Outcome{}, err
	}
	if !outcome.IsOk() {
		return outcome, notify.Skipped("channel unresolved"), nil
	}
	channelOutcome = notify.Ok()
	if _, err := r.gw.PostMessage(ctx, channel.ChannelID, notify.TaskAssigned(task, assigneeName)); err != nil {
		r.logger.Warn("post assignment notice failed",
			slog.String("task_id", task.ID), slog.Any("error", err))
		channelOutcome = notify.Warning(err.Error())
	}
	dmOutcome = r.assignmentDM(ctx, task, projectName)
	return channelOutcome, dmOutcome, nil
}

func (r *Reconciler) assignmentDM(ctx context.Context, task webapp.Task, projectName string) notify.Outcome {
	if r.directory == nil || r.dm == nil || task.AssigneeID == "" {
		return notify.Skipped("no assignee")
	}
	discordID, err := r.directory.LinkedDiscordID(ctx, task.AssigneeID)
	if err != nil {
		r.logger.Warn("resolve assignee link failed",
			slog.String("assignee_id", task.AssigneeID), slog.Any("error", err))
		return notify.Warning(err.Error())
	}
	if discordID == "" {
		return notify.Skipped("assignee not linked")
	}
	return r.dm.Direct(ctx, discordID, notify.TaskAssignedDM(task, projectName))
}
