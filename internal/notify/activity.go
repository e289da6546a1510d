package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/crewlane/guildsync/internal/correlation"
)

type activityStore interface {
	GetProjectChannel(ctx context.Context, projectID string, kind correlation.ChannelKind) (correlation.ProjectChannelLink, error)
}

// Activity posts notices to a project's activity channel. Like every
// fan-out leg it is best effort: a project without channels, or with
// archived ones, is a skip.
type Activity struct {
	logger *slog.Logger
	store  activityStore
	fanout *Fanout
}

func NewActivity(log *slog.Logger, store activityStore, fanout *Fanout) *Activity {
	if log == nil {
		log = slog.Default()
	}
	return &Activity{
		logger: log.With(slog.String("component", "activity")),
		store:  store,
		fanout: fanout,
	}
}

// Post sends one notice to the project's activity channel.
func (a *Activity) Post(ctx context.Context, projectID string, msg Message) Outcome {
	return a.PostTo(ctx, projectID, correlation.KindActivity, msg)
}

// PostTo sends one notice to the project channel of the given kind.
func (a *Activity) PostTo(ctx context.Context, projectID string, kind correlation.ChannelKind, msg Message) Outcome {
	if a == nil || a.store == nil || a.fanout == nil {
		return Skipped("activity notifier not configured")
	}
	link, err := a.store.GetProjectChannel(ctx, projectID, kind)
	if errors.Is(err, correlation.ErrChannelLinkNotFound) {
		return Skipped("project not synced")
	}
	if err != nil {
		a.logger.Warn("resolve project channel failed",
			slog.String("project_id", projectID),
			slog.String("kind", kind.String()),
			slog.Any("error", err))
		return Warning(err.Error())
	}
	if link.Archived {
		return Skipped("project archived")
	}
	return a.fanout.Channel(ctx, link.ChannelID, msg)
}
