// Package notify builds the platform-native rich messages for domain events
// and fans them out to a project channel plus an optional direct message.
package notify

import (
	"context"
	"log/slog"
	"strings"

	"github.com/crewlane/guildsync/internal/gateway"
)

// poster is the slice of the gateway the fan-out needs.
type poster interface {
	PostMessage(ctx context.Context, channelID string, msg gateway.Message) (string, error)
	SendDirectMessage(ctx context.Context, userID string, msg gateway.Message) error
}

// Fanout delivers notifications. Channel post and direct message are
// independent legs; a closed DM never affects the channel post's success.
type Fanout struct {
	logger *slog.Logger
	gw     poster
}

// NewFanout creates a Fanout over the gateway.
func NewFanout(log *slog.Logger, gw poster) *Fanout {
	if log == nil {
		log = slog.Default()
	}
	return &Fanout{
		logger: log.With(slog.String("component", "notify")),
		gw:     gw,
	}
}

// Channel posts to the resolved project channel. An empty channel id is the
// expected unsynced steady state, not an error.
func (f *Fanout) Channel(ctx context.Context, channelID string, msg Message) Outcome {
	if f.gw == nil {
		return Warning("notifier not configured")
	}
	if strings.TrimSpace(channelID) == "" {
		return Skipped("no channel resolved")
	}
	if _, err := f.gw.PostMessage(ctx, channelID, msg); err != nil {
		f.logger.Warn("channel notification failed",
			slog.String("channel_id", channelID), slog.Any("error", err))
		return Warning(err.Error())
	}
	return Ok()
}

// Direct attempts a DM to a Discord user. Absent linkage is skipped; delivery
// failures (DMs closed, user left) are swallowed into a warning.
func (f *Fanout) Direct(ctx context.Context, discordUserID string, msg Message) Outcome {
	if f.gw == nil {
		return Warning("notifier not configured")
	}
	if strings.TrimSpace(discordUserID) == "" {
		return Skipped("no linked discord account")
	}
	if err := f.gw.SendDirectMessage(ctx, discordUserID, msg); err != nil {
		f.logger.Warn("direct message failed",
			slog.String("discord_user_id", discordUserID), slog.Any("error", err))
		return Warning(err.Error())
	}
	return Ok()
}

// Message aliases the gateway payload so templates stay the only producer.
type Message = gateway.Message
