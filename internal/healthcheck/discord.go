package healthcheck

import (
	"context"
	"time"
)

// heartbeater reports the gateway heartbeat round trip. *discordgo.Session
// satisfies it.
type heartbeater interface {
	HeartbeatLatency() time.Duration
}

// DiscordChecker reports whether the Discord gateway connection is alive.
// A session that never completed a heartbeat reports zero latency, which is
// how a closed or not yet opened connection shows up.
type DiscordChecker struct {
	session heartbeater
}

// NewDiscordChecker creates a checker over the given session.
func NewDiscordChecker(session heartbeater) *DiscordChecker {
	return &DiscordChecker{session: session}
}

func (c *DiscordChecker) Check(_ context.Context) CheckResult {
	result := CheckResult{Name: "discord", Status: StatusOK}
	if c.session == nil {
		result.Status = StatusError
		result.Detail = "session not configured"
		return result
	}
	latency := c.session.HeartbeatLatency()
	if latency <= 0 {
		result.Status = StatusError
		result.Detail = "gateway not connected"
		return result
	}
	result.Detail = "heartbeat " + latency.Round(time.Millisecond).String()
	return result
}
