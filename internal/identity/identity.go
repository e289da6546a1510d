// Package identity resolves the acting identity behind a Discord
// interaction. When no internal account can be mapped it falls back to an
// ephemeral guest identity so read-mostly flows keep working.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/crewlane/guildsync/internal/webapp"
)

// Kind distinguishes the actor variants. Authorization logic switches over
// Kind exhaustively instead of checking a nullable user.
type Kind string

const (
	KindUser  Kind = "user"
	KindGuest Kind = "guest"
)

// Actor is the resolved identity for one interaction. Guest actors are
// synthesized in memory and never persisted; their lifetime is the single
// interaction that produced them.
type Actor struct {
	Kind        Kind
	UserID      string
	TenantID    string
	DisplayName string
	Role        string
}

// CanWrite reports whether the actor may trigger writes with lasting effect.
func (a Actor) CanWrite() bool {
	switch a.Kind {
	case KindUser:
		return true
	case KindGuest:
		return false
	}
	return false
}

// Guest synthesizes a lowest-privilege, non-persisted identity for an
// unmapped Discord user.
func Guest(tenantID, discordUsername string) Actor {
	name := strings.TrimSpace(discordUsername)
	if name == "" {
		name = "guest"
	}
	return Actor{
		Kind:        KindGuest,
		TenantID:    strings.TrimSpace(tenantID),
		DisplayName: name + " (guest)",
		Role:        webapp.RoleGuest,
	}
}

// directory is the slice of the web application the resolver needs.
type directory interface {
	UserByDiscordID(ctx context.Context, discordUserID string) (webapp.User, error)
	MembershipRole(ctx context.Context, tenantID, userID string) (string, error)
}

// Resolver maps Discord user ids onto actors.
type Resolver struct {
	logger    *slog.Logger
	directory directory
}

// NewResolver creates a Resolver over the web application directory.
func NewResolver(log *slog.Logger, dir directory) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		logger:    log.With(slog.String("component", "identity")),
		directory: dir,
	}
}

// Resolve returns the internal actor for a Discord user within a tenant, or
// a guest actor when no account link exists. Lookup failures other than
// absence are returned to the caller.
func (r *Resolver) Resolve(ctx context.Context, tenantID, discordUserID, discordUsername string) (Actor, error) {
	if r.directory == nil {
		return Actor{}, fmt.Errorf("identity resolver not configured")
	}
	discordUserID = strings.TrimSpace(discordUserID)
	if discordUserID == "" {
		return Guest(tenantID, discordUsername), nil
	}
	user, err := r.directory.UserByDiscordID(ctx, discordUserID)
	if err != nil {
		if errors.Is(err, webapp.ErrNotFound) {
			r.logger.Debug("no account link, using guest identity",
				slog.String("discord_user_id", discordUserID))
			return Guest(tenantID, discordUsername), nil
		}
		return Actor{}, fmt.Errorf("resolve discord account: %w", err)
	}
	role := webapp.RoleGuest
	if strings.TrimSpace(tenantID) != "" {
		membershipRole, err := r.directory.MembershipRole(ctx, tenantID, user.ID)
		if err != nil {
			return Actor{}, fmt.Errorf("resolve membership role: %w", err)
		}
		if strings.TrimSpace(membershipRole) != "" {
			role = membershipRole
		}
	}
	displayName := strings.TrimSpace(user.DisplayName)
	if displayName == "" {
		displayName = strings.TrimSpace(discordUsername)
	}
	return Actor{
		Kind:        KindUser,
		UserID:      user.ID,
		TenantID:    strings.TrimSpace(tenantID),
		DisplayName: displayName,
		Role:        role,
	}, nil
}
