// Package roles reconciles Discord guild roles and per-channel permission
// overwrites against internal membership state. Reconciliation is best
// effort: a single failed grant or revoke is logged and never rolls back the
// rest of the batch; the next relevant event re-converges.
package roles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/crewlane/guildsync/internal/correlation"
	"github.com/crewlane/guildsync/internal/gateway"
	"github.com/crewlane/guildsync/internal/webapp"
)

// linkStore is the slice of the correlation store this reconciler needs.
type linkStore interface {
	GetTenantGuild(ctx context.Context, tenantID string) (correlation.TenantGuildLink, error)
	ListProjectChannels(ctx context.Context, projectID string) ([]correlation.ProjectChannelLink, error)
}

// roleGateway is the slice of the external gateway this reconciler needs.
type roleGateway interface {
	MemberRoles(ctx context.Context, guildID, userID string) ([]string, error)
	GrantRole(ctx context.Context, guildID, userID, roleID string) error
	RevokeRole(ctx context.Context, guildID, userID, roleID string) error
	SetPermission(ctx context.Context, channelID, userID string, action gateway.PermissionAction) error
}

// directory resolves membership roles and account links.
type directory interface {
	MembershipRole(ctx context.Context, tenantID, userID string) (string, error)
	LinkedDiscordID(ctx context.Context, userID string) (string, error)
}

// Reconciler maps internal membership roles onto Discord role grants.
type Reconciler struct {
	logger    *slog.Logger
	store     linkStore
	gw        roleGateway
	directory directory
}

// NewReconciler creates a role sync Reconciler.
func NewReconciler(log *slog.Logger, store linkStore, gw roleGateway, dir directory) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{
		logger:    log.With(slog.String("component", "roles")),
		store:     store,
		gw:        gw,
		directory: dir,
	}
}

// desiredRoles returns the Discord role ids mapped from an internal role.
func desiredRoles(link correlation.TenantGuildLink, role string) []string {
	if link.RoleMap == nil {
		return nil
	}
	return link.RoleMap[strings.ToLower(strings.TrimSpace(role))]
}

// managedRoles returns every Discord role id under this system's control for
// the tenant, i.e. the union of all mapped role sets.
func managedRoles(link correlation.TenantGuildLink) map[string]struct{} {
	managed := make(map[string]struct{})
	for _, ids := range link.RoleMap {
		for _, id := range ids {
			managed[id] = struct{}{}
		}
	}
	return managed
}

// UserLinked grants the external role set mapped from the user's membership
// role, defaulting to the lowest-privilege role when no membership row
// exists yet.
func (r *Reconciler) UserLinked(ctx context.Context, tenantID, userID, discordUserID string) error {
	link, ok, err := r.tenantGuild(ctx, tenantID)
	if err != nil || !ok {
		return err
	}
	role, err := r.directory.MembershipRole(ctx, tenantID, userID)
	if err != nil {
		return fmt.Errorf("resolve membership role: %w", err)
	}
	if strings.TrimSpace(role) == "" {
		role = webapp.RoleGuest
	}
	granted := 0
	for _, roleID := range desiredRoles(link, role) {
		if err := r.gw.GrantRole(ctx, link.GuildID, discordUserID, roleID); err != nil {
			r.logger.Warn("grant role failed",
				slog.String("discord_user_id", discordUserID),
				slog.String("role_id", roleID),
				slog.Any("error", err),
			)
			continue
		}
		granted++
	}
	r.logger.Info("user roles granted",
		slog.String("tenant_id", tenantID),
		slog.String("role", role),
		slog.Int("granted", granted),
	)
	return nil
}

// UserUnlinked revokes every managed role the user could hold in the guild.
// This is a full reset, not a diff: no stale privilege may survive a prior
// partial failure.
func (r *Reconciler) UserUnlinked(ctx context.Context, tenantID, discordUserID string) error {
	link, ok, err := r.tenantGuild(ctx, tenantID)
	if err != nil || !ok {
		return err
	}
	for roleID := range managedRoles(link) {
		if err := r.gw.RevokeRole(ctx, link.GuildID, discordUserID, roleID); err != nil {
			r.logger.Warn("revoke role failed",
				slog.String("discord_user_id", discordUserID),
				slog.String("role_id", roleID),
				slog.Any("error", err),
			)
		}
	}
	return nil
}

// RoleChanged reconciles the user's held managed roles against the set
// mapped from the new role in a single pass: grant missing, revoke extra.
func (r *Reconciler) RoleChanged(ctx context.Context, tenantID, discordUserID, newRole string) error {
	link, ok, err := r.tenantGuild(ctx, tenantID)
	if err != nil || !ok {
		return err
	}
	held, err := r.gw.MemberRoles(ctx, link.GuildID, discordUserID)
	if err != nil {
		if gateway.IsNotFound(err) {
			r.logger.Warn("member not in guild, skipping role sync",
				slog.String("discord_user_id", discordUserID))
			return nil
		}
		return fmt.Errorf("fetch member roles: %w", err)
	}
	managed := managedRoles(link)
	desired := make(map[string]struct{})
	for _, id := range desiredRoles(link, newRole) {
		desired[id] = struct{}{}
	}
	heldManaged := make(map[string]struct{})
	for _, id := range held {
		if _, ok := managed[id]; ok {
			heldManaged[id] = struct{}{}
		}
	}
	for id := range desired {
		if _, ok := heldManaged[id]; ok {
			continue
		}
		if err := r.gw.GrantRole(ctx, link.GuildID, discordUserID, id); err != nil {
			r.logger.Warn("grant role failed",
				slog.String("discord_user_id", discordUserID),
				slog.String("role_id", id), slog.Any("error", err))
		}
	}
	for id := range heldManaged {
		if _, ok := desired[id]; ok {
			continue
		}
		if err := r.gw.RevokeRole(ctx, link.GuildID, discordUserID, id); err != nil {
			r.logger.Warn("revoke role failed",
				slog.String("discord_user_id", discordUserID),
				slog.String("role_id", id), slog.Any("error", err))
		}
	}
	return nil
}

// ProjectMemberChanged grants or revokes the user's per-channel overwrites
// on every channel of the project. Guild-wide roles are untouched.
func (r *Reconciler) ProjectMemberChanged(ctx context.Context, projectID, userID string, added bool) error {
	if r.store == nil || r.gw == nil || r.directory == nil {
		return fmt.Errorf("role reconciler not configured")
	}
	discordID, err := r.directory.LinkedDiscordID(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolve account link: %w", err)
	}
	if discordID == "" {
		// Unlinked members simply have no Discord-side presence yet.
		return nil
	}
	links, err := r.store.ListProjectChannels(ctx, projectID)
	if err != nil {
		return fmt.Errorf("list project channels: %w", err)
	}
	action := gateway.PermissionGrant
	if !added {
		action = gateway.PermissionRevoke
	}
	for _, link := range links {
		if err := r.gw.SetPermission(ctx, link.ChannelID, discordID, action); err != nil {
			r.logger.Warn("set channel permission failed",
				slog.String("project_id", projectID),
				slog.String("channel_id", link.ChannelID),
				slog.String("action", string(action)),
				slog.Any("error", err),
			)
		}
	}
	return nil
}

// tenantGuild resolves the tenant guild link; an unlinked tenant is the
// expected steady state and is reported as ok=false without error.
func (r *Reconciler) tenantGuild(ctx context.Context, tenantID string) (correlation.TenantGuildLink, bool, error) {
	if r.store == nil || r.gw == nil || r.directory == nil {
		return correlation.TenantGuildLink{}, false, fmt.Errorf("role reconciler not configured")
	}
	link, err := r.store.GetTenantGuild(ctx, tenantID)
	if err != nil {
		if errors.Is(err, correlation.ErrTenantNotLinked) {
			r.logger.Debug("tenant has no guild, skipping role sync",
				slog.String("tenant_id", tenantID))
			return correlation.TenantGuildLink{}, false, nil
		}
		return correlation.TenantGuildLink{}, false, fmt.Errorf("resolve tenant guild: %w", err)
	}
	return link, true, nil
}
