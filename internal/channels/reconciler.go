// Package channels reconciles project channel sets and tenant category
// structure on Discord against internal lifecycle events.
package channels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/crewlane/guildsync/internal/correlation"
	"github.com/crewlane/guildsync/internal/gateway"
)

// linkStore is the slice of the correlation store this reconciler needs.
type linkStore interface {
	GetTenantGuild(ctx context.Context, tenantID string) (correlation.TenantGuildLink, error)
	GetProjectChannel(ctx context.Context, projectID string, kind correlation.ChannelKind) (correlation.ProjectChannelLink, error)
	UpsertProjectChannel(ctx context.Context, link correlation.ProjectChannelLink) (correlation.ProjectChannelLink, error)
	ListProjectChannels(ctx context.Context, projectID string) ([]correlation.ProjectChannelLink, error)
	SetProjectChannelsArchived(ctx context.Context, projectID string, archived bool) error
	GetCategory(ctx context.Context, tenantID, categoryID string) (correlation.CategoryLink, error)
	UpsertCategory(ctx context.Context, link correlation.CategoryLink) (correlation.CategoryLink, error)
	DeleteCategory(ctx context.Context, tenantID, categoryID string) error
}

// guildGateway is the slice of the external gateway this reconciler needs.
type guildGateway interface {
	EnsureChannel(ctx context.Context, guildID, parentID, name, existingID string) (string, error)
	EnsureCategory(ctx context.Context, guildID, name, existingID string) (string, error)
	ArchiveChannel(ctx context.Context, guildID, channelID string) error
	SetPermission(ctx context.Context, channelID, userID string, action gateway.PermissionAction) error
}

// CategorySpec is one desired category in a declarative structure sync.
type CategorySpec struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// ChannelSet is the full set of live channel links for one project.
type ChannelSet map[correlation.ChannelKind]correlation.ProjectChannelLink

// Reconciler brings Discord channel and category structure into agreement
// with internal project lifecycle state.
type Reconciler struct {
	logger *slog.Logger
	store  linkStore
	gw     guildGateway
}

// NewReconciler creates a channel lifecycle Reconciler.
func NewReconciler(log *slog.Logger, store linkStore, gw guildGateway) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{
		logger: log.With(slog.String("component", "channels")),
		store:  store,
		gw:     gw,
	}
}

// EnsureProjectChannels idempotently creates or repairs the project's channel
// set. Stored ids that no longer resolve on Discord are recreated and the
// link overwritten; running this twice with identical inputs yields the same
// links and exactly one external channel per kind.
func (r *Reconciler) EnsureProjectChannels(ctx context.Context, tenantID, projectID, name string) (ChannelSet, error) {
	if r.store == nil || r.gw == nil {
		return nil, fmt.Errorf("channel reconciler not configured")
	}
	tenant, err := r.store.GetTenantGuild(ctx, tenantID)
	if err != nil {
		if errors.Is(err, correlation.ErrTenantNotLinked) {
			return nil, err
		}
		return nil, fmt.Errorf("resolve tenant guild: %w", err)
	}
	slug := channelSlug(name)
	set := make(ChannelSet, len(correlation.Kinds()))
	for _, kind := range correlation.Kinds() {
		existingID := ""
		link, err := r.store.GetProjectChannel(ctx, projectID, kind)
		switch {
		case err == nil:
			existingID = link.ChannelID
		case errors.Is(err, correlation.ErrChannelLinkNotFound):
		default:
			return nil, fmt.Errorf("lookup channel link: %w", err)
		}
		channelID, err := r.gw.EnsureChannel(ctx, tenant.GuildID, tenant.ParentCategory,
			slug+"-"+kind.String(), existingID)
		if err != nil {
			return nil, fmt.Errorf("ensure %s channel: %w", kind, err)
		}
		stored, err := r.store.UpsertProjectChannel(ctx, correlation.ProjectChannelLink{
			ProjectID: projectID,
			TenantID:  tenantID,
			Kind:      kind,
			GuildID:   tenant.GuildID,
			ChannelID: channelID,
		})
		if err != nil {
			return nil, fmt.Errorf("store channel link: %w", err)
		}
		set[kind] = stored
	}
	r.logger.Info("project channels ensured",
		slog.String("tenant_id", tenantID),
		slog.String("project_id", projectID),
		slog.Int("channels", len(set)),
	)
	return set, nil
}

// ArchiveProjectChannels locks every channel of the project and flags the
// links as archived. The links themselves stay in place so history is
// preserved. A project without links is an idempotent no-op.
func (r *Reconciler) ArchiveProjectChannels(ctx context.Context, tenantID, projectID string) error {
	if r.store == nil || r.gw == nil {
		return fmt.Errorf("channel reconciler not configured")
	}
	links, err := r.store.ListProjectChannels(ctx, projectID)
	if err != nil {
		return fmt.Errorf("list channel links: %w", err)
	}
	if len(links) == 0 {
		return nil
	}
	for _, link := range links {
		if err := r.gw.ArchiveChannel(ctx, link.GuildID, link.ChannelID); err != nil {
			// Archival is best effort per channel; a failure on one kind
			// must not leave the rest unlocked.
			r.logger.Warn("archive channel failed",
				slog.String("project_id", projectID),
				slog.String("channel_id", link.ChannelID),
				slog.Any("error", err),
			)
		}
	}
	if err := r.store.SetProjectChannelsArchived(ctx, projectID, true); err != nil {
		return fmt.Errorf("flag channel links archived: %w", err)
	}
	r.logger.Info("project channels archived",
		slog.String("tenant_id", tenantID), slog.String("project_id", projectID))
	return nil
}

// SyncCategoryStructure declaratively ensures every desired category exists.
// Stored categories absent from the desired list are left untouched; removal
// only ever happens through RemoveCategory.
func (r *Reconciler) SyncCategoryStructure(ctx context.Context, guildID, tenantID string, categories []CategorySpec) error {
	if r.store == nil || r.gw == nil {
		return fmt.Errorf("channel reconciler not configured")
	}
	for _, category := range categories {
		if strings.TrimSpace(category.ID) == "" || strings.TrimSpace(category.Name) == "" {
			r.logger.Warn("skipping category without id or name", slog.String("tenant_id", tenantID))
			continue
		}
		if err := r.EnsureCategory(ctx, guildID, tenantID, category); err != nil {
			return err
		}
	}
	return nil
}

// EnsureCategory creates the Discord category when absent and refreshes the
// stored link, repairing stale external ids.
func (r *Reconciler) EnsureCategory(ctx context.Context, guildID, tenantID string, category CategorySpec) error {
	existingID := ""
	link, err := r.store.GetCategory(ctx, tenantID, category.ID)
	switch {
	case err == nil:
		existingID = link.ExternalID
	case errors.Is(err, correlation.ErrCategoryNotFound):
	default:
		return fmt.Errorf("lookup category link: %w", err)
	}
	externalID, err := r.gw.EnsureCategory(ctx, guildID, category.Name, existingID)
	if err != nil {
		return fmt.Errorf("ensure category %q: %w", category.Name, err)
	}
	if _, err := r.store.UpsertCategory(ctx, correlation.CategoryLink{
		TenantID:   tenantID,
		CategoryID: category.ID,
		ExternalID: externalID,
		Name:       category.Name,
	}); err != nil {
		return fmt.Errorf("store category link: %w", err)
	}
	return nil
}

// RemoveCategory drops the stored category link. The Discord category is
// left in place; external structure is archived, never destroyed.
func (r *Reconciler) RemoveCategory(ctx context.Context, tenantID, categoryID string) error {
	if r.store == nil {
		return fmt.Errorf("channel reconciler not configured")
	}
	if err := r.store.DeleteCategory(ctx, tenantID, categoryID); err != nil {
		return fmt.Errorf("delete category link: %w", err)
	}
	return nil
}

// UpdateChannelPermissions grants or revokes one user's overwrite on a
// channel. Re-granting an existing permission is a no-op.
func (r *Reconciler) UpdateChannelPermissions(ctx context.Context, channelID, discordUserID string, action gateway.PermissionAction) error {
	if r.gw == nil {
		return fmt.Errorf("channel reconciler not configured")
	}
	if err := r.gw.SetPermission(ctx, channelID, discordUserID, action); err != nil {
		return fmt.Errorf("%s permission: %w", action, err)
	}
	return nil
}

// channelSlug normalizes a project name into a Discord channel name stem.
func channelSlug(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	lastDash := true
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		slug = "project"
	}
	// Discord channel names cap at 100 chars; leave room for "-activity".
	if len(slug) > 80 {
		slug = strings.Trim(slug[:80], "-")
	}
	return slug
}
