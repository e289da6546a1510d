package correlation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Sentinel errors for absent correlations. Absence is an expected steady
// state for most callers, not a failure.
var (
	ErrTenantNotLinked     = errors.New("tenant has no guild link")
	ErrChannelLinkNotFound = errors.New("project channel link not found")
	ErrPostingNotFound     = errors.New("task posting link not found")
	ErrCategoryNotFound    = errors.New("category link not found")
)

// Store persists the internal/external id correlations. It is the single
// source of truth for what exists on Discord for a given entity; Discord
// itself is never trusted as source of truth.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by the given pgx pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// UpsertTenantGuild creates or replaces the tenant's guild link.
func (s *Store) UpsertTenantGuild(ctx context.Context, link TenantGuildLink) (TenantGuildLink, error) {
	if s.pool == nil {
		return TenantGuildLink{}, fmt.Errorf("correlation store not configured")
	}
	tenantID := strings.TrimSpace(link.TenantID)
	guildID := strings.TrimSpace(link.GuildID)
	if tenantID == "" || guildID == "" {
		return TenantGuildLink{}, fmt.Errorf("tenant id and guild id are required")
	}
	roleMap := link.RoleMap
	if roleMap == nil {
		roleMap = map[string][]string{}
	}
	rolePayload, err := json.Marshal(roleMap)
	if err != nil {
		return TenantGuildLink{}, err
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO tenant_guild_links (tenant_id, guild_id, parent_category, role_map)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id) DO UPDATE SET
			guild_id = EXCLUDED.guild_id,
			parent_category = EXCLUDED.parent_category,
			role_map = EXCLUDED.role_map,
			updated_at = now()
		RETURNING tenant_id, guild_id, parent_category, role_map, created_at, updated_at`,
		tenantID, guildID, strings.TrimSpace(link.ParentCategory), rolePayload)
	return scanTenantGuild(row)
}

// GetTenantGuild returns the tenant's guild link or ErrTenantNotLinked.
func (s *Store) GetTenantGuild(ctx context.Context, tenantID string) (TenantGuildLink, error) {
	if s.pool == nil {
		return TenantGuildLink{}, fmt.Errorf("correlation store not configured")
	}
	row := s.pool.QueryRow(ctx, `
		SELECT tenant_id, guild_id, parent_category, role_map, created_at, updated_at
		FROM tenant_guild_links WHERE tenant_id = $1`, strings.TrimSpace(tenantID))
	link, err := scanTenantGuild(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return TenantGuildLink{}, ErrTenantNotLinked
	}
	return link, err
}

// GetTenantByGuild resolves the tenant linked to a guild, for interaction
// handlers that only know the guild they fired in. Returns
// ErrTenantNotLinked when no tenant claims the guild.
func (s *Store) GetTenantByGuild(ctx context.Context, guildID string) (TenantGuildLink, error) {
	if s.pool == nil {
		return TenantGuildLink{}, fmt.Errorf("correlation store not configured")
	}
	row := s.pool.QueryRow(ctx, `
		SELECT tenant_id, guild_id, parent_category, role_map, created_at, updated_at
		FROM tenant_guild_links WHERE guild_id = $1`, strings.TrimSpace(guildID))
	link, err := scanTenantGuild(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return TenantGuildLink{}, ErrTenantNotLinked
	}
	return link, err
}

// ListTenantGuilds returns every tenant guild link, for the full-sync sweep.
func (s *Store) ListTenantGuilds(ctx context.Context) ([]TenantGuildLink, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("correlation store not configured")
	}
	rows, err := s.pool.Query(ctx, `
		SELECT tenant_id, guild_id, parent_category, role_map, created_at, updated_at
		FROM tenant_guild_links ORDER BY tenant_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]TenantGuildLink, 0)
	for rows.Next() {
		link, err := scanTenantGuild(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, link)
	}
	return items, rows.Err()
}

// UpsertProjectChannel creates or overwrites one project channel link.
// Overwrite is how stale external ids are repaired.
func (s *Store) UpsertProjectChannel(ctx context.Context, link ProjectChannelLink) (ProjectChannelLink, error) {
	if s.pool == nil {
		return ProjectChannelLink{}, fmt.Errorf("correlation store not configured")
	}
	if !link.Kind.Valid() {
		return ProjectChannelLink{}, fmt.Errorf("invalid channel kind: %s", link.Kind)
	}
	if strings.TrimSpace(link.ProjectID) == "" || strings.TrimSpace(link.ChannelID) == "" {
		return ProjectChannelLink{}, fmt.Errorf("project id and channel id are required")
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO project_channel_links (project_id, tenant_id, kind, guild_id, channel_id, archived)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (project_id, kind) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id,
			guild_id = EXCLUDED.guild_id,
			channel_id = EXCLUDED.channel_id,
			archived = EXCLUDED.archived,
			updated_at = now()
		RETURNING project_id, tenant_id, kind, guild_id, channel_id, archived, created_at, updated_at`,
		strings.TrimSpace(link.ProjectID), strings.TrimSpace(link.TenantID), link.Kind.String(),
		strings.TrimSpace(link.GuildID), strings.TrimSpace(link.ChannelID), link.Archived)
	return scanProjectChannel(row)
}

// GetProjectChannel returns the link for one project channel kind or
// ErrChannelLinkNotFound.
func (s *Store) GetProjectChannel(ctx context.Context, projectID string, kind ChannelKind) (ProjectChannelLink, error) {
	if s.pool == nil {
		return ProjectChannelLink{}, fmt.Errorf("correlation store not configured")
	}
	row := s.pool.QueryRow(ctx, `
		SELECT project_id, tenant_id, kind, guild_id, channel_id, archived, created_at, updated_at
		FROM project_channel_links WHERE project_id = $1 AND kind = $2`,
		strings.TrimSpace(projectID), kind.String())
	link, err := scanProjectChannel(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ProjectChannelLink{}, ErrChannelLinkNotFound
	}
	return link, err
}

// GetProjectByChannel resolves which project and kind a Discord channel
// belongs to. Returns ErrChannelLinkNotFound for channels this service
// never created.
func (s *Store) GetProjectByChannel(ctx context.Context, channelID string) (ProjectChannelLink, error) {
	if s.pool == nil {
		return ProjectChannelLink{}, fmt.Errorf("correlation store not configured")
	}
	row := s.pool.QueryRow(ctx, `
		SELECT project_id, tenant_id, kind, guild_id, channel_id, archived, created_at, updated_at
		FROM project_channel_links WHERE channel_id = $1`, strings.TrimSpace(channelID))
	link, err := scanProjectChannel(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ProjectChannelLink{}, ErrChannelLinkNotFound
	}
	return link, err
}

// ListProjectChannels returns all channel links for a project.
func (s *Store) ListProjectChannels(ctx context.Context, projectID string) ([]ProjectChannelLink, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("correlation store not configured")
	}
	rows, err := s.pool.Query(ctx, `
		SELECT project_id, tenant_id, kind, guild_id, channel_id, archived, created_at, updated_at
		FROM project_channel_links WHERE project_id = $1 ORDER BY kind`,
		strings.TrimSpace(projectID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]ProjectChannelLink, 0, len(Kinds()))
	for rows.Next() {
		link, err := scanProjectChannel(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, link)
	}
	return items, rows.Err()
}

// ListTenantProjects returns the distinct project ids with channel links for
// the tenant, excluding archived ones.
func (s *Store) ListTenantProjects(ctx context.Context, tenantID string) ([]string, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("correlation store not configured")
	}
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT project_id FROM project_channel_links
		WHERE tenant_id = $1 AND NOT archived ORDER BY project_id`,
		strings.TrimSpace(tenantID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetProjectChannelsArchived flags every channel link of the project.
// Archived channels keep their links so history stays reachable.
func (s *Store) SetProjectChannelsArchived(ctx context.Context, projectID string, archived bool) error {
	if s.pool == nil {
		return fmt.Errorf("correlation store not configured")
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE project_channel_links SET archived = $2, updated_at = now()
		WHERE project_id = $1`, strings.TrimSpace(projectID), archived)
	return err
}

// UpsertTaskPosting records the single live posting for a task.
func (s *Store) UpsertTaskPosting(ctx context.Context, link TaskPostingLink) (TaskPostingLink, error) {
	if s.pool == nil {
		return TaskPostingLink{}, fmt.Errorf("correlation store not configured")
	}
	if strings.TrimSpace(link.TaskID) == "" || strings.TrimSpace(link.MessageID) == "" {
		return TaskPostingLink{}, fmt.Errorf("task id and message id are required")
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO task_posting_links (task_id, project_id, channel_id, message_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (task_id) DO UPDATE SET
			project_id = EXCLUDED.project_id,
			channel_id = EXCLUDED.channel_id,
			message_id = EXCLUDED.message_id,
			updated_at = now()
		RETURNING task_id, project_id, channel_id, message_id, created_at, updated_at`,
		strings.TrimSpace(link.TaskID), strings.TrimSpace(link.ProjectID),
		strings.TrimSpace(link.ChannelID), strings.TrimSpace(link.MessageID))
	return scanTaskPosting(row)
}

// GetTaskPosting returns the live posting for a task or ErrPostingNotFound.
func (s *Store) GetTaskPosting(ctx context.Context, taskID string) (TaskPostingLink, error) {
	if s.pool == nil {
		return TaskPostingLink{}, fmt.Errorf("correlation store not configured")
	}
	row := s.pool.QueryRow(ctx, `
		SELECT task_id, project_id, channel_id, message_id, created_at, updated_at
		FROM task_posting_links WHERE task_id = $1`, strings.TrimSpace(taskID))
	link, err := scanTaskPosting(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return TaskPostingLink{}, ErrPostingNotFound
	}
	return link, err
}

// DeleteTaskPosting removes the posting link. Deleting an absent link is a
// no-op.
func (s *Store) DeleteTaskPosting(ctx context.Context, taskID string) error {
	if s.pool == nil {
		return fmt.Errorf("correlation store not configured")
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM task_posting_links WHERE task_id = $1`,
		strings.TrimSpace(taskID))
	return err
}

// UpsertCategory creates or refreshes a category link (ensure semantics).
func (s *Store) UpsertCategory(ctx context.Context, link CategoryLink) (CategoryLink, error) {
	if s.pool == nil {
		return CategoryLink{}, fmt.Errorf("correlation store not configured")
	}
	if strings.TrimSpace(link.TenantID) == "" || strings.TrimSpace(link.CategoryID) == "" {
		return CategoryLink{}, fmt.Errorf("tenant id and category id are required")
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO category_links (tenant_id, category_id, external_id, name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, category_id) DO UPDATE SET
			external_id = EXCLUDED.external_id,
			name = EXCLUDED.name,
			updated_at = now()
		RETURNING tenant_id, category_id, external_id, name, created_at, updated_at`,
		strings.TrimSpace(link.TenantID), strings.TrimSpace(link.CategoryID),
		strings.TrimSpace(link.ExternalID), strings.TrimSpace(link.Name))
	return scanCategory(row)
}

// GetCategory returns a category link or ErrCategoryNotFound.
func (s *Store) GetCategory(ctx context.Context, tenantID, categoryID string) (CategoryLink, error) {
	if s.pool == nil {
		return CategoryLink{}, fmt.Errorf("correlation store not configured")
	}
	row := s.pool.QueryRow(ctx, `
		SELECT tenant_id, category_id, external_id, name, created_at, updated_at
		FROM category_links WHERE tenant_id = $1 AND category_id = $2`,
		strings.TrimSpace(tenantID), strings.TrimSpace(categoryID))
	link, err := scanCategory(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return CategoryLink{}, ErrCategoryNotFound
	}
	return link, err
}

// ListCategories returns every category link for the tenant.
func (s *Store) ListCategories(ctx context.Context, tenantID string) ([]CategoryLink, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("correlation store not configured")
	}
	rows, err := s.pool.Query(ctx, `
		SELECT tenant_id, category_id, external_id, name, created_at, updated_at
		FROM category_links WHERE tenant_id = $1 ORDER BY category_id`,
		strings.TrimSpace(tenantID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]CategoryLink, 0)
	for rows.Next() {
		link, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, link)
	}
	return items, rows.Err()
}

// DeleteCategory removes a category link. Deletion is only ever explicit,
// never implied by omission from a sync payload.
func (s *Store) DeleteCategory(ctx context.Context, tenantID, categoryID string) error {
	if s.pool == nil {
		return fmt.Errorf("correlation store not configured")
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM category_links WHERE tenant_id = $1 AND category_id = $2`,
		strings.TrimSpace(tenantID), strings.TrimSpace(categoryID))
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenantGuild(row rowScanner) (TenantGuildLink, error) {
	var link TenantGuildLink
	var rolePayload []byte
	if err := row.Scan(&link.TenantID, &link.GuildID, &link.ParentCategory, &rolePayload,
		&link.CreatedAt, &link.UpdatedAt); err != nil {
		return TenantGuildLink{}, err
	}
	if len(rolePayload) > 0 {
		if err := json.Unmarshal(rolePayload, &link.RoleMap); err != nil {
			return TenantGuildLink{}, fmt.Errorf("decode role map: %w", err)
		}
	}
	return link, nil
}

func scanProjectChannel(row rowScanner) (ProjectChannelLink, error) {
	var link ProjectChannelLink
	var kind string
	if err := row.Scan(&link.ProjectID, &link.TenantID, &kind, &link.GuildID,
		&link.ChannelID, &link.Archived, &link.CreatedAt, &link.UpdatedAt); err != nil {
		return ProjectChannelLink{}, err
	}
	link.Kind = ChannelKind(kind)
	return link, nil
}

func scanTaskPosting(row rowScanner) (TaskPostingLink, error) {
	var link TaskPostingLink
	if err := row.Scan(&link.TaskID, &link.ProjectID, &link.ChannelID, &link.MessageID,
		&link.CreatedAt, &link.UpdatedAt); err != nil {
		return TaskPostingLink{}, err
	}
	return link, nil
}

func scanCategory(row rowScanner) (CategoryLink, error) {
	var link CategoryLink
	if err := row.Scan(&link.TenantID, &link.CategoryID, &link.ExternalID, &link.Name,
		&link.CreatedAt, &link.UpdatedAt); err != nil {
		return CategoryLink{}, err
	}
	return link, nil
}
