package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Message is the payload for channel posts and direct messages.
type Message struct {
	Content string
	Embed   *discordgo.MessageEmbed
}

// IsEmpty reports whether the message carries nothing to send.
func (m Message) IsEmpty() bool {
	return strings.TrimSpace(m.Content) == "" && m.Embed == nil
}

// PermissionAction selects grant or revoke for a per-user channel overwrite.
type PermissionAction string

const (
	PermissionGrant  PermissionAction = "grant"
	PermissionRevoke PermissionAction = "revoke"
)

// session is the slice of the discordgo API the gateway depends on; tests
// substitute a fake.
type session interface {
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildChannelCreateComplex(guildID string, data discordgo.GuildChannelCreateData, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelPermissionSet(channelID, targetID string, targetType discordgo.PermissionOverwriteType, allow, deny int64, options ...discordgo.RequestOption) error
	ChannelPermissionDelete(channelID, targetID string, options ...discordgo.RequestOption) error
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	ChannelMessagePin(channelID, messageID string, options ...discordgo.RequestOption) error
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
}

// Gateway is a thin idempotent wrapper over the Discord API. Every call runs
// under the configured timeout; "target already in desired state" is treated
// as success.
type Gateway struct {
	logger  *slog.Logger
	session session
	timeout time.Duration
}

// New creates a Gateway over an opened discordgo session.
func New(log *slog.Logger, s *discordgo.Session, timeout time.Duration) *Gateway {
	return newWithSession(log, s, timeout)
}

func newWithSession(log *slog.Logger, s session, timeout time.Duration) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Gateway{
		logger:  log.With(slog.String("component", "gateway")),
		session: s,
		timeout: timeout,
	}
}

func (g *Gateway) callOpts(ctx context.Context) (context.Context, context.CancelFunc, []discordgo.RequestOption) {
	if ctx == nil {
		ctx = context.Background()
	}
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	return callCtx, cancel, []discordgo.RequestOption{discordgo.WithContext(callCtx)}
}

// FetchChannel resolves a channel id. A nil error means the id is live.
func (g *Gateway) FetchChannel(ctx context.Context, channelID string) (*discordgo.Channel, error) {
	if g.session == nil {
		return nil, fmt.Errorf("gateway not configured")
	}
	_, cancel, opts := g.callOpts(ctx)
	defer cancel()
	return g.session.Channel(channelID, opts...)
}

// EnsureChannel returns a live text channel id for the given name. When
// existingID still resolves it is returned unchanged; otherwise a fresh
// channel is created under parentID (guild root when empty).
func (g *Gateway) EnsureChannel(ctx context.Context, guildID, parentID, name, existingID string) (string, error) {
	if g.session == nil {
		return "", fmt.Errorf("gateway not configured")
	}
	if existingID = strings.TrimSpace(existingID); existingID != "" {
		_, cancel, opts := g.callOpts(ctx)
		ch, err := g.session.Channel(existingID, opts...)
		cancel()
		if err == nil && ch != nil {
			return ch.ID, nil
		}
		if !IsNotFound(err) {
			return "", fmt.Errorf("verify channel %s: %w", existingID, err)
		}
		g.logger.Warn("stale channel link, recreating",
			slog.String("guild_id", guildID), slog.String("channel_id", existingID))
	}
	_, cancel, opts := g.callOpts(ctx)
	defer cancel()
	ch, err := g.session.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name:     name,
		Type:     discordgo.ChannelTypeGuildText,
		ParentID: strings.TrimSpace(parentID),
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("create channel %q: %w", name, err)
	}
	return ch.ID, nil
}

// EnsureCategory returns a live category id, creating one when existingID no
// longer resolves.
func (g *Gateway) EnsureCategory(ctx context.Context, guildID, name, existingID string) (string, error) {
	if g.session == nil {
		return "", fmt.Errorf("gateway not configured")
	}
	if existingID = strings.TrimSpace(existingID); existingID != "" {
		_, cancel, opts := g.callOpts(ctx)
		ch, err := g.session.Channel(existingID, opts...)
		cancel()
		if err == nil && ch != nil {
			return ch.ID, nil
		}
		if !IsNotFound(err) {
			return "", fmt.Errorf("verify category %s: %w", existingID, err)
		}
	}
	_, cancel, opts := g.callOpts(ctx)
	defer cancel()
	ch, err := g.session.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name: name,
		Type: discordgo.ChannelTypeGuildCategory,
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("create category %q: %w", name, err)
	}
	return ch.ID, nil
}

// ArchiveChannel locks a channel by denying sends for @everyone. The channel
// itself is kept so history stays readable. Locking an already missing
// channel is success.
func (g *Gateway) ArchiveChannel(ctx context.Context, guildID, channelID string) error {
	if g.session == nil {
		return fmt.Errorf("gateway not configured")
	}
	_, cancel, opts := g.callOpts(ctx)
	defer cancel()
	// The @everyone role id equals the guild id.
	err := g.session.ChannelPermissionSet(channelID, guildID,
		discordgo.PermissionOverwriteTypeRole, 0, discordgo.PermissionSendMessages, opts...)
	if IsNotFound(err) {
		return nil
	}
	return err
}

// SetPermission grants or revokes a per-user view/send overwrite on a
// channel. Re-granting an existing overwrite is a platform-level no-op.
func (g *Gateway) SetPermission(ctx context.Context, channelID, userID string, action PermissionAction) error {
	if g.session == nil {
		return fmt.Errorf("gateway not configured")
	}
	_, cancel, opts := g.callOpts(ctx)
	defer cancel()
	switch action {
	case PermissionGrant:
		allow := int64(discordgo.PermissionViewChannel | discordgo.PermissionSendMessages)
		return g.session.ChannelPermissionSet(channelID, userID,
			discordgo.PermissionOverwriteTypeMember, allow, 0, opts...)
	case PermissionRevoke:
		err := g.session.ChannelPermissionDelete(channelID, userID, opts...)
		if IsNotFound(err) {
			return nil
		}
		return err
	}
	return fmt.Errorf("unsupported permission action: %s", action)
}

// PostMessage posts to a channel and returns the new message id.
func (g *Gateway) PostMessage(ctx context.Context, channelID string, msg Message) (string, error) {
	if g.session == nil {
		return "", fmt.Errorf("gateway not configured")
	}
	if msg.IsEmpty() {
		return "", fmt.Errorf("message is required")
	}
	_, cancel, opts := g.callOpts(ctx)
	defer cancel()
	sent, err := g.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: msg.Content,
		Embed:   msg.Embed,
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("post message: %w", err)
	}
	return sent.ID, nil
}

// DeleteMessage removes a message; an already deleted message is success.
func (g *Gateway) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	if g.session == nil {
		return fmt.Errorf("gateway not configured")
	}
	if strings.TrimSpace(messageID) == "" {
		return nil
	}
	_, cancel, opts := g.callOpts(ctx)
	defer cancel()
	err := g.session.ChannelMessageDelete(channelID, messageID, opts...)
	if IsNotFound(err) {
		return nil
	}
	return err
}

// PinMessage pins a message in its channel.
func (g *Gateway) PinMessage(ctx context.Context, channelID, messageID string) error {
	if g.session == nil {
		return fmt.Errorf("gateway not configured")
	}
	_, cancel, opts := g.callOpts(ctx)
	defer cancel()
	return g.session.ChannelMessagePin(channelID, messageID, opts...)
}

// SendDirectMessage opens (or reuses) the DM channel with the user and posts.
func (g *Gateway) SendDirectMessage(ctx context.Context, userID string, msg Message) error {
	if g.session == nil {
		return fmt.Errorf("gateway not configured")
	}
	_, cancel, opts := g.callOpts(ctx)
	defer cancel()
	dm, err := g.session.UserChannelCreate(userID, opts...)
	if err != nil {
		return fmt.Errorf("open dm channel: %w", err)
	}
	_, err = g.session.ChannelMessageSendComplex(dm.ID, &discordgo.MessageSend{
		Content: msg.Content,
		Embed:   msg.Embed,
	}, opts...)
	if err != nil {
		return fmt.Errorf("send dm: %w", err)
	}
	return nil
}

// MemberRoles returns the role ids the user currently holds in the guild.
func (g *Gateway) MemberRoles(ctx context.Context, guildID, userID string) ([]string, error) {
	if g.session == nil {
		return nil, fmt.Errorf("gateway not configured")
	}
	_, cancel, opts := g.callOpts(ctx)
	defer cancel()
	member, err := g.session.GuildMember(guildID, userID, opts...)
	if err != nil {
		return nil, err
	}
	return member.Roles, nil
}

// GrantRole adds a guild role to a user. Granting an already held role is a
// platform-level no-op.
func (g *Gateway) GrantRole(ctx context.Context, guildID, userID, roleID string) error {
	if g.session == nil {
		return fmt.Errorf("gateway not configured")
	}
	_, cancel, opts := g.callOpts(ctx)
	defer cancel()
	return g.session.GuildMemberRoleAdd(guildID, userID, roleID, opts...)
}

// RevokeRole removes a guild role from a user; an already absent role or
// member is success.
func (g *Gateway) RevokeRole(ctx context.Context, guildID, userID, roleID string) error {
	if g.session == nil {
		return fmt.Errorf("gateway not configured")
	}
	_, cancel, opts := g.callOpts(ctx)
	defer cancel()
	err := g.session.GuildMemberRoleRemove(guildID, userID, roleID, opts...)
	if IsNotFound(err) {
		return nil
	}
	return err
}
