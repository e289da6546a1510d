package interaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/crewlane/guildsync/internal/correlation"
	"github.com/crewlane/guildsync/internal/identity"
	"github.com/crewlane/guildsync/internal/notify"
	"github.com/crewlane/guildsync/internal/webapp"
)

// responder is the slice of discordgo.Session the handler answers through.
type responder interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
}

type pinner interface {
	PinMessage(ctx context.Context, channelID, messageID string) error
}

type linkStore interface {
	GetTenantByGuild(ctx context.Context, guildID string) (correlation.TenantGuildLink, error)
	GetProjectByChannel(ctx context.Context, channelID string) (correlation.ProjectChannelLink, error)
	GetTaskPosting(ctx context.Context, taskID string) (correlation.TaskPostingLink, error)
}

type actorResolver interface {
	Resolve(ctx context.Context, tenantID, discordUserID, discordUsername string) (identity.Actor, error)
}

type taskDirectory interface {
	Task(ctx context.Context, id string) (webapp.Task, error)
}

// Handler turns component presses and modal submissions into web
// application writes. Every interaction is answered, ephemerally, whether
// it succeeded, was refused, or failed.
type Handler struct {
	logger    *slog.Logger
	responder responder
	pins      pinner
	links     linkStore
	resolver  actorResolver
	directory taskDirectory
	writer    webapp.Writer
	wizard    *Wizard
	activity  *notify.Activity
}

func NewHandler(log *slog.Logger, resp responder, pins pinner, links linkStore, resolver actorResolver, directory taskDirectory, writer webapp.Writer, wizard *Wizard, activity *notify.Activity) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		logger:    log.With(slog.String("component", "interaction")),
		responder: resp,
		pins:      pins,
		links:     links,
		resolver:  resolver,
		directory: directory,
		writer:    writer,
		wizard:    wizard,
		activity:  activity,
	}
}

// OnInteraction is registered on the gateway session. It must never panic
// and must answer within Discord's three second window, so handlers keep
// their work to a single web application call.
func (h *Handler) OnInteraction(ctx context.Context, ic *discordgo.InteractionCreate) {
	var err error
	switch ic.Type {
	case discordgo.InteractionMessageComponent:
		err = h.handleComponent(ctx, ic)
	case discordgo.InteractionModalSubmit:
		err = h.handleModal(ctx, ic)
	default:
		return
	}
	if err != nil {
		h.logger.Error("interaction failed",
			slog.String("guild_id", ic.GuildID),
			slog.String("error", err.Error()))
		h.respondEphemeral(ic.Interaction, "Sorry, that action could not be completed. Please try again or use the web app.")
	}
}

func (h *Handler) handleComponent(ctx context.Context, ic *discordgo.InteractionCreate) error {
	action := Decode(ic.MessageComponentData().CustomID)
	if action.Verb == VerbNoop {
		return h.ack(ic.Interaction)
	}

	switch action.Verb {
	case VerbWizardStart:
		return h.wizard.Start(ctx, ic, action.IDs)
	case VerbWizardSelect, VerbSelectProject:
		return h.wizard.ProjectSelected(ctx, ic, action.IDs)
	case VerbWizardConfirm:
		return h.wizard.Confirm(ctx, ic, action.IDs)
	case VerbWizardCancel:
		return h.wizard.Cancel(ctx, ic)
	}

	actor, err := h.actor(ctx, ic)
	if err != nil {
		return err
	}

	switch action.Verb {
	case VerbTaskView:
		return h.taskView(ctx, ic, action.IDs)
	case VerbTaskComplete:
		return h.taskComplete(ctx, ic, actor, action.IDs)
	case VerbTaskAssign:
		return h.taskAssign(ctx, ic, actor, action.IDs)
	case VerbTaskPin:
		return h.taskPin(ctx, ic, actor, action.IDs)
	case VerbTimeLog:
		return h.timeLogModal(ic, action.IDs)
	case VerbTaskCreate:
		return h.taskCreateModal(ic, actor)
	case VerbNoteCreate:
		return h.noteCreateModal(ic, actor)
	default:
		return h.ack(ic.Interaction)
	}
}

func (h *Handler) handleModal(ctx context.Context, ic *discordgo.InteractionCreate) error {
	data := ic.ModalSubmitData()
	action := Decode(data.CustomID)
	if action.Verb == VerbNoop {
		return h.ack(ic.Interaction)
	}

	actor, err := h.actor(ctx, ic)
	if err != nil {
		return err
	}
	if !actor.CanWrite() {
		return h.respondEphemeral(ic.Interaction, guestRefusal)
	}

	switch action.Verb {
	case VerbTimeLog:
		return h.timeLogSubmit(ctx, ic, actor, action.IDs, data)
	case VerbTaskCreate:
		return h.taskCreateSubmit(ctx, ic, actor, data)
	case VerbNoteCreate:
		return h.noteCreateSubmit(ctx, ic, actor, data)
	default:
		return h.ack(ic.Interaction)
	}
}

const guestRefusal = "You are browsing as a guest. Link your Discord account in the web app to complete, assign, or log work."

// actor resolves who pressed the component. Unlinked Discord users come
// back as guests, never as an error.
func (h *Handler) actor(ctx context.Context, ic *discordgo.InteractionCreate) (identity.Actor, error) {
	discordUserID, username := interactionUser(ic)
	if discordUserID == "" {
		return identity.Actor{}, errors.New("interaction has no user")
	}
	link, err := h.links.GetTenantByGuild(ctx, ic.GuildID)
	if errors.Is(err, correlation.ErrTenantNotLinked) {
		return identity.Guest("", username), nil
	}
	if err != nil {
		return identity.Actor{}, err
	}
	return h.resolver.Resolve(ctx, link.TenantID, discordUserID, username)
}

func interactionUser(ic *discordgo.InteractionCreate) (id, username string) {
	if ic.Member != nil && ic.Member.User != nil {
		return ic.Member.User.ID, ic.Member.User.Username
	}
	if ic.User != nil {
		return ic.User.ID, ic.User.Username
	}
	return "", ""
}

func (h *Handler) taskView(ctx context.Context, ic *discordgo.InteractionCreate, ids []string) error {
	if len(ids) < 1 {
		return h.ack(ic.Interaction)
	}
	task, err := h.directory.Task(ctx, ids[0])
	if errors.Is(err, webapp.ErrNotFound) {
		return h.respondEphemeral(ic.Interaction, "That task no longer exists.")
	}
	if err != nil {
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\n", task.Title)
	if task.Status != "" {
		fmt.Fprintf(&b, "Status: %s\n", task.Status)
	}
	if task.Priority != "" {
		fmt.Fprintf(&b, "Priority: %s\n", task.Priority)
	}
	if task.DueDate != nil {
		fmt.Fprintf(&b, "Due: %s\n", task.DueDate.Format("2006-01-02"))
	}
	if task.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", task.Description)
	}
	if task.URL != "" {
		fmt.Fprintf(&b, "\n%s", task.URL)
	}
	return h.respondEphemeral(ic.Interaction, b.String())
}

func (h *Handler) taskComplete(ctx context.Context, ic *discordgo.InteractionCreate, actor identity.Actor, ids []string) error {
	if len(ids) < 1 {
		return h.ack(ic.Interaction)
	}
	if !actor.CanWrite() {
		return h.respondEphemeral(ic.Interaction, guestRefusal)
	}
	if err := h.writer.CompleteTask(ctx, ids[0], actor.UserID); err != nil {
		return fmt.Errorf("complete task %s: %w", ids[0], err)
	}
	if task, err := h.directory.Task(ctx, ids[0]); err == nil {
		h.activity.Post(ctx, task.ProjectID, notify.TaskCompleted(task))
	}
	return h.respondEphemeral(ic.Interaction, "Task marked complete. The card will update shortly.")
}

func (h *Handler) taskAssign(ctx context.Context, ic *discordgo.InteractionCreate, actor identity.Actor, ids []string) error {
	if len(ids) < 1 {
		return h.ack(ic.Interaction)
	}
	if !actor.CanWrite() {
		return h.respondEphemeral(ic.Interaction, guestRefusal)
	}
	if err := h.writer.AssignTask(ctx, ids[0], actor.UserID, actor.UserID); err != nil {
		return fmt.Errorf("assign task %s: %w", ids[0], err)
	}
	return h.respondEphemeral(ic.Interaction, "Task assigned to you.")
}

func (h *Handler) taskPin(ctx context.Context, ic *discordgo.InteractionCreate, actor identity.Actor, ids []string) error {
	if len(ids) < 1 {
		return h.ack(ic.Interaction)
	}
	if !actor.CanWrite() {
		return h.respondEphemeral(ic.Interaction, guestRefusal)
	}
	posting, err := h.links.GetTaskPosting(ctx, ids[0])
	if errors.Is(err, correlation.ErrPostingNotFound) {
		return h.respondEphemeral(ic.Interaction, "That task has no card to pin.")
	}
	if err != nil {
		return err
	}
	if err := h.pins.PinMessage(ctx, posting.ChannelID, posting.MessageID); err != nil {
		return fmt.Errorf("pin task %s: %w", ids[0], err)
	}
	return h.respondEphemeral(ic.Interaction, "Task card pinned.")
}

func (h *Handler) timeLogModal(ic *discordgo.InteractionCreate, ids []string) error {
	if len(ids) < 1 {
		return h.ack(ic.Interaction)
	}
	customID, err := Encode(VerbTimeLog, ids[0])
	if err != nil {
		return err
	}
	return h.responder.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: customID,
			Title:    "Log time",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:    "minutes",
						Label:       "Minutes spent",
						Style:       discordgo.TextInputShort,
						Placeholder: "90",
						Required:    true,
						MaxLength:   5,
					},
				}},
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:  "note",
						Label:     "Note (optional)",
						Style:     discordgo.TextInputParagraph,
						Required:  false,
						MaxLength: 500,
					},
				}},
			},
		},
	})
}

func (h *Handler) timeLogSubmit(ctx context.Context, ic *discordgo.InteractionCreate, actor identity.Actor, ids []string, data discordgo.ModalSubmitInteractionData) error {
	if len(ids) < 1 {
		return h.ack(ic.Interaction)
	}
	raw := strings.TrimSpace(modalValue(data, "minutes"))
	minutes, err := strconv.Atoi(raw)
	if err != nil || minutes <= 0 {
		return h.respondEphemeral(ic.Interaction, "Minutes must be a positive number.")
	}
	note := strings.TrimSpace(modalValue(data, "note"))
	if err := h.writer.LogTime(ctx, ids[0], minutes, note, actor.UserID); err != nil {
		return fmt.Errorf("log time on task %s: %w", ids[0], err)
	}
	if task, err := h.directory.Task(ctx, ids[0]); err == nil {
		h.activity.Post(ctx, task.ProjectID, notify.TimeLogged(task.Title, minutes, actor.DisplayName))
	}
	return h.respondEphemeral(ic.Interaction, fmt.Sprintf("Logged %d minutes.", minutes))
}

func (h *Handler) taskCreateModal(ic *discordgo.InteractionCreate, actor identity.Actor) error {
	if !actor.CanWrite() {
		return h.respondEphemeral(ic.Interaction, guestRefusal)
	}
	return h.responder.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: MustEncode(VerbTaskCreate),
			Title:    "New task",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:  "title",
						Label:     "Title",
						Style:     discordgo.TextInputShort,
						Required:  true,
						MaxLength: 200,
					},
				}},
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:  "description",
						Label:     "Description (optional)",
						Style:     discordgo.TextInputParagraph,
						Required:  false,
						MaxLength: 2000,
					},
				}},
			},
		},
	})
}

func (h *Handler) taskCreateSubmit(ctx context.Context, ic *discordgo.InteractionCreate, actor identity.Actor, data discordgo.ModalSubmitInteractionData) error {
	link, err := h.links.GetProjectByChannel(ctx, ic.ChannelID)
	if errors.Is(err, correlation.ErrChannelLinkNotFound) {
		return h.respondEphemeral(ic.Interaction, "This channel is not linked to a project.")
	}
	if err != nil {
		return err
	}
	title := strings.TrimSpace(modalValue(data, "title"))
	if title == "" {
		return h.respondEphemeral(ic.Interaction, "A task needs a title.")
	}
	description := strings.TrimSpace(modalValue(data, "description"))
	task, err := h.writer.CreateTask(ctx, link.ProjectID, title, description, actor.UserID)
	if err != nil {
		return fmt.Errorf("create task in project %s: %w", link.ProjectID, err)
	}
	return h.respondEphemeral(ic.Interaction, fmt.Sprintf("Created task **%s**.", task.Title))
}

func (h *Handler) noteCreateModal(ic *discordgo.InteractionCreate, actor identity.Actor) error {
	if !actor.CanWrite() {
		return h.respondEphemeral(ic.Interaction, guestRefusal)
	}
	return h.responder.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: MustEncode(VerbNoteCreate),
			Title:    "New note",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:  "body",
						Label:     "Note",
						Style:     discordgo.TextInputParagraph,
						Required:  true,
						MaxLength: 4000,
					},
				}},
			},
		},
	})
}

func (h *Handler) noteCreateSubmit(ctx context.Context, ic *discordgo.InteractionCreate, actor identity.Actor, data discordgo.ModalSubmitInteractionData) error {
	link, err := h.links.GetProjectByChannel(ctx, ic.ChannelID)
	if errors.Is(err, correlation.ErrChannelLinkNotFound) {
		return h.respondEphemeral(ic.Interaction, "This channel is not linked to a project.")
	}
	if err != nil {
		return err
	}
	body := strings.TrimSpace(modalValue(data, "body"))
	if body == "" {
		return h.respondEphemeral(ic.Interaction, "A note needs some text.")
	}
	if err := h.writer.CreateNote(ctx, link.ProjectID, body, actor.UserID); err != nil {
		return fmt.Errorf("create note in project %s: %w", link.ProjectID, err)
	}
	h.activity.Post(ctx, link.ProjectID, notify.CommentAdded("the project", actor.DisplayName, body))
	return h.respondEphemeral(ic.Interaction, "Note added to the project.")
}

// ack answers with a deferred update so the press does not show as failed.
func (h *Handler) ack(interaction *discordgo.Interaction) error {
	return h.responder.InteractionRespond(interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	})
}

func (h *Handler) respondEphemeral(interaction *discordgo.Interaction, content string) error {
	return h.responder.InteractionRespond(interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

func modalValue(data discordgo.ModalSubmitInteractionData, customID string) string {
	for _, row := range data.Components {
		actionsRow, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, comp := range actionsRow.Components {
			input, ok := comp.(*discordgo.TextInput)
			if !ok {
				continue
			}
			if input.CustomID == customID {
				return input.Value
			}
		}
	}
	return ""
}
