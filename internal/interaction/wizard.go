package interaction

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/crewlane/guildsync/internal/channels"
	"github.com/crewlane/guildsync/internal/correlation"
	"github.com/crewlane/guildsync/internal/webapp"
)

const wizardMaxOptions = 25

type wizardStore interface {
	UpsertTenantGuild(ctx context.Context, link correlation.TenantGuildLink) (correlation.TenantGuildLink, error)
}

type projectProvisioner interface {
	EnsureProjectChannels(ctx context.Context, tenantID, projectID, name string) (channels.ChannelSet, error)
}

type projectDirectory interface {
	ActiveProjects(ctx context.Context, tenantID string) ([]webapp.Project, error)
}

// Report summarizes one wizard confirmation.
type Report struct {
	Projects int
	Channels int
	Failures int
}

func (r Report) String() string {
	if r.Failures == 0 {
		return fmt.Sprintf("Setup complete: %d projects, %d channels created.", r.Projects, r.Channels)
	}
	return fmt.Sprintf("Setup finished with problems: %d projects provisioned, %d channels created, %d projects failed.",
		r.Projects, r.Channels, r.Failures)
}

// Wizard walks a guild admin through linking their workspace: pick the
// projects to mirror, confirm, and the channels are provisioned. All state
// rides inside component custom ids, so the service keeps no per-admin
// session and any replica can answer any step, even after a restart.
type Wizard struct {
	logger    *slog.Logger
	responder responder
	links     wizardStore
	channels  projectProvisioner
	directory projectDirectory
}

func NewWizard(log *slog.Logger, resp responder, links wizardStore, ch projectProvisioner, directory projectDirectory) *Wizard {
	if log == nil {
		log = slog.Default()
	}
	return &Wizard{
		logger:    log.With(slog.String("component", "wizard")),
		responder: resp,
		links:     links,
		channels:  ch,
		directory: directory,
	}
}

// Start answers a wizard-start press with the project picker. The custom
// id carries the tenant to link, handed out by the web application, and
// the picker forwards it to the next step.
func (w *Wizard) Start(ctx context.Context, ic *discordgo.InteractionCreate, ids []string) error {
	if len(ids) < 1 {
		return w.respond(ic, "This setup button is missing its workspace. Generate a new one from the web app.")
	}
	if ic.GuildID == "" {
		return w.respond(ic, "Server setup has to run inside a server, not in a direct message.")
	}
	tenantID := ids[0]

	selectID, err := Encode(VerbWizardSelect, tenantID)
	if err != nil {
		w.logger.Warn("unusable tenant id on setup button",
			slog.String("tenant_id", tenantID), slog.String("error", err.Error()))
		return w.respond(ic, "This setup button is malformed. Generate a new one from the web app.")
	}

	projects, err := w.directory.ActiveProjects(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("list active projects for %s: %w", tenantID, err)
	}
	if len(projects) == 0 {
		return w.respond(ic, "This workspace has no active projects to mirror yet.")
	}
	if len(projects) > wizardMaxOptions {
		projects = projects[:wizardMaxOptions]
	}

	options := make([]discordgo.SelectMenuOption, 0, len(projects))
	for _, p := range projects {
		options = append(options, discordgo.SelectMenuOption{Label: p.Name, Value: p.ID})
	}

	minValues := 1
	return w.responder.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: "Pick the projects to mirror into this server.",
			Flags:   discordgo.MessageFlagsEphemeral,
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.SelectMenu{
						MenuType:    discordgo.StringSelectMenu,
						CustomID:    selectID,
						Placeholder: "Projects",
						MinValues:   &minValues,
						MaxValues:   len(options),
						Options:     options,
					},
				}},
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.Button{
						Label:    "Cancel",
						Style:    discordgo.SecondaryButton,
						CustomID: MustEncode(VerbWizardCancel),
					},
				}},
			},
		},
	})
}

// ProjectSelected swaps the picker for a confirm step. The confirm button's
// custom id carries the tenant and every picked project; picks that do not
// fit Discord's custom id limit are dropped and reported.
func (w *Wizard) ProjectSelected(ctx context.Context, ic *discordgo.InteractionCreate, ids []string) error {
	if len(ids) < 1 {
		return w.update(ic, "This setup control is stale. Press the setup button again.", nil)
	}
	tenantID := ids[0]
	values := ic.MessageComponentData().Values
	if len(values) == 0 {
		return w.update(ic, "Pick at least one project.", nil)
	}

	confirmID, kept, err := confirmCustomID(tenantID, values)
	if err != nil {
		w.logger.Warn("could not build confirm control",
			slog.String("tenant_id", tenantID), slog.String("error", err.Error()))
		return w.update(ic, "This setup control is stale. Press the setup button again.", nil)
	}

	names, err := w.projectNames(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("list active projects for %s: %w", tenantID, err)
	}
	picked := make([]string, 0, kept)
	for _, id := range values[:kept] {
		if name := names[id]; name != "" {
			picked = append(picked, name)
		}
	}
	content := fmt.Sprintf("Create channels for **%s**?", strings.Join(picked, "**, **"))
	if dropped := len(values) - kept; dropped > 0 {
		content += fmt.Sprintf(" (%d more selections did not fit and were dropped; run setup again for those.)", dropped)
	}
	return w.update(ic, content, []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{
				Label:    "Create channels",
				Style:    discordgo.PrimaryButton,
				CustomID: confirmID,
			},
			discordgo.Button{
				Label:    "Cancel",
				Style:    discordgo.SecondaryButton,
				CustomID: MustEncode(VerbWizardCancel),
			},
		}},
	})
}

// Confirm links the tenant to the guild and provisions channels for every
// project carried in the button. A project that fails to provision is
// reported, not retried; the periodic full sync will pick it up.
func (w *Wizard) Confirm(ctx context.Context, ic *discordgo.InteractionCreate, ids []string) error {
	if len(ids) < 2 {
		return w.update(ic, "This setup control is stale. Press the setup button again.", nil)
	}
	tenantID, projectIDs := ids[0], ids[1:]

	if _, err := w.links.UpsertTenantGuild(ctx, correlation.TenantGuildLink{
		TenantID: tenantID,
		GuildID:  ic.GuildID,
	}); err != nil {
		return fmt.Errorf("link tenant %s to guild %s: %w", tenantID, ic.GuildID, err)
	}

	names, err := w.projectNames(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("list active projects for %s: %w", tenantID, err)
	}

	var report Report
	for _, projectID := range projectIDs {
		set, err := w.channels.EnsureProjectChannels(ctx, tenantID, projectID, names[projectID])
		if err != nil {
			report.Failures++
			w.logger.Error("wizard provisioning failed",
				slog.String("tenant_id", tenantID),
				slog.String("project_id", projectID),
				slog.String("error", err.Error()))
			continue
		}
		report.Projects++
		report.Channels += len(set)
	}
	return w.update(ic, report.String(), nil)
}

// Cancel dismisses the wizard. There is no server-side state to discard.
func (w *Wizard) Cancel(_ context.Context, ic *discordgo.InteractionCreate) error {
	return w.update(ic, "Setup cancelled. Nothing was created.", nil)
}

// confirmCustomID packs the tenant and picked projects into the confirm
// button's custom id, dropping trailing picks until the id fits. Returns
// the id and how many picks it carries.
func confirmCustomID(tenantID string, projectIDs []string) (string, int, error) {
	var lastErr error
	for n := len(projectIDs); n > 0; n-- {
		parts := append([]string{tenantID}, projectIDs[:n]...)
		customID, err := Encode(VerbWizardConfirm, parts...)
		if err == nil {
			return customID, n, nil
		}
		lastErr = err
	}
	return "", 0, lastErr
}

func (w *Wizard) projectNames(ctx context.Context, tenantID string) (map[string]string, error) {
	projects, err := w.directory.ActiveProjects(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(projects))
	for _, p := range projects {
		names[p.ID] = p.Name
	}
	return names, nil
}

func (w *Wizard) respond(ic *discordgo.InteractionCreate, content string) error {
	return w.responder.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

func (w *Wizard) update(ic *discordgo.InteractionCreate, content string, components []discordgo.MessageComponent) error {
	if components == nil {
		components = []discordgo.MessageComponent{}
	}
	return w.responder.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:    content,
			Components: components,
		},
	})
}
