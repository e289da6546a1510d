package interaction

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/crewlane/guildsync/internal/channels"
	"github.com/crewlane/guildsync/internal/correlation"
	"github.com/crewlane/guildsync/internal/webapp"
)

type fakeWizardStore struct {
	upsertTenantGuild func(ctx context.Context, link correlation.TenantGuildLink) (correlation.TenantGuildLink, error)
}

func (f *fakeWizardStore) UpsertTenantGuild(ctx context.Context, link correlation.TenantGuildLink) (correlation.TenantGuildLink, error) {
	return f.upsertTenantGuild(ctx, link)
}

type fakeProvisioner struct {
	ensureProjectChannels func(ctx context.Context, tenantID, projectID, name string) (channels.ChannelSet, error)
}

func (f *fakeProvisioner) EnsureProjectChannels(ctx context.Context, tenantID, projectID, name string) (channels.ChannelSet, error) {
	return f.ensureProjectChannels(ctx, tenantID, projectID, name)
}

type fakeProjectDirectory struct {
	activeProjects func(ctx context.Context, tenantID string) ([]webapp.Project, error)
}

func (f *fakeProjectDirectory) ActiveProjects(ctx context.Context, tenantID string) ([]webapp.Project, error) {
	return f.activeProjects(ctx, tenantID)
}

func selectInteraction(customID string, values []string) *discordgo.InteractionCreate {
	ic := componentInteraction(customID)
	ic.Data = discordgo.MessageComponentInteractionData{CustomID: customID, Values: values}
	return ic
}

func fullChannelSet() channels.ChannelSet {
	set := make(channels.ChannelSet)
	for _, kind := range correlation.Kinds() {
		set[kind] = correlation.ProjectChannelLink{Kind: kind, ChannelID: "chan-" + kind.String()}
	}
	return set
}

// firstButton digs the leading button out of a rendered component row.
func firstButton(t *testing.T, resp *discordgo.InteractionResponse) discordgo.Button {
	t.Helper()
	if len(resp.Data.Components) == 0 {
		t.Fatal("response has no component rows")
	}
	row, ok := resp.Data.Components[0].(discordgo.ActionsRow)
	if !ok {
		t.Fatalf("first row is %T", resp.Data.Components[0])
	}
	btn, ok := row.Components[0].(discordgo.Button)
	if !ok {
		t.Fatalf("first component is %T", row.Components[0])
	}
	return btn
}

func TestWizardStartOffersProjectPicker(t *testing.T) {
	t.Parallel()

	resp := &fakeResponder{}
	directory := &fakeProjectDirectory{
		activeProjects: func(_ context.Context, tenantID string) ([]webapp.Project, error) {
			if tenantID != "tenant-1" {
				t.Fatalf("listed projects for %q", tenantID)
			}
			return []webapp.Project{
				{ID: "proj-1", Name: "Apollo"},
				{ID: "proj-2", Name: "Gemini"},
			}, nil
		},
	}
	w := NewWizard(nil, resp, &fakeWizardStore{}, &fakeProvisioner{}, directory)

	if err := w.Start(context.Background(), componentInteraction(MustEncode(VerbWizardStart, "tenant-1")), []string{"tenant-1"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	picker := resp.last(t)
	if picker.Data.Flags&discordgo.MessageFlagsEphemeral == 0 {
		t.Fatal("picker must be ephemeral")
	}
	if len(picker.Data.Components) != 2 {
		t.Fatalf("picker has %d component rows, want select plus cancel", len(picker.Data.Components))
	}
	row, ok := picker.Data.Components[0].(discordgo.ActionsRow)
	if !ok {
		t.Fatalf("first row is %T", picker.Data.Components[0])
	}
	menu, ok := row.Components[0].(discordgo.SelectMenu)
	if !ok {
		t.Fatalf("first component is %T", row.Components[0])
	}
	if len(menu.Options) != 2 {
		t.Fatalf("menu offers %d options, want 2", len(menu.Options))
	}
	// The picker forwards the tenant to the next step in its custom id.
	action := Decode(menu.CustomID)
	if action.Verb != VerbWizardSelect || len(action.IDs) != 1 || action.IDs[0] != "tenant-1" {
		t.Fatalf("picker custom id decodes to %+v", action)
	}
}

func TestWizardStartOutsideGuildIsRefused(t *testing.T) {
	t.Parallel()

	resp := &fakeResponder{}
	w := NewWizard(nil, resp, &fakeWizardStore{}, &fakeProvisioner{}, &fakeProjectDirectory{})

	ic := componentInteraction(MustEncode(VerbWizardStart, "tenant-1"))
	ic.GuildID = ""
	ic.Member = nil
	ic.User = &discordgo.User{ID: "discord-1", Username: "ada"}
	if err := w.Start(context.Background(), ic, []string{"tenant-1"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !strings.Contains(resp.lastContent(t), "inside a server") {
		t.Fatalf("response %q", resp.lastContent(t))
	}
}

func TestWizardFullFlowLinksAndProvisions(t *testing.T) {
	t.Parallel()

	resp := &fakeResponder{}
	var linked correlation.TenantGuildLink
	store := &fakeWizardStore{
		upsertTenantGuild: func(_ context.Context, link correlation.TenantGuildLink) (correlation.TenantGuildLink, error) {
			linked = link
			return link, nil
		},
	}
	var provisioned []string
	prov := &fakeProvisioner{
		ensureProjectChannels: func(_ context.Context, tenantID, projectID, name string) (channels.ChannelSet, error) {
			if tenantID != "tenant-1" {
				t.Fatalf("provisioned for %q", tenantID)
			}
			provisioned = append(provisioned, projectID+"="+name)
			return fullChannelSet(), nil
		},
	}
	directory := &fakeProjectDirectory{
		activeProjects: func(context.Context, string) ([]webapp.Project, error) {
			return []webapp.Project{{ID: "proj-1", Name: "Apollo"}, {ID: "proj-2", Name: "Gemini"}}, nil
		},
	}
	w := NewWizard(nil, resp, store, prov, directory)

	ctx := context.Background()
	if err := w.Start(ctx, componentInteraction(MustEncode(VerbWizardStart, "tenant-1")), []string{"tenant-1"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := w.ProjectSelected(ctx, selectInteraction(MustEncode(VerbWizardSelect, "tenant-1"), []string{"proj-1", "proj-2"}), []string{"tenant-1"}); err != nil {
		t.Fatalf("ProjectSelected: %v", err)
	}
	if !strings.Contains(resp.lastContent(t), "Apollo") || !strings.Contains(resp.lastContent(t), "Gemini") {
		t.Fatalf("confirm prompt %q", resp.lastContent(t))
	}
	confirm := firstButton(t, resp.last(t))
	action := Decode(confirm.CustomID)
	if action.Verb != VerbWizardConfirm {
		t.Fatalf("confirm button decodes to %+v", action)
	}

	// Confirm on a fresh instance: the button alone carries everything,
	// so a restart between select and confirm loses nothing.
	w2 := NewWizard(nil, resp, store, prov, directory)
	if err := w2.Confirm(ctx, componentInteraction(confirm.CustomID), action.IDs); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	if linked.TenantID != "tenant-1" || linked.GuildID != "guild-1" {
		t.Fatalf("stored link %+v", linked)
	}
	if len(provisioned) != 2 || provisioned[0] != "proj-1=Apollo" || provisioned[1] != "proj-2=Gemini" {
		t.Fatalf("provisioned %v", provisioned)
	}
	if !strings.Contains(resp.lastContent(t), "2 projects, 8 channels") {
		t.Fatalf("final report %q", resp.lastContent(t))
	}
}

func TestWizardConfirmReportsPartialFailure(t *testing.T) {
	t.Parallel()

	resp := &fakeResponder{}
	store := &fakeWizardStore{
		upsertTenantGuild: func(_ context.Context, link correlation.TenantGuildLink) (correlation.TenantGuildLink, error) {
			return link, nil
		},
	}
	prov := &fakeProvisioner{
		ensureProjectChannels: func(_ context.Context, _, projectID, _ string) (channels.ChannelSet, error) {
			if projectID == "proj-2" {
				return nil, errors.New("missing access")
			}
			return fullChannelSet(), nil
		},
	}
	directory := &fakeProjectDirectory{
		activeProjects: func(context.Context, string) ([]webapp.Project, error) {
			return []webapp.Project{{ID: "proj-1", Name: "Apollo"}, {ID: "proj-2", Name: "Gemini"}}, nil
		},
	}
	w := NewWizard(nil, resp, store, prov, directory)

	customID := MustEncode(VerbWizardConfirm, "tenant-1", "proj-1", "proj-2")
	if err := w.Confirm(context.Background(), componentInteraction(customID), []string{"tenant-1", "proj-1", "proj-2"}); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	report := resp.lastContent(t)
	if !strings.Contains(report, "1 projects failed") {
		t.Fatalf("report %q must surface the failure", report)
	}
}

func TestWizardSelectionTooLongForButtonIsTrimmed(t *testing.T) {
	t.Parallel()

	resp := &fakeResponder{}
	directory := &fakeProjectDirectory{
		activeProjects: func(context.Context, string) ([]webapp.Project, error) {
			return []webapp.Project{{ID: "proj-1", Name: "Apollo"}}, nil
		},
	}
	w := NewWizard(nil, resp, &fakeWizardStore{}, &fakeProvisioner{}, directory)

	long := strings.Repeat("x", 40)
	values := []string{"proj-1", long + "-a", long + "-b", long + "-c"}
	if err := w.ProjectSelected(context.Background(), selectInteraction(MustEncode(VerbWizardSelect, "tenant-1"), values), []string{"tenant-1"}); err != nil {
		t.Fatalf("ProjectSelected: %v", err)
	}
	if !strings.Contains(resp.lastContent(t), "dropped") {
		t.Fatalf("prompt %q must report the dropped selections", resp.lastContent(t))
	}
	confirm := firstButton(t, resp.last(t))
	if len(confirm.CustomID) > customIDMaxLength {
		t.Fatalf("confirm custom id is %d characters", len(confirm.CustomID))
	}
	action := Decode(confirm.CustomID)
	if action.Verb != VerbWizardConfirm || len(action.IDs) < 2 || action.IDs[0] != "tenant-1" || action.IDs[1] != "proj-1" {
		t.Fatalf("confirm custom id decodes to %+v", action)
	}
	if len(action.IDs)-1 >= len(values) {
		t.Fatalf("button carries %d projects, want fewer than %d", len(action.IDs)-1, len(values))
	}
}

func TestWizardStaleControlsAskToRestart(t *testing.T) {
	t.Parallel()

	resp := &fakeResponder{}
	w := NewWizard(nil, resp, &fakeWizardStore{}, &fakeProvisioner{}, &fakeProjectDirectory{})

	ctx := context.Background()
	// A confirm button with no projects predates the token layout.
	if err := w.Confirm(ctx, componentInteraction(MustEncode(VerbWizardConfirm)), nil); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if !strings.Contains(resp.lastContent(t), "stale") {
		t.Fatalf("response %q", resp.lastContent(t))
	}
	if err := w.ProjectSelected(ctx, selectInteraction(MustEncode(VerbWizardSelect), []string{"proj-1"}), nil); err != nil {
		t.Fatalf("ProjectSelected: %v", err)
	}
	if !strings.Contains(resp.lastContent(t), "stale") {
		t.Fatalf("response %q", resp.lastContent(t))
	}
}

func TestWizardCancelDismisses(t *testing.T) {
	t.Parallel()

	resp := &fakeResponder{}
	w := NewWizard(nil, resp, &fakeWizardStore{}, &fakeProvisioner{}, &fakeProjectDirectory{})

	if err := w.Cancel(context.Background(), componentInteraction(MustEncode(VerbWizardCancel))); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if !strings.Contains(resp.lastContent(t), "cancelled") {
		t.Fatalf("response %q", resp.lastContent(t))
	}
}
