package channels

import (
	"context"
	"errors"
	"testing"

	"github.com/crewlane/guildsync/internal/correlation"
	"github.com/crewlane/guildsync/internal/gateway"
)

type fakeLinkStore struct {
	getTenantGuild      func(ctx context.Context, tenantID string) (correlation.TenantGuildLink, error)
	getProjectChannel   func(ctx context.Context, projectID string, kind correlation.ChannelKind) (correlation.ProjectChannelLink, error)
	upsertProjectChan   func(ctx context.Context, link correlation.ProjectChannelLink) (correlation.ProjectChannelLink, error)
	listProjectChannels func(ctx context.Context, projectID string) ([]correlation.ProjectChannelLink, error)
	setArchived         func(ctx context.Context, projectID string, archived bool) error
	getCategory         func(ctx context.Context, tenantID, categoryID string) (correlation.CategoryLink, error)
	upsertCategory      func(ctx context.Context, link correlation.CategoryLink) (correlation.CategoryLink, error)
	deleteCategory      func(ctx context.Context, tenantID, categoryID string) error
}

func (f *fakeLinkStore) GetTenantGuild(ctx context.Context, tenantID string) (correlation.TenantGuildLink, error) {
	return f.getTenantGuild(ctx, tenantID)
}

func (f *fakeLinkStore) GetProjectChannel(ctx context.Context, projectID string, kind correlation.ChannelKind) (correlation.ProjectChannelLink, error) {
	return f.getProjectChannel(ctx, projectID, kind)
}

func (f *fakeLinkStore) UpsertProjectChannel(ctx context.Context, link correlation.ProjectChannelLink) (correlation.ProjectChannelLink, error) {
	return f.upsertProjectChan(ctx, link)
}

func (f *fakeLinkStore) ListProjectChannels(ctx context.Context, projectID string) ([]correlation.ProjectChannelLink, error) {
	return f.listProjectChannels(ctx, projectID)
}

func (f *fakeLinkStore) SetProjectChannelsArchived(ctx context.Context, projectID string, archived bool) error {
	return f.setArchived(ctx, projectID, archived)
}

func (f *fakeLinkStore) GetCategory(ctx context.Context, tenantID, categoryID string) (correlation.CategoryLink, error) {
	return f.getCategory(ctx, tenantID, categoryID)
}

func (f *fakeLinkStore) UpsertCategory(ctx context.Context, link correlation.CategoryLink) (correlation.CategoryLink, error) {
	return f.upsertCategory(ctx, link)
}

func (f *fakeLinkStore) DeleteCategory(ctx context.Context, tenantID, categoryID string) error {
	return f.deleteCategory(ctx, tenantID, categoryID)
}

type fakeGuildGateway struct {
	ensureChannel  func(ctx context.Context, guildID, parentID, name, existingID string) (string, error)
	ensureCategory func(ctx context.Context, guildID, name, existingID string) (string, error)
	archiveChannel func(ctx context.Context, guildID, channelID string) error
	setPermission  func(ctx context.Context, channelID, userID string, action gateway.PermissionAction) error
}

func (f *fakeGuildGateway) EnsureChannel(ctx context.Context, guildID, parentID, name, existingID string) (string, error) {
	return f.ensureChannel(ctx, guildID, parentID, name, existingID)
}

func (f *fakeGuildGateway) EnsureCategory(ctx context.Context, guildID, name, existingID string) (string, error) {
	return f.ensureCategory(ctx, guildID, name, existingID)
}

func (f *fakeGuildGateway) ArchiveChannel(ctx context.Context, guildID, channelID string) error {
	return f.archiveChannel(ctx, guildID, channelID)
}

func (f *fakeGuildGateway) SetPermission(ctx context.Context, channelID, userID string, action gateway.PermissionAction) error {
	return f.setPermission(ctx, channelID, userID, action)
}

// memoryLinkStore keeps project channel links in a map so idempotency can be
// asserted across two ensure passes.
func memoryLinkStore() (*fakeLinkStore, map[correlation.ChannelKind]correlation.ProjectChannelLink) {
	links := make(map[correlation.ChannelKind]correlation.ProjectChannelLink)
	store := &fakeLinkStore{
		getTenantGuild: func(_ context.Context, tenantID string) (correlation.TenantGuildLink, error) {
			return correlation.TenantGuildLink{TenantID: tenantID, GuildID: "guild-1", ParentCategory: "cat-root"}, nil
		},
		getProjectChannel: func(_ context.Context, _ string, kind correlation.ChannelKind) (correlation.ProjectChannelLink, error) {
			link, ok := links[kind]
			if !ok {
				return correlation.ProjectChannelLink{}, correlation.ErrChannelLinkNotFound
			}
			return link, nil
		},
		upsertProjectChan: func(_ context.Context, link correlation.ProjectChannelLink) (correlation.ProjectChannelLink, error) {
			links[link.Kind] = link
			return link, nil
		},
	}
	return store, links
}

func TestEnsureProjectChannelsCreatesFullSet(t *testing.T) {
	t.Parallel()

	store, links := memoryLinkStore()
	created := make(map[string]string)
	gw := &fakeGuildGateway{
		ensureChannel: func(_ context.Context, guildID, parentID, name, existingID string) (string, error) {
			if guildID != "guild-1" || parentID != "cat-root" {
				t.Fatalf("ensure in %s under %s", guildID, parentID)
			}
			if existingID != "" {
				t.Fatalf("first pass must not carry an existing id, got %q", existingID)
			}
			id := "chan-" + name
			created[name] = id
			return id, nil
		},
	}

	r := NewReconciler(nil, store, gw)
	set, err := r.EnsureProjectChannels(context.Background(), "tenant-1", "proj-1", "Apollo Program")
	if err != nil {
		t.Fatalf("EnsureProjectChannels: %v", err)
	}
	if len(set) != 4 || len(links) != 4 {
		t.Fatalf("got %d channels, want the full kind set", len(set))
	}
	for _, name := range []string{"apollo-program-general", "apollo-program-tasks", "apollo-program-files", "apollo-program-activity"} {
		if _, ok := created[name]; !ok {
			t.Fatalf("channel %q was not created (created: %v)", name, created)
		}
	}
}

func TestEnsureProjectChannelsIsIdempotent(t *testing.T) {
	t.Parallel()

	store, _ := memoryLinkStore()
	creations := 0
	gw := &fakeGuildGateway{
		ensureChannel: func(_ context.Context, _, _, name, existingID string) (string, error) {
			if existingID != "" {
				// Live channel: reuse, no external call.
				return existingID, nil
			}
			creations++
			return "chan-" + name, nil
		},
	}

	r := NewReconciler(nil, store, gw)
	first, err := r.EnsureProjectChannels(context.Background(), "tenant-1", "proj-1", "Apollo")
	if err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	second, err := r.EnsureProjectChannels(context.Background(), "tenant-1", "proj-1", "Apollo")
	if err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if creations != 4 {
		t.Fatalf("created %d channels across two passes, want 4", creations)
	}
	for kind, link := range first {
		if second[kind].ChannelID != link.ChannelID {
			t.Fatalf("%s channel id changed between passes: %q -> %q", kind, link.ChannelID, second[kind].ChannelID)
		}
	}
}

func TestEnsureProjectChannelsRepairsStaleLink(t *testing.T) {
	t.Parallel()

	store, links := memoryLinkStore()
	links[correlation.KindTasks] = correlation.ProjectChannelLink{
		ProjectID: "proj-1", Kind: correlation.KindTasks, ChannelID: "stale",
	}
	gw := &fakeGuildGateway{
		ensureChannel: func(_ context.Context, _, _, name, existingID string) (string, error) {
			if existingID == "stale" {
				// Stored id no longer resolves; the gateway recreates.
				return "chan-fresh", nil
			}
			if existingID != "" {
				return existingID, nil
			}
			return "chan-" + name, nil
		},
	}

	r := NewReconciler(nil, store, gw)
	set, err := r.EnsureProjectChannels(context.Background(), "tenant-1", "proj-1", "Apollo")
	if err != nil {
		t.Fatalf("EnsureProjectChannels: %v", err)
	}
	if set[correlation.KindTasks].ChannelID != "chan-fresh" {
		t.Fatalf("stale link not overwritten: %+v", set[correlation.KindTasks])
	}
	if links[correlation.KindTasks].ChannelID != "chan-fresh" {
		t.Fatalf("repaired id not stored: %+v", links[correlation.KindTasks])
	}
}

func TestEnsureProjectChannelsUnlinkedTenant(t *testing.T) {
	t.Parallel()

	store := &fakeLinkStore{
		getTenantGuild: func(context.Context, string) (correlation.TenantGuildLink, error) {
			return correlation.TenantGuildLink{}, correlation.ErrTenantNotLinked
		},
	}
	r := NewReconciler(nil, store, &fakeGuildGateway{})
	if _, err := r.EnsureProjectChannels(context.Background(), "tenant-1", "proj-1", "Apollo"); !errors.Is(err, correlation.ErrTenantNotLinked) {
		t.Fatalf("got %v, want ErrTenantNotLinked", err)
	}
}

func TestArchiveProjectChannelsArchivesAllAndFlags(t *testing.T) {
	t.Parallel()

	archived := make(map[string]bool)
	flagged := false
	store := &fakeLinkStore{
		listProjectChannels: func(context.Context, string) ([]correlation.ProjectChannelLink, error) {
			return []correlation.ProjectChannelLink{
				{ChannelID: "chan-1", GuildID: "guild-1"},
				{ChannelID: "chan-2", GuildID: "guild-1"},
			}, nil
		},
		setArchived: func(_ context.Context, _ string, a bool) error {
			flagged = a
			return nil
		},
	}
	gw := &fakeGuildGateway{
		archiveChannel: func(_ context.Context, _, channelID string) error {
			archived[channelID] = true
			if channelID == "chan-1" {
				return errors.New("missing access")
			}
			return nil
		},
	}

	r := NewReconciler(nil, store, gw)
	if err := r.ArchiveProjectChannels(context.Background(), "tenant-1", "proj-1"); err != nil {
		t.Fatalf("ArchiveProjectChannels: %v", err)
	}
	if !archived["chan-1"] || !archived["chan-2"] {
		t.Fatalf("not every channel was locked: %v", archived)
	}
	if !flagged {
		t.Fatal("links must be flagged archived even when one lock fails")
	}
}

func TestArchiveProjectChannelsNoLinksIsNoop(t *testing.T) {
	t.Parallel()

	store := &fakeLinkStore{
		listProjectChannels: func(context.Context, string) ([]correlation.ProjectChannelLink, error) {
			return nil, nil
		},
	}
	r := NewReconciler(nil, store, &fakeGuildGateway{})
	if err := r.ArchiveProjectChannels(context.Background(), "tenant-1", "proj-1"); err != nil {
		t.Fatalf("archiving an unlinked project must be a no-op, got %v", err)
	}
}

func TestSyncCategoryStructureSkipsInvalidEntries(t *testing.T) {
	t.Parallel()

	ensured := 0
	store := &fakeLinkStore{
		getCategory: func(context.Context, string, string) (correlation.CategoryLink, error) {
			return correlation.CategoryLink{}, correlation.ErrCategoryNotFound
		},
		upsertCategory: func(_ context.Context, link correlation.CategoryLink) (correlation.CategoryLink, error) {
			return link, nil
		},
	}
	gw := &fakeGuildGateway{
		ensureCategory: func(_ context.Context, _, name, _ string) (string, error) {
			ensured++
			return "ext-" + name, nil
		},
	}

	r := NewReconciler(nil, store, gw)
	err := r.SyncCategoryStructure(context.Background(), "guild-1", "tenant-1", []CategorySpec{
		{ID: "cat-1", Name: "Engineering"},
		{ID: "", Name: "Nameless"},
		{ID: "cat-3", Name: ""},
		{ID: "cat-4", Name: "Design"},
	})
	if err != nil {
		t.Fatalf("SyncCategoryStructure: %v", err)
	}
	if ensured != 2 {
		t.Fatalf("ensured %d categories, want 2", ensured)
	}
}

func TestEnsureCategoryRepairsStaleExternalID(t *testing.T) {
	t.Parallel()

	var storedExternal string
	store := &fakeLinkStore{
		getCategory: func(context.Context, string, string) (correlation.CategoryLink, error) {
			return correlation.CategoryLink{ExternalID: "ext-stale"}, nil
		},
		upsertCategory: func(_ context.Context, link correlation.CategoryLink) (correlation.CategoryLink, error) {
			storedExternal = link.ExternalID
			return link, nil
		},
	}
	gw := &fakeGuildGateway{
		ensureCategory: func(_ context.Context, _, _, existingID string) (string, error) {
			if existingID != "ext-stale" {
				t.Fatalf("ensure got existing id %q, want ext-stale", existingID)
			}
			return "ext-fresh", nil
		},
	}

	r := NewReconciler(nil, store, gw)
	if err := r.EnsureCategory(context.Background(), "guild-1", "tenant-1", CategorySpec{ID: "cat-1", Name: "Engineering"}); err != nil {
		t.Fatalf("EnsureCategory: %v", err)
	}
	if storedExternal != "ext-fresh" {
		t.Fatalf("stored external id %q, want ext-fresh", storedExternal)
	}
}

func TestRemoveCategoryDropsLinkOnly(t *testing.T) {
	t.Parallel()

	deleted := false
	store := &fakeLinkStore{
		deleteCategory: func(_ context.Context, tenantID, categoryID string) error {
			if tenantID != "tenant-1" || categoryID != "cat-1" {
				t.Fatalf("deleted %s/%s", tenantID, categoryID)
			}
			deleted = true
			return nil
		},
	}
	// No gateway call is expected; the external category stays in place.
	r := NewReconciler(nil, store, &fakeGuildGateway{})
	if err := r.RemoveCategory(context.Background(), "tenant-1", "cat-1"); err != nil {
		t.Fatalf("RemoveCategory: %v", err)
	}
	if !deleted {
		t.Fatal("stored link was not removed")
	}
}

func TestChannelSlug(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{in: "Apollo Program", want: "apollo-program"},
		{in: "  Q3 / Launch!  ", want: "q3-launch"},
		{in: "___", want: "project"},
		{in: "", want: "project"},
	}
	for _, tc := range cases {
		if got := channelSlug(tc.in); got != tc.want {
			t.Fatalf("channelSlug(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
