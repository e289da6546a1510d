package resync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/crewlane/guildsync/internal/channels"
	"github.com/crewlane/guildsync/internal/correlation"
	"github.com/crewlane/guildsync/internal/notify"
	"github.com/crewlane/guildsync/internal/webapp"
)

const sweepTimeout = 10 * time.Minute

type linkStore interface {
	ListTenantGuilds(ctx context.Context) ([]correlation.TenantGuildLink, error)
	GetTenantGuild(ctx context.Context, tenantID string) (correlation.TenantGuildLink, error)
	ListTenantProjects(ctx context.Context, tenantID string) ([]string, error)
	ListCategories(ctx context.Context, tenantID string) ([]correlation.CategoryLink, error)
}

type projectReconciler interface {
	EnsureProjectChannels(ctx context.Context, tenantID, projectID, name string) (channels.ChannelSet, error)
	ArchiveProjectChannels(ctx context.Context, tenantID, projectID string) error
	SyncCategoryStructure(ctx context.Context, guildID, tenantID string, categories []channels.CategorySpec) error
}

type projectDirectory interface {
	ActiveProjects(ctx context.Context, tenantID string) ([]webapp.Project, error)
	ProjectTasks(ctx context.Context, projectID string) ([]webapp.Task, error)
}

type taskPoster interface {
	EnsurePosting(ctx context.Context, task webapp.Task) (notify.Outcome, error)
}

// Report summarizes one tenant's full sync.
type Report struct {
	TenantID string `json:"tenant_id"`
	Ensured  int    `json:"ensured"`
	Archived int    `json:"archived"`
	Postings int    `json:"postings"`
	Failures int    `json:"failures"`
}

// Service is the safety net behind the event pipeline: on a schedule it
// walks every linked tenant and converges Discord structure to the web
// application's current state, repairing whatever drifted while events
// were lost or failing.
type Service struct {
	logger    *slog.Logger
	links     linkStore
	projects  projectReconciler
	directory projectDirectory
	postings  taskPoster
	spec      string

	cron *cron.Cron
}

func NewService(log *slog.Logger, links linkStore, projects projectReconciler, directory projectDirectory, postings taskPoster, spec string) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		logger:    log.With(slog.String("component", "resync")),
		links:     links,
		projects:  projects,
		directory: directory,
		postings:  postings,
		spec:      spec,
	}
}

// Start registers the cron entry and begins the schedule.
func (s *Service) Start() error {
	if s.cron != nil {
		return errors.New("resync already started")
	}
	c := cron.New()
	if _, err := c.AddFunc(s.spec, s.sweep); err != nil {
		return fmt.Errorf("register resync schedule %q: %w", s.spec, err)
	}
	c.Start()
	s.cron = c
	s.logger.Info("periodic full sync scheduled", slog.String("spec", s.spec))
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Service) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	stopped := s.cron.Stop()
	s.cron = nil
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	tenants, err := s.links.ListTenantGuilds(ctx)
	if err != nil {
		s.logger.Error("full sync sweep could not list tenants", slog.String("error", err.Error()))
		return
	}
	for _, tenant := range tenants {
		report, err := s.FullSync(ctx, tenant.TenantID)
		if err != nil {
			s.logger.Error("full sync failed",
				slog.String("tenant_id", tenant.TenantID),
				slog.String("error", err.Error()))
			continue
		}
		s.logger.Info("full sync finished",
			slog.String("tenant_id", report.TenantID),
			slog.Int("ensured", report.Ensured),
			slog.Int("archived", report.Archived),
			slog.Int("postings", report.Postings),
			slog.Int("failures", report.Failures))
	}
}

// FullSync converges one tenant: the stored category structure is re-ensured,
// every active project gets its channel set ensured and missing task cards
// backfilled, and linked projects the web application no longer lists as
// active get archived. Per-project failures are counted, not fatal, so one
// bad project cannot stall the rest of the tenant.
func (s *Service) FullSync(ctx context.Context, tenantID string) (Report, error) {
	report := Report{TenantID: tenantID}

	tenant, err := s.links.GetTenantGuild(ctx, tenantID)
	if err != nil {
		return report, fmt.Errorf("resolve tenant guild: %w", err)
	}
	if err := s.syncCategories(ctx, tenant); err != nil {
		report.Failures++
		s.logger.Warn("category sync during full sync failed",
			slog.String("tenant_id", tenantID),
			slog.String("error", err.Error()))
	}

	active, err := s.directory.ActiveProjects(ctx, tenantID)
	if err != nil {
		return report, fmt.Errorf("list active projects: %w", err)
	}
	activeSet := make(map[string]bool, len(active))
	for _, project := range active {
		activeSet[project.ID] = true
		if _, err := s.projects.EnsureProjectChannels(ctx, tenantID, project.ID, project.Name); err != nil {
			report.Failures++
			s.logger.Warn("ensure during full sync failed",
				slog.String("tenant_id", tenantID),
				slog.String("project_id", project.ID),
				slog.String("error", err.Error()))
			continue
		}
		report.Ensured++
		s.ensurePostings(ctx, project.ID, &report)
	}

	linked, err := s.links.ListTenantProjects(ctx, tenantID)
	if err != nil {
		return report, fmt.Errorf("list linked projects: %w", err)
	}
	for _, projectID := range linked {
		if activeSet[projectID] {
			continue
		}
		if err := s.projects.ArchiveProjectChannels(ctx, tenantID, projectID); err != nil {
			report.Failures++
			s.logger.Warn("archive during full sync failed",
				slog.String("tenant_id", tenantID),
				slog.String("project_id", projectID),
				slog.String("error", err.Error()))
			continue
		}
		report.Archived++
	}
	return report, nil
}

// syncCategories re-ensures every stored category link, repairing Discord
// categories that were renamed or deleted out from under their links.
func (s *Service) syncCategories(ctx context.Context, tenant correlation.TenantGuildLink) error {
	stored, err := s.links.ListCategories(ctx, tenant.TenantID)
	if err != nil {
		return fmt.Errorf("list category links: %w", err)
	}
	if len(stored) == 0 {
		return nil
	}
	specs := make([]channels.CategorySpec, 0, len(stored))
	for _, link := range stored {
		specs = append(specs, channels.CategorySpec{ID: link.CategoryID, Name: link.Name})
	}
	return s.projects.SyncCategoryStructure(ctx, tenant.GuildID, tenant.TenantID, specs)
}

// ensurePostings backfills task cards whose create event was lost. Cards
// that already exist are skipped, never reposted.
func (s *Service) ensurePostings(ctx context.Context, projectID string, report *Report) {
	tasks, err := s.directory.ProjectTasks(ctx, projectID)
	if err != nil {
		report.Failures++
		s.logger.Warn("list tasks during full sync failed",
			slog.String("project_id", projectID),
			slog.String("error", err.Error()))
		return
	}
	for _, task := range tasks {
		outcome, err := s.postings.EnsurePosting(ctx, task)
		if err != nil || outcome.Status == notify.StatusWarning {
			report.Failures++
			reason := outcome.Reason
			if err != nil {
				reason = err.Error()
			}
			s.logger.Warn("backfill task card failed",
				slog.String("task_id", task.ID),
				slog.String("reason", reason))
			continue
		}
		if outcome.IsOk() {
			report.Postings++
		}
	}
}
