package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/crewlane/guildsync/internal/auth"
	"github.com/crewlane/guildsync/internal/ingest"
	"github.com/crewlane/guildsync/internal/resync"
)

type fullSyncer interface {
	FullSync(ctx context.Context, tenantID string) (resync.Report, error)
}

type failedLister interface {
	ListFailed(ctx context.Context, limit int) ([]ingest.FailedEvent, error)
}

// SyncHandler lets operators trigger a tenant full sync on demand and
// inspect events that failed processing.
type SyncHandler struct {
	logger *slog.Logger
	syncer fullSyncer
	outbox failedLister
}

func NewSyncHandler(log *slog.Logger, syncer fullSyncer, outbox failedLister) *SyncHandler {
	if log == nil {
		log = slog.Default()
	}
	return &SyncHandler{
		logger: log.With(slog.String("handler", "sync")),
		syncer: syncer,
		outbox: outbox,
	}
}

func (h *SyncHandler) Register(e *echo.Echo) {
	e.POST("/sync/tenants/:id", h.TriggerFullSync)
	e.GET("/events/failed", h.ListFailedEvents)
}

func (h *SyncHandler) TriggerFullSync(c echo.Context) error {
	if err := auth.RequireAdmin(c); err != nil {
		return err
	}
	tenantID := c.Param("id")
	report, err := h.syncer.FullSync(c.Request().Context(), tenantID)
	if err != nil {
		h.logger.Error("manual full sync failed",
			slog.String("tenant_id", tenantID),
			slog.String("error", err.Error()))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, report)
}

func (h *SyncHandler) ListFailedEvents(c echo.Context) error {
	if err := auth.RequireAdmin(c); err != nil {
		return err
	}
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = parsed
	}
	failed, err := h.outbox.ListFailed(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, failed)
}
