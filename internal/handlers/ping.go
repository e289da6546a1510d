package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/crewlane/guildsync/internal/healthcheck"
)

type healthReporter interface {
	Report(ctx context.Context) healthcheck.Report
}

// PingHandler serves the unauthenticated liveness endpoints.
type PingHandler struct {
	logger *slog.Logger
	health healthReporter
}

func NewPingHandler(log *slog.Logger, health healthReporter) *PingHandler {
	if log == nil {
		log = slog.Default()
	}
	return &PingHandler{
		logger: log.With(slog.String("handler", "ping")),
		health: health,
	}
}

func (h *PingHandler) Register(e *echo.Echo) {
	e.GET("/ping", h.Ping)
	e.GET("/health", h.Health)
	e.HEAD("/health", h.PingHead)
}

func (h *PingHandler) Ping(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Health probes Postgres and the Discord gateway. Load balancers get 503
// when either dependency is down.
func (h *PingHandler) Health(c echo.Context) error {
	if h.health == nil {
		return c.JSON(http.StatusOK, healthcheck.Report{Status: healthcheck.StatusOK})
	}
	report := h.health.Report(c.Request().Context())
	status := http.StatusOK
	if report.Status != healthcheck.StatusOK {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, report)
}

func (h *PingHandler) PingHead(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}
