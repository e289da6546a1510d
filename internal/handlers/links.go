package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/crewlane/guildsync/internal/auth"
	"github.com/crewlane/guildsync/internal/correlation"
)

type linkStore interface {
	ListTenantGuilds(ctx context.Context) ([]correlation.TenantGuildLink, error)
	GetTenantGuild(ctx context.Context, tenantID string) (correlation.TenantGuildLink, error)
	ListProjectChannels(ctx context.Context, projectID string) ([]correlation.ProjectChannelLink, error)
	GetTaskPosting(ctx context.Context, taskID string) (correlation.TaskPostingLink, error)
}

// LinksHandler exposes the correlation tables read-only, for operators
// diagnosing why an entity did or did not sync.
type LinksHandler struct {
	logger *slog.Logger
	store  linkStore
}

func NewLinksHandler(log *slog.Logger, store linkStore) *LinksHandler {
	if log == nil {
		log = slog.Default()
	}
	return &LinksHandler{
		logger: log.With(slog.String("handler", "links")),
		store:  store,
	}
}

func (h *LinksHandler) Register(e *echo.Echo) {
	group := e.Group("/links")
	group.GET("/tenants", h.ListTenants)
	group.GET("/tenants/:id", h.GetTenant)
	group.GET("/projects/:id/channels", h.ListProjectChannels)
	group.GET("/tasks/:id/posting", h.GetTaskPosting)
}

func (h *LinksHandler) ListTenants(c echo.Context) error {
	if err := auth.RequireAdmin(c); err != nil {
		return err
	}
	links, err := h.store.ListTenantGuilds(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, links)
}

func (h *LinksHandler) GetTenant(c echo.Context) error {
	if err := auth.RequireAdmin(c); err != nil {
		return err
	}
	link, err := h.store.GetTenantGuild(c.Request().Context(), c.Param("id"))
	if errors.Is(err, correlation.ErrTenantNotLinked) {
		return echo.NewHTTPError(http.StatusNotFound, "tenant not linked")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, link)
}

func (h *LinksHandler) ListProjectChannels(c echo.Context) error {
	if err := auth.RequireAdmin(c); err != nil {
		return err
	}
	links, err := h.store.ListProjectChannels(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, links)
}

func (h *LinksHandler) GetTaskPosting(c echo.Context) error {
	if err := auth.RequireAdmin(c); err != nil {
		return err
	}
	link, err := h.store.GetTaskPosting(c.Request().Context(), c.Param("id"))
	if errors.Is(err, correlation.ErrPostingNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "task has no live posting")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, link)
}
