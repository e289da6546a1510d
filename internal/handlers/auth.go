package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/crewlane/guildsync/internal/auth"
)

// AuthHandler issues admin tokens for the operator API.
type AuthHandler struct {
	logger      *slog.Logger
	credentials *auth.Credentials
	jwtSecret   string
	expiresIn   time.Duration
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewAuthHandler(log *slog.Logger, credentials *auth.Credentials, jwtSecret string, expiresIn time.Duration) *AuthHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AuthHandler{
		logger:      log.With(slog.String("handler", "auth")),
		credentials: credentials,
		jwtSecret:   jwtSecret,
		expiresIn:   expiresIn,
	}
}

func (h *AuthHandler) Register(e *echo.Echo) {
	e.POST("/auth/login", h.Login)
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if !h.credentials.Verify(req.Username, req.Password) {
		h.logger.Warn("login rejected", slog.String("username", req.Username))
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}
	token, expiresAt, err := auth.GenerateToken(h.credentials.Username(), h.jwtSecret, h.expiresIn)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt})
}
