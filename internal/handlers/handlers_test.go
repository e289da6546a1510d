package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/crewlane/guildsync/internal/auth"
	"github.com/crewlane/guildsync/internal/correlation"
	"github.com/crewlane/guildsync/internal/ingest"
	"github.com/crewlane/guildsync/internal/resync"
)

const testJWTSecret = "handlers-test-secret"

func adminContext(t *testing.T, method, target string, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	tokenStr, _, err := auth.GenerateToken("admin", testJWTSecret, time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	token, err := jwt.Parse(tokenStr, func(*jwt.Token) (interface{}, error) {
		return []byte(testJWTSecret), nil
	})
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	c.Set("user", token)
	return c, rec
}

type fakeLinkStore struct {
	listTenantGuilds    func(ctx context.Context) ([]correlation.TenantGuildLink, error)
	getTenantGuild      func(ctx context.Context, tenantID string) (correlation.TenantGuildLink, error)
	listProjectChannels func(ctx context.Context, projectID string) ([]correlation.ProjectChannelLink, error)
	getTaskPosting      func(ctx context.Context, taskID string) (correlation.TaskPostingLink, error)
}

func (f *fakeLinkStore) ListTenantGuilds(ctx context.Context) ([]correlation.TenantGuildLink, error) {
	return f.listTenantGuilds(ctx)
}

func (f *fakeLinkStore) GetTenantGuild(ctx context.Context, tenantID string) (correlation.TenantGuildLink, error) {
	return f.getTenantGuild(ctx, tenantID)
}

func (f *fakeLinkStore) ListProjectChannels(ctx context.Context, projectID string) ([]correlation.ProjectChannelLink, error) {
	return f.listProjectChannels(ctx, projectID)
}

func (f *fakeLinkStore) GetTaskPosting(ctx context.Context, taskID string) (correlation.TaskPostingLink, error) {
	return f.getTaskPosting(ctx, taskID)
}

type fakeSyncer struct {
	fullSync func(ctx context.Context, tenantID string) (resync.Report, error)
}

func (f *fakeSyncer) FullSync(ctx context.Context, tenantID string) (resync.Report, error) {
	return f.fullSync(ctx, tenantID)
}

type fakeOutbox struct {
	listFailed func(ctx context.Context, limit int) ([]ingest.FailedEvent, error)
}

func (f *fakeOutbox) ListFailed(ctx context.Context, limit int) ([]ingest.FailedEvent, error) {
	return f.listFailed(ctx, limit)
}

func TestLoginIssuesToken(t *testing.T) {
	creds, err := auth.NewCredentials("admin", "hunter2hunter2")
	if err != nil {
		t.Fatalf("credentials: %v", err)
	}
	h := NewAuthHandler(slog.Default(), creds, testJWTSecret, time.Hour)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"username":"admin","password":"hunter2hunter2"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	if err := h.Login(e.NewContext(req, rec)); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", rec.Code)
	}
	var resp struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Token == "" || resp.ExpiresAt.Before(time.Now()) {
		t.Fatalf("response %+v", resp)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	creds, err := auth.NewCredentials("admin", "hunter2hunter2")
	if err != nil {
		t.Fatalf("credentials: %v", err)
	}
	h := NewAuthHandler(slog.Default(), creds, testJWTSecret, time.Hour)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"username":"admin","password":"wrong"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	err = h.Login(e.NewContext(req, httptest.NewRecorder()))
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("got %v, want 401", err)
	}
}

func TestGetTenantNotLinkedIs404(t *testing.T) {
	store := &fakeLinkStore{
		getTenantGuild: func(context.Context, string) (correlation.TenantGuildLink, error) {
			return correlation.TenantGuildLink{}, correlation.ErrTenantNotLinked
		},
	}
	h := NewLinksHandler(slog.Default(), store)

	c, _ := adminContext(t, http.MethodGet, "/links/tenants/tenant-1", "")
	c.SetParamNames("id")
	c.SetParamValues("tenant-1")

	err := h.GetTenant(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("got %v, want 404", err)
	}
}

func TestGetTaskPostingReturnsLink(t *testing.T) {
	store := &fakeLinkStore{
		getTaskPosting: func(_ context.Context, taskID string) (correlation.TaskPostingLink, error) {
			return correlation.TaskPostingLink{TaskID: taskID, ChannelID: "chan-1", MessageID: "msg-1"}, nil
		},
	}
	h := NewLinksHandler(slog.Default(), store)

	c, rec := adminContext(t, http.MethodGet, "/links/tasks/task-1/posting", "")
	c.SetParamNames("id")
	c.SetParamValues("task-1")

	if err := h.GetTaskPosting(c); err != nil {
		t.Fatalf("GetTaskPosting: %v", err)
	}
	var link correlation.TaskPostingLink
	if err := json.Unmarshal(rec.Body.Bytes(), &link); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if link.TaskID != "task-1" || link.MessageID != "msg-1" {
		t.Fatalf("link %+v", link)
	}
}

func TestLinksRequireAdmin(t *testing.T) {
	h := NewLinksHandler(slog.Default(), &fakeLinkStore{})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/links/tenants", nil)
	err := h.ListTenants(e.NewContext(req, httptest.NewRecorder()))
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("got %v, want 401 without a token", err)
	}
}

func TestTriggerFullSyncReturnsReport(t *testing.T) {
	syncer := &fakeSyncer{
		fullSync: func(_ context.Context, tenantID string) (resync.Report, error) {
			return resync.Report{TenantID: tenantID, Ensured: 3, Archived: 1}, nil
		},
	}
	h := NewSyncHandler(slog.Default(), syncer, &fakeOutbox{})

	c, rec := adminContext(t, http.MethodPost, "/sync/tenants/tenant-1", "")
	c.SetParamNames("id")
	c.SetParamValues("tenant-1")

	if err := h.TriggerFullSync(c); err != nil {
		t.Fatalf("TriggerFullSync: %v", err)
	}
	var report resync.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if report.TenantID != "tenant-1" || report.Ensured != 3 || report.Archived != 1 {
		t.Fatalf("report %+v", report)
	}
}

func TestListFailedEventsLimit(t *testing.T) {
	var gotLimit int
	outbox := &fakeOutbox{
		listFailed: func(_ context.Context, limit int) ([]ingest.FailedEvent, error) {
			gotLimit = limit
			return []ingest.FailedEvent{{ID: "ev-1", Topic: "task-updated", LastError: "boom"}}, nil
		},
	}
	h := NewSyncHandler(slog.Default(), &fakeSyncer{}, outbox)

	c, _ := adminContext(t, http.MethodGet, "/events/failed", "")
	if err := h.ListFailedEvents(c); err != nil {
		t.Fatalf("ListFailedEvents: %v", err)
	}
	if gotLimit != 50 {
		t.Fatalf("default limit %d, want 50", gotLimit)
	}

	c, _ = adminContext(t, http.MethodGet, "/events/failed?limit=5", "")
	if err := h.ListFailedEvents(c); err != nil {
		t.Fatalf("ListFailedEvents: %v", err)
	}
	if gotLimit != 5 {
		t.Fatalf("limit %d, want 5", gotLimit)
	}

	c, _ = adminContext(t, http.MethodGet, "/events/failed?limit=zero", "")
	err := h.ListFailedEvents(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("got %v, want 400 for a bad limit", err)
	}
}
