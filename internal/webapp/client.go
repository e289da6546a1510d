// Package webapp holds the narrow contracts to the project-management web
// application and a JSON-over-HTTP client implementing them. Reconcilers and
// interaction handlers depend on the interfaces only.
package webapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Directory is the read side of the web application's data layer.
type Directory interface {
	Tenant(ctx context.Context, id string) (Tenant, error)
	Project(ctx context.Context, id string) (Project, error)
	Task(ctx context.Context, id string) (Task, error)
	ActiveProjects(ctx context.Context, tenantID string) ([]Project, error)
	ProjectTasks(ctx context.Context, projectID string) ([]Task, error)
	// MembershipRole returns the user's role in the tenant, "" when no
	// membership row exists yet.
	MembershipRole(ctx context.Context, tenantID, userID string) (string, error)
	// LinkedDiscordID returns the user's linked Discord account id, "" when
	// the account is not linked.
	LinkedDiscordID(ctx context.Context, userID string) (string, error)
	// UserByDiscordID resolves a Discord account back to an internal user,
	// ErrNotFound when no link exists.
	UserByDiscordID(ctx context.Context, discordUserID string) (User, error)
}

// Writer is the write side used by chat-originated actions. Every write is
// performed against the web application, never against local state.
type Writer interface {
	CompleteTask(ctx context.Context, taskID, actorUserID string) error
	AssignTask(ctx context.Context, taskID, assigneeUserID, actorUserID string) error
	CreateTask(ctx context.Context, projectID, title, description, actorUserID string) (Task, error)
	CreateNote(ctx context.Context, projectID, body, actorUserID string) error
	LogTime(ctx context.Context, taskID string, minutes int, note, actorUserID string) error
}

// Client talks to the web application's internal API with a bearer token and
// a per-call timeout.
type Client struct {
	logger  *slog.Logger
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a Client for the given base URL.
func NewClient(log *slog.Logger, baseURL, token string, timeout time.Duration) *Client {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		logger:  log.With(slog.String("component", "webapp")),
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) Tenant(ctx context.Context, id string) (Tenant, error) {
	var out Tenant
	err := c.do(ctx, http.MethodGet, "/internal/tenants/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) Project(ctx context.Context, id string) (Project, error) {
	var out Project
	err := c.do(ctx, http.MethodGet, "/internal/projects/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) Task(ctx context.Context, id string) (Task, error) {
	var out Task
	err := c.do(ctx, http.MethodGet, "/internal/tasks/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) ActiveProjects(ctx context.Context, tenantID string) ([]Project, error) {
	var out []Project
	err := c.do(ctx, http.MethodGet, "/internal/tenants/"+url.PathEscape(tenantID)+"/projects?active=true", nil, &out)
	return out, err
}

func (c *Client) ProjectTasks(ctx context.Context, projectID string) ([]Task, error) {
	var out []Task
	err := c.do(ctx, http.MethodGet, "/internal/projects/"+url.PathEscape(projectID)+"/tasks", nil, &out)
	return out, err
}

func (c *Client) MembershipRole(ctx context.Context, tenantID, userID string) (string, error) {
	var out struct {
		Role string `json:"role"`
	}
	err := c.do(ctx, http.MethodGet,
		"/internal/tenants/"+url.PathEscape(tenantID)+"/members/"+url.PathEscape(userID), nil, &out)
	if err != nil {
		if isNotFound(err) {
			return "", nil
		}
		return "", err
	}
	return out.Role, nil
}

func (c *Client) LinkedDiscordID(ctx context.Context, userID string) (string, error) {
	var out struct {
		DiscordUserID string `json:"discord_user_id"`
	}
	err := c.do(ctx, http.MethodGet, "/internal/users/"+url.PathEscape(userID)+"/discord", nil, &out)
	if err != nil {
		if isNotFound(err) {
			return "", nil
		}
		return "", err
	}
	return out.DiscordUserID, nil
}

func (c *Client) UserByDiscordID(ctx context.Context, discordUserID string) (User, error) {
	var out User
	err := c.do(ctx, http.MethodGet, "/internal/discord-accounts/"+url.PathEscape(discordUserID), nil, &out)
	return out, err
}

func (c *Client) CompleteTask(ctx context.Context, taskID, actorUserID string) error {
	body := map[string]string{"actor_user_id": actorUserID}
	return c.do(ctx, http.MethodPost, "/internal/tasks/"+url.PathEscape(taskID)+"/complete", body, nil)
}

func (c *Client) AssignTask(ctx context.Context, taskID, assigneeUserID, actorUserID string) error {
	body := map[string]string{"assignee_user_id": assigneeUserID, "actor_user_id": actorUserID}
	return c.do(ctx, http.MethodPost, "/internal/tasks/"+url.PathEscape(taskID)+"/assign", body, nil)
}

func (c *Client) CreateTask(ctx context.Context, projectID, title, description, actorUserID string) (Task, error) {
	body := map[string]string{"title": title, "description": description, "actor_user_id": actorUserID}
	var out Task
	err := c.do(ctx, http.MethodPost, "/internal/projects/"+url.PathEscape(projectID)+"/tasks", body, &out)
	return out, err
}

func (c *Client) CreateNote(ctx context.Context, projectID, body, actorUserID string) error {
	payload := map[string]string{"body": body, "actor_user_id": actorUserID}
	return c.do(ctx, http.MethodPost, "/internal/projects/"+url.PathEscape(projectID)+"/notes", payload, nil)
}

func (c *Client) LogTime(ctx context.Context, taskID string, minutes int, note, actorUserID string) error {
	payload := map[string]any{"minutes": minutes, "note": note, "actor_user_id": actorUserID}
	return c.do(ctx, http.MethodPost, "/internal/tasks/"+url.PathEscape(taskID)+"/time-entries", payload, nil)
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("webapp base url not configured")
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("webapp request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s %s", ErrNotFound, method, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webapp responded %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode webapp response: %w", err)
	}
	return nil
}
