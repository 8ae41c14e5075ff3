// Package projecthubsdk is a small HTTP client for the projecthub API.
package projecthubsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal projecthub HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	// UserID is sent as X-User-Id when no token is set. The server must allow it.
	UserID     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults. baseURL includes the API base
// path, e.g. http://localhost:8080/v1.
func New(baseURL string) *Client {
	return &Client{BaseURL: baseURL, Timeout: 10 * time.Second}
}

// Project represents the API project model.
type Project struct {
	ID                string `json:"id"`
	Title             string `json:"title"`
	Description       string `json:"description,omitempty"`
	Stage             string `json:"stage"`
	OwnerID           string `json:"owner_id"`
	SeekingInvestment bool   `json:"seeking_investment"`
	CompletionPercent int    `json:"completion_percent"`
	Version           int64  `json:"version"`
}

// Task represents the API task model (partial).
type Task struct {
	ID         string   `json:"id"`
	ProjectID  string   `json:"project_id"`
	Title      string   `json:"title"`
	Status     string   `json:"status"`
	Priority   string   `json:"priority"`
	AssigneeID *string  `json:"assignee_id,omitempty"`
	DependsOn  []string `json:"depends_on,omitempty"`
}

type Member struct {
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
}

type Conflict struct {
	Type     string   `json:"type"`
	Severity string   `json:"severity"`
	TaskIDs  []string `json:"task_ids"`
	Message  string   `json:"message"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateProject creates a project owned by the caller.
func (c *Client) CreateProject(ctx context.Context, id, title, description string) (Project, error) {
	body := map[string]any{"id": id, "title": title, "description": description}
	var resp Project
	err := c.do(ctx, http.MethodPost, "projects", body, &resp)
	return resp, err
}

func (c *Client) GetProject(ctx context.Context, projectID string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, projectPath(projectID, ""), nil, &resp)
	return resp, err
}

// Transition moves a project to stage, asserting met requirements.
func (c *Client) Transition(ctx context.Context, projectID, stage string, met ...string) (Project, error) {
	body := map[string]any{"to": stage, "met": met}
	var resp Project
	err := c.do(ctx, http.MethodPost, projectPath(projectID, "transitions"), body, &resp)
	return resp, err
}

func (c *Client) AddMember(ctx context.Context, projectID, userID, role string) (Member, error) {
	body := map[string]any{"user_id": userID, "role": role}
	var resp Member
	err := c.do(ctx, http.MethodPost, projectPath(projectID, "members"), body, &resp)
	return resp, err
}

// CreateTask creates a task in a project.
func (c *Client) CreateTask(ctx context.Context, projectID, title string, dependsOn ...string) (Task, error) {
	body := map[string]any{"title": title, "depends_on": dependsOn}
	var resp Task
	err := c.do(ctx, http.MethodPost, projectPath(projectID, "tasks"), body, &resp)
	return resp, err
}

// SetTaskStatus moves a task to status.
func (c *Client) SetTaskStatus(ctx context.Context, taskID, status string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPatch, "tasks/"+url.PathEscape(taskID), map[string]any{"status": status}, &resp)
	return resp, err
}

// AddDependency makes taskID depend on dependsOnID. added is false when the
// edge already existed.
func (c *Client) AddDependency(ctx context.Context, taskID, dependsOnID string) (bool, error) {
	var resp struct {
		Added bool `json:"added"`
	}
	endpoint := fmt.Sprintf("tasks/%s/dependencies", url.PathEscape(taskID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"depends_on_id": dependsOnID}, &resp)
	return resp.Added, err
}

// Conflicts runs the conflict detector for a project.
func (c *Client) Conflicts(ctx context.Context, projectID string) ([]Conflict, error) {
	var resp []Conflict
	err := c.do(ctx, http.MethodGet, projectPath(projectID, "conflicts"), nil, &resp)
	return resp, err
}

// Events returns events with an id greater than afterID.
func (c *Client) Events(ctx context.Context, projectID string, afterID int64, limit int) ([]Event, error) {
	q := url.Values{}
	if afterID > 0 {
		q.Set("after_id", fmt.Sprint(afterID))
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	endpoint := projectPath(projectID, "events")
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.UserID != "":
		req.Header.Set("X-User-Id", c.UserID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code, apiErr.Message, apiErr.Details = env.Error.Code, env.Error.Message, env.Error.Details
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func projectPath(projectID, p string) string {
	out := "projects/" + url.PathEscape(projectID)
	if p != "" {
		out += "/" + strings.TrimLeft(p, "/")
	}
	return out
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
