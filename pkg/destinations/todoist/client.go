// Package todoist is the destination for synced tasks: projects are the
// lists, tasks are the entries.
package todoist

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

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/mywio/task-sync/pkg/reconcile"
	"github.com/mywio/task-sync/pkg/retry"
)

const DefaultBaseURL = "https://api.todoist.com/rest/v2"

// Todoist allows 450 requests per 15 minutes per user.
const (
	defaultRate  = rate.Limit(450.0 / (15 * 60))
	defaultBurst = 50
)

var (
	ErrMissingToken     = errors.New("todoist: missing API token")
	ErrUnexpectedStatus = errors.New("todoist: unexpected status")
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("todoist: %s %s returned status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrUnexpectedStatus }

// Temporary reports whether the request may succeed when retried.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type Client struct {
	baseURL    string
	baseHTTP   *http.Client
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      retry.Config
	logger     *slog.Logger
	requestID  func() string
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets the transport the bearer-token client is layered on.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.baseHTTP = h } }

func WithRateLimit(r rate.Limit, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(r, burst) }
}

func WithRetry(cfg retry.Config) Option { return func(c *Client) { c.retry = cfg } }

func NewClient(token string, logger *slog.Logger, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	c := &Client{
		baseURL:   DefaultBaseURL,
		limiter:   rate.NewLimiter(defaultRate, defaultBurst),
		retry:     retry.DefaultConfig(),
		logger:    logger,
		requestID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(c)
	}

	ctx := context.Background()
	if c.baseHTTP != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.baseHTTP)
	}
	c.httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
	c.httpClient.Timeout = 30 * time.Second
	return c, nil
}

type project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type task struct {
	ID          string `json:"id"`
	Content     string `json:"content"`
	Description string `json:"description"`
	ProjectID   string `json:"project_id"`
	IsCompleted bool   `json:"is_completed"`
}

func (t task) toTask() reconcile.Task {
	return reconcile.Task{ID: t.ID, Name: t.Content, Description: t.Description, ListID: t.ProjectID, Completed: t.IsCompleted}
}

type createTaskRequest struct {
	Content     string `json:"content"`
	Description string `json:"description,omitempty"`
	ProjectID   string `json:"project_id"`
}

type updateTaskRequest struct {
	Content     string `json:"content"`
	Description string `json:"description"`
}

func (c *Client) Projects(ctx context.Context) ([]reconcile.List, error) {
	var projects []project
	if err := c.do(ctx, http.MethodGet, "/projects", nil, nil, &projects); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	lists := make([]reconcile.List, 0, len(projects))
	for _, p := range projects {
		lists = append(lists, reconcile.List{ID: p.ID, Name: p.Name})
	}
	return lists, nil
}

// Tasks returns the active tasks of a project.
func (c *Client) Tasks(ctx context.Context, projectID string) ([]reconcile.Task, error) {
	var tasks []task
	q := url.Values{"project_id": {projectID}}
	if err := c.do(ctx, http.MethodGet, "/tasks", q, nil, &tasks); err != nil {
		return nil, fmt.Errorf("list tasks of project %s: %w", projectID, err)
	}
	out := make([]reconcile.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.IsCompleted {
			continue
		}
		out = append(out, t.toTask())
	}
	return out, nil
}

func (c *Client) CreateTask(ctx context.Context, listID, name, description string) (reconcile.Task, error) {
	var created task
	body := createTaskRequest{Content: name, Description: description, ProjectID: listID}
	if err := c.do(ctx, http.MethodPost, "/tasks", nil, body, &created); err != nil {
		return reconcile.Task{}, fmt.Errorf("create task %q: %w", name, err)
	}
	return created.toTask(), nil
}

func (c *Client) UpdateTask(ctx context.Context, taskID, name, description string) (reconcile.Task, error) {
	var updated task
	body := updateTaskRequest{Content: name, Description: description}
	if err := c.do(ctx, http.MethodPost, "/tasks/"+url.PathEscape(taskID), nil, body, &updated); err != nil {
		return reconcile.Task{}, fmt.Errorf("update task %s: %w", taskID, err)
	}
	return updated.toTask(), nil
}

func (c *Client) CloseTask(ctx context.Context, taskID string) error {
	if err := c.do(ctx, http.MethodPost, "/tasks/"+url.PathEscape(taskID)+"/close", nil, nil, nil); err != nil {
		return fmt.Errorf("close task %s: %w", taskID, err)
	}
	return nil
}

// do sends one logical request. Writes keep the same X-Request-Id across
// retries so Todoist can drop duplicates.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	requestID := ""
	if method != http.MethodGet {
		requestID = c.requestID()
	}

	_, err := retry.Do(ctx, c.retry, c.logger, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return retry.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
		if err != nil {
			return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if requestID != "" {
			req.Header.Set("X-Request-Id", requestID)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			statusErr := &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
			if statusErr.Temporary() {
				return statusErr
			}
			return retry.Permanent(statusErr)
		}

		if out == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return retry.Permanent(fmt.Errorf("failed to decode response: %w", err))
		}
		return nil
	})
	return err
}
