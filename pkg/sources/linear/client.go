// Package linear fetches the issues assigned to the API key's owner.
package linear

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mywio/task-sync/pkg/reconcile"
	"github.com/mywio/task-sync/pkg/retry"
)

const (
	DefaultEndpoint = "https://api.linear.app/graphql"
	pageSize        = 50
)

var (
	ErrMissingToken = errors.New("linear: missing API key")
	ErrGraphQL      = errors.New("linear: graphql error")
)

// HTTPClient interface for HTTP operations (allows mocking in tests).
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type Client struct {
	endpoint   string
	apiKey     string
	states     []string
	httpClient HTTPClient
	retry      retry.Config
	logger     *slog.Logger
}

type Option func(*Client)

func WithEndpoint(url string) Option { return func(c *Client) { c.endpoint = url } }

func WithHTTPClient(h HTTPClient) Option { return func(c *Client) { c.httpClient = h } }

func WithRetry(cfg retry.Config) Option { return func(c *Client) { c.retry = cfg } }

// NewClient creates a Linear client restricted to issues in the given states.
func NewClient(apiKey string, states []string, logger *slog.Logger, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingToken
	}
	c := &Client{
		endpoint:   DefaultEndpoint,
		apiKey:     apiKey,
		states:     states,
		httpClient: http.DefaultClient,
		retry:      retry.DefaultConfig(),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

const assignedIssuesQuery = `query AssignedIssues($first: Int!, $after: String, $states: [String!]) {
  viewer {
    assignedIssues(first: $first, after: $after, filter: { state: { name: { in: $states } } }) {
      nodes {
        identifier
        title
        description
        state { name }
      }
      pageInfo { hasNextPage endCursor }
    }
  }
}`

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type issueNode struct {
	Identifier  string  `json:"identifier"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
	State       *struct {
		Name string `json:"name"`
	} `json:"state"`
}

type assignedIssuesResponse struct {
	Data *struct {
		Viewer *struct {
			AssignedIssues *struct {
				Nodes    []*issueNode `json:"nodes"`
				PageInfo struct {
					HasNextPage bool    `json:"hasNextPage"`
					EndCursor   *string `json:"endCursor"`
				} `json:"pageInfo"`
			} `json:"assignedIssues"`
		} `json:"viewer"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// AssignedIssues walks every page of the viewer's assigned issues.
func (c *Client) AssignedIssues(ctx context.Context) ([]reconcile.Issue, error) {
	var (
		issues []reconcile.Issue
		after  *string
	)
	for page := 1; ; page++ {
		vars := map[string]any{"first": pageSize, "after": after}
		if len(c.states) > 0 {
			vars["states"] = c.states
		}

		var resp assignedIssuesResponse
		if err := c.query(ctx, assignedIssuesQuery, vars, &resp); err != nil {
			return nil, fmt.Errorf("fetch assigned issues page %d: %w", page, err)
		}
		if resp.Data == nil || resp.Data.Viewer == nil || resp.Data.Viewer.AssignedIssues == nil {
			return nil, fmt.Errorf("fetch assigned issues page %d: %w: empty response", page, ErrGraphQL)
		}

		conn := resp.Data.Viewer.AssignedIssues
		for _, node := range conn.Nodes {
			if issue, ok := c.toIssue(node); ok {
				issues = append(issues, issue)
			}
		}

		if !conn.PageInfo.HasNextPage || conn.PageInfo.EndCursor == nil {
			break
		}
		after = conn.PageInfo.EndCursor
	}
	return issues, nil
}

// Issues implements the issue source used by the syncer.
func (c *Client) Issues(ctx context.Context) ([]reconcile.Issue, error) {
	return c.AssignedIssues(ctx)
}

// toIssue validates a node at the boundary: identifier and title are required.
func (c *Client) toIssue(node *issueNode) (reconcile.Issue, bool) {
	if node == nil || strings.TrimSpace(node.Identifier) == "" || strings.TrimSpace(node.Title) == "" {
		if c.logger != nil {
			c.logger.Warn("Dropping malformed Linear issue", "node", node)
		}
		return reconcile.Issue{}, false
	}
	issue := reconcile.Issue{Identifier: node.Identifier, Title: node.Title}
	if node.Description != nil {
		issue.Description = *node.Description
	}
	if node.State != nil {
		issue.State = node.State.Name
	}
	return issue, true
}

func (c *Client) query(ctx context.Context, query string, vars map[string]any, out *assignedIssuesResponse) error {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	_, err = retry.Do(ctx, c.retry, c.logger, func(ctx context.Context) error {
		*out = assignedIssuesResponse{}
		return c.doRequest(ctx, body, out)
	})
	if err != nil {
		return err
	}
	if len(out.Errors) > 0 {
		msgs := make([]string, 0, len(out.Errors))
		for _, e := range out.Errors {
			msgs = append(msgs, e.Message)
		}
		return fmt.Errorf("%w: %s", ErrGraphQL, strings.Join(msgs, "; "))
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, body []byte, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return retry.Permanent(fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}
