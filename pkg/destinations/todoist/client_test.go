package todoist

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/mywio/task-sync/pkg/reconcile"
	"github.com/mywio/task-sync/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := NewClient("todo-token", slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithBaseURL(server.URL+"/rest/v2/"),
		WithRateLimit(rate.Inf, 1),
		WithRetry(retry.Config{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}),
	)
	require.NoError(t, err)
	return c
}

func TestNewClient_MissingToken(t *testing.T) {
	_, err := NewClient("", slog.Default())
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestProjectsAndTasks(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /rest/v2/projects", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer todo-token", r.Header.Get("Authorization"))
		assert.Empty(t, r.Header.Get("X-Request-Id"))
		fmt.Fprint(w, `[{"id":"p1","name":"Linear"},{"id":"p2","name":"Code Review"}]`)
	})
	mux.HandleFunc("GET /rest/v2/tasks", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "p1", r.URL.Query().Get("project_id"))
		fmt.Fprint(w, `[
			{"id":"t1","content":"[ENG-1] Fix","description":"d","project_id":"p1","is_completed":false},
			{"id":"t2","content":"[ENG-2] Done","project_id":"p1","is_completed":true}
		]`)
	})

	c := newTestClient(t, mux)
	lists, err := c.Projects(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []reconcile.List{{ID: "p1", Name: "Linear"}, {ID: "p2", Name: "Code Review"}}, lists)

	tasks, err := c.Tasks(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, []reconcile.Task{{ID: "t1", Name: "[ENG-1] Fix", Description: "d", ListID: "p1"}}, tasks)
}

func TestWritesCarryStableRequestID(t *testing.T) {
	var createCalls atomic.Int32
	var ids []string

	mux := http.NewServeMux()
	mux.HandleFunc("POST /rest/v2/tasks", func(w http.ResponseWriter, r *http.Request) {
		ids = append(ids, r.Header.Get("X-Request-Id"))
		if createCalls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var body createTaskRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, createTaskRequest{Content: "CR: Add cache", Description: "https://gl/mr/1", ProjectID: "p2"}, body)
		fmt.Fprint(w, `{"id":"t9","content":"CR: Add cache","description":"https://gl/mr/1","project_id":"p2"}`)
	})
	mux.HandleFunc("POST /rest/v2/tasks/t9", func(w http.ResponseWriter, r *http.Request) {
		var body updateTaskRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "new text", body.Description)
		fmt.Fprint(w, `{"id":"t9","content":"CR: Add cache","description":"new text","project_id":"p2"}`)
	})
	mux.HandleFunc("POST /rest/v2/tasks/t9/close", func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))
		w.WriteHeader(http.StatusNoContent)
	})

	c := newTestClient(t, mux)
	ctx := context.Background()

	created, err := c.CreateTask(ctx, "p2", "CR: Add cache", "https://gl/mr/1")
	require.NoError(t, err)
	assert.Equal(t, "t9", created.ID)
	require.Len(t, ids, 2)
	assert.NotEmpty(t, ids[0])
	assert.Equal(t, ids[0], ids[1])

	updated, err := c.UpdateTask(ctx, "t9", "CR: Add cache", "new text")
	require.NoError(t, err)
	assert.Equal(t, "new text", updated.Description)

	require.NoError(t, c.CloseTask(ctx, "t9"))
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /rest/v2/tasks/missing/close", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, "Task not found")
	})

	c := newTestClient(t, mux)
	err := c.CloseTask(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, "Task not found", statusErr.Body)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRateLimitIsRetriedUntilExhausted(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /rest/v2/projects", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	c := newTestClient(t, mux)
	_, err := c.Projects(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSnapshot(t *testing.T) {
	var taskCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /rest/v2/projects", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id":"p1","name":"Linear"},{"id":"p2","name":"Code Review"},{"id":"p3","name":"Linear"}]`)
	})
	mux.HandleFunc("GET /rest/v2/tasks", func(w http.ResponseWriter, r *http.Request) {
		taskCalls.Add(1)
		pid := r.URL.Query().Get("project_id")
		fmt.Fprintf(w, `[{"id":"t-%s","content":"task","project_id":%q}]`, pid, pid)
	})

	c := newTestClient(t, mux)
	lists, tasks, err := c.Snapshot(context.Background(), "Linear", "Missing", "Linear")
	require.NoError(t, err)

	assert.Len(t, lists, 3)
	assert.Equal(t, map[string][]reconcile.Task{
		"p1": {{ID: "t-p1", Name: "task", ListID: "p1"}},
	}, tasks)
	assert.Equal(t, int32(1), taskCalls.Load())
}

func TestSnapshot_TaskFetchFails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /rest/v2/projects", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id":"p1","name":"Linear"}]`)
	})
	mux.HandleFunc("GET /rest/v2/tasks", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	c := newTestClient(t, mux)
	_, _, err := c.Snapshot(context.Background(), "Linear")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
}
