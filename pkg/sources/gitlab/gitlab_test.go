package gitlab

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mywio/task-sync/pkg/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSource(t *testing.T, handler http.Handler) *Source {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	src, err := New(Config{
		URL:      server.URL,
		Token:    "glpat",
		Group:    "acme",
		Username: "jdoe",
		Lookback: 24 * time.Hour,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	src.now = func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) }
	return src
}

func TestReviews(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v4/groups/acme/merge_requests", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "glpat", r.Header.Get("PRIVATE-TOKEN"))
		assert.Equal(t, "jdoe", r.URL.Query().Get("reviewer_username"))
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Query().Get("state") {
		case "opened":
			assert.Equal(t, "no", r.URL.Query().Get("wip"))
			if r.URL.Query().Get("page") == "2" {
				fmt.Fprint(w, `[{"id":3,"iid":9,"project_id":11,"title":"Second page","web_url":"https://gl/acme/app/-/merge_requests/9","reviewers":[{"username":"jdoe"}]}]`)
				return
			}
			w.Header().Set("X-Next-Page", "2")
			fmt.Fprint(w, `[
				{"id":1,"iid":7,"project_id":11,"title":"Fix retry loop","web_url":"https://gl/acme/app/-/merge_requests/7","reviewers":[{"username":"jdoe"},{"username":"ann"}]},
				{"id":2,"iid":8,"project_id":11,"title":"","web_url":"https://gl/acme/app/-/merge_requests/8"}
			]`)
		case "merged":
			assert.Equal(t, "2026-10-18T12:00:00Z", r.URL.Query().Get("updated_after"))
			fmt.Fprint(w, `[{"id":4,"iid":3,"project_id":12,"title":"Old change","web_url":"https://gl/acme/lib/-/merge_requests/3","reviewers":[{"username":"jdoe"}]}]`)
		default:
			t.Errorf("unexpected state %q", r.URL.Query().Get("state"))
		}
	})
	mux.HandleFunc("/api/v4/projects/11/merge_requests/7/approvals", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"approved_by":[{"user":{"username":"ann"}}]}`)
	})
	mux.HandleFunc("/api/v4/projects/11/merge_requests/9/approvals", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"approved_by":[{"user":{"username":"jdoe"}}]}`)
	})

	src := newTestSource(t, mux)
	awaiting, reviewed, err := src.Reviews(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []reconcile.MergeRequest{
		{Title: "Fix retry loop", URL: "https://gl/acme/app/-/merge_requests/7", Reviewers: []string{"jdoe", "ann"}, Approvers: []string{"ann"}},
		{Title: "Second page", URL: "https://gl/acme/app/-/merge_requests/9", Reviewers: []string{"jdoe"}, Approvers: []string{"jdoe"}},
	}, awaiting)

	require.Len(t, reviewed, 2)
	assert.Equal(t, "Second page", reviewed[0].Title)
	assert.Equal(t, "Old change", reviewed[1].Title)
}

func TestReviewsPropagatesErrors(t *testing.T) {
	src := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message":"401 Unauthorized"}`)
	}))

	_, _, err := src.Reviews(context.Background())
	assert.Error(t, err)
}

func TestNewValidates(t *testing.T) {
	_, err := New(Config{Group: "g", Username: "u"}, slog.Default())
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = New(Config{Token: "t"}, slog.Default())
	assert.Error(t, err)
}
