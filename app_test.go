package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/mywio/task-sync/pkg/config"
	"github.com/mywio/task-sync/pkg/secrets"
	"github.com/mywio/task-sync/pkg/sources/github"
	"github.com/mywio/task-sync/pkg/sources/gitlab"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResolveCredentials(t *testing.T) {
	t.Setenv("TEST_TODOIST_TOKEN", "todo-secret")
	t.Setenv("TEST_PUSHOVER_TOKEN", "push-secret")

	cfg := config.Config{TodoistAPIKey: "env:TEST_TODOIST_TOKEN", LinearAPIKey: "lin_plain"}
	cfgMap := config.ConfigMap{"pushover": {"token": "env:TEST_PUSHOVER_TOKEN", "user": "u"}}

	r := secrets.NewResolver(discardLogger())
	require.NoError(t, resolveCredentials(context.Background(), r, &cfg, cfgMap))

	assert.Equal(t, "todo-secret", cfg.TodoistAPIKey)
	assert.Equal(t, "lin_plain", cfg.LinearAPIKey)
	assert.Equal(t, "push-secret", cfgMap["pushover"]["token"])
}

func TestResolveCredentials_ReportsEveryFailure(t *testing.T) {
	cfg := config.Config{TodoistAPIKey: "env:TEST_UNSET_TODOIST", GitHubToken: "env:TEST_UNSET_GITHUB"}
	err := resolveCredentials(context.Background(), secrets.NewResolver(discardLogger()), &cfg, config.ConfigMap{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "todoist_api_key")
	assert.Contains(t, err.Error(), "github_token")
}

func TestBuildDeps(t *testing.T) {
	base := config.Config{
		TodoistAPIKey:  "todo",
		ReviewsList:    "Code Review",
		ReviewProvider: config.ProviderGitLab,
		GitLabAPIKey:   "glpat",
		GitLabURL:      config.DefaultGitLabURL,
		GitLabUsername: "jdoe",
		GitLabGroup:    "acme",
	}

	deps, err := buildDeps(context.Background(), base, http.DefaultClient, discardLogger())
	require.NoError(t, err)
	assert.NotNil(t, deps.Destination)
	assert.Nil(t, deps.Issues)
	assert.IsType(t, &gitlab.Source{}, deps.Reviews)

	gh := base
	gh.ReviewProvider = config.ProviderGitHub
	gh.GitHubToken = "ghp"
	gh.GitHubUsername = "octo"
	gh.LinearAPIKey = "lin"
	gh.IssuesList = "Linear"
	deps, err = buildDeps(context.Background(), gh, http.DefaultClient, discardLogger())
	require.NoError(t, err)
	assert.NotNil(t, deps.Issues)
	assert.IsType(t, &github.Source{}, deps.Reviews)

	noReviews := base
	noReviews.ReviewsList = ""
	deps, err = buildDeps(context.Background(), noReviews, http.DefaultClient, discardLogger())
	require.NoError(t, err)
	assert.Nil(t, deps.Reviews)
}
