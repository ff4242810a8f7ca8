package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mywio/task-sync/pkg/config"
	"github.com/mywio/task-sync/pkg/core"
	"github.com/mywio/task-sync/pkg/destinations/todoist"
	"github.com/mywio/task-sync/pkg/plugins/hooks"
	"github.com/mywio/task-sync/pkg/plugins/notify"
	"github.com/mywio/task-sync/pkg/plugins/trigger"
	"github.com/mywio/task-sync/pkg/reconciler"
	"github.com/mywio/task-sync/pkg/secrets"
	"github.com/mywio/task-sync/pkg/sources/github"
	"github.com/mywio/task-sync/pkg/sources/gitlab"
	"github.com/mywio/task-sync/pkg/sources/linear"
)

const shutdownTimeout = 30 * time.Second

func newLogger(c *cli.Context, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if c.Bool("verbose") {
		opts.Level = slog.LevelDebug
	}
	if json {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func loadConfig(c *cli.Context) (config.Config, config.ConfigMap, error) {
	cfg, cfgMap, err := config.Load(c.String("config"))
	if err != nil {
		return cfg, cfgMap, fmt.Errorf("failed to load config: %w", err)
	}
	if c.IsSet("dry-run") {
		cfg.DryRun = c.Bool("dry-run")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, cfgMap, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, cfgMap, nil
}

func runValidate(c *cli.Context) error {
	cfg, _, err := loadConfig(c)
	if err != nil {
		return err
	}
	fmt.Printf("Configuration OK (issues: %t, reviews: %t via %s)\n", cfg.IssuesEnabled(), cfg.ReviewsEnabled(), cfg.ReviewProvider)
	return nil
}

func runSync(c *cli.Context) error {
	logger := newLogger(c, false)
	cfg, cfgMap, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mgr, syncer, cleanup, err := setup(ctx, cfg, cfgMap, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := mgr.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize modules: %w", err)
	}

	report, err := syncer.RunCycle(ctx)
	mgr.Broker().Wait()
	if err != nil {
		return err
	}

	counts := report.Plan.Counts()
	logger.Info("Sync finished",
		"creates", counts.Creates,
		"updates", counts.Updates,
		"closes", counts.Closes,
		"failed", len(report.Execution.Failed()),
		"dry_run", report.Execution.DryRun,
		"duration", report.Duration)
	if err := report.Err(); err != nil {
		return fmt.Errorf("some actions failed: %w", err)
	}
	return nil
}

func runServe(c *cli.Context) error {
	logger := newLogger(c, true)
	cfg, cfgMap, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	mgr, _, cleanup, err := setup(ctx, cfg, cfgMap, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	mgr.Register(trigger.NewWebhook())
	if cfg.PluginsDir != "" {
		if err := mgr.LoadPlugins(cfg.PluginsDir); err != nil {
			logger.Error("Failed to load plugins", "error", err)
		}
	}

	if err := mgr.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize modules: %w", err)
	}
	mgr.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Received signal, shutting down...", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	mgr.Stop(shutdownCtx)
	cancel()
	mgr.Broker().Wait()
	logger.Info("Shutdown complete")
	return nil
}

// setup resolves credentials and builds the module manager with the syncer
// and the notifiers registered.
func setup(ctx context.Context, cfg config.Config, cfgMap config.ConfigMap, logger *slog.Logger) (*core.ModuleManager, *reconciler.Syncer, func(), error) {
	resolver := secrets.NewResolver(logger.With("component", "secrets"))
	cleanup := func() {
		if err := resolver.Close(); err != nil {
			logger.Warn("Failed to close secret resolver", "error", err)
		}
	}

	if err := resolveCredentials(ctx, resolver, &cfg, cfgMap); err != nil {
		cleanup()
		return nil, nil, nil, err
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	deps, err := buildDeps(ctx, cfg, httpClient, logger)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}

	syncer := reconciler.NewSyncer(reconciler.Settings{
		IssuesList:  cfg.IssuesList,
		ReviewsList: cfg.ReviewsList,
		User:        cfg.ReviewUser(),
		Interval:    cfg.Interval,
		DryRun:      cfg.DryRun,
		Concurrency: cfg.Concurrency,
	}, deps)

	mgr := core.NewModuleManager(logger)
	mgr.SetConfig(cfgMap)
	mgr.SetHTTPClient(&http.Client{Timeout: 15 * time.Second})
	mgr.Register(syncer)
	mgr.Register(notify.NewWebhook())
	mgr.Register(notify.NewPushover())
	mgr.Register(hooks.New())
	return mgr, syncer, cleanup, nil
}

// resolveCredentials replaces secret references in tokens with their values.
func resolveCredentials(ctx context.Context, r *secrets.Resolver, cfg *config.Config, cfgMap config.ConfigMap) error {
	var errs []error
	resolve := func(label string, dst *string) {
		if *dst == "" {
			return
		}
		v, err := r.Resolve(ctx, *dst)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", label, err))
			return
		}
		*dst = v
	}

	resolve("todoist_api_key", &cfg.TodoistAPIKey)
	resolve("linear_api_key", &cfg.LinearAPIKey)
	resolve("gitlab_api_key", &cfg.GitLabAPIKey)
	resolve("github_token", &cfg.GitHubToken)

	for _, section := range []string{"pushover", "webhook_trigger"} {
		vals, ok := cfgMap[section]
		if !ok {
			continue
		}
		if token, ok := vals["token"].(string); ok {
			resolve(section+".token", &token)
			vals["token"] = token
		}
	}
	return errors.Join(errs...)
}

func buildDeps(ctx context.Context, cfg config.Config, httpClient *http.Client, logger *slog.Logger) (reconciler.Deps, error) {
	var deps reconciler.Deps

	dest, err := todoist.NewClient(cfg.TodoistAPIKey, logger.With("component", "todoist"), todoist.WithHTTPClient(httpClient))
	if err != nil {
		return deps, err
	}
	deps.Destination = dest

	if cfg.IssuesEnabled() {
		src, err := linear.NewClient(cfg.LinearAPIKey, cfg.LinearStates, logger.With("component", "linear"), linear.WithHTTPClient(httpClient))
		if err != nil {
			return deps, err
		}
		deps.Issues = src
	} else {
		logger.Info("Issues sync disabled")
	}

	if !cfg.ReviewsEnabled() {
		logger.Info("Reviews sync disabled")
		return deps, nil
	}
	switch cfg.ReviewProvider {
	case config.ProviderGitHub:
		src, err := github.New(ctx, github.Config{
			Token:      cfg.GitHubToken,
			Username:   cfg.GitHubUsername,
			Scope:      cfg.GitHubScope,
			Lookback:   cfg.Lookback,
			HTTPClient: httpClient,
		}, logger.With("component", "github"))
		if err != nil {
			return deps, err
		}
		deps.Reviews = src
	default:
		src, err := gitlab.New(gitlab.Config{
			URL:        cfg.GitLabURL,
			Token:      cfg.GitLabAPIKey,
			Group:      cfg.GitLabGroup,
			Username:   cfg.GitLabUsername,
			Lookback:   cfg.Lookback,
			HTTPClient: httpClient,
		}, logger.With("component", "gitlab"))
		if err != nil {
			return deps, err
		}
		deps.Reviews = src
	}
	return deps, nil
}
