// Package reconciler runs sync cycles: fetch remote items and the destination
// snapshot, plan the actions, execute them as one batch.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mywio/task-sync/pkg/core"
	"github.com/mywio/task-sync/pkg/executor"
	"github.com/mywio/task-sync/pkg/reconcile"
)

type IssueSource interface {
	Issues(ctx context.Context) ([]reconcile.Issue, error)
}

type ReviewSource interface {
	Reviews(ctx context.Context) (awaiting, reviewed []reconcile.MergeRequest, err error)
}

type Destination interface {
	executor.Destination
	Snapshot(ctx context.Context, listNames ...string) ([]reconcile.List, map[string][]reconcile.Task, error)
}

type Settings struct {
	IssuesList  string
	ReviewsList string
	User        string
	Interval    time.Duration
	DryRun      bool
	Concurrency int
}

// Deps are the collaborators of a Syncer. A nil source disables its category.
type Deps struct {
	Issues      IssueSource
	Reviews     ReviewSource
	Destination Destination
}

type CycleReport struct {
	Started   time.Time
	Duration  time.Duration
	Plan      reconcile.Plan
	Execution executor.Report
}

// Err reports the joined action failures of the cycle.
func (r CycleReport) Err() error {
	return r.Execution.Err()
}

type Syncer struct {
	settings Settings
	deps     Deps
	logger   *slog.Logger
	registry core.PluginRegistry

	cycleMu sync.Mutex
	trigger chan struct{}
	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
}

func NewSyncer(settings Settings, deps Deps) *Syncer {
	return &Syncer{
		settings: settings,
		deps:     deps,
		logger:   slog.Default(),
		trigger:  make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}
}

func (s *Syncer) Name() string {
	return "syncer"
}

var eventTypes = []core.EventTypeDesc{
	{Name: core.EventSyncNow, Description: "Requests an immediate sync cycle"},
	{
		Name:        core.EventSyncCompleted,
		Description: "Fired when a sync cycle finishes executing its actions",
		PayloadSpec: map[string]core.PayloadField{
			"creates": {Type: "int", Description: "Tasks created", Required: true},
			"updates": {Type: "int", Description: "Tasks updated", Required: true},
			"closes":  {Type: "int", Description: "Tasks closed", Required: true},
			"failed":  {Type: "int", Description: "Actions that failed", Required: true},
		},
	},
	{
		Name:        core.EventSyncFailed,
		Description: "Fired when a sync cycle aborts or any action fails",
		PayloadSpec: map[string]core.PayloadField{
			"error": {Type: "string", Description: "Failure description", Required: true},
		},
	},
	{Name: core.EventTaskCreated, Description: "Fired for every task created in the destination"},
	{Name: core.EventTaskClosed, Description: "Fired for every task closed in the destination"},
}

func (s *Syncer) Init(ctx context.Context, logger *slog.Logger, registry core.PluginRegistry) error {
	s.logger = logger
	s.registry = registry
	if s.deps.Destination == nil {
		return errors.New("syncer: missing destination")
	}
	if s.deps.Issues == nil && s.deps.Reviews == nil {
		return errors.New("syncer: no source configured")
	}

	if registry != nil {
		for _, desc := range eventTypes {
			if err := registry.RegisterEventType(desc); err != nil {
				return err
			}
		}
		registry.Subscribe(string(core.EventSyncNow), func(ctx context.Context, ev core.InternalEvent) {
			s.logger.Info("Sync requested", "source", ev.Source)
			s.Trigger()
		})
	}
	return nil
}

// Trigger asks the running loop for a cycle. Requests made while one is
// already pending are merged.
func (s *Syncer) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *Syncer) Start(ctx context.Context) error {
	if s.started {
		return nil
	}
	s.started = true

	s.logger.Info("Starting syncer", "interval", s.settings.Interval, "dry_run", s.settings.DryRun)
	interval := s.settings.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()

		s.runLogged(ctx)
		for {
			select {
			case <-ticker.C:
				s.runLogged(ctx)
			case <-s.trigger:
				s.runLogged(ctx)
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (s *Syncer) Stop(ctx context.Context) error {
	if !s.started {
		return nil
	}
	close(s.stopCh)
	s.logger.Info("Waiting for sync cycle to finish...")

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Syncer stopped gracefully")
	case <-ctx.Done():
		s.logger.Warn("Context cancelled while waiting for syncer to stop")
		return ctx.Err()
	}
	return nil
}

func (s *Syncer) runLogged(ctx context.Context) {
	report, err := s.RunCycle(ctx)
	if err != nil {
		s.logger.Error("Sync cycle failed", "error", err)
		return
	}
	if failed := report.Execution.Failed(); len(failed) > 0 {
		s.logger.Warn("Sync cycle finished with failures", "failed", len(failed), "duration", report.Duration)
	}
}

type fetched struct {
	issues   []reconcile.Issue
	awaiting []reconcile.MergeRequest
	reviewed []reconcile.MergeRequest
	lists    []reconcile.List
	tasks    map[string][]reconcile.Task
}

// RunCycle performs one full cycle. A fetch failure aborts the cycle before
// anything is planned; action failures are reported in the CycleReport.
func (s *Syncer) RunCycle(ctx context.Context) (CycleReport, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	report := CycleReport{Started: time.Now()}
	opts := s.planOptions()

	snap, err := s.fetch(ctx, opts)
	if err != nil {
		err = fmt.Errorf("fetch: %w", err)
		s.publishFailure(ctx, err)
		return report, err
	}

	report.Plan = reconcile.BuildPlan(reconcile.Snapshot{
		Issues:         snap.issues,
		AwaitingReview: snap.awaiting,
		Reviewed:       snap.reviewed,
		Lists:          snap.lists,
		Tasks:          snap.tasks,
	}, opts)
	s.logPlan(report.Plan, opts)

	ex := executor.New(s.deps.Destination, s.logger,
		executor.WithConcurrency(s.settings.Concurrency),
		executor.WithDryRun(s.settings.DryRun),
	)
	report.Execution = ex.Execute(ctx, report.Plan.Actions)
	report.Duration = time.Since(report.Started)

	s.publishResults(ctx, report)
	return report, nil
}

// planOptions blanks the list of a disabled category so it is skipped.
func (s *Syncer) planOptions() reconcile.Options {
	opts := reconcile.Options{User: s.settings.User}
	if s.deps.Issues != nil {
		opts.IssuesList = s.settings.IssuesList
	}
	if s.deps.Reviews != nil {
		opts.ReviewsList = s.settings.ReviewsList
	}
	return opts
}

func (s *Syncer) fetch(ctx context.Context, opts reconcile.Options) (fetched, error) {
	var out fetched
	g, gctx := errgroup.WithContext(ctx)

	if s.deps.Issues != nil {
		g.Go(func() error {
			issues, err := s.deps.Issues.Issues(gctx)
			if err != nil {
				return fmt.Errorf("issues: %w", err)
			}
			out.issues = issues
			return nil
		})
	}
	if s.deps.Reviews != nil {
		g.Go(func() error {
			awaiting, reviewed, err := s.deps.Reviews.Reviews(gctx)
			if err != nil {
				return fmt.Errorf("reviews: %w", err)
			}
			out.awaiting, out.reviewed = awaiting, reviewed
			return nil
		})
	}

	var names []string
	for _, name := range []string{opts.IssuesList, opts.ReviewsList} {
		if name != "" {
			names = append(names, name)
		}
	}
	g.Go(func() error {
		lists, tasks, err := s.deps.Destination.Snapshot(gctx, names...)
		if err != nil {
			return fmt.Errorf("destination: %w", err)
		}
		out.lists, out.tasks = lists, tasks
		return nil
	})

	if err := g.Wait(); err != nil {
		return fetched{}, err
	}
	return out, nil
}

func (s *Syncer) logPlan(plan reconcile.Plan, opts reconcile.Options) {
	for _, cat := range plan.Skipped {
		switch {
		case cat == reconcile.CategoryIssues && opts.IssuesList != "":
			s.logger.Warn("Destination list not found, skipping category", "category", cat, "list", opts.IssuesList)
		case cat == reconcile.CategoryReviews && opts.ReviewsList != "":
			s.logger.Warn("Destination list not found, skipping category", "category", cat, "list", opts.ReviewsList)
		}
	}
	for cat, names := range plan.Duplicates {
		s.logger.Warn("Several tasks share a name, only the first is synced", "category", cat, "names", names)
	}

	counts := plan.Counts()
	s.logger.Info("Sync plan calculated", "creates", counts.Creates, "updates", counts.Updates, "closes", counts.Closes)
}

func (s *Syncer) publishResults(ctx context.Context, report CycleReport) {
	if s.registry == nil {
		return
	}

	counts := report.Plan.Counts()
	failed := report.Execution.Failed()
	s.registry.Publish(ctx, core.InternalEvent{
		Type:   core.EventSyncCompleted,
		Source: s.Name(),
		Details: map[string]interface{}{
			"creates":  counts.Creates,
			"updates":  counts.Updates,
			"closes":   counts.Closes,
			"failed":   len(failed),
			"dry_run":  report.Execution.DryRun,
			"duration": report.Duration.String(),
		},
		String: fmt.Sprintf("Sync finished: %d created, %d updated, %d closed, %d failed",
			counts.Creates, counts.Updates, counts.Closes, len(failed)),
	})

	if err := report.Err(); err != nil {
		s.publishFailure(ctx, err)
	}

	if report.Execution.DryRun {
		return
	}
	for _, res := range report.Execution.Results {
		if res.Err != nil {
			continue
		}
		var evType core.EventTypeName
		switch res.Action.Kind {
		case reconcile.ActionCreate:
			evType = core.EventTaskCreated
		case reconcile.ActionClose:
			evType = core.EventTaskClosed
		default:
			continue
		}
		s.registry.Publish(ctx, core.InternalEvent{
			Type:     evType,
			Source:   s.Name(),
			Category: string(res.Action.Category),
			Details:  map[string]interface{}{"task": res.Action.Name, "task_id": res.Action.TaskID},
			String:   res.Action.Name,
		})
	}
}

func (s *Syncer) publishFailure(ctx context.Context, err error) {
	if s.registry == nil {
		return
	}
	s.registry.Publish(ctx, core.InternalEvent{
		Type:    core.EventSyncFailed,
		Source:  s.Name(),
		Details: map[string]interface{}{"error": err.Error()},
		String:  "Sync failed: " + err.Error(),
	})
}
