// Package executor applies reconcile actions to a destination as one joined
// batch.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/mywio/task-sync/pkg/reconcile"
)

const DefaultConcurrency = 4

// Destination is the write side of the task service.
type Destination interface {
	CreateTask(ctx context.Context, listID, name, description string) (reconcile.Task, error)
	UpdateTask(ctx context.Context, taskID, name, description string) (reconcile.Task, error)
	CloseTask(ctx context.Context, taskID string) error
}

type Result struct {
	Action reconcile.Action
	Err    error
}

// Report holds one result per action, in input order.
type Report struct {
	Results []Result
	DryRun  bool
}

func (r Report) Failed() []Result {
	var failed []Result
	for _, res := range r.Results {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	return failed
}

// Err joins every action failure, or returns nil.
func (r Report) Err() error {
	var errs []error
	for _, res := range r.Failed() {
		errs = append(errs, res.Err)
	}
	return errors.Join(errs...)
}

type Executor struct {
	dest        Destination
	concurrency int
	dryRun      bool
	logger      *slog.Logger
}

type Option func(*Executor)

func WithConcurrency(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

func WithDryRun(dryRun bool) Option { return func(e *Executor) { e.dryRun = dryRun } }

func New(dest Destination, logger *slog.Logger, opts ...Option) *Executor {
	e := &Executor{dest: dest, concurrency: DefaultConcurrency, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs every action and waits for all of them. A failing action does
// not cancel the others. Actions on the same task run in input order.
func (e *Executor) Execute(ctx context.Context, actions []reconcile.Action) Report {
	report := Report{Results: make([]Result, len(actions)), DryRun: e.dryRun}
	if len(actions) == 0 {
		return report
	}

	// Actions on one task form a chain: each waits for its predecessor, which
	// was handed to the group first and so already holds a slot.
	prev := map[string]chan struct{}{}
	waits := make([]chan struct{}, len(actions))
	dones := make([]chan struct{}, len(actions))
	for i, a := range actions {
		dones[i] = make(chan struct{})
		if a.TaskID == "" {
			continue
		}
		waits[i] = prev[a.TaskID]
		prev[a.TaskID] = dones[i]
	}

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, a := range actions {
		i, a := i, a
		g.Go(func() error {
			defer close(dones[i])
			if waits[i] != nil {
				<-waits[i]
			}
			report.Results[i] = Result{Action: a, Err: e.apply(ctx, a)}
			return nil
		})
	}
	_ = g.Wait()
	return report
}

func (e *Executor) apply(ctx context.Context, a reconcile.Action) error {
	log := e.logger.With("action", string(a.Kind), "category", string(a.Category), "task", a.Name)
	if a.TaskID != "" {
		log = log.With("task_id", a.TaskID)
	}

	if e.dryRun {
		log.Info("Dry run, skipping action")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s %q: %w", a.Kind, a.Name, err)
	}

	var err error
	switch a.Kind {
	case reconcile.ActionCreate:
		_, err = e.dest.CreateTask(ctx, a.ListID, a.Name, a.Description)
	case reconcile.ActionUpdate:
		_, err = e.dest.UpdateTask(ctx, a.TaskID, a.Name, a.Description)
	case reconcile.ActionClose:
		err = e.dest.CloseTask(ctx, a.TaskID)
	default:
		err = fmt.Errorf("unknown action kind %q", a.Kind)
	}
	if err != nil {
		log.Error("Action failed", "error", err)
		return fmt.Errorf("%s %q: %w", a.Kind, a.Name, err)
	}
	log.Info("Action applied")
	return nil
}
