package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mywio/task-sync/pkg/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDestination struct {
	mu      sync.Mutex
	calls   []string
	failOn  map[string]error
	delayOn map[string]time.Duration
}

func (f *fakeDestination) record(call string) error {
	if d, ok := f.delayOn[call]; ok {
		time.Sleep(d)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.failOn[call]
}

func (f *fakeDestination) CreateTask(_ context.Context, listID, name, _ string) (reconcile.Task, error) {
	return reconcile.Task{ID: "new", Name: name, ListID: listID}, f.record("create:" + name)
}

func (f *fakeDestination) UpdateTask(_ context.Context, taskID, name, _ string) (reconcile.Task, error) {
	return reconcile.Task{ID: taskID, Name: name}, f.record("update:" + taskID)
}

func (f *fakeDestination) CloseTask(_ context.Context, taskID string) error {
	return f.record("close:" + taskID)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExecute_AllActionsRun(t *testing.T) {
	dest := &fakeDestination{}
	ex := New(dest, discardLogger())

	actions := []reconcile.Action{
		reconcile.CreateTask(reconcile.CategoryIssues, "[ENG-1] A", "", "p1"),
		reconcile.UpdateTask(reconcile.CategoryIssues, "t1", "[ENG-2] B", "d"),
		reconcile.CloseTask(reconcile.CategoryReviews, "t2", "CR: C"),
	}
	report := ex.Execute(context.Background(), actions)

	require.Len(t, report.Results, 3)
	for i, res := range report.Results {
		assert.Equal(t, actions[i], res.Action)
		assert.NoError(t, res.Err)
	}
	assert.Empty(t, report.Failed())
	assert.NoError(t, report.Err())
	assert.ElementsMatch(t, []string{"create:[ENG-1] A", "update:t1", "close:t2"}, dest.calls)
}

func TestExecute_FailureDoesNotStopSiblings(t *testing.T) {
	boom := errors.New("boom")
	dest := &fakeDestination{failOn: map[string]error{"close:t1": boom}}
	ex := New(dest, discardLogger(), WithConcurrency(1))

	report := ex.Execute(context.Background(), []reconcile.Action{
		reconcile.CloseTask(reconcile.CategoryReviews, "t1", "CR: A"),
		reconcile.CloseTask(reconcile.CategoryReviews, "t2", "CR: B"),
	})

	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "t1", failed[0].Action.TaskID)
	assert.ErrorIs(t, report.Err(), boom)
	assert.NoError(t, report.Results[1].Err)
	assert.Len(t, dest.calls, 2)
}

func TestExecute_SameTaskRunsInOrder(t *testing.T) {
	dest := &fakeDestination{delayOn: map[string]time.Duration{"update:t1": 20 * time.Millisecond}}
	ex := New(dest, discardLogger(), WithConcurrency(4))

	ex.Execute(context.Background(), []reconcile.Action{
		reconcile.UpdateTask(reconcile.CategoryReviews, "t1", "CR: A", "url"),
		reconcile.CloseTask(reconcile.CategoryReviews, "t1", "CR: A"),
	})

	assert.Equal(t, []string{"update:t1", "close:t1"}, dest.calls)
}

func TestExecute_DryRun(t *testing.T) {
	dest := &fakeDestination{}
	ex := New(dest, discardLogger(), WithDryRun(true))

	report := ex.Execute(context.Background(), []reconcile.Action{
		reconcile.CreateTask(reconcile.CategoryIssues, "[ENG-1] A", "", "p1"),
	})

	assert.True(t, report.DryRun)
	assert.NoError(t, report.Err())
	assert.Empty(t, dest.calls)
}

func TestExecute_Empty(t *testing.T) {
	report := New(&fakeDestination{}, discardLogger()).Execute(context.Background(), nil)
	assert.Empty(t, report.Results)
	assert.NoError(t, report.Err())
}

func TestExecute_CancelledContext(t *testing.T) {
	dest := &fakeDestination{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := New(dest, discardLogger()).Execute(ctx, []reconcile.Action{
		reconcile.CloseTask(reconcile.CategoryReviews, "t1", "CR: A"),
	})
	assert.ErrorIs(t, report.Err(), context.Canceled)
	assert.Empty(t, dest.calls)
}
