package todoist

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mywio/task-sync/pkg/reconcile"
)

// Snapshot returns every project plus the open tasks of the projects named
// in names. Names that match no project are left out of the task map.
func (c *Client) Snapshot(ctx context.Context, names ...string) ([]reconcile.List, map[string][]reconcile.Task, error) {
	lists, err := c.Projects(ctx)
	if err != nil {
		return nil, nil, err
	}

	var (
		mu    sync.Mutex
		tasks = map[string][]reconcile.Task{}
		seen  = map[string]bool{}
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		list, ok := reconcile.ResolveList(lists, name)
		if !ok {
			c.logger.Debug("Todoist project not found", "name", name)
			continue
		}
		if seen[list.ID] {
			continue
		}
		seen[list.ID] = true

		g.Go(func() error {
			open, err := c.Tasks(gctx, list.ID)
			if err != nil {
				return err
			}
			mu.Lock()
			tasks[list.ID] = open
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("todoist snapshot: %w", err)
	}
	return lists, tasks, nil
}
