// Package parallel implements the bounded worker pool (spec.md §5)
// that TreeDriver uses to dispatch per-file backup/restore jobs,
// generalizing the teacher's RegularTarBallComposer deque/enqueue
// pattern from a tarball queue to an arbitrary task pool.
package parallel

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Task is one unit of dispatched work; it returns the value harvested
// for its submission slot.
type Task func(ctx context.Context) (interface{}, error)

// Pool runs up to size tasks concurrently and harvests their results in
// submission order, mirroring the driver harvesting results asynchronously
// but indexed by submission order (spec.md §5).
type Pool struct {
	size int
}

// New returns a Pool bounded to size concurrent tasks. size < 1 is
// treated as 1 (sequential).
func New(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{size: size}
}

// Run submits every task, bounding concurrency to the pool size, and
// returns results indexed identically to tasks. The first task error
// cancels the group's context; remaining in-flight tasks still run to
// completion (errgroup's own semantics) but their results are ignored
// once any error has been recorded — callers needing per-task error
// handling instead of fail-fast should wrap their Task to swallow its
// own error and report failure in the harvested value (FileBackup and
// FileRestore do exactly this, since a single file failure is
// recoverable, not fatal to the whole walk).
func (p *Pool) Run(ctx context.Context, tasks []Task) ([]interface{}, error) {
	results := make([]interface{}, len(tasks))
	group, groupCtx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, p.size)

	for i, task := range tasks {
		i, task := i, task
		sem <- struct{}{}
		group.Go(func() error {
			defer func() { <-sem }()
			result, err := task(groupCtx)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
