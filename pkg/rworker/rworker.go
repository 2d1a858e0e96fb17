package rworker

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Pool runs jobs with a bounded number of goroutines. The first failed job
// cancels the context passed to the others.
type Pool struct {
	group *errgroup.Group
	ctx   context.Context
	rate  *semaphore.Weighted
}

// New returns a pool running at most workers jobs at once. Values below one
// mean a single worker.
func New(ctx context.Context, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	return &Pool{group: g, ctx: ctx, rate: semaphore.NewWeighted(int64(workers))}
}

// Go schedules fn. It blocks while the pool is saturated.
func (p *Pool) Go(fn func(ctx context.Context) error) {
	if err := p.rate.Acquire(p.ctx, 1); err != nil {
		p.group.Go(func() error { return err })
		return
	}
	p.group.Go(func() error {
		defer p.rate.Release(1)
		if err := p.ctx.Err(); err != nil {
			return err
		}
		return fn(p.ctx)
	})
}

// Wait blocks until every scheduled job is done and returns the first error.
func (p *Pool) Wait() error {
	return p.group.Wait()
}

// Each runs fn for every index in [0, n) on a pool of the given size.
func Each(ctx context.Context, workers, n int, fn func(ctx context.Context, i int) error) error {
	pool := New(ctx, workers)
	for i := 0; i < n; i++ {
		i := i
		pool.Go(func(ctx context.Context) error {
			return fn(ctx, i)
		})
	}
	return pool.Wait()
}
