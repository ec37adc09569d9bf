package pool

import (
	"context"
	"fmt"
	"sync"
)

// Group runs tasks on a Pool and collects the first error.
// The group context is cancelled as soon as one task fails.
type Group struct {
	pool   *Pool
	ctx    context.Context
	cancel context.CancelCauseFunc

	wg      sync.WaitGroup
	errOnce sync.Once
	err     error
}

// NewGroup creates a Group bound to ctx.
func NewGroup(ctx context.Context, p *Pool) (*Group, context.Context) {
	ctx, cancel := context.WithCancelCause(ctx)
	return &Group{pool: p, ctx: ctx, cancel: cancel}, ctx
}

// Go schedules fn. Tasks submitted after the group context is done are skipped.
func (g *Group) Go(fn func(ctx context.Context) error) {
	g.wg.Add(1)
	err := g.pool.Submit(func() {
		defer g.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				g.fail(fmt.Errorf("task panic: %v", r))
			}
		}()

		if g.ctx.Err() != nil {
			return
		}
		if err := fn(g.ctx); err != nil {
			g.fail(err)
		}
	})
	if err != nil {
		g.wg.Done()
		g.fail(err)
	}
}

// Wait blocks until all scheduled tasks return and reports the first error.
func (g *Group) Wait() error {
	g.wg.Wait()
	g.cancel(nil)
	return g.err
}

func (g *Group) fail(err error) {
	g.errOnce.Do(func() {
		g.err = err
		g.cancel(err)
	})
}
