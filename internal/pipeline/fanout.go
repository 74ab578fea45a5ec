package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// FanOutOptions configures a fan-out stage.
type FanOutOptions struct {
	// Workers caps how many items run at once. Defaults to 8; generation
	// backends rate-limit, so unbounded fan-out is never wanted.
	Workers int
	// OnPanic receives a panic recovered from one item's work. The panic is
	// contained to that item; siblings keep running.
	OnPanic func(error)
}

const defaultFanOutWorkers = 8

// RunAll executes work once per item, concurrently, and returns only after
// every invocation has settled. It is the barrier between pipeline stages:
// no ordering is guaranteed among items, but nothing is ever left pending.
//
// work records its own outcome; a failing or panicking item must not affect
// any sibling, so work returns nothing and RunAll swallows panics after
// reporting them.
func RunAll[T any](ctx context.Context, items []T, opts FanOutOptions, work func(ctx context.Context, item T)) {
	if len(items) == 0 {
		return
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultFanOutWorkers
	}
	if workers > len(items) {
		workers = len(items)
	}

	g := new(errgroup.Group)
	g.SetLimit(workers)
	for _, item := range items {
		item := item
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil && opts.OnPanic != nil {
					opts.OnPanic(fmt.Errorf("fan-out item panicked: %v", r))
				}
			}()
			work(ctx, item)
			return nil
		})
	}
	_ = g.Wait()
}
