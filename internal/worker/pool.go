// Package worker runs a bounded task pool over a slice, preserving
// result-to-input correspondence.
package worker

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Map runs fn over each item with at most size workers in flight. Each
// worker finishes one item completely before pulling the next from a
// shared cursor. Results are written back positionally, so out[i] always
// corresponds to items[i] regardless of completion order. Per-item
// errors are the caller's concern: fn returns only a result, and the
// run stops early only on context cancellation.
func Map[T, R any](ctx context.Context, size int, items []T, fn func(ctx context.Context, item T) R) []R {
	out := make([]R, len(items))
	if len(items) == 0 {
		return out
	}
	if size <= 0 {
		size = 1
	}
	if size > len(items) {
		size = len(items)
	}

	var cursor atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < size; w++ {
		g.Go(func() error {
			for {
				i := int(cursor.Add(1)) - 1
				if i >= len(items) {
					return nil
				}
				if err := ctx.Err(); err != nil {
					return err
				}
				out[i] = fn(ctx, items[i])
			}
		})
	}
	// The only possible error is context cancellation, already visible
	// to the caller through ctx.
	_ = g.Wait()
	return out
}
