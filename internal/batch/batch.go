// Package batch fans a fixed number of identical operations out concurrently and joins them.
package batch

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Run starts count invocations of op before waiting on any of them, then waits for all to settle.
// It returns the first error that occurred and never cancels siblings. Results are indexed by invocation.
func Run[T any](ctx context.Context, count int, op func(ctx context.Context, i int) (T, error)) ([]T, error) {
	if count <= 0 {
		return []T{}, nil
	}
	results := make([]T, count)
	var group errgroup.Group
	for i := 0; i < count; i++ {
		i := i
		group.Go(func() error {
			res, err := op(ctx, i)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
