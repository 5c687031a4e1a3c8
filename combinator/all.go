package combinator

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/Swind/go-cycle-dispatcher/core"
)

// AwaitAll waits for every future and returns their values in argument
// order. The first error stops the wait and is returned; the remaining items
// keep running.
func AwaitAll[T any](ctx context.Context, futures ...*core.Future[T]) ([]T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	results := make([]T, len(futures))

	g, gctx := errgroup.WithContext(ctx)
	for i, f := range futures {
		g.Go(func() error {
			v, err := f.Await(gctx)
			if err != nil {
				return err
			}
			results[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// AwaitAllSettled waits for every future and returns each value and error
// in argument order. It only returns early when ctx ends.
func AwaitAllSettled[T any](ctx context.Context, futures ...*core.Future[T]) ([]T, []error) {
	if ctx == nil {
		ctx = context.Background()
	}
	values := make([]T, len(futures))
	errs := make([]error, len(futures))

	var g errgroup.Group
	for i, f := range futures {
		g.Go(func() error {
			values[i], errs[i] = f.Await(ctx)
			return nil
		})
	}
	_ = g.Wait()
	return values, errs
}
