// Package concurrent provides bounded fan-out helpers used for parallel
// test-type execution and metric collection. The pool size is always
// explicit; there is no unbounded goroutine spawning.
package concurrent

import (
	"context"
	"errors"
	"sync"
)

// ForEachWithLimit executes fn for each item with at most limit goroutines
// in flight. All items are waited for; the joined error of every failure is
// returned. A cancelled context stops scheduling of remaining items.
func ForEachWithLimit[T any](ctx context.Context, items []T, limit int, fn func(context.Context, T) error) error {
	if len(items) == 0 {
		return nil
	}
	if limit <= 0 {
		limit = 1
	}

	sem := make(chan struct{}, limit)
	errCh := make(chan error, len(items))
	var wg sync.WaitGroup

	for _, item := range items {
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(item T) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := ctx.Err(); err != nil {
				errCh <- err
				return
			}
			if err := fn(ctx, item); err != nil {
				errCh <- err
			}
		}(item)
	}

	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// MapWithLimit applies fn to each item with at most limit goroutines in
// flight. The result slice preserves item order regardless of completion
// order.
func MapWithLimit[T, R any](ctx context.Context, items []T, limit int, fn func(context.Context, T) (R, error)) ([]R, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 1
	}

	results := make([]R, len(items))
	errs := make([]error, len(items))
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup

	for i, item := range items {
		select {
		case <-ctx.Done():
			errs[i] = ctx.Err()
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(i int, item T) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}
			results[i], errs[i] = fn(ctx, item)
		}(i, item)
	}

	wg.Wait()

	var joined []error
	for _, err := range errs {
		if err != nil {
			joined = append(joined, err)
		}
	}
	return results, errors.Join(joined...)
}
