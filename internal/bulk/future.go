package bulk

import (
	"context"
	"errors"
)

// Future is the pending outcome of one bulk operation. It resolves exactly
// once.
type Future struct {
	done   chan struct{}
	result Result
	err    error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolved returns a Future that is already complete.
func Resolved(result Result, err error) *Future {
	f := newFuture()
	f.resolve(result, err)
	return f
}

func (f *Future) resolve(result Result, err error) {
	f.result = result
	f.err = err
	close(f.done)
}

// Done is closed once the operation has resolved.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the operation resolves or ctx ends. Giving up on the
// wait leaves already issued actions running.
func (f *Future) Wait(ctx context.Context) (Result, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// All waits for every future and returns their results in argument order.
// Every future is awaited even after a failure; the returned error joins
// all failures.
func All(ctx context.Context, futures ...*Future) ([]Result, error) {
	results := make([]Result, len(futures))
	var errs []error
	for i, f := range futures {
		r, err := f.Wait(ctx)
		results[i] = r
		if err != nil {
			errs = append(errs, err)
		}
	}
	return results, errors.Join(errs...)
}
