// Package future provides the handle returned by every asynchronous cache
// operation: a single value that settles once, with success or failure.
package future

import (
	"context"
	"errors"
	"sync"
)

// ErrPending is returned by Result while the future has not settled
var ErrPending = errors.New("future has not settled")

// State is the settlement state of a Future
type State int

const (
	// Pending means the operation has not settled yet
	Pending State = iota
	// Success means the operation produced a value
	Success
	// Failure means the operation produced an error
	Failure
)

// String returns the lowercase name of the state
func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Success:
		return "success"
	case Failure:
		return "failure"
	default:
		return "unknown"
	}
}

// Future is a single-value asynchronous result
type Future[T any] struct {
	done chan struct{}
	once sync.Once

	value T
	err   error
}

// New creates a pending future
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved creates a future that has already settled
func Resolved[T any](value T, err error) *Future[T] {
	f := New[T]()
	f.Complete(value, err)
	return f
}

// Complete settles the future. Only the first call has an effect; it
// reports whether this call settled it.
func (f *Future[T]) Complete(value T, err error) bool {
	settled := false
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
		settled = true
	})
	return settled
}

// Done is closed once the future settles
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future settles or ctx is done
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result returns the settled value without blocking, or ErrPending
func (f *Future[T]) Result() (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	default:
		var zero T
		return zero, ErrPending
	}
}

// State reports whether the future is pending, succeeded or failed
func (f *Future[T]) State() State {
	select {
	case <-f.done:
		if f.err != nil {
			return Failure
		}
		return Success
	default:
		return Pending
	}
}

// Then returns a future settled with fn applied to this future's outcome
func Then[T, U any](f *Future[T], fn func(T, error) (U, error)) *Future[U] {
	next := New[U]()
	go func() {
		<-f.done
		next.Complete(fn(f.value, f.err))
	}()
	return next
}

// All waits for every future and returns their errors in order
func All[T any](ctx context.Context, futures ...*Future[T]) []error {
	errs := make([]error, len(futures))
	for i, f := range futures {
		_, errs[i] = f.Wait(ctx)
	}
	return errs
}
