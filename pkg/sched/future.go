package sched

import (
	"context"
	"sync"
)

// Future is the eventual outcome of a task. It completes exactly once.
type Future[T any] struct {
	done chan struct{}
	once sync.Once
	val  T
	err  error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// complete records the outcome. Later calls are ignored.
func (f *Future[T]) complete(v T, err error) bool {
	completed := false
	f.once.Do(func() {
		f.val, f.err = v, err
		close(f.done)
		completed = true
	})
	return completed
}

func (f *Future[T]) fail(err error) {
	var zero T
	f.complete(zero, err)
}

// Completed returns a future that already holds v.
func Completed[T any](v T) *Future[T] {
	f := newFuture[T]()
	f.complete(v, nil)
	return f
}

// Failed returns a future that already holds err.
func Failed[T any](err error) *Future[T] {
	f := newFuture[T]()
	f.fail(err)
	return f
}

// Done is closed once the future has completed.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future completes or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Get blocks until the future completes.
func (f *Future[T]) Get() (T, error) {
	<-f.done
	return f.val, f.err
}

// Then derives a future that applies fn to the value of f. A failure of f
// propagates unchanged and fn is not called.
func Then[T, U any](f *Future[T], fn func(T) (U, error)) *Future[U] {
	out := newFuture[U]()
	go func() {
		v, err := f.Get()
		if err != nil {
			out.fail(err)
			return
		}
		out.complete(fn(v))
	}()
	return out
}

// Promise is the writable side of a Future, for results produced outside
// the scheduler.
type Promise[T any] struct {
	f *Future[T]
}

// NewPromise creates an incomplete promise.
func NewPromise[T any]() *Promise[T] {
	return &Promise[T]{f: newFuture[T]()}
}

// Future returns the read side of the promise.
func (p *Promise[T]) Future() *Future[T] { return p.f }

// Complete settles the promise. It reports false if it was already settled.
func (p *Promise[T]) Complete(v T, err error) bool { return p.f.complete(v, err) }
