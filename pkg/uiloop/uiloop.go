// Package uiloop marshals work onto the single cooperative UI event loop
// and provides the pulse primitive that lets a caller on another goroutine
// know that previously dispatched actions have been applied.
package uiloop

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog"
)

// ErrClosed is returned when the loop no longer processes actions.
var ErrClosed = errors.New("ui loop closed")

// Dispatcher is the contract every UI loop implementation satisfies.
type Dispatcher interface {
	// RunOnUI enqueues action on the UI loop and returns immediately.
	// Actions enqueued from the same goroutine run in enqueue order.
	RunOnUI(action func())

	// Pulse blocks until the loop has processed everything enqueued before
	// the call, or ctx is done.
	Pulse(ctx context.Context) error
}

// Call runs fn on the UI loop and waits for its result.
func Call[T any](ctx context.Context, d Dispatcher, fn func() T) (T, error) {
	type outcome struct {
		v     T
		panic any
	}
	ch := make(chan outcome, 1)
	d.RunOnUI(func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{panic: r}
			}
		}()
		ch <- outcome{v: fn()}
	})

	var zero T
	select {
	case o := <-ch:
		if o.panic != nil {
			return zero, fmt.Errorf("ui action panicked: %v", o.panic)
		}
		return o.v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Do runs fn on the UI loop and waits for the error it returns.
func Do(ctx context.Context, d Dispatcher, fn func() error) error {
	err, callErr := Call(ctx, d, fn)
	if callErr != nil {
		return callErr
	}
	return err
}

// invoke runs one action, keeping the loop alive if it panics.
func invoke(log zerolog.Logger, action func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("ui action panicked")
		}
	}()
	action()
}
