package uiloop

import (
	"context"

	"github.com/rs/zerolog"
)

// Loop is a headless UI loop: one goroutine draining a FIFO of actions.
// It stands in for the console when no terminal is attached.
type Loop struct {
	log  zerolog.Logger
	q    *queue
	done chan struct{}
}

// NewLoop starts a headless loop.
func NewLoop(log zerolog.Logger) *Loop {
	l := &Loop{
		log:  log.With().Str("component", "uiloop").Logger(),
		q:    newQueue(),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		action, ok := l.q.pop()
		if !ok {
			return
		}
		invoke(l.log, action)
	}
}

// RunOnUI implements Dispatcher. Actions enqueued after Close are dropped.
func (l *Loop) RunOnUI(action func()) {
	if !l.q.push(action) {
		l.log.Warn().Msg("action dropped: loop closed")
	}
}

// Pulse implements Dispatcher.
func (l *Loop) Pulse(ctx context.Context) error {
	reached := make(chan struct{})
	if !l.q.push(func() { close(reached) }) {
		return ErrClosed
	}
	select {
	case <-reached:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting actions; already queued actions still run.
func (l *Loop) Close() {
	l.q.close()
}

// Done is closed when the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
