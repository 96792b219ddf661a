package uiloop

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
)

// Sender is the part of *tea.Program the bridge needs.
type Sender interface {
	Send(msg tea.Msg)
}

// actionMsg carries one dispatched action into a bubbletea Update.
type actionMsg struct {
	action func()
}

// Tea dispatches actions into a running bubbletea program. The program's
// model must pass every message through Handle.
type Tea struct {
	log    zerolog.Logger
	sender Sender
	q      *queue

	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
}

// NewTea starts forwarding actions to sender.
func NewTea(sender Sender, log zerolog.Logger) *Tea {
	t := &Tea{
		log:    log.With().Str("component", "uiloop").Logger(),
		sender: sender,
		q:      newQueue(),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go t.forward()
	return t
}

// forward hands actions to the program one at a time. Send blocks until the
// event loop accepts the message, so order is preserved end to end.
func (t *Tea) forward() {
	defer close(t.done)
	for {
		action, ok := t.q.pop()
		if !ok {
			return
		}
		select {
		case <-t.closed:
			// The program is gone; nothing will ever run these.
			continue
		default:
		}
		t.sender.Send(actionMsg{action: action})
	}
}

// RunOnUI implements Dispatcher.
func (t *Tea) RunOnUI(action func()) {
	if !t.q.push(action) {
		t.log.Warn().Msg("action dropped: loop closed")
	}
}

// Pulse implements Dispatcher.
func (t *Tea) Pulse(ctx context.Context) error {
	reached := make(chan struct{})
	if !t.q.push(func() { close(reached) }) {
		return ErrClosed
	}
	select {
	case <-reached:
		return nil
	case <-t.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close detaches the bridge from the program. Call it once the program has
// exited.
func (t *Tea) Close() {
	t.closeOnce.Do(func() {
		close(t.closed)
		t.q.close()
	})
	<-t.done
}

// Handle runs msg if it was produced by a Tea bridge and reports whether it
// did. Models call it first thing in Update.
func Handle(msg tea.Msg, log zerolog.Logger) bool {
	m, ok := msg.(actionMsg)
	if !ok {
		return false
	}
	invoke(log, m.action)
	return true
}
