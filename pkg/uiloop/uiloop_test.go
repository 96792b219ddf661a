package uiloop

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestLoop(t *testing.T) *Loop {
	t.Helper()
	l := NewLoop(zerolog.Nop())
	t.Cleanup(func() {
		l.Close()
		<-l.Done()
	})
	return l
}

func TestLoop_PreservesOrder_When_DispatchedFromOneGoroutine(t *testing.T) {
	t.Parallel()
	l := newTestLoop(t)

	var seen []int
	for i := 0; i < 50; i++ {
		i := i
		l.RunOnUI(func() { seen = append(seen, i) })
	}
	require.NoError(t, l.Pulse(context.Background()))

	got, err := Call(context.Background(), l, func() []int { return append([]int(nil), seen...) })
	require.NoError(t, err)
	require.Len(t, got, 50)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestLoop_PulseMakesPriorActionVisible(t *testing.T) {
	t.Parallel()
	l := newTestLoop(t)

	value := 0
	l.RunOnUI(func() {
		time.Sleep(10 * time.Millisecond)
		value = 9
	})
	require.NoError(t, l.Pulse(context.Background()))
	assert.Equal(t, 9, value)
}

func TestLoop_SurvivesPanickingAction(t *testing.T) {
	t.Parallel()
	l := newTestLoop(t)

	l.RunOnUI(func() { panic("bad action") })
	v, err := Call(context.Background(), l, func() string { return "still running" })
	require.NoError(t, err)
	assert.Equal(t, "still running", v)
}

func TestCall_ReturnsError_When_FunctionPanics(t *testing.T) {
	t.Parallel()
	l := newTestLoop(t)

	_, err := Call(context.Background(), l, func() int { panic("nope") })
	assert.ErrorContains(t, err, "nope")
}

func TestDo_ReturnsFunctionError(t *testing.T) {
	t.Parallel()
	l := newTestLoop(t)

	boom := errors.New("boom")
	assert.ErrorIs(t, Do(context.Background(), l, func() error { return boom }), boom)
	assert.NoError(t, Do(context.Background(), l, func() error { return nil }))
}

func TestLoop_PulseFails_When_Closed(t *testing.T) {
	t.Parallel()
	l := NewLoop(zerolog.Nop())
	l.Close()
	<-l.Done()

	assert.ErrorIs(t, l.Pulse(context.Background()), ErrClosed)
	l.RunOnUI(func() { t.Error("action ran after close") })
}

func TestLoop_PulseHonoursContext_When_LoopBusy(t *testing.T) {
	t.Parallel()
	l := newTestLoop(t)

	release := make(chan struct{})
	l.RunOnUI(func() { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Pulse(ctx), context.DeadlineExceeded)
	close(release)
}

// fakeProgram drains sent messages through Handle on its own goroutine,
// the way a bubbletea event loop calls Update.
type fakeProgram struct {
	msgs chan tea.Msg
	stop chan struct{}
	done chan struct{}
}

func newFakeProgram() *fakeProgram {
	p := &fakeProgram{msgs: make(chan tea.Msg), stop: make(chan struct{}), done: make(chan struct{})}
	go func() {
		defer close(p.done)
		for {
			select {
			case msg := <-p.msgs:
				Handle(msg, zerolog.Nop())
			case <-p.stop:
				return
			}
		}
	}()
	return p
}

func (p *fakeProgram) Send(msg tea.Msg) {
	select {
	case p.msgs <- msg:
	case <-p.stop:
	}
}

func (p *fakeProgram) quit() {
	close(p.stop)
	<-p.done
}

func TestTea_RunsActionsInOrder_When_ProgramHandlesMessages(t *testing.T) {
	t.Parallel()
	prog := newFakeProgram()
	bridge := NewTea(prog, zerolog.Nop())

	var seen []int
	for i := 0; i < 20; i++ {
		i := i
		bridge.RunOnUI(func() { seen = append(seen, i) })
	}
	require.NoError(t, bridge.Pulse(context.Background()))
	require.Len(t, seen, 20)
	assert.Equal(t, 0, seen[0])
	assert.Equal(t, 19, seen[19])

	prog.quit()
	bridge.Close()
	assert.ErrorIs(t, bridge.Pulse(context.Background()), ErrClosed)
}

func TestTea_RunOnUIDoesNotBlock_When_CalledFromLoop(t *testing.T) {
	t.Parallel()
	prog := newFakeProgram()
	bridge := NewTea(prog, zerolog.Nop())
	defer func() {
		prog.quit()
		bridge.Close()
	}()

	inner := make(chan struct{})
	bridge.RunOnUI(func() {
		bridge.RunOnUI(func() { close(inner) })
	})

	select {
	case <-inner:
	case <-time.After(2 * time.Second):
		t.Fatal("nested action never ran")
	}
}

func TestHandle_IgnoresForeignMessages(t *testing.T) {
	t.Parallel()
	assert.False(t, Handle(tea.KeyMsg{Type: tea.KeyEnter}, zerolog.Nop()))
}
