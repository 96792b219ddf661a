// Package sched runs coordination work on a single dedicated worker
// goroutine. Tasks execute strictly in the order they become ready, and a
// failing task never takes the worker down with it.
package sched

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrStopped is returned for work submitted after Stop, and for delayed
	// work that had not yet become ready when the scheduler stopped.
	ErrStopped = errors.New("scheduler stopped")

	// ErrShutdownTimeout is returned when the queue does not drain in time.
	ErrShutdownTimeout = errors.New("shutdown timed out")

	// ErrTaskPanicked wraps the value recovered from a panicking task.
	ErrTaskPanicked = errors.New("task panicked")
)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger used for task failures.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Scheduler) { s.log = log }
}

// Scheduler owns one worker goroutine and a FIFO queue of ready tasks.
type Scheduler struct {
	name string
	log  zerolog.Logger

	mu      sync.Mutex
	queue   []func()
	stopped bool
	delayed map[*delayedTask]struct{}
	tickets map[*Ticket]struct{}

	wake chan struct{}
	done chan struct{}
}

type delayedTask struct {
	timer  *time.Timer
	reject func()
}

// New starts a scheduler. The name only appears in logs and errors.
func New(name string, opts ...Option) *Scheduler {
	s := &Scheduler{
		name:    name,
		log:     zerolog.Nop(),
		delayed: make(map[*delayedTask]struct{}),
		tickets: make(map[*Ticket]struct{}),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("scheduler", name).Logger()
	go s.loop()
	return s
}

// Submit queues fn for immediate execution.
func Submit[T any](s *Scheduler, fn func() (T, error)) *Future[T] {
	f := newFuture[T]()
	if !s.enqueue(runTask(s, f, fn)) {
		f.fail(ErrStopped)
	}
	return f
}

// Schedule queues fn once delay has elapsed.
func Schedule[T any](s *Scheduler, delay time.Duration, fn func() (T, error)) *Future[T] {
	if delay <= 0 {
		return Submit(s, fn)
	}

	f := newFuture[T]()
	task := runTask(s, f, fn)
	d := &delayedTask{reject: func() { f.fail(ErrStopped) }}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		f.fail(ErrStopped)
		return f
	}
	d.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.delayed, d)
		s.mu.Unlock()
		if !s.enqueue(task) {
			d.reject()
		}
	})
	s.delayed[d] = struct{}{}
	return f
}

// ScheduleAtFixedRate runs fn after initialDelay and then every period. A
// run is skipped while the previous one is still queued or executing.
func (s *Scheduler) ScheduleAtFixedRate(initialDelay, period time.Duration, fn func()) (*Ticket, error) {
	if period <= 0 {
		return nil, fmt.Errorf("scheduler %s: non-positive period %s", s.name, period)
	}

	t := &Ticket{s: s, stop: make(chan struct{})}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil, ErrStopped
	}
	s.tickets[t] = struct{}{}
	s.mu.Unlock()

	go t.run(initialDelay, period, fn)
	return t, nil
}

// Stop stops accepting work and cancels periodic and not-yet-ready delayed
// tasks. Already queued tasks still run. Stop does not wait and may be
// called from a task.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	delayed := s.delayed
	s.delayed = make(map[*delayedTask]struct{})
	tickets := s.tickets
	s.tickets = make(map[*Ticket]struct{})
	s.mu.Unlock()

	for d := range delayed {
		if d.timer.Stop() {
			d.reject()
		}
	}
	for t := range tickets {
		t.cancel()
	}
	s.signal()
}

// Shutdown stops the scheduler and waits up to timeout for queued work to
// drain.
func (s *Scheduler) Shutdown(timeout time.Duration) error {
	s.Stop()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.done:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: scheduler %s did not drain within %s", ErrShutdownTimeout, s.name, timeout)
	}
}

// Done is closed when the worker has exited.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

func (s *Scheduler) enqueue(task func()) bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, task)
	s.mu.Unlock()
	s.signal()
	return true
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop() {
	defer close(s.done)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.stopped {
			s.mu.Unlock()
			<-s.wake
			s.mu.Lock()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		task := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()

		task()
	}
}

// runTask wraps fn so that its outcome, including a panic, lands in f.
func runTask[T any](s *Scheduler, f *Future[T], fn func() (T, error)) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("%w: %v", ErrTaskPanicked, r)
				s.log.Error().Err(err).Bytes("stack", debug.Stack()).Msg("task panicked")
				f.fail(err)
			}
		}()
		f.complete(fn())
	}
}

// Ticket is a handle on a fixed-rate task.
type Ticket struct {
	s    *Scheduler
	stop chan struct{}
	once sync.Once
	busy atomic.Bool
}

// Cancel stops future executions. An execution already queued still runs.
func (t *Ticket) Cancel() {
	t.s.mu.Lock()
	delete(t.s.tickets, t)
	t.s.mu.Unlock()
	t.cancel()
}

func (t *Ticket) cancel() {
	t.once.Do(func() { close(t.stop) })
}

func (t *Ticket) run(initialDelay, period time.Duration, fn func()) {
	if initialDelay > 0 {
		timer := time.NewTimer(initialDelay)
		select {
		case <-t.stop:
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		t.fire(fn)
		select {
		case <-t.stop:
			return
		case <-ticker.C:
		}
	}
}

func (t *Ticket) fire(fn func()) {
	if !t.busy.CompareAndSwap(false, true) {
		return
	}
	ok := t.s.enqueue(func() {
		defer t.busy.Store(false)
		defer func() {
			if r := recover(); r != nil {
				t.s.log.Error().Interface("panic", r).Msg("periodic task panicked")
			}
		}()
		fn()
	})
	if !ok {
		t.busy.Store(false)
		t.cancel()
	}
}
