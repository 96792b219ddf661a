// Package tracker aggregates test outcome reports into a snapshot the
// console can render: how many tests ran and failed, the worst outcome so
// far, and the most recent activity.
package tracker

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkoosis/fobot/pkg/sched"
	"github.com/dkoosis/fobot/pkg/uiloop"
)

// State is the lifecycle state of one test. States are ordered by
// severity; Failed is the worst.
type State int

const (
	Initial State = iota
	Running
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Initial:
		return "initial"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Record is one state report for a test.
type Record struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	Time  time.Time `json:"time"`
	State State     `json:"state"`
}

// Snapshot is the aggregate view of all reports so far.
type Snapshot struct {
	Registered int
	Executed   int
	Failed     int
	Worst      State
	// Recent holds at most one record per test, newest first.
	Recent  []Record
	Current Record
	Started time.Time
	Elapsed time.Duration
}

// DefaultRecentLimit bounds Snapshot.Recent.
const DefaultRecentLimit = 40

// ElapsedPeriod is how often the elapsed time is republished.
const ElapsedPeriod = time.Second

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the tracker logger.
func WithLogger(log zerolog.Logger) Option {
	return func(t *Tracker) { t.log = log }
}

// WithRecentLimit sets how many records Snapshot.Recent keeps.
func WithRecentLimit(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.limit = n
		}
	}
}

// WithClock sets the time source for elapsed time.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithStart sets the origin of the elapsed time and starts its periodic
// publication right away. Without it the origin is the first report.
func WithStart(start time.Time) Option {
	return func(t *Tracker) { t.snap.Started = start }
}

// Tracker is safe for concurrent use. Reports are applied on the UI loop,
// and subscribers are called there.
type Tracker struct {
	ui    uiloop.Dispatcher
	sched *sched.Scheduler
	log   zerolog.Logger
	limit int
	now   func() time.Time

	mu      sync.Mutex
	states  map[string]State
	snap    Snapshot
	ticker  *sched.Ticket
	stopped bool

	// UI loop only.
	subs    map[int]func(Snapshot)
	nextSub int
}

// New creates a tracker. s runs the periodic elapsed-time publication.
func New(ui uiloop.Dispatcher, s *sched.Scheduler, opts ...Option) *Tracker {
	t := &Tracker{
		ui:     ui,
		sched:  s,
		log:    zerolog.Nop(),
		limit:  DefaultRecentLimit,
		now:    time.Now,
		states: make(map[string]State),
		subs:   make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.log = t.log.With().Str("component", "tracker").Logger()
	if !t.snap.Started.IsZero() {
		t.startTicker()
	}
	return t
}

// Report records rec. It returns immediately.
func (t *Tracker) Report(rec Record) {
	if rec.Time.IsZero() {
		rec.Time = t.now()
	}
	t.ui.RunOnUI(func() {
		t.apply(rec)
		t.publish()
	})
}

// Subscribe registers fn to receive every published snapshot on the UI
// loop. It returns a function that removes the subscription. Subscribe
// itself must be called on the UI loop.
func (t *Tracker) Subscribe(fn func(Snapshot)) func() {
	id := t.nextSub
	t.nextSub++
	t.subs[id] = fn
	return func() { delete(t.subs, id) }
}

// Snapshot returns a copy of the current aggregate state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() Snapshot {
	s := t.snap
	s.Recent = append([]Record(nil), t.snap.Recent...)
	if !s.Started.IsZero() {
		s.Elapsed = t.now().Sub(s.Started)
	}
	return s
}

// Stop cancels the periodic elapsed-time publication.
func (t *Tracker) Stop() {
	t.mu.Lock()
	t.stopped = true
	ticker := t.ticker
	t.ticker = nil
	t.mu.Unlock()
	if ticker != nil {
		ticker.Cancel()
	}
}

// apply folds one record into the aggregate as a single transaction.
func (t *Tracker) apply(rec Record) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.snap.Started.IsZero() {
		t.snap.Started = t.now()
		t.startTicker()
	}

	prev, known := t.states[rec.ID]
	t.states[rec.ID] = rec.State
	t.snap.Registered = len(t.states)
	if rec.State == Running && (!known || prev != Running) {
		t.snap.Executed++
	}
	if rec.State == Failed && (!known || prev != Failed) {
		t.snap.Failed++
	}
	if t.snap.Worst != Failed && rec.State > t.snap.Worst {
		t.snap.Worst = rec.State
	}
	t.snap.Current = rec

	recent := make([]Record, 0, len(t.snap.Recent)+1)
	recent = append(recent, rec)
	for _, r := range t.snap.Recent {
		if r.ID != rec.ID {
			recent = append(recent, r)
		}
	}
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].Time.After(recent[j].Time) })
	if len(recent) > t.limit {
		recent = recent[:t.limit]
	}
	t.snap.Recent = recent

	t.log.Debug().
		Str("id", rec.ID).
		Stringer("state", rec.State).
		Int("executed", t.snap.Executed).
		Int("failed", t.snap.Failed).
		Msg("test state")
}

// startTicker must be called with mu held. The first publication is
// immediate.
func (t *Tracker) startTicker() {
	if t.stopped || t.sched == nil || t.ticker != nil {
		return
	}
	ticker, err := t.sched.ScheduleAtFixedRate(0, ElapsedPeriod, func() {
		t.ui.RunOnUI(t.publish)
	})
	if err != nil {
		t.log.Debug().Err(err).Msg("elapsed publication not started")
		return
	}
	t.ticker = ticker
}

func (t *Tracker) publish() {
	if len(t.subs) == 0 {
		return
	}
	s := t.Snapshot()
	ids := make([]int, 0, len(t.subs))
	for id := range t.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		if fn, ok := t.subs[id]; ok {
			fn(s)
		}
	}
}
