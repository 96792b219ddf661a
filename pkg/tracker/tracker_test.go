package tracker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dkoosis/fobot/pkg/sched"
	"github.com/dkoosis/fobot/pkg/uiloop"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTracker(t *testing.T, opts ...Option) (*Tracker, *uiloop.Loop) {
	t.Helper()
	loop := uiloop.NewLoop(zerolog.Nop())
	s := sched.New("tracker-test")
	tr := New(loop, s, opts...)
	t.Cleanup(func() {
		tr.Stop()
		require.NoError(t, s.Shutdown(time.Second))
		loop.Close()
		<-loop.Done()
	})
	return tr, loop
}

func settle(t *testing.T, loop *uiloop.Loop) {
	t.Helper()
	require.NoError(t, loop.Pulse(context.Background()))
}

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func rec(id string, s State, sec int) Record {
	return Record{ID: id, Name: "Test" + id, State: s, Time: base.Add(time.Duration(sec) * time.Second)}
}

func TestTracker_WorstIsSticky_When_FailureSeen(t *testing.T) {
	t.Parallel()

	tr, loop := newTracker(t)
	tr.Report(rec("a", Running, 1))
	tr.Report(rec("a", Failed, 2))
	tr.Report(rec("b", Running, 3))
	tr.Report(rec("b", Succeeded, 4))
	tr.Report(rec("a", Succeeded, 5))
	settle(t, loop)

	assert.Equal(t, Failed, tr.Snapshot().Worst)
}

func TestTracker_WorstIsMaximum_When_NoFailure(t *testing.T) {
	t.Parallel()

	tr, loop := newTracker(t)
	tr.Report(rec("a", Succeeded, 1))
	tr.Report(rec("b", Running, 2))
	settle(t, loop)

	assert.Equal(t, Succeeded, tr.Snapshot().Worst)
}

func TestTracker_RecentKeepsNewest_When_OverLimit(t *testing.T) {
	t.Parallel()

	tr, loop := newTracker(t)
	for i := 0; i < 50; i++ {
		tr.Report(rec(fmt.Sprintf("t%02d", i), Succeeded, i))
	}
	settle(t, loop)

	snap := tr.Snapshot()
	require.Len(t, snap.Recent, DefaultRecentLimit)
	assert.Equal(t, "t49", snap.Recent[0].ID)
	assert.Equal(t, "t10", snap.Recent[len(snap.Recent)-1].ID)
	assert.Equal(t, 50, snap.Registered)
	assert.Equal(t, "t49", snap.Current.ID)
}

func TestTracker_RecentDeduplicatesByID(t *testing.T) {
	t.Parallel()

	tr, loop := newTracker(t, WithRecentLimit(3))
	tr.Report(rec("a", Running, 1))
	tr.Report(rec("b", Running, 2))
	tr.Report(rec("a", Succeeded, 3))
	settle(t, loop)

	snap := tr.Snapshot()
	require.Len(t, snap.Recent, 2)
	assert.Equal(t, "a", snap.Recent[0].ID)
	assert.Equal(t, Succeeded, snap.Recent[0].State)
	assert.Equal(t, "b", snap.Recent[1].ID)
}

func TestTracker_CountsTransitions_When_IDRepeats(t *testing.T) {
	t.Parallel()

	tr, loop := newTracker(t)
	tr.Report(rec("a", Running, 1))
	tr.Report(rec("a", Running, 2))
	tr.Report(rec("a", Failed, 3))
	tr.Report(rec("a", Failed, 4))
	tr.Report(rec("a", Running, 5))
	tr.Report(rec("a", Succeeded, 6))
	settle(t, loop)

	snap := tr.Snapshot()
	assert.Equal(t, 1, snap.Registered)
	assert.Equal(t, 2, snap.Executed)
	assert.Equal(t, 1, snap.Failed)
}

func TestTracker_PublishesToSubscribers(t *testing.T) {
	t.Parallel()

	// No scheduler, so only reports publish.
	loop := uiloop.NewLoop(zerolog.Nop())
	tr := New(loop, nil)
	t.Cleanup(func() {
		loop.Close()
		<-loop.Done()
	})
	var got []Snapshot
	var unsubscribe func()
	loop.RunOnUI(func() {
		unsubscribe = tr.Subscribe(func(s Snapshot) { got = append(got, s) })
	})
	tr.Report(rec("a", Running, 1))
	tr.Report(rec("a", Succeeded, 2))
	settle(t, loop)

	loop.RunOnUI(func() { unsubscribe() })
	tr.Report(rec("b", Running, 3))
	settle(t, loop)

	require.Len(t, got, 2)
	assert.Equal(t, Running, got[0].Current.State)
	assert.Equal(t, Succeeded, got[1].Current.State)
}

func TestTracker_IsSafe_When_ReportedConcurrently(t *testing.T) {
	t.Parallel()

	tr, loop := newTracker(t)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		g := g
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				id := fmt.Sprintf("g%d-%d", g, i)
				tr.Report(Record{ID: id, State: Running})
				tr.Report(Record{ID: id, State: Succeeded})
				_ = tr.Snapshot()
			}
		}()
	}
	wg.Wait()
	settle(t, loop)

	snap := tr.Snapshot()
	assert.Equal(t, 200, snap.Registered)
	assert.Equal(t, 200, snap.Executed)
	assert.Equal(t, 0, snap.Failed)
	assert.Len(t, snap.Recent, DefaultRecentLimit)
}

func TestTracker_ElapsedUsesClock(t *testing.T) {
	t.Parallel()

	now := base
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	tr, loop := newTracker(t, WithClock(clock))
	assert.Zero(t, tr.Snapshot().Elapsed)

	tr.Report(Record{ID: "a", State: Running})
	settle(t, loop)
	mu.Lock()
	now = now.Add(90 * time.Second)
	mu.Unlock()

	snap := tr.Snapshot()
	assert.Equal(t, base, snap.Started)
	assert.Equal(t, 90*time.Second, snap.Elapsed)
	assert.Equal(t, base, snap.Current.Time)
}

func TestTracker_ElapsedCountsFromStart_When_StartGiven(t *testing.T) {
	t.Parallel()

	clock := func() time.Time { return base.Add(5 * time.Second) }
	tr, loop := newTracker(t, WithClock(clock), WithStart(base))

	snap := tr.Snapshot()
	assert.Equal(t, base, snap.Started)
	assert.Equal(t, 5*time.Second, snap.Elapsed)

	var mu sync.Mutex
	var got []Snapshot
	loop.RunOnUI(func() {
		tr.Subscribe(func(s Snapshot) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, s)
		})
	})
	// Publication runs without any report.
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0
	}, 3*ElapsedPeriod, 10*time.Millisecond)

	tr.Report(Record{ID: "a", State: Running})
	settle(t, loop)
	assert.Equal(t, base, tr.Snapshot().Started)
}

func TestState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "unknown", State(9).String())
}
