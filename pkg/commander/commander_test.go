package commander

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dkoosis/fobot/pkg/host"
	"github.com/dkoosis/fobot/pkg/host/virtual"
	"github.com/dkoosis/fobot/pkg/keymap"
	"github.com/dkoosis/fobot/pkg/sched"
	"github.com/dkoosis/fobot/pkg/tracker"
	"github.com/dkoosis/fobot/pkg/uiloop"
	"github.com/dkoosis/fobot/pkg/windows"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingView struct {
	NopView

	mu         sync.Mutex
	statuses   []string
	tests      []tracker.Snapshot
	windows    []windows.Snapshot
	info       []ApplicationInfo
	execID     string
	splash     int
	heap       int
	transition func(done func())
}

func (v *recordingView) Status(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.statuses = append(v.statuses, text)
}

func (v *recordingView) Tests(s tracker.Snapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tests = append(v.tests, s)
}

func (v *recordingView) Windows(s windows.Snapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.windows = append(v.windows, s)
}

func (v *recordingView) ApplicationInfo(info ApplicationInfo) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.info = append(v.info, info)
}

func (v *recordingView) ExecutionID(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.execID = id
}

func (v *recordingView) HideSplash() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.splash++
}

func (v *recordingView) Heap(uint64, uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.heap++
}

func (v *recordingView) Transition(done func()) {
	if v.transition != nil {
		v.transition(done)
		return
	}
	done()
}

func (v *recordingView) count(status string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, s := range v.statuses {
		if s == status {
			n++
		}
	}
	return n
}

type harness struct {
	c       *Commander
	loop    *uiloop.Loop
	desk    *virtual.Desktop
	console *virtual.Window
	view    *recordingView
}

func testOptions(t *testing.T) Options {
	opts := DefaultOptions()
	opts.SettleDelay = 0
	opts.FocusDelay = 0
	opts.CloseDelay = 0
	opts.SplashDelay = 10 * time.Millisecond
	opts.StageFetchDelay = 10 * time.Millisecond
	opts.CacheDir = t.TempDir()
	return opts
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	loop := uiloop.NewLoop(zerolog.Nop())
	layout, err := virtual.LoadLayout("us")
	require.NoError(t, err)
	desk := virtual.NewDesktop(layout)
	console, err := desk.OpenWindow(host.WindowSpec{Title: "fobot", Width: 600, Height: 400})
	require.NoError(t, err)
	probe := console.AddField("probe", host.Rect{X: 10, Y: 380, Width: 100, Height: 10})
	probe.SetEnabled(false)

	view := &recordingView{}
	c, err := New(Environment{
		UI:          loop,
		Desktop:     desk,
		Keyboard:    desk,
		Mouse:       desk,
		ProbeInput:  probe,
		Console:     console,
		View:        view,
		Fingerprint: layout.Fingerprint(),
	}, WithOptions(opts))
	require.NoError(t, err)

	t.Cleanup(func() {
		if c.State() != Closed {
			_ = c.Close()
		}
		<-c.Done()
		loop.Close()
		<-loop.Done()
	})
	return &harness{c: c, loop: loop, desk: desk, console: console, view: view}
}

func (h *harness) onUI(t *testing.T, fn func()) {
	t.Helper()
	require.NoError(t, uiloop.Do(context.Background(), h.loop, func() error {
		fn()
		return nil
	}))
}

func wait[T any](t *testing.T, f *sched.Future[T]) T {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	v, err := f.Wait(ctx)
	require.NoError(t, err)
	return v
}

func TestNew_Fails_When_EnvironmentIncomplete(t *testing.T) {
	t.Parallel()

	_, err := New(Environment{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ProbeInput")
}

func TestCommander_StartsReady(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testOptions(t))
	assert.Equal(t, Ready, h.c.State())
	assert.Len(t, h.c.ExecutionID(), 36)

	assert.Eventually(t, func() bool {
		h.view.mu.Lock()
		defer h.view.mu.Unlock()
		return h.view.splash == 1 && h.view.heap > 0 && h.view.execID == h.c.ExecutionID()
	}, 5*time.Second, 10*time.Millisecond)
}

func TestCommander_GeneratesKeyMapOnce_When_CalledConcurrently(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testOptions(t))

	var wg sync.WaitGroup
	got := make([]*keymap.KeyMap, 8)
	errs := make([]error, 8)
	for i := range got {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i], errs[i] = h.c.KeyMap().Get()
		}()
	}
	wg.Wait()

	for i, m := range got {
		require.NoError(t, errs[i])
		assert.Same(t, got[0], m)
	}
	assert.GreaterOrEqual(t, got[0].Len(), keymap.DefaultMinKeys)
	assert.Same(t, got[0], wait(t, h.c.KeyMap()))
	assert.Equal(t, 1, h.view.count(keymap.StatusGenerating))
	assert.Equal(t, 1, h.view.count(keymap.StatusGenerated))
}

func TestCommander_LoadsKeyMapFromCache_When_Fresh(t *testing.T) {
	t.Parallel()

	opts := testOptions(t)
	first := newHarness(t, opts)
	generated := wait(t, first.c.KeyMap())

	second := newHarness(t, opts)
	loaded := wait(t, second.c.KeyMap())

	assert.True(t, generated.Equal(loaded))
	assert.Equal(t, 0, second.view.count(keymap.StatusGenerating))
}

func TestCommander_RobotTypesIntoStage(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testOptions(t))

	// Generation raises the console, so acquire the robot first.
	r := wait(t, h.c.Robot())
	assert.Same(t, r, wait(t, h.c.Robot()))

	var field *virtual.Field
	stage := wait(t, h.c.StageNew(func(w host.Window) {
		field = w.(*virtual.Window).AddField("text", host.Rect{X: 10, Y: 10, Width: 200, Height: 20})
	}))
	assert.Equal(t, StageTitle, stage.Title())
	assert.Equal(t, StageWidth, stage.Bounds().Width)

	ctx := context.Background()
	require.NoError(t, r.MoveAndClick(ctx, field.Bounds().Center()))
	require.NoError(t, r.Type(ctx, "hello"))
	text, err := uiloop.Call(ctx, h.loop, field.Text)
	require.NoError(t, err)
	assert.Equal(t, "hello", text)

	h.onUI(t, field.Clear)
	require.NoError(t, r.TypeWithShift(ctx, "hello"))
	text, err = uiloop.Call(ctx, h.loop, field.Text)
	require.NoError(t, err)
	assert.Equal(t, "HELLO", text)
}

func TestCommander_StageNewFails_When_SetupPanics(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testOptions(t))
	_, err := h.c.StageNew(func(host.Window) { panic("boom") }).Get()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestCommander_StageCloseAllKeepsConsole(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testOptions(t))
	wait(t, h.c.StageNew(nil))
	wait(t, h.c.StageNew(func(w host.Window) {
		w.(*virtual.Window).OnCloseRequest(func() error { return assert.AnError })
	}))

	wait(t, h.c.StageCloseAll())
	require.NoError(t, h.loop.Pulse(context.Background()))

	snap := h.c.Windows().Snapshot()
	assert.Equal(t, 2, snap.Created)
	assert.Equal(t, 1, snap.Released)
	require.Len(t, snap.Live, 2)
	assert.Equal(t, h.console.ID(), snap.Live[0].ID)
}

func TestCommander_SendToBack(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testOptions(t))
	stage := wait(t, h.c.StageNew(nil))
	h.onUI(t, h.console.ToFront)

	h.c.SendToBack()
	top, err := uiloop.Call(context.Background(), h.loop, h.desk.Top)
	require.NoError(t, err)
	assert.Equal(t, stage.ID(), top.ID())
}

func TestCommander_ReportReachesView(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testOptions(t))
	h.c.Report(tracker.Record{ID: "pkg.TestA", Name: "TestA", State: tracker.Running})
	h.c.Report(tracker.Record{ID: "pkg.TestA", Name: "TestA", State: tracker.Failed})
	require.NoError(t, h.loop.Pulse(context.Background()))

	snap := h.c.Tracker().Snapshot()
	assert.Equal(t, tracker.Failed, snap.Worst)
	assert.Equal(t, 1, snap.Failed)

	h.view.mu.Lock()
	defer h.view.mu.Unlock()
	require.NotEmpty(t, h.view.tests)
	assert.Equal(t, tracker.Failed, h.view.tests[len(h.view.tests)-1].Current.State)
}

func TestCommander_ApplicationInfoIsSetOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testOptions(t))
	_, ok := h.c.ApplicationInfo()
	assert.False(t, ok)

	info := ApplicationInfo{Name: "demo", Version: "1.0", Build: "42"}
	require.NoError(t, h.c.SetApplicationInfo(info))
	assert.ErrorIs(t, h.c.SetApplicationInfo(ApplicationInfo{Name: "other"}), ErrInfoAlreadySet)

	got, ok := h.c.ApplicationInfo()
	assert.True(t, ok)
	assert.Equal(t, info, got)
	require.NoError(t, h.loop.Pulse(context.Background()))
	h.view.mu.Lock()
	defer h.view.mu.Unlock()
	assert.Equal(t, []ApplicationInfo{info}, h.view.info)
}

func TestCommander_Close(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testOptions(t))
	require.NoError(t, h.c.Close())

	assert.Equal(t, Closed, h.c.State())
	assert.Equal(t, 1, h.view.count(StatusShuttingDown))
	assert.ErrorIs(t, h.c.Close(), ErrClosed)

	_, err := h.c.KeyMap().Get()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = h.c.Robot().Get()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = h.c.StageNew(nil).Get()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = h.c.StageCloseAll().Get()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCommander_CloseTimesOut_When_TransitionHangs(t *testing.T) {
	t.Parallel()

	opts := testOptions(t)
	opts.CloseBudget = 100 * time.Millisecond
	opts.TransitionTimeout = time.Second
	h := newHarness(t, opts)
	h.view.transition = func(func()) {}

	start := time.Now()
	err := h.c.Close()

	assert.ErrorIs(t, err, sched.ErrShutdownTimeout)
	assert.Less(t, time.Since(start), opts.TransitionTimeout)
	assert.Equal(t, Closed, h.c.State())
}
