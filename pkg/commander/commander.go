// Package commander owns the harness lifecycle. It wires the scheduler, the
// UI loop, keymap acquisition, the input robot, the test tracker and the
// window registry, and exposes the operations test code calls.
package commander

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/dkoosis/fobot/pkg/host"
	"github.com/dkoosis/fobot/pkg/keymap"
	"github.com/dkoosis/fobot/pkg/robot"
	"github.com/dkoosis/fobot/pkg/sched"
	"github.com/dkoosis/fobot/pkg/tracker"
	"github.com/dkoosis/fobot/pkg/uiloop"
	"github.com/dkoosis/fobot/pkg/windows"
)

var (
	// ErrClosed is returned by operations on a commander that is shutting
	// down or closed.
	ErrClosed = errors.New("commander closed")

	// ErrInfoAlreadySet is returned when application info is set twice.
	ErrInfoAlreadySet = errors.New("application info already set")
)

// StatusShuttingDown is shown while closing.
const StatusShuttingDown = "Shutting down..."

// Stage window defaults.
const (
	StageTitle     = "Stage"
	StageWidth     = 320
	StageHeight    = 240
	StageMinExtent = 16
	StageMaxExtent = 3000
)

// State is the commander lifecycle state.
type State int32

const (
	Starting State = iota
	Ready
	ShuttingDown
	Closed
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Ready:
		return "ready"
	case ShuttingDown:
		return "shutting down"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Environment is the host the commander drives. Mouse, Console and View
// are optional.
type Environment struct {
	UI         uiloop.Dispatcher
	Desktop    host.Desktop
	Keyboard   host.Keyboard
	Mouse      host.Mouse
	ProbeInput host.TextInput
	// Console is the operator console window. It is never closed by
	// StageCloseAll.
	Console host.Window
	View    View
	// Fingerprint identifies the keyboard layout for the keymap cache.
	Fingerprint string
}

func (e Environment) validate() error {
	var missing []string
	if e.UI == nil {
		missing = append(missing, "UI")
	}
	if e.Desktop == nil {
		missing = append(missing, "Desktop")
	}
	if e.Keyboard == nil {
		missing = append(missing, "Keyboard")
	}
	if e.ProbeInput == nil {
		missing = append(missing, "ProbeInput")
	}
	if len(missing) > 0 {
		return fmt.Errorf("commander environment missing %v", missing)
	}
	return nil
}

// Commander is safe for concurrent use.
type Commander struct {
	env  Environment
	opts Options
	log  zerolog.Logger
	now  func() time.Time

	sched   *sched.Scheduler
	tracker *tracker.Tracker
	windows *windows.Registry
	cache   *keymap.Cache
	execID  string
	started time.Time
	ctx     context.Context
	cancel  context.CancelFunc

	state  atomic.Int32
	info   atomic.Pointer[ApplicationInfo]
	keymap atomic.Pointer[keymap.KeyMap]
	robot  atomic.Pointer[robot.Robot]
	flight singleflight.Group

	// UI loop only.
	unsubUI []func()
}

// New wires a commander around env and makes it ready.
func New(env Environment, opts ...Option) (*Commander, error) {
	if err := env.validate(); err != nil {
		return nil, err
	}
	if env.View == nil {
		env.View = NopView{}
	}

	c := &Commander{
		env:    env,
		opts:   DefaultOptions(),
		log:    zerolog.Nop(),
		now:    time.Now,
		execID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.state.Store(int32(Starting))
	c.started = c.now()
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.log = c.log.With().Str("execution", c.execID).Logger()

	c.sched = sched.New("commander", sched.WithLogger(c.log))
	c.tracker = tracker.New(env.UI, c.sched,
		tracker.WithLogger(c.log),
		tracker.WithRecentLimit(c.opts.RecentLimit),
		tracker.WithClock(c.now),
		tracker.WithStart(c.started))
	c.windows = windows.New(c.log)
	if !c.opts.DisableCache {
		c.cache = keymap.NewCache(c.opts.CacheDir, keymap.Fingerprint(env.Fingerprint),
			keymap.WithMaxAge(c.opts.CacheMaxAge),
			keymap.WithClock(c.now))
	}

	diag := c.diagnostics()
	env.UI.RunOnUI(func() {
		view := c.env.View
		view.ExecutionID(c.execID)
		view.Diagnostics(diag)
		c.windows.Attach(c.env.Desktop)
		c.unsubUI = append(c.unsubUI,
			c.windows.Subscribe(view.Windows),
			c.tracker.Subscribe(view.Tests),
			c.windows.Detach)
	})

	sched.Schedule(c.sched, c.opts.SplashDelay, func() (struct{}, error) {
		c.env.UI.RunOnUI(c.env.View.HideSplash)
		return struct{}{}, nil
	})
	if c.opts.HeapPeriod > 0 {
		if _, err := c.sched.ScheduleAtFixedRate(0, c.opts.HeapPeriod, c.publishHeap); err != nil {
			c.log.Warn().Err(err).Msg("heap publication not started")
		}
	}

	c.log.Info().
		Str("host", diag.Hostname).
		Str("os", diag.GOOS+"/"+diag.GOARCH).
		Str("go", diag.GoVersion).
		Msg("commander started")
	c.state.Store(int32(Ready))
	return c, nil
}

func (c *Commander) diagnostics() Diagnostics {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return Diagnostics{
		Hostname:  hostname,
		GOOS:      runtime.GOOS,
		GOARCH:    runtime.GOARCH,
		GoVersion: runtime.Version(),
		Started:   c.started,
	}
}

func (c *Commander) publishHeap() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	used, total := ms.HeapAlloc, ms.HeapSys
	c.env.UI.RunOnUI(func() { c.env.View.Heap(used, total) })
}

// State returns the lifecycle state.
func (c *Commander) State() State { return State(c.state.Load()) }

// ExecutionID identifies this harness run.
func (c *Commander) ExecutionID() string { return c.execID }

// Tracker returns the test state tracker.
func (c *Commander) Tracker() *tracker.Tracker { return c.tracker }

// Windows returns the window registry.
func (c *Commander) Windows() *windows.Registry { return c.windows }

// Done is closed once the scheduler worker has exited after Close.
func (c *Commander) Done() <-chan struct{} { return c.sched.Done() }

func (c *Commander) closed() bool { return c.State() >= ShuttingDown }

// KeyMap returns the keymap, loading it from the cache or generating it on
// first use. Concurrent first callers share one acquisition.
func (c *Commander) KeyMap() *sched.Future[*keymap.KeyMap] {
	if m := c.keymap.Load(); m != nil {
		return sched.Completed(m)
	}
	if c.closed() {
		return sched.Failed[*keymap.KeyMap](ErrClosed)
	}
	return shared(&c.flight, "keymap", func() (*keymap.KeyMap, error) {
		if m := c.keymap.Load(); m != nil {
			return m, nil
		}
		m, err := sched.Submit(c.sched, c.acquireKeyMap).Get()
		if err != nil {
			return nil, err
		}
		c.keymap.CompareAndSwap(nil, m)
		return c.keymap.Load(), nil
	})
}

// Robot returns the input robot, acquiring the keymap first if needed.
func (c *Commander) Robot() *sched.Future[*robot.Robot] {
	if r := c.robot.Load(); r != nil {
		return sched.Completed(r)
	}
	if c.closed() {
		return sched.Failed[*robot.Robot](ErrClosed)
	}
	return shared(&c.flight, "robot", func() (*robot.Robot, error) {
		if r := c.robot.Load(); r != nil {
			return r, nil
		}
		m, err := c.KeyMap().Get()
		if err != nil {
			return nil, err
		}
		r := robot.New(c.env.UI, c.env.Keyboard, c.env.Mouse, m,
			robot.WithLogger(c.log),
			robot.WithSettleDelay(c.opts.SettleDelay))
		c.robot.CompareAndSwap(nil, r)
		return c.robot.Load(), nil
	})
}

// shared runs fn once per key among concurrent callers and delivers the
// result through a future.
func shared[T any](g *singleflight.Group, key string, fn func() (T, error)) *sched.Future[T] {
	p := sched.NewPromise[T]()
	ch := g.DoChan(key, func() (any, error) { return fn() })
	go func() {
		res := <-ch
		if res.Err != nil {
			var zero T
			p.Complete(zero, res.Err)
			return
		}
		p.Complete(res.Val.(T), nil)
	}()
	return p.Future()
}

// acquireKeyMap runs on the scheduler worker.
func (c *Commander) acquireKeyMap() (*keymap.KeyMap, error) {
	if c.cache != nil {
		m, err := c.cache.Load()
		if err == nil {
			c.log.Info().Str("path", c.cache.Path()).Int("keys", m.Len()).Msg("keymap loaded from cache")
			return m, nil
		}
		c.log.Info().Err(err).Msg("keymap cache not used")
	}

	gen := keymap.NewGenerator(keymap.Environment{
		UI:       c.env.UI,
		Keyboard: c.env.Keyboard,
		Mouse:    c.env.Mouse,
		Input:    c.env.ProbeInput,
		Console:  c.env.Console,
		Reporter: c.env.View,
	}, keymap.WithOptions(c.opts.generator()), keymap.WithLogger(c.log))

	m, err := gen.Generate(c.ctx)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		if err := c.cache.Save(m); err != nil {
			c.log.Warn().Err(err).Msg("keymap not cached")
		}
	}
	return m, nil
}

// StageNew opens a new window, shows and raises it, and passes it to
// onCreate on the UI loop. The future completes after StageFetchDelay.
func (c *Commander) StageNew(onCreate func(host.Window)) *sched.Future[host.Window] {
	if c.closed() {
		return sched.Failed[host.Window](ErrClosed)
	}
	created := sched.NewPromise[host.Window]()
	c.env.UI.RunOnUI(func() {
		defer func() {
			if r := recover(); r != nil {
				created.Complete(nil, fmt.Errorf("stage setup panicked: %v", r))
			}
		}()
		w, err := c.env.Desktop.NewWindow(host.WindowSpec{
			Title:     StageTitle,
			Width:     StageWidth,
			Height:    StageHeight,
			MinWidth:  StageMinExtent,
			MinHeight: StageMinExtent,
			MaxWidth:  StageMaxExtent,
			MaxHeight: StageMaxExtent,
		})
		if err != nil {
			created.Complete(nil, err)
			return
		}
		w.ToFront()
		if onCreate != nil {
			onCreate(w)
		}
		created.Complete(w, nil)
	})
	return sched.Schedule(c.sched, c.opts.StageFetchDelay, func() (host.Window, error) {
		return created.Future().Wait(c.ctx)
	})
}

// StageCloseAll closes every window except the console. Windows that
// refuse are logged and skipped.
func (c *Commander) StageCloseAll() *sched.Future[struct{}] {
	if c.closed() {
		return sched.Failed[struct{}](ErrClosed)
	}
	return sched.Submit(c.sched, func() (struct{}, error) {
		err := uiloop.Do(c.ctx, c.env.UI, func() error {
			return c.windows.CloseAll(c.env.Console)
		})
		if err != nil {
			c.log.Warn().Err(err).Msg("some windows stayed open")
		}
		return struct{}{}, nil
	})
}

// SendToBack lowers the console behind the application under test.
func (c *Commander) SendToBack() {
	if c.env.Console == nil {
		return
	}
	c.env.UI.RunOnUI(c.env.Console.ToBack)
}

// Report forwards a test state change to the tracker.
func (c *Commander) Report(rec tracker.Record) {
	c.tracker.Report(rec)
}

// SetApplicationInfo records what is under test. It can be set once.
func (c *Commander) SetApplicationInfo(info ApplicationInfo) error {
	if !c.info.CompareAndSwap(nil, &info) {
		return ErrInfoAlreadySet
	}
	c.log.Info().Str("name", info.Name).Str("version", info.Version).Str("build", info.Build).Msg("application under test")
	c.env.UI.RunOnUI(func() { c.env.View.ApplicationInfo(info) })
	return nil
}

// ApplicationInfo returns the info set by SetApplicationInfo.
func (c *Commander) ApplicationInfo() (ApplicationInfo, bool) {
	if p := c.info.Load(); p != nil {
		return *p, true
	}
	return ApplicationInfo{}, false
}

// Close shuts the harness down after CloseDelay and waits at most
// CloseBudget. The commander is Closed afterwards even when the budget
// ran out.
func (c *Commander) Close() error {
	if !c.state.CompareAndSwap(int32(Ready), int32(ShuttingDown)) {
		return ErrClosed
	}
	c.log.Info().Dur("delay", c.opts.CloseDelay).Msg("closing")
	deadline := time.Now().Add(c.opts.CloseBudget)

	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	var errs []error
	done := sched.Schedule(c.sched, c.opts.CloseDelay, c.shutDown)
	if _, err := done.Wait(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: close exceeded %s", sched.ErrShutdownTimeout, c.opts.CloseBudget)
		}
		errs = append(errs, err)
	}
	c.cancel()
	c.tracker.Stop()
	if err := c.sched.Shutdown(max(time.Until(deadline), 0)); err != nil && len(errs) == 0 {
		errs = append(errs, err)
	}

	c.env.UI.RunOnUI(func() {
		for _, fn := range c.unsubUI {
			fn()
		}
		c.unsubUI = nil
	})
	c.state.Store(int32(Closed))

	err := errors.Join(errs...)
	if err != nil {
		c.log.Error().Err(err).Msg("close incomplete")
	} else {
		c.log.Info().Msg("closed")
	}
	return err
}

// shutDown runs on the scheduler worker.
func (c *Commander) shutDown() (struct{}, error) {
	view := c.env.View
	finished := make(chan struct{})
	var once sync.Once
	c.env.UI.RunOnUI(func() {
		view.Status(StatusShuttingDown)
		view.Transition(func() { once.Do(func() { close(finished) }) })
	})

	timer := time.NewTimer(c.opts.TransitionTimeout)
	defer timer.Stop()
	select {
	case <-finished:
	case <-timer.C:
		c.log.Warn().Dur("timeout", c.opts.TransitionTimeout).Msg("close transition did not finish")
	}
	c.sched.Stop()
	return struct{}{}, nil
}
