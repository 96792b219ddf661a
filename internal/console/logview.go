package console

import (
	"github.com/rs/zerolog"

	"github.com/dkoosis/fobot/pkg/commander"
	"github.com/dkoosis/fobot/pkg/keys"
	"github.com/dkoosis/fobot/pkg/tracker"
	"github.com/dkoosis/fobot/pkg/windows"
)

// LogView is the console for runs without a terminal. It writes every
// update to a logger and finishes transitions immediately.
type LogView struct {
	log   zerolog.Logger
	worst tracker.State
	live  int
}

var _ commander.View = (*LogView)(nil)

// NewLogView returns a view writing to log.
func NewLogView(log zerolog.Logger) *LogView {
	return &LogView{log: log.With().Str("component", "console").Logger()}
}

func (v *LogView) Status(s string) {
	v.log.Info().Str("status", s).Msg("status")
}

func (v *LogView) Progress(done, total int, code keys.Code) {
	ev := v.log.Debug()
	if done == total {
		ev = v.log.Info()
	}
	ev.Int("done", done).Int("total", total).Stringer("key", code).Msg("keymap progress")
}

func (v *LogView) ApplicationInfo(info commander.ApplicationInfo) {
	v.log.Info().
		Str("name", info.Name).
		Str("version", info.Version).
		Str("build", info.Build).
		Msg("application under test")
}

func (v *LogView) ExecutionID(id string) {
	v.log.Info().Str("execution_id", id).Msg("execution started")
}

func (v *LogView) Diagnostics(d commander.Diagnostics) {
	v.log.Debug().
		Str("host", d.Hostname).
		Str("os", d.GOOS).
		Str("arch", d.GOARCH).
		Str("go", d.GoVersion).
		Time("started", d.Started).
		Msg("diagnostics")
}

// Tests logs at debug on every snapshot and at warn the first time the
// worst state becomes Failed.
func (v *LogView) Tests(s tracker.Snapshot) {
	if s.Worst == tracker.Failed && v.worst != tracker.Failed {
		v.log.Warn().Str("test", s.Current.Name).Msg("first test failure")
	}
	v.worst = s.Worst
	v.log.Debug().
		Int("registered", s.Registered).
		Int("executed", s.Executed).
		Int("failed", s.Failed).
		Stringer("worst", s.Worst).
		Dur("elapsed", s.Elapsed).
		Msg("tests")
}

func (v *LogView) Windows(s windows.Snapshot) {
	if len(s.Live) == v.live {
		return
	}
	v.live = len(s.Live)
	v.log.Debug().
		Int("live", len(s.Live)).
		Int("created", s.Created).
		Int("released", s.Released).
		Msg("windows")
}

func (v *LogView) Heap(used, total uint64) {
	v.log.Trace().Uint64("used", used).Uint64("total", total).Msg("heap")
}

func (v *LogView) HideSplash() {}

func (v *LogView) Transition(done func()) {
	v.log.Debug().Msg("closing")
	done()
}
