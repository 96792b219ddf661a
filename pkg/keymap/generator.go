package keymap

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/dkoosis/fobot/pkg/host"
	"github.com/dkoosis/fobot/pkg/keys"
	"github.com/dkoosis/fobot/pkg/uiloop"
)

// ErrGenerationFailed is returned when no attempt reached the minimum
// number of mapped characters.
var ErrGenerationFailed = errors.New("keymap generation failed")

// Status texts shown while generating.
const (
	StatusGenerating = "Generating keymap..."
	StatusGenerated  = "Generated keymap."
)

// Defaults for Options.
const (
	DefaultSettleDelay = 32 * time.Millisecond
	DefaultFocusDelay  = 250 * time.Millisecond
	DefaultMinKeys     = 88
	DefaultAttempts    = 3
	DefaultProbeRounds = 2
)

// Reporter receives generation progress. Its methods run on the UI loop.
type Reporter interface {
	Status(text string)
	Progress(done, total int, code keys.Code)
}

// Environment is what generation drives. Mouse, Console and Reporter are
// optional.
type Environment struct {
	UI       uiloop.Dispatcher
	Keyboard host.Keyboard
	Mouse    host.Mouse
	Input    host.TextInput
	Console  host.Window
	Reporter Reporter
}

// Options tunes the probing protocol.
type Options struct {
	SettleDelay time.Duration
	FocusDelay  time.Duration
	MinKeys     int
	Attempts    int
	ProbeRounds int
	// Candidates overrides keys.Candidates().
	Candidates []keys.Code
}

// DefaultOptions returns the protocol defaults.
func DefaultOptions() Options {
	return Options{
		SettleDelay: DefaultSettleDelay,
		FocusDelay:  DefaultFocusDelay,
		MinKeys:     DefaultMinKeys,
		Attempts:    DefaultAttempts,
		ProbeRounds: DefaultProbeRounds,
	}
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithLogger sets the generator logger. Per-probe failures log at trace.
func WithLogger(log zerolog.Logger) GeneratorOption {
	return func(g *Generator) { g.log = log }
}

// WithOptions replaces the protocol options.
func WithOptions(opts Options) GeneratorOption {
	return func(g *Generator) { g.opts = opts }
}

// WithSleep replaces the function used for pacing delays.
func WithSleep(sleep func(context.Context, time.Duration)) GeneratorOption {
	return func(g *Generator) { g.sleep = sleep }
}

// Generator runs the probing protocol. Generate blocks and must not be
// called on the UI loop; it is meant to run on the scheduler worker.
type Generator struct {
	env   Environment
	opts  Options
	log   zerolog.Logger
	sleep func(context.Context, time.Duration)
}

// NewGenerator creates a generator for env.
func NewGenerator(env Environment, opts ...GeneratorOption) *Generator {
	g := &Generator{
		env:   env,
		opts:  DefaultOptions(),
		log:   zerolog.Nop(),
		sleep: sleepCtx,
	}
	for _, opt := range opts {
		opt(g)
	}
	if len(g.opts.Candidates) == 0 {
		g.opts.Candidates = keys.Candidates()
	}
	if g.opts.Attempts < 1 {
		g.opts.Attempts = 1
	}
	if g.opts.ProbeRounds < 1 {
		g.opts.ProbeRounds = 1
	}
	g.log = g.log.With().Str("component", "keymap").Logger()
	return g
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Generate probes every candidate key until one attempt maps at least
// MinKeys characters.
func (g *Generator) Generate(ctx context.Context) (*KeyMap, error) {
	if err := g.prepare(ctx); err != nil {
		return nil, fmt.Errorf("%w: preparing input: %w", ErrGenerationFailed, err)
	}

	start := time.Now()
	for attempt := 1; attempt <= g.opts.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			g.lock()
			return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
		}
		entries := g.pass(ctx)
		if err := ctx.Err(); err != nil {
			g.lock()
			return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
		}
		if len(entries) >= g.opts.MinKeys {
			g.finish(ctx)
			g.log.Info().
				Int("attempt", attempt).
				Int("keys", len(entries)).
				Dur("elapsed", time.Since(start)).
				Msg("keymap generated")
			return New(entries), nil
		}
		g.log.Warn().
			Int("attempt", attempt).
			Int("keys", len(entries)).
			Int("required", g.opts.MinKeys).
			Msg("keymap attempt produced too few keys")
	}

	g.lock()
	return nil, fmt.Errorf("%w after %d attempts: fewer than %d characters mapped",
		ErrGenerationFailed, g.opts.Attempts, g.opts.MinKeys)
}

func (g *Generator) prepare(ctx context.Context) error {
	if g.env.Console != nil {
		g.env.UI.RunOnUI(g.env.Console.ToFront)
		g.sleep(ctx, g.opts.FocusDelay)
	}
	return uiloop.Do(ctx, g.env.UI, func() error {
		g.env.Input.SetEnabled(true)
		g.env.Input.Focus()
		if g.env.Reporter != nil {
			g.env.Reporter.Status(StatusGenerating)
		}
		return nil
	})
}

func (g *Generator) finish(ctx context.Context) {
	g.env.UI.RunOnUI(func() {
		g.env.Input.Clear()
		g.env.Input.SetEnabled(false)
		if g.env.Reporter != nil {
			g.env.Reporter.Status(StatusGenerated)
		}
	})
	if err := g.env.UI.Pulse(ctx); err != nil {
		g.log.Debug().Err(err).Msg("pulse after generation")
	}
}

func (g *Generator) lock() {
	g.env.UI.RunOnUI(func() { g.env.Input.SetEnabled(false) })
}

// pass probes every candidate once per round, bare then shifted. Keys are
// always released afterwards, whatever happens during the pass.
func (g *Generator) pass(ctx context.Context) map[rune]keys.Descriptor {
	entries := make(map[rune]keys.Descriptor)
	defer g.releaseAll(ctx)

	total := len(g.opts.Candidates)
	for i, code := range g.opts.Candidates {
		if ctx.Err() != nil {
			return entries
		}
		if g.env.Reporter != nil {
			done, c := i+1, code
			g.env.UI.RunOnUI(func() { g.env.Reporter.Progress(done, total, c) })
		}
		g.refocus(ctx)
		for round := 0; round < g.opts.ProbeRounds; round++ {
			for _, shift := range []bool{false, true} {
				d := keys.Descriptor{Code: code, Shift: shift}
				r, err := g.probe(ctx, d)
				if ctx.Err() != nil {
					return entries
				}
				if err != nil {
					g.log.Trace().Err(err).Stringer("key", d).Msg("probe failed")
					continue
				}
				if r != 0 {
					entries[r] = d
				}
			}
		}
	}
	return entries
}

// refocus clicks the probe input so a focus change by the host between
// probes does not swallow keystrokes.
func (g *Generator) refocus(ctx context.Context) {
	if g.env.Mouse == nil {
		return
	}
	err := uiloop.Do(ctx, g.env.UI, func() error {
		if err := g.env.Mouse.MoveTo(g.env.Input.Bounds().Center()); err != nil {
			return err
		}
		return g.env.Mouse.Click(host.ButtonPrimary)
	})
	if err != nil {
		g.log.Trace().Err(err).Msg("refocus failed")
	}
}

// probe types one key into the cleared input and returns the first
// character that appeared, or zero.
func (g *Generator) probe(ctx context.Context, d keys.Descriptor) (rune, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	kb := g.env.Keyboard
	err := uiloop.Do(ctx, g.env.UI, func() error {
		// Queued before a cancel, run after it.
		if err := ctx.Err(); err != nil {
			return err
		}
		g.env.Input.Clear()
		if d.Shift {
			if err := kb.Press(keys.Shift); err != nil {
				return err
			}
		}
		return kb.Type(d.Code)
	})
	g.sleep(ctx, g.opts.SettleDelay)
	if d.Shift {
		g.env.UI.RunOnUI(func() {
			if rerr := kb.Release(keys.Shift); rerr != nil {
				g.log.Trace().Err(rerr).Msg("shift release failed")
			}
		})
	}
	if err != nil {
		return 0, err
	}
	if err := g.env.UI.Pulse(ctx); err != nil {
		return 0, err
	}
	text, err := uiloop.Call(ctx, g.env.UI, g.env.Input.Text)
	if err != nil {
		return 0, err
	}
	if text == "" {
		return 0, nil
	}
	r, _ := utf8.DecodeRuneInString(text)
	return r, nil
}

func (g *Generator) releaseAll(ctx context.Context) {
	kb, log := g.env.Keyboard, g.log
	codes := append([]keys.Code{keys.Shift}, g.opts.Candidates...)
	g.env.UI.RunOnUI(func() {
		for _, c := range codes {
			if err := kb.Release(c); err != nil {
				log.Trace().Err(err).Stringer("key", c).Msg("key release failed")
			}
		}
	})
	if err := g.env.UI.Pulse(ctx); err != nil {
		g.log.Debug().Err(err).Msg("pulse after key release")
	}
}
