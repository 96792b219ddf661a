package commander

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/dkoosis/fobot/pkg/keymap"
	"github.com/dkoosis/fobot/pkg/tracker"
)

// Options holds every tunable of the harness.
type Options struct {
	// Keymap generation.
	SettleDelay time.Duration
	FocusDelay  time.Duration
	MinKeys     int
	Attempts    int
	ProbeRounds int

	// Keymap cache. An empty CacheDir means keymap.DefaultCacheDir.
	CacheDir     string
	CacheMaxAge  time.Duration
	DisableCache bool

	RecentLimit int

	// Lifecycle.
	SplashDelay       time.Duration
	HeapPeriod        time.Duration
	CloseDelay        time.Duration
	CloseBudget       time.Duration
	TransitionTimeout time.Duration
	StageFetchDelay   time.Duration
}

// DefaultOptions returns the stock timings.
func DefaultOptions() Options {
	return Options{
		SettleDelay:       keymap.DefaultSettleDelay,
		FocusDelay:        keymap.DefaultFocusDelay,
		MinKeys:           keymap.DefaultMinKeys,
		Attempts:          keymap.DefaultAttempts,
		ProbeRounds:       keymap.DefaultProbeRounds,
		CacheMaxAge:       keymap.DefaultMaxAge,
		RecentLimit:       tracker.DefaultRecentLimit,
		SplashDelay:       time.Second,
		HeapPeriod:        time.Second,
		CloseDelay:        time.Second,
		CloseBudget:       10 * time.Second,
		TransitionTimeout: 30 * time.Second,
		StageFetchDelay:   100 * time.Millisecond,
	}
}

func (o Options) generator() keymap.Options {
	return keymap.Options{
		SettleDelay: o.SettleDelay,
		FocusDelay:  o.FocusDelay,
		MinKeys:     o.MinKeys,
		Attempts:    o.Attempts,
		ProbeRounds: o.ProbeRounds,
	}
}

// Option configures a Commander.
type Option func(*Commander)

// WithLogger sets the logger handed to every component.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Commander) { c.log = log }
}

// WithOptions replaces the tunables.
func WithOptions(opts Options) Option {
	return func(c *Commander) { c.opts = opts }
}

// WithClock sets the time source for cache aging and test timing.
func WithClock(now func() time.Time) Option {
	return func(c *Commander) { c.now = now }
}
