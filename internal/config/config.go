package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dkoosis/fobot/internal/console"
	"github.com/dkoosis/fobot/pkg/commander"
	"github.com/dkoosis/fobot/pkg/host/virtual"
)

// FileName is the config file looked up in the working directory and the
// user config dir.
const FileName = ".fobot.yaml"

// DefaultLayout is the virtual keyboard layout used when none is set.
const DefaultLayout = "us"

// Config is the resolved fobot configuration.
type Config struct {
	Layout      string        `yaml:"layout"`
	CacheDir    string        `yaml:"cache_dir"`
	CacheMaxAge time.Duration `yaml:"cache_max_age"`
	NoCache     bool          `yaml:"no_cache"`

	SettleDelay time.Duration `yaml:"settle_delay"`
	FocusDelay  time.Duration `yaml:"focus_delay"`
	MinKeys     int           `yaml:"min_keys"`
	Attempts    int           `yaml:"attempts"`
	ProbeRounds int           `yaml:"probe_rounds"`

	RecentLimit       int           `yaml:"recent_limit"`
	CloseDelay        time.Duration `yaml:"close_delay"`
	CloseBudget       time.Duration `yaml:"close_budget"`
	TransitionTimeout time.Duration `yaml:"transition_timeout"`
	StageFetchDelay   time.Duration `yaml:"stage_fetch_delay"`

	NoTUI   bool `yaml:"no_tui"`
	Verbose bool `yaml:"verbose"`
	Trace   bool `yaml:"-"`

	Theme console.Colors `yaml:"theme"`

	// Path is the file the config was read from, empty for defaults.
	Path string `yaml:"-"`
}

// Flags holds command-line values. The *Set fields record whether the
// user passed the flag.
type Flags struct {
	ConfigPath string
	Layout     string
	Verbose    bool
	VerboseSet bool
	NoTUI      bool
	NoTUISet   bool
}

// Default returns the built-in configuration.
func Default() *Config {
	o := commander.DefaultOptions()
	return &Config{
		Layout:            DefaultLayout,
		CacheMaxAge:       o.CacheMaxAge,
		SettleDelay:       o.SettleDelay,
		FocusDelay:        o.FocusDelay,
		MinKeys:           o.MinKeys,
		Attempts:          o.Attempts,
		ProbeRounds:       o.ProbeRounds,
		RecentLimit:       o.RecentLimit,
		CloseDelay:        o.CloseDelay,
		CloseBudget:       o.CloseBudget,
		TransitionTimeout: o.TransitionTimeout,
		StageFetchDelay:   o.StageFetchDelay,
		Theme:             console.DefaultColors(),
	}
}

// Load resolves the configuration from defaults, the config file, the
// environment and flags, in increasing priority.
func Load(flags Flags) (*Config, error) {
	cfg := Default()

	path := flags.ConfigPath
	if path == "" {
		path = findConfigPath()
	}
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	cfg.ApplyFlags(flags)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	// Decoding over the defaults keeps every key the file omits.
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	c.Path = path
	return nil
}

// findConfigPath checks the working directory first, then the XDG user
// config dir. It returns "" when neither has a config file.
func findConfigPath() string {
	if _, err := os.Stat(FileName); err == nil {
		return FileName
	}
	configHome, err := os.UserConfigDir()
	if err != nil || configHome == "" || configHome == "/" {
		return ""
	}
	xdgPath := filepath.Join(configHome, "fobot", FileName)
	if _, err := os.Stat(xdgPath); err == nil {
		return xdgPath
	}
	return ""
}

// ApplyEnv overlays FOBOT_* variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	var errs []error
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v := getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	integer := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("FOBOT_LAYOUT", &c.Layout)
	str("FOBOT_CACHE_DIR", &c.CacheDir)
	duration("FOBOT_CACHE_MAX_AGE", &c.CacheMaxAge)
	duration("FOBOT_SETTLE_DELAY", &c.SettleDelay)
	integer("FOBOT_MIN_KEYS", &c.MinKeys)
	boolean("FOBOT_NO_TUI", &c.NoTUI)
	boolean("FOBOT_VERBOSE", &c.Verbose)
	c.Trace = getenv("FOBOT_TRACE") != ""

	if len(errs) > 0 {
		return fmt.Errorf("environment: %w", errors.Join(errs...))
	}
	return nil
}

// ApplyFlags overlays explicitly set flags.
func (c *Config) ApplyFlags(f Flags) {
	if f.Layout != "" {
		c.Layout = f.Layout
	}
	if f.VerboseSet {
		c.Verbose = f.Verbose
	}
	if f.NoTUISet {
		c.NoTUI = f.NoTUI
	}
}

// Validate rejects settings the harness cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if _, err := virtual.LoadLayout(c.Layout); err != nil {
		errs = append(errs, err)
	}
	if c.MinKeys < 1 {
		errs = append(errs, fmt.Errorf("min_keys must be positive, got %d", c.MinKeys))
	}
	if c.Attempts < 1 {
		errs = append(errs, fmt.Errorf("attempts must be positive, got %d", c.Attempts))
	}
	if c.ProbeRounds < 1 {
		errs = append(errs, fmt.Errorf("probe_rounds must be positive, got %d", c.ProbeRounds))
	}
	if c.CloseBudget <= 0 {
		errs = append(errs, fmt.Errorf("close_budget must be positive, got %s", c.CloseBudget))
	}
	for name, d := range map[string]time.Duration{
		"settle_delay":       c.SettleDelay,
		"focus_delay":        c.FocusDelay,
		"close_delay":        c.CloseDelay,
		"transition_timeout": c.TransitionTimeout,
		"stage_fetch_delay":  c.StageFetchDelay,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %s", name, d))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// CommanderOptions converts the config into commander tunables.
func (c *Config) CommanderOptions() commander.Options {
	o := commander.DefaultOptions()
	o.SettleDelay = c.SettleDelay
	o.FocusDelay = c.FocusDelay
	o.MinKeys = c.MinKeys
	o.Attempts = c.Attempts
	o.ProbeRounds = c.ProbeRounds
	o.CacheDir = c.CacheDir
	o.CacheMaxAge = c.CacheMaxAge
	o.DisableCache = c.NoCache
	o.RecentLimit = c.RecentLimit
	o.CloseDelay = c.CloseDelay
	o.CloseBudget = c.CloseBudget
	o.TransitionTimeout = c.TransitionTimeout
	o.StageFetchDelay = c.StageFetchDelay
	return o
}
