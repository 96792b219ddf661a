package keymap

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// FormatVersion is the cache file layout version. Files written with a
// different version are ignored.
const FormatVersion = 1

// DefaultMaxAge bounds how long a cached keymap is trusted.
const DefaultMaxAge = 7 * 24 * time.Hour

var (
	// ErrCacheMiss means no cache file exists.
	ErrCacheMiss = errors.New("keymap cache miss")
	// ErrCacheStale means the cache file is older than the maximum age.
	ErrCacheStale = errors.New("keymap cache stale")
	// ErrCacheRead means the cache file exists but cannot be used.
	ErrCacheRead = errors.New("keymap cache unreadable")
	// ErrCacheWrite means the keymap could not be persisted.
	ErrCacheWrite = errors.New("keymap cache write failed")
)

// DefaultCacheDir is the directory used when none is configured.
func DefaultCacheDir() string {
	return filepath.Join(os.TempDir(), "fobot")
}

// Fingerprint combines a host layout signature with the operating system.
// A keymap is only reused for the same fingerprint.
func Fingerprint(layout string) string {
	return layout + "-" + runtime.GOOS
}

type cacheFile struct {
	Version     int       `json:"version"`
	Fingerprint string    `json:"fingerprint"`
	Created     time.Time `json:"created"`
	Keys        *KeyMap   `json:"keys"`
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithMaxAge sets the maximum age of a usable cache file. Zero or less
// disables the age check.
func WithMaxAge(d time.Duration) CacheOption {
	return func(c *Cache) { c.maxAge = d }
}

// WithClock sets the time source used for stamping and aging.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// Cache persists one keymap per fingerprint as a JSON file.
type Cache struct {
	dir         string
	fingerprint string
	maxAge      time.Duration
	now         func() time.Time
}

// NewCache returns a cache rooted at dir. An empty dir means
// DefaultCacheDir.
func NewCache(dir, fingerprint string, opts ...CacheOption) *Cache {
	if dir == "" {
		dir = DefaultCacheDir()
	}
	c := &Cache{
		dir:         dir,
		fingerprint: fingerprint,
		maxAge:      DefaultMaxAge,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Path returns the cache file location.
func (c *Cache) Path() string {
	return filepath.Join(c.dir, "keymap-"+sanitize(c.fingerprint)+".json")
}

func sanitize(s string) string {
	if s == "" {
		return "default"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}

// Load reads the cached keymap.
func (c *Cache) Load() (*KeyMap, error) {
	path := c.Path()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrCacheMiss, path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCacheRead, err)
	}

	var file cacheFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCacheRead, path, err)
	}
	switch {
	case file.Version != FormatVersion:
		return nil, fmt.Errorf("%w: %s: version %d, want %d", ErrCacheRead, path, file.Version, FormatVersion)
	case file.Fingerprint != c.fingerprint:
		return nil, fmt.Errorf("%w: %s: fingerprint %q, want %q", ErrCacheRead, path, file.Fingerprint, c.fingerprint)
	case file.Keys == nil || file.Keys.Len() == 0:
		return nil, fmt.Errorf("%w: %s: no keys", ErrCacheRead, path)
	}
	if c.maxAge > 0 {
		if age := c.now().Sub(file.Created); age > c.maxAge {
			return nil, fmt.Errorf("%w: %s is %s old", ErrCacheStale, path, age.Round(time.Second))
		}
	}
	return file.Keys, nil
}

// Save writes m atomically, replacing any previous file.
func (c *Cache) Save(m *KeyMap) error {
	if m == nil {
		return fmt.Errorf("%w: nil keymap", ErrCacheWrite)
	}
	data, err := json.MarshalIndent(cacheFile{
		Version:     FormatVersion,
		Fingerprint: c.fingerprint,
		Created:     c.now().UTC(),
		Keys:        m,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCacheWrite, err)
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrCacheWrite, err)
	}

	tmp, err := os.CreateTemp(c.dir, ".keymap-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCacheWrite, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %w", ErrCacheWrite, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrCacheWrite, err)
	}
	if err := os.Rename(tmp.Name(), c.Path()); err != nil {
		return fmt.Errorf("%w: %w", ErrCacheWrite, err)
	}
	return nil
}

// Clear removes the cache file. A missing file is not an error.
func (c *Cache) Clear() error {
	if err := os.Remove(c.Path()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clearing keymap cache: %w", err)
	}
	return nil
}
