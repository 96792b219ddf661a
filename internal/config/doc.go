// Package config loads fobot settings.
//
// # Configuration Precedence
//
// Values are resolved in this order (highest to lowest priority):
//
//  1. CLI flags (--verbose, --no-tui, --layout, --config)
//  2. Environment variables (FOBOT_*)
//  3. YAML config file (.fobot.yaml in the working directory or
//     $XDG_CONFIG_HOME/fobot/.fobot.yaml)
//  4. Hardcoded defaults
//
// # Environment Variables
//
//   - FOBOT_LAYOUT: keyboard layout of the virtual desktop ("us", "de")
//   - FOBOT_CACHE_DIR: directory of the keymap cache
//   - FOBOT_CACHE_MAX_AGE: maximum keymap cache age, e.g. "72h"
//   - FOBOT_SETTLE_DELAY: pause after each synthesized key, e.g. "32ms"
//   - FOBOT_MIN_KEYS: characters a generated keymap must cover
//   - FOBOT_NO_TUI: "true" to run headless
//   - FOBOT_VERBOSE: "true" for debug logging
//   - FOBOT_TRACE: any non-empty value enables trace logging
//
// Durations use time.ParseDuration syntax in both YAML and the environment.
package config
