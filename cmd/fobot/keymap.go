package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/dkoosis/fobot/pkg/host/virtual"
	"github.com/dkoosis/fobot/pkg/keymap"
)

// cache opens the keymap cache the commander uses for the configured
// layout.
func (a *App) cache() (*keymap.Cache, error) {
	layout, err := virtual.LoadLayout(a.cfg.Layout)
	if err != nil {
		return nil, err
	}
	return keymap.NewCache(a.cfg.CacheDir, keymap.Fingerprint(layout.Fingerprint()),
		keymap.WithMaxAge(a.cfg.CacheMaxAge)), nil
}

func (a *App) keymapShow(c *cli.Context) error {
	cache, err := a.cache()
	if err != nil {
		return err
	}

	km, err := cache.Load()
	if err != nil && c.Bool("generate") && !a.cfg.NoCache {
		a.log.Info().Err(err).Msg("generating keymap")
		err = a.runSession(c.Context, sessionOptions{}, func(ctx context.Context, s *session) error {
			var err error
			km, err = s.commander.KeyMap().Wait(ctx)
			return err
		})
	}
	if err != nil {
		if errors.Is(err, keymap.ErrCacheMiss) {
			return fmt.Errorf("%w (run with --generate)", err)
		}
		return err
	}

	if c.Bool("json") {
		enc := json.NewEncoder(a.streams.out)
		enc.SetIndent("", "  ")
		return enc.Encode(km)
	}
	tw := tabwriter.NewWriter(a.streams.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "CHAR\tKEY\n")
	for _, r := range km.Runes() {
		d, _ := km.Lookup(r)
		_, _ = fmt.Fprintf(tw, "%q\t%s\n", r, d)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err = fmt.Fprintf(a.streams.out, "%d characters, %s\n", km.Len(), cache.Path())
	return err
}

func (a *App) keymapClear(*cli.Context) error {
	cache, err := a.cache()
	if err != nil {
		return err
	}
	if err := cache.Clear(); err != nil {
		return err
	}
	_, err = fmt.Fprintf(a.streams.out, "removed %s\n", cache.Path())
	return err
}
