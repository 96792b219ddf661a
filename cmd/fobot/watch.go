package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/dkoosis/fobot/pkg/commander"
	"github.com/dkoosis/fobot/pkg/testjson"
	"github.com/dkoosis/fobot/pkg/tracker"
)

func (a *App) watch(c *cli.Context) error {
	info := commander.ApplicationInfo{
		Name:    c.String("app-name"),
		Version: c.String("app-version"),
		Build:   c.String("app-build"),
	}

	var snap tracker.Snapshot
	err := a.runSession(c.Context, sessionOptions{readsStdin: true}, func(ctx context.Context, s *session) error {
		if info.Name != "" {
			if err := s.commander.SetApplicationInfo(info); err != nil {
				return err
			}
		}
		if err := testjson.Feed(ctx, a.streams.in, s.commander, s.log); err != nil {
			return err
		}
		// Reports are applied on the UI loop; wait for the last one.
		if err := s.ui.Pulse(ctx); err != nil {
			return err
		}
		snap = s.commander.Tracker().Snapshot()
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	_, _ = fmt.Fprintf(a.streams.out, "%d tests, %d executed, %d failed, state %s\n",
		snap.Registered, snap.Executed, snap.Failed, snap.Worst)
	if snap.Worst == tracker.Failed {
		return errTestsFailed
	}
	return err
}
