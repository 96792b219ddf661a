package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/dkoosis/fobot/internal/version"
	"github.com/dkoosis/fobot/pkg/commander"
	"github.com/dkoosis/fobot/pkg/host"
	"github.com/dkoosis/fobot/pkg/host/virtual"
	"github.com/dkoosis/fobot/pkg/robot"
	"github.com/dkoosis/fobot/pkg/tracker"
	"github.com/dkoosis/fobot/pkg/uiloop"
)

// demoStep types into the stage field and names the text it should hold.
type demoStep struct {
	name string
	want string
	typ  func(ctx context.Context, r *robot.Robot) error
}

func demoSteps(text string) []demoStep {
	return []demoStep{
		{
			name: "TypeText",
			want: text,
			typ:  func(ctx context.Context, r *robot.Robot) error { return r.Type(ctx, text) },
		},
		{
			name: "TypeTextWithShift",
			want: strings.ToUpper(text),
			typ:  func(ctx context.Context, r *robot.Robot) error { return r.TypeWithShift(ctx, text) },
		},
	}
}

func (a *App) demo(c *cli.Context) error {
	text := c.String("text")
	if text == "" || strings.ToLower(text) != text {
		return fmt.Errorf("demo text must be non-empty lower case, got %q", text)
	}

	var failed int
	err := a.runSession(c.Context, sessionOptions{}, func(ctx context.Context, s *session) error {
		var err error
		failed, err = runDemo(ctx, s, text)
		return err
	})
	if err != nil {
		return err
	}
	if failed > 0 {
		_, _ = fmt.Fprintf(a.streams.out, "demo: %d of %d steps failed\n", failed, len(demoSteps(text)))
		return errTestsFailed
	}
	_, _ = fmt.Fprintln(a.streams.out, "demo: all steps passed")
	return nil
}

// runDemo opens a stage with one field and types into it, once as given
// and once with shift held. It returns how many steps failed.
func runDemo(ctx context.Context, s *session, text string) (int, error) {
	cmd := s.commander
	if err := cmd.SetApplicationInfo(commander.ApplicationInfo{
		Name:    "fobot demo",
		Version: version.Version,
		Build:   version.CommitHash,
	}); err != nil {
		return 0, err
	}

	steps := demoSteps(text)
	for _, st := range steps {
		cmd.Report(tracker.Record{ID: "demo." + st.name, Name: st.name, Time: time.Now(), State: tracker.Initial})
	}

	// The keymap pass raises the console, so the robot comes before the stage.
	r, err := cmd.Robot().Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquiring robot: %w", err)
	}
	if err := r.CheckText(text); err != nil {
		return 0, fmt.Errorf("demo text: %w", err)
	}

	var field *virtual.Field
	if _, err := cmd.StageNew(func(w host.Window) {
		field = w.(*virtual.Window).AddField("text", host.Rect{X: 10, Y: 10, Width: 280, Height: 24})
	}).Wait(ctx); err != nil {
		return 0, fmt.Errorf("opening stage: %w", err)
	}

	var failed int
	for _, st := range steps {
		ok, err := runDemoStep(ctx, s, r, field, st)
		if err != nil {
			return failed, err
		}
		if !ok {
			failed++
		}
	}

	if _, err := cmd.StageCloseAll().Wait(ctx); err != nil {
		return failed, err
	}
	return failed, nil
}

func runDemoStep(ctx context.Context, s *session, r *robot.Robot, field *virtual.Field, st demoStep) (bool, error) {
	cmd := s.commander
	id := "demo." + st.name
	cmd.Report(tracker.Record{ID: id, Name: st.name, Time: time.Now(), State: tracker.Running})

	bounds, err := uiloop.Call(ctx, s.ui, func() host.Rect {
		field.Clear()
		return field.Bounds()
	})
	if err != nil {
		return false, err
	}

	state := tracker.Succeeded
	got := ""
	err = r.MoveAndClick(ctx, bounds.Center())
	if err == nil {
		err = st.typ(ctx, r)
	}
	if err == nil {
		got, err = uiloop.Call(ctx, s.ui, field.Text)
	}
	switch {
	case ctx.Err() != nil:
		return false, ctx.Err()
	case err != nil:
		state = tracker.Failed
		s.log.Error().Err(err).Str("step", st.name).Msg("demo step failed")
	case got != st.want:
		state = tracker.Failed
		s.log.Error().Str("step", st.name).Str("want", st.want).Str("got", got).Msg("demo step typed the wrong text")
	default:
		s.log.Info().Str("step", st.name).Str("text", got).Msg("demo step passed")
	}
	cmd.Report(tracker.Record{ID: id, Name: st.name, Time: time.Now(), State: state})
	return state == tracker.Succeeded, nil
}
