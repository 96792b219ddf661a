package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/dkoosis/fobot/internal/console"
	"github.com/dkoosis/fobot/internal/logging"
	"github.com/dkoosis/fobot/pkg/commander"
	"github.com/dkoosis/fobot/pkg/host"
	"github.com/dkoosis/fobot/pkg/host/virtual"
	"github.com/dkoosis/fobot/pkg/keymap"
	"github.com/dkoosis/fobot/pkg/uiloop"
)

// Console window geometry on the virtual desktop. The probe field sits
// along its bottom edge.
const (
	consoleTitle  = "fobot"
	consoleWidth  = 640
	consoleHeight = 480
)

// session is one running harness: a desktop, a UI loop and the commander
// that owns them.
type session struct {
	log       zerolog.Logger
	ui        uiloop.Dispatcher
	desktop   *virtual.Desktop
	commander *commander.Commander
}

type sessionFunc func(ctx context.Context, s *session) error

// sessionOptions tune how a session shares the terminal.
type sessionOptions struct {
	// readsStdin keeps the console from taking keyboard input.
	readsStdin bool
}

func layoutNames() string {
	return strings.Join(virtual.Layouts(), ", ")
}

// environment builds the virtual desktop with its console window.
func (a *App) environment() (commander.Environment, *virtual.Desktop, error) {
	layout, err := virtual.LoadLayout(a.cfg.Layout)
	if err != nil {
		return commander.Environment{}, nil, err
	}
	desk := virtual.NewDesktop(layout, virtual.WithLogger(a.log))
	win, err := desk.OpenWindow(host.WindowSpec{Title: consoleTitle, Width: consoleWidth, Height: consoleHeight})
	if err != nil {
		return commander.Environment{}, nil, fmt.Errorf("opening console window: %w", err)
	}
	probe := win.AddField("probe", host.Rect{X: 8, Y: consoleHeight - 32, Width: 240, Height: 24})
	probe.SetEnabled(false)

	return commander.Environment{
		Desktop:     desk,
		Keyboard:    desk,
		Mouse:       desk,
		ProbeInput:  probe,
		Console:     win,
		Fingerprint: layout.Fingerprint(),
	}, desk, nil
}

// runSession starts a harness, runs fn against it and closes it again.
func (a *App) runSession(ctx context.Context, opts sessionOptions, fn sessionFunc) error {
	env, desk, err := a.environment()
	if err != nil {
		return err
	}
	if a.useTUI() {
		return a.runTUI(ctx, env, desk, opts, fn)
	}
	return a.runHeadless(ctx, env, desk, fn)
}

func (a *App) newCommander(env commander.Environment, log zerolog.Logger) (*commander.Commander, error) {
	return commander.New(env,
		commander.WithLogger(log),
		commander.WithOptions(a.cfg.CommanderOptions()))
}

func (a *App) runHeadless(ctx context.Context, env commander.Environment, desk *virtual.Desktop, fn sessionFunc) error {
	loop := uiloop.NewLoop(a.log)
	defer func() {
		loop.Close()
		<-loop.Done()
	}()

	env.UI = loop
	env.View = console.NewLogView(a.log)
	c, err := a.newCommander(env, a.log)
	if err != nil {
		return err
	}

	runErr := fn(ctx, &session{log: a.log, ui: loop, desktop: desk, commander: c})
	closeErr := c.Close()
	<-c.Done()
	return errors.Join(runErr, closeErr)
}

// runTUI hands the terminal to the console and logs to a file instead.
func (a *App) runTUI(ctx context.Context, env commander.Environment, desk *virtual.Desktop, opts sessionOptions, fn sessionFunc) error {
	dir := a.cfg.CacheDir
	if dir == "" {
		dir = keymap.DefaultCacheDir()
	}
	f, err := logging.OpenFile(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	log := logging.New(f, logging.Level(a.cfg.Verbose, a.cfg.Trace), false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var quit atomic.Bool
	con := console.New(console.NewTheme(a.cfg.Theme),
		console.WithLogger(log),
		console.OnQuit(func() {
			quit.Store(true)
			cancel()
		}))

	progOpts := []tea.ProgramOption{tea.WithOutput(a.streams.out), tea.WithAltScreen()}
	if opts.readsStdin {
		progOpts = append(progOpts, tea.WithInput(nil))
	} else {
		progOpts = append(progOpts, tea.WithInput(a.streams.in))
	}
	p := tea.NewProgram(con, progOpts...)
	bridge := uiloop.NewTea(p, log)

	progDone := make(chan error, 1)
	go func() {
		_, err := p.Run()
		progDone <- err
	}()
	stop := func() error {
		p.Quit()
		err := <-progDone
		bridge.Close()
		return err
	}

	env.UI = bridge
	env.View = con
	c, err := a.newCommander(env, log)
	if err != nil {
		return errors.Join(err, stop())
	}

	runErr := fn(ctx, &session{log: log, ui: bridge, desktop: desk, commander: c})
	if quit.Load() && errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	closeErr := c.Close()
	<-c.Done()
	return errors.Join(runErr, closeErr, stop())
}
