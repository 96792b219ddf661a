// Command fobot drives the test harness against the virtual desktop.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/dkoosis/fobot/internal/config"
	"github.com/dkoosis/fobot/internal/logging"
	"github.com/dkoosis/fobot/internal/version"
)

// AppName is the binary name.
const AppName = "fobot"

// errTestsFailed makes the process exit non-zero after a run that
// recorded a failure. The failure itself has already been reported.
var errTestsFailed = errors.New("tests failed")

// streams are the process's standard files, swapped out in tests.
type streams struct {
	in  io.Reader
	out io.Writer
	err io.Writer
}

// App is the fobot command line.
type App struct {
	streams streams
	cfg     *config.Config
	log     zerolog.Logger
	cli     *cli.App

	// isTerminal reports whether the console can take over the terminal.
	isTerminal func() bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args, streams{in: os.Stdin, out: os.Stdout, err: os.Stderr})
	stop()
	os.Exit(code)
}

// run executes the application and returns the exit code, so tests can
// drive it without os.Exit.
func run(ctx context.Context, args []string, s streams) int {
	app := NewApp(s)
	if err := app.cli.RunContext(ctx, args); err != nil {
		if !errors.Is(err, errTestsFailed) {
			_, _ = fmt.Fprintf(s.err, "%s: %v\n", AppName, err)
		}
		return 1
	}
	return 0
}

// NewApp builds the command line around s.
func NewApp(s streams) *App {
	a := &App{
		streams: s,
		log:     zerolog.Nop(),
		isTerminal: func() bool {
			return isTerminal(s.out) && isTerminal(s.in)
		},
	}
	a.cli = &cli.App{
		Name:    AppName,
		Usage:   "drive GUI tests through a synthesised keyboard and mouse",
		Version: version.Version,
		// The version command replaces the built-in flag, leaving -v to verbose.
		HideVersion: true,
		Reader:      s.in,
		Writer:      s.out,
		ErrWriter:   s.err,
		// Errors are reported by run; the default handler would os.Exit.
		ExitErrHandler: func(*cli.Context, error) {},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable verbose (debug) logging",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Read configuration from `FILE` instead of .fobot.yaml",
			},
			&cli.StringFlag{
				Name:  "layout",
				Usage: "Virtual keyboard layout (" + layoutNames() + ")",
			},
			&cli.BoolFlag{
				Name:  "no-tui",
				Usage: "Log progress instead of drawing the console",
			},
		},
		Before: a.before,
		Commands: []*cli.Command{
			{
				Name:   "demo",
				Usage:  "Open a stage window, type into it and report the outcome",
				Action: a.demo,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "text",
						Usage: "Lower-case text to type",
						Value: "hello",
					},
				},
			},
			{
				Name:   "watch",
				Usage:  "Track a `go test -json` stream read from stdin",
				Action: a.watch,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "app-name", Usage: "Application under test"},
					&cli.StringFlag{Name: "app-version", Usage: "Version of the application under test"},
					&cli.StringFlag{Name: "app-build", Usage: "Build of the application under test"},
				},
			},
			{
				Name:  "keymap",
				Usage: "Inspect the cached keymap",
				Subcommands: []*cli.Command{
					{
						Name:   "show",
						Usage:  "Print the cached keymap",
						Action: a.keymapShow,
						Flags: []cli.Flag{
							&cli.BoolFlag{Name: "generate", Usage: "Generate the keymap when none is cached"},
							&cli.BoolFlag{Name: "json", Usage: "Print the keymap as JSON"},
						},
					},
					{
						Name:   "clear",
						Usage:  "Delete the cached keymap",
						Action: a.keymapClear,
					},
				},
			},
			{
				Name:  "version",
				Usage: "Print build information",
				Action: func(*cli.Context) error {
					_, err := fmt.Fprintln(a.streams.out, version.String())
					return err
				},
			},
		},
	}
	return a
}

// before resolves the configuration and the stderr logger.
func (a *App) before(c *cli.Context) error {
	cfg, err := config.Load(config.Flags{
		ConfigPath: c.String("config"),
		Layout:     c.String("layout"),
		Verbose:    c.Bool("verbose"),
		VerboseSet: c.IsSet("verbose"),
		NoTUI:      c.Bool("no-tui"),
		NoTUISet:   c.IsSet("no-tui"),
	})
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logging.New(a.streams.err, logging.Level(cfg.Verbose, cfg.Trace), isTerminal(a.streams.err))
	if cfg.Path != "" {
		a.log.Debug().Str("path", cfg.Path).Msg("config loaded")
	}
	return nil
}

func (a *App) useTUI() bool {
	return !a.cfg.NoTUI && a.isTerminal()
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
