// Package console renders the operator console: a bubbletea program that
// shows keymap generation, test progress, open windows and process health.
package console

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dkoosis/fobot/pkg/commander"
	"github.com/dkoosis/fobot/pkg/keys"
	"github.com/dkoosis/fobot/pkg/tracker"
	"github.com/dkoosis/fobot/pkg/uiloop"
	"github.com/dkoosis/fobot/pkg/windows"
)

const (
	// TransitionFrames is how many frames the closing fade lasts.
	TransitionFrames = 12
	frameInterval    = 40 * time.Millisecond

	defaultWidth = 80
	maxRecent    = 8
	maxWindows   = 6
)

type transitionMsg struct{}

// Console is both the bubbletea model and the commander's view. View
// methods run inside Update, because the commander reaches them through
// the uiloop bridge.
type Console struct {
	theme *Theme
	log   zerolog.Logger
	title cases.Caser

	onQuit func()
	quit   bool

	width  int
	height int

	splash   bool
	status   string
	bar      progress.Model
	done     int
	total    int
	probing  keys.Code
	info     commander.ApplicationInfo
	execID   string
	diag     commander.Diagnostics
	tests    tracker.Snapshot
	wins     windows.Snapshot
	heapUsed uint64
	heapMax  uint64

	closing        bool
	frame          int
	transitionDone func()

	pending []tea.Cmd
}

var (
	_ tea.Model      = (*Console)(nil)
	_ commander.View = (*Console)(nil)
)

// Option configures a Console.
type Option func(*Console)

// WithLogger sets the logger used for actions the console runs.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Console) { c.log = log }
}

// OnQuit sets the function called once when the operator presses q or
// ctrl+c. Without it those keys quit the program directly.
func OnQuit(fn func()) Option {
	return func(c *Console) { c.onQuit = fn }
}

// New returns a console showing its splash screen.
func New(theme *Theme, opts ...Option) *Console {
	if theme == nil {
		theme = NewTheme(DefaultColors())
	}
	c := &Console{
		theme:  theme,
		log:    zerolog.Nop(),
		title:  cases.Title(language.English),
		width:  defaultWidth,
		splash: true,
		bar: progress.New(
			progress.WithGradient(theme.Colors.Primary, theme.Colors.Success),
			progress.WithoutPercentage(),
		),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.bar.Width = c.width - 20
	return c
}

// Init implements tea.Model.
func (c *Console) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (c *Console) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if uiloop.Handle(msg, c.log) {
		return c, c.flush()
	}
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if c.onQuit == nil {
				return c, tea.Quit
			}
			if !c.quit {
				c.quit = true
				go c.onQuit()
			}
		}
	case tea.WindowSizeMsg:
		c.width = msg.Width
		c.height = msg.Height
		c.bar.Width = max(10, c.width-20)
	case transitionMsg:
		c.frame++
		if c.frame >= TransitionFrames {
			if done := c.transitionDone; done != nil {
				c.transitionDone = nil
				done()
			}
			return c, nil
		}
		return c, nextFrame()
	}
	return c, nil
}

func (c *Console) flush() tea.Cmd {
	if len(c.pending) == 0 {
		return nil
	}
	cmds := c.pending
	c.pending = nil
	return tea.Batch(cmds...)
}

func nextFrame() tea.Cmd {
	return tea.Tick(frameInterval, func(time.Time) tea.Msg { return transitionMsg{} })
}

// Status implements keymap.Reporter.
func (c *Console) Status(s string) { c.status = s }

// Progress implements keymap.Reporter.
func (c *Console) Progress(done, total int, code keys.Code) {
	c.done, c.total, c.probing = done, total, code
}

// ApplicationInfo implements commander.View.
func (c *Console) ApplicationInfo(info commander.ApplicationInfo) { c.info = info }

// ExecutionID implements commander.View.
func (c *Console) ExecutionID(id string) { c.execID = id }

// Diagnostics implements commander.View.
func (c *Console) Diagnostics(d commander.Diagnostics) { c.diag = d }

// Tests implements commander.View.
func (c *Console) Tests(s tracker.Snapshot) { c.tests = s }

// Windows implements commander.View.
func (c *Console) Windows(s windows.Snapshot) { c.wins = s }

// Heap implements commander.View.
func (c *Console) Heap(used, total uint64) { c.heapUsed, c.heapMax = used, total }

// HideSplash implements commander.View.
func (c *Console) HideSplash() { c.splash = false }

// Transition implements commander.View. It brings the splash back with
// the shutting-down status, and done runs on the UI loop after the last
// frame.
func (c *Console) Transition(done func()) {
	if c.closing {
		// Already fading; chain the second caller onto the first.
		prev := c.transitionDone
		c.transitionDone = func() {
			if prev != nil {
				prev()
			}
			done()
		}
		return
	}
	c.closing = true
	c.splash = true
	c.frame = 0
	c.transitionDone = done
	c.pending = append(c.pending, nextFrame())
}

// View implements tea.Model.
func (c *Console) View() string {
	if c.splash {
		return c.viewSplash()
	}

	sections := []string{
		c.viewHeader(),
		c.viewKeymap(),
		c.viewTests(),
		c.viewWindows(),
		c.viewFooter(),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (c *Console) viewSplash() string {
	name := "fobot"
	if c.info.Name != "" {
		name = c.info.Name
	}
	body := c.theme.Splash.Render(name)
	if c.execID != "" {
		body = lipgloss.JoinVertical(lipgloss.Center, body, c.theme.Muted.Render(c.execID))
	}
	if c.closing {
		body = lipgloss.JoinVertical(lipgloss.Center, body, c.theme.Status.Render(commander.StatusShuttingDown))
		// Fade once past half of the transition.
		if c.frame*2 >= TransitionFrames {
			body = c.theme.Muted.Render(body)
		}
	}
	if c.width > 0 && c.height > 0 {
		return lipgloss.Place(c.width, c.height, lipgloss.Center, lipgloss.Center, body)
	}
	return body
}

func (c *Console) viewHeader() string {
	app := c.info.Name
	if app == "" {
		app = "no application"
	}
	if c.info.Version != "" {
		app += " " + c.info.Version
	}
	if c.info.Build != "" {
		app += " (" + c.info.Build + ")"
	}
	title := c.theme.Title.Render("fobot") + " " + c.theme.Value.Render(app)

	meta := fmt.Sprintf("%s  %s/%s  %s",
		c.diag.Hostname, c.diag.GOOS, c.diag.GOARCH, c.diag.GoVersion)
	lines := []string{title, c.theme.Muted.Render(meta)}
	if c.execID != "" {
		lines = append(lines, c.theme.Label.Render("execution ")+c.theme.Value.Render(c.execID))
	}
	return strings.Join(lines, "\n")
}

func (c *Console) viewKeymap() string {
	var b strings.Builder
	b.WriteString(c.theme.Header.Render("Keymap"))
	b.WriteString("\n")
	if c.status != "" {
		b.WriteString(c.theme.Status.Render(c.status))
		b.WriteString("\n")
	}
	if c.total > 0 {
		pct := float64(c.done) / float64(c.total)
		b.WriteString(c.bar.ViewAs(pct))
		fmt.Fprintf(&b, " %d/%d", c.done, c.total)
		if c.done < c.total {
			b.WriteString(c.theme.Muted.Render(" " + c.probing.String()))
		}
	}
	return c.theme.Panel.Width(c.panelWidth()).Render(strings.TrimRight(b.String(), "\n"))
}

func (c *Console) viewTests() string {
	s := c.tests
	var b strings.Builder
	b.WriteString(c.theme.Header.Render("Tests"))
	fmt.Fprintf(&b, "  %s %d  %s %d  %s %d  %s %s",
		c.theme.Label.Render("registered"), s.Registered,
		c.theme.Label.Render("executed"), s.Executed,
		c.theme.Label.Render("failed"), s.Failed,
		c.theme.Label.Render("elapsed"), s.Elapsed.Truncate(time.Second))
	b.WriteString("\n")
	b.WriteString(c.theme.Label.Render("state "))
	b.WriteString(c.stateStyle(s.Worst).Render(c.title.String(s.Worst.String())))

	nameWidth := max(10, c.panelWidth()-16)
	for i, rec := range s.Recent {
		if i == maxRecent {
			fmt.Fprintf(&b, "\n%s", c.theme.Muted.Render(fmt.Sprintf("… %d more", len(s.Recent)-maxRecent)))
			break
		}
		label := c.stateStyle(rec.State).Render(fmt.Sprintf("%-10s", c.title.String(rec.State.String())))
		fmt.Fprintf(&b, "\n%s %s", label, runewidth.Truncate(rec.Name, nameWidth, "…"))
	}
	return c.theme.Panel.Width(c.panelWidth()).Render(b.String())
}

func (c *Console) viewWindows() string {
	s := c.wins
	var b strings.Builder
	b.WriteString(c.theme.Header.Render("Windows"))
	fmt.Fprintf(&b, "  %s %d  %s %d  %s %d",
		c.theme.Label.Render("live"), len(s.Live),
		c.theme.Label.Render("created"), s.Created,
		c.theme.Label.Render("released"), s.Released)

	titleWidth := max(10, c.panelWidth()-24)
	for i, w := range s.Live {
		if i == maxWindows {
			fmt.Fprintf(&b, "\n%s", c.theme.Muted.Render(fmt.Sprintf("… %d more", len(s.Live)-maxWindows)))
			break
		}
		title := w.Title
		if title == "" {
			title = w.ID
		}
		bounds := fmt.Sprintf("%dx%d@%d,%d", w.Bounds.Width, w.Bounds.Height, w.Bounds.X, w.Bounds.Y)
		fmt.Fprintf(&b, "\n%s %s",
			runewidth.FillRight(runewidth.Truncate(title, titleWidth, "…"), titleWidth),
			c.theme.Muted.Render(bounds))
	}
	return c.theme.Panel.Width(c.panelWidth()).Render(b.String())
}

func (c *Console) viewFooter() string {
	heap := "heap " + humanize.IBytes(c.heapUsed) + " / " + humanize.IBytes(c.heapMax)
	return c.theme.Muted.Render(heap + "  •  q quit")
}

func (c *Console) panelWidth() int {
	// Border plus padding take four cells.
	return max(20, c.width-4)
}

func (c *Console) stateStyle(s tracker.State) lipgloss.Style {
	switch s {
	case tracker.Succeeded:
		return c.theme.Success
	case tracker.Failed:
		return c.theme.Failure
	case tracker.Running:
		return c.theme.Running
	default:
		return c.theme.Muted
	}
}
