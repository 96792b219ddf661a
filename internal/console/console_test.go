package console

import (
	"bytes"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dkoosis/fobot/pkg/commander"
	"github.com/dkoosis/fobot/pkg/host"
	"github.com/dkoosis/fobot/pkg/keys"
	"github.com/dkoosis/fobot/pkg/tracker"
	"github.com/dkoosis/fobot/pkg/uiloop"
	"github.com/dkoosis/fobot/pkg/windows"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// chanSender stands in for *tea.Program.
type chanSender chan tea.Msg

func (s chanSender) Send(msg tea.Msg) { s <- msg }

func TestNewTheme_FillsMissingColors(t *testing.T) {
	t.Parallel()

	th := NewTheme(Colors{Primary: "#FF0000"})
	assert.Equal(t, "#FF0000", th.Colors.Primary)
	assert.Equal(t, DefaultColors().Success, th.Colors.Success)
	assert.Equal(t, DefaultColors().Border, th.Colors.Border)
}

func TestConsole_ShowsSplash_When_NotHidden(t *testing.T) {
	t.Parallel()

	c := New(nil)
	c.ExecutionID("exec-123")
	out := c.View()
	assert.Contains(t, out, "fobot")
	assert.Contains(t, out, "exec-123")
	assert.NotContains(t, out, "Tests")

	c.HideSplash()
	assert.Contains(t, c.View(), "Tests")
}

func TestConsole_RendersState_When_ViewUpdated(t *testing.T) {
	t.Parallel()

	c := New(nil)
	c.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	c.HideSplash()
	c.ApplicationInfo(commander.ApplicationInfo{Name: "Shop", Version: "2.1", Build: "b7"})
	c.Diagnostics(commander.Diagnostics{Hostname: "ci-42", GOOS: "linux", GOARCH: "amd64", GoVersion: "go1.24"})
	c.Status("Generating keymap")
	c.Progress(10, 70, keys.Q)
	c.Tests(tracker.Snapshot{
		Registered: 2, Executed: 1, Failed: 1, Worst: tracker.Failed,
		Recent: []tracker.Record{
			{ID: "p.TestCheckout", Name: "TestCheckout", State: tracker.Failed},
			{ID: "p.TestLogin", Name: "TestLogin", State: tracker.Succeeded},
		},
	})
	c.Windows(windows.Snapshot{
		Created: 3, Released: 1,
		Live: []windows.Info{{ID: "w1", Title: "Stage", Bounds: host.Rect{X: 5, Y: 6, Width: 320, Height: 240}, Showing: true}},
	})
	c.Heap(3<<20, 8<<20)

	out := c.View()
	for _, want := range []string{
		"Shop 2.1 (b7)", "ci-42", "linux/amd64",
		"Generating keymap", "10/70",
		"TestCheckout", "TestLogin", "Failed", "Succeeded",
		"Stage", "320x240@5,6",
		"3.0 MiB", "8.0 MiB",
	} {
		assert.Contains(t, out, want)
	}
}

func TestConsole_TruncatesRecentList(t *testing.T) {
	t.Parallel()

	c := New(nil)
	c.HideSplash()
	recent := make([]tracker.Record, maxRecent+3)
	for i := range recent {
		recent[i] = tracker.Record{ID: string(rune('a' + i)), Name: "T", State: tracker.Running}
	}
	c.Tests(tracker.Snapshot{Recent: recent})
	assert.Contains(t, c.View(), "… 3 more")
}

func TestConsole_TransitionCallsDone_When_FramesElapse(t *testing.T) {
	t.Parallel()

	sender := make(chanSender, 1)
	bridge := uiloop.NewTea(sender, zerolog.Nop())
	defer bridge.Close()

	c := New(nil)
	c.HideSplash()
	require.NotContains(t, c.View(), commander.StatusShuttingDown)
	var calls int
	bridge.RunOnUI(func() { c.Transition(func() { calls++ }) })

	var msg tea.Msg
	select {
	case msg = <-sender:
	case <-time.After(2 * time.Second):
		t.Fatal("bridge never delivered the action")
	}
	_, cmd := c.Update(msg)
	require.NotNil(t, cmd, "starting a transition schedules its first frame")
	view := c.View()
	assert.Contains(t, view, "fobot")
	assert.Contains(t, view, commander.StatusShuttingDown)
	assert.NotContains(t, view, "Keymap", "the splash replaces the dashboard")

	for i := 0; i < TransitionFrames-1; i++ {
		_, cmd = c.Update(transitionMsg{})
		require.NotNil(t, cmd)
		assert.Zero(t, calls)
	}
	_, cmd = c.Update(transitionMsg{})
	assert.Nil(t, cmd)
	assert.Equal(t, 1, calls)

	// A late frame does not call done again.
	c.Update(transitionMsg{})
	assert.Equal(t, 1, calls)
}

func TestConsole_ChainsDone_When_TransitionRequestedTwice(t *testing.T) {
	t.Parallel()

	c := New(nil)
	var order []string
	c.Transition(func() { order = append(order, "first") })
	c.Transition(func() { order = append(order, "second") })
	for i := 0; i < TransitionFrames; i++ {
		c.Update(transitionMsg{})
	}
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestConsole_QuitKey(t *testing.T) {
	t.Parallel()

	t.Run("quits the program without a handler", func(t *testing.T) {
		t.Parallel()
		c := New(nil)
		_, cmd := c.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
		require.NotNil(t, cmd)
		assert.IsType(t, tea.QuitMsg{}, cmd())
	})

	t.Run("calls the handler once", func(t *testing.T) {
		t.Parallel()
		quits := make(chan struct{}, 2)
		c := New(nil, OnQuit(func() { quits <- struct{}{} }))
		_, cmd := c.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
		assert.Nil(t, cmd)
		c.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})

		select {
		case <-quits:
		case <-time.After(2 * time.Second):
			t.Fatal("quit handler not called")
		}
		select {
		case <-quits:
			t.Fatal("quit handler called twice")
		case <-time.After(50 * time.Millisecond):
		}
	})
}

func TestLogView_LogsFirstFailureOnce(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	v := NewLogView(zerolog.New(&buf).Level(zerolog.InfoLevel))

	v.ExecutionID("exec-9")
	v.Tests(tracker.Snapshot{Worst: tracker.Running})
	v.Tests(tracker.Snapshot{Worst: tracker.Failed, Current: tracker.Record{Name: "TestA"}})
	v.Tests(tracker.Snapshot{Worst: tracker.Failed, Current: tracker.Record{Name: "TestB"}})
	v.Progress(69, 70, keys.Z)
	v.Progress(70, 70, keys.Space)

	out := buf.String()
	assert.Contains(t, out, "exec-9")
	assert.Equal(t, 1, strings.Count(out, "first test failure"))
	assert.Contains(t, out, "TestA")
	assert.Equal(t, 1, strings.Count(out, "keymap progress"), "intermediate progress is debug level")

	done := false
	v.Transition(func() { done = true })
	assert.True(t, done)
}
