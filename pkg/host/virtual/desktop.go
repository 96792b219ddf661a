// Package virtual is an in-process desktop: windows, text fields and a
// keyboard that turns physical key codes into characters through a layout.
// It is the host the harness drives when there is no real display, and the
// host the harness is tested against.
//
// Like any UI toolkit, a Desktop must only be used from the UI loop.
package virtual

import (
	"errors"
	"fmt"
	"sort"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/dkoosis/fobot/pkg/host"
	"github.com/dkoosis/fobot/pkg/keys"
)

// Screen dimensions of the virtual display.
const (
	ScreenWidth  = 1920
	ScreenHeight = 1080
)

// Option configures a Desktop.
type Option func(*Desktop)

// WithLogger sets the desktop logger.
func WithLogger(log zerolog.Logger) Option {
	return func(d *Desktop) { d.log = log }
}

// Desktop is a virtual window system with one keyboard and one mouse.
type Desktop struct {
	log    zerolog.Logger
	layout *Layout

	windows []*Window // bottom to top
	nextID  int

	subs    map[int]func(host.WindowEvent)
	nextSub int

	pressed map[keys.Code]bool
	pointer host.Point
	focus   *Field
}

var (
	_ host.Desktop  = (*Desktop)(nil)
	_ host.Keyboard = (*Desktop)(nil)
	_ host.Mouse    = (*Desktop)(nil)
)

// NewDesktop creates an empty desktop using layout for key translation.
func NewDesktop(layout *Layout, opts ...Option) *Desktop {
	d := &Desktop{
		log:     zerolog.Nop(),
		layout:  layout,
		subs:    make(map[int]func(host.WindowEvent)),
		pressed: make(map[keys.Code]bool),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Layout returns the keyboard layout in use.
func (d *Desktop) Layout() *Layout { return d.layout }

// Windows implements host.Desktop. Windows are listed bottom to top.
func (d *Desktop) Windows() []host.Window {
	out := make([]host.Window, 0, len(d.windows))
	for _, w := range d.windows {
		out = append(out, w)
	}
	return out
}

// Subscribe implements host.Desktop.
func (d *Desktop) Subscribe(fn func(host.WindowEvent)) func() {
	id := d.nextSub
	d.nextSub++
	d.subs[id] = fn
	return func() { delete(d.subs, id) }
}

// NewWindow implements host.Desktop.
func (d *Desktop) NewWindow(spec host.WindowSpec) (host.Window, error) {
	return d.OpenWindow(spec)
}

// OpenWindow is NewWindow returning the concrete type.
func (d *Desktop) OpenWindow(spec host.WindowSpec) (*Window, error) {
	if spec.Width <= 0 || spec.Height <= 0 {
		return nil, fmt.Errorf("window %q: invalid size %dx%d", spec.Title, spec.Width, spec.Height)
	}
	d.nextID++
	offset := 32 * ((d.nextID - 1) % 16)
	w := &Window{
		desktop: d,
		id:      fmt.Sprintf("window-%d", d.nextID),
		title:   spec.Title,
		bounds: host.Rect{
			X:      offset,
			Y:      offset,
			Width:  clamp(spec.Width, spec.MinWidth, spec.MaxWidth),
			Height: clamp(spec.Height, spec.MinHeight, spec.MaxHeight),
		},
		showing: true,
	}
	d.windows = append(d.windows, w)
	d.log.Debug().Str("window", w.id).Str("title", w.title).Msg("window opened")
	d.notify(host.WindowEvent{Kind: host.WindowAdded, Window: w})
	return w, nil
}

func clamp(v, lo, hi int) int {
	if lo > 0 && v < lo {
		v = lo
	}
	if hi > 0 && v > hi {
		v = hi
	}
	return v
}

func (d *Desktop) notify(ev host.WindowEvent) {
	ids := make([]int, 0, len(d.subs))
	for id := range d.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		if fn, ok := d.subs[id]; ok {
			fn(ev)
		}
	}
}

func (d *Desktop) indexOf(w *Window) int {
	for i, o := range d.windows {
		if o == w {
			return i
		}
	}
	return -1
}

func (d *Desktop) raise(w *Window) {
	i := d.indexOf(w)
	if i < 0 || i == len(d.windows)-1 {
		return
	}
	d.windows = append(append(d.windows[:i:i], d.windows[i+1:]...), w)
}

func (d *Desktop) lower(w *Window) {
	i := d.indexOf(w)
	if i <= 0 {
		return
	}
	rest := append(d.windows[:i:i], d.windows[i+1:]...)
	d.windows = append([]*Window{w}, rest...)
}

func (d *Desktop) remove(w *Window) {
	i := d.indexOf(w)
	if i < 0 {
		return
	}
	d.windows = append(d.windows[:i:i], d.windows[i+1:]...)
	if d.focus != nil && d.focus.window == w {
		d.focus.blur()
		d.focus = nil
	}
	d.log.Debug().Str("window", w.id).Str("title", w.title).Msg("window closed")
	d.notify(host.WindowEvent{Kind: host.WindowRemoved, Window: w})
}

// Top returns the frontmost window, or nil.
func (d *Desktop) Top() *Window {
	if len(d.windows) == 0 {
		return nil
	}
	return d.windows[len(d.windows)-1]
}

// Press implements host.Keyboard. Non-modifier keys deliver their glyph to
// the focused field on key down.
func (d *Desktop) Press(code keys.Code) error {
	if !code.Valid() {
		return fmt.Errorf("press: invalid key %s", code)
	}
	d.pressed[code] = true
	if !code.IsModifier() {
		d.deliver(code)
	}
	return nil
}

// Release implements host.Keyboard.
func (d *Desktop) Release(code keys.Code) error {
	if !code.Valid() {
		return fmt.Errorf("release: invalid key %s", code)
	}
	delete(d.pressed, code)
	return nil
}

// Type implements host.Keyboard.
func (d *Desktop) Type(code keys.Code) error {
	if err := d.Press(code); err != nil {
		return err
	}
	return d.Release(code)
}

// Pressed lists keys currently held down, in code order.
func (d *Desktop) Pressed() []keys.Code {
	out := make([]keys.Code, 0, len(d.pressed))
	for c := range d.pressed {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (d *Desktop) deliver(code keys.Code) {
	f := d.focus
	if f == nil || !f.enabled || !f.window.showing {
		return
	}
	switch code {
	case keys.Backspace:
		f.update(tea.KeyMsg{Type: tea.KeyBackspace})
		return
	case keys.Space:
		f.update(tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
		return
	}
	r := d.layout.Glyph(code, d.pressed[keys.Shift])
	if r == 0 {
		return
	}
	f.update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
}

// MoveTo implements host.Mouse.
func (d *Desktop) MoveTo(p host.Point) error {
	if p.X < 0 || p.Y < 0 || p.X >= ScreenWidth || p.Y >= ScreenHeight {
		return fmt.Errorf("move to %s: outside the screen", p)
	}
	d.pointer = p
	return nil
}

// Pointer returns the pointer position.
func (d *Desktop) Pointer() host.Point { return d.pointer }

// Click implements host.Mouse. A primary click raises the window under the
// pointer and focuses the field under it, if any.
func (d *Desktop) Click(button host.MouseButton) error {
	if button != host.ButtonPrimary {
		return nil
	}
	for i := len(d.windows) - 1; i >= 0; i-- {
		w := d.windows[i]
		if !w.showing || !w.bounds.Contains(d.pointer) {
			continue
		}
		d.raise(w)
		for _, f := range w.fields {
			if f.absBounds().Contains(d.pointer) && f.enabled {
				f.Focus()
				if f.onClick != nil {
					f.onClick()
				}
				return nil
			}
		}
		return nil
	}
	return nil
}

// ErrCloseVetoed is returned by Close when a close handler refuses.
var ErrCloseVetoed = errors.New("close vetoed")

// Window is a virtual top-level window.
type Window struct {
	desktop *Desktop
	id      string
	title   string
	bounds  host.Rect
	showing bool
	fields  []*Field

	onCloseRequest func() error
}

var _ host.Window = (*Window)(nil)

func (w *Window) ID() string        { return w.id }
func (w *Window) Title() string     { return w.title }
func (w *Window) Showing() bool     { return w.showing }
func (w *Window) Bounds() host.Rect { return w.bounds }
func (w *Window) String() string    { return w.id + " " + w.title }
func (w *Window) SetTitle(t string) { w.title = t }
func (w *Window) Fields() []*Field  { return append([]*Field(nil), w.fields...) }
func (w *Window) ToFront()          { w.desktop.raise(w) }
func (w *Window) ToBack()           { w.desktop.lower(w) }

// OnCloseRequest installs a handler that may veto Close by returning an
// error.
func (w *Window) OnCloseRequest(fn func() error) { w.onCloseRequest = fn }

// Close implements host.Window.
func (w *Window) Close() error {
	if !w.showing {
		return nil
	}
	if w.onCloseRequest != nil {
		if err := w.onCloseRequest(); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrCloseVetoed, w.id, err)
		}
	}
	w.showing = false
	w.desktop.remove(w)
	return nil
}

// AddField places a text field at rect, relative to the window origin.
func (w *Window) AddField(name string, rect host.Rect) *Field {
	ti := textinput.New()
	ti.Prompt = ""
	ti.CharLimit = 0
	ti.Width = rect.Width
	f := &Field{window: w, name: name, rel: rect, model: ti, enabled: true}
	w.fields = append(w.fields, f)
	return f
}

// Field is a single-line text field backed by a bubbles textinput.
type Field struct {
	window  *Window
	name    string
	rel     host.Rect
	model   textinput.Model
	enabled bool
	onClick func()
	onEdit  func(string)
}

var _ host.TextInput = (*Field)(nil)

// Name returns the field name.
func (f *Field) Name() string { return f.name }

// Clear implements host.TextInput.
func (f *Field) Clear() {
	f.model.SetValue("")
	f.changed()
}

// Text implements host.TextInput.
func (f *Field) Text() string { return f.model.Value() }

// SetEnabled implements host.TextInput. A disabled field drops focus.
func (f *Field) SetEnabled(enabled bool) {
	f.enabled = enabled
	if !enabled && f.window.desktop.focus == f {
		f.blur()
		f.window.desktop.focus = nil
	}
}

// Enabled reports whether the field accepts input.
func (f *Field) Enabled() bool { return f.enabled }

// Focus implements host.TextInput.
func (f *Field) Focus() {
	d := f.window.desktop
	if d.focus != nil && d.focus != f {
		d.focus.blur()
	}
	d.focus = f
	_ = f.model.Focus()
}

// Focused reports whether keystrokes go to this field.
func (f *Field) Focused() bool { return f.window.desktop.focus == f }

// Bounds implements host.TextInput in screen coordinates.
func (f *Field) Bounds() host.Rect { return f.absBounds() }

// OnClick registers fn to run when a primary click lands on the field.
func (f *Field) OnClick(fn func()) { f.onClick = fn }

// OnEdit registers fn to run with the new text after every edit.
func (f *Field) OnEdit(fn func(string)) { f.onEdit = fn }

// View renders the field.
func (f *Field) View() string { return f.model.View() }

func (f *Field) absBounds() host.Rect {
	wb := f.window.bounds
	return host.Rect{X: wb.X + f.rel.X, Y: wb.Y + f.rel.Y, Width: f.rel.Width, Height: f.rel.Height}
}

func (f *Field) blur() { f.model.Blur() }

func (f *Field) update(msg tea.KeyMsg) {
	before := f.model.Value()
	f.model, _ = f.model.Update(msg)
	if f.model.Value() != before {
		f.changed()
	}
}

func (f *Field) changed() {
	if f.onEdit != nil {
		f.onEdit(f.model.Value())
	}
}
