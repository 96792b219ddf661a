// Package host defines the UI subsystem the harness drives. Every method
// here must be called on the UI loop (see package uiloop); implementations
// are not safe for concurrent use.
package host

import (
	"errors"
	"fmt"

	"github.com/dkoosis/fobot/pkg/keys"
)

// ErrNotSupported is returned by hosts that cannot perform an operation.
var ErrNotSupported = errors.New("not supported by this host")

// Point is a position in screen coordinates.
type Point struct {
	X, Y int
}

func (p Point) String() string { return fmt.Sprintf("(%d,%d)", p.X, p.Y) }

// Rect is a screen rectangle.
type Rect struct {
	X, Y, Width, Height int
}

// Contains reports whether p lies inside r.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X < r.X+r.Width && p.Y >= r.Y && p.Y < r.Y+r.Height
}

// Center returns the middle of r.
func (r Rect) Center() Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// MouseButton identifies a mouse button.
type MouseButton int

const (
	ButtonPrimary MouseButton = iota + 1
	ButtonSecondary
	ButtonMiddle
)

// Keyboard synthesizes physical key events.
type Keyboard interface {
	Press(code keys.Code) error
	Release(code keys.Code) error
	// Type presses and releases code.
	Type(code keys.Code) error
}

// Mouse synthesizes pointer events.
type Mouse interface {
	MoveTo(p Point) error
	Click(button MouseButton) error
}

// TextInput is an editable single-line text control.
type TextInput interface {
	Clear()
	Text() string
	SetEnabled(enabled bool)
	Focus()
	Bounds() Rect
}

// Window is a top-level window of the host.
type Window interface {
	ID() string
	Title() string
	Showing() bool
	Bounds() Rect
	Close() error
	ToFront()
	ToBack()
}

// WindowSpec sizes a new window.
type WindowSpec struct {
	Title     string
	Width     int
	Height    int
	MinWidth  int
	MinHeight int
	MaxWidth  int
	MaxHeight int
}

// EventKind distinguishes window notifications.
type EventKind int

const (
	WindowAdded EventKind = iota + 1
	WindowRemoved
)

func (k EventKind) String() string {
	switch k {
	case WindowAdded:
		return "added"
	case WindowRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// WindowEvent reports a window appearing or disappearing.
type WindowEvent struct {
	Kind   EventKind
	Window Window
}

// Desktop is the global window list of the host.
type Desktop interface {
	// Windows returns the currently open windows, oldest first.
	Windows() []Window
	// Subscribe registers fn for window notifications and returns a
	// function that removes it.
	Subscribe(fn func(WindowEvent)) (unsubscribe func())
	// NewWindow creates, shows and raises a window.
	NewWindow(spec WindowSpec) (Window, error)
}
