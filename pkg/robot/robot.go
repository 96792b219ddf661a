// Package robot types text and clicks the mouse through the UI loop, using
// a KeyMap to turn characters into physical keys.
package robot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkoosis/fobot/pkg/host"
	"github.com/dkoosis/fobot/pkg/keymap"
	"github.com/dkoosis/fobot/pkg/keys"
	"github.com/dkoosis/fobot/pkg/uiloop"
)

// ErrUnmappedCharacter matches every *UnmappedCharacterError.
var ErrUnmappedCharacter = errors.New("unmapped character")

// UnmappedCharacterError reports a character the keymap cannot produce.
type UnmappedCharacterError struct {
	Char  rune
	Index int
}

func (e *UnmappedCharacterError) Error() string {
	return fmt.Sprintf("no key produces %q (position %d)", e.Char, e.Index)
}

// Is lets errors.Is match ErrUnmappedCharacter.
func (e *UnmappedCharacterError) Is(target error) bool {
	return target == ErrUnmappedCharacter
}

// Option configures a Robot.
type Option func(*Robot)

// WithLogger sets the robot logger.
func WithLogger(log zerolog.Logger) Option {
	return func(r *Robot) { r.log = log }
}

// WithSettleDelay sets the pause between typed characters.
func WithSettleDelay(d time.Duration) Option {
	return func(r *Robot) { r.settle = d }
}

// Robot synthesizes input. It is safe for concurrent use, though
// interleaving two Type calls interleaves their keystrokes.
type Robot struct {
	ui       uiloop.Dispatcher
	keyboard host.Keyboard
	mouse    host.Mouse
	keymap   *keymap.KeyMap
	settle   time.Duration
	log      zerolog.Logger
}

// New creates a robot. mouse may be nil, in which case MoveAndClick
// returns host.ErrNotSupported.
func New(ui uiloop.Dispatcher, keyboard host.Keyboard, mouse host.Mouse, km *keymap.KeyMap, opts ...Option) *Robot {
	r := &Robot{
		ui:       ui,
		keyboard: keyboard,
		mouse:    mouse,
		keymap:   km,
		settle:   keymap.DefaultSettleDelay,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With().Str("component", "robot").Logger()
	return r
}

// KeyMap returns the keymap the robot types with.
func (r *Robot) KeyMap() *keymap.KeyMap { return r.keymap }

// MoveAndClick moves the pointer to p and clicks the primary button.
func (r *Robot) MoveAndClick(ctx context.Context, p host.Point) error {
	if r.mouse == nil {
		return host.ErrNotSupported
	}
	return uiloop.Do(ctx, r.ui, func() error {
		if err := r.mouse.MoveTo(p); err != nil {
			return fmt.Errorf("move to %s: %w", p, err)
		}
		return r.mouse.Click(host.ButtonPrimary)
	})
}

// PressKey presses d, holding Shift first when d needs it.
func (r *Robot) PressKey(ctx context.Context, d keys.Descriptor) error {
	return uiloop.Do(ctx, r.ui, func() error { return r.press(d) })
}

// ReleaseKey releases d and, when d needs it, Shift.
func (r *Robot) ReleaseKey(ctx context.Context, d keys.Descriptor) error {
	return uiloop.Do(ctx, r.ui, func() error { return r.release(d) })
}

func (r *Robot) press(d keys.Descriptor) error {
	if d.Shift {
		if err := r.keyboard.Press(keys.Shift); err != nil {
			return err
		}
	}
	return r.keyboard.Press(d.Code)
}

func (r *Robot) release(d keys.Descriptor) error {
	err := r.keyboard.Release(d.Code)
	if d.Shift {
		err = errors.Join(err, r.keyboard.Release(keys.Shift))
	}
	return err
}

// Type types text using the keymap. Nothing is typed if any character is
// unmapped.
func (r *Robot) Type(ctx context.Context, text string) error {
	return r.typeText(ctx, text, false)
}

// TypeWithShift types text with Shift held for every character, whatever
// the keymap says.
func (r *Robot) TypeWithShift(ctx context.Context, text string) error {
	return r.typeText(ctx, text, true)
}

// CheckText reports the first character of text the keymap cannot
// produce, without typing anything.
func (r *Robot) CheckText(text string) error {
	_, err := r.resolve(text, false)
	return err
}

func (r *Robot) resolve(text string, forceShift bool) ([]keys.Descriptor, error) {
	out := make([]keys.Descriptor, 0, len(text))
	i := 0
	for _, ch := range text {
		d, ok := r.keymap.Lookup(ch)
		if !ok {
			return nil, &UnmappedCharacterError{Char: ch, Index: i}
		}
		if forceShift {
			d.Shift = true
		}
		out = append(out, d)
		i++
	}
	return out, nil
}

func (r *Robot) typeText(ctx context.Context, text string, forceShift bool) error {
	seq, err := r.resolve(text, forceShift)
	if err != nil {
		return err
	}

	// The first host error wins; later characters are still attempted so
	// no key is left down.
	var first error
	record := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	for i, d := range seq {
		d := d
		if i > 0 && r.settle > 0 {
			if err := sleep(ctx, r.settle); err != nil {
				return err
			}
		}
		r.ui.RunOnUI(func() {
			record(r.press(d))
			record(r.release(d))
		})
	}
	if err := r.ui.Pulse(ctx); err != nil {
		return err
	}
	if first != nil {
		r.log.Debug().Err(first).Msg("typing failed")
	}
	return first
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
