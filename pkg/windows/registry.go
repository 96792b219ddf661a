// Package windows follows the host's top-level windows: how many were
// created and released, which are open now, and closing them in bulk.
package windows

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dkoosis/fobot/pkg/host"
)

// CloseError reports a window that refused to close.
type CloseError struct {
	ID    string
	Title string
	Err   error
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("closing window %s (%q): %v", e.ID, e.Title, e.Err)
}

func (e *CloseError) Unwrap() error { return e.Err }

// Info describes one live window.
type Info struct {
	ID      string
	Title   string
	Bounds  host.Rect
	Showing bool
}

// Snapshot is the registry state at one point in time.
type Snapshot struct {
	Created  int
	Released int
	Live     []Info
}

// Registry counts window notifications from one desktop. Attach, Detach,
// Subscribe and CloseAll must be called on the UI loop; Snapshot is safe
// from any goroutine.
type Registry struct {
	log zerolog.Logger

	mu   sync.Mutex
	snap Snapshot

	desktop     host.Desktop
	unsubscribe func()
	subs        map[int]func(Snapshot)
	nextSub     int
}

// New creates an unattached registry.
func New(log zerolog.Logger) *Registry {
	return &Registry{
		log:  log.With().Str("component", "windows").Logger(),
		subs: make(map[int]func(Snapshot)),
	}
}

// Attach starts following d. Attaching again replaces the previous
// desktop.
func (r *Registry) Attach(d host.Desktop) {
	r.Detach()
	r.desktop = d
	r.unsubscribe = d.Subscribe(r.onEvent)
	r.refresh()
}

// Detach stops following the desktop.
func (r *Registry) Detach() {
	if r.unsubscribe != nil {
		r.unsubscribe()
		r.unsubscribe = nil
	}
	r.desktop = nil
}

// Subscribe registers fn for every snapshot change and returns a function
// that removes it.
func (r *Registry) Subscribe(fn func(Snapshot)) func() {
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	return func() { delete(r.subs, id) }
}

// Snapshot returns a copy of the current state.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.snap
	s.Live = append([]Info(nil), r.snap.Live...)
	return s
}

func (r *Registry) onEvent(ev host.WindowEvent) {
	r.mu.Lock()
	switch ev.Kind {
	case host.WindowAdded:
		r.snap.Created++
	case host.WindowRemoved:
		r.snap.Released++
	}
	r.mu.Unlock()

	r.log.Debug().
		Stringer("event", ev.Kind).
		Str("window", ev.Window.ID()).
		Str("title", ev.Window.Title()).
		Msg("window event")
	r.refresh()
}

func (r *Registry) refresh() {
	if r.desktop == nil {
		return
	}
	var live []Info
	for _, w := range r.desktop.Windows() {
		if !w.Showing() {
			continue
		}
		live = append(live, Info{ID: w.ID(), Title: w.Title(), Bounds: w.Bounds(), Showing: true})
		r.log.Debug().Str("window", w.ID()).Str("title", w.Title()).Msg("live window")
	}

	r.mu.Lock()
	r.snap.Live = live
	r.mu.Unlock()

	s := r.Snapshot()
	ids := make([]int, 0, len(r.subs))
	for id := range r.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		if fn, ok := r.subs[id]; ok {
			fn(s)
		}
	}
}

// CloseAll closes every showing window except the given one. Each failure
// is logged and the rest are still closed; the failures are returned
// joined.
func (r *Registry) CloseAll(except host.Window) error {
	if r.desktop == nil {
		return nil
	}
	var errs []error
	for _, w := range r.desktop.Windows() {
		if !w.Showing() || (except != nil && w.ID() == except.ID()) {
			continue
		}
		if err := w.Close(); err != nil {
			cerr := &CloseError{ID: w.ID(), Title: w.Title(), Err: err}
			r.log.Warn().Err(cerr).Msg("window did not close")
			errs = append(errs, cerr)
		}
	}
	return errors.Join(errs...)
}
