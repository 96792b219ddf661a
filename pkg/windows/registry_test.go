package windows

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkoosis/fobot/pkg/host"
	"github.com/dkoosis/fobot/pkg/host/virtual"
)

func newDesktop(t *testing.T) *virtual.Desktop {
	t.Helper()
	l, err := virtual.LoadLayout("us")
	require.NoError(t, err)
	return virtual.NewDesktop(l)
}

func open(t *testing.T, d *virtual.Desktop, title string) *virtual.Window {
	t.Helper()
	w, err := d.OpenWindow(host.WindowSpec{Title: title, Width: 100, Height: 100})
	require.NoError(t, err)
	return w
}

func TestRegistry_CountsNotifications(t *testing.T) {
	t.Parallel()

	d := newDesktop(t)
	console := open(t, d, "console")
	r := New(zerolog.Nop())
	r.Attach(d)

	var published []Snapshot
	r.Subscribe(func(s Snapshot) { published = append(published, s) })

	a := open(t, d, "a")
	open(t, d, "b")
	require.NoError(t, a.Close())

	snap := r.Snapshot()
	assert.Equal(t, 2, snap.Created)
	assert.Equal(t, 1, snap.Released)
	require.Len(t, snap.Live, 2)
	assert.Equal(t, console.ID(), snap.Live[0].ID)
	assert.Equal(t, "b", snap.Live[1].Title)
	assert.Len(t, published, 3)
}

func TestRegistry_CloseAllSparesConsole(t *testing.T) {
	t.Parallel()

	d := newDesktop(t)
	console := open(t, d, "console")
	r := New(zerolog.Nop())
	r.Attach(d)
	open(t, d, "a")
	open(t, d, "b")

	require.NoError(t, r.CloseAll(console))

	snap := r.Snapshot()
	require.Len(t, snap.Live, 1)
	assert.Equal(t, "console", snap.Live[0].Title)
	assert.Equal(t, 2, snap.Released)
}

func TestRegistry_CloseAllContinues_When_WindowRefuses(t *testing.T) {
	t.Parallel()

	d := newDesktop(t)
	r := New(zerolog.Nop())
	r.Attach(d)
	stubborn := open(t, d, "stubborn")
	stubborn.OnCloseRequest(func() error { return errors.New("unsaved changes") })
	open(t, d, "other")

	err := r.CloseAll(nil)

	var cerr *CloseError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, stubborn.ID(), cerr.ID)
	assert.ErrorIs(t, err, virtual.ErrCloseVetoed)
	assert.Len(t, r.Snapshot().Live, 1)
}

func TestRegistry_IgnoresEvents_When_Detached(t *testing.T) {
	t.Parallel()

	d := newDesktop(t)
	r := New(zerolog.Nop())
	r.Attach(d)
	open(t, d, "a")
	r.Detach()
	open(t, d, "b")

	assert.Equal(t, 1, r.Snapshot().Created)
	assert.NoError(t, r.CloseAll(nil))
}

func TestRegistry_SnapshotIsCopy(t *testing.T) {
	t.Parallel()

	d := newDesktop(t)
	r := New(zerolog.Nop())
	r.Attach(d)
	open(t, d, "a")

	s := r.Snapshot()
	s.Live[0].Title = "mutated"
	assert.Equal(t, "a", r.Snapshot().Live[0].Title)
}
