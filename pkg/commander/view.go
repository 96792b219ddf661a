package commander

import (
	"time"

	"github.com/dkoosis/fobot/pkg/keymap"
	"github.com/dkoosis/fobot/pkg/keys"
	"github.com/dkoosis/fobot/pkg/tracker"
	"github.com/dkoosis/fobot/pkg/windows"
)

// ApplicationInfo describes the application under test.
type ApplicationInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Build   string `json:"build"`
}

// Diagnostics describes the process running the harness.
type Diagnostics struct {
	Hostname  string
	GOOS      string
	GOARCH    string
	GoVersion string
	Started   time.Time
}

// View is the operator console. Every method is called on the UI loop.
type View interface {
	keymap.Reporter

	ApplicationInfo(info ApplicationInfo)
	ExecutionID(id string)
	Diagnostics(d Diagnostics)
	Tests(s tracker.Snapshot)
	Windows(s windows.Snapshot)
	Heap(used, total uint64)
	HideSplash()
	// Transition plays the closing animation and calls done when it has
	// finished.
	Transition(done func())
}

// NopView discards everything. Its transition finishes immediately.
type NopView struct{}

var _ View = NopView{}

func (NopView) Status(string)                   {}
func (NopView) Progress(int, int, keys.Code)    {}
func (NopView) ApplicationInfo(ApplicationInfo) {}
func (NopView) ExecutionID(string)              {}
func (NopView) Diagnostics(Diagnostics)         {}
func (NopView) Tests(tracker.Snapshot)          {}
func (NopView) Windows(windows.Snapshot)        {}
func (NopView) Heap(uint64, uint64)             {}
func (NopView) HideSplash()                     {}
func (NopView) Transition(done func())          { done() }
