package testjson

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkoosis/fobot/pkg/tracker"
)

// ToRecord maps a test event to a tracker record. Package-level events,
// output and pause/resume carry no state change and report false.
func ToRecord(e TestEvent) (tracker.Record, bool) {
	if e.Test == "" {
		return tracker.Record{}, false
	}
	var state tracker.State
	switch e.Action {
	case ActionRun, ActionCont:
		state = tracker.Running
	case ActionPass, ActionSkip:
		state = tracker.Succeeded
	case ActionFail:
		state = tracker.Failed
	default:
		return tracker.Record{}, false
	}
	t := e.Time
	if t.IsZero() {
		t = time.Now()
	}
	return tracker.Record{
		ID:    e.Package + "." + e.Test,
		Name:  e.Test,
		Time:  t,
		State: state,
	}, true
}

// Reporter receives test state records.
type Reporter interface {
	Report(rec tracker.Record)
}

// Feed streams r into rep until EOF or cancellation.
func Feed(ctx context.Context, r io.Reader, rep Reporter, log zerolog.Logger) error {
	var reported int
	malformed, err := Stream(ctx, r, func(e TestEvent) {
		if rec, ok := ToRecord(e); ok {
			rep.Report(rec)
			reported++
		}
	})
	log.Debug().Int("reported", reported).Int("malformed", malformed).Msg("test feed finished")
	if malformed > 0 {
		log.Warn().Int("lines", malformed).Msg("skipped malformed test output")
	}
	return err
}
