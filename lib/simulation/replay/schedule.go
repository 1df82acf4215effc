package replay

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// ScheduledCapture is a human-facing convenience wrapper that drives a
// Session's step/play calls on a cron-form interval, for host programs
// that want "keep stepping this scenario every 5 minutes" scheduling
// outside of a single bounded run. The kernel's own tick advance stays
// strictly integer-tick based (spec §4.1); this never sits on the
// deterministic replay path — a recording's timer_tick events are what
// replay actually consumes, not the wall-clock schedule that produced
// them.
type ScheduledCapture struct {
	cron    *cron.Cron
	session *Session
	ticks   int
	entryID cron.EntryID
}

// NewScheduledCapture parses spec as a standard five-field cron
// expression and, once started, advances session by ticksPerFire ticks
// on every firing.
func NewScheduledCapture(session *Session, spec string, ticksPerFire int) (*ScheduledCapture, error) {
	if ticksPerFire <= 0 {
		return nil, fmt.Errorf("ticksPerFire must be positive, got %d", ticksPerFire)
	}
	c := cron.New()
	sc := &ScheduledCapture{cron: c, session: session, ticks: ticksPerFire}
	id, err := c.AddFunc(spec, sc.fire)
	if err != nil {
		return nil, fmt.Errorf("parsing schedule %q: %w", spec, err)
	}
	sc.entryID = id
	return sc, nil
}

func (sc *ScheduledCapture) fire() {
	sc.session.Play(sc.ticks)
}

// Start begins firing the schedule in its own goroutine (cron.Cron's
// own scheduler loop).
func (sc *ScheduledCapture) Start() { sc.cron.Start() }

// Stop halts the schedule; in-flight firings are allowed to finish.
func (sc *ScheduledCapture) Stop() { sc.cron.Stop() }

// NextRun reports the next scheduled firing time, for diagnostics.
func (sc *ScheduledCapture) NextRun() (scheduled bool, unixNano int64) {
	entry := sc.cron.Entry(sc.entryID)
	if entry.Next.IsZero() {
		return false, 0
	}
	return true, entry.Next.UnixNano()
}
