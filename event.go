package mutarget

import (
	"fmt"

	"go.uber.org/zap"
)

// Event identifies the event being processed.
type Event struct {
	ID int
}

// Keeper is implemented by the transport engine to retain the trajectory
// data of the current event.
type Keeper interface {
	KeepTheCurrentEvent()
}

// RetentionState is the per-event retention decision.
type RetentionState int

const (
	Undecided RetentionState = iota
	Keep
)

func (st RetentionState) String() string {
	switch st {
	case Undecided:
		return "undecided"
	case Keep:
		return "keep"
	}
	return fmt.Sprintf("RetentionState(%d)", int(st))
}

// Retention holds the retention state of the in-flight event.
// Once in Keep, it stays in Keep until the next Reset.
type Retention struct {
	state   RetentionState
	signals int
}

// Reset puts the state back to Undecided.
func (r *Retention) Reset() {
	r.state = Undecided
	r.signals = 0
}

// Signal marks the event as holding a species of interest.
// It may be called any number of times per event.
func (r *Retention) Signal() {
	r.state = Keep
	r.signals++
}

func (r *Retention) State() RetentionState { return r.state }

func (r *Retention) Keep() bool { return r.state == Keep }

// Signals returns the number of Signal calls since the last Reset.
func (r *Retention) Signals() int { return r.signals }

// RetentionFilter applies the per-event retention decision.
type RetentionFilter struct {
	log  *zap.Logger
	seen int64
	kept int64
}

func NewRetentionFilter(opts ...Option) *RetentionFilter {
	o := newOptions(opts)
	return &RetentionFilter{log: o.log}
}

func (f *RetentionFilter) EventStart(run *RunContext, evt *Event) {
	run.Retention.Reset()
}

// EventStop instructs the engine to keep the event if it was flagged.
// Unflagged events get no instruction: the engine discards them by default.
func (f *RetentionFilter) EventStop(run *RunContext, evt *Event) {
	f.seen++
	if !run.Retention.Keep() {
		return
	}
	f.kept++
	if run.Keeper == nil {
		f.log.Warn("event flagged for retention but no keeper", zap.Int("event", evt.ID))
		return
	}
	run.Keeper.KeepTheCurrentEvent()
}

// Seen returns the number of processed events.
func (f *RetentionFilter) Seen() int64 { return f.seen }

// Kept returns the number of events flagged for retention.
func (f *RetentionFilter) Kept() int64 { return f.kept }

var _ Eventer = (*RetentionFilter)(nil)
