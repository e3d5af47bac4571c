package mutarget

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Runner is implemented by components bound to the run lifecycle.
// RunStart and RunStop are the only blocking boundaries of a run.
type Runner interface {
	RunStart(ctx context.Context, run *RunContext) error
	RunStop(ctx context.Context, run *RunContext) error
}

// Eventer is implemented by components bound to the event lifecycle.
type Eventer interface {
	EventStart(run *RunContext, evt *Event)
	EventStop(run *RunContext, evt *Event)
}

// Tracker is implemented by components observing track boundaries.
type Tracker interface {
	TrackStart(run *RunContext, trk *Track)
	TrackStop(run *RunContext, trk *Track)
}

// Stepper is implemented by components observing every step.
type Stepper interface {
	Step(run *RunContext, step *StepRecord)
}

type phase int

const (
	phaseIdle phase = iota
	phaseRun
	phaseEvent
	phaseTrack
)

func (p phase) String() string {
	switch p {
	case phaseIdle:
		return "idle"
	case phaseRun:
		return "run"
	case phaseEvent:
		return "event"
	case phaseTrack:
		return "track"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Dispatcher fans the engine callbacks out to the registered components,
// in registration order.
//
// The engine holds a single Dispatcher and drives it in strict order:
// RunStart, then per event EventStart, per track TrackStart, Step..., TrackStop,
// then EventStop, and finally RunStop.
type Dispatcher struct {
	runners  []Runner
	eventers []Eventer
	trackers []Tracker
	steppers []Stepper

	checks bool
	phase  phase
	log    *zap.Logger
}

func NewDispatcher(opts ...Option) *Dispatcher {
	o := newOptions(opts)
	return &Dispatcher{
		checks: o.checks,
		log:    o.log,
	}
}

// Register adds components to the dispatcher.
// A component must implement at least one of Runner, Eventer, Tracker or Stepper.
func (d *Dispatcher) Register(actions ...any) error {
	for _, a := range actions {
		n := 0
		if v, ok := a.(Runner); ok {
			d.runners = append(d.runners, v)
			n++
		}
		if v, ok := a.(Eventer); ok {
			d.eventers = append(d.eventers, v)
			n++
		}
		if v, ok := a.(Tracker); ok {
			d.trackers = append(d.trackers, v)
			n++
		}
		if v, ok := a.(Stepper); ok {
			d.steppers = append(d.steppers, v)
			n++
		}
		if n == 0 {
			return fmt.Errorf("%w: %T implements no callback interface", ErrConfig, a)
		}
	}
	return nil
}

func (d *Dispatcher) expect(op string, want phase) {
	if d.phase == want {
		return
	}
	err := fmt.Errorf("%w: %s during %s phase (want %s)", ErrOrder, op, d.phase, want)
	if d.checks {
		panic(err)
	}
	d.log.Debug("callback order violation", zap.Error(err))
}

func (d *Dispatcher) RunStart(ctx context.Context, run *RunContext) error {
	d.expect("RunStart", phaseIdle)
	for _, r := range d.runners {
		if err := r.RunStart(ctx, run); err != nil {
			return fmt.Errorf("mutarget: could not start run: %w", err)
		}
	}
	d.phase = phaseRun
	return nil
}

// RunStop stops every runner, even if some of them fail.
func (d *Dispatcher) RunStop(ctx context.Context, run *RunContext) error {
	d.expect("RunStop", phaseRun)
	var errs []error
	for _, r := range d.runners {
		if err := r.RunStop(ctx, run); err != nil {
			errs = append(errs, err)
		}
	}
	d.phase = phaseIdle
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("mutarget: could not stop run: %w", err)
	}
	return nil
}

func (d *Dispatcher) EventStart(run *RunContext, evt *Event) {
	d.expect("EventStart", phaseRun)
	d.phase = phaseEvent
	run.Event = evt
	run.Events++
	for _, e := range d.eventers {
		e.EventStart(run, evt)
	}
}

func (d *Dispatcher) EventStop(run *RunContext, evt *Event) {
	d.expect("EventStop", phaseEvent)
	for _, e := range d.eventers {
		e.EventStop(run, evt)
	}
	d.phase = phaseRun
}

func (d *Dispatcher) TrackStart(run *RunContext, trk *Track) {
	d.expect("TrackStart", phaseEvent)
	d.phase = phaseTrack
	for _, t := range d.trackers {
		t.TrackStart(run, trk)
	}
}

func (d *Dispatcher) TrackStop(run *RunContext, trk *Track) {
	d.expect("TrackStop", phaseTrack)
	for _, t := range d.trackers {
		t.TrackStop(run, trk)
	}
	d.phase = phaseEvent
}

func (d *Dispatcher) Step(run *RunContext, step *StepRecord) {
	d.expect("Step", phaseTrack)
	for _, s := range d.steppers {
		s.Step(run, step)
	}
}

var (
	_ Runner  = (*Dispatcher)(nil)
	_ Eventer = (*Dispatcher)(nil)
	_ Tracker = (*Dispatcher)(nil)
	_ Stepper = (*Dispatcher)(nil)
)
