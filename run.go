package mutarget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go-hep.org/x/hep/hbook"
	"go.uber.org/zap"
)

// RunContext is the per-run state passed to every callback.
// It owns the run histograms and the retention state of the in-flight
// event; its lifetime spans RunStart to RunStop.
type RunContext struct {
	ID     string
	Number int

	Geometry   *GeometryIndex
	Histograms *HistogramSet
	Retention  Retention
	Keeper     Keeper

	Event  *Event // in-flight event
	Events int    // number of started events

	Started time.Time
	Stopped time.Time
}

// NewRunContext creates the context of run number n.
// The keeper may be nil when no engine retains trajectories.
func NewRunContext(n int, geo *GeometryIndex, keeper Keeper) *RunContext {
	return &RunContext{
		ID:       uuid.NewString(),
		Number:   n,
		Geometry: geo,
		Keeper:   keeper,
	}
}

// Info returns the run description handed to sinks.
func (run *RunContext) Info() RunInfo {
	return RunInfo{
		ID:      run.ID,
		Number:  run.Number,
		Events:  run.Events,
		Started: run.Started,
		Stopped: run.Stopped,
	}
}

// RunInfo describes a run in persisted output.
type RunInfo struct {
	ID      string    `json:"id"`
	Number  int       `json:"number"`
	Events  int       `json:"events"`
	Started time.Time `json:"started"`
	Stopped time.Time `json:"stopped"`
}

// Sink is the output channel of the run histograms.
//
// Open is called once at run start, Write once at run end with every
// histogram in booking order, then Close.
type Sink interface {
	Open(ctx context.Context) error
	Write(ctx context.Context, run RunInfo, hs []*hbook.H1D) error
	Close() error
}

// RunController books the run histograms and persists them at run end.
type RunController struct {
	sink     Sink
	policy   EdgePolicy
	binnings []Binning
	log      *zap.Logger

	open bool
}

func NewRunController(sink Sink, opts ...Option) (*RunController, error) {
	if sink == nil {
		return nil, fmt.Errorf("%w: nil output sink", ErrConfig)
	}
	o := newOptions(opts)
	tracked := false
	for _, b := range o.binnings {
		if err := b.validate(); err != nil {
			return nil, err
		}
		tracked = tracked || b.Name == HistStopZTrack
	}
	if o.stopZ == StopZSeparate && !tracked {
		o.binnings = append(o.binnings, TrackStopZBinning())
	}
	return &RunController{
		sink:     sink,
		policy:   o.policy,
		binnings: o.binnings,
		log:      o.log,
	}, nil
}

// RunStart freezes the geometry, books the histograms and opens the sink.
// An unopenable sink is fatal: it is reported, never retried.
func (rc *RunController) RunStart(ctx context.Context, run *RunContext) error {
	if run.Geometry == nil {
		return fmt.Errorf("%w: run %d has no geometry index", ErrConfig, run.Number)
	}
	run.Geometry.Freeze()

	hs, err := NewHistogramSet(rc.policy, rc.binnings...)
	if err != nil {
		return err
	}

	err = rc.sink.Open(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOutput, err)
	}
	rc.open = true

	run.Histograms = hs
	run.Started = time.Now().UTC()

	rc.log.Info("run started",
		zap.String("run", run.ID),
		zap.Int("number", run.Number),
		zap.Int("targets", run.Geometry.Len()),
		zap.Strings("histograms", hs.Names()),
		zap.Stringer("edge_policy", hs.Policy()),
	)
	return nil
}

// RunStop writes every histogram and closes the sink.
// The in-memory histograms are left untouched.
func (rc *RunController) RunStop(ctx context.Context, run *RunContext) error {
	if !rc.open {
		return fmt.Errorf("%w: run %d was not started", ErrConfig, run.Number)
	}
	rc.open = false
	run.Stopped = time.Now().UTC()

	var (
		werr = rc.sink.Write(ctx, run.Info(), run.Histograms.All())
		cerr = rc.sink.Close()
	)
	if werr != nil {
		werr = fmt.Errorf("mutarget: could not write histograms of run %d: %w", run.Number, werr)
	}
	if cerr != nil {
		cerr = fmt.Errorf("mutarget: could not close output of run %d: %w", run.Number, cerr)
	}
	if err := errors.Join(werr, cerr); err != nil {
		return err
	}

	fields := []zap.Field{
		zap.String("run", run.ID),
		zap.Int("events", run.Events),
		zap.Duration("elapsed", run.Stopped.Sub(run.Started)),
	}
	for _, name := range run.Histograms.Names() {
		fields = append(fields, zap.Int64(name, run.Histograms.Entries(name)))
	}
	rc.log.Info("run ended, histograms written", fields...)
	return nil
}

var _ Runner = (*RunController)(nil)
