package mutarget

import (
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"
)

// TrackStatus is the engine-determined status of a track after a step.
type TrackStatus int

const (
	Alive TrackStatus = iota
	StopButAlive
	StopAndKill
)

func (st TrackStatus) String() string {
	switch st {
	case Alive:
		return "alive"
	case StopButAlive:
		return "stop-but-alive"
	case StopAndKill:
		return "stop-and-kill"
	}
	return fmt.Sprintf("TrackStatus(%d)", int(st))
}

// StepRecord is the transient record of one engine step.
//
// Positions are in mm, energies in MeV.
// Kinetic is the kinetic energy at the pre-step point, Position the
// post-step position and Volume the pre-step volume.
type StepRecord struct {
	Species    Species
	TrackID    int
	StepNumber int
	Status     TrackStatus
	Position   r3.Vec
	Kinetic    float64
	Volume     VolumeID

	VolumeLabel string
	Material    string
}

// IsFirst reports whether this is the creation step of the track.
func (rec *StepRecord) IsFirst() bool { return rec.StepNumber == 1 }

// IsStopped reports whether the track terminated during this step.
func (rec *StepRecord) IsStopped() bool { return rec.Status == StopAndKill }

// Radius returns the distance from the beam axis.
func (rec *StepRecord) Radius() float64 {
	return math.Hypot(rec.Position.X, rec.Position.Y)
}

// StepStats counts the decisions taken by a StepClassifier.
type StepStats struct {
	Accepted   int64 // steps of a species of interest
	Rejected   int64
	Created    int64 // creation fills
	Stopped    int64 // stop events
	Unresolved int64 // stops outside any registered target volume
	Special    int64 // stops inside the special region
}

// StepClassifier filters engine steps and scores the accepted ones.
type StepClassifier struct {
	species SpeciesSet
	log     *zap.Logger
	stats   StepStats
}

func NewStepClassifier(species SpeciesSet, opts ...Option) (*StepClassifier, error) {
	if species.Len() == 0 {
		return nil, fmt.Errorf("%w: empty species-of-interest set", ErrConfig)
	}
	o := newOptions(opts)
	return &StepClassifier{
		species: species,
		log:     o.log,
	}, nil
}

// Step classifies one step.
// Creation and stop are evaluated independently: a track created and
// killed within a single step fills both.
func (sc *StepClassifier) Step(run *RunContext, rec *StepRecord) {
	if !sc.species.Has(rec.Species) {
		sc.stats.Rejected++
		return
	}
	sc.stats.Accepted++

	run.Retention.Signal()

	hs := run.Histograms
	if rec.IsFirst() {
		hs.Fill(HistEnergy, rec.Kinetic)
		sc.stats.Created++
	}

	if !rec.IsStopped() {
		return
	}
	sc.stats.Stopped++

	var (
		r = rec.Radius()
		z = rec.Position.Z
	)
	hs.Fill(HistStopRadius, r)
	hs.Fill(HistStopZ, z)

	layer, ok := run.Geometry.Lookup(rec.Volume)
	if ok {
		hs.Fill(HistStopTarget, float64(layer))
	} else {
		sc.stats.Unresolved++
	}

	sc.log.Debug("muon stopped",
		zap.String("species", string(rec.Species)),
		zap.Int("track", rec.TrackID),
		zap.Float64("z_mm", z),
		zap.Float64("r_mm", r),
		zap.String("volume", rec.VolumeLabel),
		zap.String("material", rec.Material),
		zap.Int("layer", layer),
	)

	if run.Geometry.IsSpecial(rec.Volume) {
		hs.Fill(HistSpecialZ, z)
		hs.Fill(HistSpecialR, r)
		sc.stats.Special++
		sc.log.Debug("muon stopped in special region",
			zap.String("species", string(rec.Species)),
			zap.String("region", run.Geometry.SpecialLabel()),
			zap.Float64("z_mm", z),
			zap.Float64("r_mm", r),
		)
	}
}

// Stats returns the decision counters.
func (sc *StepClassifier) Stats() StepStats { return sc.stats }

var _ Stepper = (*StepClassifier)(nil)
