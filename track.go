package mutarget

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"
)

// Track describes a track at its start or stop boundary.
// Positions are in mm, energies in MeV.
type Track struct {
	ID       int
	ParentID int
	Species  Species
	Kinetic  float64
	Vertex   r3.Vec // creation position
	Position r3.Vec // current position
	Creator  string // creator process, empty for primaries
}

// StopZMode selects how TrackRecorder fills stop-Z at track end.
//
// The step path already fills HistStopZ on every stop, so the tracking
// path duplicates it. The duplication is kept on purpose as a
// cross-check of the two recording paths.
type StopZMode int

const (
	// StopZShared fills HistStopZ again: every stop is counted twice.
	StopZShared StopZMode = iota
	// StopZSeparate fills the dedicated HistStopZTrack histogram.
	StopZSeparate
	// StopZOff disables the tracking-path fill.
	StopZOff
)

func (m StopZMode) String() string {
	switch m {
	case StopZShared:
		return "shared"
	case StopZSeparate:
		return "separate"
	case StopZOff:
		return "off"
	}
	return fmt.Sprintf("StopZMode(%d)", int(m))
}

func ParseStopZMode(s string) (StopZMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "shared":
		return StopZShared, nil
	case "separate":
		return StopZSeparate, nil
	case "off", "none":
		return StopZOff, nil
	}
	return StopZShared, fmt.Errorf("%w: unknown stop-z mode %q", ErrConfig, s)
}

type TrackRecordKind int

const (
	TrackCreated TrackRecordKind = iota
	TrackStopped
)

func (k TrackRecordKind) String() string {
	switch k {
	case TrackCreated:
		return "created"
	case TrackStopped:
		return "stopped"
	}
	return fmt.Sprintf("TrackRecordKind(%d)", int(k))
}

func (k TrackRecordKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// TrackRecord is a structured diagnostic record emitted at track boundaries.
type TrackRecord struct {
	Kind     TrackRecordKind `json:"kind"`
	Species  Species         `json:"species"`
	TrackID  int             `json:"track_id"`
	Kinetic  float64         `json:"kinetic_mev,omitempty"`
	Position r3.Vec          `json:"position_mm"`
	Creator  string          `json:"creator,omitempty"`
}

// TrackRecordWriter receives the diagnostic records.
type TrackRecordWriter interface {
	WriteTrackRecord(rec TrackRecord)
}

// LogTrackWriter writes the records to a logger.
type LogTrackWriter struct {
	Log *zap.Logger
}

func (w LogTrackWriter) WriteTrackRecord(rec TrackRecord) {
	if w.Log == nil {
		return
	}
	fields := []zap.Field{
		zap.String("species", string(rec.Species)),
		zap.Int("track", rec.TrackID),
		zap.Float64("x_mm", rec.Position.X),
		zap.Float64("y_mm", rec.Position.Y),
		zap.Float64("z_mm", rec.Position.Z),
	}
	switch rec.Kind {
	case TrackCreated:
		fields = append(fields,
			zap.Float64("energy_mev", rec.Kinetic),
			zap.String("creator", rec.Creator),
		)
		w.Log.Info("muon created", fields...)
	default:
		w.Log.Info("muon track stopped", fields...)
	}
}

// TrackRecords collects records in memory.
type TrackRecords struct {
	Records []TrackRecord
}

func (w *TrackRecords) WriteTrackRecord(rec TrackRecord) {
	w.Records = append(w.Records, rec)
}

// TrackRecorder logs creation and termination of tracks of interest and
// fills stop-Z through a second, independent path.
type TrackRecorder struct {
	species SpeciesSet
	mode    StopZMode
	w       TrackRecordWriter
}

// NewTrackRecorder creates a recorder. A nil writer logs to the
// configured logger.
func NewTrackRecorder(species SpeciesSet, w TrackRecordWriter, opts ...Option) (*TrackRecorder, error) {
	if species.Len() == 0 {
		return nil, fmt.Errorf("%w: empty species-of-interest set", ErrConfig)
	}
	o := newOptions(opts)
	if w == nil {
		w = LogTrackWriter{Log: o.log}
	}
	return &TrackRecorder{
		species: species,
		mode:    o.stopZ,
		w:       w,
	}, nil
}

func (tr *TrackRecorder) Mode() StopZMode { return tr.mode }

func (tr *TrackRecorder) TrackStart(run *RunContext, trk *Track) {
	if !tr.species.Has(trk.Species) {
		return
	}
	creator := trk.Creator
	if creator == "" {
		creator = "Primary"
	}
	tr.w.WriteTrackRecord(TrackRecord{
		Kind:     TrackCreated,
		Species:  trk.Species,
		TrackID:  trk.ID,
		Kinetic:  trk.Kinetic,
		Position: trk.Vertex,
		Creator:  creator,
	})
}

func (tr *TrackRecorder) TrackStop(run *RunContext, trk *Track) {
	if !tr.species.Has(trk.Species) {
		return
	}
	tr.w.WriteTrackRecord(TrackRecord{
		Kind:     TrackStopped,
		Species:  trk.Species,
		TrackID:  trk.ID,
		Position: trk.Position,
	})

	switch tr.mode {
	case StopZShared:
		run.Histograms.Fill(HistStopZ, trk.Position.Z)
	case StopZSeparate:
		run.Histograms.Fill(HistStopZTrack, trk.Position.Z)
	}
}

var _ Tracker = (*TrackRecorder)(nil)
