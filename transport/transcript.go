package transport

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/sbinet/mutarget"
	"gonum.org/v1/gonum/spatial/r3"
)

type OpKind uint8

const (
	OpTrackStart OpKind = iota
	OpStep
	OpTrackStop
)

// Op is a recorded callback.
type Op struct {
	Kind  OpKind
	Track mutarget.Track
	Step  mutarget.StepRecord
}

// Transcript is the ordered record of the callbacks of one simulated event.
//
// Events are simulated concurrently and their transcripts replayed one at a
// time on the dispatcher, so that the callbacks never run concurrently.
type Transcript struct {
	Event        int
	Ops          []Op
	Trajectories []Trajectory
}

func (tr *Transcript) trackStart(trk *mutarget.Track) {
	tr.Ops = append(tr.Ops, Op{Kind: OpTrackStart, Track: *trk})
}

func (tr *Transcript) trackStop(trk *mutarget.Track) {
	tr.Ops = append(tr.Ops, Op{Kind: OpTrackStop, Track: *trk})
}

func (tr *Transcript) step(rec mutarget.StepRecord) {
	tr.Ops = append(tr.Ops, Op{Kind: OpStep, Step: rec})
}

// Steps returns the number of recorded steps.
func (tr *Transcript) Steps() int {
	n := 0
	for i := range tr.Ops {
		if tr.Ops[i].Kind == OpStep {
			n++
		}
	}
	return n
}

// Replay drives the event callbacks of d.
func (tr *Transcript) Replay(run *mutarget.RunContext, d *mutarget.Dispatcher) {
	evt := &mutarget.Event{ID: tr.Event}
	d.EventStart(run, evt)
	for i := range tr.Ops {
		op := &tr.Ops[i]
		switch op.Kind {
		case OpTrackStart:
			d.TrackStart(run, &op.Track)
		case OpStep:
			d.Step(run, &op.Step)
		case OpTrackStop:
			d.TrackStop(run, &op.Track)
		default:
			panic(fmt.Errorf("transport: invalid op kind %d", op.Kind))
		}
	}
	d.EventStop(run, evt)
}

// Trajectory is the polyline of a track.
type Trajectory struct {
	TrackID  int              `json:"track_id"`
	ParentID int              `json:"parent_id"`
	Species  mutarget.Species `json:"species"`
	Creator  string           `json:"creator,omitempty"`
	Points   []r3.Vec         `json:"points_mm"`
}

// TrajectoryWriter stores the trajectories of kept events.
type TrajectoryWriter interface {
	WriteTrajectories(evt int, trajs []Trajectory) error
}

// JSONLines writes one JSON document per kept event.
type JSONLines struct {
	w   *bufio.Writer
	enc *json.Encoder
}

func NewJSONLines(w io.Writer) *JSONLines {
	bw := bufio.NewWriter(w)
	return &JSONLines{w: bw, enc: json.NewEncoder(bw)}
}

func (jl *JSONLines) WriteTrajectories(evt int, trajs []Trajectory) error {
	return jl.enc.Encode(struct {
		Event        int          `json:"event"`
		Trajectories []Trajectory `json:"trajectories"`
	}{evt, trajs})
}

func (jl *JSONLines) Flush() error { return jl.w.Flush() }
