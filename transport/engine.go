// Package transport is a small particle transport engine driving the
// mutarget callbacks.
//
// Particles are propagated in straight steps through a box geometry with
// continuous energy loss, multiple scattering and a uniform magnetic field.
// Protons may produce muons in production volumes; stopped muons decay
// into an electron or a positron.
package transport

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/sbinet/mutarget"
	"go-hep.org/x/hep/fmom"
	"gonum.org/v1/gonum/spatial/r3"
)

// Physics holds the transport parameters.
type Physics struct {
	Field    r3.Vec  `yaml:"field"`     // uniform magnetic field, in tesla
	MaxStep  float64 `yaml:"max_step"`  // in mm
	MinStep  float64 `yaml:"min_step"`  // in mm
	MaxSteps int     `yaml:"max_steps"` // per track
	Cut      float64 `yaml:"cut"`       // tracking cut, in MeV

	MuonYield  float64    `yaml:"muon_yield"`  // muons per mm of proton path in production volumes
	MuonEnergy [2]float64 `yaml:"muon_energy"` // kinetic energy range of produced muons, in MeV
	Decay      bool       `yaml:"decay"`       // decay of stopped muons
}

func DefaultPhysics() Physics {
	return Physics{
		Field:      r3.Vec{Z: 1},
		MaxStep:    5,
		MinStep:    1e-3,
		MaxSteps:   100000,
		Cut:        1e-2,
		MuonYield:  0.1,
		MuonEnergy: [2]float64{1, 60},
		Decay:      true,
	}
}

func (phys Physics) Validate() error {
	switch {
	case !(phys.MaxStep > 0) || !(phys.MinStep > 0) || phys.MinStep > phys.MaxStep:
		return fmt.Errorf("%w: invalid step limits [%v, %v] mm", mutarget.ErrConfig, phys.MinStep, phys.MaxStep)
	case phys.MaxSteps <= 0:
		return fmt.Errorf("%w: invalid maximum number of steps (%d)", mutarget.ErrConfig, phys.MaxSteps)
	case phys.Cut < 0:
		return fmt.Errorf("%w: negative tracking cut", mutarget.ErrConfig)
	case phys.MuonYield < 0:
		return fmt.Errorf("%w: negative muon yield", mutarget.ErrConfig)
	case phys.MuonEnergy[0] < 0 || phys.MuonEnergy[1] < phys.MuonEnergy[0]:
		return fmt.Errorf("%w: invalid muon energy range %v MeV", mutarget.ErrConfig, phys.MuonEnergy)
	}
	return nil
}

// Config configures an Engine.
type Config struct {
	Seed    int64   `yaml:"seed"`
	Beam    Beam    `yaml:"beam"`
	Physics Physics `yaml:"physics"`
}

func DefaultConfig() Config {
	return Config{
		Seed:    1234,
		Beam:    DefaultBeam(),
		Physics: DefaultPhysics(),
	}
}

const (
	kLarmor   = 0.299792458 // in MeV/c T^-1 mm^-1
	push      = 1e-6        // in mm, to step over boundaries
	lowEnergy = 1.0         // in MeV, below which a track ranges out
	creator   = "Decay"
)

// Engine simulates events. Simulate is safe for concurrent use.
type Engine struct {
	geo  Geometry
	beam Beam
	phys Physics
	seed int64
	dirB r3.Vec
	magB float64
}

func NewEngine(geo Geometry, cfg Config) (*Engine, error) {
	if geo == nil {
		return nil, fmt.Errorf("%w: nil geometry", mutarget.ErrConfig)
	}
	if err := cfg.Beam.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Physics.Validate(); err != nil {
		return nil, err
	}
	eng := &Engine{
		geo:  geo,
		beam: cfg.Beam,
		phys: cfg.Physics,
		seed: cfg.Seed,
		magB: r3.Norm(cfg.Physics.Field),
	}
	eng.beam.Direction = r3.Unit(cfg.Beam.Direction)
	if eng.magB > 0 {
		eng.dirB = r3.Scale(1/eng.magB, cfg.Physics.Field)
	}
	return eng, nil
}

type particle struct {
	trk  *mutarget.Track
	part Particle
	dir  r3.Vec
}

// event holds the per-event transport state.
type event struct {
	rng    *rand.Rand
	tr     *Transcript
	nextID int
}

func (evt *event) spawn(parent *mutarget.Track, part Particle, pos r3.Vec, p4 fmom.PxPyPzE) *particle {
	kin, dir := part.kinematics(p4)
	trk := &mutarget.Track{
		ID:       evt.nextID,
		ParentID: parent.ID,
		Species:  part.Species,
		Kinetic:  kin,
		Vertex:   pos,
		Position: pos,
		Creator:  creator,
	}
	evt.nextID++
	return &particle{trk: trk, part: part, dir: dir}
}

// Simulate transports one event. The random stream only depends on the
// engine seed and the event number.
func (eng *Engine) Simulate(ievt int) (*Transcript, error) {
	evt := &event{
		rng:    rand.New(rand.NewSource(eng.seed + int64(ievt))),
		tr:     &Transcript{Event: ievt},
		nextID: 2,
	}

	part, err := LookupParticle(eng.beam.Species)
	if err != nil {
		return nil, err
	}
	stack := []*particle{{
		trk:  eng.beam.generate(evt.rng),
		part: part,
		dir:  eng.beam.Direction,
	}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		secs := eng.track(evt, p)
		for i := len(secs) - 1; i >= 0; i-- {
			stack = append(stack, secs[i])
		}
	}
	return evt.tr, nil
}

// track propagates a single particle until it stops or leaves the world,
// and returns its secondaries.
func (eng *Engine) track(evt *event, p *particle) []*particle {
	var (
		trk  = p.trk
		part = p.part
		rng  = evt.rng
		pos  = trk.Vertex
		dir  = p.dir
		kin  = trk.Kinetic
		secs []*particle
	)

	evt.tr.trackStart(trk)
	traj := Trajectory{
		TrackID:  trk.ID,
		ParentID: trk.ParentID,
		Species:  trk.Species,
		Creator:  trk.Creator,
		Points:   []r3.Vec{pos},
	}

	idx := eng.geo.Locate(pos)
	for step := 1; idx >= 0; step++ {
		var (
			vol    = eng.geo.Volume(idx)
			mat    = vol.Material
			length = eng.geo.DistanceToBoundary(idx, pos, dir) + push
			dedx   = mat.dEdx(part.Mass, part.Charge, kin)
			ranged = false
		)
		length = math.Min(length, eng.phys.MaxStep)
		if dedx > 0 {
			switch {
			case kin < lowEnergy:
				if r := 0.5 * kin / dedx; r <= length {
					length = math.Max(r, eng.phys.MinStep)
					ranged = true
				}
			default:
				length = math.Min(length, math.Max(0.2*kin/dedx, eng.phys.MinStep))
			}
		}

		pre := kin
		if part.Species == mutarget.Proton && vol.Production && eng.phys.MuonYield > 0 {
			if rng.Float64() < -math.Expm1(-eng.phys.MuonYield*length) {
				vtx := r3.Add(pos, r3.Scale(length*rng.Float64(), dir))
				secs = append(secs, eng.produceMuon(evt, trk, vtx))
			}
		}

		pos = r3.Add(pos, r3.Scale(length, dir))
		kin -= dedx * length
		if ranged || kin <= eng.phys.Cut {
			kin = 0
		}
		if kin > 0 {
			dir = eng.deflect(rng, part, mat, kin, length, dir)
		}

		status := mutarget.Alive
		idx = eng.geo.Locate(pos)
		switch {
		case kin == 0, idx < 0, step >= eng.phys.MaxSteps:
			status = mutarget.StopAndKill
		}

		evt.tr.step(mutarget.StepRecord{
			Species:     trk.Species,
			TrackID:     trk.ID,
			StepNumber:  step,
			Status:      status,
			Position:    pos,
			Kinetic:     pre,
			Volume:      vol.ID,
			VolumeLabel: vol.Label,
			Material:    mat.Name,
		})
		traj.Points = append(traj.Points, pos)

		if status == mutarget.StopAndKill {
			if kin == 0 && eng.phys.Decay && part.Mass == massMuon {
				secs = append(secs, eng.decay(evt, trk, part, pos))
			}
			break
		}
	}

	trk.Position = pos
	trk.Kinetic = kin
	evt.tr.trackStop(trk)
	evt.tr.Trajectories = append(evt.tr.Trajectories, traj)
	return secs
}

// deflect applies multiple scattering and the magnetic field over a step.
func (eng *Engine) deflect(rng *rand.Rand, part Particle, mat *Material, kin, length float64, dir r3.Vec) r3.Vec {
	if part.Charge == 0 {
		return dir
	}
	if theta0 := mat.highland(part.Mass, part.Charge, kin, length); theta0 > 0 {
		u, v := orthonormal(dir)
		tx := math.Tan(rng.NormFloat64() * theta0)
		ty := math.Tan(rng.NormFloat64() * theta0)
		dir = r3.Unit(r3.Add(dir, r3.Add(r3.Scale(tx, u), r3.Scale(ty, v))))
	}
	if eng.magB > 0 {
		alpha := -part.Charge * kLarmor * eng.magB * length / part.Momentum(kin)
		dir = r3.Unit(r3.Rotate(dir, alpha, eng.dirB))
	}
	return dir
}

// orthonormal returns two unit vectors orthogonal to dir and to each other.
func orthonormal(dir r3.Vec) (r3.Vec, r3.Vec) {
	ref := r3.Vec{Z: 1}
	if math.Abs(dir.Z) > 0.9 {
		ref = r3.Vec{X: 1}
	}
	u := r3.Unit(r3.Cross(dir, ref))
	v := r3.Cross(dir, u)
	return u, v
}

// produceMuon creates a muon of either charge, emitted isotropically.
func (eng *Engine) produceMuon(evt *event, parent *mutarget.Track, vtx r3.Vec) *particle {
	sp := mutarget.MuonPlus
	if evt.rng.Float64() < 0.5 {
		sp = mutarget.MuonMinus
	}
	part := particles[sp]
	lo, hi := eng.phys.MuonEnergy[0], eng.phys.MuonEnergy[1]
	kin := lo + (hi-lo)*evt.rng.Float64()
	return evt.spawn(parent, part, vtx, part.P4(kin, isotropic(evt.rng)))
}

// michelEdge is the maximum total energy of the decay electron.
const michelEdge = (massMuon*massMuon + massElectron*massElectron) / (2 * massMuon)

// decay emits the charged lepton of a muon decaying at rest.
func (eng *Engine) decay(evt *event, mu *mutarget.Track, part Particle, pos r3.Vec) *particle {
	sp := mutarget.Positron
	if part.Charge < 0 {
		sp = mutarget.Electron
	}
	e := particles[sp]

	// Michel spectrum, dN/dx ~ x^2 (3 - 2x).
	var x float64
	for {
		x = evt.rng.Float64()
		if evt.rng.Float64() < x*x*(3-2*x) {
			break
		}
	}
	etot := math.Max(x*michelEdge, e.Mass)
	pp := math.Sqrt(etot*etot - e.Mass*e.Mass)
	d := isotropic(evt.rng)
	return evt.spawn(mu, e, pos, fmom.NewPxPyPzE(pp*d.X, pp*d.Y, pp*d.Z, etot))
}
