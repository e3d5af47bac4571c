package transport

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/sbinet/mutarget"
	"gonum.org/v1/gonum/spatial/r3"
)

// Beam describes the primary particle gun.
// Energies are in MeV, lengths in mm.
type Beam struct {
	Species     mutarget.Species `yaml:"species"`
	Energy      float64          `yaml:"energy"`
	EnergySigma float64          `yaml:"energy_sigma"`
	Position    r3.Vec           `yaml:"position"`
	Spot        float64          `yaml:"spot"` // transverse gaussian width
	Direction   r3.Vec           `yaml:"direction"`
}

// DefaultBeam returns 1 GeV protons shot along +z from 15 cm upstream.
func DefaultBeam() Beam {
	return Beam{
		Species:   mutarget.Proton,
		Energy:    1000,
		Position:  r3.Vec{Z: -150},
		Direction: r3.Vec{Z: 1},
	}
}

func (b Beam) Validate() error {
	if _, err := LookupParticle(b.Species); err != nil {
		return err
	}
	switch {
	case !(b.Energy > 0):
		return fmt.Errorf("%w: invalid beam energy %v MeV", mutarget.ErrConfig, b.Energy)
	case b.EnergySigma < 0 || b.Spot < 0:
		return fmt.Errorf("%w: negative beam spread", mutarget.ErrConfig)
	case r3.Norm(b.Direction) == 0:
		return fmt.Errorf("%w: null beam direction", mutarget.ErrConfig)
	}
	return nil
}

// generate samples the primary track of an event.
func (b Beam) generate(rng *rand.Rand) *mutarget.Track {
	kin := b.Energy
	if b.EnergySigma > 0 {
		kin = math.Max(kin+rng.NormFloat64()*b.EnergySigma, 0)
	}
	pos := b.Position
	if b.Spot > 0 {
		pos.X += rng.NormFloat64() * b.Spot
		pos.Y += rng.NormFloat64() * b.Spot
	}
	return &mutarget.Track{
		ID:       1,
		Species:  b.Species,
		Kinetic:  kin,
		Vertex:   pos,
		Position: pos,
	}
}

// isotropic returns a random unit vector.
func isotropic(rng *rand.Rand) r3.Vec {
	cost := 2*rng.Float64() - 1
	sint := math.Sqrt(1 - cost*cost)
	phi := 2 * math.Pi * rng.Float64()
	return r3.Vec{X: sint * math.Cos(phi), Y: sint * math.Sin(phi), Z: cost}
}
