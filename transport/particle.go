package transport

import (
	"fmt"
	"math"

	"github.com/sbinet/mutarget"
	"go-hep.org/x/hep/fmom"
	"gonum.org/v1/gonum/spatial/r3"
)

// Particle holds the static properties of a species.
type Particle struct {
	Species mutarget.Species
	Mass    float64 // in MeV
	Charge  float64 // in units of e
}

const (
	massMuon   = 105.6583755 // MeV
	massProton = 938.27208816
)

var particles = map[mutarget.Species]Particle{
	mutarget.MuonMinus: {mutarget.MuonMinus, massMuon, -1},
	mutarget.MuonPlus:  {mutarget.MuonPlus, massMuon, +1},
	mutarget.Proton:    {mutarget.Proton, massProton, +1},
	mutarget.Electron:  {mutarget.Electron, massElectron, -1},
	mutarget.Positron:  {mutarget.Positron, massElectron, +1},
	mutarget.Gamma:     {mutarget.Gamma, 0, 0},
}

// LookupParticle returns the properties of the species.
func LookupParticle(sp mutarget.Species) (Particle, error) {
	p, ok := particles[sp]
	if !ok {
		return p, fmt.Errorf("%w: unknown particle species %q", mutarget.ErrConfig, sp)
	}
	return p, nil
}

// Momentum returns the momentum magnitude, in MeV/c, at kinetic energy kin.
func (p Particle) Momentum(kin float64) float64 {
	return math.Sqrt(kin * (kin + 2*p.Mass))
}

// P4 returns the 4-momentum of the particle with kinetic energy kin
// moving along the unit vector dir.
func (p Particle) P4(kin float64, dir r3.Vec) fmom.PxPyPzE {
	pp := p.Momentum(kin)
	return fmom.NewPxPyPzE(pp*dir.X, pp*dir.Y, pp*dir.Z, kin+p.Mass)
}

// kinematics extracts the kinetic energy and direction of a 4-momentum.
func (p Particle) kinematics(p4 fmom.PxPyPzE) (float64, r3.Vec) {
	kin := p4.E() - p.Mass
	if kin < 0 {
		kin = 0
	}
	dir := r3.Vec{X: p4.Px(), Y: p4.Py(), Z: p4.Pz()}
	if n := r3.Norm(dir); n > 0 {
		dir = r3.Scale(1/n, dir)
	}
	return kin, dir
}
