package transport

import (
	"fmt"
	"math"
	"sort"

	"github.com/sbinet/mutarget"
)

type element struct {
	name string
	z    float64 // atomic number
	a    float64 // atomic mass in g/mol
}

type component struct {
	elem string
	frac float64 // mass fraction
}

var elements = map[string]element{
	"H":  {name: "Hydrogen", z: 1, a: 1.00794},
	"H2": {name: "Deuterium", z: 1, a: 2.01410},
	"H3": {name: "Tritium", z: 1, a: 3.01605},
	"C":  {name: "Carbon", z: 6, a: 12.0107},
	"N":  {name: "Nitrogen", z: 7, a: 14.0067},
	"O":  {name: "Oxygen", z: 8, a: 15.9994},
	"Ar": {name: "Argon", z: 18, a: 39.948},
	"W":  {name: "Tungsten", z: 74, a: 183.84},
}

// Material describes a homogeneous medium.
type Material struct {
	Name    string
	Density float64 // in g/cm^3
	I       float64 // mean excitation energy in eV
	RadLen  float64 // radiation length in g/cm^2

	comp []component
	zoa  float64 // <Z/A> in mol/g
}

// ZoverA returns the mass-weighted <Z/A> of the material.
func (mat *Material) ZoverA() float64 { return mat.zoa }

func newMaterial(name string, density, I, radlen float64, comp ...component) *Material {
	mat := &Material{
		Name:    name,
		Density: density,
		I:       I,
		RadLen:  radlen,
		comp:    comp,
	}
	sum := 0.0
	for _, c := range comp {
		elt, ok := elements[c.elem]
		if !ok {
			panic(fmt.Errorf("transport: unknown element %q in material %q", c.elem, name))
		}
		mat.zoa += c.frac * elt.z / elt.a
		sum += c.frac
	}
	if math.Abs(sum-1) > 1e-3 {
		panic(fmt.Errorf("transport: mass fractions of %q sum to %v", name, sum))
	}
	return mat
}

// NIST-like definitions of the materials used by the detector setups.
var materials = map[string]*Material{
	"G4_AIR": newMaterial("G4_AIR", 1.20479e-3, 85.7, 36.62,
		component{"C", 0.000124},
		component{"N", 0.755268},
		component{"O", 0.231781},
		component{"Ar", 0.012827},
	),
	"G4_C":        newMaterial("G4_C", 2.0, 81.0, 42.70, component{"C", 1}),
	"G4_GRAPHITE": newMaterial("G4_GRAPHITE", 2.21, 78.0, 42.70, component{"C", 1}),
	"G4_W":        newMaterial("G4_W", 19.3, 727.0, 6.76, component{"W", 1}),
	// equimolar deuterium-tritium gas.
	"DTGas": newMaterial("DTGas", 4.5e-4, 19.2, 63.04,
		component{"H2", 0.4003},
		component{"H3", 0.5997},
	),
}

// LookupMaterial returns the named material.
func LookupMaterial(name string) (*Material, error) {
	mat, ok := materials[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown material %q", mutarget.ErrConfig, name)
	}
	return mat, nil
}

// Materials returns the names of the known materials.
func Materials() []string {
	names := make([]string, 0, len(materials))
	for name := range materials {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const (
	massElectron = 0.51099895 // MeV
	kBethe       = 0.307075   // MeV cm^2/mol
)

// StoppingPower returns the mean mass stopping power, in MeV cm^2/g, of a
// particle of the given mass (MeV) and charge with kinetic energy kin (MeV).
//
// The Bethe formula is used without density or shell corrections. Below
// the validity range the logarithmic term is floored so that the
// stopping power stays positive.
func (mat *Material) StoppingPower(mass, charge, kin float64) float64 {
	if kin <= 0 || charge == 0 {
		return 0
	}
	var (
		gamma = 1 + kin/mass
		beta2 = 1 - 1/(gamma*gamma)
		bg2   = beta2 * gamma * gamma
		ratio = massElectron / mass
		tmax  = 2 * massElectron * bg2 / (1 + 2*gamma*ratio + ratio*ratio)
		ieV   = mat.I * 1e-6 // MeV
		arg   = 2 * massElectron * bg2 * tmax / (ieV * ieV)
	)
	bracket := 0.5*math.Log(arg) - beta2
	if bracket < 0.5 {
		bracket = 0.5
	}
	return kBethe * charge * charge * mat.zoa / beta2 * bracket
}

// dEdx returns the linear stopping power in MeV/mm.
func (mat *Material) dEdx(mass, charge, kin float64) float64 {
	return mat.StoppingPower(mass, charge, kin) * mat.Density * 0.1
}

// highland returns the width, in rad, of the projected multiple scattering
// angle after a path of length mm.
func (mat *Material) highland(mass, charge, kin, length float64) float64 {
	if charge == 0 || length <= 0 {
		return 0
	}
	x := length * 0.1 * mat.Density / mat.RadLen
	if x <= 0 {
		return 0
	}
	var (
		e    = kin + mass
		p    = math.Sqrt(kin * (kin + 2*mass))
		beta = p / e
	)
	theta := 13.6 / (beta * p) * math.Abs(charge) * math.Sqrt(x)
	if corr := 1 + 0.038*math.Log(x*charge*charge/(beta*beta)); corr > 0 {
		theta *= corr
	}
	return theta
}
