// Package detector builds the target setups used by the simulation.
package detector

import (
	"fmt"
	"sort"

	"github.com/sbinet/mutarget"
	"github.com/sbinet/mutarget/transport"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"
)

// Setup is a built detector: its transport geometry and the index of its
// target volumes.
type Setup struct {
	Name     string
	Geometry *transport.Boxes
	Index    *mutarget.GeometryIndex
}

// Target describes a target layer of a setup.
type Target struct {
	Layer    int
	Name     string
	Label    string
	Z        float64 // in mm
	Material string
	Special  bool
}

// Targets returns the target layers in index order.
func (s *Setup) Targets() []Target {
	byID := make(map[mutarget.VolumeID]*transport.Volume, s.Geometry.Len())
	for i := 0; i < s.Geometry.Len(); i++ {
		v := s.Geometry.Volume(i)
		byID[v.ID] = v
	}
	out := make([]Target, 0, s.Index.Len())
	for _, tv := range s.Index.Volumes() {
		v := byID[tv.ID]
		out = append(out, Target{
			Layer:    tv.Index,
			Name:     v.Name,
			Label:    v.Label,
			Z:        v.Center.Z,
			Material: v.Material.Name,
			Special:  s.Index.IsSpecial(tv.ID),
		})
	}
	return out
}

type builder func(b *assembly) error

var builders = map[string]builder{
	"carbonStack":       carbonStack,
	"alternatingLayers": alternatingLayers,
	"muonTarget":        muonTarget,
	"dtTarget":          dtTarget,
}

// Default is the setup used when none is configured.
const Default = "muonTarget"

// Variants returns the names of the known setups.
func Variants() []string {
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build constructs the named setup and logs its target layer summary.
func Build(name string, log *zap.Logger) (*Setup, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if name == "" {
		name = Default
	}
	build, ok := builders[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown detector type %q", mutarget.ErrConfig, name)
	}

	b := &assembly{index: mutarget.NewGeometryIndex(), next: 1}
	if err := build(b); err != nil {
		return nil, fmt.Errorf("detector: could not build %q: %w", name, err)
	}
	geo, err := transport.NewBoxes(b.world, b.vols...)
	if err != nil {
		return nil, fmt.Errorf("detector: could not build %q: %w", name, err)
	}

	setup := &Setup{Name: name, Geometry: geo, Index: b.index}
	for _, t := range setup.Targets() {
		log.Info("target layer",
			zap.String("setup", name),
			zap.Int("target", t.Layer),
			zap.String("name", t.Name),
			zap.Float64("z_mm", t.Z),
			zap.String("material", t.Material),
			zap.Bool("special", t.Special),
		)
	}
	return setup, nil
}

// assembly collects the volumes of a setup under construction.
type assembly struct {
	world transport.Volume
	vols  []transport.Volume
	index *mutarget.GeometryIndex
	next  mutarget.VolumeID
}

func (b *assembly) id() mutarget.VolumeID {
	id := b.next
	b.next++
	return id
}

func (b *assembly) setWorld(size float64, material string) error {
	mat, err := transport.LookupMaterial(material)
	if err != nil {
		return err
	}
	half := 0.5 * size
	b.world = transport.Volume{
		ID:       b.id(),
		Name:     "World",
		Label:    "WorldLV",
		Material: mat,
		Half:     r3.Vec{X: half, Y: half, Z: half},
	}
	return nil
}

type placement struct {
	name, label string
	material    string
	z           float64 // center
	half        r3.Vec
	target      bool
	production  bool
}

func (b *assembly) place(p placement) (mutarget.VolumeID, error) {
	mat, err := transport.LookupMaterial(p.material)
	if err != nil {
		return mutarget.NoVolume, err
	}
	v := transport.Volume{
		ID:         b.id(),
		Name:       p.name,
		Label:      p.label,
		Material:   mat,
		Center:     r3.Vec{Z: p.z},
		Half:       p.half,
		Production: p.production,
	}
	b.vols = append(b.vols, v)
	if p.target {
		if _, err := b.index.Register(v.ID, p.label); err != nil {
			return mutarget.NoVolume, err
		}
	}
	return v.ID, nil
}

// carbonStack is a stack of five carbon plates in a 1 m world.
func carbonStack(b *assembly) error {
	const (
		world     = 1000.0
		nplates   = 5
		thickness = 2.0
		gap       = 10.0
	)
	if err := b.setWorld(world, "G4_AIR"); err != nil {
		return err
	}
	total := nplates*thickness + (nplates-1)*gap
	z0 := -total/2 + thickness/2
	for i := 0; i < nplates; i++ {
		name := fmt.Sprintf("Plate_%d", i)
		_, err := b.place(placement{
			name:       name,
			label:      name,
			material:   "G4_C",
			z:          z0 + float64(i)*(thickness+gap),
			half:       r3.Vec{X: world / 4, Y: world / 4, Z: thickness / 2},
			target:     true,
			production: true,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// alternatingLayers alternates tungsten absorbers and graphite moderators.
// Both layer kinds are targets.
func alternatingLayers(b *assembly) error {
	const (
		world    = 300.0
		nlayers  = 5
		tungsten = 1.0
		graphite = 2.0
		half     = 50.0
	)
	if err := b.setWorld(world, "G4_AIR"); err != nil {
		return err
	}
	z := -nlayers * (tungsten + graphite) / 2
	for i := 0; i < nlayers; i++ {
		_, err := b.place(placement{
			name: "Tungsten", label: "TungstenLV", material: "G4_W",
			z:      z + tungsten/2,
			half:   r3.Vec{X: half, Y: half, Z: tungsten / 2},
			target: true,
		})
		if err != nil {
			return err
		}
		z += tungsten

		_, err = b.place(placement{
			name: "Graphite", label: "GraphiteLV", material: "G4_GRAPHITE",
			z:          z + graphite/2,
			half:       r3.Vec{X: half, Y: half, Z: graphite / 2},
			target:     true,
			production: true,
		})
		if err != nil {
			return err
		}
		z += graphite
	}
	return nil
}

const (
	targetXY     = 50.0
	targetZ      = -100.0
	targetThick  = 1.0
	converterGap = 1.0
	converters   = 5
	convThick    = 3.0
)

// muonTarget is a thin graphite proton target followed by five tungsten
// converters. The converters are the target layers.
func muonTarget(b *assembly) error {
	if err := b.setWorld(500, "G4_AIR"); err != nil {
		return err
	}
	_, err := b.place(placement{
		name: "ProtonTarget", label: "ProtonTargetLV", material: "G4_GRAPHITE",
		z:          targetZ,
		half:       r3.Vec{X: targetXY / 2, Y: targetXY / 2, Z: targetThick / 2},
		production: true,
	})
	if err != nil {
		return err
	}

	z0 := targetZ + targetThick + converterGap
	for i := 0; i < converters; i++ {
		name := fmt.Sprintf("Converter_%d", i)
		_, err := b.place(placement{
			name: name, label: name + "_LV", material: "G4_W",
			z:      z0 + float64(i)*(convThick+converterGap),
			half:   r3.Vec{X: targetXY / 2, Y: targetXY / 2, Z: convThick / 2},
			target: true,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// dtTarget is muonTarget followed by a deuterium-tritium gas cell, the
// special region.
func dtTarget(b *assembly) error {
	if err := muonTarget(b); err != nil {
		return err
	}
	const (
		half = 10.0
		gap  = 2.0
	)
	last := targetZ + targetThick + converterGap + float64(converters-1)*(convThick+converterGap)
	id, err := b.place(placement{
		name: "DTGas", label: "DTGasLogical", material: "DTGas",
		z:      last + convThick/2 + gap + half,
		half:   r3.Vec{X: targetXY / 4, Y: targetXY / 4, Z: half},
		target: true,
	})
	if err != nil {
		return err
	}
	return b.index.SetSpecial(id, "DTGas")
}
