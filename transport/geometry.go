package transport

import (
	"errors"
	"fmt"
	"math"

	"github.com/sbinet/mutarget"
	"gonum.org/v1/gonum/spatial/r3"
)

var ErrGeometry = fmt.Errorf("%w: invalid geometry", mutarget.ErrConfig)

// Volume is an axis-aligned box filled with a single material.
// Lengths are in mm.
type Volume struct {
	ID       mutarget.VolumeID
	Name     string // placement name
	Label    string // logical volume name
	Material *Material
	Center   r3.Vec
	Half     r3.Vec // half-lengths

	// Production enables muon production by protons in this volume.
	Production bool
}

func (v *Volume) Lo() r3.Vec { return r3.Sub(v.Center, v.Half) }
func (v *Volume) Hi() r3.Vec { return r3.Add(v.Center, v.Half) }

// Contains reports whether pos is inside the volume, boundaries included on
// the low side only.
func (v *Volume) Contains(pos r3.Vec) bool {
	lo, hi := v.Lo(), v.Hi()
	return lo.X <= pos.X && pos.X < hi.X &&
		lo.Y <= pos.Y && pos.Y < hi.Y &&
		lo.Z <= pos.Z && pos.Z < hi.Z
}

// exit returns the distance along dir from an inside point to the box surface.
func (v *Volume) exit(pos, dir r3.Vec) float64 {
	lo, hi := v.Lo(), v.Hi()
	dist := math.Inf(+1)
	for _, c := range [3][4]float64{
		{pos.X, dir.X, lo.X, hi.X},
		{pos.Y, dir.Y, lo.Y, hi.Y},
		{pos.Z, dir.Z, lo.Z, hi.Z},
	} {
		p, d, l, h := c[0], c[1], c[2], c[3]
		switch {
		case d > 0:
			dist = math.Min(dist, (h-p)/d)
		case d < 0:
			dist = math.Min(dist, (l-p)/d)
		}
	}
	return math.Max(dist, 0)
}

// entry returns the distance along dir from an outside point to the box,
// or +Inf if the ray misses it.
func (v *Volume) entry(pos, dir r3.Vec) float64 {
	lo, hi := v.Lo(), v.Hi()
	tmin, tmax := math.Inf(-1), math.Inf(+1)
	for _, c := range [3][4]float64{
		{pos.X, dir.X, lo.X, hi.X},
		{pos.Y, dir.Y, lo.Y, hi.Y},
		{pos.Z, dir.Z, lo.Z, hi.Z},
	} {
		p, d, l, h := c[0], c[1], c[2], c[3]
		if d == 0 {
			if p < l || p >= h {
				return math.Inf(+1)
			}
			continue
		}
		t1, t2 := (l-p)/d, (h-p)/d
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = math.Max(tmin, t1)
		tmax = math.Min(tmax, t2)
	}
	if tmax < tmin || tmax <= 0 {
		return math.Inf(+1)
	}
	return math.Max(tmin, 0)
}

// Geometry locates positions in a set of volumes.
type Geometry interface {
	// Locate returns the index of the volume holding pos, or -1 outside the world.
	Locate(pos r3.Vec) int
	Volume(i int) *Volume
	// DistanceToBoundary returns the distance along dir to the next
	// volume boundary, starting from pos inside volume i.
	DistanceToBoundary(i int, pos, dir r3.Vec) float64
}

// Boxes is a world box holding non-overlapping daughter boxes.
// Index 0 is the world.
type Boxes struct {
	vols []Volume
}

// NewBoxes validates and assembles a flat box geometry.
func NewBoxes(world Volume, daughters ...Volume) (*Boxes, error) {
	var errs []error
	if world.Material == nil {
		errs = append(errs, fmt.Errorf("%w: world has no material", ErrGeometry))
	}
	wlo, whi := world.Lo(), world.Hi()
	for i := range daughters {
		d := &daughters[i]
		if d.Material == nil {
			errs = append(errs, fmt.Errorf("%w: volume %q has no material", ErrGeometry, d.Name))
		}
		lo, hi := d.Lo(), d.Hi()
		if lo.X < wlo.X || lo.Y < wlo.Y || lo.Z < wlo.Z ||
			hi.X > whi.X || hi.Y > whi.Y || hi.Z > whi.Z {
			errs = append(errs, fmt.Errorf("%w: volume %q extends outside the world", ErrGeometry, d.Name))
		}
		for j := 0; j < i; j++ {
			if overlap(d, &daughters[j]) {
				errs = append(errs, fmt.Errorf("%w: volumes %q and %q overlap", ErrGeometry, d.Name, daughters[j].Name))
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	vols := make([]Volume, 0, 1+len(daughters))
	vols = append(vols, world)
	vols = append(vols, daughters...)
	return &Boxes{vols: vols}, nil
}

func overlap(a, b *Volume) bool {
	alo, ahi := a.Lo(), a.Hi()
	blo, bhi := b.Lo(), b.Hi()
	return alo.X < bhi.X && blo.X < ahi.X &&
		alo.Y < bhi.Y && blo.Y < ahi.Y &&
		alo.Z < bhi.Z && blo.Z < ahi.Z
}

func (geo *Boxes) Len() int { return len(geo.vols) }

func (geo *Boxes) Volume(i int) *Volume { return &geo.vols[i] }

func (geo *Boxes) Locate(pos r3.Vec) int {
	for i := 1; i < len(geo.vols); i++ {
		if geo.vols[i].Contains(pos) {
			return i
		}
	}
	if geo.vols[0].Contains(pos) {
		return 0
	}
	return -1
}

func (geo *Boxes) DistanceToBoundary(i int, pos, dir r3.Vec) float64 {
	if i != 0 {
		return geo.vols[i].exit(pos, dir)
	}
	dist := geo.vols[0].exit(pos, dir)
	for j := 1; j < len(geo.vols); j++ {
		dist = math.Min(dist, geo.vols[j].entry(pos, dir))
	}
	return dist
}

var _ Geometry = (*Boxes)(nil)
