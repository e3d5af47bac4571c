package mutarget

import (
	"fmt"
)

// VolumeID is an opaque volume identity handle.
// It is only ever compared for equality; the index never owns the volume
// it designates.
type VolumeID uint32

// NoVolume is the invalid volume identity.
const NoVolume VolumeID = 0

// TargetVolume is one registered target layer.
type TargetVolume struct {
	Index int      // dense index, assigned in registration order
	ID    VolumeID // identity of the volume in the engine geometry
	Label string   // display/material label, diagnostics only
}

// GeometryIndex maps target volume identities to stable layer indices.
//
// The index is append-only while the geometry is being built and read-only
// once frozen. A frozen index may be shared between goroutines.
type GeometryIndex struct {
	vols []TargetVolume
	ids  map[VolumeID]int

	special      VolumeID
	specialLabel string

	frozen bool
}

func NewGeometryIndex() *GeometryIndex {
	return &GeometryIndex{
		ids: make(map[VolumeID]int),
	}
}

// Register appends a target volume and returns its index.
func (geo *GeometryIndex) Register(id VolumeID, label string) (int, error) {
	if geo.frozen {
		return -1, fmt.Errorf("%w: geometry index is frozen (volume=%d)", ErrConfig, id)
	}
	if id == NoVolume {
		return -1, fmt.Errorf("%w (label=%q)", ErrInvalidVolume, label)
	}
	if i, dup := geo.ids[id]; dup {
		return -1, fmt.Errorf(
			"%w (volume=%d, label=%q, registered at index %d)",
			ErrDuplicateVolume, id, label, i,
		)
	}
	idx := len(geo.vols)
	geo.vols = append(geo.vols, TargetVolume{Index: idx, ID: id, Label: label})
	geo.ids[id] = idx
	return idx, nil
}

// MustRegister is like Register but panics on error.
func (geo *GeometryIndex) MustRegister(id VolumeID, label string) int {
	idx, err := geo.Register(id, label)
	if err != nil {
		panic(err)
	}
	return idx
}

// Lookup returns the layer index of the volume, if registered.
func (geo *GeometryIndex) Lookup(id VolumeID) (int, bool) {
	if geo == nil || id == NoVolume {
		return -1, false
	}
	idx, ok := geo.ids[id]
	return idx, ok
}

func (geo *GeometryIndex) Len() int {
	if geo == nil {
		return 0
	}
	return len(geo.vols)
}

// At returns the i-th target volume.
func (geo *GeometryIndex) At(i int) TargetVolume {
	return geo.vols[i]
}

// Volumes returns a copy of the registered volumes, in index order.
func (geo *GeometryIndex) Volumes() []TargetVolume {
	out := make([]TargetVolume, len(geo.vols))
	copy(out, geo.vols)
	return out
}

// SetSpecial designates the special region.
// The special region may or may not also be a registered target volume.
func (geo *GeometryIndex) SetSpecial(id VolumeID, label string) error {
	if geo.frozen {
		return fmt.Errorf("%w: geometry index is frozen (special=%d)", ErrConfig, id)
	}
	if id == NoVolume {
		return fmt.Errorf("%w: special region (label=%q)", ErrInvalidVolume, label)
	}
	geo.special = id
	geo.specialLabel = label
	return nil
}

// Special returns the special region identity, if any.
func (geo *GeometryIndex) Special() (VolumeID, bool) {
	if geo == nil {
		return NoVolume, false
	}
	return geo.special, geo.special != NoVolume
}

func (geo *GeometryIndex) SpecialLabel() string {
	if geo == nil {
		return ""
	}
	return geo.specialLabel
}

func (geo *GeometryIndex) IsSpecial(id VolumeID) bool {
	if geo == nil || id == NoVolume {
		return false
	}
	return geo.special == id
}

// Freeze makes the index read-only.
func (geo *GeometryIndex) Freeze() { geo.frozen = true }

func (geo *GeometryIndex) Frozen() bool { return geo.frozen }
