package transport

import (
	"math"
	"testing"

	"github.com/sbinet/mutarget"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func material(t *testing.T, name string) *Material {
	t.Helper()
	mat, err := LookupMaterial(name)
	require.NoError(t, err)
	return mat
}

func box(t *testing.T, id uint32, mat string, z, halfZ float64) Volume {
	return Volume{
		ID:       mutarget.VolumeID(id),
		Name:     "box",
		Label:    "boxLV",
		Material: material(t, mat),
		Center:   r3.Vec{Z: z},
		Half:     r3.Vec{X: 50, Y: 50, Z: halfZ},
	}
}

func world(t *testing.T) Volume {
	return Volume{
		ID:       1,
		Name:     "World",
		Material: material(t, "G4_AIR"),
		Half:     r3.Vec{X: 500, Y: 500, Z: 500},
	}
}

func TestBoxes(t *testing.T) {
	geo, err := NewBoxes(world(t), box(t, 2, "G4_W", 0, 5), box(t, 3, "G4_GRAPHITE", 20, 5))
	require.NoError(t, err)
	assert.Equal(t, 3, geo.Len())

	for _, tc := range []struct {
		pos  r3.Vec
		want int
	}{
		{r3.Vec{Z: -100}, 0},
		{r3.Vec{Z: -5}, 1},
		{r3.Vec{X: 49, Z: 4.9}, 1},
		{r3.Vec{Z: 5}, 0},
		{r3.Vec{Z: 15}, 2},
		{r3.Vec{X: 60, Z: 0}, 0},
		{r3.Vec{Z: 500}, -1},
		{r3.Vec{Z: -500.5}, -1},
	} {
		assert.Equal(t, tc.want, geo.Locate(tc.pos), "pos=%v", tc.pos)
	}

	up := r3.Vec{Z: 1}
	assert.InDelta(t, 95, geo.DistanceToBoundary(0, r3.Vec{Z: -100}, up), 1e-9)
	assert.InDelta(t, 10, geo.DistanceToBoundary(1, r3.Vec{Z: -5}, up), 1e-9)
	assert.InDelta(t, 10, geo.DistanceToBoundary(0, r3.Vec{Z: 5}, up), 1e-9)
	assert.InDelta(t, 475, geo.DistanceToBoundary(0, r3.Vec{Z: 25}, up), 1e-9)

	// a ray missing the daughters exits the world.
	side := r3.Vec{X: 1}
	assert.InDelta(t, 600, geo.DistanceToBoundary(0, r3.Vec{X: -100, Z: 100}, side), 1e-9)

	diag := r3.Unit(r3.Vec{X: 1, Z: 1})
	d := geo.DistanceToBoundary(0, r3.Vec{X: -20, Z: -20}, diag)
	assert.InDelta(t, 15*math.Sqrt2, d, 1e-9)
}

func TestNewBoxesErrors(t *testing.T) {
	_, err := NewBoxes(world(t), box(t, 2, "G4_W", 0, 5), box(t, 3, "G4_W", 8, 5))
	require.ErrorIs(t, err, ErrGeometry)
	assert.Contains(t, err.Error(), "overlap")

	_, err = NewBoxes(world(t), box(t, 2, "G4_W", 498, 5))
	require.ErrorIs(t, err, ErrGeometry)
	assert.Contains(t, err.Error(), "outside the world")

	bad := box(t, 2, "G4_W", 0, 5)
	bad.Material = nil
	_, err = NewBoxes(world(t), bad)
	require.ErrorIs(t, err, ErrGeometry)
}
