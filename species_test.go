package mutarget

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpeciesSet(t *testing.T) {
	set := Muons()
	assert.True(t, set.Has(MuonMinus))
	assert.True(t, set.Has(MuonPlus))
	assert.False(t, set.Has(Proton))
	assert.Equal(t, []Species{MuonPlus, MuonMinus}, set.List())

	set, err := ParseSpecies([]string{"mu-", "proton", "mu-"})
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())

	_, err = ParseSpecies(nil)
	require.ErrorIs(t, err, ErrConfig)
	_, err = ParseSpecies([]string{"mu-", " "})
	require.ErrorIs(t, err, ErrConfig)
}
