package mutarget

import (
	"fmt"
	"sort"
	"strings"
)

// Species is a particle species tag, as named by the transport engine.
type Species string

const (
	MuonMinus Species = "mu-"
	MuonPlus  Species = "mu+"
	Proton    Species = "proton"
	Electron  Species = "e-"
	Positron  Species = "e+"
	Gamma     Species = "gamma"
)

// SpeciesSet is the set of species of interest.
type SpeciesSet map[Species]struct{}

func NewSpeciesSet(species ...Species) SpeciesSet {
	set := make(SpeciesSet, len(species))
	for _, s := range species {
		set[s] = struct{}{}
	}
	return set
}

// Muons returns the set of both muon charge states.
func Muons() SpeciesSet {
	return NewSpeciesSet(MuonMinus, MuonPlus)
}

// ParseSpecies builds a set from species names.
// Names are trimmed; an empty name or an empty list is a configuration error.
func ParseSpecies(names []string) (SpeciesSet, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: empty species-of-interest set", ErrConfig)
	}
	set := make(SpeciesSet, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("%w: empty species name", ErrConfig)
		}
		set[Species(name)] = struct{}{}
	}
	return set, nil
}

func (set SpeciesSet) Has(s Species) bool {
	_, ok := set[s]
	return ok
}

func (set SpeciesSet) Len() int { return len(set) }

// List returns the species in lexical order.
func (set SpeciesSet) List() []Species {
	out := make([]Species, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (set SpeciesSet) String() string {
	names := make([]string, 0, len(set))
	for _, s := range set.List() {
		names = append(names, string(s))
	}
	return "{" + strings.Join(names, ",") + "}"
}
