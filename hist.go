package mutarget

import (
	"fmt"
	"math"
	"strings"

	"go-hep.org/x/hep/hbook"
)

// Stable histogram names.
// The plotting utility keys its axis-range table on these names.
const (
	HistEnergy     = "MuonEnergy"
	HistStopZ      = "MuonStopZ"
	HistStopTarget = "MuonStopTarget"
	HistStopRadius = "MuonStopRadius"
	HistSpecialZ   = "MuonStopZSpecial"
	HistSpecialR   = "MuonStopRadiusSpecial"

	// HistStopZTrack is only booked when the track recorder runs
	// with StopZSeparate.
	HistStopZTrack = "MuonStopZTrack"
)

// Binning describes a fixed 1-dim binning.
type Binning struct {
	Name  string
	Title string
	Bins  int
	Min   float64
	Max   float64
}

func (b Binning) validate() error {
	switch {
	case b.Name == "":
		return fmt.Errorf("%w: histogram with empty name", ErrConfig)
	case b.Bins <= 0:
		return fmt.Errorf("%w: histogram %q: invalid number of bins (%d)", ErrConfig, b.Name, b.Bins)
	case !(b.Min < b.Max):
		return fmt.Errorf("%w: histogram %q: invalid range [%v, %v)", ErrConfig, b.Name, b.Min, b.Max)
	}
	return nil
}

// DefaultBinnings returns the six run histograms with their documented binning.
func DefaultBinnings() []Binning {
	return []Binning{
		{Name: HistEnergy, Title: "Muon Creation Energy (MeV)", Bins: 100, Min: 0, Max: 200},
		{Name: HistStopZ, Title: "Muon Stopping Z Position (mm)", Bins: 100, Min: -150, Max: 150},
		{Name: HistStopTarget, Title: "Muon Stopped in Target Layer (int)", Bins: 10, Min: 0, Max: 10},
		{Name: HistStopRadius, Title: "Muon radial stop distance [mm]", Bins: 100, Min: 0, Max: 50},
		{Name: HistSpecialZ, Title: "Muon Stopping Z Position in special region (mm)", Bins: 100, Min: -150, Max: 150},
		{Name: HistSpecialR, Title: "Muon radial stop distance in special region [mm]", Bins: 100, Min: 0, Max: 50},
	}
}

// TrackStopZBinning is the binning of the secondary stop-Z channel.
func TrackStopZBinning() Binning {
	return Binning{
		Name: HistStopZTrack, Title: "Muon Stopping Z Position, tracking path (mm)",
		Bins: 100, Min: -150, Max: 150,
	}
}

// EdgePolicy selects what happens to fills outside a histogram range.
type EdgePolicy int

const (
	// EdgeOutflow routes out-of-range values to the underflow/overflow
	// buckets: they count as entries but land in no in-range bin.
	EdgeOutflow EdgePolicy = iota
	// EdgeClip clamps out-of-range values into the first/last bin.
	EdgeClip
)

func (p EdgePolicy) String() string {
	switch p {
	case EdgeOutflow:
		return "outflow"
	case EdgeClip:
		return "clip"
	}
	return fmt.Sprintf("EdgePolicy(%d)", int(p))
}

func ParseEdgePolicy(s string) (EdgePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "outflow", "drop":
		return EdgeOutflow, nil
	case "clip":
		return EdgeClip, nil
	}
	return EdgeOutflow, fmt.Errorf("%w: unknown edge policy %q", ErrConfig, s)
}

// HistogramSet is the set of run-scoped named accumulators.
// It is not safe for concurrent use.
type HistogramSet struct {
	policy EdgePolicy
	names  []string
	hs     map[string]*hbook.H1D
	nan    map[string]int64
}

// NewHistogramSet books one histogram per binning.
func NewHistogramSet(policy EdgePolicy, binnings ...Binning) (*HistogramSet, error) {
	set := &HistogramSet{
		policy: policy,
		names:  make([]string, 0, len(binnings)),
		hs:     make(map[string]*hbook.H1D, len(binnings)),
		nan:    make(map[string]int64),
	}
	for _, b := range binnings {
		if err := b.validate(); err != nil {
			return nil, err
		}
		if _, dup := set.hs[b.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate histogram %q", ErrConfig, b.Name)
		}
		h := hbook.NewH1D(b.Bins, b.Min, b.Max)
		if h.Ann == nil {
			h.Ann = make(hbook.Annotation)
		}
		h.Ann["name"] = b.Name
		h.Ann["title"] = b.Title
		set.names = append(set.names, b.Name)
		set.hs[b.Name] = h
	}
	return set, nil
}

func (set *HistogramSet) Policy() EdgePolicy { return set.policy }

// Fill records v into the named histogram.
// Fill reports whether a fill happened: unknown names and NaN values are
// not filled.
func (set *HistogramSet) Fill(name string, v float64) bool {
	if set == nil {
		return false
	}
	h, ok := set.hs[name]
	if !ok {
		return false
	}
	if math.IsNaN(v) {
		set.nan[name]++
		return false
	}
	if set.policy == EdgeClip {
		v = clip(h, v)
	}
	h.Fill(v, 1)
	return true
}

func clip(h *hbook.H1D, v float64) float64 {
	xmin, xmax := h.XMin(), h.XMax()
	half := 0.5 * (xmax - xmin) / float64(h.Len())
	switch {
	case v < xmin:
		return xmin + half
	case v >= xmax:
		return xmax - half
	}
	return v
}

// Get returns the named histogram, or nil.
func (set *HistogramSet) Get(name string) *hbook.H1D {
	if set == nil {
		return nil
	}
	return set.hs[name]
}

// Names returns the histogram names in booking order.
func (set *HistogramSet) Names() []string {
	out := make([]string, len(set.names))
	copy(out, set.names)
	return out
}

// All returns the histograms in booking order.
func (set *HistogramSet) All() []*hbook.H1D {
	out := make([]*hbook.H1D, 0, len(set.names))
	for _, name := range set.names {
		out = append(out, set.hs[name])
	}
	return out
}

// Entries returns the number of fills of the named histogram,
// outflows included.
func (set *HistogramSet) Entries(name string) int64 {
	h := set.Get(name)
	if h == nil {
		return 0
	}
	return h.Entries()
}

// Dropped returns the number of NaN values rejected by the named histogram.
func (set *HistogramSet) Dropped(name string) int64 {
	if set == nil {
		return 0
	}
	return set.nan[name]
}

// Len returns the number of booked histograms.
func (set *HistogramSet) Len() int { return len(set.names) }
