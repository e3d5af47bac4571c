package mutarget

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go-hep.org/x/hep/hbook"
)

type fakeSink struct {
	openErr  error
	writeErr error

	opened int
	closed int
	run    RunInfo
	names  []string
	totals map[string]int64
}

func (s *fakeSink) Open(ctx context.Context) error {
	if s.openErr != nil {
		return s.openErr
	}
	s.opened++
	return nil
}

func (s *fakeSink) Write(ctx context.Context, run RunInfo, hs []*hbook.H1D) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.run = run
	s.names = s.names[:0]
	s.totals = make(map[string]int64, len(hs))
	for _, h := range hs {
		s.names = append(s.names, h.Name())
		s.totals[h.Name()] = h.Entries()
	}
	return nil
}

func (s *fakeSink) Close() error {
	s.closed++
	return nil
}

type keeperFunc func()

func (f keeperFunc) KeepTheCurrentEvent() { f() }

// newLayers registers n target volumes with ids 100, 101, ...
func newLayers(t *testing.T, n int) *GeometryIndex {
	t.Helper()
	geo := NewGeometryIndex()
	for i := 0; i < n; i++ {
		_, err := geo.Register(VolumeID(100+i), "Converter")
		require.NoError(t, err)
	}
	return geo
}

// startRun starts a run over geo with a fake sink and returns its context.
func startRun(t *testing.T, geo *GeometryIndex, opts ...Option) (*RunContext, *RunController, *fakeSink) {
	t.Helper()
	sink := &fakeSink{}
	rc, err := NewRunController(sink, opts...)
	require.NoError(t, err)
	run := NewRunContext(0, geo, nil)
	require.NoError(t, rc.RunStart(context.Background(), run))
	return run, rc, sink
}

// binOf returns the index of the in-range bin holding x.
func binOf(t *testing.T, h *hbook.H1D, x float64) int {
	t.Helper()
	for i, bin := range h.Binning.Bins {
		if bin.XMin() <= x && x < bin.XMax() {
			return i
		}
	}
	t.Fatalf("no bin of %q holds x=%v", h.Name(), x)
	return -1
}

func binEntries(h *hbook.H1D, i int) int64 {
	return h.Binning.Bins[i].Entries()
}

func inRangeEntries(h *hbook.H1D) int64 {
	var n int64
	for _, bin := range h.Binning.Bins {
		n += bin.Entries()
	}
	return n
}

func totalEntries(hs *HistogramSet) int64 {
	var n int64
	for _, name := range hs.Names() {
		n += hs.Entries(name)
	}
	return n
}
