package output

import (
	"context"
	"sync"

	"github.com/sbinet/mutarget"
	"go-hep.org/x/hep/hbook"
)

// Run is a run persisted by a Memory sink.
type Run struct {
	Info       mutarget.RunInfo
	Histograms []*hbook.H1D
}

// Memory keeps copies of the written histograms.
type Memory struct {
	mu     sync.Mutex
	runs   []Run
	opened int
	closed int
}

func NewMemory() *Memory { return &Memory{} }

func (s *Memory) Open(ctx context.Context) error {
	s.mu.Lock()
	s.opened++
	s.mu.Unlock()
	return nil
}

func (s *Memory) Write(ctx context.Context, run mutarget.RunInfo, hs []*hbook.H1D) error {
	cp := make([]*hbook.H1D, len(hs))
	for i, h := range hs {
		cp[i] = h.Clone()
	}
	s.mu.Lock()
	s.runs = append(s.runs, Run{Info: run, Histograms: cp})
	s.mu.Unlock()
	return nil
}

func (s *Memory) Close() error {
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
	return nil
}

// Runs returns the written runs.
func (s *Memory) Runs() []Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Run(nil), s.runs...)
}

var _ mutarget.Sink = (*Memory)(nil)
