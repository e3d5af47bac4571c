package output

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/sbinet/mutarget"
	"go-hep.org/x/hep/groot"
	"go-hep.org/x/hep/groot/rhist"
	"go-hep.org/x/hep/groot/riofs"
	"go-hep.org/x/hep/hbook"
	"go.uber.org/zap"
)

// ROOT writes the histograms to a ROOT file, one key per histogram.
type ROOT struct {
	path string
	log  *zap.Logger
	f    *riofs.File
}

func NewROOT(path string, log *zap.Logger) *ROOT {
	if log == nil {
		log = zap.NewNop()
	}
	return &ROOT{path: path, log: log}
}

// Open creates (or truncates) the ROOT file.
func (s *ROOT) Open(ctx context.Context) error {
	f, err := groot.Create(s.path)
	if err != nil {
		return fmt.Errorf("output: could not create ROOT file %q: %w", s.path, err)
	}
	s.f = f
	return nil
}

func (s *ROOT) Write(ctx context.Context, run mutarget.RunInfo, hs []*hbook.H1D) error {
	if s.f == nil {
		return fmt.Errorf("output: ROOT file %q is not open", s.path)
	}
	for _, h := range hs {
		err := s.f.Put(h.Name(), rhist.NewH1DFrom(h))
		if err != nil {
			return fmt.Errorf("output: could not write histogram %q to %q: %w", h.Name(), s.path, err)
		}
	}
	return nil
}

func (s *ROOT) Close() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	if err != nil {
		return fmt.Errorf("output: could not close ROOT file %q: %w", s.path, err)
	}
	if fi, err := os.Stat(s.path); err == nil {
		s.log.Info("histograms written",
			zap.String("file", s.path),
			zap.String("size", humanize.Bytes(uint64(fi.Size()))),
		)
	}
	return nil
}

var _ mutarget.Sink = (*ROOT)(nil)
