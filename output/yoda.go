package output

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sbinet/mutarget"
	"github.com/sbinet/mutarget/output/blob"
	"go-hep.org/x/hep/hbook"
	"go.uber.org/zap"
)

// YODA writes the histograms as a single YODA text document to a blob store.
type YODA struct {
	store blob.Store
	key   string
	log   *zap.Logger
}

// NewYODA creates a YODA sink. Occurrences of "{run}" in key are replaced
// by the run id.
func NewYODA(store blob.Store, key string, log *zap.Logger) *YODA {
	if log == nil {
		log = zap.NewNop()
	}
	return &YODA{store: store, key: key, log: log}
}

func (s *YODA) Open(ctx context.Context) error {
	if s.store == nil {
		return fmt.Errorf("output: no blob store for YODA output")
	}
	return nil
}

func (s *YODA) Write(ctx context.Context, run mutarget.RunInfo, hs []*hbook.H1D) error {
	var buf bytes.Buffer
	for _, h := range hs {
		raw, err := h.MarshalYODA()
		if err != nil {
			return fmt.Errorf("output: could not encode histogram %q: %w", h.Name(), err)
		}
		buf.Write(raw)
		buf.WriteString("\n")
	}

	key := strings.ReplaceAll(s.key, "{run}", run.ID)
	info, err := s.store.Put(ctx, key, bytes.NewReader(buf.Bytes()), "text/plain")
	if err != nil {
		return fmt.Errorf("output: could not store %q: %w", key, err)
	}
	s.log.Info("histograms written",
		zap.String("store", string(s.store.Driver())),
		zap.String("key", info.Key),
		zap.String("size", humanize.Bytes(uint64(info.Size))),
	)
	return nil
}

func (s *YODA) Close() error { return nil }

var _ mutarget.Sink = (*YODA)(nil)
