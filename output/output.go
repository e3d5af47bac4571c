// Package output holds the sinks persisting the run histograms.
package output

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sbinet/mutarget"
	"github.com/sbinet/mutarget/output/blob"
	"go-hep.org/x/hep/hbook"
	"go.uber.org/zap"
)

// Config selects the output sinks of a run.
type Config struct {
	Drivers []string    `yaml:"drivers"` // root, yoda, sql, memory
	Path    string      `yaml:"path"`    // ROOT file path
	Key     string      `yaml:"key"`     // YODA blob key, "{run}" is replaced by the run id
	Blob    blob.Config `yaml:"blob"`
	SQL     SQLConfig   `yaml:"sql"`
}

const (
	DefaultPath = "muon_output.root"
	DefaultKey  = "muon_output.yoda"
)

func DefaultConfig() Config {
	return Config{
		Drivers: []string{"root"},
		Path:    DefaultPath,
		Key:     DefaultKey,
		SQL:     SQLConfig{Driver: "sqlite", DSN: "muon_output.db"},
	}
}

// New creates the sinks listed in cfg.
// Several drivers are combined in a Multi sink.
func New(ctx context.Context, cfg Config, log *zap.Logger) (mutarget.Sink, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if len(cfg.Drivers) == 0 {
		return nil, fmt.Errorf("%w: no output driver", mutarget.ErrConfig)
	}
	var sinks []mutarget.Sink
	for _, drv := range cfg.Drivers {
		switch strings.ToLower(strings.TrimSpace(drv)) {
		case "root":
			path := cfg.Path
			if path == "" {
				path = DefaultPath
			}
			sinks = append(sinks, NewROOT(path, log))
		case "yoda":
			store, err := blob.Open(ctx, cfg.Blob)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", mutarget.ErrOutput, err)
			}
			key := cfg.Key
			if key == "" {
				key = DefaultKey
			}
			sinks = append(sinks, NewYODA(store, key, log))
		case "sql":
			sinks = append(sinks, NewSQL(cfg.SQL, log))
		case "memory":
			sinks = append(sinks, NewMemory())
		default:
			return nil, fmt.Errorf("%w: unknown output driver %q", mutarget.ErrConfig, drv)
		}
	}
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return Multi(sinks...), nil
}

type multi struct {
	sinks []mutarget.Sink
}

// Multi returns a sink writing to all the given sinks.
func Multi(sinks ...mutarget.Sink) mutarget.Sink {
	return &multi{sinks: sinks}
}

// Open opens every sink. On failure, the already opened sinks are closed.
func (m *multi) Open(ctx context.Context) error {
	for i, s := range m.sinks {
		if err := s.Open(ctx); err != nil {
			for _, o := range m.sinks[:i] {
				_ = o.Close()
			}
			return err
		}
	}
	return nil
}

func (m *multi) Write(ctx context.Context, run mutarget.RunInfo, hs []*hbook.H1D) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Write(ctx, run, hs); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
