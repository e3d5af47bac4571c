// Package config holds the configuration of a simulation run.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sbinet/mutarget"
	"github.com/sbinet/mutarget/detector"
	"github.com/sbinet/mutarget/output"
	"github.com/sbinet/mutarget/output/blob"
	"github.com/sbinet/mutarget/transport"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config is the configuration of a simulation run.
type Config struct {
	Run        RunConfig          `yaml:"run"`
	Geometry   string             `yaml:"geometry"`
	Beam       transport.Beam     `yaml:"beam"`
	Physics    transport.Physics  `yaml:"physics"`
	Species    []mutarget.Species `yaml:"species"`
	Histograms HistConfig         `yaml:"histograms"`
	Output     output.Config      `yaml:"output"`
	Logging    LogConfig          `yaml:"logging"`
	Metrics    MetricsConfig      `yaml:"metrics"`
}

type RunConfig struct {
	Events       int    `yaml:"events"`
	First        int    `yaml:"first"`   // first event number
	Workers      int    `yaml:"workers"` // 0 selects the number of CPUs
	Seed         int64  `yaml:"seed"`
	Trajectories string `yaml:"trajectories"` // JSON lines file of kept events, if any
	OrderChecks  bool   `yaml:"order_checks"`
}

type HistConfig struct {
	EdgePolicy string `yaml:"edge_policy"` // outflow or clip
	StopZ      string `yaml:"stop_z"`      // shared, separate or off
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the metrics endpoint
}

// Default returns the default configuration.
func Default() *Config {
	tcfg := transport.DefaultConfig()
	return &Config{
		Run: RunConfig{
			Events: 1000,
			Seed:   tcfg.Seed,
		},
		Geometry:   detector.Default,
		Beam:       tcfg.Beam,
		Physics:    tcfg.Physics,
		Species:    mutarget.Muons().List(),
		Histograms: HistConfig{EdgePolicy: "outflow", StopZ: "shared"},
		Output:     output.DefaultConfig(),
		Logging:    LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads a YAML configuration on top of the defaults.
// A missing file yields the defaults. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("config: could not read %q: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: could not parse %q: %w", mutarget.ErrConfig, path, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("config: could not create directory of %q: %w", path, err)
	}
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("config: could not write %q: %w", path, err)
	}
	return nil
}

func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("config: could not marshal: %w", err)
	}
	return data, nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("MUTARGET_OUTPUT_DRIVER"); v != "" {
		c.Output.Drivers = strings.Split(v, ",")
	}
	if v := os.Getenv("MUTARGET_OUTPUT_PATH"); v != "" {
		c.Output.Path = v
	}
	if v := os.Getenv("MUTARGET_BLOB_DRIVER"); v != "" {
		c.Output.Blob.Driver = blob.Driver(v)
	}
	c.Output.Blob.S3 = blob.S3ConfigFromEnv(c.Output.Blob.S3)
	if v := os.Getenv("MUTARGET_SQL_DSN"); v != "" {
		c.Output.SQL.DSN = v
	}
	if v := os.Getenv("MUTARGET_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	for _, env := range []struct {
		name string
		ptr  *int
	}{
		{"MUTARGET_EVENTS", &c.Run.Events},
		{"MUTARGET_WORKERS", &c.Run.Workers},
	} {
		v := os.Getenv(env.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: invalid %s=%q: %w", mutarget.ErrConfig, env.name, v, err)
		}
		*env.ptr = n
	}
	return nil
}

// Validate checks the whole configuration and reports every problem.
func (c *Config) Validate() error {
	var errs []error
	if c.Run.Events < 0 {
		errs = append(errs, fmt.Errorf("%w: invalid number of events (%d)", mutarget.ErrConfig, c.Run.Events))
	}
	if c.Run.Workers < 0 {
		errs = append(errs, fmt.Errorf("%w: invalid number of workers (%d)", mutarget.ErrConfig, c.Run.Workers))
	}
	if !knownGeometry(c.Geometry) {
		errs = append(errs, fmt.Errorf("%w: unknown detector type %q (valid: %v)", mutarget.ErrConfig, c.Geometry, detector.Variants()))
	}
	if _, err := c.SpeciesSet(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.EdgePolicy(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.StopZMode(); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, c.Beam.Validate(), c.Physics.Validate())
	if len(c.Output.Drivers) == 0 {
		errs = append(errs, fmt.Errorf("%w: no output driver", mutarget.ErrConfig))
	}
	if _, err := c.level(); err != nil {
		errs = append(errs, err)
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("%w: invalid log format %q", mutarget.ErrConfig, c.Logging.Format))
	}
	return errors.Join(errs...)
}

func knownGeometry(name string) bool {
	for _, v := range detector.Variants() {
		if v == name {
			return true
		}
	}
	return false
}

func (c *Config) SpeciesSet() (mutarget.SpeciesSet, error) {
	names := make([]string, len(c.Species))
	for i, s := range c.Species {
		names[i] = string(s)
	}
	return mutarget.ParseSpecies(names)
}

func (c *Config) EdgePolicy() (mutarget.EdgePolicy, error) {
	return mutarget.ParseEdgePolicy(c.Histograms.EdgePolicy)
}

func (c *Config) StopZMode() (mutarget.StopZMode, error) {
	return mutarget.ParseStopZMode(c.Histograms.StopZ)
}

// Transport returns the engine configuration.
func (c *Config) Transport() transport.Config {
	return transport.Config{
		Seed:    c.Run.Seed,
		Beam:    c.Beam,
		Physics: c.Physics,
	}
}

func (c *Config) level() (zapcore.Level, error) {
	if c.Logging.Level == "" {
		return zapcore.InfoLevel, nil
	}
	lvl, err := zapcore.ParseLevel(c.Logging.Level)
	if err != nil {
		return lvl, fmt.Errorf("%w: %w", mutarget.ErrConfig, err)
	}
	return lvl, nil
}

// Logger builds the logger described by the logging section.
func (c *Config) Logger() (*zap.Logger, error) {
	lvl, err := c.level()
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	if c.Logging.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	log, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("config: could not build logger: %w", err)
	}
	return log, nil
}
