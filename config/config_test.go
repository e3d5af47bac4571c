package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sbinet/mutarget"
	"github.com/sbinet/mutarget/output/blob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"MUTARGET_OUTPUT_DRIVER",
		"MUTARGET_OUTPUT_PATH",
		"MUTARGET_BLOB_DRIVER",
		"MUTARGET_BLOB_S3_BUCKET",
		"MUTARGET_BLOB_S3_REGION",
		"MUTARGET_BLOB_S3_ENDPOINT",
		"MUTARGET_BLOB_S3_PATH_STYLE",
		"MUTARGET_SQL_DSN",
		"MUTARGET_LOG_LEVEL",
		"MUTARGET_EVENTS",
		"MUTARGET_WORKERS",
	} {
		t.Setenv(name, "")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "muonTarget", cfg.Geometry)
	assert.Equal(t, []mutarget.Species{mutarget.MuonPlus, mutarget.MuonMinus}, cfg.Species)
	assert.Equal(t, []string{"root"}, cfg.Output.Drivers)
	assert.Equal(t, "muon_output.root", cfg.Output.Path)

	policy, err := cfg.EdgePolicy()
	require.NoError(t, err)
	assert.Equal(t, mutarget.EdgeOutflow, policy)

	mode, err := cfg.StopZMode()
	require.NoError(t, err)
	assert.Equal(t, mutarget.StopZShared, mode)

	tcfg := cfg.Transport()
	assert.Equal(t, cfg.Run.Seed, tcfg.Seed)
	assert.Equal(t, mutarget.Proton, tcfg.Beam.Species)
}

func TestSaveLoad(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "sub", "mutarget.yaml")

	cfg := Default()
	cfg.Run.Events = 42
	cfg.Geometry = "dtTarget"
	cfg.Histograms.StopZ = "separate"
	cfg.Output.Drivers = []string{"root", "sql"}
	cfg.Physics.MuonEnergy = [2]float64{2, 20}
	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	if diff := cmp.Diff(cfg, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadMissing(t *testing.T) {
	clearEnv(t)
	got, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), got)
}

func TestLoadPartial(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("run:\n  events: 7\nspecies: [proton]\n"), 0644))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, got.Run.Events)
	assert.Equal(t, []mutarget.Species{mutarget.Proton}, got.Species)
	assert.Equal(t, Default().Beam, got.Beam)
}

func TestLoadInvalid(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("run: [1, 2"), 0644))

	_, err := Load(path)
	require.ErrorIs(t, err, mutarget.ErrConfig)
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MUTARGET_OUTPUT_DRIVER", "yoda,sql")
	t.Setenv("MUTARGET_OUTPUT_PATH", "/tmp/out.root")
	t.Setenv("MUTARGET_BLOB_DRIVER", "s3")
	t.Setenv("MUTARGET_BLOB_S3_BUCKET", "muons")
	t.Setenv("MUTARGET_SQL_DSN", "postgres://localhost/mutarget")
	t.Setenv("MUTARGET_LOG_LEVEL", "debug")
	t.Setenv("MUTARGET_EVENTS", "12")
	t.Setenv("MUTARGET_WORKERS", "3")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []string{"yoda", "sql"}, cfg.Output.Drivers)
	assert.Equal(t, "/tmp/out.root", cfg.Output.Path)
	assert.Equal(t, blob.DriverS3, cfg.Output.Blob.Driver)
	assert.Equal(t, "muons", cfg.Output.Blob.S3.Bucket)
	assert.Equal(t, "postgres://localhost/mutarget", cfg.Output.SQL.DSN)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 12, cfg.Run.Events)
	assert.Equal(t, 3, cfg.Run.Workers)

	t.Setenv("MUTARGET_EVENTS", "many")
	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, mutarget.ErrConfig)
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name string
		edit func(*Config)
	}{
		{"events", func(c *Config) { c.Run.Events = -1 }},
		{"workers", func(c *Config) { c.Run.Workers = -2 }},
		{"geometry", func(c *Config) { c.Geometry = "cathedral" }},
		{"species", func(c *Config) { c.Species = nil }},
		{"edge-policy", func(c *Config) { c.Histograms.EdgePolicy = "wrap" }},
		{"stop-z", func(c *Config) { c.Histograms.StopZ = "twice" }},
		{"beam", func(c *Config) { c.Beam.Energy = 0 }},
		{"physics", func(c *Config) { c.Physics.MaxSteps = 0 }},
		{"drivers", func(c *Config) { c.Output.Drivers = nil }},
		{"log-level", func(c *Config) { c.Logging.Level = "loud" }},
		{"log-format", func(c *Config) { c.Logging.Format = "xml" }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.edit(cfg)
			assert.ErrorIs(t, cfg.Validate(), mutarget.ErrConfig)
		})
	}
}

func TestLogger(t *testing.T) {
	cfg := Default()
	cfg.Logging = LogConfig{Level: "warn", Format: "json"}
	log, err := cfg.Logger()
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.WarnLevel))
	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))

	cfg.Logging.Level = "nope"
	_, err = cfg.Logger()
	require.ErrorIs(t, err, mutarget.ErrConfig)
}
