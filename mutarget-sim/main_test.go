package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sbinet/mutarget/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(append(args, "--config", filepath.Join(t.TempDir(), "none.yaml"), "--log-level", "error"))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestGeometryCmd(t *testing.T) {
	out, err := execute(t, "geometry", "--geometry", "dtTarget")
	require.NoError(t, err)
	assert.Contains(t, out, "setup: dtTarget")
	assert.Contains(t, out, "DTGasLogical")
	assert.Equal(t, 8, strings.Count(out, "\n"))

	_, err = execute(t, "geometry", "--geometry", "nowhere")
	require.Error(t, err)
}

func TestConfigCmd(t *testing.T) {
	out, err := execute(t, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "geometry: muonTarget")

	fname := filepath.Join(t.TempDir(), "cfg.yaml")
	_, err = execute(t, "config", "--write", fname)
	require.NoError(t, err)
	cfg, err := config.Load(fname)
	require.NoError(t, err)
	assert.Equal(t, "muonTarget", cfg.Geometry)
}

func TestRunAndPlotCmd(t *testing.T) {
	dir := t.TempDir()
	fname := filepath.Join(dir, "muon_output.root")
	out, err := execute(t, "run",
		"--events", "5",
		"--workers", "2",
		"--geometry", "carbonStack",
		"--stop-z", "separate",
		"-o", fname,
	)
	require.NoError(t, err)
	assert.Contains(t, out, "5 events")
	_, err = os.Stat(fname)
	require.NoError(t, err)

	pdir := filepath.Join(dir, "plots")
	out, err = execute(t, "plot", "-i", fname, "-d", pdir, "--format", "png")
	require.NoError(t, err)
	assert.Equal(t, 7, strings.Count(out, ".png"))
}

func TestRunCmdInvalid(t *testing.T) {
	_, err := execute(t, "run", "--events", "-3")
	require.Error(t, err)

	_, err = execute(t, "run", "--events", "many")
	require.Error(t, err)
}
