package sim

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sbinet/mutarget"
	"github.com/sbinet/mutarget/config"
	"github.com/sbinet/mutarget/metrics"
	"github.com/sbinet/mutarget/output"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Run.Events = 20
	cfg.Run.Workers = 2
	cfg.Run.OrderChecks = true
	cfg.Physics.MuonYield = 2
	cfg.Output.Path = filepath.Join(t.TempDir(), "muon_output.root")
	return cfg
}

func TestRun(t *testing.T) {
	cfg := newConfig(t)
	sink := output.NewMemory()
	tracks := &mutarget.TrackRecords{}
	app, err := New(cfg, WithSink(sink), WithTrackWriter(tracks))
	require.NoError(t, err)

	sum, err := app.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 20, sum.Run.Events)
	assert.Equal(t, "muonTarget", sum.Setup)
	assert.Greater(t, sum.Kept, 0)
	assert.LessOrEqual(t, sum.Kept, 20)
	assert.Greater(t, sum.Steps, 0)
	assert.Greater(t, sum.Stats.Created, int64(0))
	assert.Equal(t, sum.Stats.Created, sum.Entries[mutarget.HistEnergy])
	assert.Len(t, sum.Entries, 6)
	assert.NotEmpty(t, tracks.Records)

	runs := sink.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, sum.Run.ID, runs[0].Info.ID)
	require.Len(t, runs[0].Histograms, 6)
	for _, h := range runs[0].Histograms {
		assert.Equal(t, sum.Entries[h.Name()], h.Entries(), h.Name())
	}
}

func TestRunDeterministic(t *testing.T) {
	var ref *Summary
	for _, workers := range []int{1, 4} {
		cfg := newConfig(t)
		cfg.Run.Workers = workers
		app, err := New(cfg, WithSink(output.NewMemory()), WithTrackWriter(&mutarget.TrackRecords{}))
		require.NoError(t, err)
		sum, err := app.Run(context.Background())
		require.NoError(t, err)
		if ref == nil {
			ref = sum
			continue
		}
		assert.Equal(t, ref.Entries, sum.Entries, "workers=%d", workers)
		assert.Equal(t, ref.Stats, sum.Stats, "workers=%d", workers)
		assert.Equal(t, ref.Kept, sum.Kept, "workers=%d", workers)
		assert.Equal(t, ref.Steps, sum.Steps, "workers=%d", workers)
	}
}

func TestRunROOTOutput(t *testing.T) {
	cfg := newConfig(t)
	cfg.Run.Events = 5
	cfg.Histograms.StopZ = "separate"
	app, err := New(cfg, WithTrackWriter(&mutarget.TrackRecords{}))
	require.NoError(t, err)

	sum, err := app.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, sum.Entries, 7)

	fi, err := os.Stat(cfg.Output.Path)
	require.NoError(t, err)
	assert.Greater(t, fi.Size(), int64(0))
}

func TestRunTrajectories(t *testing.T) {
	cfg := newConfig(t)
	cfg.Run.Trajectories = filepath.Join(t.TempDir(), "traj.jsonl")
	app, err := New(cfg, WithSink(output.NewMemory()), WithTrackWriter(&mutarget.TrackRecords{}))
	require.NoError(t, err)

	sum, err := app.Run(context.Background())
	require.NoError(t, err)

	f, err := os.Open(cfg.Run.Trajectories)
	require.NoError(t, err)
	defer f.Close()
	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(nil, 64<<20)
	for sc.Scan() {
		n++
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, sum.Kept, n)
}

func TestRunMetrics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := metrics.New()
	addr, err := ServeMetrics(ctx, "127.0.0.1:0", rec, nil)
	require.NoError(t, err)

	app, err := New(newConfig(t), WithSink(output.NewMemory()), WithMetrics(rec), WithTrackWriter(&mutarget.TrackRecords{}))
	require.NoError(t, err)
	sum, err := app.Run(ctx)
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "mutarget_events_total 20")
	assert.Contains(t, string(body), fmt.Sprintf("mutarget_events_kept_total %d", sum.Kept))
	assert.True(t, strings.Contains(string(body), "mutarget_runs_total 1"))
}

func TestRunProfiles(t *testing.T) {
	dir := t.TempDir()
	cfg := newConfig(t)
	cfg.Run.Events = 2
	app, err := New(cfg,
		WithSink(output.NewMemory()),
		WithTrackWriter(&mutarget.TrackRecords{}),
		WithCPUProfile(filepath.Join(dir, "cpu.prof")),
		WithTrace(filepath.Join(dir, "trace.out")),
	)
	require.NoError(t, err)
	_, err = app.Run(context.Background())
	require.NoError(t, err)

	for _, name := range []string{"cpu.prof", "trace.out"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := newConfig(t)
	cfg.Run.Events = 1000
	app, err := New(cfg, WithSink(output.NewMemory()), WithTrackWriter(&mutarget.TrackRecords{}))
	require.NoError(t, err)
	_, err = app.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewInvalid(t *testing.T) {
	_, err := New(nil)
	require.ErrorIs(t, err, mutarget.ErrConfig)

	cfg := config.Default()
	cfg.Geometry = "nowhere"
	_, err = New(cfg)
	require.ErrorIs(t, err, mutarget.ErrConfig)
}

func TestRunSinkFailure(t *testing.T) {
	cfg := newConfig(t)
	cfg.Output.Path = filepath.Join(t.TempDir(), "missing", "dir", "out.root")
	app, err := New(cfg, WithTrackWriter(&mutarget.TrackRecords{}))
	require.NoError(t, err)
	_, err = app.Run(context.Background())
	require.ErrorIs(t, err, mutarget.ErrOutput)
}
