// Package sim wires a detector, the transport engine and the scoring
// components into a simulation run.
package sim

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"runtime/trace"
	"time"

	"github.com/sbinet/mutarget"
	"github.com/sbinet/mutarget/config"
	"github.com/sbinet/mutarget/detector"
	"github.com/sbinet/mutarget/metrics"
	"github.com/sbinet/mutarget/output"
	"github.com/sbinet/mutarget/transport"
	"go.uber.org/zap"
)

// App runs simulations described by a configuration.
type App struct {
	cfg *config.Config
	log *zap.Logger

	sink    mutarget.Sink
	tracks  mutarget.TrackRecordWriter
	metrics *metrics.Recorder

	fprof  string
	ftrace string

	runs int
}

type Option func(*App)

func WithLogger(log *zap.Logger) Option {
	return func(app *App) {
		if log != nil {
			app.log = log
		}
	}
}

// WithSink replaces the sinks described by the output configuration.
func WithSink(sink mutarget.Sink) Option {
	return func(app *App) { app.sink = sink }
}

// WithTrackWriter sets the receiver of the track diagnostic records.
// By default they are logged.
func WithTrackWriter(w mutarget.TrackRecordWriter) Option {
	return func(app *App) { app.tracks = w }
}

// WithMetrics registers a metrics recorder with every run.
func WithMetrics(r *metrics.Recorder) Option {
	return func(app *App) { app.metrics = r }
}

// WithCPUProfile enables CPU profiling of the runs into fname.
func WithCPUProfile(fname string) Option {
	return func(app *App) { app.fprof = fname }
}

// WithTrace enables execution tracing of the runs into fname.
func WithTrace(fname string) Option {
	return func(app *App) { app.ftrace = fname }
}

func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil configuration", mutarget.ErrConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	app := &App{
		cfg: cfg,
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(app)
	}
	return app, nil
}

// Summary describes a completed run.
type Summary struct {
	Run     mutarget.RunInfo
	Setup   string
	Kept    int
	Steps   int
	Stats   mutarget.StepStats
	Entries map[string]int64

	Histograms *mutarget.HistogramSet
}

// Run simulates one run.
func (app *App) Run(ctx context.Context) (sum *Summary, err error) {
	stop, err := app.profile()
	if err != nil {
		return nil, err
	}
	defer func() {
		if e := stop(); e != nil && err == nil {
			err = e
		}
	}()

	cfg := app.cfg
	setup, err := detector.Build(cfg.Geometry, app.log)
	if err != nil {
		return nil, err
	}
	eng, err := transport.NewEngine(setup.Geometry, cfg.Transport())
	if err != nil {
		return nil, err
	}

	var traj transport.TrajectoryWriter
	if fname := cfg.Run.Trajectories; fname != "" {
		f, ferr := os.Create(fname)
		if ferr != nil {
			return nil, fmt.Errorf("sim: could not create trajectories file: %w", ferr)
		}
		jl := transport.NewJSONLines(f)
		defer func() {
			ferr := errors.Join(jl.Flush(), f.Close())
			if ferr != nil && err == nil {
				err = fmt.Errorf("sim: could not write trajectories to %q: %w", fname, ferr)
			}
		}()
		traj = jl
	}
	pool := transport.NewPool(eng, cfg.Run.Workers, traj, app.log)

	d, comps, err := app.components(ctx)
	if err != nil {
		return nil, err
	}

	run := mutarget.NewRunContext(app.runs, setup.Index, pool)
	app.runs++

	if err := d.RunStart(ctx, run); err != nil {
		return nil, err
	}
	perr := pool.Run(ctx, run, d, cfg.Run.First, cfg.Run.Events)
	serr := d.RunStop(ctx, run)
	if err := errors.Join(perr, serr); err != nil {
		return nil, err
	}

	sum = &Summary{
		Run:        run.Info(),
		Setup:      setup.Name,
		Kept:       pool.Kept(),
		Steps:      pool.Steps(),
		Stats:      comps.steps.Stats(),
		Entries:    make(map[string]int64, run.Histograms.Len()),
		Histograms: run.Histograms,
	}
	for _, name := range run.Histograms.Names() {
		sum.Entries[name] = run.Histograms.Entries(name)
	}
	app.log.Info("run summary",
		zap.String("run", sum.Run.ID),
		zap.String("setup", sum.Setup),
		zap.Int("events", sum.Run.Events),
		zap.Int("kept", sum.Kept),
		zap.Int("steps", sum.Steps),
		zap.Int64("stopped", sum.Stats.Stopped),
		zap.Int64("unresolved", sum.Stats.Unresolved),
	)
	return sum, nil
}

type components struct {
	steps *mutarget.StepClassifier
}

// components builds the dispatcher of a run. The run controller comes
// first so that the histograms are booked before any other runner starts.
func (app *App) components(ctx context.Context) (*mutarget.Dispatcher, components, error) {
	var (
		cfg   = app.cfg
		comps components
	)
	species, err := cfg.SpeciesSet()
	if err != nil {
		return nil, comps, err
	}
	policy, err := cfg.EdgePolicy()
	if err != nil {
		return nil, comps, err
	}
	mode, err := cfg.StopZMode()
	if err != nil {
		return nil, comps, err
	}
	opts := []mutarget.Option{
		mutarget.WithLogger(app.log),
		mutarget.WithEdgePolicy(policy),
		mutarget.WithStopZMode(mode),
		mutarget.WithOrderChecks(cfg.Run.OrderChecks),
	}

	sink := app.sink
	if sink == nil {
		sink, err = output.New(ctx, cfg.Output, app.log)
		if err != nil {
			return nil, comps, err
		}
	}
	rc, err := mutarget.NewRunController(sink, opts...)
	if err != nil {
		return nil, comps, err
	}
	comps.steps, err = mutarget.NewStepClassifier(species, opts...)
	if err != nil {
		return nil, comps, err
	}
	tracks, err := mutarget.NewTrackRecorder(species, app.tracks, opts...)
	if err != nil {
		return nil, comps, err
	}

	d := mutarget.NewDispatcher(opts...)
	actions := []any{rc, mutarget.NewRetentionFilter(opts...), tracks, comps.steps}
	if app.metrics != nil {
		actions = append(actions, app.metrics)
	}
	if err := d.Register(actions...); err != nil {
		return nil, comps, err
	}
	return d, comps, nil
}

// profile starts the CPU profile and the execution trace, if enabled.
func (app *App) profile() (func() error, error) {
	var stops []func() error
	stop := func() error {
		var errs []error
		for i := len(stops) - 1; i >= 0; i-- {
			errs = append(errs, stops[i]())
		}
		return errors.Join(errs...)
	}

	if app.fprof != "" {
		fprof, err := os.Create(app.fprof)
		if err != nil {
			return nil, fmt.Errorf("sim: could not create pprof output file %q: %w", app.fprof, err)
		}
		if err := pprof.StartCPUProfile(fprof); err != nil {
			fprof.Close()
			return nil, fmt.Errorf("sim: could not start CPU profile: %w", err)
		}
		stops = append(stops, func() error {
			pprof.StopCPUProfile()
			return fprof.Close()
		})
	}

	if app.ftrace != "" {
		ftrace, err := os.Create(app.ftrace)
		if err != nil {
			_ = stop()
			return nil, fmt.Errorf("sim: could not create trace output file %q: %w", app.ftrace, err)
		}
		if err := trace.Start(ftrace); err != nil {
			ftrace.Close()
			_ = stop()
			return nil, fmt.Errorf("sim: could not start trace: %w", err)
		}
		stops = append(stops, func() error {
			trace.Stop()
			return ftrace.Close()
		})
	}
	return stop, nil
}

// ServeMetrics serves the metrics of the recorder on addr until ctx is done.
// It returns the address it listens on.
func ServeMetrics(ctx context.Context, addr string, r *metrics.Recorder, log *zap.Logger) (string, error) {
	if log == nil {
		log = zap.NewNop()
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("sim: could not listen on %q: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		err := srv.Serve(lis)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()
	log.Info("serving metrics", zap.String("addr", lis.Addr().String()))
	return lis.Addr().String(), nil
}
