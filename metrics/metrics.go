// Package metrics exposes run counters to prometheus.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sbinet/mutarget"
)

const namespace = "mutarget"

// Recorder counts events and steps as they are dispatched.
type Recorder struct {
	reg *prometheus.Registry

	runs     prometheus.Counter
	events   prometheus.Counter
	kept     prometheus.Counter
	steps    *prometheus.CounterVec
	stops    *prometheus.CounterVec
	duration prometheus.Histogram
	last     prometheus.Gauge

	start time.Time
}

// New creates a recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		reg: reg,
		runs: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of completed runs",
		}),
		events: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Total number of processed events",
		}),
		kept: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_kept_total",
			Help:      "Total number of events with at least one step of interest",
		}),
		steps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Total number of engine steps, by species",
		}, []string{"species"}),
		stops: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stops_total",
			Help:      "Total number of killed tracks, by species",
		}, []string{"species"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of the runs",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
		last: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_events",
			Help:      "Number of events of the last completed run",
		}),
	}
}

// Registry returns the registry holding the recorder metrics.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// Handler serves the recorder metrics.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

func (r *Recorder) RunStart(ctx context.Context, run *mutarget.RunContext) error {
	r.start = time.Now()
	return nil
}

func (r *Recorder) RunStop(ctx context.Context, run *mutarget.RunContext) error {
	r.runs.Inc()
	r.duration.Observe(time.Since(r.start).Seconds())
	r.last.Set(float64(run.Events))
	return nil
}

func (r *Recorder) EventStart(run *mutarget.RunContext, evt *mutarget.Event) {}

func (r *Recorder) EventStop(run *mutarget.RunContext, evt *mutarget.Event) {
	r.events.Inc()
	if run.Retention.Keep() {
		r.kept.Inc()
	}
}

func (r *Recorder) Step(run *mutarget.RunContext, rec *mutarget.StepRecord) {
	sp := string(rec.Species)
	r.steps.WithLabelValues(sp).Inc()
	if rec.IsStopped() {
		r.stops.WithLabelValues(sp).Inc()
	}
}

var (
	_ mutarget.Runner  = (*Recorder)(nil)
	_ mutarget.Eventer = (*Recorder)(nil)
	_ mutarget.Stepper = (*Recorder)(nil)
)
