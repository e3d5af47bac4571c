package mutarget

import (
	"go.uber.org/zap"
)

type options struct {
	log      *zap.Logger
	policy   EdgePolicy
	binnings []Binning
	stopZ    StopZMode
	checks   bool
}

func newOptions(opts []Option) options {
	o := options{
		log:      zap.NewNop(),
		policy:   EdgeOutflow,
		binnings: DefaultBinnings(),
		stopZ:    StopZShared,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option configures the core components.
// Each component only reads the options it needs.
type Option func(*options)

// WithLogger sets the logger used for diagnostic records.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithEdgePolicy sets the histogram out-of-range policy.
func WithEdgePolicy(p EdgePolicy) Option {
	return func(o *options) { o.policy = p }
}

// WithBinnings replaces the booked histograms.
func WithBinnings(bs ...Binning) Option {
	return func(o *options) { o.binnings = append([]Binning(nil), bs...) }
}

// WithStopZMode selects how the track recorder fills stop-Z.
func WithStopZMode(m StopZMode) Option {
	return func(o *options) { o.stopZ = m }
}

// WithOrderChecks enables callback-order assertions in the dispatcher.
func WithOrderChecks(v bool) Option {
	return func(o *options) { o.checks = v }
}
