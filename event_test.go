package mutarget

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRetention(t *testing.T) {
	var r Retention
	assert.Equal(t, Undecided, r.State())
	assert.False(t, r.Keep())

	r.Signal()
	r.Signal()
	assert.Equal(t, Keep, r.State())
	assert.Equal(t, 2, r.Signals())

	r.Reset()
	assert.Equal(t, Undecided, r.State())
	assert.Zero(t, r.Signals())
	assert.Equal(t, "keep", Keep.String())
}

func TestRetentionFilter(t *testing.T) {
	for _, tc := range []struct {
		name    string
		signals int
		keep    bool
	}{
		{"no-muon", 0, false},
		{"one-step", 1, true},
		{"many-steps", 25, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			kept := 0
			run := NewRunContext(0, newLayers(t, 1), keeperFunc(func() { kept++ }))
			f := NewRetentionFilter()

			// leftover state from a previous event must not leak.
			run.Retention.Signal()

			evt := &Event{ID: 3}
			f.EventStart(run, evt)
			for i := 0; i < tc.signals; i++ {
				run.Retention.Signal()
			}
			f.EventStop(run, evt)

			want := 0
			if tc.keep {
				want = 1
			}
			assert.Equal(t, want, kept)
			assert.Equal(t, int64(1), f.Seen())
			assert.Equal(t, int64(want), f.Kept())
		})
	}
}

func TestRetentionFilterNilKeeper(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	run := NewRunContext(0, newLayers(t, 1), nil)
	f := NewRetentionFilter(WithLogger(zap.New(core)))

	evt := &Event{ID: 9}
	f.EventStart(run, evt)
	run.Retention.Signal()
	f.EventStop(run, evt)

	assert.Equal(t, int64(1), f.Kept())
	assert.Equal(t, 1, logs.Len())
}
