package transport

import (
	"context"
	"fmt"
	"runtime"

	"github.com/sbinet/mutarget"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Pool simulates events on a set of worker goroutines and replays them,
// in event order, on the calling goroutine.
//
// Pool is the Keeper of the runs it drives: the trajectories of kept events
// are handed to the trajectory writer, if any.
type Pool struct {
	eng     *Engine
	workers int
	traj    TrajectoryWriter
	log     *zap.Logger

	keep  bool
	kept  int
	steps int
}

// NewPool creates a pool with the given number of workers.
// A non-positive number of workers selects runtime.NumCPU.
func NewPool(eng *Engine, workers int, traj TrajectoryWriter, log *zap.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pool{
		eng:     eng,
		workers: workers,
		traj:    traj,
		log:     log,
	}
}

func (p *Pool) KeepTheCurrentEvent() { p.keep = true }

// Kept returns the number of kept events.
func (p *Pool) Kept() int { return p.kept }

// Steps returns the number of replayed steps.
func (p *Pool) Steps() int { return p.steps }

// Run simulates events [first, first+n) and replays them on d.
// The run must have been started on d.
func (p *Pool) Run(ctx context.Context, run *mutarget.RunContext, d *mutarget.Dispatcher, first, n int) error {
	if n < 0 {
		return fmt.Errorf("%w: invalid number of events (%d)", mutarget.ErrConfig, n)
	}

	grp, ctx := errgroup.WithContext(ctx)
	ievts := make(chan int)
	out := make(chan *Transcript, p.workers)

	grp.Go(func() error {
		defer close(ievts)
		for i := first; i < first+n; i++ {
			select {
			case ievts <- i:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
	for w := 0; w < p.workers; w++ {
		grp.Go(func() error {
			for ievt := range ievts {
				tr, err := p.eng.Simulate(ievt)
				if err != nil {
					return fmt.Errorf("transport: could not simulate event %d: %w", ievt, err)
				}
				select {
				case out <- tr:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
	}

	errc := make(chan error, 1)
	go func() {
		errc <- grp.Wait()
		close(out)
	}()

	var (
		next    = first
		pending = make(map[int]*Transcript)
		werr    error
	)
	for tr := range out {
		pending[tr.Event] = tr
		for {
			tr, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			if err := p.replay(run, d, tr); err != nil && werr == nil {
				werr = err
			}
		}
	}

	if err := <-errc; err != nil {
		return err
	}
	if werr != nil {
		return werr
	}
	p.log.Debug("events simulated",
		zap.Int("first", first),
		zap.Int("events", n),
		zap.Int("workers", p.workers),
		zap.Int("kept", p.kept),
		zap.Int("steps", p.steps),
	)
	return nil
}

func (p *Pool) replay(run *mutarget.RunContext, d *mutarget.Dispatcher, tr *Transcript) error {
	p.keep = false
	tr.Replay(run, d)
	p.steps += tr.Steps()
	if !p.keep {
		return nil
	}
	p.kept++
	if p.traj == nil {
		return nil
	}
	err := p.traj.WriteTrajectories(tr.Event, tr.Trajectories)
	if err != nil {
		return fmt.Errorf("transport: could not write trajectories of event %d: %w", tr.Event, err)
	}
	return nil
}

var _ mutarget.Keeper = (*Pool)(nil)
