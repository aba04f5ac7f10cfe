// Package scheduler runs the expiration sweep on a fixed period.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"machine-alert-backend/internal/calls"
	"machine-alert-backend/internal/clock"
)

// MaxInterval is the longest allowed period between sweeps.
const MaxInterval = 60 * time.Second

// ErrBusy is returned by Tick when another sweep holds the lock.
var ErrBusy = errors.New("sweep already in progress")

// Sweeper expires overdue calls.
type Sweeper interface {
	SweepExpired(ctx context.Context, now time.Time) (calls.SweepResult, error)
}

// Options configures a Scheduler.
type Options struct {
	Interval    time.Duration // default 30s
	TickTimeout time.Duration // budget of one sweep; defaults to Interval
	Locker      Locker        // optional cross-instance lock
	Clock       clock.Clock
	Logger      logrus.FieldLogger
}

// Scheduler triggers sweeps on a timer. Sweeps never overlap: within the
// process a mutex serializes them, across processes the optional Locker does.
type Scheduler struct {
	sweeper Sweeper
	opts    Options

	sweepMu sync.Mutex

	lifeMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Scheduler. It does not start it.
func New(sweeper Sweeper, opts Options) (*Scheduler, error) {
	if sweeper == nil {
		return nil, fmt.Errorf("sweeper is required")
	}
	if opts.Interval == 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.Interval < 0 || opts.Interval > MaxInterval {
		return nil, fmt.Errorf("sweep interval must be in (0, %s], got %s", MaxInterval, opts.Interval)
	}
	if opts.TickTimeout <= 0 {
		opts.TickTimeout = opts.Interval
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Scheduler{sweeper: sweeper, opts: opts}, nil
}

// Start runs one sweep immediately and then one per interval until ctx is
// done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("scheduler already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(runCtx, s.done)
	return nil
}

// Stop halts the timer and waits for an in-flight sweep to return.
func (s *Scheduler) Stop() {
	s.lifeMu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.lifeMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	s.opts.Logger.WithField("interval", s.opts.Interval).Info("Starting expiration sweep scheduler...")

	s.tickAndLog(ctx)

	timer := time.NewTimer(s.opts.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.opts.Logger.Info("Expiration sweep scheduler shutting down.")
			return
		case <-timer.C:
			s.tickAndLog(ctx)
			timer.Reset(s.opts.Interval)
		}
	}
}

func (s *Scheduler) tickAndLog(ctx context.Context) {
	_, err := s.Tick(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrBusy):
		s.opts.Logger.Debug("Skipping sweep: previous sweep still running")
	case ctx.Err() != nil:
		// Shutting down.
	default:
		s.opts.Logger.WithError(err).Error("Expiration sweep failed")
	}
}

// Tick runs a single sweep now. It returns ErrBusy without sweeping when
// another sweep is running here or on another instance.
func (s *Scheduler) Tick(ctx context.Context) (calls.SweepResult, error) {
	if !s.sweepMu.TryLock() {
		return calls.SweepResult{}, ErrBusy
	}
	defer s.sweepMu.Unlock()

	tickCtx, cancel := context.WithTimeout(ctx, s.opts.TickTimeout)
	defer cancel()

	if s.opts.Locker != nil {
		release, ok, err := s.opts.Locker.Acquire(tickCtx)
		if err != nil {
			return calls.SweepResult{}, err
		}
		if !ok {
			return calls.SweepResult{}, ErrBusy
		}
		defer func() {
			relCtx, relCancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer relCancel()
			if err := release(relCtx); err != nil {
				s.opts.Logger.WithError(err).Warn("Failed to release sweep lock")
			}
		}()
	}

	started := time.Now()
	result, err := s.sweeper.SweepExpired(tickCtx, s.opts.Clock.Now())
	if err != nil {
		return result, err
	}

	entry := s.opts.Logger.WithFields(logrus.Fields{
		"updated":  result.Updated,
		"failed":   len(result.Errors),
		"duration": time.Since(started),
	})
	for _, e := range result.Errors {
		s.opts.Logger.WithFields(logrus.Fields{"call_id": e.CallID, "error": e.Error}).Warn("Failed to expire call")
	}
	if result.Updated > 0 || len(result.Errors) > 0 {
		entry.Info("Expiration sweep finished.")
	} else {
		entry.Debug("Expiration sweep finished.")
	}
	return result, nil
}
