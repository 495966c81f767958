package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked once per period with the scheduled tick time.
type TickFunc func(ctx context.Context, tick time.Time) error

// ErrStopped is returned by Run when the tick function asked to stop.
var ErrStopped = errors.New("scheduler stopped")

type haltError struct {
	err error
}

func (h haltError) Error() string { return "halt: " + h.err.Error() }
func (h haltError) Unwrap() error { return h.err }

// Halt wraps err so that Run returns it instead of logging it and continuing.
// Halt(nil) ends Run with ErrStopped.
func Halt(err error) error {
	if err == nil {
		err = ErrStopped
	}
	return haltError{err: err}
}

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	AlignToStart bool
	StartupDelay time.Duration
}

// Scheduler runs a tick function at a fixed period. The period is measured
// from tick to tick, so the sleep shrinks by however long the tick took and a
// tick that overruns skips the missed slots instead of bursting.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Interval reports the configured period.
func (s *Scheduler) Interval() time.Duration {
	return s.opts.Interval
}

// Run blocks, invoking tick every interval until ctx is cancelled or tick
// returns a Halt error. The first tick fires immediately after StartupDelay.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		if err := sleep(ctx, s.opts.StartupDelay); err != nil {
			return err
		}
	}

	next := s.firstTick(time.Now())
	for {
		if delay := time.Until(next); delay > 0 {
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		if err := tick(ctx, next); err != nil {
			var halt haltError
			if errors.As(err, &halt) {
				return halt.err
			}
			s.logger.Error().Err(err).Time("tick", next).Msg("tick execution failed")
		}

		next = next.Add(s.opts.Interval)
		if now := time.Now(); next.Before(now) {
			missed := now.Sub(next)/s.opts.Interval + 1
			s.logger.Debug().Int64("missed", int64(missed)).Msg("tick overran period")
			next = next.Add(missed * s.opts.Interval)
		}
	}
}

func (s *Scheduler) firstTick(now time.Time) time.Time {
	if !s.opts.AlignToStart {
		return now
	}
	bucket := now.Truncate(s.opts.Interval)
	if bucket.Before(now) {
		bucket = bucket.Add(s.opts.Interval)
	}
	return bucket
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
