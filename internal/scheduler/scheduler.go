package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// ErrAbort stops Run when returned (wrapped) from a tick. Any other tick
// error is logged and the loop continues.
var ErrAbort = errors.New("scheduler: abort")

// TickFunc is invoked once per interval.
type TickFunc func(ctx context.Context, at time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval time.Duration
	// AlignToStart fires on wall-clock multiples of Interval. Otherwise the
	// next tick starts Interval after the previous one finished.
	AlignToStart bool
	RunOnStart   bool
	StartupDelay time.Duration
}

// Scheduler drives sequential execution of sampling ticks. Ticks never
// overlap.
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

// Run blocks, invoking tick once per interval until ctx is cancelled or a
// tick returns ErrAbort.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		if err := sleep(ctx, s.opts.StartupDelay); err != nil {
			return err
		}
	}

	if s.opts.RunOnStart {
		if err := s.execute(ctx, s.bucketStart(time.Now().UTC()), tick); err != nil {
			return err
		}
	}

	for {
		next := s.nextTick(time.Now().UTC())
		s.logger.Debug().Time("next_tick", next).Msg("waiting for next tick")

		if err := sleep(ctx, time.Until(next)); err != nil {
			return err
		}

		if err := s.execute(ctx, s.bucketStart(next), tick); err != nil {
			return err
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, at time.Time, tick TickFunc) error {
	s.logger.Debug().Time("tick", at).Msg("executing scheduled tick")

	err := tick(ctx, at)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrAbort):
		s.logger.Error().Err(err).Time("tick", at).Msg("tick aborted scheduler")
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		s.logger.Error().Err(err).Time("tick", at).Msg("tick execution failed")
		return nil
	}
}

func (s *Scheduler) nextTick(now time.Time) time.Time {
	if !s.opts.AlignToStart {
		return now.Add(s.opts.Interval)
	}
	bucket := now.Truncate(s.opts.Interval)
	if !bucket.After(now) {
		bucket = bucket.Add(s.opts.Interval)
	}
	return bucket
}

func (s *Scheduler) bucketStart(t time.Time) time.Time {
	if !s.opts.AlignToStart {
		return t
	}
	return t.Truncate(s.opts.Interval)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
