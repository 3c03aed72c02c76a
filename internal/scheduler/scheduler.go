package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// TickFunc is invoked on every scheduled tick.
type TickFunc func(ctx context.Context, tick time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	Cron         string
	AlignToStart bool
	RunOnStart   bool
	StartupDelay time.Duration
}

// Scheduler drives serial execution of polling jobs. A tick never overlaps the previous one:
// the next wait only starts once the tick function returns.
type Scheduler struct {
	opts   Options
	cron   cron.Schedule
	logger zerolog.Logger
}

// New constructs a Scheduler instance. A cron expression, when set, takes precedence over Interval.
func New(opts Options, logger zerolog.Logger) (*Scheduler, error) {
	s := &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
	if spec := strings.TrimSpace(opts.Cron); spec != "" {
		sched, err := cron.ParseStandard(spec)
		if err != nil {
			return nil, fmt.Errorf("parse scheduler.cron %q: %w", spec, err)
		}
		s.cron = sched
		return s, nil
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("scheduler interval must be positive")
	}
	return s, nil
}

// Run blocks, invoking the tick function at each scheduled time until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if s.opts.RunOnStart {
		s.execute(ctx, tick, time.Now().UTC())
	}

	next := s.nextTick(time.Now().UTC())
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		delay := time.Until(next)
		if delay < 0 {
			// A tick overran one or more slots; skip them instead of bursting.
			skippedFrom := next
			next = s.nextTick(time.Now().UTC())
			delay = time.Until(next)
			s.logger.Warn().Time("missed", skippedFrom).Time("next_tick", next).Msg("tick overran schedule; skipping missed slots")
		}

		timer := time.NewTimer(delay)
		s.logger.Debug().Time("next_tick", next).Msg("waiting for next tick")

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			timer.Stop()
		}

		s.execute(ctx, tick, s.bucketStart(next))
		next = s.nextTick(next)
	}
}

func (s *Scheduler) execute(ctx context.Context, tick TickFunc, at time.Time) {
	s.logger.Info().Time("tick", at).Msg("executing scheduled tick")
	if err := tick(ctx, at); err != nil {
		s.logger.Error().Err(err).Time("tick", at).Msg("tick execution failed")
	}
}

func (s *Scheduler) nextTick(now time.Time) time.Time {
	if s.cron != nil {
		return s.cron.Next(now)
	}
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
	if s.cron != nil || !s.opts.AlignToStart {
		return t
	}
	return t.Truncate(s.opts.Interval)
}
