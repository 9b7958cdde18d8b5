// Package scheduler repeats the forcing cycle on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// Runner executes one forcing cycle.
type Runner interface {
	RunOnce(ctx context.Context) error
}

// Scheduler runs a Runner immediately and then every interval.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    Runner
	interval  time.Duration
	logger    *slog.Logger
}

// New creates a Scheduler. Nothing runs until Start.
func New(runner Runner, interval time.Duration, logger *slog.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	// A cycle that outlasts the interval skips the next tick instead of overlapping it.
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		runner:    runner,
		interval:  interval,
		logger:    logger,
	}
}

// Start schedules the cycle and starts the scheduler. Each cycle runs with
// ctx, so cancelling ctx aborts an in-flight cycle.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return errors.New("scheduler: interval must be positive")
	}

	_, err := s.scheduler.Every(s.interval).Do(func() {
		if ctx.Err() != nil {
			return
		}
		began := time.Now()
		if err := s.runner.RunOnce(ctx); err != nil {
			s.logger.Error("forcing cycle failed", "error", err, "duration", time.Since(began))
			return
		}
		s.logger.Info("forcing cycle completed", "duration", time.Since(began))
	})
	if err != nil {
		return err
	}

	s.logger.Info("scheduler started", "interval", s.interval)
	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and waits for a running cycle to return.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}
