// Package scheduler repeats ingestion runs on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/couchcryptid/meteo-ingest-service/internal/observability"
	"github.com/couchcryptid/meteo-ingest-service/internal/report"
)

// Runner executes one ingestion run.
type Runner interface {
	RunOnce(ctx context.Context) (report.Report, error)
}

// Scheduler triggers a Runner every interval, starting immediately. A run
// still in progress when the next tick fires makes that tick a no-op.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    Runner
	interval  time.Duration
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// New creates a Scheduler.
func New(runner Runner, interval time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		runner:    runner,
		interval:  interval,
		logger:    logger,
		metrics:   metrics,
	}
}

// Start schedules the run job and starts the scheduler. Runs receive ctx, so
// cancelling it aborts the run in progress.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return errors.New("schedule interval must be positive")
	}

	_, err := s.scheduler.Every(s.interval).SingletonMode().Do(func() {
		if ctx.Err() != nil {
			return
		}
		s.logger.Info("scheduled run starting")
		rep, err := s.runner.RunOnce(ctx)
		if err != nil {
			s.logger.Error("scheduled run failed", "run_id", rep.RunID, "error", err)
			return
		}
		s.logger.Info("scheduled run finished", "run_id", rep.RunID, "status", rep.Status())
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.metrics.SchedulerActive.Set(1)
	s.logger.Info("scheduler started", "interval", s.interval)
	return nil
}

// Stop stops the scheduler and waits for a running job to return.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
	s.metrics.SchedulerActive.Set(0)
}
