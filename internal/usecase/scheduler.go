package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"NewsHarvester/internal/domain"
	"NewsHarvester/internal/ports"
)

// Scheduler wires the cron driver with the pipeline jobs.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	jobs     []Job
	logger   *slog.Logger
}

// NewScheduler runs jobs in order on every trigger; JobToday alone when jobs is empty.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, jobs []Job, logger *slog.Logger) *Scheduler {
	if len(jobs) == 0 {
		jobs = []Job{JobToday}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{driver: driver, pipeline: pipeline, jobs: jobs, logger: logger}
}

// Start registers the jobs with the provided driver.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}
	return s.driver.Start(ctx, func(trigger time.Time) {
		s.Trigger(ctx, trigger)
	})
}

// Trigger executes every job once. A busy guard drops the job.
func (s *Scheduler) Trigger(ctx context.Context, trigger time.Time) {
	for _, job := range s.jobs {
		err := s.pipeline.Execute(ctx, job)
		switch {
		case errors.Is(err, domain.ErrPipelineBusy):
			s.logger.Info("scheduled job dropped", "job", job, "trigger", trigger)
		case err != nil:
			s.logger.Error("scheduled job failed", "job", job, "trigger", trigger, "error", err)
		}
	}
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Stop(ctx)
}
