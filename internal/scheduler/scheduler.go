// Package scheduler runs the periodic maintenance jobs: index refresh, temp
// cleanup, and state save. Jobs are registered on a cron runner with @every
// specs derived from the configured intervals.
package scheduler

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one named periodic task.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func() error
}

// Scheduler wraps a cron runner with panic isolation and error logging so no
// job can take the process down.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// New creates a scheduler.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:   cron.New(),
		logger: logger.With(slog.String("component", "scheduler")),
	}
}

// Add registers a job. Jobs with a non-positive interval are skipped.
func (s *Scheduler) Add(job Job) error {
	if job.Interval <= 0 {
		s.logger.Debug("skipping disabled job", slog.String("job", job.Name))
		return nil
	}

	spec := fmt.Sprintf("@every %s", job.Interval)
	_, err := s.cron.AddFunc(spec, s.wrap(job))
	if err != nil {
		return fmt.Errorf("scheduling %s: %w", job.Name, err)
	}
	s.logger.Info("job scheduled",
		slog.String("job", job.Name),
		slog.Duration("interval", job.Interval))
	return nil
}

// wrap isolates panics and logs errors per run.
func (s *Scheduler) wrap(job Job) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("job panicked",
					slog.String("job", job.Name),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())))
			}
		}()

		started := time.Now()
		if err := job.Run(); err != nil {
			s.logger.Error("job failed",
				slog.String("job", job.Name),
				slog.String("error", err.Error()))
			return
		}
		s.logger.Debug("job finished",
			slog.String("job", job.Name),
			slog.Duration("elapsed", time.Since(started)))
	}
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
