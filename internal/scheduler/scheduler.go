// Package scheduler runs periodic maintenance jobs on gocron.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"geminichat/internal/logging"
)

// Job is one run of a periodic task. The context is cancelled when the scheduler stops.
type Job func(ctx context.Context) error

type Scheduler struct {
	scheduler gocron.Scheduler
	ctx       context.Context
	cancel    context.CancelFunc
	log       *slog.Logger
}

// New creates a scheduler in UTC. Jobs start running after Start.
func New(log *slog.Logger) (*Scheduler, error) {
	if log == nil {
		log = slog.Default()
	}
	s, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(logging.SchedulerLogger{Logger: log}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{scheduler: s, ctx: ctx, cancel: cancel, log: log}, nil
}

// Every schedules job at a fixed interval. A run still in progress when the next is due
// pushes the next run back instead of overlapping.
func (s *Scheduler) Every(name string, interval time.Duration, job Job) error {
	if name == "" {
		return errors.New("empty job name")
	}
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}
	if job == nil {
		return errors.New("nil job function")
	}

	run := func() {
		start := time.Now()
		if err := job(s.ctx); err != nil && s.ctx.Err() == nil {
			s.log.Error("scheduled_job_failed", "job_name", name, "error", err)
			return
		}
		if d := time.Since(start); d > interval {
			s.log.Warn("slow_scheduled_job", "job_name", name, "duration_ms", d.Milliseconds())
		}
	}

	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(run),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}
	s.log.Info("job_scheduled", "job_name", name, "interval", interval)
	return nil
}

func (s *Scheduler) Start() {
	s.scheduler.Start()
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.cancel()
	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to shutdown scheduler: %w", err)
	}
	return nil
}
