package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	robfigcron "github.com/robfig/cron/v3"

	"github.com/angelmondragon/vowvendors-backend/pkg/logger"
	"github.com/angelmondragon/vowvendors-backend/pkg/metrics"
)

const defaultSchedule = "@daily"

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	// Schedule is a standard five-field cron expression or a descriptor
	// such as @daily. Empty means @daily.
	Schedule   string
	RunOnStart bool
}

// Service executes registered cron jobs on a cron schedule.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	lock       Lock
	metrics    *metrics.CronJobMetrics
	spec       string
	schedule   robfigcron.Schedule
	runOnStart bool
	now        func() time.Time
}

// NewService builds a cron service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	spec := params.Schedule
	if spec == "" {
		spec = defaultSchedule
	}
	schedule, err := ParseSchedule(spec)
	if err != nil {
		return nil, err
	}
	return &Service{
		logg:       params.Logger,
		registry:   registry,
		lock:       params.Lock,
		metrics:    params.Metrics,
		spec:       spec,
		schedule:   schedule,
		runOnStart: params.RunOnStart,
		now:        time.Now,
	}, nil
}

// ParseSchedule parses a standard cron expression, descriptors included.
func ParseSchedule(spec string) (robfigcron.Schedule, error) {
	schedule, err := robfigcron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse cron schedule %q: %w", spec, err)
	}
	return schedule, nil
}

// NextRun reports when the schedule fires next after t.
func (s *Service) NextRun(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// Run starts the cron loop until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.runOnStart {
		if err := s.runCycle(ctx); err != nil {
			s.logg.Error(ctx, "scheduled run failed", err)
		}
	}

	for {
		next := s.NextRun(s.now())
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"schedule": s.spec,
			"next_run": next.UTC().Format(time.RFC3339),
		}), "waiting for next scheduled run")

		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logg.Info(ctx, "cron service context canceled")
			return ctx.Err()
		case <-timer.C:
			if err := s.runCycle(ctx); err != nil {
				s.logg.Error(ctx, "scheduled run failed", err)
			}
		}
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	err := WithLock(ctx, s.lock, func(ctx context.Context) error {
		s.logg.Info(ctx, "scheduled run starting")
		for _, job := range s.registry.Jobs() {
			s.runJob(ctx, job)
		}
		s.logg.Info(ctx, "scheduled run complete")
		return nil
	})
	if errors.Is(err, ErrLockHeld) {
		s.logg.Info(ctx, "another cron instance is running; skipping this cycle")
		return nil
	}
	return err
}

func (s *Service) runJob(ctx context.Context, job Job) {
	jobCtx := s.logg.WithField(ctx, "job", job.Name())
	jobCtx = s.logg.WithField(jobCtx, "event", "cron.job")
	s.logg.Info(jobCtx, "job start")
	start := time.Now()
	err := job.Run(jobCtx)
	duration := time.Since(start)
	s.metrics.ObserveDuration(job.Name(), duration)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		s.metrics.IncFailure(job.Name())
		return
	}
	s.logg.Info(jobCtx, "job completed")
	s.metrics.IncSuccess(job.Name())
}
