package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-settlement/pkg/logger"
	"github.com/angelmondragon/storefront-settlement/pkg/metrics"
)

const defaultInterval = 15 * time.Minute

// ServiceParams configure the settlement worker loop.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
	// JobTimeout bounds a single job run. Zero leaves jobs unbounded.
	JobTimeout time.Duration
}

// Service ticks at Interval and runs every job whose cadence has elapsed,
// holding the distributed lock for the whole cycle.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	lock       Lock
	metrics    *metrics.CronJobMetrics
	interval   time.Duration
	jobTimeout time.Duration
	now        func() time.Time

	mu      sync.Mutex
	lastRun map[string]time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Lock == nil:
		return nil, errors.New("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:       params.Logger,
		registry:   registry,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   interval,
		jobTimeout: params.JobTimeout,
		now:        time.Now,
		lastRun:    map[string]time.Time{},
	}, nil
}

// Run loops until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	if err := s.runCycle(ctx, false); err != nil {
		s.logg.Error(ctx, "settlement cycle failed", err)
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "settlement worker stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := s.runCycle(ctx, false); err != nil {
				s.logg.Error(ctx, "settlement cycle failed", err)
			}
		}
	}
}

// RunOnce runs every registered job a single time, ignoring cadence, and
// returns the combined job errors.
func (s *Service) RunOnce(ctx context.Context) error {
	return s.runCycle(ctx, true)
}

func (s *Service) runCycle(ctx context.Context, force bool) error {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Info(ctx, "settlement cycle held by another replica; skipping")
		return nil
	}
	defer func() {
		if relErr := s.lock.Release(ctx); relErr != nil {
			s.logg.Error(ctx, "failed to release cron lock", relErr)
		}
	}()

	var errs error
	ran := 0
	for _, e := range s.registry.snapshot() {
		if !force && !s.due(e) {
			continue
		}
		ran++
		errs = multierr.Append(errs, s.runJob(ctx, e.job))
	}
	s.logg.Info(s.logg.WithField(ctx, "jobs_run", ran), "settlement cycle complete")
	return errs
}

func (s *Service) due(e entry) bool {
	if e.every == 0 {
		return true
	}
	s.mu.Lock()
	last, ok := s.lastRun[e.job.Name()]
	s.mu.Unlock()
	return !ok || s.now().Sub(last) >= e.every
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": job.Name(), "event": "cron.job"})
	if s.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(jobCtx, s.jobTimeout)
		defer cancel()
	}

	start := s.now()
	s.mu.Lock()
	s.lastRun[job.Name()] = start
	s.mu.Unlock()

	err := job.Run(jobCtx)
	duration := time.Since(start)
	s.metrics.ObserveRun(job.Name(), duration, start.Add(duration), err)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		return fmt.Errorf("%s: %w", job.Name(), err)
	}
	s.logg.Info(jobCtx, "job completed")
	return nil
}
