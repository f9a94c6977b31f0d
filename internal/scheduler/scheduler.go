// Package scheduler runs the periodic background jobs of the service.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/okian/aqicast/internal/adapters/geo"
	"github.com/okian/aqicast/pkg/logger"
	"github.com/okian/aqicast/pkg/metrics"
)

const refreshTimeout = 30 * time.Second

// Job tags.
const (
	TagSystemMetrics   = "system-metrics"
	TagLocationRefresh = "location-refresh"
)

// SystemMetrics samples runtime gauges on its own refresh interval.
type SystemMetrics interface {
	RefreshSystem()
	RefreshInterval() time.Duration
}

// Refresher re-resolves a cached location.
type Refresher interface {
	Refresh(ctx context.Context) (geo.Location, error)
}

// Scheduler owns a gocron scheduler and the jobs registered on it.
type Scheduler struct {
	scheduler       *gocron.Scheduler
	logger          logger.Logger
	system          SystemMetrics
	refresher       Refresher
	refreshInterval time.Duration

	mu      sync.Mutex
	started bool
}

// Option applies a configuration option to the Scheduler.
type Option func(*Scheduler)

// WithSystemMetrics replaces the process wide metrics manager.
func WithSystemMetrics(m SystemMetrics) Option {
	return func(s *Scheduler) {
		if m != nil {
			s.system = m
		}
	}
}

// WithLocationRefresh keeps r warm by refreshing it every d.
func WithLocationRefresh(r Refresher, d time.Duration) Option {
	return func(s *Scheduler) {
		if r != nil && d > 0 {
			s.refresher = r
			s.refreshInterval = d
		}
	}
}

// WithLogger sets a custom logger for the scheduler.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Scheduler. Jobs are registered by Start.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		logger:    logger.Nop(),
		system:    metrics.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.scheduler.SingletonModeAll()
	return s
}

// Start registers the jobs and starts the scheduler. Each job runs once
// immediately and then on its interval.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}

	interval := s.MetricsInterval()
	if _, err := s.scheduler.Every(interval).Tag(TagSystemMetrics).Do(s.system.RefreshSystem); err != nil {
		return err
	}

	if s.refresher != nil {
		_, err := s.scheduler.Every(s.refreshInterval).Tag(TagLocationRefresh).Do(func() {
			s.refreshLocation(ctx)
		})
		if err != nil {
			return err
		}
	}

	s.scheduler.StartAsync()
	s.started = true
	s.logger.Info(ctx, "scheduler started",
		logger.Int("jobs", s.scheduler.Len()),
		logger.Duration("metrics_interval", interval),
	)
	return nil
}

func (s *Scheduler) refreshLocation(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	loc, err := s.refresher.Refresh(ctx)
	if err != nil {
		s.logger.Warn(ctx, "location refresh failed", logger.Error(err))
		return
	}
	s.logger.Debug(ctx, "location refreshed", logger.String("city", loc.City))
}

// MetricsInterval is the period of the runtime gauge job.
func (s *Scheduler) MetricsInterval() time.Duration {
	return s.system.RefreshInterval()
}

// Len reports how many jobs are registered.
func (s *Scheduler) Len() int {
	return s.scheduler.Len()
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		s.scheduler.Stop()
		s.started = false
	}
}
