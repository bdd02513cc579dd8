package daemon

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/filewatchd/internal/domain"
)

// MetricsServer records sweeps and exposes them over HTTP.
type MetricsServer interface {
	domain.SweepRecorder
	Serve(ctx context.Context, addr string, logger *zap.Logger) error
}

// ServiceConfig describes one running daemon.
type ServiceConfig struct {
	Target      domain.WatchTarget
	Scheduler   SchedulerConfig
	MetricsAddr string // empty disables the endpoint
	AppVersion  string
	Mode        string
	Foreground  bool
}

// Service is the steady state of the daemon: it claims the watch target in
// the registry and hands control to the scheduler.
type Service struct {
	config   ServiceConfig
	sweeper  domain.Sweeper
	registry domain.DaemonRegistry
	metrics  MetricsServer
	logger   *zap.Logger
}

// NewService creates a new service. metrics may be nil.
func NewService(
	config ServiceConfig,
	sweeper domain.Sweeper,
	registry domain.DaemonRegistry,
	metrics MetricsServer,
	logger *zap.Logger,
) *Service {
	return &Service{
		config:   config,
		sweeper:  sweeper,
		registry: registry,
		metrics:  metrics,
		logger:   logger,
	}
}

// Run blocks until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	record := domain.DaemonRecord{
		PID:        os.Getpid(),
		WatchDir:   s.config.Target.String(),
		StartedAt:  time.Now(),
		AppVersion: s.config.AppVersion,
		Mode:       s.config.Mode,
		Foreground: s.config.Foreground,
	}
	if err := s.registry.Register(record); err != nil {
		s.logger.Error("failed to register daemon",
			zap.String("dir", s.config.Target.String()),
			zap.Error(err))
		return err
	}
	defer func() {
		if err := s.registry.Unregister(s.config.Target); err != nil {
			s.logger.Warn("failed to unregister daemon", zap.Error(err))
		}
	}()

	var recorder domain.SweepRecorder
	if s.metrics != nil && s.config.MetricsAddr != "" {
		recorder = s.metrics
		go func() {
			if err := s.metrics.Serve(ctx, s.config.MetricsAddr, s.logger); err != nil {
				s.logger.Error("metrics endpoint failed", zap.Error(err))
			}
		}()
	}

	scheduler := NewScheduler(s.config.Scheduler, s.sweeper, recorder, s.config.Target, s.logger)
	return scheduler.Run(ctx)
}
