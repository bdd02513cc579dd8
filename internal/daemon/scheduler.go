// Package daemon implements process detachment and the sweep loop.
package daemon

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/eliteGoblin/filewatchd/internal/domain"
	"github.com/eliteGoblin/filewatchd/internal/policy"
)

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	CheckInterval time.Duration // Pause after each sweep
}

// DefaultSchedulerConfig returns default scheduler configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		CheckInterval: policy.DefaultCheckInterval,
	}
}

// Scheduler runs the sweeper, then idles for the check interval, forever.
// The interval is measured from the end of a sweep, so a slow filesystem
// delays the next sweep rather than piling sweeps up.
type Scheduler struct {
	config   SchedulerConfig
	sweeper  domain.Sweeper
	recorder domain.SweepRecorder
	target   domain.WatchTarget
	logger   *zap.Logger
}

// NewScheduler creates a new scheduler. recorder may be nil.
func NewScheduler(
	config SchedulerConfig,
	sweeper domain.Sweeper,
	recorder domain.SweepRecorder,
	target domain.WatchTarget,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		config:   config,
		sweeper:  sweeper,
		recorder: recorder,
		target:   target,
		logger:   logger,
	}
}

// Run starts the sweep loop.
// This blocks until context is canceled; with a background context it never returns.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("filewatchd started",
		zap.String("watching", s.target.String()),
		zap.Duration("interval", s.config.CheckInterval))

	for {
		s.runSweep(ctx)

		timer := time.NewTimer(s.config.CheckInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("filewatchd shutting down")
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// runSweep executes one sweep and logs a summary when anything happened.
func (s *Scheduler) runSweep(ctx context.Context) {
	result := s.sweeper.Sweep(ctx, s.target)

	if s.recorder != nil {
		s.recorder.ObserveSweep(result)
	}

	if !result.HasActivity() {
		s.logger.Debug("sweep completed", zap.String("sweep_id", result.ID))
		return
	}

	s.logger.Info("sweep completed",
		zap.String("sweep_id", result.ID),
		zap.Int("scanned", result.Scanned),
		zap.Int("deleted", len(result.Deleted)),
		zap.String("reclaimed", humanize.Bytes(uint64(result.BytesReclaimed))),
		zap.Int("errors", len(result.Errors)),
		zap.Duration("duration", result.Duration))
}
