// Package usecase contains application business logic.
package usecase

import (
	"context"
	"errors"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eliteGoblin/filewatchd/internal/domain"
	"github.com/eliteGoblin/filewatchd/internal/policy"
)

// SweeperImpl implements domain.Sweeper. One call to Sweep is one pass over
// the direct entries of the target; subdirectories are never entered.
type SweeperImpl struct {
	fs     domain.FileSystem
	clock  domain.Clock
	policy domain.RetentionPolicy
	dryRun bool
	logger *zap.Logger
}

// NewSweeper creates a retention sweeper.
func NewSweeper(
	fs domain.FileSystem,
	clock domain.Clock,
	p domain.RetentionPolicy,
	logger *zap.Logger,
) *SweeperImpl {
	return &SweeperImpl{
		fs:     fs,
		clock:  clock,
		policy: p,
		logger: logger,
	}
}

// NewDryRunSweeper creates a sweeper that reports expired files without deleting them.
func NewDryRunSweeper(
	fs domain.FileSystem,
	clock domain.Clock,
	p domain.RetentionPolicy,
	logger *zap.Logger,
) *SweeperImpl {
	s := NewSweeper(fs, clock, p, logger)
	s.dryRun = true
	return s
}

// Sweep deletes every regular file in target whose age is at least the
// lifespan. Per-entry failures are logged and recorded, never returned.
// Cancellation is only observed between entries.
func (s *SweeperImpl) Sweep(ctx context.Context, target domain.WatchTarget) (result domain.SweepResult) {
	start := s.clock.Now()

	result = domain.SweepResult{
		ID:        uuid.NewString(),
		Target:    target,
		StartedAt: start,
		Deleted:   make([]string, 0),
		DryRun:    s.dryRun,
	}
	defer func() {
		result.Duration = s.clock.Now().Sub(start)
	}()

	entries, err := s.fs.ReadDir(target.String())
	if err != nil {
		s.logger.Error("error while opening directory",
			zap.String("dir", target.String()),
			zap.Error(err))
		result.Errors = append(result.Errors, domain.SweepError{Op: domain.OpReadDir, Path: target.String(), Err: err})
		return result
	}
	result.Scanned = len(entries)

	for _, entry := range entries {
		if ctx.Err() != nil {
			s.logger.Debug("sweep interrupted", zap.String("sweep_id", result.ID))
			break
		}

		if entry.Kind != domain.EntryRegular {
			result.Skipped++
			continue
		}

		path := target.Join(entry.Name)

		meta, err := s.fs.Stat(path)
		if err != nil {
			s.logger.Error("problem reading file",
				zap.String("file", entry.Name),
				zap.Int("errno", errnoOf(err)),
				zap.Error(err))
			result.Errors = append(result.Errors, domain.SweepError{Op: domain.OpStat, Path: path, Err: err})
			continue
		}

		// Evaluated per entry so a long sweep does not use a stale time.
		age := policy.Age(s.clock.Now(), meta)
		if !policy.IsExpired(s.policy, age) {
			result.Retained++
			continue
		}

		if s.dryRun {
			s.logger.Info("would delete file",
				zap.String("path", path),
				zap.Duration("age", age))
			result.Deleted = append(result.Deleted, path)
			result.BytesReclaimed += meta.Size
			continue
		}

		s.logger.Info("deleting file",
			zap.String("path", path),
			zap.Duration("age", age))

		if err := s.fs.Remove(path); err != nil {
			s.logger.Error("failed to delete file",
				zap.String("path", path),
				zap.Error(err))
			result.Errors = append(result.Errors, domain.SweepError{Op: domain.OpRemove, Path: path, Err: err})
			continue
		}

		result.Deleted = append(result.Deleted, path)
		result.BytesReclaimed += meta.Size
	}

	return result
}

// errnoOf extracts the OS error number, or 0 if err carries none.
func errnoOf(err error) int {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return int(errno)
	}
	return 0
}

// Ensure SweeperImpl implements domain.Sweeper.
var _ domain.Sweeper = (*SweeperImpl)(nil)
