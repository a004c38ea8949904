// Package pipeline runs the background jobs of the tracker.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/surebet/internal/domain"
)

// archiveLockKey serializes archive runs across instances.
const archiveLockKey = "archive:bets"

// ArchiveConfig controls the archive job.
type ArchiveConfig struct {
	RetentionDays int
	Interval      time.Duration
	LockTTL       time.Duration
}

// Archiver copies settled pairs older than the retention window to cold
// storage. When a LockManager is set only one instance runs at a time.
type Archiver struct {
	blobArchiver domain.Archiver
	locks        domain.LockManager
	cfg          ArchiveConfig
	logger       *slog.Logger
	now          func() time.Time
}

// NewArchiver creates a new Archiver. locks may be nil.
func NewArchiver(blobArchiver domain.Archiver, locks domain.LockManager, cfg ArchiveConfig, logger *slog.Logger) *Archiver {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	return &Archiver{
		blobArchiver: blobArchiver,
		locks:        locks,
		cfg:          cfg,
		logger:       logger.With(slog.String("component", "archiver")),
		now:          time.Now,
	}
}

// Cutoff is the creation time before which settled pairs are archived.
func (a *Archiver) Cutoff() time.Time {
	return a.now().UTC().Add(-time.Duration(a.cfg.RetentionDays) * 24 * time.Hour)
}

// RunOnce executes a single archive run and returns the number of pairs
// written. A run held by another instance is skipped without error.
func (a *Archiver) RunOnce(ctx context.Context) (int64, error) {
	if a.locks != nil {
		unlock, err := a.locks.Acquire(ctx, archiveLockKey, a.cfg.LockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			a.logger.InfoContext(ctx, "archive run skipped, lock held elsewhere")
			return 0, nil
		}
		if err != nil {
			return 0, fmt.Errorf("pipeline: acquire archive lock: %w", err)
		}
		defer unlock()
	}

	cutoff := a.Cutoff()
	a.logger.InfoContext(ctx, "starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.cfg.RetentionDays),
	)

	n, err := a.blobArchiver.ArchiveSettled(ctx, cutoff)
	if err != nil {
		return n, fmt.Errorf("pipeline: archive pairs before %v: %w", cutoff, err)
	}
	a.logger.InfoContext(ctx, "archive run complete", slog.Int64("pairs_archived", n))
	return n, nil
}

// Run archives immediately and then every Interval until ctx is cancelled.
// Failed runs are logged and retried on the next tick.
func (a *Archiver) Run(ctx context.Context) error {
	if a.cfg.Interval <= 0 {
		return fmt.Errorf("pipeline: archive interval must be positive")
	}
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := a.RunOnce(ctx); err != nil && ctx.Err() == nil {
			a.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			a.logger.InfoContext(ctx, "archiver stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
