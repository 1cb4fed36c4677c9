package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/kmccarthy/riskgate/internal/repositories"
)

// RetentionManager periodically removes login events older than the
// configured retention window. Feature counters are append-only and are
// not touched; only the raw event rows age out.
type RetentionManager struct {
	historyRepo *repositories.HistoryRepository
	logger      *slog.Logger
	interval    time.Duration
	retention   time.Duration
	stopCh      chan struct{}
}

// NewRetentionManager creates a new retention manager
func NewRetentionManager(
	historyRepo *repositories.HistoryRepository,
	logger *slog.Logger,
	interval time.Duration,
	retention time.Duration,
) *RetentionManager {
	return &RetentionManager{
		historyRepo: historyRepo,
		logger:      logger,
		interval:    interval,
		retention:   retention,
		stopCh:      make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (rm *RetentionManager) Start(ctx context.Context) {
	ticker := time.NewTicker(rm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	rm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			rm.runCleanup(ctx)
		case <-rm.stopCh:
			rm.logger.Info("retention manager stopped")
			return
		case <-ctx.Done():
			rm.logger.Info("retention manager context cancelled")
			return
		}
	}
}

// runCleanup removes aged-out login events from the database
func (rm *RetentionManager) runCleanup(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-rm.retention)

	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rowsDeleted, err := rm.historyRepo.DeleteEventsBefore(cleanupCtx, cutoff)
	if err != nil {
		rm.logger.Error("failed to delete aged-out login events", slog.Any("error", err))
		return
	}

	if rowsDeleted > 0 {
		rm.logger.Info("login event retention cleanup completed",
			slog.Int64("rows_deleted", rowsDeleted),
			slog.Time("cutoff", cutoff))
	}
}

// Stop signals the retention manager to stop
func (rm *RetentionManager) Stop() {
	close(rm.stopCh)
}
