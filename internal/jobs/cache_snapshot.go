package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"oikos/lms/internal/config"
	"oikos/lms/internal/reconcile"
)

// StartCacheSnapshotJob periodically flushes the full in-memory state to
// the local cache so a crash between debounced writes loses at most one
// interval of changes. Returns immediately when the job is disabled.
func StartCacheSnapshotJob(ctx context.Context, cfg config.Config, rec *reconcile.Reconciler, log *zap.Logger) {
	if !cfg.SnapshotJobEnabled {
		return
	}
	interval := cfg.SnapshotInterval
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		log.Info("cache snapshot job started", zap.Duration("interval", interval))
		for {
			select {
			case <-ctx.Done():
				log.Info("cache snapshot job stopped")
				return
			case <-ticker.C:
				rec.SnapshotToCache(ctx)
			}
		}
	}()
}
