package workers

import (
	"context"
	"time"

	"chronos/internal/domain/regime"
	"chronos/pkg/errors"
)

// SnapshotWorker periodically flushes the in-memory regime snapshots to the
// shared cache so other processes can read them without touching the registry.
type SnapshotWorker struct {
	*BaseWorker
	service *regime.Service
	cache   regime.SnapshotCache
}

// NewSnapshotWorker creates a new snapshot flush worker
func NewSnapshotWorker(service *regime.Service, cache regime.SnapshotCache, interval time.Duration) *SnapshotWorker {
	return &SnapshotWorker{
		BaseWorker: NewBaseWorker("snapshot_flush", interval, true),
		service:    service,
		cache:      cache,
	}
}

// Run flushes all current snapshots
func (w *SnapshotWorker) Run(ctx context.Context) error {
	start := time.Now()

	var failed int
	snapshots := w.service.Snapshots()
	for _, snapshot := range snapshots {
		if err := w.cache.SetSnapshot(ctx, snapshot); err != nil {
			failed++
			w.Log().Errorw("Failed to flush regime snapshot",
				"symbol", snapshot.Symbol,
				"error", err,
			)
		}
	}

	if failed > 0 {
		err := errors.Wrapf(errors.ErrInternal, "failed to flush %d of %d snapshots", failed, len(snapshots))
		w.RecordError(err, time.Since(start))
		return err
	}

	w.Log().Debugf("Flushed %d regime snapshots", len(snapshots))
	w.RecordRun(time.Since(start))
	return nil
}
