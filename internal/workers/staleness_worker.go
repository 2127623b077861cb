package workers

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"

	"chronos/internal/domain/regime"
	"chronos/internal/metrics"
)

// StalePublisher emits the staleness event to downstream consumers.
type StalePublisher interface {
	PublishSymbolsStale(ctx context.Context, symbols []string, maxAge time.Duration) error
}

// StalenessWorker sweeps the regime registry for symbols whose last update
// is older than maxAge. A feed that stops producing bars leaves the last
// classification frozen; consumers must not keep trading on it.
type StalenessWorker struct {
	*BaseWorker
	service   *regime.Service
	publisher StalePublisher
	maxAge    time.Duration
}

// NewStalenessWorker creates a new staleness sweep worker. publisher may be
// nil when Kafka is disabled.
func NewStalenessWorker(service *regime.Service, publisher StalePublisher, interval, maxAge time.Duration) *StalenessWorker {
	return &StalenessWorker{
		BaseWorker: NewBaseWorker("staleness_sweep", interval, true),
		service:    service,
		publisher:  publisher,
		maxAge:     maxAge,
	}
}

// Run executes one sweep iteration
func (w *StalenessWorker) Run(ctx context.Context) error {
	start := time.Now()

	stale := w.service.StaleSymbols(w.maxAge)
	metrics.StaleSymbols.Set(float64(len(stale)))
	metrics.RegisteredSymbols.Set(float64(len(w.service.Symbols())))
	metrics.HistoryBufferBytes.Set(float64(w.service.EstimatedMemoryBytes()))

	if len(stale) == 0 {
		w.Log().Debugw("Staleness sweep clean",
			"symbols", len(w.service.Symbols()),
			"memory", humanize.Bytes(uint64(w.service.EstimatedMemoryBytes())),
		)
		w.RecordRun(time.Since(start))
		return nil
	}

	w.Log().Warnw("Stale regimes detected",
		"stale_symbols", stale,
		"max_age", w.maxAge,
		"memory", humanize.Bytes(uint64(w.service.EstimatedMemoryBytes())),
	)

	if w.publisher != nil {
		if err := w.publisher.PublishSymbolsStale(ctx, stale, w.maxAge); err != nil {
			w.RecordError(err, time.Since(start))
			return err
		}
	}

	w.RecordRun(time.Since(start))
	return nil
}
