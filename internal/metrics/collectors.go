package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"chronos/internal/domain/regime"
)

// RegistryCollector scrapes live registry state on every /metrics pull instead
// of pushing gauges from the hot path.
type RegistryCollector struct {
	service  *regime.Service
	staleAge time.Duration

	registeredSymbols *prometheus.Desc
	staleSymbols      *prometheus.Desc
	bufferBytes       *prometheus.Desc
	symbolConfidence  *prometheus.Desc
	updateAvgMs       *prometheus.Desc
}

// NewRegistryCollector creates a collector over the regime registry. staleAge
// is the staleness horizon used for the stale-symbol gauge.
func NewRegistryCollector(service *regime.Service, staleAge time.Duration) *RegistryCollector {
	return &RegistryCollector{
		service:  service,
		staleAge: staleAge,

		registeredSymbols: prometheus.NewDesc(
			"chronos_registry_symbols",
			"Number of symbols with a live classifier",
			nil, nil,
		),
		staleSymbols: prometheus.NewDesc(
			"chronos_registry_stale_symbols",
			"Number of symbols whose regime is stale at the configured horizon",
			nil, nil,
		),
		bufferBytes: prometheus.NewDesc(
			"chronos_registry_buffer_bytes",
			"Estimated resident size of all classifier history buffers",
			nil, nil,
		),
		symbolConfidence: prometheus.NewDesc(
			"chronos_registry_confidence",
			"Latest classification confidence per symbol",
			[]string{"symbol", "regime"}, nil,
		),
		updateAvgMs: prometheus.NewDesc(
			"chronos_registry_update_avg_ms",
			"Average classifier update time per symbol over the timing buffer",
			[]string{"symbol"}, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *RegistryCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.registeredSymbols
	ch <- c.staleSymbols
	ch <- c.bufferBytes
	ch <- c.symbolConfidence
	ch <- c.updateAvgMs
}

// Collect implements prometheus.Collector
func (c *RegistryCollector) Collect(ch chan<- prometheus.Metric) {
	snapshots := c.service.Snapshots()

	ch <- prometheus.MustNewConstMetric(
		c.registeredSymbols, prometheus.GaugeValue, float64(len(snapshots)))
	ch <- prometheus.MustNewConstMetric(
		c.staleSymbols, prometheus.GaugeValue, float64(len(c.service.StaleSymbols(c.staleAge))))
	ch <- prometheus.MustNewConstMetric(
		c.bufferBytes, prometheus.GaugeValue, float64(c.service.EstimatedMemoryBytes()))

	for _, snap := range snapshots {
		ch <- prometheus.MustNewConstMetric(
			c.symbolConfidence, prometheus.GaugeValue, snap.Confidence,
			snap.Symbol, snap.Regime.String())
	}

	for symbol, summary := range c.service.PerformanceSummaries() {
		if summary.Samples == 0 {
			continue
		}
		ch <- prometheus.MustNewConstMetric(
			c.updateAvgMs, prometheus.GaugeValue, summary.AvgMs, symbol)
	}
}

// RegisterRegistryCollector registers the collector
func RegisterRegistryCollector(collector *RegistryCollector) {
	prometheus.MustRegister(collector)
}
