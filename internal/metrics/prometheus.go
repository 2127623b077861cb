package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Classification metrics
	Classifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chronos_classifications_total",
			Help: "Total number of regime classifications",
		},
		[]string{"symbol", "regime", "status"}, // status: ok|degraded
	)

	ClassificationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chronos_classification_duration_seconds",
			Help:    "Per-bar classification duration in seconds",
			Buckets: []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.005, 0.01, 0.05},
		},
		[]string{"symbol"},
	)

	ClassificationConfidence = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chronos_classification_confidence",
			Help: "Latest classification confidence per symbol",
		},
		[]string{"symbol"},
	)

	RegimeTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chronos_regime_transitions_total",
			Help: "Total number of regime transitions",
		},
		[]string{"symbol", "from", "to"},
	)

	CurrentRegime = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chronos_current_regime",
			Help: "Current regime per symbol, 1 for the active regime label",
		},
		[]string{"symbol", "regime"},
	)

	// Registry metrics
	RegisteredSymbols = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chronos_registered_symbols",
			Help: "Number of symbols with a live classifier",
		},
	)

	StaleSymbols = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chronos_stale_symbols",
			Help: "Number of symbols whose regime is stale",
		},
	)

	HistoryBufferBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chronos_history_buffer_bytes",
			Help: "Estimated resident size of all classifier history buffers",
		},
	)

	// Audit metrics
	AuditRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chronos_audit_records_total",
			Help: "Audit records processed by the recorder",
		},
		[]string{"kind", "status"}, // kind: decision|transition, status: ok|dropped|error
	)

	// Worker metrics
	WorkerExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chronos_worker_executions_total",
			Help: "Total number of worker executions",
		},
		[]string{"worker", "status"}, // status: success|error
	)

	WorkerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chronos_worker_duration_seconds",
			Help:    "Worker execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"worker"},
	)

	WorkerLastRun = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chronos_worker_last_run_timestamp",
			Help: "Unix timestamp of last worker execution",
		},
		[]string{"worker"},
	)

	// Database metrics
	DBQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chronos_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"database", "operation", "status"}, // database: clickhouse|redis
	)

	DBQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chronos_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"database", "operation"},
	)

	// System metrics
	KafkaMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chronos_kafka_messages_total",
			Help: "Total Kafka messages produced",
		},
		[]string{"topic", "status"},
	)

	WebSocketConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chronos_websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
		[]string{"exchange", "channel"},
	)

	MarketDataReconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chronos_marketdata_reconnects_total",
			Help: "Total number of market data WebSocket reconnect attempts",
		},
		[]string{"status"}, // status: success|failed
	)
)

// Init registers all metrics with Prometheus
func Init() {
	prometheus.MustRegister(Classifications)
	prometheus.MustRegister(ClassificationDuration)
	prometheus.MustRegister(ClassificationConfidence)
	prometheus.MustRegister(RegimeTransitions)
	prometheus.MustRegister(CurrentRegime)

	prometheus.MustRegister(RegisteredSymbols)
	prometheus.MustRegister(StaleSymbols)
	prometheus.MustRegister(HistoryBufferBytes)

	prometheus.MustRegister(AuditRecords)

	prometheus.MustRegister(WorkerExecutions)
	prometheus.MustRegister(WorkerDuration)
	prometheus.MustRegister(WorkerLastRun)

	prometheus.MustRegister(DBQueries)
	prometheus.MustRegister(DBQueryDuration)

	prometheus.MustRegister(KafkaMessages)
	prometheus.MustRegister(WebSocketConnections)
	prometheus.MustRegister(MarketDataReconnects)
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordClassification records one classifier update outcome.
func RecordClassification(symbol, regime string, totalMs, confidence float64, degraded bool) {
	status := "ok"
	if degraded {
		status = "degraded"
	}
	Classifications.WithLabelValues(symbol, regime, status).Inc()
	ClassificationDuration.WithLabelValues(symbol).Observe(totalMs / 1000.0)
	ClassificationConfidence.WithLabelValues(symbol).Set(confidence)
}

// RecordTransition records a regime change and flips the active-regime gauge.
func RecordTransition(symbol, from, to string) {
	RegimeTransitions.WithLabelValues(symbol, from, to).Inc()
	CurrentRegime.WithLabelValues(symbol, from).Set(0)
	CurrentRegime.WithLabelValues(symbol, to).Set(1)
}

// RecordWorkerExecution records a worker execution
func RecordWorkerExecution(worker string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	WorkerExecutions.WithLabelValues(worker, status).Inc()
	WorkerDuration.WithLabelValues(worker).Observe(duration.Seconds())
	WorkerLastRun.WithLabelValues(worker).SetToCurrentTime()
}

// RecordDBQuery records a database query
func RecordDBQuery(database, operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	DBQueries.WithLabelValues(database, operation, status).Inc()
	DBQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

// RecordKafkaMessage records a produced Kafka message
func RecordKafkaMessage(topic string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	KafkaMessages.WithLabelValues(topic, status).Inc()
}
