// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Pipeline metrics
	RecordsComputed    prometheus.Counter
	TxsDroppedNoJoin   prometheus.Counter
	TxsSkippedCutoff   prometheus.Counter
	AddressesProcessed *prometheus.CounterVec
	BatchesFetched     prometheus.Counter
	RunDuration        prometheus.Histogram

	// Upstream metrics
	ChainIndexLatency *prometheus.HistogramVec
	PriceResolved     *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "treasury_valuation"
	}

	return &Metrics{
		RecordsComputed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "records_computed_total",
			Help:      "Total number of valuation records computed",
		}),
		TxsDroppedNoJoin: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "txs_dropped_missing_join_total",
			Help:      "Transactions dropped because detail or UTXO data was missing",
		}),
		TxsSkippedCutoff: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "txs_skipped_before_cutoff_total",
			Help:      "Transactions skipped because the block time predates the cutoff",
		}),
		AddressesProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "addresses_processed_total",
			Help:      "Stake addresses processed by outcome",
		}, []string{"status"}),
		BatchesFetched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "batches_fetched_total",
			Help:      "Transaction hash batches fetched from the chain indexer",
		}),
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Full pipeline run duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		ChainIndexLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chainindex",
			Name:      "request_latency_seconds",
			Help:      "Chain-indexer request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		PriceResolved: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "quotes_resolved_total",
			Help:      "Price quotes resolved by source",
		}, []string{"source"}),
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordComputed increments the computed-record counter.
func RecordComputed(n int) {
	DefaultMetrics.RecordsComputed.Add(float64(n))
}

// RecordDroppedNoJoin increments the missing-join drop counter.
func RecordDroppedNoJoin() {
	DefaultMetrics.TxsDroppedNoJoin.Inc()
}

// RecordSkippedCutoff increments the cutoff skip counter.
func RecordSkippedCutoff() {
	DefaultMetrics.TxsSkippedCutoff.Inc()
}

// RecordAddressProcessed records the outcome of one stake address.
func RecordAddressProcessed(status string) {
	DefaultMetrics.AddressesProcessed.WithLabelValues(status).Inc()
}

// RecordBatchFetched increments the batch counter.
func RecordBatchFetched() {
	DefaultMetrics.BatchesFetched.Inc()
}

// RecordRunDuration observes a full run duration.
func RecordRunDuration(seconds float64) {
	DefaultMetrics.RunDuration.Observe(seconds)
}

// RecordChainIndexLatency records a chain-indexer request latency.
func RecordChainIndexLatency(endpoint string, seconds float64) {
	DefaultMetrics.ChainIndexLatency.WithLabelValues(endpoint).Observe(seconds)
}

// RecordPriceResolved records which source produced the run's quote.
func RecordPriceResolved(source string) {
	DefaultMetrics.PriceResolved.WithLabelValues(source).Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
