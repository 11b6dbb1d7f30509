package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

var (
	// BlocksIndexed counts blocks committed by the ingestion writer
	BlocksIndexed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "evm_indexer_blocks_indexed_total",
			Help: "Total number of blocks committed",
		},
	)

	// RowsWritten counts newly written rows by entity kind
	RowsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evm_indexer_rows_written_total",
			Help: "Total number of rows newly written by entity kind",
		},
		[]string{"kind"},
	)

	// CommitDuration tracks how long one block commit takes
	CommitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "evm_indexer_commit_duration_seconds",
			Help:    "Block commit duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ReorgsTotal counts detected chain reorganizations
	ReorgsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "evm_indexer_reorgs_total",
			Help: "Total number of chain reorganizations handled",
		},
	)

	// ReorgDepth tracks how many blocks each reorganization rolled back
	ReorgDepth = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "evm_indexer_reorg_depth_blocks",
			Help:    "Number of blocks rolled back per reorganization",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21, 34, 64},
		},
	)

	// IndexedHeight tracks the tip persisted in the state store
	IndexedHeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "evm_indexer_indexed_height",
			Help: "Highest block height reflected in persisted state",
		},
	)

	// ChainHead tracks the latest height reported by the upstream node
	ChainHead = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "evm_indexer_chain_head",
			Help: "Latest block height reported by the upstream node",
		},
	)

	// RPCRequests counts upstream node calls by method and status
	RPCRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evm_indexer_rpc_requests_total",
			Help: "Total number of upstream RPC requests",
		},
		[]string{"method", "status"},
	)

	// RPCDuration tracks upstream node call latency
	RPCDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "evm_indexer_rpc_duration_seconds",
			Help:    "Upstream RPC request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// IngestionErrors counts ingestion loop failures by class
	IngestionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evm_indexer_ingestion_errors_total",
			Help: "Total number of ingestion errors by class",
		},
		[]string{"class"},
	)

	// AlertsCreated counts alerts appended by rule and severity
	AlertsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evm_indexer_alerts_created_total",
			Help: "Total number of alerts created",
		},
		[]string{"rule", "severity"},
	)

	// EvaluationQueueDepth tracks batches waiting for alert evaluation
	EvaluationQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "evm_indexer_evaluation_queue_depth",
			Help: "Number of committed batches waiting for alert evaluation",
		},
	)

	// AlertDispatches counts notification attempts by outcome
	AlertDispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evm_indexer_alert_dispatches_total",
			Help: "Total number of alert dispatch outcomes",
		},
		[]string{"status"},
	)

	// StatsRefreshes counts aggregate refresh cycles by outcome
	StatsRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evm_indexer_stats_refreshes_total",
			Help: "Total number of stats refresh cycles",
		},
		[]string{"status"},
	)

	// StatsRefreshDuration tracks aggregate refresh latency
	StatsRefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "evm_indexer_stats_refresh_duration_seconds",
			Help:    "Stats refresh duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
	)
)

// ObserveRPC records the outcome and latency of one upstream call.
func ObserveRPC(method string, start time.Time, err error) {
	RPCDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	RPCRequests.WithLabelValues(method, statusOf(err)).Inc()
}

// ObserveStatsRefresh records one refresh cycle.
func ObserveStatsRefresh(start time.Time, err error) {
	StatsRefreshDuration.Observe(time.Since(start).Seconds())
	StatsRefreshes.WithLabelValues(statusOf(err)).Inc()
}

func statusOf(err error) string {
	if err != nil {
		return StatusFailure
	}
	return StatusSuccess
}
