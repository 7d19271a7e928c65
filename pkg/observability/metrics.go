package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics must be global for registration
var (
	// RPCRequestsTotal counts RPC attempts per endpoint and outcome
	RPCRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soltrail_rpc_requests_total",
			Help: "Total RPC attempts per endpoint",
		},
		[]string{"endpoint", "method", "status"}, // status: success, transient, fatal
	)

	// RPCRequestDuration measures per-attempt latency in seconds
	RPCRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "soltrail_rpc_request_duration_seconds",
			Help:    "RPC attempt latency per endpoint",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"endpoint", "method"},
	)

	// RPCExhaustedTotal counts logical calls that failed on every endpoint
	RPCExhaustedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soltrail_rpc_exhausted_total",
			Help: "Logical calls that exhausted every configured endpoint",
		},
		[]string{"method"},
	)

	// StoreOperationsTotal counts record store operations
	StoreOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soltrail_store_operations_total",
			Help: "Total record store operations",
		},
		[]string{"backend", "operation", "status"}, // status: success, error
	)

	// SyncRunsTotal counts incremental fetch runs
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soltrail_sync_runs_total",
			Help: "Total incremental fetch runs",
		},
		[]string{"trigger", "status"}, // trigger: manual, scheduled, api; status: success, failed
	)

	// SyncDuration measures incremental fetch run duration in seconds
	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "soltrail_sync_duration_seconds",
			Help:    "Incremental fetch run duration",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to ~400s
		},
		[]string{"trigger"},
	)

	// SignaturesDiscovered counts newly discovered signatures per subject
	SignaturesDiscovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soltrail_signatures_discovered_total",
			Help: "Newly discovered signatures per subject",
		},
		[]string{"subject"},
	)

	// DetailsPending gauges pending detail records per subject
	DetailsPending = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "soltrail_details_pending",
			Help: "Detail records still pending per subject",
		},
		[]string{"subject"},
	)

	// DetailsFailed gauges failed detail records per subject
	DetailsFailed = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "soltrail_details_failed",
			Help: "Detail records in failed state per subject",
		},
		[]string{"subject"},
	)

	// TasksEnqueuedTotal counts sync tasks handed to the tracker queue
	TasksEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soltrail_tasks_enqueued_total",
			Help: "Sync tasks enqueued to the tracker queue",
		},
		[]string{"status"}, // status: enqueued, duplicate, error
	)

	// EventsPublishedTotal counts sync-completed events published
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soltrail_events_published_total",
			Help: "Sync-completed events published to the broker",
		},
		[]string{"status"}, // status: success, error
	)
)

// RecordRPCRequest records one RPC attempt outcome.
func RecordRPCRequest(endpoint, method, status string, seconds float64) {
	RPCRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
	RPCRequestDuration.WithLabelValues(endpoint, method).Observe(seconds)
}

// RecordRPCExhausted records a logical call failing on every endpoint.
func RecordRPCExhausted(method string) {
	RPCExhaustedTotal.WithLabelValues(method).Inc()
}

// RecordStoreOperation records one record store operation outcome.
func RecordStoreOperation(backend, operation, status string) {
	StoreOperationsTotal.WithLabelValues(backend, operation, status).Inc()
}

// RecordSyncRun records one incremental fetch run.
func RecordSyncRun(trigger, status string, seconds float64) {
	SyncRunsTotal.WithLabelValues(trigger, status).Inc()
	SyncDuration.WithLabelValues(trigger).Observe(seconds)
}

// RecordSignaturesDiscovered records newly discovered signatures.
func RecordSignaturesDiscovered(subject string, count int) {
	if count > 0 {
		SignaturesDiscovered.WithLabelValues(subject).Add(float64(count))
	}
}

// RecordCacheDepth updates the per-subject pending/failed gauges.
func RecordCacheDepth(subject string, pending, failed int) {
	DetailsPending.WithLabelValues(subject).Set(float64(pending))
	DetailsFailed.WithLabelValues(subject).Set(float64(failed))
}

// RecordTaskEnqueued records a tracker enqueue outcome.
func RecordTaskEnqueued(status string) {
	TasksEnqueuedTotal.WithLabelValues(status).Inc()
}

// RecordEventPublished records a sync-completed event publish outcome.
func RecordEventPublished(status string) {
	EventsPublishedTotal.WithLabelValues(status).Inc()
}
