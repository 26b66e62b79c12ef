package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Exporter-internal telemetry, exposed on /telemetry. Not to be confused
// with the device metrics served on /metrics.
var (
	// ProbeDuration tracks the time spent probing a device.
	ProbeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shelly_exporter_probe_duration_seconds",
			Help:    "Time spent probing a target",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"target"},
	)

	// ProbeErrors tracks probe failures by target and error type.
	ProbeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelly_exporter_probe_errors_total",
			Help: "Probe errors by target and type",
		},
		[]string{"target", "error_type"},
	)

	// StoreOperations tracks persisted-store operations by outcome.
	StoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelly_exporter_store_operations_total",
			Help: "Persisted store operations by status",
		},
		[]string{"operation", "status"},
	)

	// StoreOperationDuration tracks persisted-store operation latency.
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shelly_exporter_store_operation_duration_seconds",
			Help:    "Duration of persisted store operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// SavedSnapshots reports how many device snapshots the persisted store
	// held after the most recent load.
	SavedSnapshots = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shelly_exporter_saved_snapshots",
			Help: "Snapshots in the persisted store at last load",
		},
	)

	// RequestsRejected counts requests refused by validation or rate limits.
	RequestsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelly_exporter_requests_rejected_total",
			Help: "Requests rejected before probing",
		},
		[]string{"reason"},
	)
)
