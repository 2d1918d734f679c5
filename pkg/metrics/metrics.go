package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics
type Metrics struct {
	// Sync related metrics
	SyncRuns        prometheus.Counter
	SyncFailures    prometheus.Counter
	RecordsUploaded prometheus.Counter
	PendingQueue    prometheus.Gauge
	SyncLatency     prometheus.Histogram

	// Store metrics
	StoreOperations *prometheus.CounterVec
}

// New creates application metrics under the given namespace.
func New(namespace string) *Metrics {
	return &Metrics{
		SyncRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Total number of sync drains started",
		}),
		SyncFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_failures_total",
			Help:      "Total number of sync drains aborted by an error",
		}),
		RecordsUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_uploaded_total",
			Help:      "Total number of records confirmed by the remote authority",
		}),
		PendingQueue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_queue_size",
			Help:      "Current number of unsynced local changes",
		}),
		SyncLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Time spent draining the pending queue",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		StoreOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Total number of store operations",
		}, []string{"operation", "status"}),
	}
}

// Register adds all metrics to the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.SyncRuns,
		m.SyncFailures,
		m.RecordsUploaded,
		m.PendingQueue,
		m.SyncLatency,
		m.StoreOperations,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
