package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	statusSuccess   = "success"
	statusFailure   = "failure"
	statusCancelled = "cancelled"
)

type metrics struct {
	queries      *prometheus.CounterVec
	optimization prometheus.Histogram
	execution    prometheus.Histogram
	rows         prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		queries: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "lazyframe",
			Subsystem: "engine",
			Name:      "queries_total",
			Help:      "Total number of queries by status.",
		}, []string{"status"}),
		optimization: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: "lazyframe",
			Subsystem: "engine",
			Name:      "optimization_duration_seconds",
			Help:      "Time spent optimizing query plans.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		execution: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: "lazyframe",
			Subsystem: "engine",
			Name:      "execution_duration_seconds",
			Help:      "Time spent executing optimized plans.",
			Buckets:   prometheus.DefBuckets,
		}),
		rows: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "lazyframe",
			Subsystem: "engine",
			Name:      "result_rows_total",
			Help:      "Total number of rows returned by successful queries.",
		}),
	}
}
