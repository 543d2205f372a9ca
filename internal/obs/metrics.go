package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsRegistry holds the Prometheus collectors exported at /metrics,
// covering the store, cache, and ingest pipeline stages named in spec
// §7.
type MetricsRegistry struct {
	IngestAccepted  prometheus.Counter
	IngestRejected  prometheus.Counter
	IngestCommitted prometheus.Counter
	BatchCommitDuration prometheus.Histogram

	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	StoreRetries prometheus.Counter

	BacktestsRun       prometheus.Counter
	BacktestDuration   prometheus.Histogram
}

// NewMetricsRegistry builds and registers every collector with the
// default Prometheus registry. Call once per process.
func NewMetricsRegistry() *MetricsRegistry {
	r := &MetricsRegistry{
		IngestAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryptorun_ingest_ticks_accepted_total",
			Help: "Total ticks accepted by the ingest pipeline queue.",
		}),
		IngestRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryptorun_ingest_ticks_rejected_total",
			Help: "Total ticks rejected for failing structural validation.",
		}),
		IngestCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryptorun_ingest_ticks_committed_total",
			Help: "Total ticks durably committed to the tick store.",
		}),
		BatchCommitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cryptorun_ingest_batch_commit_seconds",
			Help:    "Duration of a batch commit to the tick store.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptorun_cache_hits_total",
			Help: "Cache hits by tier (l1, l2).",
		}, []string{"tier"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptorun_cache_misses_total",
			Help: "Cache misses by tier (l1, l2).",
		}, []string{"tier"}),
		StoreRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryptorun_store_retries_total",
			Help: "Total retry attempts against the tick store.",
		}),
		BacktestsRun: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryptorun_backtests_total",
			Help: "Total backtest runs completed.",
		}),
		BacktestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cryptorun_backtest_duration_seconds",
			Help:    "Wall-clock duration of a backtest run.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	prometheus.MustRegister(
		r.IngestAccepted, r.IngestRejected, r.IngestCommitted, r.BatchCommitDuration,
		r.CacheHits, r.CacheMisses, r.StoreRetries,
		r.BacktestsRun, r.BacktestDuration,
	)

	return r
}

// Handler exposes the registry on /metrics for a boundary HTTP server.
func (r *MetricsRegistry) Handler() http.Handler {
	return promhttp.Handler()
}
