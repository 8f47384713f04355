package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CacheHitsTotal counts GetObject/GetObjects calls satisfied from the
	// storage backend, labeled by type tag.
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blobcache_hits_total",
			Help: "Total number of cache gets satisfied without invoking a fetch/factory",
		},
		[]string{"type"},
	)

	// CacheMissesTotal counts gets that came back KeyNotFound, labeled by
	// type tag.
	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blobcache_misses_total",
			Help: "Total number of cache gets that found no live entry",
		},
		[]string{"type"},
	)

	// RequestsCoalescedTotal counts subscribers that replayed an in-flight
	// or already-completed request instead of triggering their own fetch
	// (spec.md §4.5).
	RequestsCoalescedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blobcache_requests_coalesced_total",
			Help: "Total number of GetOrFetchObject calls that shared an in-flight or cached request",
		},
		[]string{"type"},
	)

	// QueueDepth is the number of operations currently buffered in the
	// operation queue, awaiting the next drain (spec.md §4.4).
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "blobcache_queue_depth",
			Help: "Number of operations currently buffered in the operation queue",
		},
	)

	// QueueFlushDuration times one full drain pass of the operation queue,
	// from snapshot to the last batch's completion.
	QueueFlushDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "blobcache_queue_flush_duration_seconds",
			Help:    "Time taken to drain the operation queue in one pass",
			Buckets: prometheus.DefBuckets,
		},
	)

	// QueueFlushBatchSize records how many items a single drain pass
	// processed, labeled by operation kind.
	QueueFlushBatchSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blobcache_queue_flush_batch_size",
			Help:    "Number of items executed per kind in one drain pass",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256},
		},
		[]string{"kind"},
	)

	// VacuumDuration times a full Vacuum() call against a storage backend.
	VacuumDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "blobcache_vacuum_duration_seconds",
			Help:    "Time taken to vacuum a storage backend",
			Buckets: prometheus.DefBuckets,
		},
	)

	// StoreOperationDuration times insert/get/invalidate calls against a
	// storage backend, labeled by operation name.
	StoreOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blobcache_store_operation_duration_seconds",
			Help:    "Time taken by a single storage backend operation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// EntriesTotal is the live (non-expired) entry count observed at the
	// last enumeration, labeled by type tag.
	EntriesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "blobcache_entries_total",
			Help: "Number of live entries observed at the last GetAllKeys enumeration",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(RequestsCoalescedTotal)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(QueueFlushDuration)
	prometheus.MustRegister(QueueFlushBatchSize)
	prometheus.MustRegister(VacuumDuration)
	prometheus.MustRegister(StoreOperationDuration)
	prometheus.MustRegister(EntriesTotal)
}

// Handler returns the Prometheus HTTP handler for an embedding application
// that wants to expose /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations against a histogram.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer starting now.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed duration to a labeled histogram
// vec.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
