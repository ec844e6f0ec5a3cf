package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	DocumentsInserted  prometheus.Counter
	DocumentsUpdated   prometheus.Counter
	DocumentsDeleted   prometheus.Counter
	QueryDuration      prometheus.Histogram
	UpdateDuration     prometheus.Histogram
	CacheHits          prometheus.Counter
	CacheMisses        prometheus.Counter
	ActiveSubscribers  prometheus.Gauge
	SyncOperationsSent prometheus.Counter
	SyncOperationsRecv prometheus.Counter
	ConflictsResolved  prometheus.Counter
	IndexSizeBytes     prometheus.Gauge
	ErrorCount         prometheus.Counter
	ThrottleConcurrency prometheus.Gauge
}

func NewMetrics() *Metrics {
	return &Metrics{
		DocumentsInserted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "embeddb_documents_inserted_total",
			Help: "Total number of documents inserted across all collections",
		}),
		DocumentsUpdated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "embeddb_documents_updated_total",
			Help: "Total number of documents updated across all collections",
		}),
		DocumentsDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "embeddb_documents_deleted_total",
			Help: "Total number of documents deleted across all collections",
		}),
		QueryDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "embeddb_query_duration_seconds",
			Help:    "Query execution latency distribution",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		UpdateDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "embeddb_update_duration_seconds",
			Help:    "Update application latency distribution",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "embeddb_query_cache_hits_total",
			Help: "Total number of query cache hits",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "embeddb_query_cache_misses_total",
			Help: "Total number of query cache misses",
		}),
		ActiveSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "embeddb_active_subscribers",
			Help: "Number of active reactive query subscribers",
		}),
		SyncOperationsSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "embeddb_sync_operations_sent_total",
			Help: "Total number of replicated operations broadcast to peers",
		}),
		SyncOperationsRecv: promauto.NewCounter(prometheus.CounterOpts{
			Name: "embeddb_sync_operations_received_total",
			Help: "Total number of replicated operations received from peers",
		}),
		ConflictsResolved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "embeddb_conflicts_resolved_total",
			Help: "Total number of CRDT conflicts resolved",
		}),
		IndexSizeBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "embeddb_index_size_bytes",
			Help: "Approximate total size of all indexes in bytes",
		}),
		ErrorCount: promauto.NewCounter(prometheus.CounterOpts{
			Name: "embeddb_errors_total",
			Help: "Total number of errors encountered",
		}),
		ThrottleConcurrency: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "embeddb_throttle_concurrency",
			Help: "Current adaptive concurrency limit for the task queue",
		}),
	}
}
