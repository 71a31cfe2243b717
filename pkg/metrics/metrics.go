// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	global *Metrics
	once   sync.Once
)

// Metrics holds Prometheus metrics for the query pipeline and the stores.
type Metrics struct {
	CacheRequests      *prometheus.CounterVec
	CacheSize          prometheus.Gauge
	PipelineFailures   *prometheus.CounterVec
	QueryTimeouts      prometheus.Counter
	QueryDuration      *prometheus.HistogramVec
	SearchDegraded     *prometheus.CounterVec
	DocumentsPersisted *prometheus.CounterVec
	QuickReplies       prometheus.Counter
}

// Get returns the process-wide metrics, registering them on first use.
//
// Metrics:
//   - rag_cache_requests_total{result} - cache lookups by "hit" or "miss"
//   - rag_cache_size - entries currently held by the query cache
//   - rag_pipeline_failures_total{stage} - failed pipeline stages
//   - rag_query_timeouts_total - queries abandoned at the deadline
//   - rag_query_duration_seconds{outcome} - end to end query latency
//   - rag_search_degraded_total{backend} - searches answered empty after a backend failure
//   - rag_documents_persisted_total{backend} - documents upserted
//   - rag_quick_replies_total - messages answered from the canned table
func Get() *Metrics {
	once.Do(func() {
		global = &Metrics{
			CacheRequests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "rag_cache_requests_total",
					Help: "Total number of query cache lookups",
				},
				[]string{"result"},
			),
			CacheSize: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "rag_cache_size",
				Help: "Number of entries in the query cache",
			}),
			PipelineFailures: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "rag_pipeline_failures_total",
					Help: "Total number of failed pipeline stages",
				},
				[]string{"stage"},
			),
			QueryTimeouts: promauto.NewCounter(prometheus.CounterOpts{
				Name: "rag_query_timeouts_total",
				Help: "Total number of queries that hit the deadline",
			}),
			QueryDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "rag_query_duration_seconds",
					Help:    "Query latency in seconds",
					Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 30},
				},
				[]string{"outcome"},
			),
			SearchDegraded: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "rag_search_degraded_total",
					Help: "Total number of searches that failed on the backend",
				},
				[]string{"backend"},
			),
			DocumentsPersisted: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "rag_documents_persisted_total",
					Help: "Total number of documents upserted",
				},
				[]string{"backend"},
			),
			QuickReplies: promauto.NewCounter(prometheus.CounterOpts{
				Name: "rag_quick_replies_total",
				Help: "Total number of messages answered from the canned table",
			}),
		}
	})
	return global
}
