// Package metrics provides Prometheus collectors for the fieldobs service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CacheMetrics contains Prometheus metrics for the query and suggestion caches
type CacheMetrics struct {
	cacheOperationsTotal *prometheus.CounterVec
	cacheFlushesTotal    *prometheus.CounterVec
}

// NewCacheMetrics creates and registers new cache metrics
func NewCacheMetrics(registry *prometheus.Registry) (*CacheMetrics, error) {
	m := &CacheMetrics{
		cacheOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldobs_cache_operations_total",
				Help: "Total number of cache lookups by cache name and result",
			},
			[]string{"cache", "result"},
		),
		cacheFlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldobs_cache_flushes_total",
				Help: "Total number of explicit cache flushes by cache name",
			},
			[]string{"cache"},
		),
	}

	if err := registry.Register(m.cacheOperationsTotal); err != nil {
		return nil, err
	}
	if err := registry.Register(m.cacheFlushesTotal); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordOperation records a cache lookup outcome ("hit" or "miss")
func (m *CacheMetrics) RecordOperation(cache, result string) {
	m.cacheOperationsTotal.WithLabelValues(cache, result).Inc()
}

// RecordFlush records an explicit cache flush
func (m *CacheMetrics) RecordFlush(cache string) {
	m.cacheFlushesTotal.WithLabelValues(cache).Inc()
}
