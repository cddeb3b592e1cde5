package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DatastoreMetrics contains Prometheus metrics for datastore operations
type DatastoreMetrics struct {
	queryDuration    *prometheus.HistogramVec
	queryErrorsTotal *prometheus.CounterVec
	resultSizeHist   *prometheus.HistogramVec
}

// NewDatastoreMetrics creates and registers new datastore metrics
func NewDatastoreMetrics(registry *prometheus.Registry) (*DatastoreMetrics, error) {
	m := &DatastoreMetrics{
		queryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fieldobs_datastore_query_duration_seconds",
				Help:    "Duration of datastore queries by operation",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		queryErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldobs_datastore_query_errors_total",
				Help: "Total number of datastore query errors by operation",
			},
			[]string{"operation"},
		),
		resultSizeHist: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fieldobs_datastore_result_size",
				Help:    "Number of rows returned by datastore queries",
				Buckets: []float64{1, 10, 25, 50, 100, 250, 500, 1000},
			},
			[]string{"operation"},
		),
	}

	for _, c := range []prometheus.Collector{m.queryDuration, m.queryErrorsTotal, m.resultSizeHist} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordQueryDuration records the duration of a datastore operation in seconds
func (m *DatastoreMetrics) RecordQueryDuration(operation string, seconds float64) {
	m.queryDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordQueryError records a failed datastore operation
func (m *DatastoreMetrics) RecordQueryError(operation string) {
	m.queryErrorsTotal.WithLabelValues(operation).Inc()
}

// RecordResultSize records the number of rows returned by an operation
func (m *DatastoreMetrics) RecordResultSize(operation string, rows int) {
	m.resultSizeHist.WithLabelValues(operation).Observe(float64(rows))
}
