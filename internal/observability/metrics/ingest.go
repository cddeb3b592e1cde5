package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// IngestMetrics contains Prometheus metrics for ingestion runs
type IngestMetrics struct {
	runsTotal      *prometheus.CounterVec
	recordsTotal   prometheus.Counter
	fetchDuration  prometheus.Histogram
	upsertDuration prometheus.Histogram
}

// NewIngestMetrics creates and registers new ingestion metrics
func NewIngestMetrics(registry *prometheus.Registry) (*IngestMetrics, error) {
	m := &IngestMetrics{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldobs_ingest_runs_total",
				Help: "Total number of ingestion runs by status",
			},
			[]string{"status"},
		),
		recordsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fieldobs_ingest_records_total",
				Help: "Total number of observation records upserted",
			},
		),
		fetchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fieldobs_ingest_fetch_duration_seconds",
				Help:    "Duration of upstream fetches",
				Buckets: prometheus.DefBuckets,
			},
		),
		upsertDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fieldobs_ingest_upsert_duration_seconds",
				Help:    "Duration of batch upserts",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	for _, c := range []prometheus.Collector{m.runsTotal, m.recordsTotal, m.fetchDuration, m.upsertDuration} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordRun records the outcome of an ingestion run ("success" or "error")
func (m *IngestMetrics) RecordRun(status string) {
	m.runsTotal.WithLabelValues(status).Inc()
}

// AddRecords adds to the upserted record counter
func (m *IngestMetrics) AddRecords(n int) {
	m.recordsTotal.Add(float64(n))
}

// RecordFetchDuration records an upstream fetch duration in seconds
func (m *IngestMetrics) RecordFetchDuration(seconds float64) {
	m.fetchDuration.Observe(seconds)
}

// RecordUpsertDuration records a batch upsert duration in seconds
func (m *IngestMetrics) RecordUpsertDuration(seconds float64) {
	m.upsertDuration.Observe(seconds)
}
