// Package observability provides metrics and monitoring capabilities for the
// fieldobs service.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mycota/fieldobs/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry  *prometheus.Registry
	Cache     *metrics.CacheMetrics
	Datastore *metrics.DatastoreMetrics
	Ingest    *metrics.IngestMetrics
}

// NewMetrics creates a new instance of Metrics, initializing all metric
// collectors. It returns an error if any collector fails to initialize.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	cacheMetrics, err := metrics.NewCacheMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache metrics: %w", err)
	}

	datastoreMetrics, err := metrics.NewDatastoreMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create datastore metrics: %w", err)
	}

	ingestMetrics, err := metrics.NewIngestMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create ingest metrics: %w", err)
	}

	return &Metrics{
		registry:  registry,
		Cache:     cacheMetrics,
		Datastore: datastoreMetrics,
		Ingest:    ingestMetrics,
	}, nil
}

// Handler returns an HTTP handler serving the metrics registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
