package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/mycota/fieldobs/internal/conf"
	"github.com/mycota/fieldobs/internal/datastore"
	"github.com/mycota/fieldobs/internal/errors"
	"github.com/mycota/fieldobs/internal/observability/metrics"
	"github.com/mycota/fieldobs/internal/querycache"
	"github.com/mycota/fieldobs/internal/suggest"
)

// Service runs periodic fetch-and-replace of observation rows from the
// upstream API, feeding the storage engine and invalidating caches.
type Service struct {
	client      *Client
	ds          datastore.Interface
	settings    *conf.Settings
	resultCache *querycache.Cache
	countCache  *querycache.Cache
	suggestions *suggest.Service
	metrics     *metrics.IngestMetrics

	// mu serializes ingestion runs; overlapping runs are skipped, not queued.
	mu      sync.Mutex
	running bool
}

// NewService wires an ingestion service. The caches, suggestions and
// ingestMetrics may each be nil.
func NewService(client *Client, ds datastore.Interface, settings *conf.Settings,
	resultCache, countCache *querycache.Cache, suggestions *suggest.Service,
	ingestMetrics *metrics.IngestMetrics) *Service {
	return &Service{
		client:      client,
		ds:          ds,
		settings:    settings,
		resultCache: resultCache,
		countCache:  countCache,
		suggestions: suggestions,
		metrics:     ingestMetrics,
	}
}

// Run executes one full ingestion cycle: page through the upstream project,
// upsert every record by id, then invalidate the caches. An empty upstream
// result is a no-op, not an error. A failed cycle leaves stored data and
// caches untouched; the next cycle retries.
func (s *Service) Run(ctx context.Context) error {
	if !s.tryAcquire() {
		serviceLogger.Warn("ingestion already in progress, skipping run")
		return nil
	}
	defer s.release()

	start := time.Now()
	stored := 0

	for page := 1; ; page++ {
		fetchStart := time.Now()
		batch, err := s.client.FetchObservations(ctx, page)
		if s.metrics != nil {
			s.metrics.RecordFetchDuration(time.Since(fetchStart).Seconds())
		}
		if err != nil {
			s.recordRun("error")
			serviceLogger.Error("ingestion cycle aborted",
				"page", page, "stored_so_far", stored, "error", err)
			return errors.Newf("fetching observations page %d: %w", page, err).
				Category(errors.CategoryNetwork).
				Component("ingest").
				Build()
		}

		if len(batch) == 0 {
			break
		}

		upsertStart := time.Now()
		for i := range batch {
			obs, fields := ToObservation(&batch[i])
			if err := s.ds.Upsert(&obs, fields); err != nil {
				// One bad row fails independently; the batch continues.
				serviceLogger.Error("failed to upsert observation",
					"observation_id", obs.ID, "error", err)
				continue
			}
			stored++
		}
		if s.metrics != nil {
			s.metrics.RecordUpsertDuration(time.Since(upsertStart).Seconds())
		}

		if len(batch) < s.client.config.PageSize {
			break
		}
	}

	if stored > 0 {
		// Fresh rows should be visible immediately rather than after the
		// TTL window expires. Cached totals count the same rows, so they
		// go in the same breath.
		s.resultCache.Flush()
		s.countCache.Flush()
		if s.suggestions != nil {
			s.suggestions.Invalidate()
		}
	}

	s.recordRun("success")
	if s.metrics != nil {
		s.metrics.AddRecords(stored)
	}

	serviceLogger.Info("ingestion cycle complete",
		"stored", stored,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

// StartPolling runs ingestion on a fixed interval until stopChan closes.
// Runs are serialized with themselves; a tick that arrives while a run is
// still in progress is skipped.
func (s *Service) StartPolling(ctx context.Context, stopChan <-chan struct{}) {
	interval := time.Duration(s.settings.Upstream.FetchInterval) * time.Minute

	serviceLogger.Info("starting ingestion polling",
		"interval_minutes", s.settings.Upstream.FetchInterval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial fetch
	if err := s.Run(ctx); err != nil {
		serviceLogger.Warn("initial ingestion run failed", "error", err)
	}

	for {
		select {
		case <-ticker.C:
			if err := s.Run(ctx); err != nil {
				serviceLogger.Warn("scheduled ingestion run failed", "error", err)
			}
		case <-stopChan:
			serviceLogger.Info("stopping ingestion polling")
			return
		case <-ctx.Done():
			serviceLogger.Info("ingestion polling cancelled")
			return
		}
	}
}

func (s *Service) tryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

func (s *Service) release() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

func (s *Service) recordRun(status string) {
	if s.metrics != nil {
		s.metrics.RecordRun(status)
	}
}
