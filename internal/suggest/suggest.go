// Package suggest serves the autocomplete projections: cached lists of
// distinct species and location values, invalidated alongside ingestion.
package suggest

import (
	"log/slog"
	"time"

	"github.com/mycota/fieldobs/internal/datastore"
	"github.com/mycota/fieldobs/internal/querycache"
)

// UnknownSpeciesLabel is the synthetic species suggestion prepended to the
// species list. It maps to the empty-species sentinel, so the UI can offer
// it without a database round-trip.
const UnknownSpeciesLabel = "Unknown Species"

// Cache keys are versioned; Invalidate clears the legacy generation too so
// key schema changes never leave stale entries behind.
const (
	speciesKey         = "suggest:species:v2"
	locationsKey       = "suggest:locations:v2"
	legacySpeciesKey   = "suggest:species:v1"
	legacyLocationsKey = "suggest:locations:v1"
)

// Service computes and caches suggestion lists.
type Service struct {
	ds     datastore.Interface
	cache  *querycache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// New creates a suggestion service. The cache may be nil, in which case
// every call recomputes from storage.
func New(ds datastore.Interface, cache *querycache.Cache, ttl time.Duration, logger *slog.Logger) *Service {
	return &Service{
		ds:     ds,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

// Species returns the ordered species suggestions with the synthetic
// unknown-species entry first.
func (s *Service) Species() ([]string, error) {
	return querycache.GetOrCompute(s.cache, speciesKey, s.ttl, func() ([]string, error) {
		distinct, err := s.ds.DistinctSpecies()
		if err != nil {
			return nil, err
		}

		suggestions := make([]string, 0, len(distinct)+1)
		suggestions = append(suggestions, UnknownSpeciesLabel)
		suggestions = append(suggestions, distinct...)
		return suggestions, nil
	})
}

// Locations returns the ordered location suggestions.
func (s *Service) Locations() ([]string, error) {
	return querycache.GetOrCompute(s.cache, locationsKey, s.ttl, func() ([]string, error) {
		return s.ds.DistinctLocations()
	})
}

// Invalidate clears the suggestion projections, current and legacy keys
// both. Called after every ingestion run and on explicit cache flush.
func (s *Service) Invalidate() {
	s.cache.Delete(speciesKey)
	s.cache.Delete(locationsKey)
	s.cache.Delete(legacySpeciesKey)
	s.cache.Delete(legacyLocationsKey)

	if s.logger != nil {
		s.logger.Debug("suggestion cache invalidated")
	}
}
