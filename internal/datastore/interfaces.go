// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/mycota/fieldobs/internal/conf"
	"github.com/mycota/fieldobs/internal/errors"
	"github.com/mycota/fieldobs/internal/filter"
	"github.com/mycota/fieldobs/internal/normalize"
	"github.com/mycota/fieldobs/internal/observability/metrics"
)

// suggestionLimit bounds the distinct-value projections so autocomplete
// never produces unbounded result sets on large tables.
const suggestionLimit = 1000

// Interface abstracts the underlying database implementation and defines the
// interface for database operations.
type Interface interface {
	Open() error
	Close() error
	Upsert(obs *Observation, fields []ObservationField) error
	Get(id uint64) (Observation, error)
	Query(f *filter.CompiledFilter) ([]Observation, error)
	Count(f *filter.CompiledFilter) (int64, error)
	DistinctSpecies() ([]string, error)
	DistinctLocations() ([]string, error)
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB      *gorm.DB                  // GORM database instance
	Metrics *metrics.DatastoreMetrics // optional Prometheus collectors
	Logger  *slog.Logger              // optional service logger
}

// New creates a new datastore instance based on the provided configuration.
func New(settings *conf.Settings, dm *metrics.DatastoreMetrics, serviceLogger *slog.Logger) Interface {
	base := DataStore{Metrics: dm, Logger: serviceLogger}
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{
			DataStore: base,
			Settings:  settings,
		}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{
			DataStore: base,
			Settings:  settings,
		}
	default:
		return nil
	}
}

// Upsert stores an observation and its fields with REPLACE semantics: a
// re-ingested id fully overwrites the prior row, fields included, with no
// field-level merge. The whole replacement runs in one transaction.
func (ds *DataStore) Upsert(obs *Observation, fields []ObservationField) error {
	if obs == nil {
		return errors.Newf("upsert requires an observation").
			Category(errors.CategoryValidation).
			Component("datastore").
			Build()
	}

	start := time.Now()

	// Keys are derived from the display columns on every write so read-side
	// normalized comparisons always have a matching counterpart.
	obs.SpeciesKey = normalize.Text(obs.SpeciesLabel)
	obs.LocationKey = normalize.Text(obs.LocationLabel)

	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(obs).Error; err != nil {
			return fmt.Errorf("saving observation %d: %w", obs.ID, err)
		}

		// Full overwrite: prior fields go away even when the new record
		// carries none.
		if err := tx.Where("observation_id = ?", obs.ID).Delete(&ObservationField{}).Error; err != nil {
			return fmt.Errorf("clearing fields for observation %d: %w", obs.ID, err)
		}

		for i := range fields {
			fields[i].ID = 0
			fields[i].ObservationID = obs.ID
			if err := tx.Create(&fields[i]).Error; err != nil {
				return fmt.Errorf("saving field %q for observation %d: %w", fields[i].Name, obs.ID, err)
			}
		}
		return nil
	})

	ds.observe("upsert", start, err)
	if err != nil {
		return errors.New(err).
			Category(errors.CategoryDatabase).
			Context("observation_id", obs.ID).
			Component("datastore").
			Build()
	}
	return nil
}

// Get retrieves a single observation by its upstream id.
func (ds *DataStore) Get(id uint64) (Observation, error) {
	var obs Observation
	err := ds.DB.Preload("Fields").First(&obs, "id = ?", id).Error
	if err != nil {
		category := errors.CategoryDatabase
		if errors.Is(err, gorm.ErrRecordNotFound) {
			category = errors.CategoryNotFound
		}
		return Observation{}, errors.Newf("getting observation %d: %w", id, err).
			Category(category).
			Component("datastore").
			Build()
	}

	obs.DecodeMetadata()
	return obs, nil
}

// DistinctSpecies returns the distinct non-empty species labels, ordered,
// bounded to the suggestion limit.
func (ds *DataStore) DistinctSpecies() ([]string, error) {
	return ds.distinctColumn("species_label")
}

// DistinctLocations returns the distinct non-empty location labels, ordered,
// bounded to the suggestion limit.
func (ds *DataStore) DistinctLocations() ([]string, error) {
	return ds.distinctColumn("location_label")
}

// distinctColumn projects one whitelisted display column. Callers pass only
// the fixed column names above; no request data reaches this identifier.
func (ds *DataStore) distinctColumn(column string) ([]string, error) {
	start := time.Now()

	var values []string
	err := ds.DB.Model(&Observation{}).
		Distinct(column).
		Where(column+" != ''").
		Order(column).
		Limit(suggestionLimit).
		Pluck(column, &values).Error

	ds.observe("distinct_"+column, start, err)
	if err != nil {
		return nil, errors.Newf("selecting distinct %s: %w", column, err).
			Category(errors.CategoryDatabase).
			Component("datastore").
			Build()
	}
	return values, nil
}

// Close is implemented by the dialect stores.
func (ds *DataStore) Close() error {
	return nil
}

func (ds *DataStore) observe(operation string, start time.Time, err error) {
	if ds.Metrics != nil {
		ds.Metrics.RecordQueryDuration(operation, time.Since(start).Seconds())
		if err != nil {
			ds.Metrics.RecordQueryError(operation)
		}
	}
	if err != nil && ds.Logger != nil {
		ds.Logger.Error("datastore operation failed", "operation", operation, "error", err)
	}
}

// performAutoMigration automates database migrations with error handling.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	if err := db.AutoMigrate(&Observation{}, &ObservationField{}); err != nil {
		return fmt.Errorf("failed to auto-migrate %s database: %w", dbType, err)
	}

	if debug {
		log.Printf("%s database connection initialized: %s", dbType, connectionInfo)
	}

	return nil
}

// createGormLogger configures and returns a new GORM logger instance.
func createGormLogger() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: 200 * time.Millisecond,
			LogLevel:      logger.Warn,
			Colorful:      true,
		},
	)
}
