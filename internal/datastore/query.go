// query.go: parameterized filtered queries over observations. Every
// identifier in the generated SQL comes from the filter package's
// compile-time whitelists; every user- or admin-supplied value is bound.
package datastore

import (
	"time"

	"gorm.io/gorm"

	"github.com/mycota/fieldobs/internal/errors"
	"github.com/mycota/fieldobs/internal/filter"
	"github.com/mycota/fieldobs/internal/normalize"
)

// Query executes the filtered, sorted, paginated SELECT for one result page.
// Metadata is decoded on every returned row.
func (ds *DataStore) Query(f *filter.CompiledFilter) ([]Observation, error) {
	start := time.Now()

	var observations []Observation
	err := ds.applyFilter(ds.DB.Model(&Observation{}), f).
		Order(orderClause(f)).
		Limit(f.PerPage).
		Offset(f.Offset()).
		Find(&observations).Error

	ds.observe("query", start, err)
	if err != nil {
		return nil, errors.Newf("querying observations: %w", err).
			Category(errors.CategoryDatabase).
			Component("datastore").
			Build()
	}

	if ds.Metrics != nil {
		ds.Metrics.RecordResultSize("query", len(observations))
	}

	for i := range observations {
		observations[i].DecodeMetadata()
	}
	return observations, nil
}

// Count executes COUNT(*) over the same WHERE clause as Query, without
// pagination, so totals stay consistent with the fetched pages.
func (ds *DataStore) Count(f *filter.CompiledFilter) (int64, error) {
	start := time.Now()

	var total int64
	err := ds.applyFilter(ds.DB.Model(&Observation{}), f).Count(&total).Error

	ds.observe("count", start, err)
	if err != nil {
		return 0, errors.Newf("counting observations: %w", err).
			Category(errors.CategoryDatabase).
			Component("datastore").
			Build()
	}
	return total, nil
}

// applyFilter adds the compiled WHERE predicates. Tokens within one
// dimension combine with OR, dimensions combine with AND.
func (ds *DataStore) applyFilter(q *gorm.DB, f *filter.CompiledFilter) *gorm.DB {
	if species, unknown := splitUnknownSpecies(f.Species); unknown || len(species) > 0 {
		switch {
		case unknown && len(species) > 0:
			q = q.Where("species_key IN ? OR species_label = '' OR species_label IS NULL", species)
		case unknown:
			q = q.Where("species_label = '' OR species_label IS NULL")
		default:
			q = q.Where("species_key IN ?", species)
		}
	}

	if len(f.Locations) > 0 {
		q = q.Where("location_key IN ?", f.Locations)
	}

	if f.HasDNA {
		q = q.Where(
			"id IN (SELECT DISTINCT observation_id FROM observation_fields WHERE "+dnaColumn(f.DNAProperty)+" LIKE ?)",
			f.DNAPattern)
	}

	return q
}

// splitUnknownSpecies separates the reserved unknown-species token, which
// compiles to the empty-or-null predicate instead of a value match.
func splitUnknownSpecies(tokens []string) (species []string, unknown bool) {
	for _, token := range tokens {
		if normalize.IsUnknownSpecies(token) {
			unknown = true
			continue
		}
		species = append(species, token)
	}
	return species, unknown
}

// dnaColumn maps the validated DNA property to its column literal. The
// default arm also swallows any zero value, so an unset property can never
// reach SQL.
func dnaColumn(p filter.DNAProperty) string {
	switch p {
	case filter.DNAPropertyValue:
		return "value"
	case filter.DNAPropertyDatatype:
		return "datatype"
	default:
		return "name"
	}
}

// orderClause renders ORDER BY from the whitelisted column and direction,
// with id as tiebreaker so pagination over equal sort values stays stable.
func orderClause(f *filter.CompiledFilter) string {
	return string(f.Sort) + " " + string(f.Order) + ", id " + string(f.Order)
}
