// query_test.go: Tests for the filtered observation query engine
package datastore

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mycota/fieldobs/internal/conf"
	"github.com/mycota/fieldobs/internal/filter"
)

// setupTestDB creates an in-memory SQLite database for testing
func setupTestDB(t *testing.T) *DataStore {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&Observation{}, &ObservationField{})
	require.NoError(t, err)

	return &DataStore{DB: db}
}

func observedAt(day int) *time.Time {
	ts := time.Date(2024, 9, day, 10, 0, 0, 0, time.UTC)
	return &ts
}

// seedTestData loads the standard fixture: ten observations across three
// species genera and three cities, ids 1001-1005 carrying DNA fields.
func seedTestData(t *testing.T, ds *DataStore) {
	t.Helper()

	seed := []struct {
		id       uint64
		species  string
		taxon    string
		location string
		day      int
		dna      bool
	}{
		{1001, "Amanita muscaria", "Amanita muscaria", "Seattle, WA", 1, true},
		{1002, "Amanita phalloides", "Amanita phalloides", "Portland, OR", 2, true},
		{1003, "Amanita virosa", "Amanita virosa", "Seattle, WA", 3, true},
		{1004, "Boletus edulis", "Boletus edulis", "Vancouver, BC", 4, true},
		{1005, "Cantharellus formosus", "Cantharellus formosus", "Portland, OR", 5, true},
		{1006, "Amanita muscaria", "Amanita muscaria", "Portland, OR", 6, false},
		{1007, "", "", "Seattle, WA", 7, false},
		{1008, "Boletus edulis", "Boletus edulis", "Seattle, WA", 8, false},
		{1009, "Cantharellus formosus", "Cantharellus formosus", "Vancouver, BC", 9, false},
		{1010, "", "", "Vancouver, BC", 10, false},
	}

	for _, s := range seed {
		obs := Observation{
			ID:            s.id,
			ExternalUID:   fmt.Sprintf("uid-%d", s.id),
			ObservedAt:    observedAt(s.day),
			SpeciesLabel:  s.species,
			TaxonName:     s.taxon,
			LocationLabel: s.location,
			Metadata:      "[]",
		}
		var fields []ObservationField
		if s.dna {
			fields = append(fields, ObservationField{
				Name:     fmt.Sprintf("DNA Barcode ITS #%d", s.id),
				Value:    fmt.Sprintf("BANKIT-%d", s.id),
				Datatype: "text",
			})
		}
		require.NoError(t, ds.Upsert(&obs, fields))
	}
}

func compile(params *filter.Params) *filter.CompiledFilter {
	return filter.Compile(params, &conf.DNAFilterSettings{Property: "name", Pattern: "DNA%"})
}

func resultIDs(observations []Observation) []uint64 {
	ids := make([]uint64, 0, len(observations))
	for i := range observations {
		ids = append(ids, observations[i].ID)
	}
	return ids
}

func TestQueryNoFilter(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)
	seedTestData(t, ds)

	f := compile(&filter.Params{})
	observations, err := ds.Query(f)
	require.NoError(t, err)
	assert.Len(t, observations, 10)

	total, err := ds.Count(f)
	require.NoError(t, err)
	assert.EqualValues(t, 10, total)

	// Default sort is observed_at descending.
	assert.EqualValues(t, 1010, observations[0].ID)
	assert.EqualValues(t, 1001, observations[9].ID)
}

func TestQuerySpeciesExactMatch(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)
	seedTestData(t, ds)

	variants := []string{"AMANITA MUSCARIA", "amanita muscaria", "AmAnItA mUsCaRiA"}
	for _, v := range variants {
		f := compile(&filter.Params{Species: v})
		observations, err := ds.Query(f)
		require.NoError(t, err)
		assert.ElementsMatch(t, []uint64{1001, 1006}, resultIDs(observations),
			"species match must be case-insensitive for %q", v)
	}

	// Exact match, not substring: the genus alone selects nothing.
	f := compile(&filter.Params{Species: "Amanita"})
	observations, err := ds.Query(f)
	require.NoError(t, err)
	assert.Empty(t, observations)
}

func TestQueryAccentInsensitiveLocation(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)
	seedTestData(t, ds)

	f := compile(&filter.Params{Place: "séattle  wa"})
	observations, err := ds.Query(f)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint64{1001, 1003, 1007, 1008}, resultIDs(observations))
}

func TestQueryUnknownSpecies(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)
	seedTestData(t, ds)

	f := compile(&filter.Params{Species: "Unknown Species"})
	observations, err := ds.Query(f)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint64{1007, 1010}, resultIDs(observations),
		"unknown species selects exactly the empty-label rows")
}

func TestQuerySpeciesUnion(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)
	seedTestData(t, ds)

	f := compile(&filter.Params{
		Species: `["Amanita muscaria","Amanita phalloides","Amanita virosa"]`,
	})
	observations, err := ds.Query(f)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint64{1001, 1002, 1003, 1006}, resultIDs(observations),
		"tokens within one dimension combine with OR")
}

func TestQueryUnknownSpeciesInUnion(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)
	seedTestData(t, ds)

	f := compile(&filter.Params{Species: `["Unknown Species","Boletus edulis"]`})
	observations, err := ds.Query(f)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint64{1004, 1007, 1008, 1010}, resultIDs(observations))
}

func TestQueryDimensionsIntersect(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)
	seedTestData(t, ds)

	speciesOnly := compile(&filter.Params{Species: `["Amanita muscaria","Amanita virosa"]`})
	locationOnly := compile(&filter.Params{Place: `["Seattle, WA"]`})
	dnaOnly := compile(&filter.Params{HasDNA: "1"})
	combined := compile(&filter.Params{
		Species: `["Amanita muscaria","Amanita virosa"]`,
		Place:   `["Seattle, WA"]`,
		HasDNA:  "1",
	})

	combinedRows, err := ds.Query(combined)
	require.NoError(t, err)
	combinedIDs := resultIDs(combinedRows)
	assert.ElementsMatch(t, []uint64{1001, 1003}, combinedIDs)

	for name, f := range map[string]*filter.CompiledFilter{
		"species":  speciesOnly,
		"location": locationOnly,
		"dna":      dnaOnly,
	} {
		rows, err := ds.Query(f)
		require.NoError(t, err)
		assert.Subset(t, resultIDs(rows), combinedIDs,
			"%s-only results must be a superset of the combined filter", name)
	}
}

func TestQueryDNAProperty(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)
	seedTestData(t, ds)

	t.Run("match on value column", func(t *testing.T) {
		t.Parallel()
		f := filter.Compile(&filter.Params{HasDNA: "1"},
			&conf.DNAFilterSettings{Property: "value", Pattern: "BANKIT-%"})
		observations, err := ds.Query(f)
		require.NoError(t, err)
		assert.ElementsMatch(t, []uint64{1001, 1002, 1003, 1004, 1005}, resultIDs(observations))
	})

	t.Run("prefix pattern does not match interior text", func(t *testing.T) {
		t.Parallel()
		f := filter.Compile(&filter.Params{HasDNA: "1"},
			&conf.DNAFilterSettings{Property: "name", Pattern: "Barcode%"})
		observations, err := ds.Query(f)
		require.NoError(t, err)
		assert.Empty(t, observations, "pattern is prefix-anchored by design")
	})
}

func TestQueryPagination(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)
	seedTestData(t, ds)

	perPage := 3
	var seen []uint64
	for page := 1; page <= 4; page++ {
		f := compile(&filter.Params{
			Page:    fmt.Sprintf("%d", page),
			PerPage: fmt.Sprintf("%d", perPage),
		})
		rows, err := ds.Query(f)
		require.NoError(t, err)

		for _, id := range resultIDs(rows) {
			assert.NotContains(t, seen, id, "pages must not overlap")
			seen = append(seen, id)
		}
	}
	assert.Len(t, seen, 10, "pages together reconstruct the full set")

	f := compile(&filter.Params{PerPage: "3"})
	total, err := ds.Count(f)
	require.NoError(t, err)
	assert.EqualValues(t, 10, total)
}

func TestQuerySortWhitelist(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)
	seedTestData(t, ds)

	f := compile(&filter.Params{Sort: "species", Order: "asc"})
	rows, err := ds.Query(f)
	require.NoError(t, err)
	require.Len(t, rows, 10)

	// Empty labels sort first ascending.
	assert.Empty(t, rows[0].SpeciesLabel)
	assert.Equal(t, "Cantharellus formosus", rows[9].SpeciesLabel)
}

func TestQueryInjectionResistance(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)
	seedTestData(t, ds)

	count := func() (obs, fields int64) {
		require.NoError(t, ds.DB.Model(&Observation{}).Count(&obs).Error)
		require.NoError(t, ds.DB.Model(&ObservationField{}).Count(&fields).Error)
		return obs, fields
	}
	obsBefore, fieldsBefore := count()

	hostile := []*filter.CompiledFilter{
		compile(&filter.Params{Species: `"x'; DROP TABLE observations;--"`}),
		compile(&filter.Params{Place: `["Seattle' OR '1'='1"]`}),
		compile(&filter.Params{Sort: "1; DELETE FROM observations", Order: "asc'--"}),
		filter.Compile(&filter.Params{HasDNA: "1"},
			&conf.DNAFilterSettings{
				Property: "name); DELETE FROM observation_fields;--",
				Pattern:  "%'; DROP TABLE observation_fields;--",
			}),
	}

	for _, f := range hostile {
		_, err := ds.Query(f)
		require.NoError(t, err)
		_, err = ds.Count(f)
		require.NoError(t, err)
	}

	obsAfter, fieldsAfter := count()
	assert.Equal(t, obsBefore, obsAfter, "row counts unchanged after injection attempts")
	assert.Equal(t, fieldsBefore, fieldsAfter)
}

func TestUpsertReplaces(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)

	first := Observation{
		ID:            42,
		SpeciesLabel:  "Amanita muscaria",
		LocationLabel: "Seattle, WA",
		Metadata:      `[{"name":"Habitat","value":"conifer duff"}]`,
	}
	require.NoError(t, ds.Upsert(&first, []ObservationField{
		{Name: "DNA Barcode ITS", Value: "BANKIT-1"},
	}))

	second := Observation{
		ID:            42,
		SpeciesLabel:  "Amanita phalloides",
		LocationLabel: "Portland, OR",
		Metadata:      "[]",
	}
	require.NoError(t, ds.Upsert(&second, nil))

	var rows int64
	require.NoError(t, ds.DB.Model(&Observation{}).Count(&rows).Error)
	assert.EqualValues(t, 1, rows, "storing the same id twice leaves exactly one row")

	got, err := ds.Get(42)
	require.NoError(t, err)
	assert.Equal(t, "Amanita phalloides", got.SpeciesLabel)
	assert.Equal(t, "Portland, OR", got.LocationLabel)
	assert.Empty(t, got.Fields, "prior fields are replaced, not merged")
	assert.Empty(t, got.MetadataFields)
}

func TestGetDecodesMetadata(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)

	obs := Observation{
		ID:           7,
		SpeciesLabel: "Boletus edulis",
		Metadata:     `[{"name":"Substrate","value":"soil"},{"name":"Odor","value":"none"}]`,
	}
	require.NoError(t, ds.Upsert(&obs, nil))

	got, err := ds.Get(7)
	require.NoError(t, err)
	require.Len(t, got.MetadataFields, 2)
	assert.Equal(t, MetadataField{Name: "Substrate", Value: "soil"}, got.MetadataFields[0])
	assert.Equal(t, MetadataField{Name: "Odor", Value: "none"}, got.MetadataFields[1])
}

func TestGetNotFound(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)

	_, err := ds.Get(999)
	require.Error(t, err)
}

func TestDistinctProjections(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)
	seedTestData(t, ds)

	species, err := ds.DistinctSpecies()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Amanita muscaria", "Amanita phalloides", "Amanita virosa",
		"Boletus edulis", "Cantharellus formosus",
	}, species, "distinct species are ordered and exclude the empty sentinel")

	locations, err := ds.DistinctLocations()
	require.NoError(t, err)
	assert.Equal(t, []string{"Portland, OR", "Seattle, WA", "Vancouver, BC"}, locations)
}
