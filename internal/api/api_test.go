package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mycota/fieldobs/internal/conf"
	"github.com/mycota/fieldobs/internal/datastore"
	"github.com/mycota/fieldobs/internal/filter"
	"github.com/mycota/fieldobs/internal/querycache"
	"github.com/mycota/fieldobs/internal/suggest"
)

func testSettings() *conf.Settings {
	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = ":memory:"
	settings.Cache.UnfilteredTTL = 3600
	settings.Cache.FilteredTTL = 300
	settings.Cache.SuggestionTTL = 3600
	settings.DNAFilter.Property = "name"
	settings.DNAFilter.Pattern = "DNA%"
	return settings
}

// setupTestController wires a controller against a seeded in-memory store.
func setupTestController(t *testing.T) (*echo.Echo, *Controller, *datastore.SQLiteStore) {
	t.Helper()

	settings := testSettings()

	store := &datastore.SQLiteStore{Settings: settings}
	require.NoError(t, store.Open())
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	observedAt := time.Date(2024, 9, 1, 10, 0, 0, 0, time.UTC)
	seed := []struct {
		id       uint64
		species  string
		location string
		dna      bool
	}{
		{1001, "Amanita muscaria", "Seattle, WA", true},
		{1002, "Amanita phalloides", "Portland, OR", false},
		{1003, "Boletus edulis", "Seattle, WA", false},
	}
	for _, s := range seed {
		ts := observedAt.Add(time.Duration(s.id) * time.Minute)
		obs := datastore.Observation{
			ID:            s.id,
			ObservedAt:    &ts,
			SpeciesLabel:  s.species,
			LocationLabel: s.location,
			Metadata:      "[]",
		}
		var fields []datastore.ObservationField
		if s.dna {
			fields = append(fields, datastore.ObservationField{
				Name: "DNA Barcode ITS", Value: "BANKIT-1", Datatype: "text",
			})
		}
		require.NoError(t, store.Upsert(&obs, fields))
	}

	e := echo.New()
	resultCache := querycache.New("results", nil)
	countCache := querycache.New("counts", nil)
	suggestions := suggest.New(store, querycache.New("suggestions", nil), time.Minute, nil)

	controller := New(e, store, settings, resultCache, countCache, suggestions, nil, nil)
	return e, controller, store
}

func getObservations(t *testing.T, e *echo.Echo, controller *Controller, target string) (*httptest.ResponseRecorder, ObservationsResponse) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, target, http.NoBody)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, controller.GetObservations(c))

	var resp ObservationsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func TestGetObservationsDefaults(t *testing.T) {
	e, controller, _ := setupTestController(t)

	rec, resp := getObservations(t, e, controller, "/api/v1/observations")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, resp.Total)
	assert.Equal(t, 1, resp.Page)
	assert.Equal(t, filter.DefaultPerPage, resp.PerPage)
	assert.Equal(t, 1, resp.TotalPages)
	require.Len(t, resp.Results, 3)
	assert.EqualValues(t, 1003, resp.Results[0].ID, "newest observation comes first")
}

func TestGetObservationsFiltered(t *testing.T) {
	e, controller, _ := setupTestController(t)

	_, resp := getObservations(t, e, controller,
		`/api/v1/observations?species=%5B%22amanita%20muscaria%22%5D&place=%5B%22seattle%2C%20wa%22%5D&has_dna=1`)

	require.Len(t, resp.Results, 1)
	assert.EqualValues(t, 1001, resp.Results[0].ID)
	assert.EqualValues(t, 1, resp.Total)
}

func TestGetObservationsClampsPerPage(t *testing.T) {
	e, controller, _ := setupTestController(t)

	_, resp := getObservations(t, e, controller, "/api/v1/observations?per_page=500&page=-3")

	assert.Equal(t, filter.MaxPerPage, resp.PerPage)
	assert.Equal(t, 1, resp.Page)
}

func TestGetObservationsPagination(t *testing.T) {
	e, controller, _ := setupTestController(t)

	_, page1 := getObservations(t, e, controller, "/api/v1/observations?per_page=2&page=1")
	_, page2 := getObservations(t, e, controller, "/api/v1/observations?per_page=2&page=2")

	assert.Equal(t, 2, page1.TotalPages)
	require.Len(t, page1.Results, 2)
	require.Len(t, page2.Results, 1)
	assert.NotEqual(t, page1.Results[0].ID, page2.Results[0].ID)
}

func TestGetObservationsServedFromCache(t *testing.T) {
	e, controller, store := setupTestController(t)

	_, before := getObservations(t, e, controller, "/api/v1/observations")
	assert.EqualValues(t, 3, before.Total)

	// A row written behind the cache's back stays invisible until the TTL
	// or an explicit flush.
	require.NoError(t, store.Upsert(&datastore.Observation{ID: 1004, SpeciesLabel: "Cantharellus formosus"}, nil))

	_, cached := getObservations(t, e, controller, "/api/v1/observations")
	assert.EqualValues(t, 3, cached.Total, "repeated query is served from cache")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cache/flush", http.NoBody)
	rec := httptest.NewRecorder()
	require.NoError(t, controller.FlushCaches(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusOK, rec.Code)

	_, fresh := getObservations(t, e, controller, "/api/v1/observations")
	assert.EqualValues(t, 4, fresh.Total, "flush makes new rows visible")
}

func TestGetObservationByID(t *testing.T) {
	e, controller, _ := setupTestController(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/observations/1001", http.NoBody)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("1001")

	require.NoError(t, controller.GetObservation(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var obs datastore.Observation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &obs))
	assert.Equal(t, "Amanita muscaria", obs.SpeciesLabel)
	require.Len(t, obs.Fields, 1)
}

func TestGetObservationNotFound(t *testing.T) {
	e, controller, _ := setupTestController(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/observations/99999", http.NoBody)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("99999")

	require.NoError(t, controller.GetObservation(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, http.StatusNotFound, errResp.Code)
	assert.NotEmpty(t, errResp.CorrelationID)
}

func TestGetObservationInvalidID(t *testing.T) {
	e, controller, _ := setupTestController(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/observations/abc", http.NoBody)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("abc")

	require.NoError(t, controller.GetObservation(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSpeciesSuggestions(t *testing.T) {
	e, controller, _ := setupTestController(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/suggestions/species", http.NoBody)
	rec := httptest.NewRecorder()
	require.NoError(t, controller.GetSpeciesSuggestions(e.NewContext(req, rec)))

	var resp SuggestionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Suggestions)
	assert.Equal(t, suggest.UnknownSpeciesLabel, resp.Suggestions[0])
	assert.Contains(t, resp.Suggestions, "Boletus edulis")
}

func TestLocationSuggestions(t *testing.T) {
	e, controller, _ := setupTestController(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/suggestions/locations", http.NoBody)
	rec := httptest.NewRecorder()
	require.NoError(t, controller.GetLocationSuggestions(e.NewContext(req, rec)))

	var resp SuggestionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"Portland, OR", "Seattle, WA"}, resp.Suggestions)
}

func TestHealthCheck(t *testing.T) {
	e, controller, _ := setupTestController(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", http.NoBody)
	rec := httptest.NewRecorder()
	require.NoError(t, controller.HealthCheck(e.NewContext(req, rec)))

	assert.Equal(t, http.StatusOK, rec.Code)

	var response map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "healthy", response["status"])
	assert.Equal(t, "connected", response["database_status"])

	_, err := time.Parse(time.RFC3339, response["timestamp"].(string))
	assert.NoError(t, err)
}

// failingStore errors on every read so handler error paths can be exercised.
type failingStore struct {
	datastore.Interface
}

func (f *failingStore) Query(*filter.CompiledFilter) ([]datastore.Observation, error) {
	return nil, errors.New("database locked")
}

func (f *failingStore) Count(*filter.CompiledFilter) (int64, error) {
	return 0, errors.New("database locked")
}

func TestStorageFailureReturnsError(t *testing.T) {
	e, controller, store := setupTestController(t)
	controller.DS = &failingStore{Interface: store}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/observations", http.NoBody)
	rec := httptest.NewRecorder()
	require.NoError(t, controller.GetObservations(e.NewContext(req, rec)))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.NotEmpty(t, errResp.CorrelationID)
	assert.Contains(t, errResp.Error, "database locked")
}
