package ingest

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mycota/fieldobs/internal/conf"
	"github.com/mycota/fieldobs/internal/datastore"
	"github.com/mycota/fieldobs/internal/filter"
	"github.com/mycota/fieldobs/internal/querycache"
)

func newServiceTestStore(t *testing.T) *datastore.SQLiteStore {
	t.Helper()

	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = ":memory:"

	store := &datastore.SQLiteStore{Settings: settings}
	require.NoError(t, store.Open())
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}

func newTestService(t *testing.T) (*Service, *datastore.SQLiteStore, *querycache.Cache) {
	t.Helper()

	store := newServiceTestStore(t)
	client := newTestClient(t)
	cache := querycache.New("results", nil)

	settings := &conf.Settings{}
	settings.Upstream.FetchInterval = 60

	svc := NewService(client, store, settings, cache, nil, nil, nil)
	return svc, store, cache
}

func TestServiceRunStoresRecords(t *testing.T) {
	svc, store, cache := newTestService(t)

	// A cached entry that must disappear once the cycle stores fresh rows.
	cache.Set("results:v1:stale", []uint64{9}, time.Minute)

	pages := map[string]string{
		"1": `{"total_results":3,"page":1,"per_page":2,"results":[
			{"id":1001,"species_guess":"Amanita muscaria","place_guess":"Seattle, WA"},
			{"id":1002,"species_guess":"Amanita phalloides","place_guess":"Portland, OR"}]}`,
		"2": `{"total_results":3,"page":2,"per_page":2,"results":[
			{"id":1003,"species_guess":"Amanita virosa","place_guess":"Seattle, WA"}]}`,
	}
	httpmock.RegisterResponder("GET", `=~^https://upstream\.test/v1/observations`,
		func(req *http.Request) (*http.Response, error) {
			return httpmock.NewStringResponse(http.StatusOK, pages[req.URL.Query().Get("page")]), nil
		})

	require.NoError(t, svc.Run(context.Background()))

	count, err := store.Count(&filter.CompiledFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)

	obs, err := store.Get(1001)
	require.NoError(t, err)
	assert.Equal(t, "Amanita muscaria", obs.SpeciesLabel)

	_, found := cache.Get("results:v1:stale")
	assert.False(t, found, "successful ingestion flushes the query cache")
	assert.Equal(t, 2, httpmock.GetTotalCallCount(), "a short final page ends pagination")
}

func TestServiceRunEmptyUpstream(t *testing.T) {
	svc, store, cache := newTestService(t)

	cache.Set("results:v1:warm", []uint64{1}, time.Minute)

	httpmock.RegisterResponder("GET", `=~^https://upstream\.test/v1/observations`,
		httpmock.NewStringResponder(http.StatusOK, `{"total_results":0,"page":1,"per_page":2,"results":[]}`))

	require.NoError(t, svc.Run(context.Background()))

	count, err := store.Count(&filter.CompiledFilter{})
	require.NoError(t, err)
	assert.Zero(t, count)

	_, found := cache.Get("results:v1:warm")
	assert.True(t, found, "a cycle that stores nothing leaves caches alone")
}

func TestServiceRunUpstreamFailure(t *testing.T) {
	svc, store, cache := newTestService(t)

	// Pre-existing row and cache entry must survive a failed cycle.
	require.NoError(t, store.Upsert(&datastore.Observation{ID: 500, SpeciesLabel: "Boletus edulis"}, nil))
	cache.Set("results:v1:warm", []uint64{500}, time.Minute)

	httpmock.RegisterResponder("GET", `=~^https://upstream\.test/v1/observations`,
		httpmock.NewStringResponder(http.StatusInternalServerError, "upstream down"))

	err := svc.Run(context.Background())
	require.Error(t, err)

	obs, getErr := store.Get(500)
	require.NoError(t, getErr)
	assert.Equal(t, "Boletus edulis", obs.SpeciesLabel)

	_, found := cache.Get("results:v1:warm")
	assert.True(t, found, "a failed cycle leaves caches untouched")
}

func TestServiceRunIdempotent(t *testing.T) {
	svc, store, _ := newTestService(t)

	body := `{"total_results":1,"page":1,"per_page":2,"results":[
		{"id":1001,"species_guess":"Amanita muscaria",
		 "observation_field_values":[{"value":"BANKIT-1","observation_field":{"name":"DNA Barcode ITS","datatype":"text"}}]}]}`
	httpmock.RegisterResponder("GET", `=~^https://upstream\.test/v1/observations`,
		httpmock.NewStringResponder(http.StatusOK, body))

	require.NoError(t, svc.Run(context.Background()))
	require.NoError(t, svc.Run(context.Background()))

	count, err := store.Count(&filter.CompiledFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, count, "re-ingesting the same record replaces, not duplicates")

	obs, err := store.Get(1001)
	require.NoError(t, err)
	require.Len(t, obs.Fields, 1, "replaced rows do not accumulate duplicate fields")
	assert.Equal(t, "BANKIT-1", obs.Fields[0].Value)
}

func TestServiceSkipsOverlappingRun(t *testing.T) {
	svc, _, _ := newTestService(t)

	require.True(t, svc.tryAcquire())
	defer svc.release()

	// With the lock held a run should bail out immediately without
	// touching the upstream at all.
	require.NoError(t, svc.Run(context.Background()))
	assert.Zero(t, httpmock.GetTotalCallCount())
}
