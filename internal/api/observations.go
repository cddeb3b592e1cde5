package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/mycota/fieldobs/internal/datastore"
	"github.com/mycota/fieldobs/internal/errors"
	"github.com/mycota/fieldobs/internal/filter"
	"github.com/mycota/fieldobs/internal/querycache"
)

// initObservationRoutes registers the observation query routes
func (c *Controller) initObservationRoutes() {
	c.Group.GET("/observations", c.GetObservations)
	c.Group.GET("/observations/:id", c.GetObservation)
}

// ObservationsResponse is the paginated result page for observation queries
type ObservationsResponse struct {
	Results    []datastore.Observation `json:"results"`
	Total      int64                   `json:"total"`
	Page       int                     `json:"page"`
	PerPage    int                     `json:"per_page"`
	TotalPages int                     `json:"total_pages"`
}

// GetObservations serves filtered, sorted, paginated observation pages.
// Every query parameter is optional; malformed values fall back to defaults
// rather than erroring, so a hostile query string degrades to a valid one.
func (c *Controller) GetObservations(ctx echo.Context) error {
	params := filter.Params{
		Species: ctx.QueryParam("species"),
		Place:   ctx.QueryParam("place"),
		HasDNA:  ctx.QueryParam("has_dna"),
		Sort:    ctx.QueryParam("sort"),
		Order:   ctx.QueryParam("order"),
		Page:    ctx.QueryParam("page"),
		PerPage: ctx.QueryParam("per_page"),
	}
	f := filter.Compile(&params, &c.Settings.DNAFilter)

	// Filtered pages churn more, so they expire sooner.
	ttl := c.Settings.Cache.UnfilteredLifetime()
	if f.Active() {
		ttl = c.Settings.Cache.FilteredLifetime()
	}

	results, err := querycache.GetOrCompute(c.ResultCache, f.Key(), ttl,
		func() ([]datastore.Observation, error) {
			return c.DS.Query(f)
		})
	if err != nil {
		return c.HandleError(ctx, err, "Failed to query observations", http.StatusInternalServerError)
	}

	// The count is keyed without page and sort so every page of one filter
	// shares a single cached total.
	total, err := querycache.GetOrCompute(c.CountCache, f.CountKey(), ttl,
		func() (int64, error) {
			return c.DS.Count(f)
		})
	if err != nil {
		return c.HandleError(ctx, err, "Failed to count observations", http.StatusInternalServerError)
	}

	totalPages := int((total + int64(f.PerPage) - 1) / int64(f.PerPage))
	if totalPages < 1 {
		totalPages = 1
	}

	return ctx.JSON(http.StatusOK, ObservationsResponse{
		Results:    results,
		Total:      total,
		Page:       f.Page,
		PerPage:    f.PerPage,
		TotalPages: totalPages,
	})
}

// GetObservation serves a single observation by its upstream id.
func (c *Controller) GetObservation(ctx echo.Context) error {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid observation ID", http.StatusBadRequest)
	}

	obs, err := c.DS.Get(id)
	if err != nil {
		var enhanced *errors.EnhancedError
		if errors.As(err, &enhanced) && enhanced.Category == errors.CategoryNotFound {
			return c.HandleError(ctx, err, "Observation not found", http.StatusNotFound)
		}
		return c.HandleError(ctx, err, "Failed to get observation", http.StatusInternalServerError)
	}

	return ctx.JSON(http.StatusOK, obs)
}
