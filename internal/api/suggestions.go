package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// initSuggestionRoutes registers the autocomplete routes
func (c *Controller) initSuggestionRoutes() {
	c.Group.GET("/suggestions/species", c.GetSpeciesSuggestions)
	c.Group.GET("/suggestions/locations", c.GetLocationSuggestions)
}

// SuggestionsResponse carries one autocomplete projection
type SuggestionsResponse struct {
	Suggestions []string `json:"suggestions"`
}

// GetSpeciesSuggestions serves the distinct species list with the synthetic
// unknown-species entry first.
func (c *Controller) GetSpeciesSuggestions(ctx echo.Context) error {
	suggestions, err := c.Suggestions.Species()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to get species suggestions", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, SuggestionsResponse{Suggestions: suggestions})
}

// GetLocationSuggestions serves the distinct location list.
func (c *Controller) GetLocationSuggestions(ctx echo.Context) error {
	suggestions, err := c.Suggestions.Locations()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to get location suggestions", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, SuggestionsResponse{Suggestions: suggestions})
}
