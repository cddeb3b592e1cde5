package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// initCacheRoutes registers the cache administration routes
func (c *Controller) initCacheRoutes() {
	c.Group.POST("/cache/flush", c.FlushCaches)
}

// FlushCaches invalidates the query result, count and suggestion caches so
// the next request of every shape recomputes from storage.
func (c *Controller) FlushCaches(ctx echo.Context) error {
	c.ResultCache.Flush()
	c.CountCache.Flush()
	if c.Suggestions != nil {
		c.Suggestions.Invalidate()
	}

	c.Debug("caches flushed on request from %s", ctx.RealIP())

	return ctx.JSON(http.StatusOK, map[string]string{"status": "flushed"})
}
