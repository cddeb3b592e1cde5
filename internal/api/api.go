// Package api provides the HTTP query surface: filtered observation pages,
// autocomplete suggestions, cache administration and health reporting.
package api

import (
	"crypto/rand"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/mycota/fieldobs/internal/conf"
	"github.com/mycota/fieldobs/internal/datastore"
	"github.com/mycota/fieldobs/internal/logging"
	"github.com/mycota/fieldobs/internal/observability"
	"github.com/mycota/fieldobs/internal/querycache"
	"github.com/mycota/fieldobs/internal/suggest"
)

// Controller handles the API routes.
type Controller struct {
	Echo        *echo.Echo
	Group       *echo.Group
	DS          datastore.Interface
	Settings    *conf.Settings
	ResultCache *querycache.Cache
	CountCache  *querycache.Cache
	Suggestions *suggest.Service
	Metrics     *observability.Metrics

	logger         *log.Logger
	apiLogger      *slog.Logger
	apiLoggerClose func() error
	startTime      time.Time
}

// New creates a new API controller and registers all routes under /api/v1.
// resultCache, countCache, suggestions and obs may each be nil.
func New(e *echo.Echo, ds datastore.Interface, settings *conf.Settings,
	resultCache, countCache *querycache.Cache, suggestions *suggest.Service,
	obs *observability.Metrics, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.Default()
	}

	c := &Controller{
		Echo:        e,
		DS:          ds,
		Settings:    settings,
		ResultCache: resultCache,
		CountCache:  countCache,
		Suggestions: suggestions,
		Metrics:     obs,
		logger:      logger,
		startTime:   time.Now(),
	}

	// Dedicated structured log for request traffic
	apiLevelVar := new(slog.LevelVar)
	if settings.WebServer.Debug {
		apiLevelVar.Set(slog.LevelDebug)
	} else {
		apiLevelVar.Set(slog.LevelInfo)
	}
	apiLogger, closeFunc, err := logging.NewFileLogger(filepath.Join("logs", "web.log"), "api", apiLevelVar)
	if err != nil {
		logger.Printf("Failed to initialize API structured logger: %v", err)
	} else {
		c.apiLogger = apiLogger
		c.apiLoggerClose = closeFunc
	}

	c.Group = e.Group("/api/v1")
	c.Group.Use(middleware.CORS())
	c.Group.Use(middleware.BodyLimit("1M"))
	c.Group.Use(c.LoggingMiddleware())

	c.initRoutes()
	return c
}

// initRoutes registers all API endpoints
func (c *Controller) initRoutes() {
	c.Group.GET("/health", c.HealthCheck)

	c.initObservationRoutes()
	c.initSuggestionRoutes()
	c.initCacheRoutes()

	if c.Metrics != nil {
		c.Group.GET("/metrics", echo.WrapHandler(c.Metrics.Handler()))
	}
}

// LoggingMiddleware creates a middleware function that logs API requests
func (c *Controller) LoggingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)

			if c.apiLogger == nil {
				return err
			}

			req := ctx.Request()
			res := ctx.Response()

			attrs := []slog.Attr{
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.String("query", req.URL.RawQuery),
				slog.Int("status", res.Status),
				slog.String("ip", ctx.RealIP()),
				slog.String("user_agent", req.UserAgent()),
				slog.Int64("latency_ms", time.Since(start).Milliseconds()),
			}
			if err != nil {
				attrs = append(attrs, slog.Any("error", err))
			}

			c.apiLogger.LogAttrs(req.Context(), slog.LevelInfo, "API Request", attrs...)
			return err
		}
	}
}

// HealthCheck handles the API health check endpoint
func (c *Controller) HealthCheck(ctx echo.Context) error {
	response := map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	}
	if c.Settings != nil && c.Settings.WebServer.Debug {
		response["environment"] = "development"
	} else {
		response["environment"] = "production"
	}

	// Simple connectivity probe against the datastore
	dbStatus := "connected"
	if _, err := c.DS.DistinctSpecies(); err != nil {
		dbStatus = "disconnected"
		response["database_error"] = err.Error()
	}
	response["database_status"] = dbStatus

	uptime := time.Since(c.startTime)
	response["uptime"] = uptime.String()
	response["uptime_seconds"] = uptime.Seconds()

	response["cache"] = map[string]any{
		"result_entries": c.ResultCache.ItemCount(),
		"count_entries":  c.CountCache.ItemCount(),
	}

	return ctx.JSON(http.StatusOK, response)
}

// Shutdown performs cleanup of resources used by the API controller.
func (c *Controller) Shutdown() {
	if c.apiLoggerClose != nil {
		if err := c.apiLoggerClose(); err != nil {
			c.logger.Printf("Error closing API log file: %v", err)
		}
	}

	// go-cache janitor goroutines cannot be stopped; flushing at least
	// releases the cached entries.
	c.ResultCache.Flush()
	c.CountCache.Flush()
}

// Error response structure
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"` // Unique identifier for tracking this error
}

// NewErrorResponse creates a new API error response
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	correlationID := generateCorrelationID()

	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}

	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: correlationID,
	}
}

// generateCorrelationID creates a unique identifier for error tracking
func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 8

	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "ERR-RAND"
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}

// HandleError constructs and returns an appropriate error response
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	errorResp := NewErrorResponse(err, message, code)
	ip := ctx.RealIP()

	c.logger.Printf("API Error [%s] from %s: %s: %v", errorResp.CorrelationID, ip, message, err)

	if c.apiLogger != nil {
		errorStr := message
		if err != nil {
			errorStr = err.Error()
		}
		c.apiLogger.Error("API Error",
			"correlation_id", errorResp.CorrelationID,
			"message", message,
			"error", errorStr,
			"code", code,
			"path", ctx.Request().URL.Path,
			"method", ctx.Request().Method,
			"ip", ip,
		)
	}

	return ctx.JSON(code, errorResp)
}

// Debug logs debug messages when debug mode is enabled
func (c *Controller) Debug(format string, v ...any) {
	if c.Settings.WebServer.Debug {
		msg := fmt.Sprintf(format, v...)
		c.logger.Printf("[DEBUG] %s", msg)
		if c.apiLogger != nil {
			c.apiLogger.Debug(msg)
		}
	}
}
