package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mycota/fieldobs/internal/errors"
	"github.com/mycota/fieldobs/internal/logging"
)

// Package-level logger specific to the ingest service
var (
	serviceLogger   *slog.Logger
	serviceLevelVar = new(slog.LevelVar) // Dynamic level control
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "ingest.log")
	serviceLevelVar.Set(slog.LevelDebug)

	serviceLogger, closeLogger, err = logging.NewFileLogger(logFilePath, "ingest", serviceLevelVar)
	if err != nil {
		// Fallback: disable service file logging but keep a usable logger
		log.Printf("Failed to initialize ingest file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		serviceLogger = slog.New(fbHandler).With("service", "ingest")
		closeLogger = func() error { return nil }
	}
}

// Client fetches observation records from the upstream source
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a new upstream API client
func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" {
		config.BaseURL = DefaultConfig().BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if config.PageSize <= 0 {
		config.PageSize = DefaultConfig().PageSize
	}
	if config.ProjectID <= 0 {
		return nil, errors.Newf("upstream project id is required").
			Category(errors.CategoryConfiguration).
			Component("ingest").
			Build()
	}

	client := &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}

	serviceLogger.Info("upstream client initialized",
		"base_url", config.BaseURL,
		"project_id", config.ProjectID,
		"page_size", config.PageSize,
		"token_configured", config.APIToken != "")

	return client, nil
}

// Close cleans up client resources
func (c *Client) Close() {
	if closeLogger != nil {
		if err := closeLogger(); err != nil {
			log.Printf("Error closing ingest logger: %v", err)
		}
	}
}

// FetchObservations retrieves one page of the project's observations.
func (c *Client) FetchObservations(ctx context.Context, page int) ([]RawObservation, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	query := url.Values{}
	query.Set("project_id", strconv.Itoa(c.config.ProjectID))
	query.Set("per_page", strconv.Itoa(c.config.PageSize))
	query.Set("page", strconv.Itoa(page))

	endpoint := fmt.Sprintf("%s/observations?%s", c.config.BaseURL, query.Encode())

	var envelope observationsResponse
	if err := c.doRequestWithRetry(reqCtx, endpoint, &envelope); err != nil {
		return nil, err
	}

	serviceLogger.Debug("fetched observation page",
		"page", page,
		"results", len(envelope.Results),
		"total_results", envelope.TotalResults)

	return envelope.Results, nil
}

// doRequest performs a single authenticated GET and decodes the JSON response
func (c *Client) doRequest(ctx context.Context, endpoint string, result any) error {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return errors.Newf("failed to create HTTP request: %w", err).
			Category(errors.CategoryNetwork).
			Context("url", endpoint).
			Component("ingest").
			Build()
	}

	req.Header.Set("Accept", "application/json")
	if c.config.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		serviceLogger.Error("upstream request failed", "url", endpoint, "error", err)
		return errors.Newf("HTTP request failed: %w", err).
			Category(errors.CategoryNetwork).
			Context("url", endpoint).
			Component("ingest").
			Build()
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Newf("failed to read response body: %w", err).
			Category(errors.CategoryNetwork).
			Context("url", endpoint).
			Context("status_code", resp.StatusCode).
			Component("ingest").
			Build()
	}

	if resp.StatusCode >= 400 {
		var upstreamErr apiError
		detail := string(bodyBytes)
		if err := json.Unmarshal(bodyBytes, &upstreamErr); err == nil && upstreamErr.Error != "" {
			detail = upstreamErr.Error
		}

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			serviceLogger.Error("upstream authentication failed",
				"status_code", resp.StatusCode,
				"url", endpoint,
				"token_configured", c.config.APIToken != "")
		} else {
			serviceLogger.Warn("upstream error response",
				"status_code", resp.StatusCode,
				"url", endpoint,
				"detail", detail)
		}

		return errors.Newf("upstream API error (status %d): %s", resp.StatusCode, detail).
			Category(categoryForStatus(resp.StatusCode)).
			Context("status_code", resp.StatusCode).
			Context("url", endpoint).
			Component("ingest").
			Build()
	}

	if result != nil {
		if err := json.Unmarshal(bodyBytes, result); err != nil {
			serviceLogger.Error("failed to parse upstream response",
				"url", endpoint,
				"response_size", len(bodyBytes),
				"error", err)
			return errors.Newf("failed to parse response: %w", err).
				Category(errors.CategoryFileParsing).
				Context("url", endpoint).
				Component("ingest").
				Build()
		}
	}

	serviceLogger.Debug("upstream request successful",
		"url", endpoint,
		"duration_ms", time.Since(start).Milliseconds(),
		"response_size", len(bodyBytes))

	return nil
}

// doRequestWithRetry wraps doRequest with retry logic for transient failures
func (c *Client) doRequestWithRetry(ctx context.Context, endpoint string, result any) error {
	const maxRetries = 3
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := c.doRequest(ctx, endpoint, result)
		if err == nil {
			return nil
		}

		// Auth, validation and parse failures will not succeed on retry
		var enhancedErr *errors.EnhancedError
		if errors.As(err, &enhancedErr) {
			switch enhancedErr.Category {
			case errors.CategoryConfiguration, errors.CategoryValidation,
				errors.CategoryNotFound, errors.CategoryFileParsing:
				return err
			}
			if statusCode, ok := enhancedErr.Context["status_code"].(int); ok {
				if statusCode >= 400 && statusCode < 500 && statusCode != http.StatusTooManyRequests {
					return err
				}
			}
		}

		lastErr = err

		if ctx.Err() != nil {
			return lastErr
		}

		delay := time.Duration(attempt+1) * 500 * time.Millisecond
		if attempt < maxRetries-1 {
			serviceLogger.Warn("upstream request failed, retrying",
				"attempt", attempt+1,
				"max_retries", maxRetries,
				"delay_ms", delay.Milliseconds(),
				"url", endpoint,
				"error", err.Error())

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return lastErr
}

// categoryForStatus determines the error category for an HTTP status code
func categoryForStatus(statusCode int) errors.ErrorCategory {
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.CategoryConfiguration
	case http.StatusTooManyRequests:
		return errors.CategoryLimit
	case http.StatusNotFound:
		return errors.CategoryNotFound
	default:
		return errors.CategoryNetwork
	}
}
