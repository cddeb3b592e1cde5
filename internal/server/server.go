// Package server wires the full service together: storage, caches,
// ingestion polling and the HTTP API, with graceful shutdown on SIGINT
// and SIGTERM.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mycota/fieldobs/internal/api"
	"github.com/mycota/fieldobs/internal/conf"
	"github.com/mycota/fieldobs/internal/datastore"
	"github.com/mycota/fieldobs/internal/ingest"
	"github.com/mycota/fieldobs/internal/logging"
	"github.com/mycota/fieldobs/internal/observability"
	"github.com/mycota/fieldobs/internal/querycache"
	"github.com/mycota/fieldobs/internal/suggest"
)

// shutdownTimeout bounds how long in-flight requests may run after a
// termination signal.
const shutdownTimeout = 10 * time.Second

// Run starts the service and blocks until a termination signal arrives.
func Run(settings *conf.Settings) error {
	metrics, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}

	dsLogger := logging.ForService("datastore")
	ds := datastore.New(settings, metrics.Datastore, dsLogger)
	if ds == nil {
		return fmt.Errorf("no database output enabled in configuration")
	}
	if err := ds.Open(); err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if err := ds.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	resultCache := querycache.New("results", metrics.Cache)
	countCache := querycache.New("counts", metrics.Cache)
	suggestionCache := querycache.New("suggestions", metrics.Cache)
	suggestions := suggest.New(ds, suggestionCache, settings.Cache.SuggestionLifetime(),
		logging.ForService("suggest"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quitChan := make(chan struct{})
	var wg sync.WaitGroup

	// Ingestion polling runs only when an upstream project is configured;
	// without one the service serves whatever the database already holds.
	if settings.Upstream.ProjectID > 0 {
		client, err := ingest.NewClient(ingest.Config{
			BaseURL:   settings.Upstream.BaseURL,
			APIToken:  settings.Upstream.APIToken,
			ProjectID: settings.Upstream.ProjectID,
			Timeout:   time.Duration(settings.Upstream.Timeout) * time.Second,
			PageSize:  settings.Upstream.PageSize,
		})
		if err != nil {
			return fmt.Errorf("initializing upstream client: %w", err)
		}
		defer client.Close()

		ingestService := ingest.NewService(client, ds, settings,
			resultCache, countCache, suggestions, metrics.Ingest)
		wg.Add(1)
		go func() {
			defer wg.Done()
			ingestService.StartPolling(ctx, quitChan)
		}()
	} else {
		log.Printf("No upstream project configured, ingestion disabled")
	}

	e := echo.New()
	e.HideBanner = true
	controller := api.New(e, ds, settings, resultCache, countCache,
		suggestions, metrics, log.Default())

	serverErr := make(chan error, 1)
	go func() {
		addr := ":" + settings.WebServer.Port
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()
	log.Printf("HTTP server listening on port %s", settings.WebServer.Port)

	var runErr error
	select {
	case <-monitorCtrlC():
	case err := <-serverErr:
		runErr = fmt.Errorf("HTTP server failed: %w", err)
	}
	close(quitChan)

	cancel()
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown: %v", err)
	}
	controller.Shutdown()

	return runErr
}

// monitorCtrlC returns a channel that receives once a termination signal
// arrives.
func monitorCtrlC() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

		<-sigChan
		fmt.Println("\nReceived termination signal, shutting down...")
		close(done)
	}()
	return done
}
