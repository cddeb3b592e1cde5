// Package ingest implements the command that runs one ingestion cycle.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mycota/fieldobs/internal/conf"
	"github.com/mycota/fieldobs/internal/datastore"
	ingestsvc "github.com/mycota/fieldobs/internal/ingest"
	"github.com/mycota/fieldobs/internal/logging"
)

// Command creates the ingest command, which fetches the configured upstream
// project once and exits. Useful for cron-driven setups and for seeding a
// fresh database.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Fetch upstream observations once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(settings)
		},
	}
}

func runOnce(settings *conf.Settings) error {
	ds := datastore.New(settings, nil, logging.ForService("datastore"))
	if ds == nil {
		return fmt.Errorf("no database output enabled in configuration")
	}
	if err := ds.Open(); err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		_ = ds.Close()
	}()

	client, err := ingestsvc.NewClient(ingestsvc.Config{
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

	service := ingestsvc.NewService(client, ds, settings, nil, nil, nil, nil)
	return service.Run(context.Background())
}
