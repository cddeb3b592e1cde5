// Package serve implements the command that runs the HTTP service.
package serve

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mycota/fieldobs/internal/conf"
	"github.com/mycota/fieldobs/internal/server"
)

// Command creates the serve command, which runs the HTTP API with periodic
// upstream ingestion until terminated.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the observation query service",
		Long:  "Start the HTTP API and, when an upstream project is configured, periodic ingestion of its observations.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return server.Run(settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		cobra.CheckErr(err)
	}

	return cmd
}

// setupFlags configures flags specific to the serve command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().IntVar(&settings.Upstream.FetchInterval, "fetchinterval", viper.GetInt("upstream.fetchinterval"), "Minutes between ingestion runs")
	cmd.Flags().IntVar(&settings.Cache.DevTTL, "devttl", viper.GetInt("cache.devttl"), "Override all cache lifetimes, in seconds (development)")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
