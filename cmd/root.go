package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mycota/fieldobs/cmd/ingest"
	"github.com/mycota/fieldobs/cmd/serve"
	"github.com/mycota/fieldobs/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fieldobs",
		Short: "Biodiversity observation mirror and query service",
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, settings); err != nil {
		cobra.CheckErr(err)
	}

	rootCmd.AddCommand(
		serve.Command(settings),
		ingest.Command(settings),
	)

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.WebServer.Port, "port", viper.GetString("webserver.port"), "Port for the HTTP server")
	rootCmd.PersistentFlags().IntVar(&settings.Upstream.ProjectID, "project", viper.GetInt("upstream.projectid"), "Upstream project whose observations are mirrored")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
