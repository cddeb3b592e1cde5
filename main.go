package main

import (
	"log"
	"os"

	"github.com/mycota/fieldobs/cmd"
	"github.com/mycota/fieldobs/internal/conf"
	"github.com/mycota/fieldobs/internal/logging"
)

func main() {
	logging.Init()

	settings, err := conf.Load()
	if err != nil {
		log.Printf("Error loading configuration: %v", err)
		os.Exit(1)
	}

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
