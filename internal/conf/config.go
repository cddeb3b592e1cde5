// config.go: This file contains the configuration for the fieldobs service.
// It defines the settings struct and functions to load the settings.
package conf

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// WebServerSettings contains settings for the HTTP API server.
type WebServerSettings struct {
	Debug bool   // true to enable debug mode
	Port  string // port for HTTP server
}

// OutputSettings contains database output settings.
type OutputSettings struct {
	SQLite struct {
		Enabled bool   // true to enable SQLite output
		Path    string // path to SQLite database
	}
	MySQL struct {
		Enabled  bool   // true to enable MySQL output
		Username string // MySQL username
		Password string // MySQL password
		Database string // MySQL database name
		Host     string // MySQL host
		Port     string // MySQL port
	}
}

// UpstreamSettings contains settings for the upstream observation source.
type UpstreamSettings struct {
	BaseURL       string // upstream API base URL
	APIToken      string // bearer token, empty for anonymous access
	ProjectID     int    // upstream project whose observations are mirrored
	Timeout       int    // request timeout in seconds
	PageSize      int    // observations fetched per request
	FetchInterval int    // minutes between ingestion runs
}

// CacheSettings contains query cache lifetimes, in seconds.
type CacheSettings struct {
	UnfilteredTTL int // lifetime for unfiltered result pages
	FilteredTTL   int // lifetime for filtered result pages
	SuggestionTTL int // lifetime for autocomplete projections
	DevTTL        int // when > 0, overrides all of the above for testing
}

// UnfilteredLifetime returns the TTL for queries without active filters.
func (c *CacheSettings) UnfilteredLifetime() time.Duration {
	if c.DevTTL > 0 {
		return time.Duration(c.DevTTL) * time.Second
	}
	return time.Duration(c.UnfilteredTTL) * time.Second
}

// FilteredLifetime returns the TTL for queries with at least one active filter.
func (c *CacheSettings) FilteredLifetime() time.Duration {
	if c.DevTTL > 0 {
		return time.Duration(c.DevTTL) * time.Second
	}
	return time.Duration(c.FilteredTTL) * time.Second
}

// SuggestionLifetime returns the TTL for autocomplete suggestion projections.
func (c *CacheSettings) SuggestionLifetime() time.Duration {
	if c.DevTTL > 0 {
		return time.Duration(c.DevTTL) * time.Second
	}
	return time.Duration(c.SuggestionTTL) * time.Second
}

// DNAFilterSettings controls how DNA evidence is detected on observation
// fields. Property selects the observation_fields column matched against
// Pattern; it is validated against a whitelist at the filter boundary and
// never used raw in SQL.
type DNAFilterSettings struct {
	Property string // observation field column to match: name, value or datatype
	Pattern  string // SQL LIKE pattern marking DNA evidence, prefix-anchored
}

// Settings contains all runtime settings, built once at process start and
// passed explicitly to the components that need them.
type Settings struct {
	Debug bool // true to enable debug mode

	WebServer WebServerSettings
	Output    OutputSettings
	Upstream  UpstreamSettings
	Cache     CacheSettings
	DNAFilter DNAFilterSettings
}

// Load reads the configuration file and returns the populated settings.
func Load() (*Settings, error) {
	setDefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.config/fieldobs")
	viper.AddConfigPath("/etc/fieldobs")

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// No config file is fine, defaults apply.
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return settings, nil
}

// setDefaultConfig registers the default value for every setting.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("webserver.debug", false)
	viper.SetDefault("webserver.port", "8090")

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "fieldobs.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "fieldobs")
	viper.SetDefault("output.mysql.password", "")
	viper.SetDefault("output.mysql.database", "fieldobs")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")

	viper.SetDefault("upstream.baseurl", "https://www.inaturalist.org/v1")
	viper.SetDefault("upstream.apitoken", "")
	viper.SetDefault("upstream.projectid", 0)
	viper.SetDefault("upstream.timeout", 30)
	viper.SetDefault("upstream.pagesize", 200)
	viper.SetDefault("upstream.fetchinterval", 1440)

	viper.SetDefault("cache.unfilteredttl", 3600)
	viper.SetDefault("cache.filteredttl", 300)
	viper.SetDefault("cache.suggestionttl", 3600)
	viper.SetDefault("cache.devttl", 0)

	viper.SetDefault("dnafilter.property", "name")
	viper.SetDefault("dnafilter.pattern", "DNA%")
}
