package ingest

import "time"

// Config holds the upstream client configuration
type Config struct {
	BaseURL   string        // upstream API base URL
	APIToken  string        // bearer token, empty for anonymous access
	ProjectID int           // project whose observations are mirrored
	Timeout   time.Duration // per-request timeout
	PageSize  int           // observations fetched per request
}

// DefaultConfig returns the default upstream client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL:  "https://www.inaturalist.org/v1",
		Timeout:  30 * time.Second,
		PageSize: 200,
	}
}

// RawObservation is one observation record as delivered by the upstream API.
type RawObservation struct {
	ID           uint64 `json:"id"`
	UUID         string `json:"uuid"`
	ObservedOn   string `json:"time_observed_at"`
	SpeciesGuess string `json:"species_guess"`
	Taxon        struct {
		Name string `json:"name"`
	} `json:"taxon"`
	PlaceGuess string     `json:"place_guess"`
	Photos     []RawPhoto `json:"photos"`

	FieldValues []RawFieldValue `json:"observation_field_values"`
}

// RawPhoto is upstream photo metadata.
type RawPhoto struct {
	URL         string `json:"url"`
	Attribution string `json:"attribution"`
	LicenseCode string `json:"license_code"`
}

// RawFieldValue is one upstream observation field value with its definition.
type RawFieldValue struct {
	Value            string `json:"value"`
	ObservationField struct {
		Name     string `json:"name"`
		Datatype string `json:"datatype"`
	} `json:"observation_field"`
}

// observationsResponse is the paged envelope around upstream results.
type observationsResponse struct {
	TotalResults int              `json:"total_results"`
	Page         int              `json:"page"`
	PerPage      int              `json:"per_page"`
	Results      []RawObservation `json:"results"`
}

// apiError is the upstream error payload.
type apiError struct {
	Status int    `json:"status"`
	Error  string `json:"error"`
}
