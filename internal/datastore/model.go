// model.go this code defines the data model for the application
package datastore

import (
	"encoding/json"
	"time"
)

// Observation represents a single biodiversity sighting mirrored from the
// upstream source. The primary key is supplied by upstream and stable across
// re-ingestion; re-ingesting an id replaces the row entirely.
type Observation struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement:false" json:"id"`
	ExternalUID string `gorm:"index:idx_observations_uid" json:"external_uid"`

	// ObservedAt is nil when the sighting date is unknown.
	ObservedAt *time.Time `gorm:"index:idx_observations_observed_at" json:"observed_at"`

	// SpeciesLabel uses the empty string as the "no species identified"
	// sentinel, distinct from an absent row.
	SpeciesLabel  string `json:"species_label"`
	TaxonName     string `gorm:"index:idx_observations_taxon" json:"taxon_name"`
	LocationLabel string `json:"location_label"`

	// SpeciesKey and LocationKey hold the normalized form of their display
	// columns, written on every upsert. Filter predicates compare against
	// these keys so matching is case-, accent- and punctuation-insensitive
	// on both sides.
	SpeciesKey  string `gorm:"index:idx_observations_species_key" json:"-"`
	LocationKey string `gorm:"index:idx_observations_location_key" json:"-"`

	PhotoURL         string `json:"photo_url,omitempty"`
	PhotoAttribution string `json:"photo_attribution,omitempty"`
	PhotoLicense     string `json:"photo_license,omitempty"`

	// Metadata stores the upstream attribute bag verbatim as a JSON-encoded
	// ordered list of {name, value} records.
	Metadata string `gorm:"type:text" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Fields is preloaded only on single-observation reads; list queries
	// leave it nil, which omits it from their JSON.
	Fields []ObservationField `gorm:"foreignKey:ObservationID;references:ID;constraint:OnDelete:CASCADE" json:"fields,omitempty"`

	// MetadataFields is decoded from Metadata before rows are returned, so
	// API consumers receive a structured value rather than a string.
	MetadataFields []MetadataField `gorm:"-" json:"metadata"`
}

// ObservationField represents one named attribute of an observation, such as
// a DNA barcode identifier. Zero or more fields per observation.
type ObservationField struct {
	ID            uint   `gorm:"primaryKey" json:"-"`
	ObservationID uint64 `gorm:"index:idx_observation_fields_obs" json:"observation_id"`
	Name          string `gorm:"index:idx_observation_fields_name" json:"name"`
	Value         string `json:"value"`
	Datatype      string `json:"datatype,omitempty"`
}

// MetadataField is one decoded entry of an observation's metadata bag.
type MetadataField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// DecodeMetadata populates MetadataFields from the stored Metadata column.
// Malformed or empty metadata decodes to an empty list rather than an error;
// the stored blob is advisory upstream data.
func (o *Observation) DecodeMetadata() {
	o.MetadataFields = []MetadataField{}
	if o.Metadata == "" {
		return
	}

	var fields []MetadataField
	if err := json.Unmarshal([]byte(o.Metadata), &fields); err != nil {
		return
	}
	o.MetadataFields = fields
}
