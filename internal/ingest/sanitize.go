package ingest

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/k3a/html2text"

	"github.com/mycota/fieldobs/internal/datastore"
)

// observedAtLayouts are tried in order when parsing the upstream timestamp.
var observedAtLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// sanitizeText strips markup and surrounding whitespace from an upstream
// free-text field. Upstream values may carry user-authored HTML.
func sanitizeText(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(html2text.HTML2Text(s))
}

// parseObservedAt returns nil when the upstream date is absent or
// unparseable; absence means "date unknown".
func parseObservedAt(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range observedAtLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return &ts
		}
	}
	return nil
}

// ToObservation converts one upstream record into a storable observation and
// its fields. Missing optional text defaults to the empty string, a missing
// date to nil, and missing metadata to an empty encoded list.
func ToObservation(raw *RawObservation) (datastore.Observation, []datastore.ObservationField) {
	obs := datastore.Observation{
		ID:            raw.ID,
		ExternalUID:   strings.TrimSpace(raw.UUID),
		ObservedAt:    parseObservedAt(raw.ObservedOn),
		SpeciesLabel:  sanitizeText(raw.SpeciesGuess),
		TaxonName:     sanitizeText(raw.Taxon.Name),
		LocationLabel: sanitizeText(raw.PlaceGuess),
		Metadata:      encodeMetadata(raw.FieldValues),
	}

	if len(raw.Photos) > 0 {
		obs.PhotoURL = strings.TrimSpace(raw.Photos[0].URL)
		obs.PhotoAttribution = sanitizeText(raw.Photos[0].Attribution)
		obs.PhotoLicense = strings.TrimSpace(raw.Photos[0].LicenseCode)
	}

	fields := make([]datastore.ObservationField, 0, len(raw.FieldValues))
	for _, fv := range raw.FieldValues {
		name := sanitizeText(fv.ObservationField.Name)
		if name == "" {
			continue
		}
		fields = append(fields, datastore.ObservationField{
			ObservationID: raw.ID,
			Name:          name,
			Value:         sanitizeText(fv.Value),
			Datatype:      strings.TrimSpace(fv.ObservationField.Datatype),
		})
	}

	return obs, fields
}

// encodeMetadata re-encodes the upstream attribute bag as an ordered
// {name, value} list. Unparseable input degrades to the empty list.
func encodeMetadata(fieldValues []RawFieldValue) string {
	records := make([]datastore.MetadataField, 0, len(fieldValues))
	for _, fv := range fieldValues {
		name := sanitizeText(fv.ObservationField.Name)
		if name == "" {
			continue
		}
		records = append(records, datastore.MetadataField{
			Name:  name,
			Value: sanitizeText(fv.Value),
		})
	}

	encoded, err := json.Marshal(records)
	if err != nil {
		return "[]"
	}
	return string(encoded)
}
