// Package filter compiles raw request parameters into a validated,
// whitelisted representation of a query's filter, sort and paging intent.
// Everything that later reaches the storage layer as a SQL identifier is a
// typed value drawn from the whitelists in this package; every user-supplied
// value stays a bound parameter.
package filter

// SortColumn is a whitelisted ORDER BY column. Only the constants below ever
// cross the filter boundary.
type SortColumn string

const (
	SortObservedAt SortColumn = "observed_at"
	SortSpecies    SortColumn = "species_label"
	SortLocation   SortColumn = "location_label"
	SortTaxon      SortColumn = "taxon_name"
)

// SortOrder is a whitelisted ORDER BY direction.
type SortOrder string

const (
	OrderAsc  SortOrder = "ASC"
	OrderDesc SortOrder = "DESC"
)

// DNAProperty is a whitelisted observation_fields column used by the
// DNA-presence subquery.
type DNAProperty string

const (
	DNAPropertyName     DNAProperty = "name"
	DNAPropertyValue    DNAProperty = "value"
	DNAPropertyDatatype DNAProperty = "datatype"
)

// Pagination bounds.
const (
	DefaultPerPage = 50
	MaxPerPage     = 100
	MinPerPage     = 1
)

// CompiledFilter is the request-scoped, validated filter. Species and
// Locations hold normalized tokens, deduplicated and sorted so that
// set-equal inputs produce identical cache keys.
type CompiledFilter struct {
	Species   []string
	Locations []string

	HasDNA      bool
	DNAProperty DNAProperty
	DNAPattern  string

	Sort  SortColumn
	Order SortOrder

	Page    int
	PerPage int
}

// Active reports whether any filter dimension is set. Unfiltered queries get
// the long cache TTL; filtered ones the short TTL.
func (f *CompiledFilter) Active() bool {
	return len(f.Species) > 0 || len(f.Locations) > 0 || f.HasDNA
}

// Offset returns the row offset for the requested page.
func (f *CompiledFilter) Offset() int {
	return (f.Page - 1) * f.PerPage
}
