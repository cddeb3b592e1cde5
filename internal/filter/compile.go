package filter

import (
	"encoding/json"
	"slices"
	"strconv"
	"strings"

	"github.com/mycota/fieldobs/internal/conf"
	"github.com/mycota/fieldobs/internal/normalize"
)

// Params carries the raw, untrusted request parameters. Species and Place
// may each be a JSON array of strings or a legacy scalar.
type Params struct {
	Species string
	Place   string
	HasDNA  string
	Sort    string
	Order   string
	Page    string
	PerPage string
}

// sortColumns maps request sort values to whitelisted columns. Anything not
// present falls back silently to the default.
var sortColumns = map[string]SortColumn{
	"date":     SortObservedAt,
	"species":  SortSpecies,
	"location": SortLocation,
	"taxon":    SortTaxon,
}

var sortOrders = map[string]SortOrder{
	"asc":  OrderAsc,
	"desc": OrderDesc,
}

var dnaProperties = map[string]DNAProperty{
	"name":     DNAPropertyName,
	"value":    DNAPropertyValue,
	"datatype": DNAPropertyDatatype,
}

// DefaultDNAPattern marks DNA evidence by field name prefix. Prefix-anchored
// so the fields index stays usable.
const DefaultDNAPattern = "DNA%"

// Compile builds a CompiledFilter from raw parameters. It never fails:
// malformed input degrades to "no filter" or the default sort, because these
// parameters are attacker-controllable and must not reach the query builder
// unvalidated.
func Compile(raw *Params, dna *conf.DNAFilterSettings) *CompiledFilter {
	f := &CompiledFilter{
		Species:   parseTokenSet(raw.Species),
		Locations: parseTokenSet(raw.Place),
		HasDNA:    raw.HasDNA == "1",
		Sort:      SortObservedAt,
		Order:     OrderDesc,
		Page:      1,
		PerPage:   DefaultPerPage,
	}

	if col, ok := sortColumns[strings.ToLower(strings.TrimSpace(raw.Sort))]; ok {
		f.Sort = col
	}
	if ord, ok := sortOrders[strings.ToLower(strings.TrimSpace(raw.Order))]; ok {
		f.Order = ord
	}

	if page, err := strconv.Atoi(raw.Page); err == nil && page > 1 {
		f.Page = page
	}
	if perPage, err := strconv.Atoi(raw.PerPage); err == nil {
		f.PerPage = clampPerPage(perPage)
	}

	f.DNAProperty, f.DNAPattern = compileDNA(dna)

	return f
}

// compileDNA validates the admin-configured DNA field property against the
// column whitelist. An unrecognized property silently falls back to the safe
// default rather than ever reaching SQL as an identifier.
func compileDNA(dna *conf.DNAFilterSettings) (DNAProperty, string) {
	property := DNAPropertyName
	pattern := DefaultDNAPattern

	if dna == nil {
		return property, pattern
	}
	if p, ok := dnaProperties[strings.ToLower(strings.TrimSpace(dna.Property))]; ok {
		property = p
	}
	if dna.Pattern != "" {
		pattern = dna.Pattern
	}
	return property, pattern
}

// parseTokenSet accepts either a JSON array of strings or a legacy scalar.
// A value that fails to decode as a string array is treated as a
// single-element set for backward compatibility. Tokens are normalized,
// deduplicated and sorted.
func parseTokenSet(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	var items []string
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		items = []string{raw}
	}

	tokens := make([]string, 0, len(items))
	for _, item := range items {
		if token := normalize.Text(item); token != "" {
			tokens = append(tokens, token)
		}
	}

	slices.Sort(tokens)
	return slices.Compact(tokens)
}

func clampPerPage(perPage int) int {
	switch {
	case perPage < MinPerPage:
		return MinPerPage
	case perPage > MaxPerPage:
		return MaxPerPage
	default:
		return perPage
	}
}
