package filter

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Cache key versions. Bumping a version orphans old entries instead of
// serving stale shapes after a schema change.
const (
	resultKeyVersion = "v1"
	countKeyVersion  = "v1"
)

// Key returns the deterministic cache key for this exact result page. The
// token sets are already sorted at compile time, so set-equal filters that
// arrived in a different order hash identically.
func (f *CompiledFilter) Key() string {
	payload := fmt.Sprintf("%d|%d|%s|%s|%t|%s|%s",
		f.PerPage, f.Page,
		strings.Join(f.Species, ","), strings.Join(f.Locations, ","),
		f.HasDNA, f.Sort, f.Order)
	return "results:" + resultKeyVersion + ":" + hashKey(payload)
}

// CountKey returns the cache key for the total count of this filter set.
// Counts are independent of page and sort, so those dimensions are excluded
// and every page of the same filter shares one count entry.
func (f *CompiledFilter) CountKey() string {
	payload := fmt.Sprintf("%s|%s|%t",
		strings.Join(f.Species, ","), strings.Join(f.Locations, ","), f.HasDNA)
	return "count:" + countKeyVersion + ":" + hashKey(payload)
}

func hashKey(payload string) string {
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
