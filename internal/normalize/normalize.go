// Package normalize canonicalizes free-text filter tokens so equivalent
// inputs compare identically wherever a value is matched against a stored
// column or projected for autocomplete.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// UnknownSpecies is the reserved normalized token meaning "no species
// identified". It maps to the empty-string sentinel on species_label.
const UnknownSpecies = "UNKNOWN SPECIES"

// stripMarks decomposes text and drops combining marks, so "é" becomes "e"
// and "ñ" becomes "n". Covers Latin-1 Supplement and beyond.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Text canonicalizes a free-text token: diacritics stripped, uppercased,
// trimmed, with whitespace runs collapsed to a single space. Pure and
// idempotent; empty input yields the empty string.
func Text(s string) string {
	if s == "" {
		return ""
	}

	stripped, _, err := transform.String(stripMarks, s)
	if err != nil {
		// Transform failures leave the input usable as-is.
		stripped = s
	}

	// Punctuation folds to whitespace so "Montréal, QC" and "montreal qc"
	// produce the same key.
	stripped = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return ' '
		}
		return r
	}, stripped)

	// Fields both trims and collapses interior whitespace runs.
	return strings.ToUpper(strings.Join(strings.Fields(stripped), " "))
}

// IsUnknownSpecies reports whether a normalized token is the reserved
// unknown-species value.
func IsUnknownSpecies(token string) bool {
	return token == UnknownSpecies
}
