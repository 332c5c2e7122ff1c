package grader

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// diacriticStripper decomposes text (NFD) and drops the resulting
// combining-mark runes, which is the precise "strip diacritics" behaviour
// spec §4.3 calls for ("café" -> "cafe") rather than an ASCII-only filter.
var diacriticStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalizeText implements spec §4.3's open-text normalization: lowercase,
// strip diacritics, collapse whitespace, strip surrounding punctuation.
func normalizeText(s string) string {
	lowered := strings.ToLower(s)

	stripped, _, err := transform.String(diacriticStripper, lowered)
	if err != nil {
		stripped = lowered
	}

	fields := strings.Fields(stripped)
	collapsed := strings.Join(fields, " ")

	return strings.TrimFunc(collapsed, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
}

// similarity is normalized Levenshtein similarity: 1 - dist/max(len(a), len(b)).
// Two empty strings are defined as perfectly similar; one empty and one
// non-empty are maximally dissimilar.
func similarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1.0
	}

	maxLen := len([]rune(a))
	if bl := len([]rune(b)); bl > maxLen {
		maxLen = bl
	}
	if maxLen == 0 {
		return 1.0
	}

	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(maxLen)
}
