package geocode

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize standardizes a place query for use as an alias or cache key:
// diacritical marks are stripped ("Kraków" becomes "krakow"), interior
// whitespace is collapsed, and the result is lowercased. Consistent keys
// are what let repeated queries for the same place hit memoized results.
func Normalize(s string) (string, error) {
	if !utf8.ValidString(s) {
		return "", fmt.Errorf("query is not valid UTF-8")
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		return "", fmt.Errorf("normalizing query: %w", err)
	}
	collapsed := strings.Join(strings.Fields(stripped), " ")
	return strings.ToLower(collapsed), nil
}
