package facematch

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizeCustomerID turns a face-data folder name into a customer id:
// no diacritics, trimmed, inner whitespace collapsed to single dashes. Case is kept.
func NormalizeCustomerID(name string) string {
	return strings.Join(strings.Fields(RemoveDiacritics(name)), "-")
}
