// Package search implements ranked free-text search across courses,
// teachers and exam sheets.
package search

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases a string and strips diacritics so that accented
// and unaccented text compare equal ("Cálculo" and "calculo" match).
func Normalize(s string) string {
	stripped, _, err := transform.String(stripMarks, s)
	if err != nil {
		// Transform failures leave the accented form; matching then
		// degrades to exact comparison instead of breaking.
		stripped = s
	}
	return strings.ToLower(stripped)
}
