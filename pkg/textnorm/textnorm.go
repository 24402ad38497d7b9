// Package textnorm folds free text typed by shoppers so that matching is
// insensitive to case, Vietnamese diacritics and stray whitespace.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// đ/Đ are distinct letters, not d plus a combining mark, so NFD leaves them.
var letterReplacer = strings.NewReplacer("đ", "d", "Đ", "d")

// Fold lower-cases s, strips combining marks and collapses whitespace.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = letterReplacer.Replace(out)
	return strings.Join(strings.Fields(strings.ToLower(out)), " ")
}

// Equal reports whether a and b match after folding.
func Equal(a, b string) bool {
	return Fold(a) == Fold(b)
}

// Contains reports whether folded s contains folded substr.
func Contains(s, substr string) bool {
	return strings.Contains(Fold(s), Fold(substr))
}

// Trim strips surrounding punctuation and quotes from a guess or query.
func Trim(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
}
