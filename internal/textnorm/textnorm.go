// Package textnorm folds Portuguese text for substring matching and slugs.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonSlugChars = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugSpaces   = regexp.MustCompile(`[\s-]+`)
)

// Fold lowercases s and strips diacritics, so "Transferência" becomes
// "transferencia".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

// ContainsAny reports whether the folded haystack contains any folded needle.
func ContainsAny(haystack string, needles ...string) bool {
	h := Fold(haystack)
	if h == "" {
		return false
	}
	for _, n := range needles {
		if n = Fold(n); n != "" && strings.Contains(h, n) {
			return true
		}
	}
	return false
}

// Slug builds a URL-safe identifier: "Cartão de Crédito" -> "cartao-de-credito".
func Slug(name string) string {
	s := nonSlugChars.ReplaceAllString(Fold(name), "")
	s = slugSpaces.ReplaceAllString(strings.TrimSpace(s), "-")
	return strings.Trim(s, "-")
}
