package helpers

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	swedish = message.NewPrinter(language.Swedish)

	groupSpaces = strings.NewReplacer("\u00a0", " ", "\u202f", " ", "\u2009", " ", "\u2212", "-")
)

// FormatInt renders n with Swedish digit grouping, e.g. "12 345".
func FormatInt(n int) string {
	return groupSpaces.Replace(swedish.Sprintf("%d", n))
}

// FormatDecimal renders v with a decimal comma, e.g. "0,45".
func FormatDecimal(v float64, decimals int) string {
	return groupSpaces.Replace(swedish.Sprintf(fmt.Sprintf("%%.%df", decimals), v))
}

// Deaccent lowercases s and strips combining marks, so "Söder" becomes
// "soder".
func Deaccent(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

// CollapseSpace trims s and folds every whitespace run into one space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(groupSpaces.Replace(s)), " ")
}
