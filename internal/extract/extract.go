// Package extract pulls localized numbers and currency amounts out of free
// text scraped from web pages.
package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Amount is a number found in text together with the currency token that
// followed (or preceded) it.
type Amount struct {
	Value float64
	// Token is the currency token as written, e.g. "kr", "€" or "eur".
	Token string
	// Currency is the ISO code the token resolves to.
	Currency string
}

var (
	noDataRe = regexp.MustCompile(`(?i)\b(inga\s*data|ingen\s*data|no\s*data)\b`)

	// A numeric run followed by a currency token.
	suffixRe = regexp.MustCompile(`(?i)([-+]?\d[\d ,.]*)\s*([a-z]{3}\b|kr\b|£|€|\$|₽|₺)`)
	// A currency symbol directly followed by a numeric run.
	prefixRe = regexp.MustCompile(`(£|€|\$|₽|₺)\s*([-+]?\d[\d ,.]*)`)

	numberRe = regexp.MustCompile(`[-+]?\d[\d ,.]*`)

	spaceReplacer = strings.NewReplacer(
		"\u00a0", " ",
		"\u2009", " ",
		"\u202f", " ",
		"\t", " ",
	)
)

var symbols = map[string]string{
	"€": "EUR",
	"$": "USD",
	"£": "GBP",
	"₽": "RUB",
	"₺": "TRY",
}

var krByCountry = map[string]string{
	"SE": "SEK",
	"DK": "DKK",
	"NO": "NOK",
}

// Three letter tokens, in any case, count as currencies only for these codes.
var knownISO = map[string]bool{
	"SEK": true, "DKK": true, "NOK": true, "ISK": true, "EUR": true, "USD": true,
	"GBP": true, "CHF": true, "PLN": true, "CZK": true, "HUF": true, "RON": true,
	"BGN": true, "RUB": true, "TRY": true, "JPY": true, "CNY": true, "CAD": true,
	"AUD": true, "NZD": true, "HKD": true, "SGD": true, "KRW": true, "INR": true,
	"BRL": true, "MXN": true, "ZAR": true, "UAH": true, "ILS": true, "AED": true,
}

// NoData reports whether text is one of the "no data" placeholders
// dashboards print instead of a value.
func NoData(text string) bool {
	return noDataRe.MatchString(text)
}

// Extract finds the first amount in text. country ("SE", "DK", "NO") decides
// what "kr" means and defaults to Swedish kronor. The boolean is false when
// the text holds no data, no number or no currency token.
func Extract(text, country string) (Amount, bool) {
	text = spaceReplacer.Replace(text)
	if strings.TrimSpace(text) == "" || NoData(text) {
		return Amount{}, false
	}

	var candidates []Amount
	var starts []int

	for _, m := range suffixRe.FindAllStringSubmatchIndex(text, -1) {
		token := text[m[4]:m[5]]
		if !validToken(token) {
			continue
		}
		value, ok := ParseNumber(text[m[2]:m[3]])
		if !ok {
			continue
		}
		candidates = append(candidates, Amount{Value: value, Token: token, Currency: Resolve(token, country)})
		starts = append(starts, m[0])
		break
	}

	if m := prefixRe.FindStringSubmatchIndex(text); m != nil {
		token := text[m[2]:m[3]]
		if value, ok := ParseNumber(text[m[4]:m[5]]); ok {
			candidates = append(candidates, Amount{Value: value, Token: token, Currency: Resolve(token, country)})
			starts = append(starts, m[0])
		}
	}

	if len(candidates) == 0 {
		return Amount{}, false
	}
	best := 0
	for i := range candidates {
		if starts[i] < starts[best] {
			best = i
		}
	}
	return candidates[best], true
}

func validToken(token string) bool {
	if _, ok := symbols[token]; ok {
		return true
	}
	if strings.EqualFold(token, "kr") {
		return true
	}
	if len(token) != 3 {
		return false
	}
	return knownISO[strings.ToUpper(token)]
}

// Resolve maps a currency token to its ISO code.
func Resolve(token, country string) string {
	if iso, ok := symbols[token]; ok {
		return iso
	}
	if strings.EqualFold(token, "kr") {
		if iso, ok := krByCountry[strings.ToUpper(country)]; ok {
			return iso
		}
		return "SEK"
	}
	return strings.ToUpper(token)
}

// ParseNumber parses a localized numeric run such as "1 234,50", "1.234,50"
// or "1,234.5". A comma or period followed by one or two trailing digits is
// the decimal separator; every other separator groups thousands.
func ParseNumber(run string) (float64, bool) {
	run = strings.TrimSpace(spaceReplacer.Replace(run))
	run = strings.TrimRight(run, " ,.")
	if run == "" {
		return 0, false
	}

	sign := ""
	if run[0] == '-' || run[0] == '+' {
		sign = run[:1]
		run = run[1:]
	}
	run = strings.ReplaceAll(run, " ", "")

	intPart, frac := run, ""
	if i := strings.LastIndexAny(run, ",."); i >= 0 {
		tail := run[i+1:]
		if len(tail) >= 1 && len(tail) <= 2 {
			intPart, frac = run[:i], tail
		}
	}
	intPart = strings.NewReplacer(",", "", ".", "").Replace(intPart)
	if intPart == "" || !digitsOnly(intPart) || !digitsOnly(frac) {
		return 0, false
	}

	s := sign + intPart
	if frac != "" {
		s += "." + frac
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Number returns the first localized number in text, ignoring currency.
func Number(text string) (float64, bool) {
	text = spaceReplacer.Replace(text)
	if NoData(text) {
		return 0, false
	}
	run := numberRe.FindString(text)
	if run == "" {
		return 0, false
	}
	return ParseNumber(run)
}

// Price parses a list price in kronor and drops any öre. Bare digit strings,
// as found in data-price attributes, are accepted as well.
func Price(text, country string) (float64, bool) {
	if a, ok := Extract(text, country); ok {
		if !strings.EqualFold(a.Token, "kr") {
			return 0, false
		}
		return math.Trunc(a.Value), true
	}
	t := strings.TrimSpace(spaceReplacer.Replace(text))
	if t == "" || !digitsOnly(strings.ReplaceAll(t, " ", "")) {
		return 0, false
	}
	v, ok := ParseNumber(t)
	return math.Trunc(v), ok
}

func digitsOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
