// Package aggregate filters scraped observations through plausibility bands
// and computes mean, median and count over what survives.
package aggregate

import (
	"math"
	"sort"
	"strings"

	"sjsage522/metricworker/internal/extract"
)

// Band is a closed acceptance interval.
type Band struct {
	Low  float64 `yaml:"low"`
	High float64 `yaml:"high"`
}

// Contains reports whether v lies within [Low, High].
func (b Band) Contains(v float64) bool {
	return v >= b.Low && v <= b.High
}

// IsZero reports whether the band is unset.
func (b Band) IsZero() bool {
	return b.Low == 0 && b.High == 0
}

// Bands selects a band by currency. ByCurrency overrides the three groups;
// an unset EUR or Kr band falls back to Other.
type Bands struct {
	EUR        Band            `yaml:"eur"`
	Kr         Band            `yaml:"kr"`
	Other      Band            `yaml:"other"`
	ByCurrency map[string]Band `yaml:"by_currency"`
}

var krCurrencies = map[string]bool{"SEK": true, "DKK": true, "NOK": true}

// For returns the band that applies to the ISO currency.
func (b Bands) For(currency string) Band {
	currency = strings.ToUpper(currency)
	if band, ok := b.ByCurrency[currency]; ok {
		return band
	}
	switch {
	case currency == "EUR" && !b.EUR.IsZero():
		return b.EUR
	case krCurrencies[currency] && !b.Kr.IsZero():
		return b.Kr
	default:
		return b.Other
	}
}

// Accept reports whether the amount is plausible in its own currency.
func (b Bands) Accept(a extract.Amount) bool {
	return b.For(a.Currency).Contains(a.Value)
}

// Converter normalizes a value into a reference currency.
type Converter interface {
	Convert(value float64, code string) (float64, bool)
}

// Sample is the set of accepted values plus what was dropped and why.
type Sample struct {
	Values      []float64
	Rejected    int
	Unavailable int
}

// Collect filters amounts through bands and converts the survivors with
// conv. A nil conv keeps values in their own currency. Rejected and
// unconvertible amounts contribute neither to sums nor counts.
func Collect(amounts []extract.Amount, bands Bands, conv Converter) Sample {
	var s Sample
	for _, a := range amounts {
		if !bands.Accept(a) {
			s.Rejected++
			continue
		}
		v := a.Value
		if conv != nil {
			converted, ok := conv.Convert(a.Value, a.Currency)
			if !ok {
				s.Unavailable++
				continue
			}
			v = converted
		}
		s.Values = append(s.Values, v)
	}
	return s
}

// Filter keeps the values inside band, preserving order.
func Filter(values []float64, band Band) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if band.Contains(v) {
			out = append(out, v)
		}
	}
	return out
}

// Count returns the number of accepted values.
func (s Sample) Count() int {
	return len(s.Values)
}

// Mean returns the arithmetic mean, false for an empty sample.
func (s Sample) Mean() (float64, bool) {
	return Mean(s.Values)
}

// Median returns the median, false for an empty sample.
func (s Sample) Median() (float64, bool) {
	return Median(s.Values)
}

// Mean returns the arithmetic mean of values.
func Mean(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), true
}

// Median returns the middle value, averaging the two middle values for an
// even count.
func Median(values []float64) (float64, bool) {
	n := len(values)
	if n == 0 {
		return 0, false
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2], true
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2, true
}

// Round rounds half away from zero to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
