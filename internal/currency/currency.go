// Package currency converts amounts into a reference currency.
package currency

import (
	"context"
	"strings"
)

// Rates holds exchange rates as reference-currency units per one unit of
// each keyed currency. With Reference "SEK", PerUnit["EUR"] = 11.5 means one
// euro is worth 11.5 kronor.
type Rates struct {
	Reference string
	PerUnit   map[string]float64
}

// Convert returns value expressed in the reference currency. The boolean is
// false when no rate is known for code; callers must then leave the value out
// of any aggregate.
func (r Rates) Convert(value float64, code string) (float64, bool) {
	code = strings.ToUpper(code)
	if code == strings.ToUpper(r.Reference) {
		return value, true
	}
	rate, ok := r.PerUnit[code]
	if !ok || rate <= 0 {
		return 0, false
	}
	return value * rate, true
}

// Merge returns rates where other's entries override r's.
func (r Rates) Merge(other Rates) Rates {
	out := Rates{Reference: r.Reference, PerUnit: make(map[string]float64, len(r.PerUnit)+len(other.PerUnit))}
	for k, v := range r.PerUnit {
		out.PerUnit[k] = v
	}
	for k, v := range other.PerUnit {
		out.PerUnit[k] = v
	}
	return out
}

// Provider supplies a current set of rates.
type Provider interface {
	Rates(ctx context.Context) (Rates, error)
}

// Static is a Provider backed by fixed rates.
type Static Rates

// Rates returns the fixed rates.
func (s Static) Rates(context.Context) (Rates, error) {
	return Rates(s), nil
}
