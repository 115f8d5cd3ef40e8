package rank

import (
	"strconv"
	"strings"
)

// Listed is one product on a category page.
type Listed struct {
	Brand string
	Title string
}

// Placements summarizes where a set of brands appear in a listing.
type Placements struct {
	Total     int
	Positions []int
	PerBrand  map[string][]int
}

// Canonicalizer maps a raw brand name to a tracked brand.
type Canonicalizer func(brand string) (string, bool)

// Place numbers the listing from 1 and records tracked brands. Sponsored
// entries are skipped like in Scan.
func Place(items []Listed, canon Canonicalizer) Placements {
	p := Placements{PerBrand: make(map[string][]int)}
	for _, it := range items {
		if IsSponsored(it.Title) {
			continue
		}
		p.Total++
		if name, ok := canon(it.Brand); ok {
			p.Positions = append(p.Positions, p.Total)
			p.PerBrand[name] = append(p.PerBrand[name], p.Total)
		}
	}
	return p
}

// Count returns the number of tracked placements.
func (p Placements) Count() int {
	return len(p.Positions)
}

// Share returns tracked placements over all placements.
func (p Placements) Share() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(len(p.Positions)) / float64(p.Total)
}

// Score weights each placement by how high it sits: first of N is worth N,
// last is worth 1.
func (p Placements) Score() int {
	score := 0
	for _, pos := range p.Positions {
		score += p.Total + 1 - pos
	}
	return score
}

// Joined returns the positions as "1,4,9".
func (p Placements) Joined() string {
	parts := make([]string, len(p.Positions))
	for i, pos := range p.Positions {
		parts[i] = strconv.Itoa(pos)
	}
	return strings.Join(parts, ",")
}
