// Package rank finds where products land in ordered listings.
package rank

import (
	"context"
	"regexp"
	"strconv"
	"strings"
)

var sponsoredMarkers = []string{"sponsored", "advertisement"}

var trademarkReplacer = strings.NewReplacer("®", "", "™", "")

// Normalize lowercases text and drops trademark signs.
func Normalize(text string) string {
	return strings.ToLower(trademarkReplacer.Replace(text))
}

// IsSponsored reports whether an item is a paid placement.
func IsSponsored(text string) bool {
	t := strings.ToLower(text)
	for _, m := range sponsoredMarkers {
		if strings.Contains(t, m) {
			return true
		}
	}
	return false
}

// Pattern identifies one product variant. Every anchor must appear in the
// item text before Variant is tried.
type Pattern struct {
	Name    string
	Anchors []string
	Variant *regexp.Regexp
}

// NewPattern compiles variant case-insensitively with dot matching newlines.
// An empty variant matches any item carrying the anchors.
func NewPattern(name string, anchors []string, variant string) (Pattern, error) {
	p := Pattern{Name: name}
	for _, a := range anchors {
		p.Anchors = append(p.Anchors, strings.ToLower(a))
	}
	if variant != "" {
		re, err := regexp.Compile("(?is)" + variant)
		if err != nil {
			return Pattern{}, err
		}
		p.Variant = re
	}
	return p, nil
}

// Matches reports whether already normalized text satisfies the pattern.
func (p Pattern) Matches(text string) bool {
	for _, a := range p.Anchors {
		if !strings.Contains(text, a) {
			return false
		}
	}
	return p.Variant == nil || p.Variant.MatchString(text)
}

// Result is the outcome for one pattern.
type Result struct {
	Position int
	Found    bool
}

// String renders the position, or "-" when the pattern was not found.
func (r Result) String() string {
	if !r.Found {
		return "-"
	}
	return strconv.Itoa(r.Position)
}

// Value returns the position as a sheet value, or "-".
func (r Result) Value() any {
	if !r.Found {
		return "-"
	}
	return r.Position
}

// Tracker assigns global positions to items as pages arrive and records the
// first match of each pattern.
type Tracker struct {
	patterns []Pattern
	maxItems int
	position int
	found    map[string]int
}

// NewTracker creates a tracker. maxItems of zero means no item budget.
func NewTracker(maxItems int, patterns ...Pattern) *Tracker {
	return &Tracker{patterns: patterns, maxItems: maxItems, found: make(map[string]int)}
}

// Observe feeds the next items in display order. It returns true once
// scanning can stop: every pattern matched or the item budget is spent.
func (t *Tracker) Observe(items []string) bool {
	for _, item := range items {
		if t.Done() {
			return true
		}
		if IsSponsored(item) {
			continue
		}
		t.position++
		text := Normalize(item)
		for _, p := range t.patterns {
			if _, ok := t.found[p.Name]; ok {
				continue
			}
			if p.Matches(text) {
				t.found[p.Name] = t.position
			}
		}
	}
	return t.Done()
}

// Done reports whether all patterns are matched or the budget is exhausted.
func (t *Tracker) Done() bool {
	if len(t.found) == len(t.patterns) {
		return true
	}
	return t.maxItems > 0 && t.position >= t.maxItems
}

// Seen returns how many non-sponsored items were counted.
func (t *Tracker) Seen() int {
	return t.position
}

// Results returns one Result per pattern name.
func (t *Tracker) Results() map[string]Result {
	out := make(map[string]Result, len(t.patterns))
	for _, p := range t.patterns {
		pos, ok := t.found[p.Name]
		out[p.Name] = Result{Position: pos, Found: ok}
	}
	return out
}

// Match scans a single ordered list.
func Match(items []string, patterns ...Pattern) map[string]Result {
	t := NewTracker(0, patterns...)
	t.Observe(items)
	return t.Results()
}

// Budget bounds a scan.
type Budget struct {
	MaxPages int
	MaxItems int
	// MinPageItems marks the last page: a page with fewer items ends the scan.
	MinPageItems int
}

// PageFunc returns the item texts on a 1-based page.
type PageFunc func(ctx context.Context, page int) ([]string, error)

// Scan walks pages until every pattern matched or the budget ran out. An
// error on the first page is returned; later page errors end the scan with
// what was seen so far.
func Scan(ctx context.Context, next PageFunc, budget Budget, patterns ...Pattern) (map[string]Result, error) {
	t := NewTracker(budget.MaxItems, patterns...)
	for page := 1; budget.MaxPages <= 0 || page <= budget.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return t.Results(), err
		}
		items, err := next(ctx, page)
		if err != nil {
			if page == 1 {
				return t.Results(), err
			}
			break
		}
		if len(items) == 0 || t.Observe(items) {
			break
		}
		if budget.MinPageItems > 0 && len(items) < budget.MinPageItems {
			break
		}
	}
	return t.Results(), nil
}
