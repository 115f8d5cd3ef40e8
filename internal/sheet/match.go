package sheet

import (
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// MatchFunc reports whether an existing key cell refers to key.
type MatchFunc func(cell, key string) bool

// StampLayout is how measurement keys are written.
const StampLayout = "2006-01-02 15:04"

var stampLayouts = []string{
	StampLayout,
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// Exact matches identical cells, ignoring surrounding whitespace.
func Exact(cell, key string) bool {
	return strings.TrimSpace(cell) == strings.TrimSpace(key)
}

// SameDay matches timestamps that fall on the same calendar date.
var SameDay = MatchLayout("2006-01-02")

// MatchLayout matches timestamps that render identically with layout, so
// "2006-01-02 15" groups rows by hour. Cells that are not timestamps fall
// back to exact comparison.
func MatchLayout(layout string) MatchFunc {
	return func(cell, key string) bool {
		a, okA := ParseStamp(cell)
		b, okB := ParseStamp(key)
		if !okA || !okB {
			return Exact(cell, key)
		}
		return a.Format(layout) == b.Format(layout)
	}
}

// ParseStamp reads a timestamp cell. Spreadsheet serial dates are accepted
// because raw loads return dates in that form.
func ParseStamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range stampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
