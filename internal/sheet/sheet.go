// Package sheet upserts measurement rows into spreadsheet tabs.
//
// An upsert is planned purely against a loaded Grid and then applied as a
// list of cell writes, so every backend only has to know how to read a tab
// and how to write individual cells.
package sheet

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"sjsage522/metricworker/internal/extract"
)

// Placeholder marks a unit of work that could not be measured.
const Placeholder = "-"

// DateColumn is the default key column label.
const DateColumn = "Datum"

// Grid is a tab as rows of raw cell strings, header first.
type Grid [][]string

// Header returns the first row.
func (g Grid) Header() []string {
	if len(g) == 0 {
		return nil
	}
	return g[0]
}

// Column returns the 0-based index of label in the header, or -1.
func (g Grid) Column(label string) int {
	return indexOf(g.Header(), label)
}

// Cell returns the value at 0-based row and column, or "".
func (g Grid) Cell(row, col int) string {
	if row < 0 || row >= len(g) || col < 0 || col >= len(g[row]) {
		return ""
	}
	return g[row][col]
}

// Clone returns a deep copy.
func (g Grid) Clone() Grid {
	out := make(Grid, len(g))
	for i, row := range g {
		out[i] = append([]string(nil), row...)
	}
	return out
}

func indexOf(header []string, label string) int {
	label = strings.TrimSpace(label)
	for i, h := range header {
		if strings.TrimSpace(h) == label {
			return i
		}
	}
	return -1
}

// Field is one labelled value of a measurement row.
type Field struct {
	Label string
	Value any
	// Format is an optional number format such as "# ##0".
	Format string
}

// Record is a measurement row keyed by KeyColumn.
type Record struct {
	KeyColumn string
	Key       string
	// Match decides whether an existing key cell is the same row; nil
	// means exact string equality.
	Match  MatchFunc
	Fields []Field
}

// Values returns the fields as a label to value map.
func (r Record) Values() map[string]any {
	out := make(map[string]any, len(r.Fields))
	for _, f := range r.Fields {
		out[f.Label] = f.Value
	}
	return out
}

// Cell is a write to a 1-based row and column.
type Cell struct {
	Row    int
	Col    int
	Value  any
	Format string
}

// Plan computes the writes that upsert rec into g and returns the grid as it
// will look afterwards along with the 1-based row that was written.
//
// Existing columns keep their order; missing ones are added at the right
// edge. If a row with a matching key exists only the supplied fields are
// overwritten in it, otherwise a new row is added below the last one.
func Plan(g Grid, rec Record) (Grid, []Cell, int, error) {
	if strings.TrimSpace(rec.KeyColumn) == "" {
		return nil, nil, 0, fmt.Errorf("record has no key column")
	}
	if rec.Key == "" {
		return nil, nil, 0, fmt.Errorf("record has an empty key")
	}
	match := rec.Match
	if match == nil {
		match = Exact
	}

	var cells []Cell
	header := append([]string(nil), g.Header()...)
	column := func(label string) int {
		if i := indexOf(header, label); i >= 0 {
			return i
		}
		header = append(header, label)
		cells = append(cells, Cell{Row: 1, Col: len(header), Value: label})
		return len(header) - 1
	}

	keyCol := column(rec.KeyColumn)
	fieldCols := make([]int, len(rec.Fields))
	for i, f := range rec.Fields {
		fieldCols[i] = column(f.Label)
	}

	row := -1
	for r := 1; r < len(g); r++ {
		if cell := g.Cell(r, keyCol); cell != "" && match(cell, rec.Key) {
			row = r
			break
		}
	}
	if row < 0 {
		row = max(len(g), 1)
		cells = append(cells, Cell{Row: row + 1, Col: keyCol + 1, Value: rec.Key})
	}
	for i, f := range rec.Fields {
		cells = append(cells, Cell{Row: row + 1, Col: fieldCols[i] + 1, Value: f.Value, Format: f.Format})
	}

	return ApplyCells(g, cells), cells, row + 1, nil
}

// ApplyCells returns a copy of g with cells written into it.
func ApplyCells(g Grid, cells []Cell) Grid {
	out := g.Clone()
	for _, c := range cells {
		for len(out) < c.Row {
			out = append(out, nil)
		}
		row := out[c.Row-1]
		for len(row) < c.Col {
			row = append(row, "")
		}
		row[c.Col-1] = FormatValue(c.Value)
		out[c.Row-1] = row
	}
	return out
}

// FormatValue renders a cell value the way it reads back from a raw load.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// Last returns the value of label in the bottom-most row that has a number
// there.
func Last(g Grid, label string) (float64, bool) {
	col := g.Column(label)
	if col < 0 {
		return 0, false
	}
	for r := len(g) - 1; r >= 1; r-- {
		cell := strings.TrimSpace(g.Cell(r, col))
		if cell == "" || cell == Placeholder {
			continue
		}
		if v, err := strconv.ParseFloat(cell, 64); err == nil {
			return v, true
		}
		if v, ok := extract.ParseNumber(cell); ok {
			return v, true
		}
	}
	return 0, false
}

// Without returns g minus the data rows whose keyColumn cell matches key.
func (g Grid) Without(keyColumn, key string, match MatchFunc) Grid {
	if match == nil {
		match = Exact
	}
	col := g.Column(keyColumn)
	if col < 0 {
		return g
	}
	out := Grid{g.Header()}
	for r := 1; r < len(g); r++ {
		if cell := g.Cell(r, col); cell != "" && match(cell, key) {
			continue
		}
		out = append(out, g[r])
	}
	return out
}

// Store reads and writes tabs of one workbook.
type Store interface {
	// Load returns the tab as a grid; a missing tab is an empty grid.
	Load(ctx context.Context, sheet string) (Grid, error)
	// Apply writes cells, creating the tab when needed.
	Apply(ctx context.Context, sheet string, cells []Cell) error
}

// Result describes a completed upsert.
type Result struct {
	Row      int
	Appended bool
	Grid     Grid
}

// Upsert loads the tab, plans the write and applies it.
func Upsert(ctx context.Context, store Store, sheet string, rec Record) (Result, error) {
	g, err := store.Load(ctx, sheet)
	if err != nil {
		return Result{}, fmt.Errorf("load sheet %s: %w", sheet, err)
	}
	next, cells, row, err := Plan(g, rec)
	if err != nil {
		return Result{}, fmt.Errorf("plan sheet %s: %w", sheet, err)
	}
	if err := store.Apply(ctx, sheet, cells); err != nil {
		return Result{}, fmt.Errorf("write sheet %s: %w", sheet, err)
	}
	return Result{Row: row, Appended: row > len(g), Grid: next}, nil
}
