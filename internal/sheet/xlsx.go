package sheet

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/xuri/excelize/v2"

	"sjsage522/metricworker/logger"
)

const defaultSheet = "Sheet1"

// XLSX stores tabs in a workbook file. Every Apply opens, edits and saves the
// whole file; concurrent writers from other processes are not coordinated.
type XLSX struct {
	path string
	mu   sync.Mutex
	log  *logger.Logger
}

// NewXLSX creates a store for the workbook at path. The file is created on
// first write.
func NewXLSX(path string) *XLSX {
	return &XLSX{path: path, log: logger.ForSheet("xlsx").WithField("path", path)}
}

// Path returns the workbook location.
func (x *XLSX) Path() string {
	return x.path
}

// Load reads the tab with raw cell values. An empty name reads the first tab.
func (x *XLSX) Load(_ context.Context, sheet string) (Grid, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	f, err := excelize.OpenFile(x.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		if tabs := f.GetSheetList(); len(tabs) > 0 {
			sheet = tabs[0]
		}
	}
	idx, err := f.GetSheetIndex(sheet)
	if err != nil {
		return nil, fmt.Errorf("find sheet: %w", err)
	}
	if idx < 0 {
		return nil, nil
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return Grid(rows), nil
}

// Apply writes cells and saves the workbook.
func (x *XLSX) Apply(_ context.Context, sheet string, cells []Cell) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	f, created, err := x.open()
	if err != nil {
		return err
	}
	defer f.Close()

	if err := ensureSheet(f, sheet, created); err != nil {
		return err
	}

	styles := make(map[string]int)
	for _, c := range cells {
		name, err := excelize.CoordinatesToCellName(c.Col, c.Row)
		if err != nil {
			return fmt.Errorf("cell %d,%d: %w", c.Row, c.Col, err)
		}
		if err := f.SetCellValue(sheet, name, c.Value); err != nil {
			return fmt.Errorf("set %s: %w", name, err)
		}
		if c.Format == "" {
			continue
		}
		style, ok := styles[c.Format]
		if !ok {
			numFmt := c.Format
			style, err = f.NewStyle(&excelize.Style{CustomNumFmt: &numFmt})
			if err != nil {
				return fmt.Errorf("number format %q: %w", c.Format, err)
			}
			styles[c.Format] = style
		}
		if err := f.SetCellStyle(sheet, name, name, style); err != nil {
			return fmt.Errorf("style %s: %w", name, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(x.path), 0o755); err != nil {
		return fmt.Errorf("create workbook dir: %w", err)
	}
	if err := f.SaveAs(x.path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	x.log.Debug().Str("sheet", sheet).Int("cells", len(cells)).Msg("Saved workbook")
	return nil
}

func (x *XLSX) open() (*excelize.File, bool, error) {
	f, err := excelize.OpenFile(x.path)
	if errors.Is(err, fs.ErrNotExist) {
		return excelize.NewFile(), true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("open workbook: %w", err)
	}
	return f, false, nil
}

// ensureSheet creates the tab. A freshly created workbook has its default
// tab renamed instead so no empty Sheet1 is left behind.
func ensureSheet(f *excelize.File, sheet string, created bool) error {
	idx, err := f.GetSheetIndex(sheet)
	if err != nil {
		return fmt.Errorf("find sheet: %w", err)
	}
	if idx >= 0 {
		return nil
	}
	if created && sheet != defaultSheet {
		if err := f.SetSheetName(defaultSheet, sheet); err != nil {
			return fmt.Errorf("rename sheet: %w", err)
		}
		return nil
	}
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	return nil
}
