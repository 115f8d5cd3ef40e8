package sheet

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"sjsage522/metricworker/internal/retry"
	"sjsage522/metricworker/logger"
)

// GoogleSheets stores tabs in a Google spreadsheet. Values are written with
// USER_ENTERED so timestamps and numbers are parsed by Sheets; number
// formats are left to the spreadsheet.
type GoogleSheets struct {
	service       *sheets.Service
	spreadsheetID string
	retry         retry.Config
	log           *logger.Logger
}

// NewGoogleSheets authenticates with a service account file.
func NewGoogleSheets(ctx context.Context, credentialsFile, spreadsheetID string) (*GoogleSheets, error) {
	service, err := sheets.NewService(ctx, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &GoogleSheets{
		service:       service,
		spreadsheetID: spreadsheetID,
		retry:         retry.SheetRequest,
		log:           logger.ForSheet("gsheets").WithField("spreadsheet_id", spreadsheetID),
	}, nil
}

func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

func (g *GoogleSheets) hasSheet(ctx context.Context, sheet string) (bool, error) {
	doc, err := retry.WithRetry(ctx, g.retry, func(ctx context.Context) (*sheets.Spreadsheet, error) {
		return g.service.Spreadsheets.Get(g.spreadsheetID).
			Fields("sheets.properties.title").
			Context(ctx).
			Do()
	})
	if err != nil {
		return false, fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, s := range doc.Sheets {
		if s.Properties != nil && s.Properties.Title == sheet {
			return true, nil
		}
	}
	return false, nil
}

// Load reads the tab with unformatted values.
func (g *GoogleSheets) Load(ctx context.Context, sheet string) (Grid, error) {
	exists, err := g.hasSheet(ctx, sheet)
	if err != nil || !exists {
		return nil, err
	}

	resp, err := retry.WithRetry(ctx, g.retry, func(ctx context.Context) (*sheets.ValueRange, error) {
		return g.service.Spreadsheets.Values.Get(g.spreadsheetID, quoteSheet(sheet)).
			ValueRenderOption("UNFORMATTED_VALUE").
			Context(ctx).
			Do()
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", sheet, err)
	}

	grid := make(Grid, len(resp.Values))
	for i, row := range resp.Values {
		grid[i] = make([]string, len(row))
		for j, v := range row {
			grid[i][j] = FormatValue(v)
		}
	}
	return grid, nil
}

// Apply writes cells in one batch, adding the tab when missing.
func (g *GoogleSheets) Apply(ctx context.Context, sheet string, cells []Cell) error {
	exists, err := g.hasSheet(ctx, sheet)
	if err != nil {
		return err
	}
	if !exists {
		_, err := retry.WithRetry(ctx, g.retry, func(ctx context.Context) (*sheets.BatchUpdateSpreadsheetResponse, error) {
			return g.service.Spreadsheets.BatchUpdate(g.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
				Requests: []*sheets.Request{{
					AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: sheet}},
				}},
			}).Context(ctx).Do()
		})
		if err != nil {
			return fmt.Errorf("add sheet %s: %w", sheet, err)
		}
		g.log.Info().Str("sheet", sheet).Msg("Created sheet")
	}

	data := make([]*sheets.ValueRange, 0, len(cells))
	for _, c := range cells {
		name, err := excelize.CoordinatesToCellName(c.Col, c.Row)
		if err != nil {
			return fmt.Errorf("cell %d,%d: %w", c.Row, c.Col, err)
		}
		data = append(data, &sheets.ValueRange{
			Range:  quoteSheet(sheet) + "!" + name,
			Values: [][]interface{}{{c.Value}},
		})
	}

	_, err = retry.WithRetry(ctx, g.retry, func(ctx context.Context) (*sheets.BatchUpdateValuesResponse, error) {
		return g.service.Spreadsheets.Values.BatchUpdate(g.spreadsheetID, &sheets.BatchUpdateValuesRequest{
			ValueInputOption: "USER_ENTERED",
			Data:             data,
		}).Context(ctx).Do()
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", sheet, err)
	}
	return nil
}
