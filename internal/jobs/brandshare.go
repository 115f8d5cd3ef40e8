package jobs

import (
	"context"
	"fmt"
	"strings"

	"sjsage522/metricworker/internal/aggregate"
	"sjsage522/metricworker/internal/crawler"
	"sjsage522/metricworker/internal/rank"
	"sjsage522/metricworker/internal/sheet"
)

// runBrandShare writes own-brand placements per category and a summary row
// with share and score of every category.
func runBrandShare(ctx context.Context, s *session) (Result, error) {
	b := s.spec.BrandShare
	f, err := s.fetcher(ctx)
	if err != nil {
		return Result{}, err
	}
	canon := b.Canonicalizer()
	locator := crawler.NewSelectorLocator(b.Selectors)

	var res Result
	var summary []sheet.Field
	var parts []string
	for _, cat := range b.Categories {
		pages := b.Paging
		pages.URL = cat.URL

		var listed []rank.Listed
		err := crawler.Walk(ctx, crawler.Paged(f, locator, pages), pages.MaxPages, func(_ int, items []crawler.Item) bool {
			for _, it := range items {
				listed = append(listed, rank.Listed{Brand: it.Brand, Title: it.Title})
			}
			return true
		})
		if err != nil && !skippable(ctx, err) {
			return Result{}, err
		}

		var fields []sheet.Field
		share, score := any(sheet.Placeholder), any(sheet.Placeholder)
		if err != nil {
			s.log.Warn().Err(err).Str("category", cat.Label).Msg("Category unavailable, writing placeholders")
			fields = placeholderFields(b.OwnBrands)
			parts = append(parts, fmt.Sprintf("%s = -", cat.Label))
		} else {
			p := rank.Place(listed, canon)
			fields = placementFields(p, b.OwnBrands)
			share, score = aggregate.Round(p.Share(), 4), p.Score()
			parts = append(parts, fmt.Sprintf("%s = %d av %d", cat.Label, p.Count(), p.Total))
			s.log.Info().
				Str("category", cat.Label).
				Int("products", p.Total).
				Int("own", p.Count()).
				Msg("Placements counted")
		}

		res.add(cat.Sheet, s.keyedRecord(b.KeyColumn, fields...))
		summary = append(summary,
			sheet.Field{Label: cat.Label + " %", Value: share},
			sheet.Field{Label: cat.Label + " poäng", Value: score},
		)
	}

	res.add(b.SummarySheet, s.keyedRecord(b.KeyColumn, summary...))
	title := b.Title
	if title == "" {
		title = s.spec.Name
	}
	res.Summary = fmt.Sprintf("%s: %s.", title, strings.Join(parts, ", "))
	return res, nil
}

func placementFields(p rank.Placements, brands []string) []sheet.Field {
	fields := []sheet.Field{
		{Label: "antal_produkter", Value: p.Total},
		{Label: "antal_egna", Value: p.Count()},
		{Label: "andel_egna", Value: aggregate.Round(p.Share(), 4)},
		{Label: "poängsumma", Value: p.Score()},
	}
	for _, brand := range brands {
		fields = append(fields, sheet.Field{Label: brand, Value: len(p.PerBrand[brand])})
	}
	return append(fields, sheet.Field{Label: "placeringar", Value: p.Joined()})
}

func placeholderFields(brands []string) []sheet.Field {
	labels := append([]string{"antal_produkter", "antal_egna", "andel_egna", "poängsumma"}, brands...)
	labels = append(labels, "placeringar")
	fields := make([]sheet.Field, len(labels))
	for i, label := range labels {
		fields[i] = sheet.Field{Label: label, Value: sheet.Placeholder}
	}
	return fields
}

// keyedRecord is record with an optional key column label
func (s *session) keyedRecord(keyColumn string, fields ...sheet.Field) sheet.Record {
	rec := s.record(fields...)
	if keyColumn != "" {
		rec.KeyColumn = keyColumn
	}
	return rec
}
