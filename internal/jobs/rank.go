package jobs

import (
	"context"
	"fmt"
	"strings"

	"sjsage522/metricworker/internal/crawler"
	"sjsage522/metricworker/internal/rank"
	"sjsage522/metricworker/internal/sheet"
)

// runRank records the global listing position of every pattern
func runRank(ctx context.Context, s *session) (Result, error) {
	r := s.spec.Rank
	patterns, err := r.Compile()
	if err != nil {
		return Result{}, err
	}
	f, err := s.fetcher(ctx)
	if err != nil {
		return Result{}, err
	}

	paged := crawler.Paged(f, crawler.NewSelectorLocator(r.Selectors), r.Pages)
	next := func(ctx context.Context, page int) ([]string, error) {
		items, err := paged(ctx, page)
		if err != nil {
			return nil, err
		}
		texts := make([]string, len(items))
		for i, it := range items {
			texts[i] = it.FullText()
		}
		return texts, nil
	}

	budget := rank.Budget{MaxPages: r.Pages.MaxPages, MaxItems: r.MaxItems, MinPageItems: r.MinPageItems}
	results, err := rank.Scan(ctx, next, budget, patterns...)
	if err != nil {
		if !skippable(ctx, err) {
			return Result{}, err
		}
		s.log.Warn().Err(err).Msg("Listing unavailable, writing placeholders")
	}

	fields := make([]sheet.Field, 0, len(r.Fixed)+len(r.Patterns))
	for _, fixed := range r.Fixed {
		fields = append(fields, sheet.Field{Label: fixed.Label, Value: fixed.Value})
	}
	parts := make([]string, 0, len(r.Patterns))
	for _, p := range r.Patterns {
		result := results[p.Name]
		fields = append(fields, sheet.Field{Label: p.ColumnLabel(), Value: result.Value()})
		parts = append(parts, fmt.Sprintf("%s = %s", p.Name, result))
	}

	res := Result{Summary: fmt.Sprintf("%s: %s.", r.Title, strings.Join(parts, ", "))}
	res.add(r.Sheet, s.record(fields...))
	return res, nil
}
