package jobs

import (
	"context"
	"fmt"
	"math"

	"sjsage522/metricworker/helpers"
	"sjsage522/metricworker/internal/aggregate"
	"sjsage522/metricworker/internal/crawler"
	"sjsage522/metricworker/internal/extract"
	"sjsage522/metricworker/internal/sheet"
	"sjsage522/metricworker/pkg/errors"
)

// runAOV averages the list prices of a best-seller listing, once over every
// collected product and once over the top ones.
func runAOV(ctx context.Context, s *session) (Result, error) {
	a := s.spec.AOV
	f, err := s.fetcher(ctx)
	if err != nil {
		return Result{}, err
	}

	var prices []float64
	seen, unparsed := 0, 0
	next := crawler.Paged(f, crawler.NewSelectorLocator(a.Selectors), a.Pages)
	err = crawler.Walk(ctx, next, a.Pages.MaxPages, func(n int, items []crawler.Item) bool {
		for _, it := range items {
			seen++
			p, ok := extract.Price(it.Price, s.country)
			if !ok {
				unparsed++
				continue
			}
			prices = append(prices, p)
			if a.Limit > 0 && len(prices) >= a.Limit {
				return false
			}
		}
		s.log.Debug().Int("page", n).Int("prices", len(prices)).Msg("Collected page")
		return true
	})

	all, top := any(sheet.Placeholder), any(sheet.Placeholder)
	switch {
	case err != nil && !skippable(ctx, err):
		return Result{}, err
	case err != nil:
		s.log.Warn().Err(err).Msg("Listing unavailable, writing placeholders")
	case seen == 0:
		return Result{}, errors.NewStructure(a.Store, "no products found")
	default:
		accepted := aggregate.Filter(prices, a.Band)
		if v, ok := aggregate.Mean(accepted); ok {
			all = int(math.Round(v))
		}
		if v, ok := aggregate.Mean(accepted[:min(a.Top, len(accepted))]); ok {
			top = int(math.Round(v))
		}
		s.log.Info().
			Int("items", seen).
			Int("unparsed", unparsed).
			Int("rejected", len(prices)-len(accepted)).
			Msg("Prices collected")
	}

	limit := a.Limit
	if limit == 0 {
		limit = len(prices)
	}
	res := Result{Summary: fmt.Sprintf("%s AOV: %d = %s & %d = %s.",
		a.Store, limit, formatWhole(all), a.Top, formatWhole(top))}
	res.add(a.Sheet, s.record(
		sheet.Field{Label: a.AllColumn, Value: all, Format: a.Format},
		sheet.Field{Label: a.TopColumn, Value: top, Format: a.Format},
	))
	return res, nil
}

func formatWhole(v any) string {
	if n, ok := v.(int); ok {
		return helpers.FormatInt(n)
	}
	return sheet.Placeholder
}
