package jobs

import (
	"context"
	"fmt"
	"strings"

	"sjsage522/metricworker/helpers"
	"sjsage522/metricworker/internal/aggregate"
	"sjsage522/metricworker/internal/crawler"
	"sjsage522/metricworker/internal/currency"
	"sjsage522/metricworker/internal/extract"
	"sjsage522/metricworker/internal/sheet"
	"sjsage522/metricworker/pkg/errors"
)

// EPC metrics
const (
	MetricMedian  = "median"
	MetricAverage = "average"
)

// Compute applies a metric to values
func Compute(metric string, values []float64) (float64, bool) {
	if metric == MetricAverage {
		return aggregate.Mean(values)
	}
	return aggregate.Median(values)
}

type epcUnit struct {
	market   string
	category int
}

// runEPC logs in to the affiliate dashboard, reads the EPC column of every
// market and category and writes one sheet per band variant and metric.
func runEPC(ctx context.Context, s *session) (Result, error) {
	e := s.spec.EPC
	cred, ok := s.env.Credentials[s.spec.Credentials]
	if !ok || cred.Username == "" || cred.Password == "" {
		return Result{}, errors.NewConfiguration("missing credentials "+s.spec.Credentials, nil)
	}

	b, err := s.Browser(ctx)
	if err != nil {
		return Result{}, err
	}
	if err := b.Login(ctx, e.Login, cred.Username, cred.Password); err != nil {
		if errors.IsFatal(err) {
			return Result{}, err
		}
		return Result{}, errors.NewNavigation(s.spec.Name, "login failed", err)
	}

	raw := make(map[epcUnit][]extract.Amount)
	for _, m := range e.Markets {
		for _, c := range e.Categories {
			unit := epcUnit{market: m.Code, category: c.ID}
			amounts, err := s.scrapeEPC(ctx, b, m, c)
			if err != nil {
				if !skippable(ctx, err) {
					return Result{}, err
				}
				s.log.Warn().Err(err).Str("market", m.Code).Str("category", c.Name).Msg("Skipping market")
				continue
			}
			raw[unit] = amounts
			s.log.Debug().Str("market", m.Code).Str("category", c.Name).Int("rows", len(amounts)).Msg("Read EPC table")
		}
	}

	rates := currency.Rates{}
	if s.env.Rates != nil {
		if rates, err = s.env.Rates.Rates(ctx); err != nil {
			s.log.Warn().Err(err).Msg("Exchange rates degraded")
		}
	}

	var res Result
	summary := make(map[string]string)
	for vi, variant := range e.Variants {
		for mi, metric := range e.Metrics {
			fields := epcFields(e, variant.Bands, metric, raw, rates)
			res.add(e.SheetName(variant.Name, metric), s.record(fields...))
			if vi == 0 && mi == 0 {
				for _, m := range e.Markets {
					summary[m.Code] = epcSummaryValue(fields, epcValueLabel(e.Categories[0], m))
				}
			}
		}
	}

	parts := make([]string, len(e.Summary))
	for i, code := range e.Summary {
		v, ok := summary[code]
		if !ok {
			v = sheet.Placeholder
		}
		parts[i] = code + " = " + v
	}
	res.Summary = "Adtraction: " + joinAnd(parts) + "."
	return res, nil
}

func (s *session) scrapeEPC(ctx context.Context, b crawler.Browser, m Market, c EPCCategory) ([]extract.Amount, error) {
	e := s.spec.EPC
	if _, err := b.Open(ctx, fmt.Sprintf(e.HomeURL, m.ID), crawler.Navigation{WaitSelector: "body"}); err != nil {
		return nil, err
	}
	pages, err := b.Paginate(ctx, fmt.Sprintf(e.ListURL, c.ID), s.spec.Navigation, e.Next)
	if err != nil {
		return nil, err
	}

	var amounts []extract.Amount
	for _, html := range pages {
		items, err := e.Table.Locate(strings.NewReader(html))
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			if a, ok := extract.Extract(it.Text, m.Code); ok {
				amounts = append(amounts, a)
			}
		}
	}
	return amounts, nil
}

func epcValueLabel(c EPCCategory, m Market) string {
	return fmt.Sprintf("%s (%s)", c.Name, m.Code)
}

func epcCountLabel(e *EPCSpec, c EPCCategory, m Market) string {
	if len(e.Categories) == 1 {
		return "# " + m.Code
	}
	return fmt.Sprintf("# %s (%s)", c.Name, m.Code)
}

// epcFields builds one sheet row: a value column per market and category,
// then the counts, then every category normalized over all markets.
func epcFields(e *EPCSpec, bands aggregate.Bands, metric string, raw map[epcUnit][]extract.Amount, rates currency.Rates) []sheet.Field {
	var values, counts, normalized []sheet.Field
	for _, c := range e.Categories {
		var all []extract.Amount
		for _, m := range e.Markets {
			valueField := sheet.Field{Label: epcValueLabel(c, m), Value: sheet.Placeholder}
			countField := sheet.Field{Label: epcCountLabel(e, c, m), Value: sheet.Placeholder}

			amounts, ok := raw[epcUnit{market: m.Code, category: c.ID}]
			if ok {
				all = append(all, amounts...)
				sample := aggregate.Collect(amounts, bands, nil)
				if v, ok := Compute(metric, sample.Values); ok {
					valueField.Value = aggregate.Round(v, 2)
					valueField.Format = e.ValueFormat
					countField.Value = sample.Count()
					countField.Format = e.CountFormat
				}
			}
			values = append(values, valueField)
			counts = append(counts, countField)
		}

		field := sheet.Field{Label: fmt.Sprintf("%s (alla, %s)", c.Name, rates.Reference), Value: sheet.Placeholder}
		if rates.Reference != "" {
			sample := aggregate.Collect(all, bands, rates)
			if v, ok := Compute(metric, sample.Values); ok {
				field.Value = aggregate.Round(v, 2)
				field.Format = e.ValueFormat
			}
			normalized = append(normalized, field)
		}
	}
	return append(append(values, counts...), normalized...)
}

func epcSummaryValue(fields []sheet.Field, label string) string {
	for _, f := range fields {
		if f.Label == label {
			if v, ok := f.Value.(float64); ok {
				return helpers.FormatDecimal(v, 2)
			}
		}
	}
	return sheet.Placeholder
}

// joinAnd joins parts as "a, b & c"
func joinAnd(parts []string) string {
	if len(parts) < 2 {
		return strings.Join(parts, "")
	}
	return strings.Join(parts[:len(parts)-1], ", ") + " & " + parts[len(parts)-1]
}
