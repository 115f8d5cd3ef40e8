package jobs

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"sjsage522/metricworker/helpers"
	"sjsage522/metricworker/internal/crawler"
	"sjsage522/metricworker/internal/extract"
	"sjsage522/metricworker/internal/sheet"
	"sjsage522/metricworker/pkg/errors"
)

// counterPattern matches a label followed by a space-grouped integer
func counterPattern(label string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + regexp.QuoteMeta(label) + `\s+([0-9][0-9 ]*[0-9]|[0-9])`)
}

// Counters finds every label in text and returns its value. A missing label
// is a structure error.
func Counters(text string, labels []string) (map[string]int, error) {
	text = helpers.CollapseSpace(text)
	out := make(map[string]int, len(labels))
	for _, label := range labels {
		m := counterPattern(label).FindStringSubmatch(text)
		if m == nil {
			return nil, errors.NewStructure(label, "counter label not found in page text")
		}
		v, ok := extract.Number(m[1])
		if !ok {
			return nil, errors.NewStructure(label, "unreadable counter "+m[1])
		}
		out[label] = int(v)
	}
	return out, nil
}

// runCounters reads labelled counters from a page and writes them with the
// change of one counter since the previous row.
func runCounters(ctx context.Context, s *session) (Result, error) {
	c := s.spec.Counters
	f, err := s.fetcher(ctx)
	if err != nil {
		return Result{}, err
	}

	body, err := f.Fetch(ctx, c.URL)
	if err != nil {
		if !skippable(ctx, err) {
			return Result{}, err
		}
		s.log.Warn().Err(err).Msg("Page unavailable, writing placeholders")
		return placeholderCounters(s), nil
	}
	text, err := crawler.PageText(body)
	if err != nil {
		return Result{}, errors.NewParsing(c.URL, "read page text", err)
	}
	values, err := Counters(text, c.Labels)
	if err != nil {
		return Result{}, err
	}

	fields := make([]sheet.Field, 0, len(c.Labels)+1)
	parts := make([]string, 0, len(c.Labels)+1)
	for _, label := range c.Labels {
		fields = append(fields, sheet.Field{Label: label, Value: values[label], Format: "# ##0"})
		parts = append(parts, fmt.Sprintf("%s = %s", label, helpers.FormatInt(values[label])))
	}

	if c.DiffOf != "" && c.DiffColumn != "" {
		diff := any(sheet.Placeholder)
		if s.env.Sheets != nil {
			grid, err := s.env.Sheets.Load(ctx, c.Sheet)
			if err != nil {
				return Result{}, errors.NewStorage("sheet", "load "+c.Sheet, err)
			}
			// a rerun on the same day compares with the day before
			if prev, ok := sheet.Last(grid.Without(sheet.DateColumn, s.stamp, sheet.SameDay), c.DiffOf); ok {
				diff = values[c.DiffOf] - int(prev)
			}
		}
		fields = append(fields, sheet.Field{Label: c.DiffColumn, Value: diff})
		parts = append(parts, fmt.Sprintf("%s = %v", c.DiffColumn, diff))
	}

	res := Result{Summary: fmt.Sprintf("%s: %s.", c.Title, strings.Join(parts, ", "))}
	res.add(c.Sheet, s.record(fields...))
	return res, nil
}

func placeholderCounters(s *session) Result {
	c := s.spec.Counters
	labels := c.Labels
	if c.DiffOf != "" && c.DiffColumn != "" {
		labels = append(labels[:len(labels):len(labels)], c.DiffColumn)
	}
	fields := make([]sheet.Field, len(labels))
	for i, label := range labels {
		fields[i] = sheet.Field{Label: label, Value: sheet.Placeholder}
	}
	res := Result{Summary: fmt.Sprintf("%s: -.", c.Title)}
	res.add(c.Sheet, s.record(fields...))
	return res
}
