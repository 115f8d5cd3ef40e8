package crawler

import (
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"sjsage522/metricworker/helpers"
	"sjsage522/metricworker/pkg/errors"
)

// SelectorLocator finds listing items with CSS selectors
type SelectorLocator struct {
	Selectors Selectors
	// Handlers override extraction per path ("title", "price", "brand")
	Handlers map[string]ElementHandlerFunc
}

// NewSelectorLocator creates a new selector based locator
func NewSelectorLocator(selectors Selectors) *SelectorLocator {
	return &SelectorLocator{Selectors: selectors}
}

// Locate returns one item per ItemList match. A match nested inside another
// match belongs to the outer item and is skipped.
func (l *SelectorLocator) Locate(r io.Reader) ([]Item, error) {
	doc, err := createDocument(r)
	if err != nil {
		return nil, err
	}

	cards := doc.Find(l.Selectors.ItemList)
	if cards.Length() == 0 && l.Selectors.Fallback != "" {
		cards = doc.Find(l.Selectors.Fallback)
	}

	var items []Item
	cards.Each(func(_ int, s *goquery.Selection) {
		if s.Parents().FilterSelection(cards).Length() > 0 {
			return
		}
		if item, ok := l.processElement(s); ok {
			items = append(items, item)
		}
	})
	return items, nil
}

// processElement extracts a single item from its card
func (l *SelectorLocator) processElement(s *goquery.Selection) (Item, bool) {
	clean := l.cleanSelection(s)
	item := Item{
		Text:  helpers.CollapseSpace(clean.Text()),
		Title: l.extract(clean, "title", l.Selectors.Title, l.Selectors.TitleAttr),
		Brand: l.extract(clean, "brand", l.Selectors.Brand, l.Selectors.BrandAttr),
	}
	item.Price = l.price(clean)
	if item.Text == "" && item.Title == "" && item.Brand == "" {
		return Item{}, false
	}
	return item, true
}

// cleanSelection removes the configured elements from a copy of sel
func (l *SelectorLocator) cleanSelection(sel *goquery.Selection) *goquery.Selection {
	if sel.Length() == 0 || len(l.Selectors.Remove) == 0 {
		return sel
	}

	// Clone the selection to avoid modifying the original
	clone := sel.Clone()
	for _, selector := range l.Selectors.Remove {
		clone.Find(selector).Remove()
	}
	return clone
}

func (l *SelectorLocator) extract(s *goquery.Selection, path, selector, attr string) string {
	if handler, ok := l.Handlers[path]; ok {
		return handler(s)
	}
	if selector == "" && attr == "" {
		return ""
	}
	el := s
	if selector != "" {
		el = s.Find(selector).First()
	}
	if attr != "" {
		if v, ok := el.Attr(attr); ok {
			return strings.TrimSpace(v)
		}
	}
	if selector == "" {
		return ""
	}
	return helpers.CollapseSpace(el.Text())
}

// price returns the first candidate price text; without a price selector
// the whole card text is used
func (l *SelectorLocator) price(s *goquery.Selection) string {
	if handler, ok := l.Handlers["price"]; ok {
		return handler(s)
	}
	if l.Selectors.Price == "" {
		return helpers.CollapseSpace(s.Text())
	}
	var out string
	s.Find(l.Selectors.Price).EachWithBreak(func(_ int, el *goquery.Selection) bool {
		for _, attr := range l.Selectors.PriceAttrs {
			if v, ok := el.Attr(attr); ok && strings.TrimSpace(v) != "" {
				out = strings.TrimSpace(v)
				return false
			}
		}
		if t := helpers.CollapseSpace(el.Text()); t != "" {
			out = t
			return false
		}
		return true
	})
	if out == "" {
		out = helpers.CollapseSpace(s.Text())
	}
	return out
}

// TableLocator reads one column of an HTML table, selected by header text
type TableLocator struct {
	Table  string `yaml:"table"`
	Header string `yaml:"header"`
	// Fallback selects the cell within a row when no header matches
	Fallback string `yaml:"fallback"`
}

// Locate returns the column cells of every body row. A page without the
// table yields no items; a table without the header and no fallback is a
// structure error.
func (l TableLocator) Locate(r io.Reader) ([]Item, error) {
	doc, err := createDocument(r)
	if err != nil {
		return nil, err
	}
	table := doc.Find(l.Table).First()
	if table.Length() == 0 {
		return nil, nil
	}

	idx := -1
	table.Find("thead th").EachWithBreak(func(i int, th *goquery.Selection) bool {
		if strings.EqualFold(helpers.CollapseSpace(th.Text()), l.Header) {
			idx = i
			return false
		}
		return true
	})
	if idx < 0 && l.Fallback == "" {
		return nil, errors.NewStructure(l.Table, "column "+l.Header+" not found")
	}

	var items []Item
	table.Find("tbody tr").Each(func(_ int, row *goquery.Selection) {
		var cell *goquery.Selection
		if idx >= 0 {
			cell = row.Children().Filter("td, th").Eq(idx)
		} else {
			cell = row.Find(l.Fallback).First()
		}
		if cell.Length() == 0 {
			return
		}
		text := helpers.CollapseSpace(cell.Text())
		items = append(items, Item{Text: text, Price: text})
	})
	return items, nil
}
