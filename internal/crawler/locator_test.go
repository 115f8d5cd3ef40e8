package crawler

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sjsage522/metricworker/pkg/errors"
)

const listingHTML = `<div id="products">
  <article class="product">
    <a class="title">Fractal Design Refine Mesh Black</a>
    <div class="lipscore" data-ls-brand="Fractal"></div>
    <span class="price"><del>3 499 kr</del> <span class="now">2 999 kr</span></span>
  </article>
  <article class="product">
    <a class="title">Sponsored: Corsair Chair</a>
    <span class="price" data-price="1999"></span>
  </article>
  <article class="product">
    <a class="title">Plain</a>
  </article>
  <article class="product"></article>
</div>`

func TestSelectorLocator(t *testing.T) {
	l := NewSelectorLocator(Selectors{
		ItemList:   "article.product",
		Title:      "a.title",
		Price:      "span.price",
		PriceAttrs: []string{"data-price"},
		Brand:      "div.lipscore",
		BrandAttr:  "data-ls-brand",
		Remove:     []string{"del", "s", "strike"},
	})

	items, err := l.Locate(strings.NewReader(listingHTML))
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, Item{
		Title: "Fractal Design Refine Mesh Black",
		Text:  "Fractal Design Refine Mesh Black 2 999 kr",
		Price: "2 999 kr",
		Brand: "Fractal",
	}, items[0])
	assert.Equal(t, "1999", items[1].Price)
	assert.Equal(t, "Sponsored: Corsair Chair", items[1].FullText()[:24])
	// no price element: the card text stands in
	assert.Equal(t, "Plain", items[2].Price)
}

func TestSelectorLocatorHandlers(t *testing.T) {
	l := NewSelectorLocator(Selectors{ItemList: "article.product", Title: "a.title"})
	l.Handlers = map[string]ElementHandlerFunc{
		"title": func(s *goquery.Selection) string {
			return strings.ToUpper(s.Find("a.title").Text())
		},
	}

	items, err := l.Locate(strings.NewReader(listingHTML))
	require.NoError(t, err)
	assert.Equal(t, "PLAIN", items[2].Title)
}

const epcTable = `<table id="data">
  <thead><tr><th>Program</th><th>Kategori</th><th> EPC </th></tr></thead>
  <tbody>
    <tr><td>Bank A</td><td>Finans</td><td align="right" class="visible-lg">0,45 SEK</td></tr>
    <tr><td>Bank B</td><td>Finans</td><td align="right" class="visible-lg">Ingen data</td></tr>
    <tr><td>Bank C</td><td>Finans</td></tr>
  </tbody>
</table>`

func TestSelectorLocatorNestedMatches(t *testing.T) {
	page := `<div class="item-grid">
  <div class="item-cell"><div class="item-container"><a class="item-title">One</a></div></div>
  <div class="item-cell"><div class="item-container"><a class="item-title">Two</a></div></div>
  <div class="item-cell"><div class="item-container"><a class="item-title">Three</a></div></div>
</div>`
	l := NewSelectorLocator(Selectors{ItemList: "div.item-cell, div.item-container", Title: "a.item-title"})

	items, err := l.Locate(strings.NewReader(page))
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"One", "Two", "Three"}, []string{items[0].Title, items[1].Title, items[2].Title})
}

func TestSelectorLocatorFallback(t *testing.T) {
	page := `<div class="item-grid">
  <div class="item-container"><a class="item-title">One</a></div>
  <div class="item-container"><a class="item-title">Two</a></div>
</div>`
	l := NewSelectorLocator(Selectors{
		ItemList: "div.item-cell",
		Fallback: "div.item-container, div.item-grid > div",
		Title:    "a.item-title",
	})

	items, err := l.Locate(strings.NewReader(page))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Two", items[1].Title)
}

func TestTableLocator(t *testing.T) {
	items, err := TableLocator{Table: "table#data", Header: "epc"}.Locate(strings.NewReader(epcTable))
	require.NoError(t, err)
	assert.Equal(t, []Item{
		{Text: "0,45 SEK", Price: "0,45 SEK"},
		{Text: "Ingen data", Price: "Ingen data"},
	}, items)
}

func TestTableLocatorFallback(t *testing.T) {
	l := TableLocator{Table: "table#data", Header: "cr", Fallback: "td.visible-lg[align='right']"}
	items, err := l.Locate(strings.NewReader(epcTable))
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestTableLocatorMissing(t *testing.T) {
	items, err := TableLocator{Table: "table#data", Header: "epc"}.Locate(strings.NewReader("<p>Inga program</p>"))
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = TableLocator{Table: "table#data", Header: "cr"}.Locate(strings.NewReader(epcTable))
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}
