package jobs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sjsage522/metricworker/internal/aggregate"
	"sjsage522/metricworker/internal/crawler"
	"sjsage522/metricworker/internal/sheet"
	"sjsage522/metricworker/pkg/errors"
)

func aovSpec() Spec {
	return Spec{
		Name: "shop_aov",
		Kind: KindAOV,
		AOV: &AOVSpec{
			Store: "Shop",
			Sheet: "SHOP_aov",
			Pages: crawler.Pages{URL: "https://shop.test/best", Param: "page", FirstBare: true, MaxPages: 3},
			Selectors: crawler.Selectors{
				ItemList: "li.product",
				Price:    ".price",
				Remove:   []string{"del"},
			},
			Band:      aggregate.Band{Low: 50, High: 200000},
			Top:       2,
			AllColumn: "Shop 100",
			TopColumn: "Shop 50",
			Format:    "# ##0",
		},
	}
}

func TestRunAOV(t *testing.T) {
	fetcher := &MockFetcher{Pages: map[string]string{
		"https://shop.test/best": `<ul>
			<li class="product"><span class="price"><del>1 500 kr</del> 1 000 kr</span></li>
			<li class="product"><span class="price">2 000 kr</span></li>
			<li class="product"><span class="price">30 kr</span></li>
			<li class="product"><span class="price">slut</span></li>
		</ul>`,
		"https://shop.test/best?page=2": `<ul><li class="product"><span class="price">3 000 kr</span></li></ul>`,
	}}

	res, err := Run(context.Background(), aovSpec(), testEnv(fetcher))
	require.NoError(t, err)

	require.Len(t, res.Outputs, 1)
	out := res.Outputs[0]
	assert.Equal(t, "SHOP_aov", out.Sheet)
	assert.Equal(t, "2025-03-01 09:30", out.Record.Key)
	assert.Equal(t, map[string]any{"Shop 100": 2000, "Shop 50": 1500}, fields(out.Record))
	assert.Equal(t, "Shop AOV: 4 = 2 000 & 2 = 1 500.", res.Summary)
	assert.Equal(t, KindAOV, res.Kind)

	// page 3 is missing and ends the walk
	assert.Contains(t, fetcher.Fetched, "https://shop.test/best?page=3")
}

func TestRunAOVLimit(t *testing.T) {
	spec := aovSpec()
	spec.AOV.Limit = 2
	fetcher := &MockFetcher{Pages: map[string]string{
		"https://shop.test/best": `<ul>
			<li class="product"><span class="price">100 kr</span></li>
			<li class="product"><span class="price">300 kr</span></li>
			<li class="product"><span class="price">900 kr</span></li>
		</ul>`,
	}}

	res, err := Run(context.Background(), spec, testEnv(fetcher))
	require.NoError(t, err)
	assert.Equal(t, 200, fields(res.Outputs[0].Record)["Shop 100"])
	assert.Equal(t, []string{"https://shop.test/best"}, fetcher.Fetched)
}

func TestRunAOVNoProductsIsFatal(t *testing.T) {
	fetcher := &MockFetcher{Pages: map[string]string{
		"https://shop.test/best": `<div>Inga produkter</div>`,
	}}

	_, err := Run(context.Background(), aovSpec(), testEnv(fetcher))
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
	assert.Equal(t, errors.ErrorTypeStructure, errors.TypeOf(err))
}

func TestRunAOVUnavailableWritesPlaceholders(t *testing.T) {
	res, err := Run(context.Background(), aovSpec(), testEnv(&MockFetcher{}))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"Shop 100": sheet.Placeholder, "Shop 50": sheet.Placeholder}, fields(res.Outputs[0].Record))
	assert.Equal(t, "Shop AOV: 0 = - & 2 = -.", res.Summary)
}

func TestRunAOVWithBrowser(t *testing.T) {
	spec := aovSpec()
	spec.Browser = true
	browser := &MockBrowser{Pages: map[string]string{
		"https://shop.test/best": `<ul><li class="product"><span class="price">400 kr</span></li></ul>`,
	}}

	res, err := Run(context.Background(), spec, withBrowser(testEnv(nil), browser))
	require.NoError(t, err)
	assert.Equal(t, 400, fields(res.Outputs[0].Record)["Shop 50"])
	assert.True(t, browser.Closed)
}
