package jobs

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sjsage522/metricworker/internal/sheet"
	"sjsage522/metricworker/services/changes"
)

func urlset(entries ...[2]string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
	for _, e := range entries {
		fmt.Fprintf(&b, `<url><loc>%s</loc><lastmod>%sT08:00:00+00:00</lastmod></url>`, e[0], e[1])
	}
	b.WriteString(`</urlset>`)
	return b.String()
}

func sitemapSpec() Spec {
	return Spec{
		Name: "sitemaps",
		Kind: KindSitemap,
		Sitemap: &SitemapSpec{
			Sources:    []SitemapSource{{Company: "Banken", SiteType: "Jämförelse", URL: "https://bank.test/sitemap.xml"}},
			MinLastMod: "2023-01-01",
			Sheet:      "databas_incl_changes",
		},
	}
}

func sitemapEnv(t *testing.T, fetcher *MockFetcher) Env {
	registry := changes.NewRegistry(t.TempDir(), 50)
	t.Cleanup(func() { registry.Close() })
	env := testEnv(fetcher)
	env.Changes = registry
	return env
}

func TestRunSitemap(t *testing.T) {
	fetcher := &MockFetcher{Pages: map[string]string{
		"https://bank.test/sitemap.xml": urlset(
			[2]string{"https://bank.test/lan", "2025-02-20"},
			[2]string{"https://bank.test/kort", "2025-02-25"},
			[2]string{"https://bank.test/gammal", "2022-05-01"},
			[2]string{"https://bank.test/borta", "2025-02-26"},
		),
		"https://bank.test/lan":  `<main><h1>Lån</h1><p>Ränta från 4,95 %</p></main>`,
		"https://bank.test/kort": `<main><h1>Kort</h1><p>Årsavgift 0 kr</p></main>`,
	}}
	env := sitemapEnv(t, fetcher)

	res, err := Run(context.Background(), sitemapSpec(), env)
	require.NoError(t, err)
	assert.Equal(t, "Sitemaps: 2 nya, 0 modifierade, 1 otillgängliga.", res.Summary)
	assert.NotContains(t, fetcher.Fetched, "https://bank.test/gammal")

	require.Len(t, res.Outputs, 3)
	keys := make([]string, len(res.Outputs))
	for i, out := range res.Outputs {
		assert.Equal(t, "databas_incl_changes", out.Sheet)
		assert.Equal(t, LinkColumn, out.Record.KeyColumn)
		keys[i] = out.Record.Key
	}
	assert.Equal(t, []string{"https://bank.test/borta", "https://bank.test/kort", "https://bank.test/lan"}, keys)

	gone := fields(res.Outputs[0].Record)
	assert.Equal(t, StatusUnavailable, gone["Status"])
	assert.Contains(t, gone["Ändringar"], "Kunde inte hämta sida")
	assert.Equal(t, "2025-02-26", gone["Senast modifierad"])
	assert.Equal(t, "Banken", gone["Bolag"])
	assert.Equal(t, StatusNew, fields(res.Outputs[1].Record)["Status"])

	// a second run the same day leaves the sitemap alone
	fetcher.Fetched = nil
	res, err = Run(context.Background(), sitemapSpec(), env)
	require.NoError(t, err)
	assert.Empty(t, res.Outputs)
	assert.Empty(t, fetcher.Fetched)

	// the next day only pages modified since are checked
	fetcher.Pages["https://bank.test/sitemap.xml"] = urlset(
		[2]string{"https://bank.test/lan", "2025-02-20"},
		[2]string{"https://bank.test/kort", "2025-03-02"},
	)
	fetcher.Pages["https://bank.test/kort"] = `<main><h1>Kort</h1><p>Årsavgift 195 kr</p></main>`
	env.Now = func() time.Time { return testNow.Add(24 * time.Hour) }

	res, err = Run(context.Background(), sitemapSpec(), env)
	require.NoError(t, err)
	require.Len(t, res.Outputs, 1)
	changed := fields(res.Outputs[0].Record)
	assert.Equal(t, StatusModified, changed["Status"])
	assert.Contains(t, changed["Ändringar"], "195 kr")
	assert.Equal(t, "Sitemaps: 0 nya, 1 modifierade, 0 otillgängliga.", res.Summary)
}

func TestRunSitemapSourcesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sitemaps_bolag.xlsx")
	require.NoError(t, sheet.NewXLSX(path).Apply(context.Background(), "Bolag", []sheet.Cell{
		{Row: 1, Col: 1, Value: "Bolag"}, {Row: 1, Col: 2, Value: "Typ av sajt"}, {Row: 1, Col: 3, Value: "Länk"},
		{Row: 2, Col: 1, Value: "Försäkra"}, {Row: 2, Col: 2, Value: "Bolag"}, {Row: 2, Col: 3, Value: "https://forsakra.test/sitemap.txt"},
	}))

	fetcher := &MockFetcher{Pages: map[string]string{
		"https://forsakra.test/sitemap.txt": "https://forsakra.test/hem 2025-02-01\nhttps://forsakra.test/bil 2025-02-02\n",
		"https://forsakra.test/hem":         `<p>Hem</p>`,
		"https://forsakra.test/bil":         `<p>Bil</p>`,
	}}
	spec := sitemapSpec()
	spec.Sitemap.Sources = nil
	spec.Sitemap.SourcesFile = path

	res, err := Run(context.Background(), spec, sitemapEnv(t, fetcher))
	require.NoError(t, err)
	require.Len(t, res.Outputs, 2)
	assert.Equal(t, "https://forsakra.test/bil", res.Outputs[0].Record.Key)
	assert.Equal(t, "Försäkra", fields(res.Outputs[0].Record)["Bolag"])
}

func TestRunSitemapNeedsRegistry(t *testing.T) {
	_, err := Run(context.Background(), sitemapSpec(), testEnv(&MockFetcher{}))
	require.Error(t, err)
}
