package jobs

import (
	"time"

	"sjsage522/metricworker/internal/aggregate"
	"sjsage522/metricworker/internal/crawler"
)

// AdtractionCredentials names the login used by the Adtraction dashboard jobs
const AdtractionCredentials = "adtraction"

var (
	cookieButtons = []string{"Acceptera alla cookies", "Acceptera alla", "Godkänn alla", "Accept All", "Accept"}

	aovBand = aggregate.Band{Low: 50, High: 200000}

	darkColours  = `\b(dark|black|charcoal|graphite|noir|midnight)\b`
	lightColours = `\b(light|white|silver|pearl|snow|grey|gray)\b`

	neweggSelectors = crawler.Selectors{
		ItemList: "div.item-cell",
		Fallback: "div.item-container, div.item-grid > div",
		Title:    "a.item-title",
	}
	neweggNavigation = crawler.Navigation{
		WaitSelector: "div.item-cell, div.item-container",
		Dismiss:      []string{"Accept All", "Accept", "Continue"},
		Scrolls:      2,
		Timeout:      70 * time.Second,
	}

	soderSelectors = crawler.Selectors{
		ItemList:  "div.PT_Wrapper.product, div.product, article.product, li.product",
		Brand:     "div.lipscore-rating-small",
		BrandAttr: "data-ls-brand",
		Title:     "div.lipscore-rating-small",
		TitleAttr: "data-ls-product-name",
	}
)

// Builtin returns the bundled job catalog
func Builtin() []Spec {
	return []Spec{
		{
			Name:        "adtraction_stats",
			Kind:        KindCounters,
			Description: "Adtraction conversions and brands counters",
			Counters: &CountersSpec{
				Title:      "Adtraction",
				URL:        "https://adtraction.com/se/om-adtraction/",
				Sheet:      "ADTR_conversions",
				Labels:     []string{"Konverteringar", "Varumärken"},
				DiffOf:     "Konverteringar",
				DiffColumn: "Diff",
			},
		},
		{
			Name:        "adtraction_epc_finance",
			Kind:        KindEPC,
			Description: "Adtraction finance EPC per market",
			Browser:     true,
			Credentials: AdtractionCredentials,
			Navigation: crawler.Navigation{
				WaitSelector: "table#data",
				Timeout:      30 * time.Second,
			},
			EPC: &EPCSpec{
				Login: crawler.Login{
					URL:          "https://adtraction.com/login",
					UserSelector: "#email, input[type='email'], input[name='email']",
					PassSelector: "#password, input[type='password'], input[name='password']",
					Submit:       "button.btn.btn-primary[type=submit]",
					SuccessURL:   `secure\.adtraction\.com/partner/`,
				},
				HomeURL: "https://secure.adtraction.com/partner/programs.htm?cid=%d&asonly=false",
				ListURL: "https://secure.adtraction.com/partner/listadvertprograms.htm?cId=%d&asonly=false",
				Markets: []Market{
					{Code: "SE", ID: 1, Name: "Sverige"},
					{Code: "DK", ID: 12, Name: "Danmark"},
					{Code: "NO", ID: 33, Name: "Norge"},
					{Code: "FI", ID: 14, Name: "Finland"},
					{Code: "ES", ID: 42, Name: "Spanien"},
					{Code: "DE", ID: 16, Name: "Tyskland"},
					{Code: "CH", ID: 44, Name: "Schweiz"},
					{Code: "FR", ID: 15, Name: "Frankrike"},
					{Code: "IT", ID: 22, Name: "Italien"},
					{Code: "PL", ID: 34, Name: "Polen"},
					{Code: "NL", ID: 32, Name: "Nederländerna"},
				},
				Categories: []EPCCategory{{Name: "Finans", ID: 1}},
				Table: crawler.TableLocator{
					Table:    "table#data",
					Header:   "epc",
					Fallback: "td.visible-lg[align='right']",
				},
				Next: crawler.NextPage{
					Selector:     "a.paginate_button.next",
					WaitSelector: "table#data tbody tr",
				},
				Variants: []EPCVariant{
					{Name: "0_200", Bands: aggregate.Bands{
						EUR:        aggregate.Band{Low: 0.01, High: 20},
						Other:      aggregate.Band{Low: 0.1, High: 200},
						ByCurrency: map[string]aggregate.Band{"DKK": {Low: 0.06, High: 130}},
					}},
					{Name: "3_120", Bands: aggregate.Bands{
						EUR:        aggregate.Band{Low: 0.3, High: 12},
						Other:      aggregate.Band{Low: 3, High: 120},
						ByCurrency: map[string]aggregate.Band{"DKK": {Low: 0.2, High: 80}},
					}},
				},
				Metrics:     []string{MetricMedian, MetricAverage},
				SheetPrefix: "EPC",
				ValueFormat: "#,##0.00",
				CountFormat: "# ##0",
				Summary:     []string{"SE", "DK", "NO", "FI", "ES", "DE"},
			},
		},
		aovJob("rugvista_aov", "RugVista", "RugVista", crawler.Navigation{
			WaitSelector: "#products-wrapper",
			Dismiss:      cookieButtons,
			Scrolls:      3,
			Timeout:      30 * time.Second,
		}, crawler.Pages{
			URL:       "https://www.rugvista.se/c/mattor/bastsaljare",
			Param:     "page",
			FirstBare: true,
			MaxPages:  50,
		}, crawler.Selectors{
			ItemList:   `#products-wrapper [class*="product-card"], #products-wrapper [data-test*="product"]`,
			Price:      `[itemprop="price"], [class*="font-semibold"], [class*="price"], [data-price]`,
			PriceAttrs: []string{"content", "data-price"},
		}, aovBand),
		aovJob("benuta_aov", "Benuta", "Benuta", crawler.Navigation{
			WaitSelector:   "main, #__next, body",
			Dismiss:        cookieButtons,
			Scrolls:        3,
			LoadMore:       "ladda mer",
			LoadMoreClicks: 2,
			CountSelector:  `[data-test*="product"], li[data-product], article`,
			Until:          100,
			Timeout:        90 * time.Second,
		}, crawler.Pages{
			URL: "https://www.benuta.se/mattor.html?sort=bestseller&order=ascending",
		}, crawler.Selectors{
			ItemList:   `[data-test*="product"], li[data-product], article`,
			Price:      "span.bg-sg-neon-yellow, [data-price], [class*=price]",
			PriceAttrs: []string{"content", "data-price"},
			Remove:     []string{"del", "s", "strike"},
		}, aovBand),
		aovJob("trendcarpet_aov", "Trendcarpet", "TC", crawler.Navigation{
			WaitSelector: `ul[data-listname*="TOPP 100"] li, ul.s-product__list li, .product-item__price .price`,
			Dismiss:      cookieButtons,
			Scrolls:      20,
			Timeout:      90 * time.Second,
		}, crawler.Pages{
			URL: "https://www.trendcarpet.se/topp-100-listan/",
		}, crawler.Selectors{
			ItemList: `ul[data-listname*="TOPP 100"] li, ul.s-product__list li`,
			Price:    "div.product-item__price .price, .price",
			Remove:   []string{"del", "s", "strike"},
		}, aggregate.Band{Low: 30, High: 200000}),
		{
			Name:        "fractal_scape",
			Kind:        KindRank,
			Description: "Fractal Scape headset positions on Newegg",
			Browser:     true,
			Navigation:  neweggNavigation,
			Rank: &RankSpec{
				Title: "Fractal Scape",
				Sheet: "FRCTL_headset",
				Pages: crawler.Pages{
					URL:       "https://www.newegg.com/Gaming-Headsets/SubCategory/ID-3767?Order=3&PageSize=96",
					Param:     "Page",
					FirstBare: true,
					MaxPages:  10,
				},
				Selectors:    neweggSelectors,
				MinPageItems: 10,
				Patterns: []PatternSpec{
					{Name: "Dark", Column: "Fractal Design Scape Dark", Anchors: []string{"fractal", "scape"}, Variant: `\bfractal(?:\s+design)?\b.*\bscape\b.*\b(dark|black)\b`},
					{Name: "Light", Column: "Fractal Design Scape Light", Anchors: []string{"fractal", "scape"}, Variant: `\bfractal(?:\s+design)?\b.*\bscape\b.*\b(light|white)\b`},
				},
				Fixed: []FixedColumn{{Label: "Butik", Value: "Newegg"}},
			},
		},
		{
			Name:        "fractal_refine",
			Kind:        KindRank,
			Description: "Fractal Refine chair positions on Newegg",
			Browser:     true,
			Navigation:  neweggNavigation,
			Rank: &RankSpec{
				Title: "Fractal Refine",
				Sheet: "FRCTL_chair",
				Pages: crawler.Pages{
					URL:       "https://www.newegg.com/Gaming-Chairs/SubCategory/ID-3628?Order=3&PageSize=96",
					Param:     "Page",
					FirstBare: true,
					MaxPages:  10,
				},
				Selectors:    neweggSelectors,
				MinPageItems: 10,
				Patterns: []PatternSpec{
					refinePattern("Fabric Dark", `\bfabric\b.*`+darkColours),
					refinePattern("Fabric Light", `\bfabric\b.*`+lightColours),
					refinePattern("Mesh Dark", `\bmesh\b.*`+darkColours),
					refinePattern("Mesh Light", `\bmesh\b.*`+lightColours),
					refinePattern("Alcantara", `\balcantara\b`),
				},
				Fixed: []FixedColumn{{Label: "Butik", Value: "Newegg"}},
			},
		},
		{
			Name:        "fractal_headset_inet",
			Kind:        KindRank,
			Description: "Fractal Scape headset positions on Inet",
			Browser:     true,
			Navigation: crawler.Navigation{
				WaitSelector: "[data-testid='product-card']",
				Timeout:      60 * time.Second,
			},
			Rank: &RankSpec{
				Title: "Inet Scape",
				Sheet: "FRACTL_inet",
				Pages: crawler.Pages{
					URL:      `https://www.inet.se/kategori/901/gamingheadset?q=scape&sortColumn=rank&sortDirection=desc&filter={"isBargain":false}`,
					Param:    "page",
					MaxPages: 5,
				},
				Selectors: crawler.Selectors{
					ItemList: "[data-testid='product-card']",
					Title:    "[data-testid='product-title']",
				},
				Patterns: []PatternSpec{
					{Name: "Scape Dark", Column: "Scape Dark rank", Anchors: []string{"scape dark"}},
					{Name: "Scape Light", Column: "Scape Light rank", Anchors: []string{"scape light"}},
				},
				Fixed: []FixedColumn{{Label: "Butik", Value: "Inet"}},
			},
		},
		{
			Name:        "soder_stats",
			Kind:        KindBrandShare,
			Description: "Own-brand placements on sportfiskeprylar.se",
			BrandShare: &BrandShareSpec{
				Title: "Söder",
				Categories: []Category{
					{Label: "Fiskedrag", URL: "https://www.sportfiskeprylar.se/sv/fiskedrag?Sort=Populara", Sheet: "SODER_rank_fiskedrag"},
					{Label: "Fiskerullar", URL: "https://www.sportfiskeprylar.se/sv/fiskerullar?Sort=Populara", Sheet: "SODER_rank_fiskerullar"},
					{Label: "Fiskespon", URL: "https://www.sportfiskeprylar.se/sv/fiskespon?Sort=Populara", Sheet: "SODER_rank_fiskespon"},
					{Label: "Vaskor", URL: "https://www.sportfiskeprylar.se/sv/vaskor-boxar-forvaring?Sort=Populara", Sheet: "SODER_rank_vaskor"},
				},
				Paging:    crawler.Pages{Param: "Page", MaxPages: 2},
				Selectors: soderSelectors,
				OwnBrands: []string{"Söder Tackle", "Eastfield Lures", "Söder Sportfiske", "VATN", "Troutland", "ANGLRS"},
				Variants: map[string]string{
					"eastfield": "Eastfield Lures",
				},
				SummarySheet: "SODER_stats",
				KeyColumn:    "datum",
			},
		},
		{
			Name:        "sitemap_changes",
			Kind:        KindSitemap,
			Description: "Page changes of sitemaps listed in the sources workbook",
			Sitemap: &SitemapSpec{
				SourcesFile:  "sources/sitemaps_bolag.xlsx",
				MinLastMod:   "2023-01-01",
				Sheet:        "databas_incl_changes",
			},
		},
	}
}

func aovJob(name, store, column string, nav crawler.Navigation, pages crawler.Pages, sel crawler.Selectors, band aggregate.Band) Spec {
	return Spec{
		Name:        name,
		Kind:        KindAOV,
		Description: store + " average order value of best sellers",
		Browser:     true,
		Navigation:  nav,
		AOV: &AOVSpec{
			Store:     store,
			Sheet:     "RUGV_aov",
			Pages:     pages,
			Selectors: sel,
			Band:      band,
			Limit:     100,
			Top:       50,
			AllColumn: column + " 100",
			TopColumn: column + " 50",
			Format:    "# ##0",
		},
	}
}

func refinePattern(name, variant string) PatternSpec {
	return PatternSpec{
		Name:    name,
		Column:  "Fractal Refine " + name,
		Anchors: []string{"fractal", "refine"},
		Variant: `\bfractal(?:\s+design)?\b.*\brefine\b.*\b(gaming\s+)?chair\b.*` + variant,
	}
}
