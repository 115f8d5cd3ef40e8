package jobs

import (
	"fmt"
	"strings"

	"sjsage522/metricworker/helpers"
	"sjsage522/metricworker/internal/aggregate"
	"sjsage522/metricworker/internal/crawler"
	"sjsage522/metricworker/internal/rank"
	"sjsage522/metricworker/pkg/errors"
)

// Kind selects the pipeline a job runs
type Kind string

const (
	KindAOV        Kind = "aov"
	KindRank       Kind = "rank"
	KindBrandShare Kind = "brandshare"
	KindCounters   Kind = "counters"
	KindEPC        Kind = "epc"
	KindSitemap    Kind = "sitemap"
)

// Spec describes one job. Exactly the section matching Kind is set.
type Spec struct {
	Name        string `yaml:"name"`
	Kind        Kind   `yaml:"kind"`
	Description string `yaml:"description"`
	// Browser loads pages in headless Chrome instead of plain HTTP
	Browser    bool               `yaml:"browser"`
	Navigation crawler.Navigation `yaml:"navigation"`
	// Country decides what "kr" means; empty uses the configured country
	Country string `yaml:"country"`
	// Credentials names the login used by the job
	Credentials string `yaml:"credentials"`

	AOV        *AOVSpec        `yaml:"aov,omitempty"`
	Rank       *RankSpec       `yaml:"rank,omitempty"`
	BrandShare *BrandShareSpec `yaml:"brandshare,omitempty"`
	Counters   *CountersSpec   `yaml:"counters,omitempty"`
	EPC        *EPCSpec        `yaml:"epc,omitempty"`
	Sitemap    *SitemapSpec    `yaml:"sitemap,omitempty"`
}

// AOVSpec averages list prices of a best-seller listing
type AOVSpec struct {
	Store     string            `yaml:"store"`
	Sheet     string            `yaml:"sheet"`
	Pages     crawler.Pages     `yaml:"pages"`
	Selectors crawler.Selectors `yaml:"selectors"`
	Band      aggregate.Band    `yaml:"band"`
	// Limit caps the products in the "all" column; zero takes every page
	Limit     int    `yaml:"limit"`
	Top       int    `yaml:"top"`
	AllColumn string `yaml:"all_column"`
	TopColumn string `yaml:"top_column"`
	Format    string `yaml:"format"`
}

// PatternSpec is a named rank pattern and the column it is written to
type PatternSpec struct {
	Name    string   `yaml:"name"`
	Column  string   `yaml:"column"`
	Anchors []string `yaml:"anchors"`
	Variant string   `yaml:"variant"`
}

// ColumnLabel returns the sheet column of the pattern
func (p PatternSpec) ColumnLabel() string {
	if p.Column != "" {
		return p.Column
	}
	return p.Name
}

// FixedColumn is a constant written with every row
type FixedColumn struct {
	Label string `yaml:"label"`
	Value string `yaml:"value"`
}

// RankSpec finds the global position of products in a ranked listing
type RankSpec struct {
	Title        string            `yaml:"title"`
	Sheet        string            `yaml:"sheet"`
	Pages        crawler.Pages     `yaml:"pages"`
	Selectors    crawler.Selectors `yaml:"selectors"`
	MaxItems     int               `yaml:"max_items"`
	MinPageItems int               `yaml:"min_page_items"`
	Patterns     []PatternSpec     `yaml:"patterns"`
	Fixed        []FixedColumn     `yaml:"fixed"`
}

// Compile builds the rank patterns
func (r RankSpec) Compile() ([]rank.Pattern, error) {
	patterns := make([]rank.Pattern, 0, len(r.Patterns))
	for _, p := range r.Patterns {
		compiled, err := rank.NewPattern(p.Name, p.Anchors, p.Variant)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, compiled)
	}
	return patterns, nil
}

// Category is one listing of a brand-share job
type Category struct {
	Label string `yaml:"label"`
	URL   string `yaml:"url"`
	Sheet string `yaml:"sheet"`
}

// BrandShareSpec measures where own brands are placed in category listings
type BrandShareSpec struct {
	Categories []Category `yaml:"categories"`
	// Paging is applied to every category URL
	Paging    crawler.Pages     `yaml:"paging"`
	Selectors crawler.Selectors `yaml:"selectors"`
	// OwnBrands are the canonical names in column order
	OwnBrands []string `yaml:"own_brands"`
	// Variants maps spellings to canonical names; matching ignores case
	// and accents
	Variants     map[string]string `yaml:"variants"`
	SummarySheet string            `yaml:"summary_sheet"`
	// KeyColumn overrides the date column label
	KeyColumn string `yaml:"key_column"`
	Title     string `yaml:"title"`
}

// Canonicalizer maps listed brands onto OwnBrands
func (b BrandShareSpec) Canonicalizer() rank.Canonicalizer {
	variants := make(map[string]string, len(b.Variants)+len(b.OwnBrands))
	for _, name := range b.OwnBrands {
		variants[helpers.Deaccent(name)] = name
	}
	for spelling, name := range b.Variants {
		variants[helpers.Deaccent(spelling)] = name
	}
	return func(brand string) (string, bool) {
		name, ok := variants[helpers.Deaccent(strings.TrimSpace(brand))]
		return name, ok
	}
}

// CountersSpec reads labelled counters from a page's text
type CountersSpec struct {
	Title  string   `yaml:"title"`
	URL    string   `yaml:"url"`
	Sheet  string   `yaml:"sheet"`
	Labels []string `yaml:"labels"`
	// DiffOf names the label whose change since the previous row is written
	// to DiffColumn
	DiffOf     string `yaml:"diff_of"`
	DiffColumn string `yaml:"diff_column"`
}

// Market is an affiliate network country
type Market struct {
	Code string `yaml:"code"`
	ID   int    `yaml:"id"`
	Name string `yaml:"name"`
}

// EPCCategory is a program category
type EPCCategory struct {
	Name string `yaml:"name"`
	ID   int    `yaml:"id"`
}

// EPCVariant is a named band set
type EPCVariant struct {
	Name  string          `yaml:"name"`
	Bands aggregate.Bands `yaml:"bands"`
}

// EPCSpec collects earnings-per-click values per market and category
type EPCSpec struct {
	Login crawler.Login `yaml:"login"`
	// HomeURL selects the market; %d is the market id
	HomeURL string `yaml:"home_url"`
	// ListURL lists a category's programs; %d is the category id
	ListURL    string               `yaml:"list_url"`
	Markets    []Market             `yaml:"markets"`
	Categories []EPCCategory        `yaml:"categories"`
	Table      crawler.TableLocator `yaml:"table"`
	Next       crawler.NextPage     `yaml:"next"`
	Variants   []EPCVariant         `yaml:"variants"`
	Metrics    []string             `yaml:"metrics"`
	// SheetPrefix names sheets as prefix_variant_metric
	SheetPrefix string `yaml:"sheet_prefix"`
	ValueFormat string `yaml:"value_format"`
	CountFormat string `yaml:"count_format"`
	// Summary lists the markets printed from the first variant and metric
	Summary []string `yaml:"summary"`
}

// SheetName returns the sheet of a variant and metric
func (e EPCSpec) SheetName(variant, metric string) string {
	return fmt.Sprintf("%s_%s_%s", e.SheetPrefix, variant, metric)
}

// SitemapSource is one watched sitemap
type SitemapSource struct {
	Company  string `yaml:"company"`
	SiteType string `yaml:"site_type"`
	URL      string `yaml:"url"`
}

// SitemapSpec tracks content changes of pages listed in sitemaps
type SitemapSpec struct {
	Sources []SitemapSource `yaml:"sources"`
	// SourcesFile is a workbook with Bolag, Typ av sajt and Länk columns
	SourcesFile  string `yaml:"sources_file"`
	SourcesSheet string `yaml:"sources_sheet"`
	MinLastMod   string `yaml:"min_lastmod"`
	Sheet        string `yaml:"sheet"`
}

// Validate checks that the section matching Kind is present and usable
func (s Spec) Validate() error {
	fail := func(format string, args ...any) error {
		return errors.NewConfiguration(fmt.Sprintf("job %s: ", s.Name)+fmt.Sprintf(format, args...), nil)
	}
	if strings.TrimSpace(s.Name) == "" {
		return errors.NewConfiguration("job without a name", nil)
	}

	switch s.Kind {
	case KindAOV:
		if s.AOV == nil {
			return fail("missing aov section")
		}
		if s.AOV.Sheet == "" || s.AOV.Pages.URL == "" || s.AOV.Selectors.ItemList == "" {
			return fail("aov needs sheet, pages.url and selectors.item_list")
		}
	case KindRank:
		if s.Rank == nil {
			return fail("missing rank section")
		}
		if s.Rank.Sheet == "" || s.Rank.Pages.URL == "" || len(s.Rank.Patterns) == 0 {
			return fail("rank needs sheet, pages.url and patterns")
		}
		seen := make(map[string]bool, len(s.Rank.Patterns))
		for _, p := range s.Rank.Patterns {
			if seen[p.Name] {
				return fail("duplicate pattern %q", p.Name)
			}
			seen[p.Name] = true
		}
		if _, err := s.Rank.Compile(); err != nil {
			return fail("%v", err)
		}
	case KindBrandShare:
		if s.BrandShare == nil {
			return fail("missing brandshare section")
		}
		if len(s.BrandShare.Categories) == 0 || s.BrandShare.SummarySheet == "" {
			return fail("brandshare needs categories and summary_sheet")
		}
	case KindCounters:
		if s.Counters == nil {
			return fail("missing counters section")
		}
		if s.Counters.URL == "" || s.Counters.Sheet == "" || len(s.Counters.Labels) == 0 {
			return fail("counters needs url, sheet and labels")
		}
	case KindEPC:
		if s.EPC == nil {
			return fail("missing epc section")
		}
		if len(s.EPC.Markets) == 0 || len(s.EPC.Categories) == 0 || len(s.EPC.Variants) == 0 || len(s.EPC.Metrics) == 0 {
			return fail("epc needs markets, categories, variants and metrics")
		}
		for _, m := range s.EPC.Metrics {
			if m != MetricMedian && m != MetricAverage {
				return fail("unknown metric %q", m)
			}
		}
		if s.Credentials == "" {
			return fail("epc needs credentials")
		}
	case KindSitemap:
		if s.Sitemap == nil {
			return fail("missing sitemap section")
		}
		if s.Sitemap.Sheet == "" || (len(s.Sitemap.Sources) == 0 && s.Sitemap.SourcesFile == "") {
			return fail("sitemap needs sheet and sources or sources_file")
		}
	default:
		return fail("unknown kind %q", s.Kind)
	}
	return nil
}
