package jobs

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"sjsage522/metricworker/internal/crawler"
	"sjsage522/metricworker/internal/sheet"
	"sjsage522/metricworker/internal/sitemap"
	"sjsage522/metricworker/pkg/errors"
	"sjsage522/metricworker/services/changes"
)

// Sheet statuses of tracked pages
const (
	StatusNew         = "Ny"
	StatusModified    = "Modifierad"
	StatusUnavailable = "Otillgänglig"
)

// LinkColumn keys sitemap rows
const LinkColumn = "Länk"

type pageRow struct {
	lastMod string
	record  sheet.Record
}

// runSitemap walks every source sitemap, fingerprints the pages modified
// since the last visit and writes a row per new, modified or unreachable
// page.
func runSitemap(ctx context.Context, s *session) (Result, error) {
	sm := s.spec.Sitemap
	if s.env.Changes == nil {
		return Result{}, errors.NewConfiguration("sitemap job needs a changes registry", nil)
	}
	sources, err := s.sitemapSources(ctx)
	if err != nil {
		return Result{}, err
	}
	f, err := s.fetcher(ctx)
	if err != nil {
		return Result{}, err
	}
	fetch := func(ctx context.Context, u string) ([]byte, error) {
		r, err := f.Fetch(ctx, u)
		if err != nil {
			return nil, err
		}
		return readAll(r)
	}

	now := s.env.now()
	today := now.UTC().Format("2006-01-02")
	var rows []pageRow
	counts := make(map[string]int)

	for _, src := range sources {
		u, err := url.Parse(src.URL)
		if err != nil || u.Host == "" {
			s.log.Warn().Str("sitemap", src.URL).Msg("Skipping invalid sitemap URL")
			continue
		}
		store, err := s.env.Changes.For(ctx, u.Host)
		if err != nil {
			return Result{}, err
		}
		lastFetch, err := store.LastFetch(ctx, src.URL)
		if err != nil {
			return Result{}, err
		}
		if lastFetch == today {
			s.log.Debug().Str("sitemap", src.URL).Msg("Already processed today")
			continue
		}

		body, err := fetch(ctx, src.URL)
		if err != nil {
			if !skippable(ctx, err) {
				return Result{}, err
			}
			s.log.Warn().Err(err).Str("sitemap", src.URL).Msg("Sitemap unavailable")
			continue
		}
		entries := sitemap.Since(sitemap.Parse(ctx, body, fetch), sm.MinLastMod, lastFetch)
		s.log.Info().Str("sitemap", src.URL).Int("pages", len(entries)).Msg("Checking pages")

		for _, entry := range entries {
			status, diff, err := s.observePage(ctx, f, store, entry)
			if err != nil {
				return Result{}, err
			}
			if status == "" {
				continue
			}
			counts[status]++
			rows = append(rows, pageRow{lastMod: entry.LastMod, record: sheet.Record{
				KeyColumn: LinkColumn,
				Key:       entry.URL,
				Match:     sheet.Exact,
				Fields: []sheet.Field{
					{Label: "Senast modifierad", Value: entry.LastMod},
					{Label: "Bolag", Value: src.Company},
					{Label: "Typ av sajt", Value: src.SiteType},
					{Label: "Sitemap", Value: src.URL},
					{Label: "Status", Value: status},
					{Label: "Ändringar", Value: diff},
				},
			}})
		}

		if err := store.MarkFetched(ctx, src.URL, today, changes.Fingerprint(string(body)), now); err != nil {
			return Result{}, err
		}
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].lastMod > rows[j].lastMod })
	var res Result
	for _, row := range rows {
		res.add(sm.Sheet, row.record)
	}
	res.Summary = fmt.Sprintf("Sitemaps: %d nya, %d modifierade, %d otillgängliga.",
		counts[StatusNew], counts[StatusModified], counts[StatusUnavailable])
	return res, nil
}

// observePage fetches one page and records its fingerprint. An empty status
// means the page is unchanged.
func (s *session) observePage(ctx context.Context, f crawler.Fetcher, store *changes.Store, entry sitemap.Entry) (string, string, error) {
	body, err := f.Fetch(ctx, entry.URL)
	if err != nil {
		if !skippable(ctx, err) {
			return "", "", err
		}
		return StatusUnavailable, "Kunde inte hämta sida: " + err.Error(), nil
	}
	text, err := crawler.PageText(body)
	if err != nil {
		return StatusUnavailable, "Kunde inte läsa sida: " + err.Error(), nil
	}

	change, err := store.Observe(ctx, entry.URL, text, entry.LastMod, s.env.now())
	if err != nil {
		return "", "", err
	}
	switch change.Status {
	case changes.StatusNew:
		return StatusNew, "", nil
	case changes.StatusChanged:
		return StatusModified, change.Diff, nil
	default:
		return "", "", nil
	}
}

// sitemapSources returns the configured sources plus those listed in the
// sources workbook.
func (s *session) sitemapSources(ctx context.Context) ([]SitemapSource, error) {
	sm := s.spec.Sitemap
	sources := append([]SitemapSource(nil), sm.Sources...)
	if sm.SourcesFile == "" {
		return sources, nil
	}

	grid, err := sheet.NewXLSX(sm.SourcesFile).Load(ctx, sm.SourcesSheet)
	if err != nil {
		return nil, errors.NewConfiguration("read sitemap sources "+sm.SourcesFile, err)
	}
	company, siteType, link := grid.Column("Bolag"), grid.Column("Typ av sajt"), grid.Column(LinkColumn)
	if company < 0 || siteType < 0 || link < 0 {
		return nil, errors.NewConfiguration("sitemap sources need Bolag, Typ av sajt and Länk columns", nil)
	}
	for r := 1; r < len(grid); r++ {
		u := strings.TrimSpace(grid.Cell(r, link))
		if u == "" {
			continue
		}
		sources = append(sources, SitemapSource{
			Company:  strings.TrimSpace(grid.Cell(r, company)),
			SiteType: strings.TrimSpace(grid.Cell(r, siteType)),
			URL:      u,
		})
	}
	return sources, nil
}
