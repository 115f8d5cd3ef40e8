// Package sitemap reads page URLs and their modification dates from XML
// sitemaps, sitemap indexes and plain URL lists.
package sitemap

import (
	"bytes"
	"context"
	"encoding/xml"
	"regexp"
	"strings"

	"sjsage522/metricworker/logger"
)

// Entry is one listed page. LastMod is "YYYY-MM-DD" or empty.
type Entry struct {
	URL     string
	LastMod string
}

// FetchFunc returns the body of a nested sitemap
type FetchFunc func(ctx context.Context, url string) ([]byte, error)

// maxDepth bounds sitemap index nesting
const maxDepth = 3

var (
	datePattern = regexp.MustCompile(`(\d{4})[-/](\d{2})[-/](\d{2})`)
	urlPattern  = regexp.MustCompile(`https?://\S+`)

	dateFields = []string{
		"lastmod", "last-mod", "last-modified", "last_modified",
		"modified", "updated", "pubdate", "publication_date", "publication-date",
	}
)

// NormDate returns the first date in s as "YYYY-MM-DD", or ""
func NormDate(s string) string {
	m := datePattern.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return m[1] + "-" + m[2] + "-" + m[3]
}

type node struct {
	XMLName xml.Name
	Text    string `xml:",chardata"`
	Nodes   []node `xml:",any"`
}

func (n node) child(name string) (node, bool) {
	for _, c := range n.Nodes {
		if strings.EqualFold(c.XMLName.Local, name) {
			return c, true
		}
	}
	return node{}, false
}

// Parse returns the entries listed in body. Sitemap indexes are followed
// through fetch; a nested sitemap that fails is skipped. Bodies that are
// not XML are read as text with one URL, and optionally a date, per line.
func Parse(ctx context.Context, body []byte, fetch FetchFunc) []Entry {
	return parse(ctx, body, fetch, 0)
}

func parse(ctx context.Context, body []byte, fetch FetchFunc, depth int) []Entry {
	if looksLikeXML(body) {
		var root node
		if err := xml.Unmarshal(body, &root); err == nil {
			return parseXML(ctx, root, fetch, depth)
		}
	}
	return parseText(string(body))
}

func looksLikeXML(body []byte) bool {
	head := bytes.ToLower(bytes.TrimSpace(body))
	return bytes.HasPrefix(head, []byte("<?xml")) ||
		bytes.Contains(head, []byte("<urlset")) ||
		bytes.Contains(head, []byte("<sitemapindex"))
}

func parseXML(ctx context.Context, root node, fetch FetchFunc, depth int) []Entry {
	var out []Entry
	for _, n := range root.Nodes {
		switch strings.ToLower(n.XMLName.Local) {
		case "sitemap":
			loc, ok := n.child("loc")
			if !ok || fetch == nil || depth >= maxDepth {
				continue
			}
			url := strings.TrimSpace(loc.Text)
			body, err := fetch(ctx, url)
			if err != nil {
				logger.ForFetcher("sitemap").Warn().Err(err).Str("sitemap", url).Msg("Skipping nested sitemap")
				continue
			}
			out = append(out, parse(ctx, body, fetch, depth+1)...)
		case "url":
			loc, ok := n.child("loc")
			if !ok || strings.TrimSpace(loc.Text) == "" {
				continue
			}
			out = append(out, Entry{URL: strings.TrimSpace(loc.Text), LastMod: entryDate(n)})
		}
	}
	return out
}

func entryDate(n node) string {
	for _, field := range dateFields {
		if c, ok := n.child(field); ok {
			if d := NormDate(c.Text); d != "" {
				return d
			}
		}
	}
	var search func(node) string
	search = func(n node) string {
		for _, c := range n.Nodes {
			if d := NormDate(c.Text); d != "" {
				return d
			}
			if d := search(c); d != "" {
				return d
			}
		}
		return ""
	}
	return search(n)
}

func parseText(text string) []Entry {
	var out []Entry
	for _, line := range strings.Split(text, "\n") {
		url := urlPattern.FindString(line)
		if url == "" {
			continue
		}
		rest := strings.Replace(line, url, "", 1)
		out = append(out, Entry{URL: url, LastMod: NormDate(rest)})
	}
	return out
}

// Since keeps entries modified on or after minDate and strictly after
// lastFetch; entries without a date are dropped. Dates compare as
// "YYYY-MM-DD" strings.
func Since(entries []Entry, minDate, lastFetch string) []Entry {
	var out []Entry
	for _, e := range entries {
		if e.LastMod == "" || e.LastMod < minDate {
			continue
		}
		if lastFetch != "" && e.LastMod <= lastFetch {
			continue
		}
		out = append(out, e)
	}
	return out
}
