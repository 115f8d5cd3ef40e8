package crawler

import (
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"sjsage522/metricworker/helpers"
	"sjsage522/metricworker/pkg/errors"
	"sjsage522/metricworker/services/cache"
)

// rateGate remembers hosts that answered with a rate limit and refuses to
// contact them again until BlockTime has passed
type rateGate struct {
	CacheSvc  cache.CacheService
	BlockTime time.Duration
}

func rateKey(host string) string {
	return host + "_rate_limited"
}

// check returns a rate limit error while host is blocked
func (g rateGate) check(host string) error {
	if g.CacheSvc == nil {
		return nil
	}
	if _, err := g.CacheSvc.Get(rateKey(host)); err == nil {
		return errors.NewRateLimit(host, g.BlockTime)
	}
	return nil
}

// block marks host as rate limited
func (g rateGate) block(host string) {
	if g.CacheSvc == nil || g.BlockTime <= 0 {
		return
	}
	seconds := strconv.Itoa(int(g.BlockTime / time.Second))
	if err := g.CacheSvc.Set(rateKey(host), []byte(seconds), g.BlockTime); err != nil {
		log().Warn().Err(err).Str("host", host).Msg("Failed to store rate limit flag")
	}
}

// hostOf returns the host of rawURL, or rawURL itself when it does not parse
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}

// createDocument creates a goquery document from a reader
func createDocument(reader io.Reader) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}
	return doc, nil
}

// PageText returns the visible text of a page as trimmed, non-empty lines
func PageText(r io.Reader) (string, error) {
	doc, err := createDocument(r)
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript, template").Remove()

	var lines []string
	var walk func(*goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			if goquery.NodeName(c) == "#text" {
				if line := helpers.CollapseSpace(c.Text()); line != "" {
					lines = append(lines, line)
				}
				return
			}
			walk(c)
		})
	}
	walk(doc.Selection)
	return strings.Join(lines, "\n"), nil
}
