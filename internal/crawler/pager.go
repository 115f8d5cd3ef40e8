package crawler

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"sjsage522/metricworker/pkg/errors"
)

// Pages describes query-string pagination such as "?page=2"
type Pages struct {
	URL   string `yaml:"url"`
	Param string `yaml:"param"`
	// FirstBare leaves the parameter off the first page
	FirstBare bool `yaml:"first_bare"`
	// Start is the parameter value of the first page; zero means 1
	Start    int `yaml:"start"`
	MaxPages int `yaml:"max_pages"`
}

// PageURL returns the URL of the 1-based page n
func (p Pages) PageURL(n int) (string, error) {
	if p.Param == "" || (n == 1 && p.FirstBare) {
		return p.URL, nil
	}
	u, err := url.Parse(p.URL)
	if err != nil {
		return "", fmt.Errorf("parse page URL %q: %w", p.URL, err)
	}
	q := u.Query()
	q.Set(p.Param, strconv.Itoa(n-1+max(p.Start, 1)))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// PageFunc returns the items of the 1-based page n
type PageFunc func(ctx context.Context, n int) ([]Item, error)

// Paged builds a PageFunc that fetches and locates each page
func Paged(f Fetcher, l Locator, p Pages) PageFunc {
	return func(ctx context.Context, n int) ([]Item, error) {
		pageURL, err := p.PageURL(n)
		if err != nil {
			return nil, err
		}
		body, err := f.Fetch(ctx, pageURL)
		if err != nil {
			return nil, err
		}
		return l.Locate(body)
	}
}

// Walk calls visit with the items of every page until visit returns false,
// a page is empty or MaxPages is reached. An error on the first page is
// returned, as is any fatal one; other failures end the walk with what was
// collected.
func Walk(ctx context.Context, next PageFunc, maxPages int, visit func(n int, items []Item) bool) error {
	if maxPages <= 0 {
		maxPages = 1
	}
	for n := 1; n <= maxPages; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		items, err := next(ctx, n)
		if err != nil {
			if n == 1 || errors.IsFatal(err) {
				return err
			}
			if errors.TypeOf(err) != errors.ErrorTypeNotFound {
				log().Warn().Err(err).Int("page", n).Msg("Stopping pagination")
			}
			return nil
		}
		if len(items) == 0 || !visit(n, items) {
			return nil
		}
	}
	return nil
}
