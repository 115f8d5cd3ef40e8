package jobs

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"sjsage522/metricworker/internal/crawler"
	"sjsage522/metricworker/internal/currency"
	"sjsage522/metricworker/internal/sheet"
	"sjsage522/metricworker/pkg/errors"
)

// MockFetcher serves canned pages by URL
type MockFetcher struct {
	mu      sync.Mutex
	Pages   map[string]string
	Fetched []string
}

func (m *MockFetcher) Fetch(ctx context.Context, url string) (io.Reader, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Fetched = append(m.Fetched, url)
	page, ok := m.Pages[url]
	if !ok {
		return nil, errors.NewNotFound("mock", url, nil)
	}
	return strings.NewReader(page), nil
}

// MockBrowser serves canned pages and records logins
type MockBrowser struct {
	Pages     map[string]string
	Paginated map[string][]string
	LoginErr  error
	Opened    []string
	LoggedIn  bool
	Closed    bool
}

func (m *MockBrowser) Open(ctx context.Context, url string, nav crawler.Navigation) (string, error) {
	m.Opened = append(m.Opened, url)
	page, ok := m.Pages[url]
	if !ok {
		return "", errors.NewNavigation("mock", "open "+url, nil)
	}
	return page, nil
}

func (m *MockBrowser) Paginate(ctx context.Context, url string, nav crawler.Navigation, next crawler.NextPage) ([]string, error) {
	m.Opened = append(m.Opened, url)
	pages, ok := m.Paginated[url]
	if !ok {
		return nil, errors.NewNavigation("mock", "open "+url, nil)
	}
	return pages, nil
}

func (m *MockBrowser) Login(ctx context.Context, login crawler.Login, username, password string) error {
	if m.LoginErr != nil {
		return m.LoginErr
	}
	m.LoggedIn = true
	return nil
}

func (m *MockBrowser) Close() {
	m.Closed = true
}

var (
	_ crawler.Fetcher = (*MockFetcher)(nil)
	_ crawler.Browser = (*MockBrowser)(nil)
)

var testNow = time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

func testEnv(fetcher crawler.Fetcher) Env {
	return Env{
		HTTP:     fetcher,
		Sheets:   sheet.NewMemory(),
		Location: time.UTC,
		Country:  "SE",
		Now:      func() time.Time { return testNow },
		Rates: currency.Static{
			Reference: "SEK",
			PerUnit:   map[string]float64{"EUR": 11, "DKK": 1.5},
		},
	}
}

func withBrowser(env Env, b *MockBrowser) Env {
	env.OpenBrowser = func(context.Context) (crawler.Browser, error) { return b, nil }
	return env
}

// fields returns the record fields as a label to value map
func fields(rec sheet.Record) map[string]any {
	return rec.Values()
}
