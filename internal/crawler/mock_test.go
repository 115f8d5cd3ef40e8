package crawler

import (
	"context"
	"io"
	"strings"
	"time"

	"sjsage522/metricworker/pkg/errors"
	"sjsage522/metricworker/services/cache"
)

// MockCacheService implements a simple in-memory cache for testing
type MockCacheService struct {
	cache map[string][]byte
}

func NewMockCacheService() *MockCacheService {
	return &MockCacheService{
		cache: make(map[string][]byte),
	}
}

func (m *MockCacheService) Get(key string) ([]byte, error) {
	if val, ok := m.cache[key]; ok {
		return val, nil
	}
	return nil, cache.ErrMiss
}

func (m *MockCacheService) Set(key string, value []byte, expiration time.Duration) error {
	m.cache[key] = value
	return nil
}

func (m *MockCacheService) Delete(key string) error {
	delete(m.cache, key)
	return nil
}

// MockFetcher serves canned pages by URL
type MockFetcher struct {
	Pages   map[string]string
	Fetched []string
}

func (m *MockFetcher) Fetch(ctx context.Context, url string) (io.Reader, error) {
	m.Fetched = append(m.Fetched, url)
	page, ok := m.Pages[url]
	if !ok {
		return nil, errors.NewNotFound("mock", url, nil)
	}
	return strings.NewReader(page), nil
}

var (
	_ cache.CacheService = (*MockCacheService)(nil)
	_ Fetcher            = (*MockFetcher)(nil)
	_ Fetcher            = (*HTTPFetcher)(nil)
	_ Fetcher            = BrowserFetcher{}
	_ Browser            = (*ChromeBrowser)(nil)
	_ Locator            = (*SelectorLocator)(nil)
	_ Locator            = TableLocator{}
)
