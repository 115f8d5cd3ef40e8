package main

import (
	"context"
	"fmt"
	"path/filepath"

	"sjsage522/metricworker/config"
	"sjsage522/metricworker/helpers"
	"sjsage522/metricworker/internal/crawler"
	"sjsage522/metricworker/internal/currency"
	"sjsage522/metricworker/internal/jobs"
	"sjsage522/metricworker/internal/retry"
	"sjsage522/metricworker/internal/sheet"
	"sjsage522/metricworker/logger"
	"sjsage522/metricworker/services/cache"
	"sjsage522/metricworker/services/changes"
	"sjsage522/metricworker/services/proxy"
	"sjsage522/metricworker/services/publisher"
)

// maxDiffLines bounds the change text written per page
const maxDiffLines = 80

// Services holds all the initialized services
type Services struct {
	Cache     cache.CacheService
	Publisher publisher.Publisher
	Sheets    sheet.Store
	Changes   *changes.Registry
	Env       jobs.Env
}

// Cleanup cleans up all services
func (s *Services) Cleanup() {
	if s.Publisher != nil {
		s.Publisher.Close()
	}
	if s.Changes != nil {
		if err := s.Changes.Close(); err != nil {
			logger.Warn("Failed to close state stores: %v", err)
		}
	}
}

// initializeServices initializes all required services
func initializeServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	services := &Services{}

	// Initialize cache service
	if cfg.MemcacheAddr != "" {
		memcached := cache.NewMemcacheService(cfg.MemcacheAddr, "metricworker:")
		if err := memcached.Ping(); err != nil {
			logger.Warn("Memcache at %s unavailable, using in-process cache: %v", cfg.MemcacheAddr, err)
			services.Cache = cache.NewMemoryService()
		} else {
			services.Cache = memcached
			logger.Info("Connected to Memcache at %s", cfg.MemcacheAddr)
		}
	} else {
		services.Cache = cache.NewMemoryService()
	}

	// Initialize publisher
	if cfg.RedisAddr != "" {
		redisPublisher := publisher.NewRedisPublisher(
			ctx,
			cfg.RedisAddr,
			cfg.RedisDB,
			cfg.RedisStream,
			cfg.RedisStreamCount,
			cfg.RedisStreamMaxLength,
		)
		if err := redisPublisher.Ping(); err != nil {
			logger.Warn("Redis at %s unavailable, publishing disabled: %v", cfg.RedisAddr, err)
			redisPublisher.Close()
		} else {
			services.Publisher = redisPublisher
			logger.Info("Connected to Redis at %s (DB: %d, Stream: %s)",
				cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream)
		}
	}

	// Initialize workbook
	switch cfg.SheetsBackend {
	case config.BackendGoogleSheets:
		gs, err := sheet.NewGoogleSheets(ctx, cfg.GoogleCredentials, cfg.SpreadsheetID)
		if err != nil {
			return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
		}
		services.Sheets = gs
	default:
		services.Sheets = sheet.NewXLSX(cfg.WorkbookPath)
	}

	proxySettings := proxy.FromConfig(cfg)
	proxyURL, err := proxySettings.URL()
	if err != nil {
		return nil, err
	}
	chromeProxy, err := proxySettings.ChromeServer()
	if err != nil {
		return nil, err
	}
	if proxySettings.Enabled() {
		latency, err := proxySettings.Check(ctx, cfg.RequestTimeout)
		if err != nil {
			return nil, fmt.Errorf("proxy %s unreachable: %w", proxySettings.Server, err)
		}
		logger.Info("Using proxy %s (%s)", chromeProxy, latency)
	}

	fetcher := crawler.NewHTTPFetcher(crawler.HTTPOptions{
		Client:    helpers.NewClient(cfg.RequestTimeout, proxyURL),
		Retry:     retry.Navigation(cfg.NavRetries, cfg.RequestTimeout),
		Delay:     cfg.PageDelay,
		CacheSvc:  services.Cache,
		BlockTime: cfg.RateLimitBlock,
	})
	chromeOpts := crawler.ChromeOptions{
		Headless: cfg.Headless,
		ExecPath: cfg.ChromePath,
		Proxy:    chromeProxy,
		Timeout:  cfg.NavTimeout,
		Retry:    retry.Navigation(cfg.NavRetries, cfg.NavTimeout),
	}

	services.Changes = changes.NewRegistry(filepath.Join(cfg.DataDir, "changes"), maxDiffLines)

	services.Env = jobs.Env{
		HTTP: fetcher,
		OpenBrowser: func(ctx context.Context) (crawler.Browser, error) {
			b, err := crawler.NewChromeBrowser(ctx, chromeOpts)
			if err != nil {
				return nil, err
			}
			return b, nil
		},
		Rates: currency.NewRemote(cfg.FXURL, cfg.ReferenceCurrency, cfg.FXCacheTTL, services.Cache,
			currency.Rates{Reference: cfg.ReferenceCurrency, PerUnit: cfg.StaticRates}),
		Sheets:  services.Sheets,
		Changes: services.Changes,
		Credentials: map[string]jobs.Credentials{
			jobs.AdtractionCredentials: {Username: cfg.AdtractionEmail, Password: cfg.AdtractionPassword},
		},
		Location: cfg.Location(),
		Country:  cfg.Country,
	}
	return services, nil
}
