package crawler

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
	"sjsage522/metricworker/helpers"
	"sjsage522/metricworker/internal/retry"
	"sjsage522/metricworker/logger"
	"sjsage522/metricworker/pkg/errors"
	"sjsage522/metricworker/services/cache"
)

func log() *logger.Logger {
	return logger.ForFetcher("http")
}

// HTTPFetcher fetches pages with plain GET requests and browser-like headers
type HTTPFetcher struct {
	rateGate
	client  *http.Client
	retry   retry.Config
	limiter *rate.Limiter
}

// HTTPOptions configures an HTTPFetcher
type HTTPOptions struct {
	Client *http.Client
	Retry  retry.Config
	// Delay is the minimum pause between two requests
	Delay     time.Duration
	CacheSvc  cache.CacheService
	BlockTime time.Duration
}

// NewHTTPFetcher creates a new HTTP fetcher
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	client := opts.Client
	if client == nil {
		client = helpers.NewClient(30*time.Second, nil)
	}
	limit := rate.Inf
	if opts.Delay > 0 {
		limit = rate.Every(opts.Delay)
	}
	return &HTTPFetcher{
		rateGate: rateGate{CacheSvc: opts.CacheSvc, BlockTime: opts.BlockTime},
		client:   client,
		retry:    opts.Retry,
		limiter:  rate.NewLimiter(limit, 1),
	}
}

// Fetch retrieves url, retrying navigation failures. A host that answered
// with a rate limit is not contacted again until its block expires.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (io.Reader, error) {
	host := hostOf(url)
	if err := f.check(host); err != nil {
		return nil, err
	}

	return retry.WithRetry(ctx, f.retry, func(ctx context.Context) (io.Reader, error) {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, errors.NewNavigation(host, "wait for request slot", err)
		}

		body, err := helpers.FetchWithRandomHeaders(ctx, f.client, url)
		if err == nil {
			return body, nil
		}

		if stderrors.Is(err, helpers.ErrRateLimited) {
			f.block(host)
			log().Warn().Str("host", host).Dur("block", f.BlockTime).Msg("Rate limited")
			return nil, errors.NewRateLimit(host, f.BlockTime)
		}
		var status *helpers.StatusError
		if stderrors.As(err, &status) && !status.Temporary() {
			return nil, errors.NewNotFound(host, url, err)
		}
		return nil, errors.NewNavigation(host, "fetch "+url, err)
	})
}
