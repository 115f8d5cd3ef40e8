package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"sjsage522/metricworker/logger"
	"sjsage522/metricworker/services/cache"
)

// latestResponse is the body of GET /latest?from=XXX. Rates are quoted as
// units of each currency per one unit of base.
type latestResponse struct {
	Base  string             `json:"base"`
	Date  string             `json:"date"`
	Rates map[string]float64 `json:"rates"`
}

// Remote fetches rates from a frankfurter compatible API and keeps the
// inverted table in the cache for TTL. When the API cannot be reached the
// fallback rates are returned together with the error.
type Remote struct {
	client    *resty.Client
	cache     cache.CacheService
	reference string
	ttl       time.Duration
	fallback  Rates
	log       *logger.Logger
}

// NewRemote creates a Remote provider for baseURL.
func NewRemote(baseURL, reference string, ttl time.Duration, cacheSvc cache.CacheService, fallback Rates) *Remote {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(15*time.Second).
		SetRetryCount(2).
		SetHeader("Accept", "application/json")

	return &Remote{
		client:    client,
		cache:     cacheSvc,
		reference: strings.ToUpper(reference),
		ttl:       ttl,
		fallback:  fallback,
		log:       logger.ForFetcher("fx"),
	}
}

func (r *Remote) cacheKey() string {
	return "fx:" + r.reference
}

// Rates returns cached rates, fetching them when the cache is cold.
func (r *Remote) Rates(ctx context.Context) (Rates, error) {
	if r.cache != nil {
		if raw, err := r.cache.Get(r.cacheKey()); err == nil {
			var perUnit map[string]float64
			if err := json.Unmarshal(raw, &perUnit); err == nil {
				return r.fallback.Merge(Rates{Reference: r.reference, PerUnit: perUnit}), nil
			}
		}
	}

	var body latestResponse
	resp, err := r.client.R().
		SetContext(ctx).
		SetQueryParam("from", r.reference).
		SetResult(&body).
		Get("/latest")
	if err != nil {
		return r.fallback, fmt.Errorf("fetch exchange rates: %w", err)
	}
	if resp.IsError() {
		return r.fallback, fmt.Errorf("fetch exchange rates: unexpected status code: %d", resp.StatusCode())
	}

	perUnit := Invert(body.Rates)
	r.log.Debug().Str("date", body.Date).Int("currencies", len(perUnit)).Msg("Fetched exchange rates")

	if r.cache != nil {
		if raw, err := json.Marshal(perUnit); err == nil {
			if err := r.cache.Set(r.cacheKey(), raw, r.ttl); err != nil {
				r.log.Warn().Err(err).Msg("Failed to cache exchange rates")
			}
		}
	}

	return r.fallback.Merge(Rates{Reference: r.reference, PerUnit: perUnit}), nil
}

// Invert turns "target units per reference unit" quotes into "reference
// units per target unit". Zero or negative quotes are dropped.
func Invert(quotes map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(quotes))
	for code, q := range quotes {
		if q > 0 {
			out[strings.ToUpper(code)] = 1 / q
		}
	}
	return out
}
