package currency

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sjsage522/metricworker/services/cache"
)

func TestConvert(t *testing.T) {
	rates := Rates{Reference: "SEK", PerUnit: map[string]float64{"EUR": 11.5, "DKK": 1.54}}

	v, ok := rates.Convert(100, "SEK")
	require.True(t, ok)
	assert.Equal(t, 100.0, v)

	v, ok = rates.Convert(2, "eur")
	require.True(t, ok)
	assert.InDelta(t, 23.0, v, 1e-9)

	v, ok = rates.Convert(12, "NOK")
	assert.False(t, ok)
	assert.Zero(t, v)
}

func TestMerge(t *testing.T) {
	base := Rates{Reference: "SEK", PerUnit: map[string]float64{"EUR": 11, "NOK": 1}}
	merged := base.Merge(Rates{PerUnit: map[string]float64{"EUR": 11.5}})

	assert.Equal(t, "SEK", merged.Reference)
	assert.Equal(t, map[string]float64{"EUR": 11.5, "NOK": 1}, merged.PerUnit)
	assert.Equal(t, 11.0, base.PerUnit["EUR"])
}

func TestInvert(t *testing.T) {
	got := Invert(map[string]float64{"eur": 0.08, "DKK": 0.625, "XXX": 0})
	assert.InDelta(t, 12.5, got["EUR"], 1e-9)
	assert.InDelta(t, 1.6, got["DKK"], 1e-9)
	_, ok := got["XXX"]
	assert.False(t, ok)
}

func TestRemoteRates(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/latest", r.URL.Path)
		assert.Equal(t, "SEK", r.URL.Query().Get("from"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"amount":1.0,"base":"SEK","date":"2025-03-03","rates":{"EUR":0.08,"NOK":1.0}}`))
	}))
	defer server.Close()

	mem := cache.NewMemoryService()
	fallback := Rates{Reference: "SEK", PerUnit: map[string]float64{"GBP": 13}}
	remote := NewRemote(server.URL, "sek", time.Hour, mem, fallback)

	rates, err := remote.Rates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "SEK", rates.Reference)
	assert.InDelta(t, 12.5, rates.PerUnit["EUR"], 1e-9)
	assert.InDelta(t, 1.0, rates.PerUnit["NOK"], 1e-9)
	assert.Equal(t, 13.0, rates.PerUnit["GBP"])

	// second call is served from the cache
	_, err = remote.Rates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRemoteRatesFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	fallback := Rates{Reference: "SEK", PerUnit: map[string]float64{"EUR": 11}}
	remote := NewRemote(server.URL, "SEK", time.Hour, nil, fallback)

	rates, err := remote.Rates(context.Background())
	assert.Error(t, err)
	assert.Equal(t, fallback, rates)
}

func TestStatic(t *testing.T) {
	s := Static{Reference: "SEK", PerUnit: map[string]float64{"EUR": 11}}
	rates, err := s.Rates(context.Background())
	require.NoError(t, err)
	v, ok := rates.Convert(1, "EUR")
	assert.True(t, ok)
	assert.Equal(t, 11.0, v)
}
