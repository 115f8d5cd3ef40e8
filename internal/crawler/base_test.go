package crawler

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sjsage522/metricworker/pkg/errors"
)

func TestRateGate(t *testing.T) {
	cacheSvc := NewMockCacheService()
	gate := rateGate{CacheSvc: cacheSvc, BlockTime: 5 * time.Minute}

	assert.NoError(t, gate.check("www.newegg.com"))

	gate.block("www.newegg.com")
	assert.Equal(t, []byte("300"), cacheSvc.cache["www.newegg.com_rate_limited"])

	err := gate.check("www.newegg.com")
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeRateLimit, errors.TypeOf(err))
	assert.NoError(t, gate.check("www.inet.se"))
}

func TestRateGateWithoutCache(t *testing.T) {
	gate := rateGate{BlockTime: time.Minute}
	gate.block("example.com")
	assert.NoError(t, gate.check("example.com"))
}

func TestHostOf(t *testing.T) {
	assert.Equal(t, "www.rugvista.se", hostOf("https://www.rugvista.se/c/mattor/bastsaljare?page=2"))
	assert.Equal(t, "not a url", hostOf("not a url"))
}

func TestPageText(t *testing.T) {
	html := `<html><head><style>.x{}</style><script>var a = 1;</script></head>
<body>
  <h1>Om   Adtraction</h1>
  <div><span>Konverteringar</span> <b>12&nbsp;345&nbsp;678</b></div>
  <noscript>Enable JS</noscript>
  <p>   </p>
</body></html>`

	text, err := PageText(strings.NewReader(html))
	require.NoError(t, err)
	assert.Equal(t, "Om Adtraction\nKonverteringar\n12 345 678", text)
}
