package proxy

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"sjsage522/metricworker/config"
)

// Settings is the outbound proxy used by the HTTP fetcher and the browser
type Settings struct {
	Server   string
	Username string
	Password string
}

// FromConfig reads the proxy settings from cfg
func FromConfig(cfg *config.Config) Settings {
	return Settings{
		Server:   strings.TrimSpace(cfg.ProxyServer),
		Username: cfg.ProxyUsername,
		Password: cfg.ProxyPassword,
	}
}

// Enabled reports whether a proxy server is configured
func (s Settings) Enabled() bool {
	return s.Server != ""
}

// parse reads Server, defaulting the scheme to http
func (s Settings) parse() (*url.URL, error) {
	raw := s.Server
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy server %q: %w", s.Server, err)
	}
	if u.Hostname() == "" || u.Port() == "" {
		return nil, fmt.Errorf("proxy server %q needs a host and port", s.Server)
	}
	switch u.Scheme {
	case "http", "https", "socks5":
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
	return u, nil
}

// URL returns the proxy URL for an HTTP transport, with credentials when
// configured. It returns nil when no proxy is set.
func (s Settings) URL() (*url.URL, error) {
	if !s.Enabled() {
		return nil, nil
	}
	u, err := s.parse()
	if err != nil {
		return nil, err
	}
	if s.Username != "" {
		u.User = url.UserPassword(s.Username, s.Password)
	}
	return u, nil
}

// ChromeServer returns the value for chrome's proxy-server flag. Chrome
// takes no credentials there.
func (s Settings) ChromeServer() (string, error) {
	if !s.Enabled() {
		return "", nil
	}
	u, err := s.parse()
	if err != nil {
		return "", err
	}
	if s.Username != "" {
		log.Warn().Str("proxy", u.Host).Msg("Browser proxy ignores credentials")
	}
	return u.Scheme + "://" + u.Host, nil
}

// Check opens a TCP connection to the proxy and returns the latency
func (s Settings) Check(ctx context.Context, timeout time.Duration) (time.Duration, error) {
	u, err := s.parse()
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", u.Host)
	if err != nil {
		log.Debug().Str("proxy", u.Host).Err(err).Msg("TCP connection failed")
		return 0, fmt.Errorf("proxy %s unreachable: %w", u.Host, err)
	}
	defer conn.Close()

	latency := time.Since(start)
	log.Debug().Str("proxy", u.Host).Dur("latency", latency).Msg("Proxy reachable")
	return latency, nil
}
