package cache

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"sjsage522/metricworker/logger"
)

// MemcacheService implements CacheService using memcache
type MemcacheService struct {
	client *memcache.Client
	prefix string
	log    *logger.Logger
}

// NewMemcacheService creates a new memcache service. Keys are namespaced with
// prefix so several tools can share one memcached.
func NewMemcacheService(serverAddr, prefix string) *MemcacheService {
	client := memcache.New(serverAddr)
	client.Timeout = 500 * time.Millisecond
	return &MemcacheService{client: client, prefix: prefix, log: logger.ForCache()}
}

// Ping checks that memcached answers.
func (m *MemcacheService) Ping() error {
	return m.client.Ping()
}

func (m *MemcacheService) key(key string) string {
	// memcache keys may not contain whitespace or control characters
	return m.prefix + strings.Map(func(r rune) rune {
		if r <= ' ' || r == 0x7f {
			return '_'
		}
		return r
	}, key)
}

// Get retrieves a value from memcache
func (m *MemcacheService) Get(key string) ([]byte, error) {
	item, err := m.client.Get(m.key(key))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, ErrMiss
	}
	if err != nil {
		m.log.WithError(err).Warn().Str("key", key).Msg("Memcache get failed")
		return nil, fmt.Errorf("memcache get %s: %w", key, err)
	}
	return item.Value, nil
}

// Set stores a value in memcache with an expiration time
func (m *MemcacheService) Set(key string, value []byte, expiration time.Duration) error {
	err := m.client.Set(&memcache.Item{
		Key:        m.key(key),
		Value:      value,
		Expiration: int32(expiration.Seconds()),
	})
	if err != nil {
		m.log.WithError(err).Warn().Str("key", key).Msg("Memcache set failed")
	}
	return err
}

// Delete removes a value from memcache
func (m *MemcacheService) Delete(key string) error {
	err := m.client.Delete(m.key(key))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil
	}
	return err
}
