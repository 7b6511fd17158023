package crypto

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TokenCache is the process-global LRU+TTL cache of decrypted installation
// access tokens (spec.md §9: TTL 50 min, max 100 entries), sparing a
// decrypt-and-fetch round trip on every recomputation.
type TokenCache struct {
	mu       sync.RWMutex
	logger   zerolog.Logger
	ttl      time.Duration
	maxSize  int

	entries map[int64]*tokenEntry
	// order tracks recency, most-recently-used at the back.
	order []int64

	hits      int64
	misses    int64
	evictions int64
}

type tokenEntry struct {
	token     string
	expiresAt time.Time
}

// DefaultTokenCacheTTL and DefaultTokenCacheSize are the spec.md §9 values.
const (
	DefaultTokenCacheTTL  = 50 * time.Minute
	DefaultTokenCacheSize = 100
)

// NewTokenCache builds a token cache with the spec.md §9 defaults.
func NewTokenCache(logger zerolog.Logger) *TokenCache {
	return &TokenCache{
		logger:  logger.With().Str("component", "token_cache").Logger(),
		ttl:     DefaultTokenCacheTTL,
		maxSize: DefaultTokenCacheSize,
		entries: make(map[int64]*tokenEntry),
	}
}

// Get returns the cached token for an installation, or ("", false) on a
// miss or expiry.
func (c *TokenCache) Get(installationID int64) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[installationID]
	if !ok || time.Now().After(e.expiresAt) {
		c.misses++
		if ok {
			c.removeLocked(installationID)
		}
		return "", false
	}
	c.hits++
	c.touchLocked(installationID)
	return e.token, true
}

// Put stores a decrypted token, evicting the least-recently-used entry if
// the cache is at capacity.
func (c *TokenCache) Put(installationID int64, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[installationID]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}
	c.entries[installationID] = &tokenEntry{token: token, expiresAt: time.Now().Add(c.ttl)}
	c.touchLocked(installationID)
}

// Invalidate removes a cached token, used when an installation's token is
// rotated or revoked.
func (c *TokenCache) Invalidate(installationID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(installationID)
}

// Stats is a snapshot of cache hit/miss/eviction counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Entries   int
}

// Stats returns the current hit/miss/eviction counters.
func (c *TokenCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{Hits: c.hits, Misses: c.misses, Evictions: c.evictions, Entries: len(c.entries)}
}

func (c *TokenCache) touchLocked(id int64) {
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.order = append(c.order, id)
}

func (c *TokenCache) removeLocked(id int64) {
	delete(c.entries, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *TokenCache) evictOldestLocked() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.entries, oldest)
	c.evictions++
	c.logger.Debug().Int64("installation_id", oldest).Msg("evicted token cache entry")
}
