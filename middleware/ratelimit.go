package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RateLimiter implements a per-key sliding window rate limiter over an
// arbitrary window, used to bound the three HTTP ingress tiers of
// spec.md §5: API routes (100 req/15min), auth routes (20 req/15min), and
// webhook routes (60 req/1min). In-memory only — a single instance does not
// share state across replicas.
type RateLimiter struct {
	logger  zerolog.Logger
	name    string
	limit   int
	window  time.Duration
	mu      sync.Mutex
	windows map[string]*slidingWindow
}

type slidingWindow struct {
	tokens    []time.Time
	lastClean time.Time
}

// NewRateLimiter creates a rate limiter bounding `limit` requests per
// `window`, keyed by caller (installation id, or remote address as a
// fallback for unauthenticated routes like the webhook ingress).
func NewRateLimiter(logger zerolog.Logger, name string, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		logger:  logger.With().Str("rate_limiter", name).Logger(),
		name:    name,
		limit:   limit,
		window:  window,
		windows: make(map[string]*slidingWindow),
	}
}

// Handler returns the rate limiting middleware, keying on keyFunc's result.
func (rl *RateLimiter) Handler(keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if key == "" {
				key = r.RemoteAddr
			}

			allowed, remaining, resetAt := rl.allow(key)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

			if !allowed {
				retryAfter := int(time.Until(resetAt).Seconds()) + 1
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				http.Error(w, fmt.Sprintf(`{"error":"rate_limit_exceeded","message":"rate limit of %d requests per %s exceeded"}`,
					rl.limit, rl.window), http.StatusTooManyRequests)
				rl.logger.Warn().Str("key", key).Int("limit", rl.limit).Msg("rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) allow(key string) (bool, int, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.window)
	resetAt := now.Add(rl.window)

	sw, exists := rl.windows[key]
	if !exists {
		sw = &slidingWindow{tokens: make([]time.Time, 0, rl.limit), lastClean: now}
		rl.windows[key] = sw
	}

	if now.Sub(sw.lastClean) > rl.window/10 {
		validTokens := make([]time.Time, 0, len(sw.tokens))
		for _, t := range sw.tokens {
			if t.After(windowStart) {
				validTokens = append(validTokens, t)
			}
		}
		sw.tokens = validTokens
		sw.lastClean = now
	}

	count := 0
	for _, t := range sw.tokens {
		if t.After(windowStart) {
			count++
		}
	}

	remaining := rl.limit - count
	if remaining <= 0 {
		if len(sw.tokens) > 0 {
			resetAt = sw.tokens[0].Add(rl.window)
		}
		return false, 0, resetAt
	}

	sw.tokens = append(sw.tokens, now)
	return true, remaining - 1, resetAt
}

// Cleanup removes stale entries; call periodically from a background ticker.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-2 * rl.window)
	for key, sw := range rl.windows {
		if len(sw.tokens) == 0 || sw.tokens[len(sw.tokens)-1].Before(cutoff) {
			delete(rl.windows, key)
		}
	}
}
