// Package redisclient provides an optional distributed cooldown marker
// shared across engine instances. A single instance's in-process cooldown
// cache (handler.cooldownCache) is enough to stop one process from
// recursing on its own writes, but a multi-instance deployment needs that
// suppression to be visible across processes too — two instances handling
// the same installation's webhooks must not both start a recalculation
// within the same cooldown window. Redis is optional: a missing or
// unreachable REDIS_URL degrades to single-instance behavior rather than
// aborting startup.
package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kestrelsched/engine/config"
)

type Client struct {
	c *redis.Client
}

// New creates a Redis client from the configured REDIS_URL. Returns an
// error if the URL cannot be parsed; callers are expected to log and
// continue without a Client rather than fail startup.
func New(cfg *config.Config) (*Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	return &Client{c: redis.NewClient(opt)}, nil
}

// Ping verifies connectivity at startup.
func (r *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.c.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (r *Client) Close() error {
	return r.c.Close()
}

// MarkCooldown sets a cross-instance cooldown marker for key, returning
// true if this call was the one that set it (the caller that lost the
// race should treat that as "already in cooldown elsewhere").
func (r *Client) MarkCooldown(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.c.SetNX(ctx, cooldownKey(key), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("marking distributed cooldown: %w", err)
	}
	return ok, nil
}

// CooldownActive reports whether another instance has already marked key
// as in cooldown.
func (r *Client) CooldownActive(ctx context.Context, key string) (bool, error) {
	n, err := r.c.Exists(ctx, cooldownKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("checking distributed cooldown: %w", err)
	}
	return n > 0, nil
}

func cooldownKey(key string) string {
	return "kestrel:cooldown:" + key
}
