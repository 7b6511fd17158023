package handler

import (
	"sync"
	"time"
)

// debouncer implements spec.md §4.10's per-key debounce: scheduling a key
// cancels any pending timer for it and starts a new one, so a burst of
// events within the window collapses into a single trailing call. Bounded
// to maxEntries so an installation producing endless distinct keys cannot
// grow the timer map without limit.
type debouncer struct {
	mu         sync.Mutex
	timers     map[string]*time.Timer
	maxEntries int
}

func newDebouncer(maxEntries int) *debouncer {
	return &debouncer{timers: make(map[string]*time.Timer), maxEntries: maxEntries}
}

// schedule cancels any pending timer for key and arms a new one that calls
// fn after delay.
func (d *debouncer) schedule(key string, delay time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.timers[key]; ok {
		t.Stop()
		delete(d.timers, key)
	} else if len(d.timers) >= d.maxEntries {
		for k, t := range d.timers {
			t.Stop()
			delete(d.timers, k)
			break
		}
	}

	d.timers[key] = time.AfterFunc(delay, func() {
		d.mu.Lock()
		delete(d.timers, key)
		d.mu.Unlock()
		fn()
	})
}

// cooldownCache implements spec.md §4.10's per-key cooldown: a key marked
// active stays active until its TTL elapses, bounded to maxEntries with
// eviction of the soonest-to-expire entry when full.
type cooldownCache struct {
	mu         sync.Mutex
	entries    map[string]time.Time
	maxEntries int
}

func newCooldownCache(maxEntries int) *cooldownCache {
	return &cooldownCache{entries: make(map[string]time.Time), maxEntries: maxEntries}
}

// mark puts key into cooldown for ttl.
func (c *cooldownCache) mark(key string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for k, exp := range c.entries {
		if now.After(exp) {
			delete(c.entries, k)
		}
	}
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		var oldestKey string
		var oldestExp time.Time
		for k, exp := range c.entries {
			if oldestKey == "" || exp.Before(oldestExp) {
				oldestKey, oldestExp = k, exp
			}
		}
		if oldestKey != "" {
			delete(c.entries, oldestKey)
		}
	}
	c.entries[key] = now.Add(ttl)
}

// active reports whether key is currently in cooldown.
func (c *cooldownCache) active(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	exp, ok := c.entries[key]
	if !ok {
		return false
	}
	if time.Now().After(exp) {
		delete(c.entries, key)
		return false
	}
	return true
}
