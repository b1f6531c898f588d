package service

import (
	"sync"
	"time"
)

const (
	maxBuckets      = 10000
	bucketTTL       = 5 * time.Minute
	cleanupInterval = time.Minute
)

type bucket struct {
	windowStart time.Time
	remaining   int
	lastAccess  time.Time
}

// RateLimiter is a fixed-window token bucket per key, where a key is a client
// identifier combined with an endpoint class. A bucket is created full on
// first use and refills to full capacity when its minute window rolls over.
// Coarse per-window refill is deliberate: this guards against abuse, not for
// strict fairness.
type RateLimiter struct {
	mu          sync.Mutex
	buckets     map[string]*bucket
	lastCleanup time.Time
	now         func() time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		buckets:     make(map[string]*bucket),
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

// Allow consumes one token for key if any remain in the current window.
// A denied call consumes nothing.
func (rl *RateLimiter) Allow(key string, ratePerMinute int) bool {
	if ratePerMinute <= 0 {
		return false
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.cleanup(now)

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{windowStart: now.Truncate(time.Minute), remaining: ratePerMinute}
		rl.buckets[key] = b
	}
	b.lastAccess = now

	window := now.Truncate(time.Minute)
	if window.After(b.windowStart) {
		b.windowStart = window
		b.remaining = ratePerMinute
	}

	if b.remaining <= 0 {
		return false
	}
	b.remaining--
	return true
}

// Remaining reports the tokens left in the key's current window without
// consuming any. Unknown keys report the full rate.
func (rl *RateLimiter) Remaining(key string, ratePerMinute int) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		return ratePerMinute
	}
	if rl.now().Truncate(time.Minute).After(b.windowStart) {
		return ratePerMinute
	}
	return b.remaining
}

// cleanup bounds the bucket map: idle buckets expire, and if the map still
// exceeds maxBuckets a slice of entries is dropped outright. Over-eviction is harmless:
// an evicted client simply starts a fresh window.
func (rl *RateLimiter) cleanup(now time.Time) {
	if now.Sub(rl.lastCleanup) < cleanupInterval {
		return
	}
	rl.lastCleanup = now

	for key, b := range rl.buckets {
		if now.Sub(b.lastAccess) > bucketTTL {
			delete(rl.buckets, key)
		}
	}

	if len(rl.buckets) > maxBuckets {
		drop := len(rl.buckets) / 5
		for key := range rl.buckets {
			delete(rl.buckets, key)
			drop--
			if drop <= 0 {
				break
			}
		}
	}
}
