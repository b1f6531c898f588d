package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Allow(t *testing.T) {
	base := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)

	newLimiterAt := func(now time.Time) (*RateLimiter, *time.Time) {
		current := now
		rl := NewRateLimiter()
		rl.now = func() time.Time { return current }
		return rl, &current
	}

	t.Run("allows exactly ratePerMinute calls per window", func(t *testing.T) {
		rl, _ := newLimiterAt(base)

		for i := 0; i < 5; i++ {
			assert.True(t, rl.Allow("client:signature", 5), "call %d should be allowed", i+1)
		}
		assert.False(t, rl.Allow("client:signature", 5), "sixth call should be rejected")
	})

	t.Run("denied call consumes nothing", func(t *testing.T) {
		rl, _ := newLimiterAt(base)

		assert.True(t, rl.Allow("k", 1))
		assert.False(t, rl.Allow("k", 1))
		assert.False(t, rl.Allow("k", 1))
		assert.Equal(t, 0, rl.Remaining("k", 1))
	})

	t.Run("bucket refills at the minute boundary", func(t *testing.T) {
		rl, current := newLimiterAt(base.Add(30 * time.Second))

		require.True(t, rl.Allow("k", 2))
		require.True(t, rl.Allow("k", 2))
		require.False(t, rl.Allow("k", 2))

		*current = base.Add(61 * time.Second)
		assert.True(t, rl.Allow("k", 2), "next window should grant a fresh bucket")
	})

	t.Run("distinct keys are independent", func(t *testing.T) {
		rl, _ := newLimiterAt(base)

		assert.True(t, rl.Allow("a:pairing", 1))
		assert.False(t, rl.Allow("a:pairing", 1))
		assert.True(t, rl.Allow("b:pairing", 1))
		assert.True(t, rl.Allow("a:signature", 1), "same client, other endpoint class")
	})

	t.Run("zero rate rejects everything", func(t *testing.T) {
		rl, _ := newLimiterAt(base)
		assert.False(t, rl.Allow("k", 0))
	})
}

func TestRateLimiter_Remaining(t *testing.T) {
	base := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	current := base
	rl := NewRateLimiter()
	rl.now = func() time.Time { return current }

	assert.Equal(t, 3, rl.Remaining("k", 3), "unknown key reports the full rate")

	rl.Allow("k", 3)
	assert.Equal(t, 2, rl.Remaining("k", 3))

	current = base.Add(2 * time.Minute)
	assert.Equal(t, 3, rl.Remaining("k", 3), "stale window reports the full rate")
}

func TestRateLimiter_Cleanup(t *testing.T) {
	base := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	current := base
	rl := NewRateLimiter()
	rl.now = func() time.Time { return current }
	rl.lastCleanup = base

	for i := 0; i < 100; i++ {
		rl.Allow(fmt.Sprintf("k%d", i), 10)
	}
	require.Len(t, rl.buckets, 100)

	// Idle buckets past their TTL are dropped on the next cleanup pass.
	current = base.Add(bucketTTL + cleanupInterval + time.Second)
	rl.Allow("fresh", 10)
	assert.Len(t, rl.buckets, 1)
}
