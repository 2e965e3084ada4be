package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenBucketExhaustsAndReportsRetry(t *testing.T) {
	bucket := NewTokenBucket(2, 1, time.Minute)

	allowed, _ := bucket.Allow()
	assert.True(t, allowed)
	allowed, _ = bucket.Allow()
	assert.True(t, allowed)

	allowed, retryAfter := bucket.Allow()
	assert.False(t, allowed)
	assert.Greater(t, retryAfter, time.Duration(0))
}

func TestRateLimiterIsolatesIdentitiesAndActions(t *testing.T) {
	limiter := NewRateLimiter()

	for i := 0; i < 10; i++ {
		allowed, _ := limiter.Allow("clinic-1", "send_message")
		assert.True(t, allowed)
	}
	allowed, _ := limiter.Allow("clinic-1", "send_message")
	assert.False(t, allowed)

	// Another identity and another action are unaffected.
	allowed, _ = limiter.Allow("lab-1", "send_message")
	assert.True(t, allowed)
	allowed, _ = limiter.Allow("clinic-1", "typing")
	assert.True(t, allowed)
}

func TestCleanupDropsIdleBuckets(t *testing.T) {
	limiter := NewRateLimiter()

	limiter.Allow("clinic-1", "send_message")
	limiter.Allow("lab-1", "send_message")

	limiter.mutex.Lock()
	limiter.buckets["clinic-1:send_message"].lastRefill = time.Now().Add(-2 * time.Hour)
	limiter.mutex.Unlock()

	limiter.Cleanup()

	limiter.mutex.RLock()
	defer limiter.mutex.RUnlock()
	assert.NotContains(t, limiter.buckets, "clinic-1:send_message")
	assert.Contains(t, limiter.buckets, "lab-1:send_message")
}
