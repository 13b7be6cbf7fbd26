package middleware

import (
	"sync"
	"time"
)

// RateLimiter is a per-key token bucket refilled at rate tokens per window.
type RateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*tokenBucket
	rate      int
	window    time.Duration
	lastPrune time.Time
	now       func() time.Time
}

type tokenBucket struct {
	tokens int
	// lastFill only advances by whole token intervals, so partial refill
	// carries over to the next call.
	lastFill time.Time
}

// NewRateLimiter creates a limiter allowing ratePerWindow requests per window
// for each key.
func NewRateLimiter(ratePerWindow int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*tokenBucket),
		rate:    ratePerWindow,
		window:  window,
		now:     time.Now,
	}
}

// Allow reports whether a request for key may proceed and, if not, how long
// until a token is available.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.rate <= 0 {
		return false, rl.window
	}

	now := rl.now()
	rl.prune(now)

	bucket, exists := rl.buckets[key]
	if !exists {
		rl.buckets[key] = &tokenBucket{tokens: rl.rate - 1, lastFill: now}
		return true, 0
	}

	interval := rl.window / time.Duration(rl.rate)
	if interval <= 0 {
		interval = 1
	}
	if n := int(now.Sub(bucket.lastFill) / interval); n > 0 {
		bucket.tokens += n
		bucket.lastFill = bucket.lastFill.Add(time.Duration(n) * interval)
		if bucket.tokens >= rl.rate {
			bucket.tokens = rl.rate
			bucket.lastFill = now
		}
	}

	if bucket.tokens > 0 {
		bucket.tokens--
		return true, 0
	}
	return false, interval - now.Sub(bucket.lastFill)
}

// prune drops buckets idle for a full window; they would be full again and
// are indistinguishable from a new key. Runs at most once per window.
func (rl *RateLimiter) prune(now time.Time) {
	if now.Sub(rl.lastPrune) < rl.window {
		return
	}
	rl.lastPrune = now
	for key, b := range rl.buckets {
		if now.Sub(b.lastFill) >= rl.window {
			delete(rl.buckets, key)
		}
	}
}

// Reset forgets the bucket for key.
func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.buckets, key)
}
