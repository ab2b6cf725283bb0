package ratelimit

import (
	"context"
	"sync"
	"time"
)

// TokenBucket implements the token bucket algorithm for request throttling
type TokenBucket struct {
	capacity   int
	tokens     float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	now        func() time.Time
	mu         sync.Mutex
}

// NewTokenBucket creates a full bucket.
// capacity is the burst size and refillRate the sustained requests per second.
func NewTokenBucket(capacity int, refillRate float64) *TokenBucket {
	return newTokenBucket(capacity, refillRate, time.Now)
}

func newTokenBucket(capacity int, refillRate float64, now func() time.Time) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     float64(capacity),
		refillRate: refillRate,
		lastRefill: now(),
		now:        now,
	}
}

// Allow takes one token if available
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tb.tokens = min(float64(tb.capacity), tb.tokens+elapsed*tb.refillRate)
	tb.lastRefill = now

	if tb.tokens >= 1.0 {
		tb.tokens--
		return true
	}
	return false
}

// Tokens returns the current number of available tokens
func (tb *TokenBucket) Tokens() float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.tokens
}

// Reset refills the bucket
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.tokens = float64(tb.capacity)
	tb.lastRefill = tb.now()
}

func (tb *TokenBucket) idleSince() time.Time {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.lastRefill
}

// KeyedLimiter keeps one token bucket per key (IP, endpoint) and evicts idle ones.
type KeyedLimiter struct {
	buckets    map[string]*TokenBucket
	capacity   int
	refillRate float64
	ttl        time.Duration
	now        func() time.Time
	mu         sync.Mutex
}

// NewKeyedLimiter creates a limiter. Buckets idle longer than ttl are dropped by Sweep.
func NewKeyedLimiter(capacity int, refillRate float64, ttl time.Duration) *KeyedLimiter {
	return &KeyedLimiter{
		buckets:    make(map[string]*TokenBucket),
		capacity:   capacity,
		refillRate: refillRate,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Allow checks the bucket for key, creating it full on first use
func (kl *KeyedLimiter) Allow(key string) bool {
	kl.mu.Lock()
	bucket, ok := kl.buckets[key]
	if !ok {
		bucket = newTokenBucket(kl.capacity, kl.refillRate, kl.now)
		kl.buckets[key] = bucket
	}
	kl.mu.Unlock()

	return bucket.Allow()
}

// Reset refills the bucket for key
func (kl *KeyedLimiter) Reset(key string) {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	if bucket, ok := kl.buckets[key]; ok {
		bucket.Reset()
	}
}

// Len returns the number of live buckets
func (kl *KeyedLimiter) Len() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.buckets)
}

// Sweep removes buckets idle longer than the ttl
func (kl *KeyedLimiter) Sweep() {
	if kl.ttl <= 0 {
		return
	}
	kl.mu.Lock()
	defer kl.mu.Unlock()

	now := kl.now()
	for key, bucket := range kl.buckets {
		if now.Sub(bucket.idleSince()) > kl.ttl {
			delete(kl.buckets, key)
		}
	}
}

// RunSweeper calls Sweep every ttl until ctx is done
func (kl *KeyedLimiter) RunSweeper(ctx context.Context) {
	if kl.ttl <= 0 {
		return
	}
	ticker := time.NewTicker(kl.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			kl.Sweep()
		}
	}
}
