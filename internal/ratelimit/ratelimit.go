// Package ratelimit provides per-key token-bucket rate limiting.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ssd-technologies/photoshare/internal/clock"
)

// Limiter tracks one token bucket per key (client IP, user ID).
type Limiter struct {
	limit rate.Limit
	burst int
	idle  time.Duration
	clock clock.Clock

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a Limiter that allows perMinute requests per key per minute,
// with bursts up to perMinute.
func New(perMinute int, clk clock.Clock) *Limiter {
	if clk == nil {
		clk = clock.Real()
	}
	if perMinute <= 0 {
		perMinute = 1
	}
	return &Limiter{
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   perMinute,
		idle:    10 * time.Minute,
		clock:   clk,
		buckets: make(map[string]*bucket),
	}
}

// Allow reports whether a request for key may proceed and consumes a token
// if so.
func (l *Limiter) Allow(key string) bool {
	now := l.clock.Now()

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	return b.limiter.AllowN(now, 1)
}

// Cleanup drops buckets idle for longer than ten minutes and returns how
// many were dropped. A dropped bucket starts full when its key returns.
func (l *Limiter) Cleanup() int {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.idle {
			delete(l.buckets, key)
			n++
		}
	}
	return n
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
