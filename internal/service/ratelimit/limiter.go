package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per key. Buckets are created on first use
// with the limits registered for the key, or the defaults.
type Limiter struct {
	mu       sync.Mutex
	m        map[string]*rate.Limiter
	limits   map[string]rate.Limit
	bursts   map[string]int
	defLimit rate.Limit
	defBurst int
}

// New creates a limiter whose unknown keys get rps tokens per second with
// the given burst. rps <= 0 means unlimited.
func New(rps float64, burst int) *Limiter {
	return &Limiter{
		m:        make(map[string]*rate.Limiter),
		limits:   make(map[string]rate.Limit),
		bursts:   make(map[string]int),
		defLimit: toLimit(rps),
		defBurst: max(burst, 1),
	}
}

// Configure sets the limits for key, replacing an existing bucket.
func (l *Limiter) Configure(key string, rps float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limits[key] = toLimit(rps)
	l.bursts[key] = max(burst, 1)
	delete(l.m, key)
}

// Allow returns true if one token can be consumed for key right now.
func (l *Limiter) Allow(key string) bool {
	return l.bucket(key).Allow()
}

// Wait blocks until a token for key is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	return l.bucket(key).Wait(ctx)
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.m[key]
	if !ok {
		lim, burst := l.defLimit, l.defBurst
		if v, ok := l.limits[key]; ok {
			lim, burst = v, l.bursts[key]
		}
		b = rate.NewLimiter(lim, burst)
		l.m[key] = b
	}
	return b
}

func toLimit(rps float64) rate.Limit {
	if rps <= 0 {
		return rate.Inf
	}
	return rate.Limit(rps)
}
