package cache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	pkgcache "PairPilot/pkg/cache"
	applogger "PairPilot/pkg/logger"
)

const mirrorPrefix = "universe"

// UniverseCache holds discovered pair lists keyed by venue or group name.
// An entry is valid while its age is below the TTL; expired entries are
// evicted when read. When a mirror is configured, entries are also written
// to it so other replicas and restarts can reuse a fresh universe.
type UniverseCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]CachedUniverse
	mirror  pkgcache.Service
	now     func() time.Time
	log     *applogger.Logger
}

// Option configures UniverseCache.
type Option func(*UniverseCache)

// WithMirror mirrors entries to a shared cache service.
func WithMirror(s pkgcache.Service) Option {
	return func(c *UniverseCache) { c.mirror = s }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *UniverseCache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger used for mirror failures.
func WithLogger(l *applogger.Logger) Option {
	return func(c *UniverseCache) {
		if l != nil {
			c.log = l
		}
	}
}

// NewUniverseCache builds a cache whose entries live for ttlHours.
func NewUniverseCache(ttlHours float64, opts ...Option) (*UniverseCache, error) {
	if ttlHours <= 0 {
		return nil, fmt.Errorf("%w: got %v hours", ErrInvalidTTL, ttlHours)
	}
	c := &UniverseCache{
		ttl:     time.Duration(ttlHours * float64(time.Hour)),
		entries: make(map[string]CachedUniverse),
		now:     time.Now,
		log:     applogger.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// TTL returns the configured entry lifetime.
func (c *UniverseCache) TTL() time.Duration { return c.ttl }

// Get returns a copy of the cached list for key when it is younger than the
// TTL. An expired local entry is evicted and reported as a miss.
func (c *UniverseCache) Get(ctx context.Context, key string) ([]string, bool) {
	now := c.now()

	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && e.Age(now) >= c.ttl {
		delete(c.entries, key)
		ok = false
	}
	c.mu.Unlock()

	if ok {
		return slices.Clone(e.Pairs), true
	}
	if c.mirror == nil {
		return nil, false
	}

	var remote CachedUniverse
	if err := c.mirror.Get(ctx, pkgcache.GenerateKey(mirrorPrefix, key), &remote); err != nil {
		if !errors.Is(err, pkgcache.ErrCacheMiss) {
			c.log.Warn("universe mirror read failed", applogger.String("key", key), applogger.Error(err))
		}
		return nil, false
	}
	if remote.Age(now) >= c.ttl || remote.Age(now) < 0 {
		return nil, false
	}

	c.mu.Lock()
	c.entries[key] = remote
	c.mu.Unlock()
	return slices.Clone(remote.Pairs), true
}

// Set stores pairs under key stamped with the current time.
func (c *UniverseCache) Set(ctx context.Context, key string, pairs []string) {
	e := CachedUniverse{Pairs: slices.Clone(pairs), WrittenAt: c.now()}

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()

	if c.mirror == nil {
		return
	}
	if err := c.mirror.Set(ctx, pkgcache.GenerateKey(mirrorPrefix, key), e, c.ttl); err != nil {
		c.log.Warn("universe mirror write failed", applogger.String("key", key), applogger.Error(err))
	}
}

// Invalidate removes the given keys, or every entry when called with none.
func (c *UniverseCache) Invalidate(ctx context.Context, keys ...string) {
	c.mu.Lock()
	if len(keys) == 0 {
		clear(c.entries)
	} else {
		for _, k := range keys {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()

	if c.mirror == nil {
		return
	}
	var err error
	if len(keys) == 0 {
		err = c.mirror.DeleteByPattern(ctx, pkgcache.BuildPattern(mirrorPrefix+":"))
	} else {
		wrapped := make([]string, len(keys))
		for i, k := range keys {
			wrapped[i] = pkgcache.GenerateKey(mirrorPrefix, k)
		}
		err = c.mirror.Delete(ctx, wrapped...)
	}
	if err != nil {
		c.log.Warn("universe mirror invalidate failed", applogger.Strings("keys", keys), applogger.Error(err))
	}
}

// Snapshot returns the locally held entries that are still valid. It does
// not evict.
func (c *UniverseCache) Snapshot() map[string]CachedUniverse {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]CachedUniverse, len(c.entries))
	for k, e := range c.entries {
		if e.Age(now) < c.ttl {
			out[k] = CachedUniverse{Pairs: slices.Clone(e.Pairs), WrittenAt: e.WrittenAt}
		}
	}
	return out
}
