package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgcache "PairPilot/pkg/cache"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

// memMirror stores JSON like RedisCache does.
type memMirror struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func newMemMirror() *memMirror { return &memMirror{data: map[string][]byte{}} }

func (m *memMirror) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	if m.err != nil {
		return m.err
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[key] = b
	m.mu.Unlock()
	return nil
}

func (m *memMirror) Get(_ context.Context, key string, dest interface{}) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	b, ok := m.data[key]
	m.mu.Unlock()
	if !ok {
		return pkgcache.ErrCacheMiss
	}
	return json.Unmarshal(b, dest)
}

func (m *memMirror) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return m.err
}

func (m *memMirror) DeleteByPattern(_ context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
		}
	}
	return m.err
}

func (m *memMirror) TTL(context.Context, string) (time.Duration, error) { return 0, nil }

var _ pkgcache.Service = (*memMirror)(nil)

func TestNewUniverseCacheRejectsNonPositiveTTL(t *testing.T) {
	for _, ttl := range []float64{0, -1} {
		_, err := NewUniverseCache(ttl)
		assert.ErrorIs(t, err, ErrInvalidTTL)
	}
}

func TestUniverseCacheExpiresLazily(t *testing.T) {
	clk := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c, err := NewUniverseCache(1, WithClock(clk.Now))
	require.NoError(t, err)
	ctx := context.Background()

	c.Set(ctx, "coinbase", []string{"BTC-USD", "ETH-USD"})

	clk.Advance(59 * time.Minute)
	got, ok := c.Get(ctx, "coinbase")
	require.True(t, ok)
	assert.Equal(t, []string{"BTC-USD", "ETH-USD"}, got)

	clk.Advance(time.Minute)
	_, ok = c.Get(ctx, "coinbase")
	assert.False(t, ok, "entry at exactly ttl is expired")

	c.mu.Lock()
	_, still := c.entries["coinbase"]
	c.mu.Unlock()
	assert.False(t, still, "expired entry evicted on read")
}

func TestUniverseCacheReturnsCopies(t *testing.T) {
	c, err := NewUniverseCache(24)
	require.NoError(t, err)
	ctx := context.Background()

	in := []string{"BTC-USD"}
	c.Set(ctx, "k", in)
	in[0] = "XXX"

	got, _ := c.Get(ctx, "k")
	got[0] = "YYY"

	again, _ := c.Get(ctx, "k")
	assert.Equal(t, []string{"BTC-USD"}, again)
}

func TestUniverseCacheInvalidate(t *testing.T) {
	c, err := NewUniverseCache(24)
	require.NoError(t, err)
	ctx := context.Background()

	c.Set(ctx, "a", []string{"BTC-USD"})
	c.Set(ctx, "b", []string{"ETH-USD"})

	c.Invalidate(ctx, "a")
	_, okA := c.Get(ctx, "a")
	_, okB := c.Get(ctx, "b")
	assert.False(t, okA)
	assert.True(t, okB)

	c.Set(ctx, "a", []string{"BTC-USD"})
	c.Invalidate(ctx)
	assert.Empty(t, c.Snapshot())
}

func TestUniverseCacheMirrorHydratesAndInvalidates(t *testing.T) {
	clk := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	mirror := newMemMirror()
	ctx := context.Background()

	writer, err := NewUniverseCache(2, WithClock(clk.Now), WithMirror(mirror))
	require.NoError(t, err)
	writer.Set(ctx, "default", []string{"SOL-USD"})
	assert.Contains(t, mirror.data, "universe:default")

	reader, err := NewUniverseCache(2, WithClock(clk.Now), WithMirror(mirror))
	require.NoError(t, err)
	clk.Advance(time.Hour)
	got, ok := reader.Get(ctx, "default")
	require.True(t, ok)
	assert.Equal(t, []string{"SOL-USD"}, got)

	clk.Advance(time.Hour)
	_, ok = newReader(t, clk, mirror).Get(ctx, "default")
	assert.False(t, ok, "mirror entries honour the same ttl")

	writer.Invalidate(ctx)
	assert.Empty(t, mirror.data)
}

func TestUniverseCacheMirrorFailureIsNotFatal(t *testing.T) {
	mirror := newMemMirror()
	mirror.err = errors.New("redis down")
	c, err := NewUniverseCache(1, WithMirror(mirror))
	require.NoError(t, err)
	ctx := context.Background()

	c.Set(ctx, "k", []string{"BTC-USD"})
	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []string{"BTC-USD"}, got)

	_, ok = c.Get(ctx, "missing")
	assert.False(t, ok)
}

func newReader(t *testing.T, clk *fakeClock, m *memMirror) *UniverseCache {
	t.Helper()
	c, err := NewUniverseCache(2, WithClock(clk.Now), WithMirror(m))
	require.NoError(t, err)
	return c
}
