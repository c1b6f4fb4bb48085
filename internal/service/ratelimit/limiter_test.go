package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowHonoursBurst(t *testing.T) {
	l := New(0.001, 2)
	assert.True(t, l.Allow("claude"))
	assert.True(t, l.Allow("claude"))
	assert.False(t, l.Allow("claude"))
	assert.True(t, l.Allow("openai"), "keys have independent buckets")
}

func TestConfigureOverridesDefaults(t *testing.T) {
	l := New(0.001, 1)
	l.Configure("local", 0, 1)
	for i := 0; i < 50; i++ {
		assert.True(t, l.Allow("local"))
	}
}

func TestWaitRespectsContext(t *testing.T) {
	l := New(0.001, 1)
	assert.True(t, l.Allow("k"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx, "k"))
}
