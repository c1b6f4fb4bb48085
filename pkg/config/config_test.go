package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
universe:
  whitelist: [BTC-USD, ETH-USD, SOL-USD]
`

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 24.0, c.Universe.CacheTTLHours)
	assert.True(t, c.Universe.WhitelistMode())
	assert.Equal(t, []int{7, 30, 90}, c.Analyzers.Sortino.Windows)
	assert.Equal(t, []float64{0.2, 0.3, 0.5}, c.Analyzers.Sortino.Weights)
	assert.Equal(t, 0.7, c.Analyzers.Correlation.Threshold)
	assert.Equal(t, 1, c.Analyzers.GARCH.P)
	assert.Equal(t, 1, c.Analyzers.GARCH.Q)
	assert.Equal(t, 365.0, c.Analyzers.GARCH.AnnualizationFactor)
	assert.Equal(t, 5, c.Selection.TargetCount)
	assert.Equal(t, 2.0, c.Selection.OversamplingFactor)
	assert.Equal(t, 3, c.Thompson.MinTrades)
	assert.Equal(t, 72*time.Hour, c.Scheduler.LearningMaxWait)
	assert.Equal(t, time.Hour, c.Scheduler.Interval)
	assert.True(t, c.RunOnStart())
	assert.InDelta(t, 1.0, c.Aggregator.Weights["sortino"]+c.Aggregator.Weights["diversification"]+c.Aggregator.Weights["volatility"], 1e-9)
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"negative ttl": `
universe:
  cache_ttl_hours: -1
  whitelist: [BTC-USD]
`,
		"empty whitelist": `
universe:
  whitelist_enabled: true
`,
		"window weight mismatch": minimalYAML + `
analyzers:
  sortino:
    windows: [7, 30]
    weights: [1]
`,
		"negative sortino weight": minimalYAML + `
analyzers:
  sortino:
    windows: [7, 30]
    weights: [1, -0.5]
`,
		"missing aggregator key": minimalYAML + `
aggregator:
  weights:
    sortino: 1
    volatility: 1
`,
		"zero aggregator weights": minimalYAML + `
aggregator:
  weights:
    sortino: 0
    diversification: 0
    volatility: 0
`,
		"unknown provider kind": minimalYAML + `
advisory:
  providers:
    - name: x
      kind: gemini
`,
		"duplicate provider": minimalYAML + `
advisory:
  providers:
    - name: x
      kind: claude
    - name: x
      kind: openai
`,
		"unknown reasoning provider": minimalYAML + `
advisory:
  reasoning_provider: claude
`,
		"thresholds inverted": minimalYAML + `
thompson:
  success_threshold: 0.4
  failure_threshold: 0.6
`,
		"kafka without brokers": minimalYAML + `
kafka:
  enabled: true
`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(body))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestDiscoveryModeAllowsEmptyWhitelist(t *testing.T) {
	c, err := Parse([]byte(`
universe:
  whitelist_enabled: false
  discovery:
    min_volume_24h: 1000000
`))
	require.NoError(t, err)
	assert.False(t, c.Universe.WhitelistMode())
	assert.Equal(t, 1e6, c.Universe.Discovery.MinVolume24h)
}

func TestLoadWithEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML+`
advisory:
  providers:
    - name: claude
      kind: claude
      api_key_env: TEST_PAIRPILOT_CLAUDE_KEY
`), 0o644))

	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("SELECTION_TARGET_COUNT", "7")
	t.Setenv("TEST_PAIRPILOT_CLAUDE_KEY", "secret")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, 7, c.Selection.TargetCount)
	assert.Equal(t, "secret", c.Advisory.Providers[0].APIKey)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
