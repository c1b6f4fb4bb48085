package analytics

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrelationNoPositions(t *testing.T) {
	a, err := NewCorrelationAnalyzer(0.7, 30)
	require.NoError(t, err)

	s, err := a.Calculate(context.Background(), "BTC-USD", nil, newFakeSource())
	require.NoError(t, err)
	assert.Equal(t, 1.0, s.DiversificationScore)
	assert.Empty(t, s.CorrelationMatrix)
	assert.NotNil(t, s.CorrelationMatrix)
}

func TestCorrelationPerfectlyCorrelated(t *testing.T) {
	rs := []float64{0.01, -0.02, 0.03, -0.01, 0.02, 0.00, -0.03, 0.01, 0.02, -0.01}
	src := newFakeSource()
	src.closes["SOL-USD"] = pricesFromReturns(rs)
	src.closes["BTC-USD"] = pricesFromReturns(rs)

	a, err := NewCorrelationAnalyzer(0.7, 30)
	require.NoError(t, err)
	s, err := a.Calculate(context.Background(), "SOL-USD", []string{"BTC-USD"}, src)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, s.CorrelationMatrix["BTC-USD"], 1e-9)
	assert.InDelta(t, 0.0, s.DiversificationScore, 1e-9)
	require.Len(t, s.Warnings, 1)
}

func TestCorrelationAlignsToShorterSeries(t *testing.T) {
	a, err := NewCorrelationAnalyzer(0.7, 30)
	require.NoError(t, err)

	cand := []float64{9, 9, 9, 0.01, -0.02, 0.03, -0.01, 0.02}
	pos := []float64{-0.01, 0.02, -0.03, 0.01, -0.02}
	s := a.Score("X", cand, map[string][]float64{"P": pos})
	assert.InDelta(t, -1.0, s.CorrelationMatrix["P"], 1e-9, "most recent points are aligned")
	assert.InDelta(t, 0.0, s.DiversificationScore, 1e-9)
}

func TestCorrelationTooFewPointsIsNeutral(t *testing.T) {
	a, err := NewCorrelationAnalyzer(0.7, 30)
	require.NoError(t, err)

	s := a.Score("X", []float64{0.01, 0.02, 0.03}, map[string][]float64{"P": {0.1, 0.2, 0.3, 0.4, 0.5}})
	assert.Equal(t, 0.5, s.DiversificationScore)

	s = a.Score("X", []float64{0.01, 0.02, 0.03, 0.04, 0.05, 0.06}, map[string][]float64{"P": {0.1, 0.2}})
	assert.Equal(t, 0.5, s.DiversificationScore)
	assert.Empty(t, s.CorrelationMatrix)
}

func TestCorrelationUsesMaxAbs(t *testing.T) {
	a, err := NewCorrelationAnalyzer(0.7, 30)
	require.NoError(t, err)

	x := []float64{1, 2, 3, 4, 5, 6}
	low := []float64{1, -1, 1, -1, 1, -1}
	s := a.Score("X", x, map[string][]float64{"A": x, "B": low})
	assert.InDelta(t, 1.0, s.MaxAbsCorrelation, 1e-9)
	assert.True(t, math.Abs(s.CorrelationMatrix["B"]) < 0.7)
	assert.Len(t, s.Warnings, 1)
}

func TestNewCorrelationAnalyzerValidation(t *testing.T) {
	_, err := NewCorrelationAnalyzer(0, 30)
	assert.Error(t, err)
	_, err = NewCorrelationAnalyzer(0.7, 2)
	assert.Error(t, err)
}
