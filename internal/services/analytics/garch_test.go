package analytics

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PairPilot/internal/domain/models"
)

func defaultGARCH(t *testing.T) *GARCHForecaster {
	t.Helper()
	f, err := NewGARCHForecaster(GARCHConfig{P: 1, Q: 1, LookbackDays: 90, HorizonDays: 7, AnnualizationFactor: 365})
	require.NoError(t, err)
	return f
}

// simulateGARCH draws n returns from a GARCH(1,1) process.
func simulateGARCH(n int, omega, alpha, beta float64, seed uint64) []float64 {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	v := omega / (1 - alpha - beta)
	out := make([]float64, n)
	for i := range out {
		e := math.Sqrt(v) * rng.NormFloat64()
		out[i] = e
		v = omega + alpha*e*e + beta*v
	}
	return out
}

func TestGARCHFallbackWithTwentyCandles(t *testing.T) {
	src := newFakeSource()
	rs := simulateGARCH(19, 1e-5, 0.1, 0.85, 7)
	src.closes["NEW-USD"] = pricesFromReturns(rs)

	g, err := defaultGARCH(t).Forecast(context.Background(), "NEW-USD", src)
	require.NoError(t, err)
	require.NotNil(t, g)

	assert.True(t, g.Fallback)
	assert.Equal(t, models.RegimeMedium, g.Regime)
	assert.Equal(t, 0.0, g.Persistence)
	assert.InDelta(t, g.HistoricalVolatility, g.ForecastVolatility, 1e-12)
	assert.Greater(t, g.ForecastVolatility, 0.0)
}

func TestGARCHTooFewReturnsExcludes(t *testing.T) {
	_, err := defaultGARCH(t).ForecastReturns("X", repeat(0.01, 9))
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestGARCHFitsSimulatedSeries(t *testing.T) {
	rs := simulateGARCH(600, 2e-5, 0.08, 0.88, 42)
	g, err := defaultGARCH(t).ForecastReturns("BTC-USD", rs)
	require.NoError(t, err)

	assert.False(t, g.Fallback)
	require.Len(t, g.Alpha, 1)
	require.Len(t, g.Beta, 1)
	assert.Greater(t, g.Persistence, 0.0)
	assert.Less(t, g.Persistence, 1.0)
	assert.Greater(t, g.Omega, 0.0)
	assert.Greater(t, g.ForecastVolatility, 0.0)
	assert.False(t, math.IsNaN(g.ForecastVolatility))
	assert.Less(t, g.ConfidenceLower, g.ForecastVolatility)
	assert.Greater(t, g.ConfidenceUpper, g.ForecastVolatility)
	assert.Contains(t, []models.VolatilityRegime{models.RegimeLow, models.RegimeMedium, models.RegimeHigh}, g.Regime)
}

func TestGARCHHigherOrder(t *testing.T) {
	f, err := NewGARCHForecaster(GARCHConfig{P: 2, Q: 1, LookbackDays: 90, HorizonDays: 3})
	require.NoError(t, err)

	g, err := f.ForecastReturns("X", simulateGARCH(400, 2e-5, 0.1, 0.8, 3))
	require.NoError(t, err)
	if !g.Fallback {
		assert.Len(t, g.Alpha, 2)
		assert.Less(t, g.Persistence, 1.0)
	}
}

func TestGARCHFlatSeriesFallsBack(t *testing.T) {
	g, err := defaultGARCH(t).ForecastReturns("STABLE", repeat(0, 60))
	require.NoError(t, err)
	assert.True(t, g.Fallback)
	assert.Equal(t, 0.0, g.ForecastVolatility)
	assert.Equal(t, models.RegimeMedium, g.Regime)
}

func TestClassifyRegime(t *testing.T) {
	assert.Equal(t, models.RegimeHigh, ClassifyRegime(1.3, 1))
	assert.Equal(t, models.RegimeLow, ClassifyRegime(0.7, 1))
	assert.Equal(t, models.RegimeMedium, ClassifyRegime(1.1, 1))
	assert.Equal(t, models.RegimeMedium, ClassifyRegime(1, 0))
}

func TestNewGARCHForecasterValidation(t *testing.T) {
	_, err := NewGARCHForecaster(GARCHConfig{P: 0, Q: 1, LookbackDays: 90, HorizonDays: 7})
	assert.Error(t, err)
	_, err = NewGARCHForecaster(GARCHConfig{P: 1, Q: 1, LookbackDays: 90, HorizonDays: 0})
	assert.Error(t, err)
}
