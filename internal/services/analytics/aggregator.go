package analytics

import (
	"fmt"
	"math"

	"PairPilot/internal/domain/models"
)

// MetricAggregator blends the analyzer outputs into one composite in [0,1].
type MetricAggregator struct {
	weights models.MetricWeights
}

// NewMetricAggregator requires the sortino, diversification and volatility
// keys. Weights must be non-negative and not all zero; they are
// renormalized to sum to 1.
func NewMetricAggregator(weights map[string]float64) (*MetricAggregator, error) {
	keys := []string{"sortino", "diversification", "volatility"}
	raw := make([]float64, len(keys))
	for i, k := range keys {
		v, ok := weights[k]
		if !ok {
			return nil, fmt.Errorf("%w: missing %q weight", ErrInvalidWeights, k)
		}
		raw[i] = v
	}
	norm, err := NormalizeWeights(raw)
	if err != nil {
		return nil, err
	}
	return &MetricAggregator{weights: models.MetricWeights{
		Sortino:         norm[0],
		Diversification: norm[1],
		Volatility:      norm[2],
	}}, nil
}

// Weights returns the normalized weights.
func (a *MetricAggregator) Weights() models.MetricWeights { return a.weights }

// Aggregate combines the available analyzer results. A missing sortino,
// correlation or forecast contributes a neutral 0.5.
func (a *MetricAggregator) Aggregate(pair string, s *models.SortinoScore, c *models.CorrelationScore, g *models.GARCHForecast) models.AggregatedMetrics {
	out := models.AggregatedMetrics{
		Pair:                 pair,
		SortinoScore:         0.5,
		DiversificationScore: 0.5,
		VolatilityScore:      0.5,
		Weights:              a.weights,
	}
	if s != nil {
		out.RawSortino = s.CompositeScore
		out.SortinoScore = Sigmoid(s.CompositeScore)
	}
	if c != nil {
		out.DiversificationScore = clamp(c.DiversificationScore, 0, 1)
	}
	if g != nil {
		out.ForecastVolatility = g.ForecastVolatility
		out.Regime = g.Regime
		out.VolatilityScore = VolatilityScore(g.ForecastVolatility)
	}

	composite := a.weights.Sortino*out.SortinoScore +
		a.weights.Diversification*out.DiversificationScore +
		a.weights.Volatility*out.VolatilityScore
	out.CompositeScore = clamp(composite, 0, 1)
	return out
}

// Sigmoid maps x to (0,1) with Sigmoid(0) = 0.5.
func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// VolatilityScore maps annualized volatility to (0,1]; lower is better.
func VolatilityScore(vol float64) float64 {
	if vol < 0 || math.IsNaN(vol) {
		return 0.5
	}
	return 1 / (1 + vol)
}
