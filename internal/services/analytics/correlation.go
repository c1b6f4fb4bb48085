package analytics

import (
	"context"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"

	"PairPilot/internal/domain/models"
	"PairPilot/internal/domain/repository"
	"PairPilot/internal/services/features"
	applogger "PairPilot/pkg/logger"
)

// MinCorrelationPoints is the fewest aligned returns a correlation is
// computed from.
const MinCorrelationPoints = 5

// CorrelationAnalyzer scores how well a candidate diversifies the open
// positions.
type CorrelationAnalyzer struct {
	common
	threshold float64
	lookback  int
}

// NewCorrelationAnalyzer builds an analyzer flagging |corr| > threshold
// over lookbackDays of returns.
func NewCorrelationAnalyzer(threshold float64, lookbackDays int, opts ...Option) (*CorrelationAnalyzer, error) {
	if threshold <= 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: correlation threshold %v", ErrInvalidWeights, threshold)
	}
	if lookbackDays < MinCorrelationPoints {
		return nil, fmt.Errorf("%w: correlation lookback %d days", ErrInvalidWeights, lookbackDays)
	}
	return &CorrelationAnalyzer{common: applyOptions(opts), threshold: threshold, lookback: lookbackDays}, nil
}

// Returns fetches the lookback return series for pair.
func (a *CorrelationAnalyzer) Returns(ctx context.Context, pair string, ds repository.DataSource) ([]float64, error) {
	bars := a.lookback * a.granularity.BarsPerDay()
	candles, _, err := ds.GetCandles(ctx, pair, a.granularity, bars+1)
	if err != nil {
		return nil, fmt.Errorf("correlation candles %s: %w", pair, err)
	}
	return features.SimpleReturns(features.Closes(candles)), nil
}

// PositionReturns fetches return series for every open position. It is
// called once per run and shared by all candidates.
func (a *CorrelationAnalyzer) PositionReturns(ctx context.Context, positions []string, ds repository.DataSource) (map[string][]float64, error) {
	out := make(map[string][]float64, len(positions))
	for _, p := range positions {
		r, err := a.Returns(ctx, p, ds)
		if err != nil {
			return nil, err
		}
		out[p] = r
	}
	return out, nil
}

// Calculate fetches the candidate and position series, then scores them.
func (a *CorrelationAnalyzer) Calculate(ctx context.Context, pair string, positions []string, ds repository.DataSource) (*models.CorrelationScore, error) {
	if len(positions) == 0 {
		return a.Score(pair, nil, nil), nil
	}
	cand, err := a.Returns(ctx, pair, ds)
	if err != nil {
		return nil, err
	}
	pos, err := a.PositionReturns(ctx, positions, ds)
	if err != nil {
		return nil, err
	}
	return a.Score(pair, cand, pos), nil
}

// Score computes the diversification score of candidate returns against
// position returns.
//
// No positions gives exactly 1.0. Otherwise each position is correlated on
// the common trailing length of both series; positions with fewer than
// MinCorrelationPoints aligned returns are left out. When no position could
// be correlated, or the candidate itself is too short, the score is 0.5.
func (a *CorrelationAnalyzer) Score(pair string, candidate []float64, positions map[string][]float64) *models.CorrelationScore {
	res := &models.CorrelationScore{
		Pair:              pair,
		CorrelationMatrix: map[string]float64{},
		Timestamp:         a.now(),
	}
	if len(positions) == 0 {
		res.DiversificationScore = 1.0
		return res
	}
	if len(candidate) < MinCorrelationPoints {
		res.DiversificationScore = 0.5
		return res
	}

	names := make([]string, 0, len(positions))
	for p := range positions {
		names = append(names, p)
	}
	slices.Sort(names)

	maxAbs := -1.0
	for _, p := range names {
		x, y := features.AlignTails(candidate, positions[p])
		if len(x) < MinCorrelationPoints {
			a.log.Debug("correlation skipped", applogger.String("pair", pair), applogger.String("position", p), applogger.Int("points", len(x)))
			continue
		}
		corr := stat.Correlation(x, y, nil)
		if math.IsNaN(corr) {
			// A flat series has no defined correlation; it does not co-move.
			corr = 0
		}
		res.CorrelationMatrix[p] = corr
		abs := math.Abs(corr)
		if abs > maxAbs {
			maxAbs = abs
		}
		if abs > a.threshold {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s correlation with %s is %.2f (threshold %.2f)", pair, p, corr, a.threshold))
		}
	}

	if maxAbs < 0 {
		res.DiversificationScore = 0.5
		return res
	}
	res.MaxAbsCorrelation = maxAbs
	res.DiversificationScore = clamp(1-maxAbs, 0, 1)
	return res
}
