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

// SortinoCap bounds every Sortino ratio to [-SortinoCap, SortinoCap].
const SortinoCap = 10.0

// SortinoAnalyzer computes downside-risk adjusted returns over several
// lookback windows and blends them into one composite.
type SortinoAnalyzer struct {
	common
	windows []int
	weights []float64
	mar     float64
}

// NewSortinoAnalyzer validates windows and weights. Weights are
// renormalized to sum to 1.
func NewSortinoAnalyzer(windows []int, weights []float64, mar float64, opts ...Option) (*SortinoAnalyzer, error) {
	if len(windows) == 0 {
		return nil, fmt.Errorf("%w: no sortino windows", ErrInvalidWeights)
	}
	if len(windows) != len(weights) {
		return nil, fmt.Errorf("%w: %d windows but %d weights", ErrInvalidWeights, len(windows), len(weights))
	}
	for i, w := range windows {
		if w < 2 {
			return nil, fmt.Errorf("%w: window[%d]=%d days is too short", ErrInvalidWeights, i, w)
		}
	}
	norm, err := NormalizeWeights(weights)
	if err != nil {
		return nil, err
	}
	return &SortinoAnalyzer{
		common:  applyOptions(opts),
		windows: slices.Clone(windows),
		weights: norm,
		mar:     mar,
	}, nil
}

// Weights returns the normalized window weights.
func (a *SortinoAnalyzer) Weights() []float64 { return slices.Clone(a.weights) }

// Calculate fetches enough candles for the longest window and scores every
// window from that one series. A window without full coverage scores 0.
// It returns ErrInsufficientData when the pair has fewer than two candles.
func (a *SortinoAnalyzer) Calculate(ctx context.Context, pair string, ds repository.DataSource) (*models.SortinoScore, error) {
	bpd := a.granularity.BarsPerDay()
	longest := slices.Max(a.windows)

	candles, _, err := ds.GetCandles(ctx, pair, a.granularity, longest*bpd+1)
	if err != nil {
		return nil, fmt.Errorf("sortino candles %s: %w", pair, err)
	}
	closes := features.Closes(candles)
	if len(closes) < 2 {
		return nil, fmt.Errorf("sortino %s: %w", pair, ErrInsufficientData)
	}

	score := &models.SortinoScore{
		Pair:      pair,
		Windows:   make([]models.SortinoWindow, len(a.windows)),
		Timestamp: a.now(),
	}
	primary := -1
	for i, days := range a.windows {
		need := days * bpd
		returns := features.SimpleReturns(features.Tail(closes, need+1))
		w := models.SortinoWindow{Days: days, Weight: a.weights[i], Observations: len(returns)}
		if len(returns) >= need {
			w.Sufficient = true
			w.Ratio, w.MeanReturn, w.DownsideDeviation = SortinoRatio(returns, a.mar)
			if primary < 0 || days > a.windows[primary] {
				primary = i
			}
		}
		score.CompositeScore += w.Weight * w.Ratio
		score.Windows[i] = w
	}
	if primary >= 0 {
		score.MeanReturn = score.Windows[primary].MeanReturn
		score.DownsideDeviation = score.Windows[primary].DownsideDeviation
	}

	a.log.Debug("sortino calculated",
		applogger.String("pair", pair),
		applogger.Float64("composite", score.CompositeScore),
		applogger.Int("candles", len(closes)))
	return score, nil
}

// SortinoRatio returns (mean - mar) / downside deviation, with the mean and
// deviation used. The downside deviation is the sample standard deviation
// of the returns below mar; a single sub-mar return uses its shortfall.
// With no sub-mar returns the ratio is +SortinoCap; with zero deviation it
// is ±SortinoCap by the sign of the excess return. Results are clamped.
func SortinoRatio(returns []float64, mar float64) (ratio, mean, downsideDev float64) {
	if len(returns) == 0 {
		return 0, 0, 0
	}
	mean = stat.Mean(returns, nil)

	downside := make([]float64, 0, len(returns))
	for _, r := range returns {
		if r < mar {
			downside = append(downside, r)
		}
	}
	switch len(downside) {
	case 0:
		return SortinoCap, mean, 0
	case 1:
		downsideDev = mar - downside[0]
	default:
		downsideDev = stat.StdDev(downside, nil)
	}

	excess := mean - mar
	if downsideDev == 0 || math.IsNaN(downsideDev) {
		if excess < 0 {
			return -SortinoCap, mean, 0
		}
		return SortinoCap, mean, 0
	}
	return clamp(excess/downsideDev, -SortinoCap, SortinoCap), mean, downsideDev
}
