package analytics

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortinoRatioCases(t *testing.T) {
	r, _, dd := SortinoRatio([]float64{0.01, 0.02, 0.03}, 0)
	assert.Equal(t, SortinoCap, r, "no sub-MAR returns saturates")
	assert.Equal(t, 0.0, dd)

	r, _, _ = SortinoRatio([]float64{-0.01, -0.01, -0.01}, 0)
	assert.Equal(t, -SortinoCap, r, "zero downside deviation with negative mean")

	r, mean, dd := SortinoRatio([]float64{0.05, -0.01, 0.03, -0.03}, 0)
	assert.InDelta(t, 0.01, mean, 1e-12)
	assert.InDelta(t, math.Sqrt(0.0002), dd, 1e-12)
	assert.InDelta(t, 0.01/math.Sqrt(0.0002), r, 1e-9)

	r, _, dd = SortinoRatio([]float64{0.02, -0.01, 0.02}, 0)
	assert.InDelta(t, 0.01, dd, 1e-12, "single downside return uses its shortfall")
	assert.InDelta(t, 1.0, r, 1e-9)

	r, _, _ = SortinoRatio([]float64{1, 1, 1, -0.0001, -0.0002}, 0)
	assert.Equal(t, SortinoCap, r, "clamped")
}

func TestNewSortinoAnalyzerValidation(t *testing.T) {
	_, err := NewSortinoAnalyzer([]int{7, 30}, []float64{1}, 0)
	assert.ErrorIs(t, err, ErrInvalidWeights)

	_, err = NewSortinoAnalyzer([]int{7, 30}, []float64{1, -1}, 0)
	assert.ErrorIs(t, err, ErrInvalidWeights)

	_, err = NewSortinoAnalyzer([]int{7, 30}, []float64{0, 0}, 0)
	assert.ErrorIs(t, err, ErrInvalidWeights)

	a, err := NewSortinoAnalyzer([]int{7, 30, 90}, []float64{2, 3, 5}, 0)
	require.NoError(t, err)
	w := a.Weights()
	assert.InDelta(t, 1.0, w[0]+w[1]+w[2], 1e-9)
	assert.InDelta(t, 1.5, w[1]/w[0], 1e-9, "proportions preserved")
	assert.InDelta(t, 2.5, w[2]/w[0], 1e-9)
}

func TestSortinoAllPositiveReturnsSaturates(t *testing.T) {
	src := newFakeSource()
	src.closes["BTC-USD"] = pricesFromReturns(repeat(0.01, 120))

	a, err := NewSortinoAnalyzer([]int{7, 30, 90}, []float64{0.2, 0.3, 0.5}, 0)
	require.NoError(t, err)

	s, err := a.Calculate(context.Background(), "BTC-USD", src)
	require.NoError(t, err)
	assert.InDelta(t, SortinoCap, s.CompositeScore, 1e-9)
	assert.False(t, math.IsNaN(s.CompositeScore))
	assert.Equal(t, 91, src.limits["BTC-USD"], "one fetch sized for the longest window")
	for _, w := range s.Windows {
		assert.True(t, w.Sufficient)
	}
}

func TestSortinoInsufficientWindowScoresZero(t *testing.T) {
	src := newFakeSource()
	src.closes["ETH-USD"] = pricesFromReturns(repeat(0.01, 20))

	a, err := NewSortinoAnalyzer([]int{7, 30, 90}, []float64{0.2, 0.3, 0.5}, 0)
	require.NoError(t, err)

	s, err := a.Calculate(context.Background(), "ETH-USD", src)
	require.NoError(t, err)

	r7, _ := s.Ratio(7)
	r30, _ := s.Ratio(30)
	r90, _ := s.Ratio(90)
	assert.Equal(t, SortinoCap, r7)
	assert.Equal(t, 0.0, r30)
	assert.Equal(t, 0.0, r90)
	assert.InDelta(t, 0.2*SortinoCap, s.CompositeScore, 1e-9)
}

func TestSortinoErrors(t *testing.T) {
	src := newFakeSource()
	src.fail["X"] = errors.New("boom")
	src.closes["Y"] = []float64{100}

	a, err := NewSortinoAnalyzer([]int{7}, []float64{1}, 0)
	require.NoError(t, err)

	_, err = a.Calculate(context.Background(), "X", src)
	assert.Error(t, err)

	_, err = a.Calculate(context.Background(), "Y", src)
	assert.ErrorIs(t, err, ErrInsufficientData)
}
