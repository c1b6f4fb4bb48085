package analytics

import (
	"context"
	"errors"
	"time"

	"PairPilot/internal/domain/models"
	"PairPilot/internal/domain/repository"
)

// fakeSource serves fixed close series and records requested limits.
type fakeSource struct {
	closes map[string][]float64
	fail   map[string]error
	limits map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{closes: map[string][]float64{}, fail: map[string]error{}, limits: map[string]int{}}
}

func (f *fakeSource) GetCandles(_ context.Context, pair string, _ repository.Granularity, limit int) ([]models.Candle, string, error) {
	f.limits[pair] = limit
	if err := f.fail[pair]; err != nil {
		return nil, "", err
	}
	cs, ok := f.closes[pair]
	if !ok {
		return nil, "fake", nil
	}
	if len(cs) > limit {
		cs = cs[len(cs)-limit:]
	}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, len(cs))
	for i, c := range cs {
		out[i] = models.Candle{Pair: pair, Bucket: base.AddDate(0, 0, i), Close: c}
	}
	return out, "fake", nil
}

func (f *fakeSource) DiscoverAvailablePairs(context.Context) ([]string, error) {
	return nil, errors.New("not used")
}

// pricesFromReturns compounds returns starting at 100.
func pricesFromReturns(rs []float64) []float64 {
	out := make([]float64, 0, len(rs)+1)
	p := 100.0
	out = append(out, p)
	for _, r := range rs {
		p *= 1 + r
		out = append(out, p)
	}
	return out
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
