package features

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"PairPilot/internal/domain/models"
)

// Closes extracts close prices in candle order.
func Closes(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// SimpleReturns computes r_t = C_t / C_{t-1} - 1. Steps involving a
// non-positive price are skipped. It returns nil if fewer than two prices.
func SimpleReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		prev, cur := closes[i-1], closes[i]
		if prev <= 0 || cur <= 0 || math.IsNaN(prev) || math.IsNaN(cur) {
			continue
		}
		out = append(out, cur/prev-1)
	}
	return out
}

// LogReturns computes r_t = ln(C_t / C_{t-1}), skipping non-positive prices.
func LogReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		prev, cur := closes[i-1], closes[i]
		if prev <= 0 || cur <= 0 {
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// Tail returns the last n elements of xs (all of xs if shorter).
func Tail(xs []float64, n int) []float64 {
	if n <= 0 || len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}

// RealizedVolatility is the sample standard deviation of returns scaled by
// sqrt(periodsPerYear). Returns 0 with fewer than two returns.
func RealizedVolatility(returns []float64, periodsPerYear float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	sd := stat.StdDev(returns, nil)
	if math.IsNaN(sd) {
		return 0
	}
	return sd * math.Sqrt(periodsPerYear)
}

// AlignTails trims a and b to their common trailing length so that the most
// recent observations line up.
func AlignTails(a, b []float64) ([]float64, []float64) {
	n := min(len(a), len(b))
	return a[len(a)-n:], b[len(b)-n:]
}
