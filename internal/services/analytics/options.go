package analytics

import (
	"errors"
	"fmt"
	"math"
	"time"

	"PairPilot/internal/domain/repository"
	applogger "PairPilot/pkg/logger"
)

var (
	// ErrInvalidWeights marks a weight configuration that cannot be normalized.
	ErrInvalidWeights = errors.New("analytics: invalid weights")
	// ErrInsufficientData means there is not enough history to produce any result.
	ErrInsufficientData = errors.New("analytics: insufficient data")
)

type common struct {
	granularity repository.Granularity
	log         *applogger.Logger
	now         func() time.Time
}

func defaultCommon() common {
	return common{
		granularity: repository.DefaultGranularity(),
		log:         applogger.NewNop(),
		now:         time.Now,
	}
}

// Option configures an analyzer.
type Option func(*common)

// WithGranularity sets the candle granularity requested from the data source.
func WithGranularity(g repository.Granularity) Option {
	return func(c *common) {
		if repository.IsValidGranularity(g) {
			c.granularity = g
		}
	}
}

// WithLogger sets the analyzer logger.
func WithLogger(l *applogger.Logger) Option {
	return func(c *common) {
		if l != nil {
			c.log = l
		}
	}
}

// WithClock overrides time.Now for result timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *common) {
		if now != nil {
			c.now = now
		}
	}
}

func applyOptions(opts []Option) common {
	c := defaultCommon()
	for _, o := range opts {
		o(&c)
	}
	return c
}

// NormalizeWeights rescales ws to sum to 1. Negative, non-finite or
// all-zero weights are rejected.
func NormalizeWeights(ws []float64) ([]float64, error) {
	if len(ws) == 0 {
		return nil, fmt.Errorf("%w: no weights", ErrInvalidWeights)
	}
	sum := 0.0
	for i, w := range ws {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("%w: weight[%d]=%v", ErrInvalidWeights, i, w)
		}
		sum += w
	}
	if sum == 0 {
		return nil, fmt.Errorf("%w: weights sum to zero", ErrInvalidWeights)
	}
	out := make([]float64, len(ws))
	for i, w := range ws {
		out[i] = w / sum
	}
	return out, nil
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
