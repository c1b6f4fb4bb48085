package models

import "time"

// SortinoWindow holds the downside-risk ratio for one lookback window.
type SortinoWindow struct {
	Days              int     `json:"days"`
	Weight            float64 `json:"weight"`
	Ratio             float64 `json:"ratio"`
	MeanReturn        float64 `json:"mean_return"`
	DownsideDeviation float64 `json:"downside_deviation"`
	Observations      int     `json:"observations"`
	Sufficient        bool    `json:"sufficient"`
}

// SortinoScore is the multi-window Sortino result for one pair.
// MeanReturn and DownsideDeviation come from the longest window with enough data.
type SortinoScore struct {
	Pair              string          `json:"pair"`
	MeanReturn        float64         `json:"mean_return"`
	DownsideDeviation float64         `json:"downside_deviation"`
	Windows           []SortinoWindow `json:"windows"`
	CompositeScore    float64         `json:"composite_score"`
	Timestamp         time.Time       `json:"timestamp"`
}

// Ratio returns the ratio for the given window length.
func (s SortinoScore) Ratio(days int) (float64, bool) {
	for _, w := range s.Windows {
		if w.Days == days {
			return w.Ratio, true
		}
	}
	return 0, false
}

// CorrelationScore describes how a candidate co-moves with open positions.
type CorrelationScore struct {
	Pair                 string             `json:"pair"`
	DiversificationScore float64            `json:"diversification_score"`
	CorrelationMatrix    map[string]float64 `json:"correlation_matrix"`
	MaxAbsCorrelation    float64            `json:"max_abs_correlation"`
	Warnings             []string           `json:"warnings,omitempty"`
	Timestamp            time.Time          `json:"timestamp"`
}

// VolatilityRegime classifies forecast volatility against its trailing history.
type VolatilityRegime string

const (
	RegimeLow    VolatilityRegime = "low"
	RegimeMedium VolatilityRegime = "medium"
	RegimeHigh   VolatilityRegime = "high"
)

// GARCHForecast is the annualized volatility forecast for one pair.
type GARCHForecast struct {
	Pair                 string           `json:"pair"`
	ForecastVolatility   float64          `json:"forecast_volatility"`
	HistoricalVolatility float64          `json:"historical_volatility"`
	Regime               VolatilityRegime `json:"regime"`
	Omega                float64          `json:"omega"`
	Alpha                []float64        `json:"alpha"`
	Beta                 []float64        `json:"beta"`
	Persistence          float64          `json:"persistence"`
	ConfidenceLower      float64          `json:"confidence_lower"`
	ConfidenceUpper      float64          `json:"confidence_upper"`
	HorizonDays          int              `json:"horizon_days"`
	Observations         int              `json:"observations"`
	Fallback             bool             `json:"fallback"`
	Timestamp            time.Time        `json:"timestamp"`
}

// MetricWeights are the normalized weights used by the aggregator.
type MetricWeights struct {
	Sortino         float64 `json:"sortino"`
	Diversification float64 `json:"diversification"`
	Volatility      float64 `json:"volatility"`
}

// AggregatedMetrics is the per-candidate statistical summary used for
// shortlisting and in the advisory prompt.
type AggregatedMetrics struct {
	Pair                 string           `json:"pair"`
	CompositeScore       float64          `json:"composite_score"`
	SortinoScore         float64          `json:"sortino_score"`
	DiversificationScore float64          `json:"diversification_score"`
	VolatilityScore      float64          `json:"volatility_score"`
	Weights              MetricWeights    `json:"weights"`
	RawSortino           float64          `json:"raw_sortino"`
	ForecastVolatility   float64          `json:"forecast_volatility"`
	Regime               VolatilityRegime `json:"regime,omitempty"`
}
