package models

import "time"

// ActiveTrade is one open position reported by the trade monitor.
type ActiveTrade struct {
	AssetPair  string    `json:"asset_pair"`
	Side       string    `json:"side,omitempty"`
	EntryPrice float64   `json:"entry_price,omitempty"`
	OpenedAt   time.Time `json:"opened_at,omitempty"`
	DecisionID string    `json:"decision_id,omitempty"`
}

// PortfolioContext summarises recent portfolio behaviour for the advisory prompt.
type PortfolioContext struct {
	CurrentRegime     string             `json:"current_regime"`
	RegimePerformance map[string]float64 `json:"regime_performance"`
	ActivePairs       []string           `json:"active_pairs"`
	TotalPnL          float64            `json:"total_pnl"`
	WinRate           float64            `json:"win_rate"`
	TotalTrades       int                `json:"total_trades"`
}

// DefaultPortfolioContext is substituted when portfolio memory is unavailable.
func DefaultPortfolioContext() PortfolioContext {
	return PortfolioContext{
		CurrentRegime:     "unknown",
		RegimePerformance: map[string]float64{},
		ActivePairs:       []string{},
	}
}

// FusionWeights split the fused score between statistics and advisory votes.
type FusionWeights struct {
	Statistical float64 `json:"statistical"`
	LLM         float64 `json:"llm"`
}

// TradeOutcome is the realized result of a trade opened from a selection.
type TradeOutcome struct {
	PnL        float64   `json:"pnl"`
	Win        bool      `json:"win"`
	HoldHours  float64   `json:"hold_hours"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	DecisionID string    `json:"decision_id,omitempty"`
	ClosedAt   time.Time `json:"closed_at,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// VoteSnapshot is the plain serialized form of an EnsembleVote.
type VoteSnapshot struct {
	Vote       string  `json:"vote"`
	Confidence float64 `json:"confidence"`
	VoteScore  float64 `json:"vote_score"`
	Rationale  string  `json:"rationale,omitempty"`
	Providers  int     `json:"providers"`
}

// SelectionRecord is one persisted selection batch. Only Outcomes grows
// after the record is written.
type SelectionRecord struct {
	SelectionID       string                  `json:"selection_id"`
	Timestamp         time.Time               `json:"timestamp"`
	SelectedPairs     []string                `json:"selected_pairs"`
	StatisticalScores map[string]float64      `json:"statistical_scores"`
	CombinedScores    map[string]float64      `json:"combined_scores"`
	AdvisoryVotes     map[string]VoteSnapshot `json:"advisory_votes"`
	Metadata          map[string]any          `json:"metadata"`
	Outcomes          map[string]TradeOutcome `json:"outcomes"`
}

// Contains reports whether pair was part of the batch.
func (r *SelectionRecord) Contains(pair string) bool {
	for _, p := range r.SelectedPairs {
		if p == pair {
			return true
		}
	}
	return false
}

// SelectionInput is what the selector hands to the tracker.
type SelectionInput struct {
	SelectedPairs     []string
	StatisticalScores map[string]float64
	CombinedScores    map[string]float64
	Votes             map[string]EnsembleVote
	Metadata          map[string]any
}

// SelectionPerformance aggregates the outcomes linked to one batch.
type SelectionPerformance struct {
	SelectionID     string    `json:"selection_id"`
	Timestamp       time.Time `json:"timestamp"`
	WinRate         float64   `json:"win_rate"`
	TotalPnL        float64   `json:"total_pnl"`
	AvgHoldHours    float64   `json:"avg_hold_hours"`
	CompletedTrades int       `json:"completed_trades"`
	PendingTrades   int       `json:"pending_trades"`
	Wins            int       `json:"wins"`
	Losses          int       `json:"losses"`
}

// PairSelectionResult is returned by one pipeline run.
type PairSelectionResult struct {
	RunID              string                       `json:"run_id"`
	SelectionID        string                       `json:"selection_id"`
	Timestamp          time.Time                    `json:"timestamp"`
	TargetCount        int                          `json:"target_count"`
	AvailableSlots     int                          `json:"available_slots"`
	SelectedPairs      []string                     `json:"selected_pairs"`
	LockedPairs        []string                     `json:"locked_pairs"`
	NewlySelectedPairs []string                     `json:"newly_selected_pairs"`
	Universe           []string                     `json:"universe"`
	Rejections         map[string]RejectionReason   `json:"rejections,omitempty"`
	Shortlist          []string                     `json:"shortlist,omitempty"`
	Metrics            map[string]AggregatedMetrics `json:"metrics,omitempty"`
	Votes              map[string]EnsembleVote      `json:"votes,omitempty"`
	FusedScores        map[string]float64           `json:"fused_scores,omitempty"`
	Weights            FusionWeights                `json:"weights"`
	Reasoning          string                       `json:"reasoning"`
	LockedOnly         bool                         `json:"locked_only"`
	Duration           time.Duration                `json:"duration"`
}

// SelectionEvent is the published summary of a finished run.
type SelectionEvent struct {
	RunID              string             `json:"run_id"`
	SelectionID        string             `json:"selection_id"`
	Timestamp          time.Time          `json:"timestamp"`
	SelectedPairs      []string           `json:"selected_pairs"`
	LockedPairs        []string           `json:"locked_pairs"`
	NewlySelectedPairs []string           `json:"newly_selected_pairs"`
	FusedScores        map[string]float64 `json:"fused_scores,omitempty"`
	Weights            FusionWeights      `json:"weights"`
	Reasoning          string             `json:"reasoning"`
	LockedOnly         bool               `json:"locked_only"`
}

// Event builds the published summary.
func (r *PairSelectionResult) Event() SelectionEvent {
	return SelectionEvent{
		RunID:              r.RunID,
		SelectionID:        r.SelectionID,
		Timestamp:          r.Timestamp,
		SelectedPairs:      r.SelectedPairs,
		LockedPairs:        r.LockedPairs,
		NewlySelectedPairs: r.NewlySelectedPairs,
		FusedScores:        r.FusedScores,
		Weights:            r.Weights,
		Reasoning:          r.Reasoning,
		LockedOnly:         r.LockedOnly,
	}
}
