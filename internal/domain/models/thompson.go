package models

import "time"

// BetaParams are the parameters of one Beta posterior.
type BetaParams struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
}

// Mean is the posterior point estimate alpha/(alpha+beta).
func (b BetaParams) Mean() float64 {
	if b.Alpha+b.Beta <= 0 {
		return 0.5
	}
	return b.Alpha / (b.Alpha + b.Beta)
}

// ThompsonWeightState is the learned belief about which signal source to trust.
// AppliedThrough is the newest id evicted from AppliedSelections; ids at or
// before it count as applied.
type ThompsonWeightState struct {
	StatisticalWeight BetaParams `json:"statistical_weight"`
	LLMWeight         BetaParams `json:"llm_weight"`
	AppliedSelections []string   `json:"applied_selections,omitempty"`
	AppliedThrough    string     `json:"applied_through,omitempty"`
	UpdatedAt         time.Time  `json:"updated_at,omitempty"`
}

// DefaultThompsonState is the uninformative Beta(1,1) prior for both components.
func DefaultThompsonState() ThompsonWeightState {
	return ThompsonWeightState{
		StatisticalWeight: BetaParams{Alpha: 1, Beta: 1},
		LLMWeight:         BetaParams{Alpha: 1, Beta: 1},
	}
}

// OutcomeDecision is how a batch's performance was classified.
type OutcomeDecision string

const (
	DecisionSuccess      OutcomeDecision = "success"
	DecisionFailure      OutcomeDecision = "failure"
	DecisionNeutral      OutcomeDecision = "neutral"
	DecisionInsufficient OutcomeDecision = "insufficient"
)

// ThompsonUpdate reports what an outcome update did.
type ThompsonUpdate struct {
	SelectionID     string              `json:"selection_id"`
	Decision        OutcomeDecision     `json:"decision"`
	WinRate         float64             `json:"win_rate"`
	CompletedTrades int                 `json:"completed_trades"`
	TotalPnL        float64             `json:"total_pnl"`
	State           ThompsonWeightState `json:"state"`
}
