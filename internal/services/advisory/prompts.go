package advisory

import (
	"fmt"
	"sort"
	"strings"

	"PairPilot/internal/domain/models"
)

// EvaluationPrompt asks the panel to vote on each candidate. Candidates are
// listed in the given order.
func EvaluationPrompt(candidates []string, metrics map[string]models.AggregatedMetrics, pctx models.PortfolioContext, slots int) string {
	var sb strings.Builder
	sb.WriteString("You are evaluating trading pairs for an autonomous trading agent.\n")
	fmt.Fprintf(&sb, "There are %d open slots. Evaluate every candidate below.\n\n", slots)

	sb.WriteString("CANDIDATE METRICS\n")
	sb.WriteString("pair | composite | sortino | diversification | volatility | forecast_vol | regime\n")
	for _, p := range candidates {
		m, ok := metrics[p]
		if !ok {
			fmt.Fprintf(&sb, "%s | n/a\n", p)
			continue
		}
		fmt.Fprintf(&sb, "%s | %.3f | %.3f | %.3f | %.3f | %.4f | %s\n",
			p, m.CompositeScore, m.SortinoScore, m.DiversificationScore, m.VolatilityScore, m.ForecastVolatility, regimeOrNA(m.Regime))
	}

	sb.WriteString("\nPORTFOLIO CONTEXT\n")
	fmt.Fprintf(&sb, "regime: %s\n", pctx.CurrentRegime)
	fmt.Fprintf(&sb, "active pairs: %s\n", joinOrNone(pctx.ActivePairs))
	fmt.Fprintf(&sb, "total pnl: %.2f\n", pctx.TotalPnL)
	fmt.Fprintf(&sb, "win rate: %.1f%% over %d trades\n", pctx.WinRate*100, pctx.TotalTrades)
	if len(pctx.RegimePerformance) > 0 {
		regimes := make([]string, 0, len(pctx.RegimePerformance))
		for r := range pctx.RegimePerformance {
			regimes = append(regimes, r)
		}
		sort.Strings(regimes)
		for _, r := range regimes {
			fmt.Fprintf(&sb, "performance in %s: %.2f\n", r, pctx.RegimePerformance[r])
		}
	}

	sb.WriteString("\nRespond with a single JSON object keyed by pair, no other text:\n")
	sb.WriteString(`{"PAIR": {"vote": "STRONG_BUY|BUY|NEUTRAL|AVOID", "confidence": 0-100, "rationale": "one sentence"}}`)
	sb.WriteString("\n")
	return sb.String()
}

// ReasoningPrompt asks for a short justification of the final batch.
func ReasoningPrompt(selected, locked []string, fused map[string]float64, votes map[string]models.EnsembleVote, weights models.FusionWeights) string {
	var sb strings.Builder
	sb.WriteString("Explain in three sentences or fewer why this batch of trading pairs was selected.\n\n")
	fmt.Fprintf(&sb, "weights: statistical %.2f, advisory %.2f\n", weights.Statistical, weights.LLM)
	fmt.Fprintf(&sb, "kept because of open positions: %s\n", joinOrNone(locked))
	sb.WriteString("newly selected:\n")
	for _, p := range selected {
		line := fmt.Sprintf("- %s fused %.3f", p, fused[p])
		if v, ok := votes[p]; ok {
			line += fmt.Sprintf(" vote %s (%.0f%%)", v.Vote, v.Confidence)
		}
		sb.WriteString(line + "\n")
	}
	return sb.String()
}

// FallbackReasoning is used when no provider can explain the batch.
func FallbackReasoning(selected, locked []string, composite map[string]float64) string {
	if len(selected) == 0 {
		if len(locked) == 0 {
			return "No pairs selected."
		}
		return fmt.Sprintf("All slots held by open positions: %s.", strings.Join(locked, ", "))
	}
	parts := make([]string, 0, len(selected))
	for _, p := range selected {
		parts = append(parts, fmt.Sprintf("%s (%.3f)", p, composite[p]))
	}
	s := fmt.Sprintf("Selected by statistical composite score: %s.", strings.Join(parts, ", "))
	if len(locked) > 0 {
		s += fmt.Sprintf(" Kept open positions: %s.", strings.Join(locked, ", "))
	}
	return s
}

func regimeOrNA(r models.VolatilityRegime) string {
	if r == "" {
		return "n/a"
	}
	return string(r)
}

func joinOrNone(xs []string) string {
	if len(xs) == 0 {
		return "none"
	}
	return strings.Join(xs, ", ")
}
