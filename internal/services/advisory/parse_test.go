package advisory

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PairPilot/internal/domain/models"
)

func TestParseVotesStripsFences(t *testing.T) {
	text := "Here you go:\n```json\n{\"BTCUSD\": {\"vote\": \"strong buy\", \"confidence\": 80, \"rationale\": \" trend \"}}\n```"
	votes, err := ParseVotes("claude", text)
	require.NoError(t, err)
	assert.Equal(t, models.ProviderVote{Provider: "claude", Vote: models.VoteStrongBuy, Confidence: 80, Rationale: "trend"}, votes["BTCUSD"])
}

func TestParseVotesWrapperAndConfidence(t *testing.T) {
	text := `{"votes": {
		"A": {"vote": "BUY", "confidence": "75%"},
		"B": {"vote": "AVOID", "confidence": 150},
		"C": {"vote": "HODL", "confidence": 90},
		"D": {"vote": "neutral"}
	}}`
	votes, err := ParseVotes("p", text)
	require.NoError(t, err)
	require.Len(t, votes, 3)
	assert.Equal(t, 75.0, votes["A"].Confidence)
	assert.Equal(t, 100.0, votes["B"].Confidence)
	assert.Equal(t, defaultConfidence, votes["D"].Confidence)
	assert.NotContains(t, votes, "C")
}

func TestParseVotesRejectsGarbage(t *testing.T) {
	for _, text := range []string{"", "no json here", "{not json}", `{"A": {"vote": "MAYBE"}}`} {
		_, err := ParseVotes("p", text)
		assert.ErrorIs(t, err, ErrUnparseable, text)
	}
}

func TestEvaluationPromptListsCandidates(t *testing.T) {
	metrics := map[string]models.AggregatedMetrics{
		"BTCUSD": {CompositeScore: 0.7, Regime: models.RegimeLow},
	}
	p := EvaluationPrompt([]string{"BTCUSD", "ETHUSD"}, metrics, models.DefaultPortfolioContext(), 2)
	assert.Contains(t, p, "2 open slots")
	assert.Contains(t, p, "BTCUSD | 0.700")
	assert.Contains(t, p, "ETHUSD | n/a")
	assert.True(t, strings.Contains(p, "STRONG_BUY|BUY|NEUTRAL|AVOID"))
}

func TestFallbackReasoning(t *testing.T) {
	assert.Equal(t, "No pairs selected.", FallbackReasoning(nil, nil, nil))
	assert.Equal(t, "All slots held by open positions: A, B.", FallbackReasoning(nil, []string{"A", "B"}, nil))
	s := FallbackReasoning([]string{"X"}, []string{"A"}, map[string]float64{"X": 0.5})
	assert.Equal(t, "Selected by statistical composite score: X (0.500). Kept open positions: A.", s)
}
