package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PairPilot/internal/domain/models"
	domsvc "PairPilot/internal/domain/service"
)

func TestEnsembleVotesAveragesConfidenceWeightedScores(t *testing.T) {
	a := &fakeProvider{name: "claude", body: `{"BTC-USD": {"vote": "STRONG_BUY", "confidence": 80, "rationale": "breakout"}}`}
	b := &fakeProvider{name: "openai", body: "```json\n{\"BTCUSD\": {\"vote\": \"BUY\", \"confidence\": 40}}\n```"}
	v := NewEnsembleVoter([]domsvc.AdvisoryProvider{a, b}, "", time.Second, nil, nil)

	votes, err := v.GetEnsembleVotes(context.Background(), []string{"BTCUSD", "ETHUSD"}, nil, models.DefaultPortfolioContext(), 1)
	require.NoError(t, err)
	require.Len(t, votes, 2)

	btc := votes["BTCUSD"]
	// (2*0.8 + 1*0.4) / 2
	assert.InDelta(t, 1.0, btc.VoteScore, 1e-12)
	assert.Equal(t, models.VoteBuy, btc.Vote)
	assert.InDelta(t, 60, btc.Confidence, 1e-12)
	assert.Len(t, btc.ProviderVotes, 2)
	assert.Equal(t, "claude: breakout", btc.Rationale)
	assert.False(t, btc.Placeholder)

	eth := votes["ETHUSD"]
	assert.True(t, eth.Placeholder)
	assert.Equal(t, models.VoteNeutral, eth.Vote)
	assert.Zero(t, eth.VoteScore)
	assert.InDelta(t, 1.0/3, eth.NormalizedScore(), 1e-12)
	assert.True(t, HasVotes(votes))
}

func TestEnsembleVotesAllProvidersFail(t *testing.T) {
	a := &fakeProvider{name: "a", err: errors.New("timeout")}
	b := &fakeProvider{name: "b", body: "I cannot help with that."}
	v := NewEnsembleVoter([]domsvc.AdvisoryProvider{a, b}, "", time.Second, nil, nil)

	votes, err := v.GetEnsembleVotes(context.Background(), []string{"BTCUSD"}, nil, models.DefaultPortfolioContext(), 1)
	assert.ErrorIs(t, err, ErrNoProviderResponse)
	require.Contains(t, votes, "BTCUSD")
	assert.True(t, votes["BTCUSD"].Placeholder)
	assert.False(t, HasVotes(votes))
}

func TestEnsembleVotesOneProviderFails(t *testing.T) {
	a := &fakeProvider{name: "a", err: errors.New("503")}
	b := &fakeProvider{name: "b", body: `{"BTCUSD": {"vote": "AVOID", "confidence": 100}}`}
	v := NewEnsembleVoter([]domsvc.AdvisoryProvider{a, b}, "", time.Second, nil, nil)

	votes, err := v.GetEnsembleVotes(context.Background(), []string{"BTCUSD"}, nil, models.DefaultPortfolioContext(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.VoteAvoid, votes["BTCUSD"].Vote)
	assert.InDelta(t, -1, votes["BTCUSD"].VoteScore, 1e-12)
}

func TestEnsembleVotesNoCandidates(t *testing.T) {
	p := &fakeProvider{name: "a"}
	v := NewEnsembleVoter([]domsvc.AdvisoryProvider{p}, "", 0, nil, nil)
	votes, err := v.GetEnsembleVotes(context.Background(), nil, nil, models.DefaultPortfolioContext(), 1)
	require.NoError(t, err)
	assert.Empty(t, votes)
	assert.Zero(t, p.calls.Load())
}

func TestSelectionReasoning(t *testing.T) {
	a := &fakeProvider{name: "a", reasoning: "from a"}
	b := &fakeProvider{name: "b", reasoning: "  from b  "}
	v := NewEnsembleVoter([]domsvc.AdvisoryProvider{a, b}, "b", time.Second, nil, nil)
	assert.Equal(t, []string{"a", "b"}, v.Providers())

	got := v.GenerateSelectionReasoning(context.Background(), []string{"X"}, nil, map[string]float64{"X": 0.6}, map[string]float64{"X": 0.5}, nil, models.FusionWeights{Statistical: 0.5, LLM: 0.5})
	assert.Equal(t, "from b", got)
	assert.Zero(t, a.calls.Load())

	b.err = errors.New("down")
	got = v.GenerateSelectionReasoning(context.Background(), []string{"X"}, []string{"L"}, nil, map[string]float64{"X": 0.5}, nil, models.FusionWeights{Statistical: 1})
	assert.Equal(t, "Selected by statistical composite score: X (0.500). Kept open positions: L.", got)
}

func TestSelectionReasoningWithoutProviders(t *testing.T) {
	v := NewEnsembleVoter(nil, "", 0, nil, nil)
	assert.Equal(t, "No pairs selected.", v.GenerateSelectionReasoning(context.Background(), nil, nil, nil, nil, nil, models.FusionWeights{}))
}
