package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PairPilot/internal/domain/models"
)

func TestAuditRows(t *testing.T) {
	res := &models.PairSelectionResult{
		LockedPairs:        []string{"SOLUSD"},
		NewlySelectedPairs: []string{"BTCUSD"},
		Shortlist:          []string{"BTCUSD", "ETHUSD"},
		Metrics: map[string]models.AggregatedMetrics{
			"ETHUSD": {CompositeScore: 0.5},
			"BTCUSD": {CompositeScore: 0.7, SortinoScore: 0.8},
			"XRPUSD": {CompositeScore: 0.1},
		},
		Votes:       map[string]models.EnsembleVote{"BTCUSD": {Vote: models.VoteBuy, Confidence: 80}},
		FusedScores: map[string]float64{"BTCUSD": 0.72, "ETHUSD": 0.4},
		Rejections:  map[string]models.RejectionReason{"EURUSD": models.RejectNotInWhitelist},
		Weights:     models.FusionWeights{Statistical: 0.6, LLM: 0.4},
	}

	rows := AuditRows(res)
	require.Len(t, rows, 5)

	assert.Equal(t, AuditRow{Pair: "SOLUSD", Stage: StageLocked, Selected: true, Locked: true, WeightStatistical: 0.6, WeightLLM: 0.4}, rows[0])

	btc := rows[1]
	assert.Equal(t, "BTCUSD", btc.Pair)
	assert.Equal(t, StageShortlisted, btc.Stage)
	assert.True(t, btc.Selected)
	assert.Equal(t, "BUY", btc.Vote)
	assert.Equal(t, 0.72, btc.Fused)

	assert.Equal(t, "ETHUSD", rows[2].Pair)
	assert.False(t, rows[2].Selected)
	assert.Equal(t, StageScored, rows[3].Stage)
	assert.Equal(t, AuditRow{Pair: "EURUSD", Stage: StageRejected, Rejection: "NOT_IN_WHITELIST"}, rows[4])

	assert.Nil(t, AuditRows(nil))
}

type recordingPublisher struct {
	got []models.SelectionEvent
	err error
}

func (r *recordingPublisher) PublishSelection(_ context.Context, ev models.SelectionEvent) error {
	r.got = append(r.got, ev)
	return r.err
}

func TestMultiPublisherFansOut(t *testing.T) {
	ok := &recordingPublisher{}
	bad := &recordingPublisher{err: errors.New("broker down")}
	m := NewMultiPublisher(nil, bad, nil, ok)

	err := m.PublishSelection(context.Background(), models.SelectionEvent{SelectionID: "sel_1"})
	assert.ErrorContains(t, err, "broker down")
	require.Len(t, ok.got, 1, "later publishers still run")
	assert.Equal(t, "sel_1", ok.got[0].SelectionID)
}
