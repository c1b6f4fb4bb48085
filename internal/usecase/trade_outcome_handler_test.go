package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PairPilot/internal/domain/models"
	"PairPilot/internal/repository"
)

func TestTradeOutcomeHandlerRecordsOutcome(t *testing.T) {
	tracker, err := repository.NewOutcomeTracker(&memStore{}, nil)
	require.NoError(t, err)
	id, err := tracker.RecordSelection(models.SelectionInput{SelectedPairs: []string{"BTCUSD", "ETHUSD"}})
	require.NoError(t, err)

	h := NewTradeOutcomeHandler("outcomes", tracker, nil, nil)
	assert.Equal(t, "outcomes", h.Topic())

	msg := `{"asset_pair":"BTCUSD","pnl":12.5,"entry_price":100,"exit_price":112.5,
		"opened_at":"2024-03-01T00:00:00Z","closed_at":1709323200,"decision_id":"d1"}`
	require.NoError(t, h.Handle(context.Background(), []byte(msg)))

	rec, err := tracker.GetSelection(id)
	require.NoError(t, err)
	got := rec.Outcomes["BTCUSD"]
	assert.Equal(t, 12.5, got.PnL)
	assert.True(t, got.Win)
	assert.InDelta(t, 20, got.HoldHours, 1e-9)
	assert.Equal(t, "d1", got.DecisionID)
	assert.Equal(t, time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC), got.ClosedAt)

	perf, err := tracker.GetSelectionPerformance(id)
	require.NoError(t, err)
	assert.Equal(t, 1, perf.CompletedTrades)
	assert.Equal(t, 1, perf.PendingTrades)
}

func TestTradeOutcomeHandlerExplicitFields(t *testing.T) {
	out, pair, err := decodeOutcome([]byte(`{"asset_pair":" SOLUSD ","pnl":0,"hold_hours":3.5,"win":true}`))
	require.NoError(t, err)
	assert.Equal(t, "SOLUSD", pair)
	assert.True(t, out.Win, "explicit win overrides pnl sign")
	assert.Equal(t, 3.5, out.HoldHours)

	out, _, err = decodeOutcome([]byte(`{"asset_pair":"SOLUSD","pnl":-1}`))
	require.NoError(t, err)
	assert.False(t, out.Win)
	assert.Zero(t, out.HoldHours)
}

func TestTradeOutcomeHandlerRejectsInvalid(t *testing.T) {
	h := NewTradeOutcomeHandler("outcomes", &stubRecorder{}, nil, nil)
	for _, msg := range []string{`not json`, `{"pnl": 1}`, `{"asset_pair":"X"}`, `{"asset_pair":"X","pnl":1,"hold_hours":-2}`} {
		assert.ErrorIs(t, h.Handle(context.Background(), []byte(msg)), ErrInvalidOutcome, msg)
	}
}

func TestTradeOutcomeHandlerUnknownPairIsAcked(t *testing.T) {
	rec := &stubRecorder{}
	h := NewTradeOutcomeHandler("outcomes", rec, nil, nil)
	require.NoError(t, h.Handle(context.Background(), []byte(`{"asset_pair":"DOGEUSD","pnl":1}`)))
	assert.Equal(t, 1, rec.calls)
}

func TestTradeOutcomeHandlerPersistenceFailureIsReturned(t *testing.T) {
	h := NewTradeOutcomeHandler("outcomes", &stubRecorder{err: errors.New("disk full")}, nil, nil)
	assert.Error(t, h.Handle(context.Background(), []byte(`{"asset_pair":"BTCUSD","pnl":1}`)))
}

type stubRecorder struct {
	calls int
	err   error
}

func (s *stubRecorder) RecordTradeOutcome(string, models.TradeOutcome) (string, bool, error) {
	s.calls++
	return "", false, s.err
}
