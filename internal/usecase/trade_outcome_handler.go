package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"PairPilot/internal/domain/models"
	domrepo "PairPilot/internal/domain/repository"
	pkgkafka "PairPilot/pkg/kafka"
	applogger "PairPilot/pkg/logger"
	"PairPilot/pkg/util"
)

// ErrInvalidOutcome marks a trade-outcome message that cannot be recorded.
var ErrInvalidOutcome = errors.New("invalid trade outcome")

// OutcomeRecorder attaches a realized outcome to the batch that picked pair.
type OutcomeRecorder interface {
	RecordTradeOutcome(pair string, outcome models.TradeOutcome) (string, bool, error)
}

// TradeOutcomeHandler consumes closed-trade events and feeds the outcome
// tracker.
type TradeOutcomeHandler struct {
	topic    string
	recorder OutcomeRecorder
	metrics  domrepo.Metrics
	l        *applogger.Logger
}

func NewTradeOutcomeHandler(topic string, recorder OutcomeRecorder, metrics domrepo.Metrics, l *applogger.Logger) *TradeOutcomeHandler {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &TradeOutcomeHandler{topic: topic, recorder: recorder, metrics: metrics, l: l}
}

func (h *TradeOutcomeHandler) Topic() string { return h.topic }

// incoming message schema:
// {asset_pair, pnl, entry_price, exit_price, opened_at, closed_at, decision_id, hold_hours?, win?}
type outcomeMessage struct {
	AssetPair  string   `json:"asset_pair"`
	PnL        *float64 `json:"pnl"`
	EntryPrice float64  `json:"entry_price"`
	ExitPrice  float64  `json:"exit_price"`
	OpenedAt   any      `json:"opened_at"`
	ClosedAt   any      `json:"closed_at"`
	DecisionID string   `json:"decision_id"`
	HoldHours  *float64 `json:"hold_hours"`
	Win        *bool    `json:"win"`
}

// Handle records one outcome. A pair no batch selected is acknowledged;
// a persistence failure is returned so the consumer retries.
func (h *TradeOutcomeHandler) Handle(ctx context.Context, b []byte) error {
	start := time.Now()
	outcome, pair, err := decodeOutcome(b)
	if err != nil {
		h.metrics.RecordError("outcome_decode")
		return err
	}
	outcome.RecordedAt = time.Now().UTC()

	id, found, err := h.recorder.RecordTradeOutcome(pair, outcome)
	h.metrics.RecordLatency("outcome_record", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("outcome_record")
		return err
	}
	if !found {
		h.l.Info("outcome for unselected pair ignored",
			applogger.String("pair", pair),
			applogger.String("trace_id", pkgkafka.TraceIDFromContext(ctx)))
		return nil
	}
	h.l.Debug("outcome recorded",
		applogger.String("pair", pair),
		applogger.String("selection_id", id),
		applogger.Float64("pnl", outcome.PnL))
	return nil
}

func decodeOutcome(b []byte) (models.TradeOutcome, string, error) {
	var m outcomeMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return models.TradeOutcome{}, "", fmt.Errorf("%w: %v", ErrInvalidOutcome, err)
	}
	pair := strings.TrimSpace(m.AssetPair)
	if pair == "" {
		return models.TradeOutcome{}, "", fmt.Errorf("%w: asset_pair empty", ErrInvalidOutcome)
	}
	if m.PnL == nil {
		return models.TradeOutcome{}, "", fmt.Errorf("%w: pnl missing", ErrInvalidOutcome)
	}

	out := models.TradeOutcome{
		PnL:        *m.PnL,
		Win:        *m.PnL > 0,
		EntryPrice: m.EntryPrice,
		ExitPrice:  m.ExitPrice,
		DecisionID: m.DecisionID,
	}
	if m.Win != nil {
		out.Win = *m.Win
	}
	opened, okOpen := util.ParseTimeAny(m.OpenedAt)
	closed, okClose := util.ParseTimeAny(m.ClosedAt)
	if okClose {
		out.ClosedAt = closed.UTC()
	}
	switch {
	case m.HoldHours != nil:
		out.HoldHours = *m.HoldHours
	case okOpen && okClose && closed.After(opened):
		out.HoldHours = closed.Sub(opened).Hours()
	}
	if out.HoldHours < 0 {
		return models.TradeOutcome{}, "", fmt.Errorf("%w: negative hold time", ErrInvalidOutcome)
	}
	return out, pair, nil
}

var _ pkgkafka.MessageHandler = (*TradeOutcomeHandler)(nil)
