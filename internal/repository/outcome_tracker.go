package repository

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"PairPilot/internal/domain/models"
	domrepo "PairPilot/internal/domain/repository"
	applogger "PairPilot/pkg/logger"
)

// ErrSelectionNotFound is returned for an unknown selection id.
var ErrSelectionNotFound = errors.New("selection not found")

// OutcomeTracker keeps every selection batch and the trade outcomes linked
// to it. The whole history is persisted after every change; a failed write
// rolls the in-memory change back.
type OutcomeTracker struct {
	mu      sync.RWMutex
	store   domrepo.StateStore
	history map[string]*models.SelectionRecord
	lastMs  int64
	now     func() time.Time
	l       *applogger.Logger
}

// NewOutcomeTracker loads the persisted history from store.
func NewOutcomeTracker(store domrepo.StateStore, l *applogger.Logger) (*OutcomeTracker, error) {
	if l == nil {
		l = applogger.NewNop()
	}
	t := &OutcomeTracker{
		store:   store,
		history: map[string]*models.SelectionRecord{},
		now:     time.Now,
		l:       l,
	}
	if store == nil {
		return t, nil
	}

	loaded := map[string]*models.SelectionRecord{}
	if _, err := store.Load(&loaded); err != nil {
		return nil, fmt.Errorf("load selection history: %w", err)
	}
	for id, rec := range loaded {
		if rec == nil {
			continue
		}
		if rec.Outcomes == nil {
			rec.Outcomes = map[string]models.TradeOutcome{}
		}
		rec.SelectionID = id
		t.history[id] = rec
		if ms, ok := models.ParseSelectionID(id); ok && ms > t.lastMs {
			t.lastMs = ms
		}
	}
	l.Info("selection history loaded", applogger.Int("records", len(t.history)))
	return t, nil
}

// SetClock overrides time.Now.
func (t *OutcomeTracker) SetClock(now func() time.Time) { t.now = now }

// RecordSelection stores a new batch and returns its id. Ids are
// "sel_<unix ms>" and strictly increase even when two batches are recorded
// within the same millisecond.
func (t *OutcomeTracker) RecordSelection(in models.SelectionInput) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	ms := now.UnixMilli()
	if ms <= t.lastMs {
		ms = t.lastMs + 1
	}
	id := models.SelectionIDPrefix + strconv.FormatInt(ms, 10)

	rec := &models.SelectionRecord{
		SelectionID:       id,
		Timestamp:         now.UTC(),
		SelectedPairs:     slices.Clone(in.SelectedPairs),
		StatisticalScores: cloneFloats(in.StatisticalScores),
		CombinedScores:    cloneFloats(in.CombinedScores),
		AdvisoryVotes:     snapshotVotes(in.Votes),
		Metadata:          maps.Clone(in.Metadata),
		Outcomes:          map[string]models.TradeOutcome{},
	}
	if rec.SelectedPairs == nil {
		rec.SelectedPairs = []string{}
	}
	if rec.Metadata == nil {
		rec.Metadata = map[string]any{}
	}

	t.history[id] = rec
	if err := t.persistLocked(); err != nil {
		delete(t.history, id)
		return "", fmt.Errorf("record selection: %w", err)
	}
	t.lastMs = ms
	t.l.Info("selection recorded",
		applogger.String("selection_id", id),
		applogger.Strings("pairs", rec.SelectedPairs))
	return id, nil
}

// RecordTradeOutcome attaches outcome to the most recent batch containing
// pair and returns that batch's id. found is false when no batch contains
// the pair.
func (t *OutcomeTracker) RecordTradeOutcome(pair string, outcome models.TradeOutcome) (id string, found bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var rec *models.SelectionRecord
	for _, r := range t.sortedLocked() {
		if r.Contains(pair) {
			rec = r
			break
		}
	}
	if rec == nil {
		return "", false, nil
	}

	if outcome.RecordedAt.IsZero() {
		outcome.RecordedAt = t.now().UTC()
	}
	prev, had := rec.Outcomes[pair]
	rec.Outcomes[pair] = outcome

	if err := t.persistLocked(); err != nil {
		if had {
			rec.Outcomes[pair] = prev
		} else {
			delete(rec.Outcomes, pair)
		}
		return "", true, fmt.Errorf("record trade outcome: %w", err)
	}
	t.l.Info("trade outcome linked",
		applogger.String("selection_id", rec.SelectionID),
		applogger.String("pair", pair),
		applogger.Float64("pnl", outcome.PnL),
		applogger.Bool("win", outcome.Win))
	return rec.SelectionID, true, nil
}

// GetSelectionPerformance aggregates the outcomes of one batch. Selected
// pairs without an outcome count as pending.
func (t *OutcomeTracker) GetSelectionPerformance(selectionID string) (models.SelectionPerformance, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rec, ok := t.history[selectionID]
	if !ok {
		return models.SelectionPerformance{}, fmt.Errorf("%s: %w", selectionID, ErrSelectionNotFound)
	}

	perf := models.SelectionPerformance{SelectionID: rec.SelectionID, Timestamp: rec.Timestamp}
	total := decimal.Zero
	hold := 0.0
	for _, p := range rec.SelectedPairs {
		o, ok := rec.Outcomes[p]
		if !ok {
			perf.PendingTrades++
			continue
		}
		perf.CompletedTrades++
		if o.Win {
			perf.Wins++
		} else {
			perf.Losses++
		}
		total = total.Add(decimal.NewFromFloat(o.PnL))
		hold += o.HoldHours
	}
	perf.TotalPnL = total.InexactFloat64()
	if perf.CompletedTrades > 0 {
		perf.WinRate = float64(perf.Wins) / float64(perf.CompletedTrades)
		perf.AvgHoldHours = hold / float64(perf.CompletedTrades)
	}
	return perf, nil
}

// GetSelection returns a copy of one record.
func (t *OutcomeTracker) GetSelection(selectionID string) (models.SelectionRecord, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.history[selectionID]
	if !ok {
		return models.SelectionRecord{}, fmt.Errorf("%s: %w", selectionID, ErrSelectionNotFound)
	}
	return cloneRecord(rec), nil
}

// ListSelections returns up to limit records, newest first. limit <= 0
// returns all of them.
func (t *OutcomeTracker) ListSelections(limit int) []models.SelectionRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	sorted := t.sortedLocked()
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	out := make([]models.SelectionRecord, 0, len(sorted))
	for _, r := range sorted {
		out = append(out, cloneRecord(r))
	}
	return out
}

// SelectionIDs returns all ids, oldest first.
func (t *OutcomeTracker) SelectionIDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	sorted := t.sortedLocked()
	ids := make([]string, len(sorted))
	for i, r := range sorted {
		ids[len(sorted)-1-i] = r.SelectionID
	}
	return ids
}

// Len is the number of recorded batches.
func (t *OutcomeTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.history)
}

func (t *OutcomeTracker) persistLocked() error {
	if t.store == nil {
		return nil
	}
	return t.store.Save(t.history)
}

// sortedLocked orders records newest first by id, then by timestamp.
func (t *OutcomeTracker) sortedLocked() []*models.SelectionRecord {
	out := make([]*models.SelectionRecord, 0, len(t.history))
	for _, r := range t.history {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b *models.SelectionRecord) int {
		if c := models.CompareSelectionIDs(b.SelectionID, a.SelectionID); c != 0 {
			return c
		}
		return b.Timestamp.Compare(a.Timestamp)
	})
	return out
}

func snapshotVotes(votes map[string]models.EnsembleVote) map[string]models.VoteSnapshot {
	out := make(map[string]models.VoteSnapshot, len(votes))
	for pair, v := range votes {
		out[pair] = models.VoteSnapshot{
			Vote:       string(v.Vote),
			Confidence: v.Confidence,
			VoteScore:  v.VoteScore,
			Rationale:  v.Rationale,
			Providers:  len(v.ProviderVotes),
		}
	}
	return out
}

func cloneFloats(m map[string]float64) map[string]float64 {
	if m == nil {
		return map[string]float64{}
	}
	return maps.Clone(m)
}

func cloneRecord(r *models.SelectionRecord) models.SelectionRecord {
	c := *r
	c.SelectedPairs = slices.Clone(r.SelectedPairs)
	c.StatisticalScores = maps.Clone(r.StatisticalScores)
	c.CombinedScores = maps.Clone(r.CombinedScores)
	c.AdvisoryVotes = maps.Clone(r.AdvisoryVotes)
	c.Metadata = maps.Clone(r.Metadata)
	c.Outcomes = maps.Clone(r.Outcomes)
	return c
}
