package learning

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"PairPilot/internal/domain/models"
	"PairPilot/internal/domain/repository"
	applogger "PairPilot/pkg/logger"
)

// MaxAppliedSelections bounds the applied-selection list kept in state.
const MaxAppliedSelections = 500

var (
	// ErrInvalidParams is returned for out-of-range optimizer settings.
	ErrInvalidParams = errors.New("learning: invalid thompson parameters")
	// ErrAlreadyApplied is returned when a batch was already learned from.
	ErrAlreadyApplied = errors.New("learning: selection already applied")
)

// PerformanceSource reports aggregate performance for one selection batch.
type PerformanceSource interface {
	GetSelectionPerformance(selectionID string) (models.SelectionPerformance, error)
}

// Params tune outcome classification.
type Params struct {
	MinTrades        int
	SuccessThreshold float64
	FailureThreshold float64
	LearningRate     float64
}

// DefaultParams are used for zero-valued fields.
func DefaultParams() Params {
	return Params{MinTrades: 3, SuccessThreshold: 0.55, FailureThreshold: 0.45, LearningRate: 1}
}

// ThompsonOptimizer keeps two Beta posteriors, one for statistical scores
// and one for advisory votes, and samples fusion weights from them.
type ThompsonOptimizer struct {
	mu      sync.Mutex
	params  Params
	store   repository.StateStore
	state   models.ThompsonWeightState
	src     rand.Source
	metrics repository.Metrics
	log     *applogger.Logger
	now     func() time.Time
}

// Option configures a ThompsonOptimizer.
type Option func(*ThompsonOptimizer)

// WithSource sets the random source used for sampling.
func WithSource(src rand.Source) Option {
	return func(o *ThompsonOptimizer) { o.src = src }
}

// WithMetrics reports posterior parameters after every change.
func WithMetrics(m repository.Metrics) Option {
	return func(o *ThompsonOptimizer) { o.metrics = m }
}

func WithLogger(l *applogger.Logger) Option {
	return func(o *ThompsonOptimizer) { o.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(o *ThompsonOptimizer) { o.now = now }
}

// NewThompsonOptimizer loads state from store, or starts from the Beta(1,1)
// prior when nothing is stored. A stored document that cannot be decoded is
// an error.
func NewThompsonOptimizer(p Params, store repository.StateStore, opts ...Option) (*ThompsonOptimizer, error) {
	if p.MinTrades < 1 || p.LearningRate <= 0 ||
		p.FailureThreshold < 0 || p.SuccessThreshold > 1 || p.FailureThreshold > p.SuccessThreshold {
		return nil, fmt.Errorf("%w: %+v", ErrInvalidParams, p)
	}
	o := &ThompsonOptimizer{
		params:  p,
		store:   store,
		state:   models.DefaultThompsonState(),
		src:     rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15),
		metrics: repository.NopMetrics{},
		log:     applogger.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	if store != nil {
		var st models.ThompsonWeightState
		ok, err := store.Load(&st)
		if err != nil {
			return nil, fmt.Errorf("load thompson state: %w", err)
		}
		if ok {
			if validBeta(st.StatisticalWeight) && validBeta(st.LLMWeight) {
				o.state = st
			} else {
				o.log.Warn("stored thompson state has non-positive parameters, using prior")
			}
		}
	}
	o.reportLocked()
	return o, nil
}

func validBeta(b models.BetaParams) bool { return b.Alpha > 0 && b.Beta > 0 }

// SampleWeights draws one sample from each posterior and normalizes them.
// Without advisory votes the weights are {1, 0} and nothing is sampled.
func (o *ThompsonOptimizer) SampleWeights(advisoryAvailable bool) models.FusionWeights {
	if !advisoryAvailable {
		return models.FusionWeights{Statistical: 1, LLM: 0}
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	s := distuv.Beta{Alpha: o.state.StatisticalWeight.Alpha, Beta: o.state.StatisticalWeight.Beta, Src: o.src}.Rand()
	l := distuv.Beta{Alpha: o.state.LLMWeight.Alpha, Beta: o.state.LLMWeight.Beta, Src: o.src}.Rand()
	return normalize(s, l)
}

// GetExpectedWeights returns the normalized posterior means. It is for
// reporting; live fusion always samples.
func (o *ThompsonOptimizer) GetExpectedWeights() models.FusionWeights {
	o.mu.Lock()
	defer o.mu.Unlock()
	return normalize(o.state.StatisticalWeight.Mean(), o.state.LLMWeight.Mean())
}

// State returns a copy of the current posterior state.
func (o *ThompsonOptimizer) State() models.ThompsonWeightState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return copyState(o.state)
}

// IsApplied reports whether selectionID was already learned from.
func (o *ThompsonOptimizer) IsApplied(selectionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.isAppliedLocked(selectionID)
}

func (o *ThompsonOptimizer) isAppliedLocked(selectionID string) bool {
	if w := o.state.AppliedThrough; w != "" && models.CompareSelectionIDs(selectionID, w) <= 0 {
		return true
	}
	return slices.Contains(o.state.AppliedSelections, selectionID)
}

// UpdateFromOutcome classifies a batch's performance and updates both
// posteriors: win rate at or above the success threshold adds the learning
// rate to both alphas, at or below the failure threshold to both betas.
// Batches with fewer completed trades than MinTrades, or a win rate strictly
// between the thresholds, leave the posteriors unchanged and are not marked
// applied. Every change is persisted before returning; on a persistence
// failure the in-memory state is restored and the error returned.
func (o *ThompsonOptimizer) UpdateFromOutcome(_ context.Context, selectionID string, perf PerformanceSource) (models.ThompsonUpdate, error) {
	p, err := perf.GetSelectionPerformance(selectionID)
	if err != nil {
		return models.ThompsonUpdate{}, fmt.Errorf("selection performance %s: %w", selectionID, err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	upd := models.ThompsonUpdate{
		SelectionID:     selectionID,
		WinRate:         p.WinRate,
		CompletedTrades: p.CompletedTrades,
		TotalPnL:        p.TotalPnL,
	}
	if o.isAppliedLocked(selectionID) {
		upd.State = copyState(o.state)
		return upd, fmt.Errorf("%s: %w", selectionID, ErrAlreadyApplied)
	}

	upd.Decision = o.classify(p)
	lr := o.params.LearningRate
	switch upd.Decision {
	case models.DecisionSuccess:
		err = o.mutateLocked(selectionID, func(st *models.ThompsonWeightState) {
			st.StatisticalWeight.Alpha += lr
			st.LLMWeight.Alpha += lr
		})
	case models.DecisionFailure:
		err = o.mutateLocked(selectionID, func(st *models.ThompsonWeightState) {
			st.StatisticalWeight.Beta += lr
			st.LLMWeight.Beta += lr
		})
	}
	if err != nil {
		upd.State = copyState(o.state)
		return upd, err
	}

	upd.State = copyState(o.state)
	o.log.Info("thompson update",
		applogger.String("selection_id", selectionID),
		applogger.String("decision", string(upd.Decision)),
		applogger.Float64("win_rate", p.WinRate),
		applogger.Int("completed", p.CompletedTrades))
	return upd, nil
}

// MarkApplied records selectionID as consumed without changing the
// posteriors. Used for batches that closed without enough evidence.
func (o *ThompsonOptimizer) MarkApplied(selectionID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.isAppliedLocked(selectionID) {
		return nil
	}
	return o.mutateLocked(selectionID, func(*models.ThompsonWeightState) {})
}

func (o *ThompsonOptimizer) classify(p models.SelectionPerformance) models.OutcomeDecision {
	switch {
	case p.CompletedTrades < o.params.MinTrades:
		return models.DecisionInsufficient
	case p.WinRate >= o.params.SuccessThreshold:
		return models.DecisionSuccess
	case p.WinRate <= o.params.FailureThreshold:
		return models.DecisionFailure
	default:
		return models.DecisionNeutral
	}
}

// mutateLocked applies fn, records selectionID as applied and persists. The
// previous state is restored if the save fails.
func (o *ThompsonOptimizer) mutateLocked(selectionID string, fn func(*models.ThompsonWeightState)) error {
	prev := copyState(o.state)

	fn(&o.state)
	o.state.AppliedSelections = append(o.state.AppliedSelections, selectionID)
	if n := len(o.state.AppliedSelections); n > MaxAppliedSelections {
		for _, id := range o.state.AppliedSelections[:n-MaxAppliedSelections] {
			if o.state.AppliedThrough == "" || models.CompareSelectionIDs(id, o.state.AppliedThrough) > 0 {
				o.state.AppliedThrough = id
			}
		}
		o.state.AppliedSelections = slices.Clone(o.state.AppliedSelections[n-MaxAppliedSelections:])
	}
	o.state.UpdatedAt = o.now().UTC()

	if o.store != nil {
		if err := o.store.Save(o.state); err != nil {
			o.state = prev
			o.metrics.RecordError("thompson_persist")
			return fmt.Errorf("persist thompson state: %w", err)
		}
	}
	o.reportLocked()
	return nil
}

func (o *ThompsonOptimizer) reportLocked() {
	o.metrics.RecordWeights("statistical", o.state.StatisticalWeight.Alpha, o.state.StatisticalWeight.Beta)
	o.metrics.RecordWeights("llm", o.state.LLMWeight.Alpha, o.state.LLMWeight.Beta)
}

func copyState(st models.ThompsonWeightState) models.ThompsonWeightState {
	st.AppliedSelections = slices.Clone(st.AppliedSelections)
	return st
}

func normalize(s, l float64) models.FusionWeights {
	if s < 0 {
		s = 0
	}
	if l < 0 {
		l = 0
	}
	sum := s + l
	if sum <= 0 {
		return models.FusionWeights{Statistical: 0.5, LLM: 0.5}
	}
	return models.FusionWeights{Statistical: s / sum, LLM: l / sum}
}
