package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"PairPilot/internal/domain/models"
	domrepo "PairPilot/internal/domain/repository"
	"PairPilot/internal/repository"
	"PairPilot/internal/service/cache"
	"PairPilot/internal/services/analytics"
	"PairPilot/internal/services/learning"
	"PairPilot/internal/services/universe"
	applogger "PairPilot/pkg/logger"
)

// ErrRunInProgress is returned when a selection run is already executing.
var ErrRunInProgress = errors.New("selection run already in progress")

// SelectorConfig holds the run-level settings.
type SelectorConfig struct {
	TargetCount        int
	OversamplingFactor float64
	ScoringWorkers     int
	UniverseCacheKey   string
	LearningMaxWait    time.Duration
}

// SelectorDeps are the collaborators a PairSelector owns for its lifetime.
// Metadata, Audit and Publisher are optional.
type SelectorDeps struct {
	Data        domrepo.DataSource
	Metadata    domrepo.MetadataSource
	Cache       *cache.UniverseCache
	Filter      *universe.DiscoveryFilter
	Sortino     *analytics.SortinoAnalyzer
	Correlation *analytics.CorrelationAnalyzer
	GARCH       *analytics.GARCHForecaster
	Aggregator  *analytics.MetricAggregator
	Voter       *EnsembleVoter
	Optimizer   *learning.ThompsonOptimizer
	Tracker     *repository.OutcomeTracker
	Audit       domrepo.SelectionAudit
	Publisher   domrepo.SelectionPublisher
	Metrics     domrepo.Metrics
}

// PairSelector runs the selection pipeline: discover, lock, score,
// shortlist, vote, fuse and finalize.
type PairSelector struct {
	cfg  SelectorConfig
	deps SelectorDeps
	l    *applogger.Logger
	now  func() time.Time

	run   sync.Mutex
	state atomic.Value
}

// NewPairSelector validates cfg and deps.
func NewPairSelector(cfg SelectorConfig, deps SelectorDeps, l *applogger.Logger) (*PairSelector, error) {
	if cfg.TargetCount < 1 {
		return nil, fmt.Errorf("target count must be >= 1, got %d", cfg.TargetCount)
	}
	if cfg.OversamplingFactor < 1 {
		return nil, fmt.Errorf("oversampling factor must be >= 1, got %v", cfg.OversamplingFactor)
	}
	if cfg.ScoringWorkers < 1 {
		cfg.ScoringWorkers = 1
	}
	if cfg.UniverseCacheKey == "" {
		cfg.UniverseCacheKey = "default"
	}
	if deps.Data == nil || deps.Cache == nil || deps.Filter == nil || deps.Sortino == nil ||
		deps.Correlation == nil || deps.GARCH == nil || deps.Aggregator == nil ||
		deps.Voter == nil || deps.Optimizer == nil || deps.Tracker == nil {
		return nil, errors.New("pair selector: missing dependency")
	}
	if deps.Metrics == nil {
		deps.Metrics = domrepo.NopMetrics{}
	}
	if l == nil {
		l = applogger.NewNop()
	}
	s := &PairSelector{cfg: cfg, deps: deps, l: l, now: time.Now}
	s.state.Store(models.StateIdle)
	return s, nil
}

// State returns the current pipeline stage.
func (s *PairSelector) State() models.PipelineState {
	return s.state.Load().(models.PipelineState)
}

func (s *PairSelector) enter(st models.PipelineState) {
	s.state.Store(st)
	s.l.Debug("pipeline stage", applogger.String("state", string(st)))
}

// SelectPairs runs the pipeline once. targetCount <= 0 uses the configured
// target. Only one run executes at a time; a concurrent call fails with
// ErrRunInProgress. Per-candidate failures drop the candidate; a failure to
// record the selection fails the run.
func (s *PairSelector) SelectPairs(ctx context.Context, monitor domrepo.TradeMonitor, memory domrepo.PortfolioMemory, targetCount int) (*models.PairSelectionResult, error) {
	if !s.run.TryLock() {
		return nil, ErrRunInProgress
	}
	defer s.run.Unlock()
	defer s.enter(models.StateIdle)

	start := s.now()
	if targetCount <= 0 {
		targetCount = s.cfg.TargetCount
	}
	res := &models.PairSelectionResult{
		RunID:       uuid.NewString(),
		Timestamp:   start.UTC(),
		TargetCount: targetCount,
		Metrics:     map[string]models.AggregatedMetrics{},
		Votes:       map[string]models.EnsembleVote{},
		FusedScores: map[string]float64{},
	}
	log := s.l.Component("selector")

	// 1. universe
	s.enter(models.StateDiscovering)
	stageStart := time.Now()
	filtered, err := s.discover(ctx)
	if err != nil {
		s.deps.Metrics.RecordRun("failed")
		return nil, err
	}
	res.Universe = filtered.Accepted
	res.Rejections = filtered.Rejected
	s.deps.Metrics.RecordCandidates("universe", len(res.Universe))
	s.deps.Metrics.RecordStage("discover", time.Since(stageStart).Seconds())

	// 2. locks
	locked, err := lockedPairs(ctx, monitor)
	if err != nil {
		s.deps.Metrics.RecordRun("failed")
		s.deps.Metrics.RecordError("trade_monitor")
		return nil, fmt.Errorf("active trades: %w", err)
	}
	res.LockedPairs = locked
	res.AvailableSlots = max(0, targetCount-len(locked))
	s.deps.Metrics.RecordCandidates("locked", len(locked))

	if res.AvailableSlots == 0 {
		return s.finishLockedOnly(ctx, res, start)
	}

	// 3. scoring
	s.enter(models.StateScoring)
	stageStart = time.Now()
	candidates := make([]string, 0, len(res.Universe))
	for _, p := range res.Universe {
		if !slices.Contains(locked, p) {
			candidates = append(candidates, p)
		}
	}
	scored := s.scoreAll(ctx, candidates, locked)
	for _, m := range scored {
		res.Metrics[m.Pair] = m
	}
	s.deps.Metrics.RecordCandidates("scored", len(scored))
	s.deps.Metrics.RecordStage("score", time.Since(stageStart).Seconds())

	// 4. shortlist
	s.enter(models.StateShortlisting)
	n := int(math.Ceil(float64(res.AvailableSlots) * s.cfg.OversamplingFactor))
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].CompositeScore > scored[j].CompositeScore })
	if len(scored) > n {
		scored = scored[:n]
	}
	res.Shortlist = make([]string, len(scored))
	for i, m := range scored {
		res.Shortlist[i] = m.Pair
	}
	s.deps.Metrics.RecordCandidates("shortlist", len(res.Shortlist))

	// 5. advisory votes
	s.enter(models.StateVoting)
	stageStart = time.Now()
	pctx := portfolioContext(ctx, memory, log)
	votes, err := s.deps.Voter.GetEnsembleVotes(ctx, res.Shortlist, res.Metrics, pctx, res.AvailableSlots)
	if err != nil {
		log.Warn("advisory voting degraded to neutral", applogger.Error(err))
	}
	res.Votes = votes
	s.deps.Metrics.RecordStage("vote", time.Since(stageStart).Seconds())

	// 6. fusion
	s.enter(models.StateFusing)
	res.Weights = s.deps.Optimizer.SampleWeights(HasVotes(votes))
	composite := make(map[string]float64, len(res.Shortlist))
	for _, p := range res.Shortlist {
		composite[p] = res.Metrics[p].CompositeScore
		res.FusedScores[p] = Fuse(composite[p], votes[p], res.Weights)
	}

	// 7. finalize
	s.enter(models.StateFinalizing)
	ranked := slices.Clone(res.Shortlist)
	sort.SliceStable(ranked, func(i, j int) bool { return res.FusedScores[ranked[i]] > res.FusedScores[ranked[j]] })
	if len(ranked) > res.AvailableSlots {
		ranked = ranked[:res.AvailableSlots]
	}
	res.NewlySelectedPairs = ranked
	res.SelectedPairs = append(slices.Clone(locked), ranked...)
	res.Reasoning = s.deps.Voter.GenerateSelectionReasoning(ctx, ranked, locked, res.FusedScores, composite, votes, res.Weights)

	id, err := s.deps.Tracker.RecordSelection(models.SelectionInput{
		SelectedPairs:     res.SelectedPairs,
		StatisticalScores: composite,
		CombinedScores:    res.FusedScores,
		Votes:             votes,
		Metadata: map[string]any{
			"run_id":          res.RunID,
			"locked_pairs":    locked,
			"weights":         res.Weights,
			"available_slots": res.AvailableSlots,
			"reasoning":       res.Reasoning,
		},
	})
	if err != nil {
		s.deps.Metrics.RecordRun("failed")
		s.deps.Metrics.RecordError("record_selection")
		return nil, err
	}
	res.SelectionID = id
	return s.complete(ctx, res, start), nil
}

func (s *PairSelector) finishLockedOnly(ctx context.Context, res *models.PairSelectionResult, start time.Time) (*models.PairSelectionResult, error) {
	s.enter(models.StateFinalizing)
	res.LockedOnly = true
	res.SelectedPairs = slices.Clone(res.LockedPairs)
	res.NewlySelectedPairs = []string{}
	res.Weights = models.FusionWeights{Statistical: 1, LLM: 0}
	res.Reasoning = s.deps.Voter.GenerateSelectionReasoning(ctx, nil, res.LockedPairs, nil, nil, nil, res.Weights)

	id, err := s.deps.Tracker.RecordSelection(models.SelectionInput{
		SelectedPairs: res.SelectedPairs,
		Metadata: map[string]any{
			"run_id":       res.RunID,
			"locked_pairs": res.LockedPairs,
			"locked_only":  true,
		},
	})
	if err != nil {
		s.deps.Metrics.RecordRun("failed")
		s.deps.Metrics.RecordError("record_selection")
		return nil, err
	}
	res.SelectionID = id
	return s.complete(ctx, res, start), nil
}

// complete publishes and audits the result. Failures there are logged only.
func (s *PairSelector) complete(ctx context.Context, res *models.PairSelectionResult, start time.Time) *models.PairSelectionResult {
	res.Duration = s.now().Sub(start)
	if s.deps.Audit != nil {
		if err := s.deps.Audit.StoreSelection(ctx, res); err != nil {
			s.deps.Metrics.RecordError("selection_audit")
			s.l.Warn("selection audit failed", applogger.String("selection_id", res.SelectionID), applogger.Error(err))
		}
	}
	if s.deps.Publisher != nil {
		if err := s.deps.Publisher.PublishSelection(ctx, res.Event()); err != nil {
			s.deps.Metrics.RecordError("selection_publish")
			s.l.Warn("selection publish failed", applogger.String("selection_id", res.SelectionID), applogger.Error(err))
		}
	}
	s.deps.Metrics.RecordRun("success")
	s.deps.Metrics.RecordStage("total", res.Duration.Seconds())
	s.l.Info("selection completed",
		applogger.String("run_id", res.RunID),
		applogger.String("selection_id", res.SelectionID),
		applogger.Strings("selected", res.SelectedPairs),
		applogger.Strings("locked", res.LockedPairs),
		applogger.Bool("locked_only", res.LockedOnly),
		applogger.Duration("duration_ms", res.Duration))
	return res
}

// discover returns the filtered universe. A discovery failure is not fatal:
// the filter still runs on an empty discovery list, so whitelist mode keeps
// working. The raw discovery result is cached; filtering is redone per run.
func (s *PairSelector) discover(ctx context.Context) (models.FilterResult, error) {
	key := s.cfg.UniverseCacheKey
	discovered, ok := s.deps.Cache.Get(ctx, key)
	if !ok {
		var err error
		discovered, err = s.deps.Data.DiscoverAvailablePairs(ctx)
		if err != nil {
			s.deps.Metrics.RecordError("discovery")
			s.l.Warn("universe discovery failed", applogger.Error(err))
			discovered = nil
		} else {
			s.deps.Cache.Set(ctx, key, discovered)
		}
	}
	res, err := s.deps.Filter.Filter(ctx, discovered, s.deps.Metadata)
	if err != nil {
		return res, fmt.Errorf("filter universe: %w", err)
	}
	return res, nil
}

func lockedPairs(ctx context.Context, monitor domrepo.TradeMonitor) ([]string, error) {
	locked := []string{}
	if monitor == nil {
		return locked, nil
	}
	trades, err := monitor.GetActiveTrades(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range trades {
		if t.AssetPair != "" && !slices.Contains(locked, t.AssetPair) {
			locked = append(locked, t.AssetPair)
		}
	}
	return locked, nil
}

func portfolioContext(ctx context.Context, memory domrepo.PortfolioMemory, l *applogger.Logger) models.PortfolioContext {
	if memory == nil {
		return models.DefaultPortfolioContext()
	}
	pc, err := memory.GetPairSelectionContext(ctx)
	if err != nil {
		l.Warn("portfolio context unavailable, using default", applogger.Error(err))
		return models.DefaultPortfolioContext()
	}
	return pc
}

// scoreAll scores candidates on a worker pool. The result keeps the input
// order and omits candidates that failed.
func (s *PairSelector) scoreAll(ctx context.Context, candidates, locked []string) []models.AggregatedMetrics {
	positions := make(map[string][]float64, len(locked))
	for _, p := range locked {
		r, err := s.deps.Correlation.Returns(ctx, p, s.deps.Data)
		if err != nil {
			s.l.Warn("position returns unavailable", applogger.String("pair", p), applogger.Error(err))
			continue
		}
		positions[p] = r
	}

	results := make([]*models.AggregatedMetrics, len(candidates))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < min(s.cfg.ScoringWorkers, max(len(candidates), 1)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				m, err := s.scoreOne(ctx, candidates[i], positions)
				if err != nil {
					s.deps.Metrics.RecordError("score")
					s.l.Warn("candidate dropped", applogger.String("pair", candidates[i]), applogger.Error(err))
					continue
				}
				results[i] = &m
			}
		}()
	}
	for i := range candidates {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	out := make([]models.AggregatedMetrics, 0, len(candidates))
	for _, m := range results {
		if m != nil {
			out = append(out, *m)
		}
	}
	return out
}

func (s *PairSelector) scoreOne(ctx context.Context, pair string, positions map[string][]float64) (m models.AggregatedMetrics, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("score %s: panic: %v", pair, r)
		}
	}()

	sortino, err := s.deps.Sortino.Calculate(ctx, pair, s.deps.Data)
	if err != nil {
		return m, err
	}
	var corr *models.CorrelationScore
	if len(positions) == 0 {
		corr = s.deps.Correlation.Score(pair, nil, nil)
	} else {
		returns, err := s.deps.Correlation.Returns(ctx, pair, s.deps.Data)
		if err != nil {
			return m, err
		}
		corr = s.deps.Correlation.Score(pair, returns, positions)
	}
	garch, err := s.deps.GARCH.Forecast(ctx, pair, s.deps.Data)
	if err != nil {
		return m, err
	}
	return s.deps.Aggregator.Aggregate(pair, sortino, corr, garch), nil
}

// Fuse blends a statistical composite with a vote remapped to [0,1].
func Fuse(composite float64, vote models.EnsembleVote, w models.FusionWeights) float64 {
	return w.Statistical*composite + w.LLM*vote.NormalizedScore()
}

// ApplyOutcomeLearning feeds finished batches to the optimizer. A batch is
// ready when it has no pending trades or is older than LearningMaxWait.
// Batches that end without a success or failure decision are marked applied
// so they are not revisited. A persistence failure stops the pass.
func (s *PairSelector) ApplyOutcomeLearning(ctx context.Context) (int, error) {
	applied := 0
	now := s.now()
	for _, id := range s.deps.Tracker.SelectionIDs() {
		if s.deps.Optimizer.IsApplied(id) {
			continue
		}
		perf, err := s.deps.Tracker.GetSelectionPerformance(id)
		if err != nil {
			continue
		}
		ready := perf.PendingTrades == 0 ||
			(s.cfg.LearningMaxWait > 0 && now.Sub(perf.Timestamp) >= s.cfg.LearningMaxWait)
		if !ready {
			continue
		}
		upd, err := s.deps.Optimizer.UpdateFromOutcome(ctx, id, s.deps.Tracker)
		if errors.Is(err, learning.ErrAlreadyApplied) {
			continue
		}
		if err != nil {
			return applied, err
		}
		if upd.Decision == models.DecisionInsufficient || upd.Decision == models.DecisionNeutral {
			if err := s.deps.Optimizer.MarkApplied(id); err != nil {
				return applied, err
			}
		}
		applied++
	}
	return applied, nil
}

// SetClock overrides time.Now.
func (s *PairSelector) SetClock(now func() time.Time) { s.now = now }
