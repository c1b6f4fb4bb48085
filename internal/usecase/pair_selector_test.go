package usecase

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PairPilot/internal/domain/models"
	domsvc "PairPilot/internal/domain/service"
	"PairPilot/internal/repository"
	"PairPilot/internal/service/cache"
	"PairPilot/internal/services/analytics"
	"PairPilot/internal/services/learning"
	"PairPilot/internal/services/universe"
	applogger "PairPilot/pkg/logger"
)

type selectorFixture struct {
	sel       *PairSelector
	data      *fakeData
	provider  *fakeProvider
	tracker   *repository.OutcomeTracker
	optimizer *learning.ThompsonOptimizer
	publisher *recordingPublisher
	audit     *recordingAudit
}

const voteBody = `{"AAAUSD": {"vote": "STRONG_BUY", "confidence": 90, "rationale": "trend"},
 "BBBUSD": {"vote": "BUY", "confidence": 60},
 "CCCUSD": {"vote": "AVOID", "confidence": 80},
 "DDDUSD": {"vote": "NEUTRAL", "confidence": 50}}`

func newSelectorFixture(t *testing.T, whitelist []string, target int) *selectorFixture {
	t.Helper()

	data := newFakeData()
	for i, p := range []string{"AAAUSD", "BBBUSD", "CCCUSD", "DDDUSD", "LCKUSD", "L2USD", "L3USD", "L4USD", "L5USD"} {
		data.wave(p, 60, 0.001*float64(i%3), 0.02+0.005*float64(i), float64(i))
	}

	sortino, err := analytics.NewSortinoAnalyzer([]int{7, 30}, []float64{0.4, 0.6}, 0)
	require.NoError(t, err)
	corr, err := analytics.NewCorrelationAnalyzer(0.7, 30)
	require.NoError(t, err)
	garch, err := analytics.NewGARCHForecaster(analytics.GARCHConfig{P: 1, Q: 1, LookbackDays: 30, HorizonDays: 7})
	require.NoError(t, err)
	agg, err := analytics.NewMetricAggregator(map[string]float64{"sortino": 0.4, "diversification": 0.3, "volatility": 0.3})
	require.NoError(t, err)
	uc, err := cache.NewUniverseCache(24)
	require.NoError(t, err)

	provider := &fakeProvider{name: "fake", body: voteBody, reasoning: "Strong momentum."}
	voter := NewEnsembleVoter([]domsvc.AdvisoryProvider{provider}, "", time.Second, nil, nil)

	opt, err := learning.NewThompsonOptimizer(learning.DefaultParams(), &memStore{}, learning.WithSource(rand.NewPCG(7, 9)))
	require.NoError(t, err)
	tracker, err := repository.NewOutcomeTracker(&memStore{}, nil)
	require.NoError(t, err)

	pub := &recordingPublisher{}
	audit := &recordingAudit{}
	sel, err := NewPairSelector(SelectorConfig{
		TargetCount:        target,
		OversamplingFactor: 1.5,
		ScoringWorkers:     3,
		LearningMaxWait:    48 * time.Hour,
	}, SelectorDeps{
		Data:        data,
		Cache:       uc,
		Filter:      universe.NewDiscoveryFilter(universe.FilterConfig{WhitelistMode: true, Whitelist: whitelist}, nil),
		Sortino:     sortino,
		Correlation: corr,
		GARCH:       garch,
		Aggregator:  agg,
		Voter:       voter,
		Optimizer:   opt,
		Tracker:     tracker,
		Audit:       audit,
		Publisher:   pub,
	}, nil)
	require.NoError(t, err)

	return &selectorFixture{sel: sel, data: data, provider: provider, tracker: tracker, optimizer: opt, publisher: pub, audit: audit}
}

func TestNewPairSelectorValidates(t *testing.T) {
	_, err := NewPairSelector(SelectorConfig{TargetCount: 0, OversamplingFactor: 2}, SelectorDeps{}, nil)
	assert.Error(t, err)
	_, err = NewPairSelector(SelectorConfig{TargetCount: 1, OversamplingFactor: 0.5}, SelectorDeps{}, nil)
	assert.Error(t, err)
	_, err = NewPairSelector(SelectorConfig{TargetCount: 1, OversamplingFactor: 2}, SelectorDeps{}, nil)
	assert.Error(t, err)
}

func TestSelectPairsFullPipeline(t *testing.T) {
	fx := newSelectorFixture(t, []string{"AAAUSD", "BBBUSD", "CCCUSD", "DDDUSD", "LCKUSD"}, 3)

	res, err := fx.sel.SelectPairs(context.Background(), &fakeMonitor{trades: trades("LCKUSD", "LCKUSD")}, fakeMemory{pc: models.DefaultPortfolioContext()}, 0)
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, []string{"LCKUSD"}, res.LockedPairs)
	assert.Equal(t, 2, res.AvailableSlots)
	assert.False(t, res.LockedOnly)

	require.Len(t, res.Shortlist, 3, "ceil(2*1.5)")
	assert.NotContains(t, res.Shortlist, "LCKUSD")
	assert.Len(t, res.Metrics, 4)
	assert.True(t, sort.SliceIsSorted(res.Shortlist, func(i, j int) bool {
		return res.Metrics[res.Shortlist[i]].CompositeScore > res.Metrics[res.Shortlist[j]].CompositeScore
	}))

	assert.InDelta(t, 1.0, res.Weights.Statistical+res.Weights.LLM, 1e-9)
	for _, p := range res.Shortlist {
		want := res.Weights.Statistical*res.Metrics[p].CompositeScore + res.Weights.LLM*res.Votes[p].NormalizedScore()
		assert.InDelta(t, want, res.FusedScores[p], 1e-12, p)
	}

	require.Len(t, res.NewlySelectedPairs, 2)
	assert.GreaterOrEqual(t, res.FusedScores[res.NewlySelectedPairs[0]], res.FusedScores[res.NewlySelectedPairs[1]])
	for _, p := range res.NewlySelectedPairs {
		assert.Contains(t, res.Shortlist, p)
	}
	assert.Equal(t, append([]string{"LCKUSD"}, res.NewlySelectedPairs...), res.SelectedPairs)
	assert.Equal(t, "Strong momentum.", res.Reasoning)

	rec, err := fx.tracker.GetSelection(res.SelectionID)
	require.NoError(t, err)
	assert.Equal(t, res.SelectedPairs, rec.SelectedPairs)
	assert.Equal(t, res.RunID, rec.Metadata["run_id"])

	require.Len(t, fx.publisher.events, 1)
	assert.Equal(t, res.SelectionID, fx.publisher.events[0].SelectionID)
	require.Len(t, fx.audit.stored, 1)
	assert.Equal(t, models.StateIdle, fx.sel.State())
}

func TestShortlistTiesKeepDiscoveryOrder(t *testing.T) {
	for _, order := range [][]string{{"DDDUSD", "AAAUSD"}, {"AAAUSD", "DDDUSD"}} {
		fx := newSelectorFixture(t, order, 2)
		fx.data.closes["DDDUSD"] = slices.Clone(fx.data.closes["AAAUSD"])

		res, err := fx.sel.SelectPairs(context.Background(), nil, nil, 0)
		require.NoError(t, err)
		require.Equal(t, res.Metrics["AAAUSD"].CompositeScore, res.Metrics["DDDUSD"].CompositeScore)
		assert.Equal(t, order, res.Shortlist)
	}
}

func TestSelectPairsAllSlotsLocked(t *testing.T) {
	fx := newSelectorFixture(t, []string{"AAAUSD", "BBBUSD"}, 5)
	locked := []string{"LCKUSD", "L2USD", "L3USD", "L4USD", "L5USD"}

	res, err := fx.sel.SelectPairs(context.Background(), &fakeMonitor{trades: trades(locked...)}, nil, 0)
	require.NoError(t, err)

	assert.True(t, res.LockedOnly)
	assert.Equal(t, 0, res.AvailableSlots)
	assert.Equal(t, locked, res.SelectedPairs)
	assert.Empty(t, res.NewlySelectedPairs)
	assert.Equal(t, models.FusionWeights{Statistical: 1, LLM: 0}, res.Weights)
	assert.Equal(t, "All slots held by open positions: LCKUSD, L2USD, L3USD, L4USD, L5USD.", res.Reasoning)

	assert.Zero(t, fx.data.candleCalls(), "no scoring")
	assert.Zero(t, fx.provider.calls.Load(), "no voting")
	assert.Equal(t, 1, fx.tracker.Len())
}

func TestSelectPairsAdvisoryOutageUsesStatisticsOnly(t *testing.T) {
	fx := newSelectorFixture(t, []string{"AAAUSD", "BBBUSD", "CCCUSD"}, 1)
	fx.provider.err = errors.New("upstream 503")

	res, err := fx.sel.SelectPairs(context.Background(), nil, nil, 0)
	require.NoError(t, err)

	assert.Equal(t, models.FusionWeights{Statistical: 1, LLM: 0}, res.Weights)
	for _, v := range res.Votes {
		assert.True(t, v.Placeholder)
	}
	require.Len(t, res.NewlySelectedPairs, 1)
	assert.Equal(t, res.Shortlist[0], res.NewlySelectedPairs[0])
	assert.Contains(t, res.Reasoning, "Selected by statistical composite score")
}

func TestSelectPairsDropsUnscorableCandidates(t *testing.T) {
	fx := newSelectorFixture(t, []string{"AAAUSD", "NOPEUSD"}, 2)

	res, err := fx.sel.SelectPairs(context.Background(), nil, nil, 0)
	require.NoError(t, err)
	assert.NotContains(t, res.Metrics, "NOPEUSD")
	assert.Equal(t, []string{"AAAUSD"}, res.SelectedPairs)
}

func TestSelectPairsTradeMonitorFailureFailsRun(t *testing.T) {
	fx := newSelectorFixture(t, []string{"AAAUSD"}, 2)

	_, err := fx.sel.SelectPairs(context.Background(), &fakeMonitor{err: errors.New("down")}, nil, 0)
	require.Error(t, err)
	assert.Zero(t, fx.tracker.Len())
	assert.Empty(t, fx.publisher.events)
}

func TestSelectPairsDiscoveryFailureIsNotFatal(t *testing.T) {
	fx := newSelectorFixture(t, []string{"AAAUSD"}, 1)
	fx.data.discoverErr = errors.New("clickhouse down")

	res, err := fx.sel.SelectPairs(context.Background(), nil, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAAUSD"}, res.SelectedPairs)
}

func TestSelectPairsRecordFailureFailsRun(t *testing.T) {
	fx := newSelectorFixture(t, []string{"AAAUSD"}, 1)
	store := &memStore{saveErr: errors.New("disk full")}
	tracker, err := repository.NewOutcomeTracker(store, nil)
	require.NoError(t, err)
	fx.sel.deps.Tracker = tracker

	_, err = fx.sel.SelectPairs(context.Background(), nil, nil, 0)
	require.Error(t, err)
	assert.Empty(t, fx.publisher.events)
}

func TestSelectPairsPublishFailureIsNotFatal(t *testing.T) {
	fx := newSelectorFixture(t, []string{"AAAUSD"}, 1)
	fx.publisher.err = errors.New("kafka down")
	fx.audit.err = errors.New("clickhouse down")
	logs := &syncBuffer{}
	fx.sel.l = applogger.NewWriter(logs)

	res, err := fx.sel.SelectPairs(context.Background(), nil, nil, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, res.SelectionID)
	assert.Contains(t, logs.String(), "selection publish failed")
	assert.Contains(t, logs.String(), "kafka down")
	assert.Contains(t, logs.String(), "selection audit failed")
}

func TestSelectPairsRejectsConcurrentRun(t *testing.T) {
	fx := newSelectorFixture(t, []string{"AAAUSD"}, 1)
	mon := &fakeMonitor{enter: make(chan struct{}), block: make(chan struct{})}

	done := make(chan error, 1)
	go func() {
		_, err := fx.sel.SelectPairs(context.Background(), mon, nil, 0)
		done <- err
	}()
	<-mon.enter

	_, err := fx.sel.SelectPairs(context.Background(), nil, nil, 0)
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(mon.block)
	require.NoError(t, <-done)
}

func TestSelectPairsUsesCachedUniverse(t *testing.T) {
	fx := newSelectorFixture(t, nil, 1)
	fx.sel.deps.Filter = universe.NewDiscoveryFilter(universe.FilterConfig{}, nil)
	fx.sel.deps.Metadata = staticMetadata{"AAAUSD": {Pair: "AAAUSD", Volume24h: 1e9}}
	fx.data.pairs = []string{"AAAUSD"}

	_, err := fx.sel.SelectPairs(context.Background(), nil, nil, 0)
	require.NoError(t, err)

	fx.data.pairs = []string{"BBBUSD"}
	res, err := fx.sel.SelectPairs(context.Background(), nil, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAAUSD"}, res.Universe)
}

type staticMetadata map[string]models.PairMetadata

func (m staticMetadata) GetPairMetadata(context.Context, []string) (map[string]models.PairMetadata, error) {
	return m, nil
}

func TestApplyOutcomeLearning(t *testing.T) {
	fx := newSelectorFixture(t, []string{"AAAUSD"}, 1)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	fx.tracker.SetClock(func() time.Time { return now })
	fx.sel.SetClock(func() time.Time { return now })

	winner, err := fx.tracker.RecordSelection(models.SelectionInput{SelectedPairs: []string{"AAAUSD", "BBBUSD", "CCCUSD"}})
	require.NoError(t, err)
	for _, p := range []string{"AAAUSD", "BBBUSD", "CCCUSD"} {
		_, found, err := fx.tracker.RecordTradeOutcome(p, models.TradeOutcome{PnL: 10, Win: true})
		require.NoError(t, err)
		require.True(t, found)
	}
	waiting, err := fx.tracker.RecordSelection(models.SelectionInput{SelectedPairs: []string{"DDDUSD"}})
	require.NoError(t, err)

	n, err := fx.sel.ApplyOutcomeLearning(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, fx.optimizer.IsApplied(winner))
	assert.False(t, fx.optimizer.IsApplied(waiting))
	st := fx.optimizer.State()
	assert.Equal(t, 2.0, st.StatisticalWeight.Alpha)
	assert.Equal(t, 2.0, st.LLMWeight.Alpha)

	n, err = fx.sel.ApplyOutcomeLearning(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "applied batches are skipped")

	now = now.Add(49 * time.Hour)
	n, err = fx.sel.ApplyOutcomeLearning(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, fx.optimizer.IsApplied(waiting), "stale batch closed as insufficient")
	assert.Equal(t, 2.0, fx.optimizer.State().StatisticalWeight.Alpha)
}

func TestApplyOutcomeLearningBeyondAppliedBound(t *testing.T) {
	fx := newSelectorFixture(t, []string{"AAAUSD"}, 1)
	pairs := []string{"AAAUSD", "BBBUSD", "CCCUSD"}
	batches := learning.MaxAppliedSelections + 1
	for i := 0; i < batches; i++ {
		_, err := fx.tracker.RecordSelection(models.SelectionInput{SelectedPairs: pairs})
		require.NoError(t, err)
		for _, p := range pairs {
			_, _, err := fx.tracker.RecordTradeOutcome(p, models.TradeOutcome{PnL: 1, Win: true})
			require.NoError(t, err)
		}
	}

	n, err := fx.sel.ApplyOutcomeLearning(context.Background())
	require.NoError(t, err)
	require.Equal(t, batches, n)
	alpha := fx.optimizer.State().StatisticalWeight.Alpha
	assert.Equal(t, float64(batches+1), alpha)

	for pass := 0; pass < 2; pass++ {
		n, err = fx.sel.ApplyOutcomeLearning(context.Background())
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Equal(t, alpha, fx.optimizer.State().StatisticalWeight.Alpha)
	}
}

func TestFuse(t *testing.T) {
	v := models.EnsembleVote{VoteScore: 2}
	assert.InDelta(t, 0.5*0.4+0.5*1, Fuse(0.4, v, models.FusionWeights{Statistical: 0.5, LLM: 0.5}), 1e-12)
	assert.InDelta(t, 0.4, Fuse(0.4, models.EnsembleVote{}, models.FusionWeights{Statistical: 1}), 1e-12)
}
