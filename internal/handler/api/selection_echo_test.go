package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PairPilot/internal/domain/models"
	"PairPilot/internal/repository"
	"PairPilot/internal/service/cache"
	"PairPilot/internal/services/universe"
	"PairPilot/internal/usecase"
	xhttp "PairPilot/pkg/http"
)

type stubScheduler struct {
	err    error
	status models.SchedulerStatus
	calls  int
}

func (s *stubScheduler) TriggerImmediateSelection() error {
	s.calls++
	return s.err
}

func (s *stubScheduler) GetStatus() models.SchedulerStatus { return s.status }

type stubHistory struct {
	records map[string]models.SelectionRecord
	order   []string
	err     error
}

func (s *stubHistory) ListSelections(limit int) []models.SelectionRecord {
	out := []models.SelectionRecord{}
	for _, id := range s.order {
		if len(out) == limit {
			break
		}
		out = append(out, s.records[id])
	}
	return out
}

func (s *stubHistory) GetSelection(id string) (models.SelectionRecord, error) {
	if s.err != nil {
		return models.SelectionRecord{}, s.err
	}
	r, ok := s.records[id]
	if !ok {
		return r, repository.ErrSelectionNotFound
	}
	return r, nil
}

func (s *stubHistory) GetSelectionPerformance(id string) (models.SelectionPerformance, error) {
	if _, err := s.GetSelection(id); err != nil {
		return models.SelectionPerformance{}, err
	}
	return models.SelectionPerformance{SelectionID: id, WinRate: 0.5, CompletedTrades: 2}, nil
}

func (s *stubHistory) Len() int { return len(s.order) }

type stubWeights struct{}

func (stubWeights) State() models.ThompsonWeightState { return models.DefaultThompsonState() }
func (stubWeights) GetExpectedWeights() models.FusionWeights {
	return models.FusionWeights{Statistical: 0.5, LLM: 0.5}
}

type apiFixture struct {
	e     *echo.Echo
	sched *stubScheduler
	cache *cache.UniverseCache
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	uc, err := cache.NewUniverseCache(24)
	require.NoError(t, err)
	filter := universe.NewDiscoveryFilter(universe.FilterConfig{WhitelistMode: true, Whitelist: []string{"BTCUSD", "ETHUSD"}}, nil)
	history := &stubHistory{
		records: map[string]models.SelectionRecord{
			"sel_2": {SelectionID: "sel_2", SelectedPairs: []string{"ETHUSD"}},
			"sel_1": {SelectionID: "sel_1", SelectedPairs: []string{"BTCUSD"}},
		},
		order: []string{"sel_2", "sel_1"},
	}
	sched := &stubScheduler{status: models.SchedulerStatus{Running: true, RunCount: 3, PipelineState: models.StateIdle}}

	e := echo.New()
	NewSelectionEchoHandler(nil, sched, history, stubWeights{}, uc, filter, nil).RegisterRoutes(e)
	return &apiFixture{e: e, sched: sched, cache: uc}
}

func (f *apiFixture) do(method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	if data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func TestStatus(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(http.MethodGet, "/api/selection/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var st models.SchedulerStatus
	decode(t, rec, &st)
	assert.True(t, st.Running)
	assert.Equal(t, 3, st.RunCount)
	assert.Equal(t, models.StateIdle, st.PipelineState)
}

func TestTrigger(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodPost, "/api/selection/trigger")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	var tr models.TriggerResponse
	decode(t, rec, &tr)
	assert.True(t, tr.Queued)

	f.sched.err = usecase.ErrTriggerPending
	rec = f.do(http.MethodPost, "/api/selection/trigger")
	assert.Equal(t, http.StatusConflict, rec.Code)

	f.sched.err = usecase.ErrSchedulerStopped
	rec = f.do(http.MethodPost, "/api/selection/trigger")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	f.sched.err = errors.New("boom")
	rec = f.do(http.MethodPost, "/api/selection/trigger")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 4, f.sched.calls)
}

func TestHistory(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodGet, "/api/selection/history?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Rows  []models.SelectionRecord `json:"rows"`
		Total int64                    `json:"total"`
	}
	decode(t, rec, &list)
	require.Len(t, list.Rows, 1)
	assert.Equal(t, "sel_2", list.Rows[0].SelectionID)
	assert.Equal(t, int64(2), list.Total)

	rec = f.do(http.MethodGet, "/api/selection/history")
	decode(t, rec, &list)
	assert.Len(t, list.Rows, 2, "default limit")

	rec = f.do(http.MethodGet, "/api/selection/history?limit=1000")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSelectionLookup(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodGet, "/api/selection/sel_1")
	require.Equal(t, http.StatusOK, rec.Code)
	var r models.SelectionRecord
	decode(t, rec, &r)
	assert.Equal(t, []string{"BTCUSD"}, r.SelectedPairs)

	rec = f.do(http.MethodGet, "/api/selection/sel_1/performance")
	require.Equal(t, http.StatusOK, rec.Code)
	var p models.SelectionPerformance
	decode(t, rec, &p)
	assert.Equal(t, 2, p.CompletedTrades)

	rec = f.do(http.MethodGet, "/api/selection/sel_9")
	require.Equal(t, http.StatusNotFound, rec.Code)
	var errs []xhttp.AppError
	decode(t, rec, &errs)
	require.Len(t, errs, 1)
	assert.Equal(t, "ERR_NOT_FOUND", errs[0].Code)
	assert.Equal(t, "sel_9", errs[0].Params["selection_id"])

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/selection/sel_9/performance").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/selection/bogus").Code)
}

func TestWeights(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(http.MethodGet, "/api/weights")
	require.Equal(t, http.StatusOK, rec.Code)
	var w models.WeightsResponse
	decode(t, rec, &w)
	assert.Equal(t, 1.0, w.State.StatisticalWeight.Alpha)
	assert.Equal(t, 0.5, w.Expected.LLM)
}

func TestUniverseAndInvalidate(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()
	f.cache.Set(ctx, "default", []string{"BTCUSD"})
	f.cache.Set(ctx, "alt", []string{"SOLUSD"})

	rec := f.do(http.MethodGet, "/api/universe")
	require.Equal(t, http.StatusOK, rec.Code)
	var u models.UniverseResponse
	decode(t, rec, &u)
	assert.True(t, u.WhitelistMode)
	assert.Equal(t, []string{"BTCUSD", "ETHUSD"}, u.Whitelist)
	assert.Equal(t, 24.0, u.TTLHours)
	assert.Equal(t, []string{"BTCUSD"}, u.Cached["default"].Pairs)
	assert.WithinDuration(t, time.Now(), u.Cached["default"].WrittenAt, time.Minute)

	rec = f.do(http.MethodDelete, "/api/universe/cache?key=alt")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotContains(t, f.cache.Snapshot(), "alt")
	assert.Contains(t, f.cache.Snapshot(), "default")

	rec = f.do(http.MethodDelete, "/api/universe/cache")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, f.cache.Snapshot())
}
