package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"PairPilot/internal/domain/models"
	"PairPilot/internal/domain/repository"
)

// fakeData serves synthetic daily closes per pair.
type fakeData struct {
	mu          sync.Mutex
	closes      map[string][]float64
	pairs       []string
	discoverErr error
	calls       int
}

func newFakeData() *fakeData { return &fakeData{closes: map[string][]float64{}} }

// wave builds n closes oscillating around a drift so every pair has
// distinct, non-degenerate returns.
func (f *fakeData) wave(pair string, n int, drift, amp, phase float64) {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 * (1 + drift*float64(i) + amp*math.Sin(float64(i)*0.7+phase))
	}
	f.closes[pair] = out
}

func (f *fakeData) GetCandles(_ context.Context, pair string, _ repository.Granularity, limit int) ([]models.Candle, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	cs, ok := f.closes[pair]
	if !ok {
		return nil, "", errors.New("unknown pair " + pair)
	}
	if len(cs) > limit {
		cs = cs[len(cs)-limit:]
	}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, len(cs))
	for i, c := range cs {
		out[i] = models.Candle{Pair: pair, Bucket: base.AddDate(0, 0, i), Close: c}
	}
	return out, "fake", nil
}

func (f *fakeData) DiscoverAvailablePairs(context.Context) ([]string, error) {
	if f.discoverErr != nil {
		return nil, f.discoverErr
	}
	return f.pairs, nil
}

func (f *fakeData) candleCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeMonitor struct {
	trades []models.ActiveTrade
	err    error
	enter  chan struct{}
	block  chan struct{}
}

func (m *fakeMonitor) GetActiveTrades(context.Context) ([]models.ActiveTrade, error) {
	if m.enter != nil {
		m.enter <- struct{}{}
		<-m.block
	}
	return m.trades, m.err
}

func trades(pairs ...string) []models.ActiveTrade {
	out := make([]models.ActiveTrade, len(pairs))
	for i, p := range pairs {
		out[i] = models.ActiveTrade{AssetPair: p}
	}
	return out
}

type fakeMemory struct {
	pc  models.PortfolioContext
	err error
}

func (m fakeMemory) GetPairSelectionContext(context.Context) (models.PortfolioContext, error) {
	return m.pc, m.err
}

// fakeProvider answers evaluation prompts with a fixed body and reasoning
// prompts with a fixed sentence.
type fakeProvider struct {
	name      string
	body      string
	reasoning string
	err       error
	calls     atomic.Int32
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Query(_ context.Context, prompt string) (string, error) {
	p.calls.Add(1)
	if p.err != nil {
		return "", p.err
	}
	if strings.HasPrefix(prompt, "Explain") {
		return p.reasoning, nil
	}
	return p.body, nil
}

// memStore is an in-memory StateStore.
type memStore struct {
	mu      sync.Mutex
	data    []byte
	saveErr error
}

func (s *memStore) Load(v any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return false, nil
	}
	return true, json.Unmarshal(s.data, v)
}

func (s *memStore) Save(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.data = b
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.SelectionEvent
	err    error
}

func (p *recordingPublisher) PublishSelection(_ context.Context, ev models.SelectionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

type recordingAudit struct {
	stored []*models.PairSelectionResult
	err    error
}

func (a *recordingAudit) StoreSelection(_ context.Context, res *models.PairSelectionResult) error {
	a.stored = append(a.stored, res)
	return a.err
}

// syncBuffer is a bytes.Buffer safe for concurrent log writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
