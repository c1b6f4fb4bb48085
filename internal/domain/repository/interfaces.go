package repository

import (
	"context"

	"PairPilot/internal/domain/models"
)

// DataSource provides historical candles and the tradable universe.
type DataSource interface {
	// GetCandles returns up to limit most recent candles in ascending time
	// order, plus the name of the provider that served them.
	GetCandles(ctx context.Context, pair string, granularity Granularity, limit int) ([]models.Candle, string, error)
	DiscoverAvailablePairs(ctx context.Context) ([]string, error)
}

// MetadataSource supplies market-quality facts for discovery-mode filtering.
type MetadataSource interface {
	GetPairMetadata(ctx context.Context, pairs []string) (map[string]models.PairMetadata, error)
}

// TradeMonitor exposes a read-only snapshot of open positions.
type TradeMonitor interface {
	GetActiveTrades(ctx context.Context) ([]models.ActiveTrade, error)
}

// PortfolioMemory summarises recent portfolio behaviour.
type PortfolioMemory interface {
	GetPairSelectionContext(ctx context.Context) (models.PortfolioContext, error)
}

// SelectionPublisher receives finished selection runs.
type SelectionPublisher interface {
	PublishSelection(ctx context.Context, ev models.SelectionEvent) error
}

// SelectionAudit stores per-pair scoring detail for offline analysis.
type SelectionAudit interface {
	StoreSelection(ctx context.Context, res *models.PairSelectionResult) error
}

// StateStore loads and atomically replaces one JSON document.
type StateStore interface {
	Load(v any) (bool, error)
	Save(v any) error
}

// Metrics records selection engine telemetry.
type Metrics interface {
	RecordRun(status string)
	RecordStage(stage string, seconds float64)
	RecordCandidates(stage string, n int)
	RecordError(kind string)
	RecordWeights(component string, alpha, beta float64)
	RecordLatency(op string, seconds float64)
}
