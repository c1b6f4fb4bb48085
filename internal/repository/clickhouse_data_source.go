package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"PairPilot/internal/domain/models"
	domrepo "PairPilot/internal/domain/repository"
	pkgch "PairPilot/pkg/clickhouse"
	applogger "PairPilot/pkg/logger"
)

// ProviderClickHouse names the candles provider in DataSource results.
const ProviderClickHouse = "clickhouse"

// CHDataSource implements DataSource and MetadataSource backed by ClickHouse.
type CHDataSource struct {
	db              *sql.DB
	database        string
	discoveryWindow time.Duration
	l               *applogger.Logger
}

// NewCHDataSource reads from the client's database. Discovery returns pairs
// with a candle newer than discoveryWindow.
func NewCHDataSource(ch *pkgch.Client, discoveryWindow time.Duration) *CHDataSource {
	if discoveryWindow <= 0 {
		discoveryWindow = 72 * time.Hour
	}
	return &CHDataSource{db: ch.DB(), database: ch.Database(), discoveryWindow: discoveryWindow, l: applogger.NewNop()}
}

// SetLogger injects a structured logger.
func (s *CHDataSource) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

// GetCandles returns the latest limit candles of pair in ascending order.
func (s *CHDataSource) GetCandles(ctx context.Context, pair string, g domrepo.Granularity, limit int) ([]models.Candle, string, error) {
	start := time.Now()
	if !domrepo.IsValidGranularity(g) {
		return nil, ProviderClickHouse, fmt.Errorf("unsupported granularity: %s", g)
	}
	rows, err := s.db.QueryContext(ctx, latestCandlesQuery(s.database), pair, string(g), limit)
	if err != nil {
		s.l.Error("clickhouse latest_candles query error",
			applogger.String("pair", pair),
			applogger.String("granularity", string(g)),
			applogger.Int("limit", limit),
			applogger.Error(err),
		)
		return nil, ProviderClickHouse, fmt.Errorf("get latest candles: %w", err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, limit)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Bucket, &c.Pair, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, ProviderClickHouse, fmt.Errorf("scan candle: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, ProviderClickHouse, fmt.Errorf("rows: %w", err)
	}
	reverseCandles(out)

	s.l.Debug("clickhouse latest_candles ok",
		applogger.String("pair", pair),
		applogger.String("granularity", string(g)),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, ProviderClickHouse, nil
}

// DiscoverAvailablePairs lists pairs with recent candles, sorted by name.
func (s *CHDataSource) DiscoverAvailablePairs(ctx context.Context) ([]string, error) {
	since := time.Now().Add(-s.discoveryWindow).UTC()
	rows, err := s.db.QueryContext(ctx, discoverQuery(s.database), since)
	if err != nil {
		s.l.Error("clickhouse discover query error", applogger.Error(err))
		return nil, fmt.Errorf("discover pairs: %w", err)
	}
	defer rows.Close()

	var pairs []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan pair: %w", err)
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Info("clickhouse discover ok", applogger.Int("pairs", len(pairs)))
	return pairs, nil
}

// GetPairMetadata returns the latest metadata snapshot for each known pair.
func (s *CHDataSource) GetPairMetadata(ctx context.Context, pairs []string) (map[string]models.PairMetadata, error) {
	out := make(map[string]models.PairMetadata, len(pairs))
	if len(pairs) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx, metadataQuery(s.database), pairs)
	if err != nil {
		s.l.Error("clickhouse pair_metadata query error", applogger.Error(err))
		return nil, fmt.Errorf("pair metadata: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			m      models.PairMetadata
			venues uint32
		)
		if err := rows.Scan(&m.Pair, &m.Volume24h, &m.ListedAt, &m.SpreadBps, &m.DepthUSD, &venues, &m.SuspicionScore); err != nil {
			return nil, fmt.Errorf("scan pair metadata: %w", err)
		}
		m.VenueCount = int(venues)
		out[m.Pair] = m
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func latestCandlesQuery(db string) string {
	return fmt.Sprintf(`
        SELECT bucket, pair, open, high, low, close, volume
        FROM %s.candles FINAL
        WHERE pair = ? AND granularity = ?
        ORDER BY bucket DESC
        LIMIT ?
    `, db)
}

func discoverQuery(db string) string {
	return fmt.Sprintf(`
        SELECT DISTINCT pair
        FROM %s.candles
        WHERE bucket >= ?
        ORDER BY pair
    `, db)
}

func metadataQuery(db string) string {
	return fmt.Sprintf(`
        SELECT pair, volume_24h, listed_at, spread_bps, depth_usd, venue_count, suspicion_score
        FROM %s.pair_metadata FINAL
        WHERE pair IN (?)
    `, db)
}

func reverseCandles(c []models.Candle) {
	for i, j := 0, len(c)-1; i < j; i, j = i+1, j-1 {
		c[i], c[j] = c[j], c[i]
	}
}

var (
	_ domrepo.DataSource     = (*CHDataSource)(nil)
	_ domrepo.MetadataSource = (*CHDataSource)(nil)
)
