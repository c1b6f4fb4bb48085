package clickhouse

import "fmt"

// Schema returns the DDL for the tables the selection engine reads and
// writes in database db.
//
//   - candles: OHLCV bars per pair and granularity, the analyzers' input.
//   - pair_metadata: latest market-quality snapshot per pair for discovery mode.
//   - selection_audit: one row per scored candidate per selection run.
func Schema(db string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.candles (
	pair String,
	granularity LowCardinality(String),
	bucket DateTime,
	open Float64,
	high Float64,
	low Float64,
	close Float64,
	volume Float64,
	source LowCardinality(String)
) ENGINE = ReplacingMergeTree
ORDER BY (pair, granularity, bucket)`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.pair_metadata (
	pair String,
	volume_24h Float64,
	listed_at DateTime,
	spread_bps Float64,
	depth_usd Float64,
	venue_count UInt32,
	suspicion_score Float64,
	updated_at DateTime
) ENGINE = ReplacingMergeTree(updated_at)
ORDER BY pair`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.selection_audit (
	run_id String,
	selection_id String,
	ts DateTime64(3),
	pair String,
	stage LowCardinality(String),
	selected UInt8,
	locked UInt8,
	composite Float64,
	sortino Float64,
	diversification Float64,
	volatility Float64,
	vote LowCardinality(String),
	vote_confidence Float64,
	fused Float64,
	weight_statistical Float64,
	weight_llm Float64,
	rejection LowCardinality(String)
) ENGINE = MergeTree
ORDER BY (ts, run_id, pair)`, db),
	}
}
