package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"PairPilot/internal/domain/models"
)

func TestReverseCandles(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := []models.Candle{{Bucket: base.Add(2 * time.Hour)}, {Bucket: base.Add(time.Hour)}, {Bucket: base}}
	reverseCandles(c)
	assert.Equal(t, base, c[0].Bucket)
	assert.Equal(t, base.Add(2*time.Hour), c[2].Bucket)

	reverseCandles(nil)
}

func TestQueriesTargetDatabase(t *testing.T) {
	assert.Contains(t, latestCandlesQuery("pp"), "FROM pp.candles FINAL")
	assert.Contains(t, latestCandlesQuery("pp"), "ORDER BY bucket DESC")
	assert.Contains(t, discoverQuery("pp"), "FROM pp.candles")
	assert.Contains(t, metadataQuery("pp"), "FROM pp.pair_metadata FINAL")
	assert.Contains(t, metadataQuery("pp"), "IN (?)")
}
