package models

import "time"

// Candle represents one OHLCV bar for a pair at the configured granularity.
type Candle struct {
	Bucket time.Time `json:"bucket"`
	Pair   string    `json:"pair"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}
