package models

import "time"

// PairMetadata carries the market-quality facts the discovery filter checks.
type PairMetadata struct {
	Pair           string    `json:"pair"`
	Volume24h      float64   `json:"volume_24h"`
	ListedAt       time.Time `json:"listed_at"`
	SpreadBps      float64   `json:"spread_bps"`
	DepthUSD       float64   `json:"depth_usd"`
	VenueCount     int       `json:"venue_count"`
	SuspicionScore float64   `json:"suspicion_score"`
}

// RejectionReason explains why the filter dropped a discovered pair.
type RejectionReason string

const (
	RejectNotInWhitelist RejectionReason = "NOT_IN_WHITELIST"
	RejectNoMetadata     RejectionReason = "NO_METADATA"
	RejectLowVolume      RejectionReason = "LOW_VOLUME"
	RejectTooNew         RejectionReason = "TOO_NEW"
	RejectWideSpread     RejectionReason = "WIDE_SPREAD"
	RejectShallowDepth   RejectionReason = "SHALLOW_DEPTH"
	RejectFewVenues      RejectionReason = "FEW_VENUES"
	RejectSuspicious     RejectionReason = "SUSPICIOUS"
)

// FilterResult is the outcome of one filter pass.
type FilterResult struct {
	Accepted []string                   `json:"accepted"`
	Rejected map[string]RejectionReason `json:"rejected"`
	Promoted []string                   `json:"promoted,omitempty"`
}
