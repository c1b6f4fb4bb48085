package models

import "time"

// Requests for the selection HTTP endpoints.

type HistoryRequest struct {
	Limit int `query:"limit" json:"limit" default:"20" validate:"gte=1,lte=500"`
}

type SelectionIDRequest struct {
	ID string `param:"id" json:"id" validate:"required,startswith=sel_"`
}

type InvalidateUniverseRequest struct {
	Key string `query:"key" json:"key" validate:"omitempty,max=128"`
}

// Responses.

type TriggerResponse struct {
	Queued bool `json:"queued"`
}

type WeightsResponse struct {
	State    ThompsonWeightState `json:"state"`
	Expected FusionWeights       `json:"expected"`
}

type CachedUniverseView struct {
	Pairs     []string  `json:"pairs"`
	WrittenAt time.Time `json:"written_at"`
}

type UniverseResponse struct {
	WhitelistMode bool                          `json:"whitelist_mode"`
	Whitelist     []string                      `json:"whitelist"`
	TTLHours      float64                       `json:"ttl_hours"`
	Cached        map[string]CachedUniverseView `json:"cached"`
}
