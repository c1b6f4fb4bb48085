package models

import "time"

// PipelineState is the selector's current stage.
type PipelineState string

const (
	StateIdle         PipelineState = "IDLE"
	StateDiscovering  PipelineState = "DISCOVERING"
	StateScoring      PipelineState = "SCORING"
	StateShortlisting PipelineState = "SHORTLISTING"
	StateVoting       PipelineState = "VOTING"
	StateFusing       PipelineState = "FUSING"
	StateFinalizing   PipelineState = "FINALIZING"
)

// SchedulerStatus is a snapshot of the selection scheduler.
type SchedulerStatus struct {
	Running         bool          `json:"running"`
	InFlight        bool          `json:"in_flight"`
	PipelineState   PipelineState `json:"pipeline_state"`
	Interval        time.Duration `json:"interval"`
	StartedAt       time.Time     `json:"started_at,omitempty"`
	LastRunAt       time.Time     `json:"last_run_at,omitempty"`
	LastDuration    time.Duration `json:"last_duration"`
	NextRunAt       time.Time     `json:"next_run_at,omitempty"`
	LastSelectionID string        `json:"last_selection_id,omitempty"`
	LastError       string        `json:"last_error,omitempty"`
	RunCount        int           `json:"run_count"`
	FailureCount    int           `json:"failure_count"`
	TriggerPending  bool          `json:"trigger_pending"`
}
