package repository

// NopMetrics discards all telemetry.
type NopMetrics struct{}

func (NopMetrics) RecordRun(string)                       {}
func (NopMetrics) RecordStage(string, float64)            {}
func (NopMetrics) RecordCandidates(string, int)           {}
func (NopMetrics) RecordError(string)                     {}
func (NopMetrics) RecordWeights(string, float64, float64) {}
func (NopMetrics) RecordLatency(string, float64)          {}

var _ Metrics = NopMetrics{}
