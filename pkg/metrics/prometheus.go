package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	runsTotal   *prometheus.CounterVec
	stageTime   *prometheus.HistogramVec
	candidates  *prometheus.GaugeVec
	errorsTotal *prometheus.CounterVec
	weightAlpha *prometheus.GaugeVec
	weightBeta  *prometheus.GaugeVec
	latency     *prometheus.HistogramVec
}

// New creates a recorder registered on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered on reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not panic.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		runsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pairpilot_selection_runs_total",
				Help: "Total number of selection runs by outcome",
			},
			[]string{"status"},
		),
		stageTime: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pairpilot_stage_duration_seconds",
				Help:    "Duration of pipeline stages in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		candidates: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pairpilot_candidates",
				Help: "Number of candidates surviving each stage of the last run",
			},
			[]string{"stage"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pairpilot_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		weightAlpha: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pairpilot_thompson_alpha",
				Help: "Beta posterior alpha per fusion component",
			},
			[]string{"component"},
		),
		weightBeta: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pairpilot_thompson_beta",
				Help: "Beta posterior beta per fusion component",
			},
			[]string{"component"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pairpilot_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordRun counts a finished selection run.
func (r *Recorder) RecordRun(status string) {
	r.runsTotal.WithLabelValues(status).Inc()
}

// RecordStage records how long a pipeline stage took.
func (r *Recorder) RecordStage(stage string, seconds float64) {
	r.stageTime.WithLabelValues(stage).Observe(seconds)
}

// RecordCandidates records the candidate count after a stage.
func (r *Recorder) RecordCandidates(stage string, n int) {
	r.candidates.WithLabelValues(stage).Set(float64(n))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordWeights records the posterior parameters of one component.
func (r *Recorder) RecordWeights(component string, alpha, beta float64) {
	r.weightAlpha.WithLabelValues(component).Set(alpha)
	r.weightBeta.WithLabelValues(component).Set(beta)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
