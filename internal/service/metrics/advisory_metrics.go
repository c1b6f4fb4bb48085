package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	AdvisoryLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pairpilot",
			Subsystem: "advisory",
			Name:      "latency_seconds",
			Help:      "Latency of advisory provider queries",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		},
		[]string{"provider"},
	)

	AdvisoryErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pairpilot",
			Subsystem: "advisory",
			Name:      "errors_total",
			Help:      "Advisory provider failures by reason",
		},
		[]string{"provider", "reason"},
	)

	AdvisoryBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "pairpilot",
			Subsystem: "advisory",
			Name:      "breaker_state",
			Help:      "Circuit breaker state per provider (0 closed, 1 half-open, 2 open)",
		},
		[]string{"provider"},
	)
)

// Register adds the advisory collectors to reg once per process.
func Register(reg prometheus.Registerer) {
	once.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		reg.MustRegister(AdvisoryLatency, AdvisoryErrors, AdvisoryBreakerState)
	})
}
