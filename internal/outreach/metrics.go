package outreach

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds outreach counters. A nil registry yields unregistered collectors.
type Metrics struct {
	outcomes      *prometheus.CounterVec
	ineligible    *prometheus.CounterVec
	sweepRuns     prometheus.Counter
	sweepSelected prometheus.Counter
	sweepDuration prometheus.Histogram
}

// NewMetrics creates outreach metrics registered on reg (may be nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "outreach_session_outcomes_total",
			Help: "Engagement sessions by terminal outcome",
		}, []string{"outcome"}),
		ineligible: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "outreach_ineligible_total",
			Help: "Engagement sessions skipped, by reason",
		}, []string{"reason"}),
		sweepRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "outreach_sweep_runs_total",
			Help: "Completed sweep ticks",
		}),
		sweepSelected: factory.NewCounter(prometheus.CounterOpts{
			Name: "outreach_sweep_selected_total",
			Help: "Members selected for engagement by the sweep",
		}),
		sweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "outreach_sweep_duration_seconds",
			Help:    "Wall time of one sweep tick",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
	}
}

func (m *Metrics) observeResult(res Result) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(string(res.Outcome)).Inc()
	if res.Outcome == OutcomeIneligible {
		m.ineligible.WithLabelValues(string(res.Reason)).Inc()
	}
}
