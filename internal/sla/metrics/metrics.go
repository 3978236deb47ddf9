package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for the SLA sweeper.
type Metrics struct {
	Escalations     *prometheus.CounterVec
	EscalationFails prometheus.Counter
	SweepDuration   prometheus.Histogram
	OpenByKind      *prometheus.GaugeVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Escalations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_sla_escalations_total",
			Help: "Total number of SLA escalations emitted, labeled by breach kind",
		}, []string{"kind"}),
		EscalationFails: f.NewCounter(prometheus.CounterOpts{
			Name: "compliance_sla_escalation_failures_total",
			Help: "Total number of escalations that could not be delivered",
		}),
		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "compliance_sla_sweep_duration_seconds",
			Help:    "Duration of one SLA sweep in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		OpenByKind: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "compliance_sla_open_grievances",
			Help: "Open grievances at the last sweep, labeled by SLA classification",
		}, []string{"kind"}),
	}
}

func (m *Metrics) IncrementEscalation(kind string) {
	m.Escalations.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncrementEscalationFailure() {
	m.EscalationFails.Inc()
}

func (m *Metrics) ObserveSweep(seconds float64) {
	m.SweepDuration.Observe(seconds)
}

// SetOpen replaces the per-kind gauge values from one sweep.
func (m *Metrics) SetOpen(counts map[string]int) {
	m.OpenByKind.Reset()
	for kind, n := range counts {
		m.OpenByKind.WithLabelValues(kind).Set(float64(n))
	}
}
