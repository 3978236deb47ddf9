package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for verification challenges.
type Metrics struct {
	ChallengesIssued   *prometheus.CounterVec
	ValidationOutcomes *prometheus.CounterVec
	DispatchFailures   *prometheus.CounterVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ChallengesIssued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_verification_challenges_issued_total",
			Help: "Total number of verification challenges issued, labeled by method",
		}, []string{"method"}),
		ValidationOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_verification_validations_total",
			Help: "Total number of validation attempts, labeled by outcome",
		}, []string{"outcome"}),
		DispatchFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_verification_dispatch_failures_total",
			Help: "Total number of code deliveries the sender rejected, labeled by method",
		}, []string{"method"}),
	}
}

func (m *Metrics) IncrementIssued(method string) {
	m.ChallengesIssued.WithLabelValues(method).Inc()
}

// ObserveValidation records "ok" or the lower-cased failure reason.
func (m *Metrics) ObserveValidation(outcome string) {
	m.ValidationOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementDispatchFailure(method string) {
	m.DispatchFailures.WithLabelValues(method).Inc()
}
