package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for consent operations.
type Metrics struct {
	ConsentsRequested    *prometheus.CounterVec
	ConsentsGranted      *prometheus.CounterVec
	ConsentsWithdrawn    *prometheus.CounterVec
	VerificationFailures *prometheus.CounterVec
	ConsentGrantLatency  prometheus.Histogram
	TimeToConsent        prometheus.Histogram
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ConsentsRequested: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_consents_requested_total",
			Help: "Total number of consent requests, labeled by purpose",
		}, []string{"purpose"}),
		ConsentsGranted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_consents_granted_total",
			Help: "Total number of consents granted, labeled by purpose",
		}, []string{"purpose"}),
		ConsentsWithdrawn: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_consents_withdrawn_total",
			Help: "Total number of consents withdrawn, labeled by purpose",
		}, []string{"purpose"}),
		VerificationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_consent_verification_failures_total",
			Help: "Total number of rejected grant attempts, labeled by reason",
		}, []string{"reason"}),
		ConsentGrantLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "compliance_consent_grant_latency_seconds",
			Help:    "Latency of consent grant operations in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		TimeToConsent: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "compliance_consent_time_to_grant_seconds",
			Help:    "Time from consent request to grant in seconds",
			Buckets: []float64{10, 30, 60, 120, 300, 900, 3600, 86400},
		}),
	}
}

func (m *Metrics) IncrementRequested(purpose string) {
	m.ConsentsRequested.WithLabelValues(purpose).Inc()
}

func (m *Metrics) IncrementGranted(purpose string) {
	m.ConsentsGranted.WithLabelValues(purpose).Inc()
}

func (m *Metrics) IncrementWithdrawn(purpose string) {
	m.ConsentsWithdrawn.WithLabelValues(purpose).Inc()
}

func (m *Metrics) IncrementVerificationFailure(reason string) {
	m.VerificationFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveGrantLatency(seconds float64) {
	m.ConsentGrantLatency.Observe(seconds)
}

func (m *Metrics) ObserveTimeToConsent(seconds float64) {
	m.TimeToConsent.Observe(seconds)
}
