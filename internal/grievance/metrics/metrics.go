package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for grievance handling.
type Metrics struct {
	GrievancesFiled   *prometheus.CounterVec
	Transitions       *prometheus.CounterVec
	CommentsAdded     *prometheus.CounterVec
	TimeToAcknowledge prometheus.Histogram
	TimeToResolution  *prometheus.HistogramVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		GrievancesFiled: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_grievances_filed_total",
			Help: "Total number of grievances filed, labeled by category and severity",
		}, []string{"category", "severity"}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_grievance_transitions_total",
			Help: "Total number of grievance status changes, labeled by target status",
		}, []string{"status"}),
		CommentsAdded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_grievance_comments_total",
			Help: "Total number of grievance comments, labeled by author role",
		}, []string{"role"}),
		TimeToAcknowledge: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "compliance_grievance_time_to_acknowledge_hours",
			Help:    "Hours from filing to acknowledgment",
			Buckets: []float64{1, 4, 8, 12, 24, 48, 72},
		}),
		TimeToResolution: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "compliance_grievance_time_to_resolution_hours",
			Help:    "Hours from filing to resolution, labeled by severity",
			Buckets: []float64{4, 24, 48, 72, 168, 336, 720},
		}, []string{"severity"}),
	}
}

func (m *Metrics) IncrementFiled(category, severity string) {
	m.GrievancesFiled.WithLabelValues(category, severity).Inc()
}

func (m *Metrics) IncrementTransition(status string) {
	m.Transitions.WithLabelValues(status).Inc()
}

func (m *Metrics) IncrementComment(role string) {
	m.CommentsAdded.WithLabelValues(role).Inc()
}

func (m *Metrics) ObserveAcknowledge(hours float64) {
	m.TimeToAcknowledge.Observe(hours)
}

func (m *Metrics) ObserveResolution(severity string, hours float64) {
	m.TimeToResolution.WithLabelValues(severity).Observe(hours)
}
