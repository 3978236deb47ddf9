package sla

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"compliance/internal/audit"
	"compliance/internal/grievance/models"
	"compliance/internal/platform/kafka/producer"
	"compliance/pkg/platform/circuit"
)

// Escalation is emitted when a grievance enters a breach classification.
type Escalation struct {
	GrievanceID  string          `json:"grievance_id"`
	PublicID     string          `json:"public_id"`
	Category     models.Category `json:"category"`
	Severity     models.Severity `json:"severity"`
	Status       models.Status   `json:"status"`
	Kind         Kind            `json:"kind"`
	ElapsedHours int             `json:"elapsed_hours"`
	FiledAt      time.Time       `json:"filed_at"`
	DetectedAt   time.Time       `json:"detected_at"`
	Previous     Kind            `json:"previous,omitempty"`
}

func newEscalation(g *models.Grievance, st Status, prev Kind, now time.Time) Escalation {
	return Escalation{
		GrievanceID:  g.ID.String(),
		PublicID:     g.PublicID,
		Category:     g.Category,
		Severity:     g.Severity,
		Status:       g.Status,
		Kind:         st.Kind,
		ElapsedHours: st.Hours,
		FiledAt:      g.FiledAt,
		DetectedAt:   now,
		Previous:     prev,
	}
}

// Escalator delivers escalations to the alerting collaborator.
type Escalator interface {
	Escalate(ctx context.Context, e Escalation) error
}

// Publisher is the subset of the Kafka producer the escalator needs.
type Publisher interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// KafkaEscalator publishes escalations keyed by grievance so one
// grievance's events stay ordered within a partition.
type KafkaEscalator struct {
	publisher Publisher
	topic     string
}

func NewKafkaEscalator(publisher Publisher, topic string) *KafkaEscalator {
	return &KafkaEscalator{publisher: publisher, topic: topic}
}

func (k *KafkaEscalator) Escalate(ctx context.Context, e Escalation) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal escalation: %w", err)
	}
	return k.publisher.Produce(ctx, &producer.Message{
		Topic: k.topic,
		Key:   []byte(e.GrievanceID),
		Value: payload,
		Headers: map[string]string{
			"event_type": "grievance.sla." + string(e.Kind),
			"severity":   string(e.Severity),
		},
	})
}

// LogEscalator writes escalations to the log when no broker is configured.
type LogEscalator struct {
	logger *slog.Logger
}

func NewLogEscalator(logger *slog.Logger) *LogEscalator {
	return &LogEscalator{logger: logger}
}

func (l *LogEscalator) Escalate(ctx context.Context, e Escalation) error {
	l.logger.WarnContext(ctx, "grievance SLA breached",
		"grievance_id", e.GrievanceID,
		"public_id", e.PublicID,
		"severity", e.Severity,
		"kind", e.Kind,
		"elapsed_hours", e.ElapsedHours,
	)
	return nil
}

// ResilientEscalator delivers through primary and switches to fallback
// while the breaker is open. The primary is still attempted on every call
// so the breaker can observe recovery.
type ResilientEscalator struct {
	primary  Escalator
	fallback Escalator
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

func NewResilientEscalator(primary, fallback Escalator, breaker *circuit.Breaker, logger *slog.Logger) *ResilientEscalator {
	return &ResilientEscalator{primary: primary, fallback: fallback, breaker: breaker, logger: logger}
}

func (r *ResilientEscalator) Escalate(ctx context.Context, e Escalation) error {
	err := r.primary.Escalate(ctx, e)
	if err == nil {
		if _, change := r.breaker.RecordSuccess(); change.Closed {
			r.logger.InfoContext(ctx, "escalation circuit closed", "circuit", r.breaker.Name())
		}
		return nil
	}

	fallback, change := r.breaker.RecordFailure()
	if change.Opened {
		r.logger.ErrorContext(ctx, "escalation circuit opened", "circuit", r.breaker.Name(), "error", err)
	}
	if !fallback {
		return err
	}
	if ferr := r.fallback.Escalate(ctx, e); ferr != nil {
		return errors.Join(err, ferr)
	}
	r.logger.WarnContext(ctx, "escalation delivered via fallback",
		"circuit", r.breaker.Name(),
		"grievance_id", e.GrievanceID,
		"kind", e.Kind,
	)
	return nil
}

// Auditor records escalations in the audit trail.
type Auditor interface {
	Emit(ctx context.Context, event audit.Event) error
}

// AuditedEscalator records every delivered escalation. Audit failures are
// logged and do not fail the delivery.
type AuditedEscalator struct {
	next    Escalator
	auditor Auditor
	logger  *slog.Logger
}

func NewAuditedEscalator(next Escalator, auditor Auditor, logger *slog.Logger) *AuditedEscalator {
	return &AuditedEscalator{next: next, auditor: auditor, logger: logger}
}

func (a *AuditedEscalator) Escalate(ctx context.Context, e Escalation) error {
	if err := a.next.Escalate(ctx, e); err != nil {
		return err
	}
	err := a.auditor.Emit(ctx, audit.Event{
		OccurredAt:   e.DetectedAt,
		Action:       audit.ActionGrievanceEscalated,
		ActorID:      "system",
		ResourceType: audit.ResourceGrievance,
		ResourceID:   e.GrievanceID,
		Decision:     string(e.Kind),
		Reason:       fmt.Sprintf("%dh elapsed, severity %s", e.ElapsedHours, e.Severity),
	})
	if err != nil {
		a.logger.WarnContext(ctx, "failed to audit escalation", "error", err, "grievance_id", e.GrievanceID)
	}
	return nil
}
