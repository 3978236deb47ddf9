// Package tracer is a small tracing abstraction so services can emit spans
// without importing OpenTelemetry directly.
//
// Implementations:
//   - Noop: tests
//   - OTel: OpenTelemetry adapter backed by the global provider
package tracer

import (
	"context"
	"time"
)

// Span is an active trace span. End must be called exactly once.
type Span interface {
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute { return Attribute{Key: key, Value: value} }

func Bool(key string, value bool) Attribute { return Attribute{Key: key, Value: value} }

func Int(key string, value int) Attribute { return Attribute{Key: key, Value: value} }

// Duration records value in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// Span names.
const (
	SpanChallengeIssue    = "verification.issue"
	SpanChallengeValidate = "verification.validate"
	SpanConsentRequest    = "consent.request"
	SpanConsentGrant      = "consent.grant"
	SpanConsentWithdraw   = "consent.withdraw"
	SpanGrievanceFile     = "grievance.file"
	SpanGrievanceTransit  = "grievance.transition"
	SpanSLASweep          = "sla.sweep"
)

// Attribute keys.
const (
	AttrConsentID   = "consent.id"
	AttrChallengeID = "challenge.id"
	AttrMethod      = "verification.method"
	AttrPurpose     = "consent.purpose"
	AttrReason      = "verification.reason"
	AttrGrievanceID = "grievance.id"
	AttrTransition  = "grievance.transition"
	AttrSeverity    = "grievance.severity"
	AttrOpenCount   = "sla.open_grievances"
	AttrEscalations = "sla.escalations"
)
