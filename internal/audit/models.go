// Package audit records an append-only trail of compliance-relevant actions:
// consent lifecycle changes, verification failures and grievance transitions.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Event is emitted from domain logic. It is transport-agnostic so stores can
// be swapped without touching services.
type Event struct {
	ID           uuid.UUID
	OccurredAt   time.Time
	Action       Action
	ActorID      string
	ActorRole    string
	ResourceType ResourceType
	ResourceID   string
	StudentID    string
	Purpose      string
	Decision     string
	Reason       string
	RequestID    string
	ClientDevice string
	IPPrefix     string
}

type Action string

const (
	ActionConsentRequested   Action = "consent_requested"
	ActionConsentGranted     Action = "consent_granted"
	ActionConsentWithdrawn   Action = "consent_withdrawn"
	ActionVerificationFailed Action = "verification_failed"
	ActionChallengeIssued    Action = "challenge_issued"

	ActionGrievanceFiled         Action = "grievance_filed"
	ActionGrievanceAcknowledged  Action = "grievance_acknowledged"
	ActionGrievanceReviewStarted Action = "grievance_review_started"
	ActionGrievanceResolved      Action = "grievance_resolved"
	ActionGrievanceClosed        Action = "grievance_closed"
	ActionGrievanceReopened      Action = "grievance_reopened"
	ActionGrievanceCommented     Action = "grievance_commented"
	ActionGrievanceEscalated     Action = "grievance_escalated"
)

type ResourceType string

const (
	ResourceConsent   ResourceType = "consent"
	ResourceGrievance ResourceType = "grievance"
)

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	ResourceType ResourceType
	ResourceID   string
	StudentID    string
	Action       Action
	Limit        int
}

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

func (f Filter) limit() int {
	switch {
	case f.Limit <= 0:
		return DefaultListLimit
	case f.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return f.Limit
	}
}

func (f Filter) matches(e Event) bool {
	if f.ResourceType != "" && e.ResourceType != f.ResourceType {
		return false
	}
	if f.ResourceID != "" && e.ResourceID != f.ResourceID {
		return false
	}
	if f.StudentID != "" && e.StudentID != f.StudentID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	return true
}
