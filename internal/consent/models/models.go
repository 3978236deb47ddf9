// Package models holds the consent purpose catalog and consent records.
package models

import (
	"fmt"
	"time"

	vmodels "compliance/internal/verification/models"
	id "compliance/pkg/domain"
)

// Category groups purposes by the kind of processing they cover.
type Category string

const (
	CategoryEducational    Category = "EDUCATIONAL"
	CategoryAdministrative Category = "ADMINISTRATIVE"
	CategoryCommunication  Category = "COMMUNICATION"
	CategoryHealth         Category = "HEALTH"
	CategoryFinancial      Category = "FINANCIAL"
	CategoryAnalytics      Category = "ANALYTICS"
	CategoryThirdParty     Category = "THIRD_PARTY"
)

func (c Category) IsValid() bool {
	switch c {
	case CategoryEducational, CategoryAdministrative, CategoryCommunication,
		CategoryHealth, CategoryFinancial, CategoryAnalytics, CategoryThirdParty:
		return true
	}
	return false
}

// Purpose is a named reason personal data may be processed.
// Mandatory purposes can never be withdrawn.
type Purpose struct {
	Code                string   `yaml:"code"                  json:"code"`
	Name                string   `yaml:"name"                  json:"name"`
	Description         string   `yaml:"description"           json:"description,omitempty"`
	Category            Category `yaml:"category"              json:"category"`
	IsMandatory         bool     `yaml:"is_mandatory"          json:"is_mandatory"`
	RetentionPeriodDays int      `yaml:"retention_period_days" json:"retention_period_days"`
	LegalBasis          string   `yaml:"legal_basis"           json:"legal_basis"`
}

// Status is the lifecycle state of one consent record.
type Status string

const (
	StatusRequested     Status = "REQUESTED"
	StatusChallengeSent Status = "CHALLENGE_SENT"
	StatusGranted       Status = "GRANTED"
	StatusWithdrawn     Status = "WITHDRAWN"
)

// IsPending reports whether the record is still waiting for verification.
func (s Status) IsPending() bool {
	return s == StatusRequested || s == StatusChallengeSent
}

// Record is one consent decision for a (student, purpose) pair. Records are
// never deleted; a request after withdrawal creates a new record that
// points at the withdrawn one through Supersedes.
type Record struct {
	ID                 id.ConsentID
	StudentID          id.StudentID
	PurposeCode        string
	VerificationMethod vmodels.Method
	Status             Status
	ChallengeID        *id.ChallengeID
	ConsentGiven       bool
	ConsentDate        *time.Time
	Withdrawn          bool
	WithdrawnAt        *time.Time
	WithdrawalReason   string
	RequestedBy        id.ActorID
	Supersedes         *id.ConsentID
	CreatedAt          time.Time
	UpdatedAt          time.Time
	Version            int
}

// NewRecord starts a record in REQUESTED.
func NewRecord(studentID id.StudentID, purposeCode string, method vmodels.Method, requestedBy id.ActorID, now time.Time) *Record {
	return &Record{
		ID:                 id.NewConsentID(),
		StudentID:          studentID,
		PurposeCode:        purposeCode,
		VerificationMethod: method,
		Status:             StatusRequested,
		RequestedBy:        requestedBy,
		CreatedAt:          now,
		UpdatedAt:          now,
		Version:            1,
	}
}

// MarkChallengeSent records the live challenge. Legal from REQUESTED and
// CHALLENGE_SENT (a re-issue).
func (r *Record) MarkChallengeSent(challengeID id.ChallengeID, method vmodels.Method, now time.Time) error {
	if !r.Status.IsPending() {
		return fmt.Errorf("cannot send challenge from %s", r.Status)
	}
	r.ChallengeID = &challengeID
	r.VerificationMethod = method
	r.Status = StatusChallengeSent
	r.touch(now)
	return nil
}

// Grant moves CHALLENGE_SENT to GRANTED.
func (r *Record) Grant(now time.Time) error {
	if r.Status != StatusChallengeSent {
		return fmt.Errorf("cannot grant from %s", r.Status)
	}
	r.Status = StatusGranted
	r.ConsentGiven = true
	r.ConsentDate = &now
	r.touch(now)
	return nil
}

// Withdraw moves GRANTED to WITHDRAWN. The caller enforces the mandatory rule.
func (r *Record) Withdraw(reason string, now time.Time) error {
	if r.Status != StatusGranted {
		return fmt.Errorf("cannot withdraw from %s", r.Status)
	}
	r.Status = StatusWithdrawn
	r.ConsentGiven = false
	r.Withdrawn = true
	r.WithdrawnAt = &now
	r.WithdrawalReason = reason
	r.touch(now)
	return nil
}

func (r *Record) touch(now time.Time) {
	r.UpdatedAt = now
	r.Version++
}

// Clone returns a deep copy so stores never share pointers with callers.
func (r *Record) Clone() *Record {
	cp := *r
	if r.ChallengeID != nil {
		v := *r.ChallengeID
		cp.ChallengeID = &v
	}
	if r.ConsentDate != nil {
		v := *r.ConsentDate
		cp.ConsentDate = &v
	}
	if r.WithdrawnAt != nil {
		v := *r.WithdrawnAt
		cp.WithdrawnAt = &v
	}
	if r.Supersedes != nil {
		v := *r.Supersedes
		cp.Supersedes = &v
	}
	return &cp
}

// View is the derived status a caller sees for a (student, purpose) pair.
type View string

const (
	ViewNotRequested View = "NOT_REQUESTED"
	ViewPending      View = "PENDING"
	ViewGranted      View = "GRANTED"
	ViewWithdrawn    View = "WITHDRAWN"
)

// ViewOf derives the view from the latest record, which may be nil.
func ViewOf(latest *Record) View {
	if latest == nil {
		return ViewNotRequested
	}
	switch latest.Status {
	case StatusGranted:
		return ViewGranted
	case StatusWithdrawn:
		return ViewWithdrawn
	default:
		return ViewPending
	}
}
