// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"github.com/google/uuid"

	dErrors "compliance/pkg/domain-errors"
)

// Distinct ID types - compiler prevents passing a StudentID where a ConsentID is expected.
type (
	StudentID   uuid.UUID
	ConsentID   uuid.UUID
	ChallengeID uuid.UUID
	GrievanceID uuid.UUID
	CommentID   uuid.UUID
)

// ActorID identifies an authenticated caller. The parent portal owns identity,
// so the value is opaque to this service (usually the JWT subject).
type ActorID string

// Parse functions - use at trust boundaries (handlers, API inputs).

func ParseStudentID(s string) (StudentID, error) {
	id, err := parseUUID(s, "student ID")
	return StudentID(id), err
}

func ParseConsentID(s string) (ConsentID, error) {
	id, err := parseUUID(s, "consent ID")
	return ConsentID(id), err
}

func ParseChallengeID(s string) (ChallengeID, error) {
	id, err := parseUUID(s, "challenge ID")
	return ChallengeID(id), err
}

func ParseGrievanceID(s string) (GrievanceID, error) {
	id, err := parseUUID(s, "grievance ID")
	return GrievanceID(id), err
}

func ParseActorID(s string) (ActorID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "actor ID cannot be empty")
	}
	return ActorID(s), nil
}

// String methods - for logging and debugging.

func (id StudentID) String() string   { return uuid.UUID(id).String() }
func (id ConsentID) String() string   { return uuid.UUID(id).String() }
func (id ChallengeID) String() string { return uuid.UUID(id).String() }
func (id GrievanceID) String() string { return uuid.UUID(id).String() }
func (id CommentID) String() string   { return uuid.UUID(id).String() }
func (id ActorID) String() string     { return string(id) }

// IsNil checks - used for service-layer validation.

func (id StudentID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id ConsentID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id ChallengeID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id GrievanceID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id CommentID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id ActorID) IsNil() bool     { return id == "" }

// New* constructors generate random (v4) identifiers.

func NewConsentID() ConsentID     { return ConsentID(uuid.New()) }
func NewChallengeID() ChallengeID { return ChallengeID(uuid.New()) }
func NewGrievanceID() GrievanceID { return GrievanceID(uuid.New()) }
func NewCommentID() CommentID     { return CommentID(uuid.New()) }

// parseUUID is the shared validation logic. Nil UUIDs are rejected here because
// no record in this service is ever keyed by the zero value.
func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, label+" cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, "invalid "+label+" format")
	}
	if id == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, "invalid "+label+" format")
	}
	return id, nil
}
