package testutil

import (
	"time"

	"github.com/google/uuid"

	consentmodels "compliance/internal/consent/models"
	grievancemodels "compliance/internal/grievance/models"
	vmodels "compliance/internal/verification/models"
	id "compliance/pkg/domain"
)

// TestIDs provides convenient pre-generated IDs for tests.
// Use these for deterministic test data.
var TestIDs = struct {
	Student1  id.StudentID
	Student2  id.StudentID
	Guardian1 id.ActorID
	Guardian2 id.ActorID
	Staff1    id.ActorID
	Admin1    id.ActorID
}{
	Student1:  id.StudentID(uuid.MustParse("11111111-1111-1111-1111-111111111111")),
	Student2:  id.StudentID(uuid.MustParse("22222222-2222-2222-2222-222222222222")),
	Guardian1: id.ActorID("guardian-1"),
	Guardian2: id.ActorID("guardian-2"),
	Staff1:    id.ActorID("staff-1"),
	Admin1:    id.ActorID("admin-1"),
}

// FixedTime is the reference instant used by builders.
var FixedTime = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

// ConsentBuilder provides a fluent interface for building consent records.
type ConsentBuilder struct {
	record *consentmodels.Record
}

// NewConsentBuilder creates a REQUESTED record for Student1 and ANALYTICS.
func NewConsentBuilder() *ConsentBuilder {
	return &ConsentBuilder{
		record: consentmodels.NewRecord(TestIDs.Student1, "ANALYTICS", vmodels.MethodEmailOTP, TestIDs.Guardian1, FixedTime),
	}
}

func (b *ConsentBuilder) WithID(consentID id.ConsentID) *ConsentBuilder {
	b.record.ID = consentID
	return b
}

func (b *ConsentBuilder) ForStudent(studentID id.StudentID) *ConsentBuilder {
	b.record.StudentID = studentID
	return b
}

func (b *ConsentBuilder) ForPurpose(code string) *ConsentBuilder {
	b.record.PurposeCode = code
	return b
}

func (b *ConsentBuilder) RequestedBy(actorID id.ActorID) *ConsentBuilder {
	b.record.RequestedBy = actorID
	return b
}

func (b *ConsentBuilder) WithChallenge(challengeID id.ChallengeID) *ConsentBuilder {
	_ = b.record.MarkChallengeSent(challengeID, b.record.VerificationMethod, b.record.CreatedAt)
	return b
}

// Granted moves the record through CHALLENGE_SENT to GRANTED.
func (b *ConsentBuilder) Granted(at time.Time) *ConsentBuilder {
	if b.record.ChallengeID == nil {
		b.WithChallenge(id.NewChallengeID())
	}
	_ = b.record.Grant(at)
	return b
}

func (b *ConsentBuilder) Withdrawn(reason string, at time.Time) *ConsentBuilder {
	if b.record.Status != consentmodels.StatusGranted {
		b.Granted(at)
	}
	_ = b.record.Withdraw(reason, at)
	return b
}

func (b *ConsentBuilder) Build() *consentmodels.Record {
	return b.record
}

// GrievanceBuilder provides a fluent interface for building grievances.
type GrievanceBuilder struct {
	grievance *grievancemodels.Grievance
}

// NewGrievanceBuilder creates a SUBMITTED MEDIUM grievance filed by
// Guardian1 about Student1 at FixedTime.
func NewGrievanceBuilder() *GrievanceBuilder {
	student := TestIDs.Student1
	return &GrievanceBuilder{
		grievance: grievancemodels.NewGrievance(TestIDs.Guardian1, &student,
			grievancemodels.CategoryConsentViolation, grievancemodels.SeverityMedium,
			"Photos shared without consent", "Class photos appeared on a public page.", FixedTime),
	}
}

func (b *GrievanceBuilder) FiledBy(actorID id.ActorID) *GrievanceBuilder {
	b.grievance.FiledBy = actorID
	return b
}

func (b *GrievanceBuilder) WithSeverity(severity grievancemodels.Severity) *GrievanceBuilder {
	b.grievance.Severity = severity
	return b
}

func (b *GrievanceBuilder) FiledAt(at time.Time) *GrievanceBuilder {
	b.grievance.FiledAt = at
	return b
}

func (b *GrievanceBuilder) Acknowledged(at time.Time) *GrievanceBuilder {
	_ = b.grievance.Acknowledge(at)
	return b
}

// Resolved acknowledges first when needed.
func (b *GrievanceBuilder) Resolved(notes string, at time.Time) *GrievanceBuilder {
	if b.grievance.AcknowledgedAt == nil {
		b.Acknowledged(at)
	}
	_ = b.grievance.Resolve(notes, at)
	return b
}

func (b *GrievanceBuilder) Build() *grievancemodels.Grievance {
	return b.grievance
}
