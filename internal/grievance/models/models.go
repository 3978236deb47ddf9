package models

import (
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	id "compliance/pkg/domain"
)

// Category classifies what a grievance is about.
type Category string

const (
	CategoryConsentViolation   Category = "CONSENT_VIOLATION"
	CategoryDataBreach         Category = "DATA_BREACH"
	CategoryUnauthorizedAccess Category = "UNAUTHORIZED_ACCESS"
	CategoryDataInaccuracy     Category = "DATA_INACCURACY"
	CategoryRetentionViolation Category = "RETENTION_VIOLATION"
	CategoryOther              Category = "OTHER"
)

var categories = []Category{
	CategoryConsentViolation,
	CategoryDataBreach,
	CategoryUnauthorizedAccess,
	CategoryDataInaccuracy,
	CategoryRetentionViolation,
	CategoryOther,
}

func (c Category) IsValid() bool { return slices.Contains(categories, c) }

// Severity is fixed at filing time.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Status is the grievance lifecycle state.
type Status string

const (
	StatusSubmitted    Status = "SUBMITTED"
	StatusAcknowledged Status = "ACKNOWLEDGED"
	StatusUnderReview  Status = "UNDER_REVIEW"
	StatusResolved     Status = "RESOLVED"
	StatusClosed       Status = "CLOSED"
)

// OpenStatuses are the states the SLA clock still runs for.
var OpenStatuses = []Status{StatusSubmitted, StatusAcknowledged, StatusUnderReview}

func (s Status) IsValid() bool {
	return s.IsOpen() || s == StatusResolved || s == StatusClosed
}

func (s Status) IsOpen() bool { return slices.Contains(OpenStatuses, s) }

// AuthorRole identifies who wrote a comment.
type AuthorRole string

const (
	RoleFiler  AuthorRole = "FILER"
	RoleAdmin  AuthorRole = "ADMIN"
	RoleSystem AuthorRole = "SYSTEM"
)

func (r AuthorRole) IsValid() bool {
	return r == RoleFiler || r == RoleAdmin || r == RoleSystem
}

// Grievance is one filed complaint and its comment thread.
type Grievance struct {
	ID              id.GrievanceID
	PublicID        string
	StudentID       *id.StudentID
	FiledBy         id.ActorID
	Category        Category
	Subject         string
	Description     string
	Severity        Severity
	Status          Status
	FiledAt         time.Time
	AcknowledgedAt  *time.Time
	ReviewStartedAt *time.Time
	ResolvedAt      *time.Time
	ClosedAt        *time.Time
	ResolutionNotes string
	Comments        []Comment
}

// Comment is immutable once appended.
type Comment struct {
	ID          id.CommentID
	GrievanceID id.GrievanceID
	AuthorID    id.ActorID
	AuthorRole  AuthorRole
	Body        string
	CreatedAt   time.Time
}

// NewGrievance creates a SUBMITTED grievance. Inputs are assumed validated.
func NewGrievance(filedBy id.ActorID, studentID *id.StudentID, category Category, severity Severity, subject, description string, now time.Time) *Grievance {
	gid := id.NewGrievanceID()
	return &Grievance{
		ID:          gid,
		PublicID:    PublicIDFor(gid),
		StudentID:   studentID,
		FiledBy:     filedBy,
		Category:    category,
		Subject:     subject,
		Description: description,
		Severity:    severity,
		Status:      StatusSubmitted,
		FiledAt:     now,
	}
}

// PublicIDFor derives the display reference: GRV- and the first four bytes
// of the UUID in upper-case hex.
func PublicIDFor(gid id.GrievanceID) string {
	u := uuid.UUID(gid)
	return "GRV-" + strings.ToUpper(hex.EncodeToString(u[:4]))
}

// Acknowledge is legal from SUBMITTED only.
func (g *Grievance) Acknowledge(now time.Time) error {
	if g.Status != StatusSubmitted {
		return transitionError(g.Status, StatusAcknowledged)
	}
	at := notBefore(now, g.FiledAt)
	g.AcknowledgedAt = &at
	g.Status = StatusAcknowledged
	return nil
}

// StartReview is legal from ACKNOWLEDGED only.
func (g *Grievance) StartReview(now time.Time) error {
	if g.Status != StatusAcknowledged {
		return transitionError(g.Status, StatusUnderReview)
	}
	at := notBefore(now, *g.AcknowledgedAt)
	g.ReviewStartedAt = &at
	g.Status = StatusUnderReview
	return nil
}

// Resolve is legal from ACKNOWLEDGED or UNDER_REVIEW.
func (g *Grievance) Resolve(notes string, now time.Time) error {
	if g.Status != StatusAcknowledged && g.Status != StatusUnderReview {
		return transitionError(g.Status, StatusResolved)
	}
	at := notBefore(now, *g.AcknowledgedAt)
	g.ResolvedAt = &at
	g.ResolutionNotes = notes
	g.Status = StatusResolved
	return nil
}

// Close is legal from RESOLVED only.
func (g *Grievance) Close(now time.Time) error {
	if g.Status != StatusResolved {
		return transitionError(g.Status, StatusClosed)
	}
	at := notBefore(now, *g.ResolvedAt)
	g.ClosedAt = &at
	g.Status = StatusClosed
	return nil
}

// Reopen moves RESOLVED back to UNDER_REVIEW and clears the resolution.
func (g *Grievance) Reopen(now time.Time) error {
	if g.Status != StatusResolved {
		return fmt.Errorf("cannot reopen from %s", g.Status)
	}
	at := notBefore(now, *g.ResolvedAt)
	g.ReviewStartedAt = &at
	g.ResolvedAt = nil
	g.ResolutionNotes = ""
	g.Status = StatusUnderReview
	return nil
}

// AcceptsCommentFrom reports whether role may still append to the thread.
// Filers lose the right once the grievance is resolved.
func (g *Grievance) AcceptsCommentFrom(role AuthorRole) bool {
	if role != RoleFiler {
		return true
	}
	return g.Status != StatusResolved && g.Status != StatusClosed
}

// AddComment appends to the thread.
func (g *Grievance) AddComment(authorID id.ActorID, role AuthorRole, body string, now time.Time) Comment {
	c := Comment{
		ID:          id.NewCommentID(),
		GrievanceID: g.ID,
		AuthorID:    authorID,
		AuthorRole:  role,
		Body:        body,
		CreatedAt:   now,
	}
	g.Comments = append(g.Comments, c)
	return c
}

// notBefore keeps lifecycle timestamps monotonic under clock skew.
func notBefore(now, floor time.Time) time.Time {
	if now.Before(floor) {
		return floor
	}
	return now
}

func (g *Grievance) Clone() *Grievance {
	if g == nil {
		return nil
	}
	c := *g
	c.StudentID = clonePtr(g.StudentID)
	c.AcknowledgedAt = clonePtr(g.AcknowledgedAt)
	c.ReviewStartedAt = clonePtr(g.ReviewStartedAt)
	c.ResolvedAt = clonePtr(g.ResolvedAt)
	c.ClosedAt = clonePtr(g.ClosedAt)
	c.Comments = slices.Clone(g.Comments)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func transitionError(from, to Status) error {
	return fmt.Errorf("cannot move from %s to %s", from, to)
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Status   Status
	Category Category
	Severity Severity
	FiledBy  id.ActorID
	OpenOnly bool
	Limit    int
}

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// EffectiveLimit clamps the requested page size.
func (f Filter) EffectiveLimit() int {
	switch {
	case f.Limit <= 0:
		return defaultListLimit
	case f.Limit > maxListLimit:
		return maxListLimit
	default:
		return f.Limit
	}
}

// Matches applies the filter in memory.
func (f Filter) Matches(g *Grievance) bool {
	switch {
	case f.Status != "" && g.Status != f.Status:
		return false
	case f.Category != "" && g.Category != f.Category:
		return false
	case f.Severity != "" && g.Severity != f.Severity:
		return false
	case f.FiledBy != "" && g.FiledBy != f.FiledBy:
		return false
	case f.OpenOnly && !g.Status.IsOpen():
		return false
	}
	return true
}
