// Package seeder fills in-memory stores with demo consents and grievances
// so a development instance has something to look at. It goes through the
// services, so every seeded change is validated and audited like real traffic.
package seeder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	consentmodels "compliance/internal/consent/models"
	consentservice "compliance/internal/consent/service"
	grievancemodels "compliance/internal/grievance/models"
	grievanceservice "compliance/internal/grievance/service"
	vmodels "compliance/internal/verification/models"
	id "compliance/pkg/domain"
	"compliance/pkg/requestcontext"
)

// ConsentDesk is the part of the consent service the seeder drives.
type ConsentDesk interface {
	RequestConsent(ctx context.Context, studentID id.StudentID, purposeCode string, method vmodels.Method, destination string) (*consentservice.RequestResult, error)
	GrantConsent(ctx context.Context, consentID id.ConsentID, code string, agreed bool) (*consentmodels.Record, error)
}

// GrievanceDesk is the part of the grievance service the seeder drives.
type GrievanceDesk interface {
	FileGrievance(ctx context.Context, in grievanceservice.FileInput) (*grievancemodels.Grievance, error)
	Acknowledge(ctx context.Context, grievanceID id.GrievanceID) (*grievancemodels.Grievance, error)
	StartReview(ctx context.Context, grievanceID id.GrievanceID) (*grievancemodels.Grievance, error)
	Resolve(ctx context.Context, grievanceID id.GrievanceID, notes string) (*grievancemodels.Grievance, error)
}

// Demo actors. Tokens for them can be minted with cmd/tokengen.
var (
	DemoGuardian id.ActorID = "guardian-demo"
	DemoAdmin    id.ActorID = "dpo-demo"
	DemoStudent             = id.StudentID(uuid.MustParse("5b1f7c1e-0d7a-4c55-9a3e-2f3f6c1d9a01"))
)

// Summary reports what was seeded.
type Summary struct {
	Consents   int
	Grievances int
}

type Seeder struct {
	consents   ConsentDesk
	grievances GrievanceDesk
	logger     *slog.Logger
}

func New(consents ConsentDesk, grievances GrievanceDesk, logger *slog.Logger) *Seeder {
	return &Seeder{consents: consents, grievances: grievances, logger: logger}
}

// SeedAll grants demo consents and files grievances in a spread of
// lifecycle states, backdated from now so the SLA sweeper has breaches to find.
func (s *Seeder) SeedAll(ctx context.Context, now time.Time) (*Summary, error) {
	s.logger.InfoContext(ctx, "seeding demo data")

	consents, err := s.seedConsents(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to seed consents: %w", err)
	}
	grievances, err := s.seedGrievances(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to seed grievances: %w", err)
	}

	summary := &Summary{Consents: consents, Grievances: grievances}
	s.logger.InfoContext(ctx, "demo data seeded",
		"consents", summary.Consents,
		"grievances", summary.Grievances,
	)
	return summary, nil
}

func (s *Seeder) seedConsents(ctx context.Context, now time.Time) (int, error) {
	guardian := s.as(ctx, requestcontext.Actor{ID: DemoGuardian, Role: requestcontext.RoleGuardian, IdentityVerified: true}, now)

	seeded := 0
	for _, code := range []string{"ACADEMIC_RECORDS", "ATTENDANCE"} {
		res, err := s.consents.RequestConsent(guardian, DemoStudent, code, vmodels.MethodExistingIdentity, "")
		if err != nil {
			return seeded, fmt.Errorf("request %s: %w", code, err)
		}
		if _, err := s.consents.GrantConsent(guardian, res.Record.ID, "", true); err != nil {
			return seeded, fmt.Errorf("grant %s: %w", code, err)
		}
		seeded++
	}
	return seeded, nil
}

func (s *Seeder) seedGrievances(ctx context.Context, now time.Time) (int, error) {
	demo := []struct {
		category grievancemodels.Category
		severity grievancemodels.Severity
		subject  string
		age      time.Duration
		advance  grievancemodels.Status
	}{
		{grievancemodels.CategoryDataBreach, grievancemodels.SeverityCritical, "Report card emailed to the wrong family", 30 * time.Hour, ""},
		{grievancemodels.CategoryConsentViolation, grievancemodels.SeverityHigh, "Photos published without consent", 20 * time.Hour, grievancemodels.StatusAcknowledged},
		{grievancemodels.CategoryDataInaccuracy, grievancemodels.SeverityMedium, "Wrong date of birth on file", 4 * 24 * time.Hour, grievancemodels.StatusUnderReview},
		{grievancemodels.CategoryRetentionViolation, grievancemodels.SeverityLow, "Alumni records kept after graduation", 9 * 24 * time.Hour, grievancemodels.StatusResolved},
	}

	guardian := requestcontext.Actor{ID: DemoGuardian, Role: requestcontext.RoleGuardian, IdentityVerified: true}
	admin := requestcontext.Actor{ID: DemoAdmin, Role: requestcontext.RoleAdmin}
	student := DemoStudent

	for i, d := range demo {
		filedAt := now.Add(-d.age)
		g, err := s.grievances.FileGrievance(s.as(ctx, guardian, filedAt), grievanceservice.FileInput{
			StudentID:   &student,
			Category:    d.category,
			Severity:    d.severity,
			Subject:     d.subject,
			Description: "Seeded for local development.",
		})
		if err != nil {
			return i, fmt.Errorf("file %q: %w", d.subject, err)
		}
		if err := s.advance(ctx, admin, g.ID, d.advance, filedAt); err != nil {
			return i, fmt.Errorf("advance %s: %w", g.PublicID, err)
		}
	}
	return len(demo), nil
}

// advance walks a grievance forward to target, one step per hour after filing.
func (s *Seeder) advance(ctx context.Context, admin requestcontext.Actor, gid id.GrievanceID, target grievancemodels.Status, filedAt time.Time) error {
	steps := []struct {
		status grievancemodels.Status
		apply  func(context.Context) error
	}{
		{grievancemodels.StatusAcknowledged, func(c context.Context) error {
			_, err := s.grievances.Acknowledge(c, gid)
			return err
		}},
		{grievancemodels.StatusUnderReview, func(c context.Context) error {
			_, err := s.grievances.StartReview(c, gid)
			return err
		}},
		{grievancemodels.StatusResolved, func(c context.Context) error {
			_, err := s.grievances.Resolve(c, gid, "Records purged and family informed.")
			return err
		}},
	}
	if target == "" {
		return nil
	}
	for i, step := range steps {
		if err := step.apply(s.as(ctx, admin, filedAt.Add(time.Duration(i+1)*time.Hour))); err != nil {
			return err
		}
		if step.status == target {
			return nil
		}
	}
	return nil
}

func (s *Seeder) as(ctx context.Context, actor requestcontext.Actor, at time.Time) context.Context {
	return requestcontext.WithTime(requestcontext.WithActor(ctx, actor), at)
}
