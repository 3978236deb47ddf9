// Package service implements the consent ledger: requesting, granting and
// withdrawing consent for a student and purpose.
package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Verifier

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"compliance/internal/audit"
	"compliance/internal/consent/metrics"
	"compliance/internal/consent/models"
	"compliance/internal/platform/tracer"
	"compliance/internal/retention"
	vmodels "compliance/internal/verification/models"
	id "compliance/pkg/domain"
	dErrors "compliance/pkg/domain-errors"
	"compliance/pkg/platform/sentinel"
	"compliance/pkg/platform/validation"
	"compliance/pkg/requestcontext"
)

// Store persists consent records.
// Error Contract:
//   - FindByID, FindLatest and Execute return sentinel.ErrNotFound
//   - Create returns sentinel.ErrConflict if a live record exists for the pair
type Store interface {
	Create(ctx context.Context, record *models.Record) error
	FindByID(ctx context.Context, consentID id.ConsentID) (*models.Record, error)
	FindLatest(ctx context.Context, studentID id.StudentID, purposeCode string) (*models.Record, error)
	ListByStudent(ctx context.Context, studentID id.StudentID) ([]*models.Record, error)
	Execute(ctx context.Context, consentID id.ConsentID, fn func(*models.Record) (bool, error)) (*models.Record, error)
}

// Verifier issues and checks challenges for consent records.
type Verifier interface {
	IssueChallenge(ctx context.Context, consentID id.ConsentID, method vmodels.Method, destination string) (*vmodels.Handle, error)
	Validate(ctx context.Context, challengeID id.ChallengeID, submittedCode string) (vmodels.Result, error)
}

// Auditor records consent events.
type Auditor interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Option func(*Service)

type Service struct {
	store    Store
	verifier Verifier
	catalog  *models.Catalog
	auditor  Auditor
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   tracer.Tracer
}

func New(store Store, verifier Verifier, catalog *models.Catalog, auditor Auditor, logger *slog.Logger, opts ...Option) *Service {
	svc := &Service{
		store:    store,
		verifier: verifier,
		catalog:  catalog,
		auditor:  auditor,
		logger:   logger,
		tracer:   tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// RequestResult never carries the verification code.
type RequestResult struct {
	Record             *models.Record
	ChallengeExpiresAt *time.Time
	DestinationHint    string
	Satisfied          bool
}

type WithdrawResult struct {
	Record  *models.Record
	Verdict retention.Verdict
}

// RequestConsent starts or resumes consent for a student and purpose and
// sends a fresh challenge. An already granted record is returned unchanged.
func (s *Service) RequestConsent(ctx context.Context, studentID id.StudentID, purposeCode string, method vmodels.Method, destination string) (result *RequestResult, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanConsentRequest,
		tracer.String(tracer.AttrPurpose, purposeCode),
		tracer.String(tracer.AttrMethod, string(method)),
	)
	defer func() { span.End(err) }()

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if studentID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "student_id is required")
	}
	purpose, err := s.purpose(purposeCode)
	if err != nil {
		return nil, err
	}
	if !method.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "verification_method must be one of EMAIL_OTP, SMS_OTP, EXISTING_IDENTITY")
	}
	if err := checkIdentity(actor, method); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	record, err := s.openRecord(ctx, studentID, purpose.Code, method, actor.ID, now)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(actor, record); err != nil {
		return nil, err
	}
	if record.Status == models.StatusGranted {
		return &RequestResult{Record: record}, nil
	}

	handle, err := s.verifier.IssueChallenge(ctx, record.ID, method, destination)
	if err != nil {
		return nil, err
	}

	updated, err := s.store.Execute(ctx, record.ID, func(r *models.Record) (bool, error) {
		if r.Status == models.StatusGranted {
			return false, nil
		}
		if err := r.MarkChallengeSent(handle.ChallengeID, method, now); err != nil {
			return false, dErrors.Wrap(err, dErrors.CodeInvalidTransition, err.Error())
		}
		r.RequestedBy = actor.ID
		return true, nil
	})
	if err != nil {
		return nil, s.translate(err, "failed to record challenge")
	}

	s.emit(ctx, audit.ActionConsentRequested, updated, string(method), "")
	if s.metrics != nil {
		s.metrics.IncrementRequested(purpose.Code)
	}
	s.logger.InfoContext(ctx, "consent requested",
		"consent_id", updated.ID.String(),
		"purpose", purpose.Code,
		"method", method,
		"request_id", requestcontext.RequestID(ctx),
	)

	expires := handle.ExpiresAt
	return &RequestResult{
		Record:             updated,
		ChallengeExpiresAt: &expires,
		DestinationHint:    handle.DestinationHint,
		Satisfied:          handle.Satisfied,
	}, nil
}

// openRecord returns the live record for the pair, creating one (and
// superseding a withdrawn one) when none exists.
func (s *Service) openRecord(ctx context.Context, studentID id.StudentID, purposeCode string, method vmodels.Method, actorID id.ActorID, now time.Time) (*models.Record, error) {
	for range 2 {
		latest, err := s.store.FindLatest(ctx, studentID, purposeCode)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return nil, s.translate(err, "failed to load consent")
		}
		if latest != nil && latest.Status != models.StatusWithdrawn {
			return latest, nil
		}

		record := models.NewRecord(studentID, purposeCode, method, actorID, now)
		if latest != nil {
			prev := latest.ID
			record.Supersedes = &prev
		}
		err = s.store.Create(ctx, record)
		if err == nil {
			return record, nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, s.translate(err, "failed to create consent")
		}
		// A concurrent request created the live record first; use it.
	}
	return nil, dErrors.New(dErrors.CodeConflict, "consent record is being modified concurrently")
}

// GrantConsent validates the submitted code and grants consent. Granting an
// already granted record is a no-op that keeps the original consent date.
func (s *Service) GrantConsent(ctx context.Context, consentID id.ConsentID, code string, agreed bool) (record *models.Record, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanConsentGrant, tracer.String(tracer.AttrConsentID, consentID.String()))
	defer func() { span.End(err) }()
	start := time.Now()

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	current, err := s.load(ctx, consentID)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(actor, current); err != nil {
		return nil, err
	}
	if !agreed {
		return nil, dErrors.New(dErrors.CodeNotAgreed, "consent terms must be agreed to")
	}
	if current.Status == models.StatusGranted {
		return current, nil
	}
	if current.Status != models.StatusChallengeSent || current.ChallengeID == nil {
		return nil, dErrors.New(dErrors.CodeInvalidTransition, "consent cannot be granted from "+string(current.Status))
	}
	if err := checkIdentity(actor, current.VerificationMethod); err != nil {
		return nil, err
	}

	challengeID := *current.ChallengeID
	result, err := s.verifier.Validate(ctx, challengeID, code)
	if err != nil {
		return nil, err
	}
	if !result.OK {
		return s.rejectGrant(ctx, current, result)
	}

	now := requestcontext.Now(ctx)
	updated, err := s.store.Execute(ctx, consentID, func(r *models.Record) (bool, error) {
		if r.Status == models.StatusGranted {
			return false, nil
		}
		if r.ChallengeID == nil || *r.ChallengeID != challengeID {
			return false, dErrors.New(dErrors.CodeConflict, "a newer challenge was issued for this consent")
		}
		if err := r.Grant(now); err != nil {
			return false, dErrors.Wrap(err, dErrors.CodeInvalidTransition, err.Error())
		}
		return true, nil
	})
	if err != nil {
		return nil, s.translate(err, "failed to grant consent")
	}

	s.emit(ctx, audit.ActionConsentGranted, updated, "granted", "")
	if s.metrics != nil {
		s.metrics.IncrementGranted(updated.PurposeCode)
		s.metrics.ObserveGrantLatency(time.Since(start).Seconds())
		s.metrics.ObserveTimeToConsent(now.Sub(updated.CreatedAt).Seconds())
	}
	s.logger.InfoContext(ctx, "consent granted",
		"consent_id", updated.ID.String(),
		"purpose", updated.PurposeCode,
		"request_id", requestcontext.RequestID(ctx),
	)
	return updated, nil
}

// rejectGrant surfaces a verification failure without touching the record.
// A concurrent grant that consumed the same challenge counts as success.
func (s *Service) rejectGrant(ctx context.Context, current *models.Record, result vmodels.Result) (*models.Record, error) {
	if result.Reason == dErrors.ReasonAlreadyConsumed {
		if latest, err := s.store.FindByID(ctx, current.ID); err == nil && latest.Status == models.StatusGranted {
			return latest, nil
		}
	}
	s.emit(ctx, audit.ActionVerificationFailed, current, "denied", string(result.Reason))
	if s.metrics != nil {
		s.metrics.IncrementVerificationFailure(strings.ToLower(string(result.Reason)))
	}
	return nil, result.Err()
}

// WithdrawConsent withdraws a granted, non-mandatory consent and reports
// what must happen to the data. Withdrawing twice is a no-op.
func (s *Service) WithdrawConsent(ctx context.Context, consentID id.ConsentID, reason string) (result *WithdrawResult, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanConsentWithdraw, tracer.String(tracer.AttrConsentID, consentID.String()))
	defer func() { span.End(err) }()

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	reason = validation.NormalizeText(strings.TrimSpace(reason))
	if err := validation.CheckStringLength("reason", reason, validation.MaxReasonLength); err != nil {
		return nil, err
	}

	current, err := s.load(ctx, consentID)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(actor, current); err != nil {
		return nil, err
	}
	purpose, err := s.purpose(current.PurposeCode)
	if err != nil {
		return nil, err
	}
	if purpose.IsMandatory {
		return nil, dErrors.New(dErrors.CodeMandatoryProcessing, "consent for "+purpose.Code+" is mandatory and cannot be withdrawn")
	}

	now := requestcontext.Now(ctx)
	var changed bool
	updated, err := s.store.Execute(ctx, consentID, func(r *models.Record) (bool, error) {
		if r.Status == models.StatusWithdrawn {
			return false, nil
		}
		if err := r.Withdraw(reason, now); err != nil {
			return false, dErrors.Wrap(err, dErrors.CodeInvalidTransition, "consent cannot be withdrawn from "+string(r.Status))
		}
		changed = true
		return true, nil
	})
	if err != nil {
		return nil, s.translate(err, "failed to withdraw consent")
	}

	verdict := retention.Evaluate(purpose, "")
	if changed {
		s.emit(ctx, audit.ActionConsentWithdrawn, updated, verdict.String(), reason)
		if s.metrics != nil {
			s.metrics.IncrementWithdrawn(purpose.Code)
		}
		s.logger.InfoContext(ctx, "consent withdrawn",
			"consent_id", updated.ID.String(),
			"purpose", purpose.Code,
			"retention", verdict.String(),
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return &WithdrawResult{Record: updated, Verdict: verdict}, nil
}

// GetConsentStatus is a read-only view over the latest record for the pair.
func (s *Service) GetConsentStatus(ctx context.Context, studentID id.StudentID, purposeCode string) (models.View, error) {
	if _, err := s.purpose(purposeCode); err != nil {
		return "", err
	}
	latest, err := s.store.FindLatest(ctx, studentID, purposeCode)
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.ViewNotRequested, nil
	}
	if err != nil {
		return "", s.translate(err, "failed to load consent")
	}
	return models.ViewOf(latest), nil
}

func (s *Service) ListPurposes(_ context.Context) []models.Purpose {
	return s.catalog.List()
}

// ListConsents returns every record for the student, withdrawn history included.
func (s *Service) ListConsents(ctx context.Context, studentID id.StudentID) ([]*models.Record, error) {
	if studentID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "student_id is required")
	}
	records, err := s.store.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, s.translate(err, "failed to list consents")
	}
	return records, nil
}

func (s *Service) purpose(code string) (models.Purpose, error) {
	p, ok := s.catalog.Lookup(strings.TrimSpace(code))
	if !ok {
		return models.Purpose{}, dErrors.New(dErrors.CodeUnknownPurpose, "unknown consent purpose "+code)
	}
	return p, nil
}

func (s *Service) load(ctx context.Context, consentID id.ConsentID) (*models.Record, error) {
	r, err := s.store.FindByID(ctx, consentID)
	if err != nil {
		return nil, s.translate(err, "failed to load consent")
	}
	return r, nil
}

// translate maps store sentinels to domain errors once, at the service edge.
func (s *Service) translate(err error, msg string) error {
	var domainErr *dErrors.Error
	switch {
	case errors.As(err, &domainErr):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "consent not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "consent was modified concurrently")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

func (s *Service) emit(ctx context.Context, action audit.Action, r *models.Record, decision, reason string) {
	if s.auditor == nil {
		return
	}
	err := s.auditor.Emit(ctx, audit.Event{
		Action:       action,
		ResourceType: audit.ResourceConsent,
		ResourceID:   r.ID.String(),
		StudentID:    r.StudentID.String(),
		Purpose:      r.PurposeCode,
		Decision:     decision,
		Reason:       reason,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "error", err, "action", action)
	}
}

func requireActor(ctx context.Context) (requestcontext.Actor, error) {
	actor, ok := requestcontext.ActorFrom(ctx)
	if !ok {
		return requestcontext.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "missing actor")
	}
	return actor, nil
}

// checkIdentity accepts EXISTING_IDENTITY only from a guardian whose
// identity the portal has already verified.
func checkIdentity(actor requestcontext.Actor, method vmodels.Method) error {
	if method != vmodels.MethodExistingIdentity {
		return nil
	}
	if actor.Role != requestcontext.RoleGuardian || !actor.IdentityVerified {
		return dErrors.Verification(dErrors.ReasonIdentityNotVerified, "existing identity requires a verified guardian session")
	}
	return nil
}

// checkOwner lets guardians act only on records they requested. Staff and
// administrators act on behalf of the school.
func checkOwner(actor requestcontext.Actor, r *models.Record) error {
	if actor.Role != requestcontext.RoleGuardian || actor.ID == r.RequestedBy {
		return nil
	}
	return dErrors.New(dErrors.CodeNotFound, "consent not found")
}
