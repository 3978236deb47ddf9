// Package service issues and validates one-time verification challenges.
package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store CodeSender

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"
	"time"

	"compliance/internal/platform/tracer"
	"compliance/internal/verification/metrics"
	"compliance/internal/verification/models"
	id "compliance/pkg/domain"
	dErrors "compliance/pkg/domain-errors"
	"compliance/pkg/platform/privacy"
	"compliance/pkg/platform/sentinel"
	"compliance/pkg/requestcontext"
)

// Store persists challenges.
// Error Contract:
//   - FindByID and Execute return sentinel.ErrNotFound for unknown ids
//   - Issue consumes every other live challenge of the same consent record in
//     the same atomic unit that inserts the new one
//   - Execute holds a per-challenge lock across fn and persists only when fn
//     reports a change
type Store interface {
	Issue(ctx context.Context, challenge *models.Challenge) error
	FindByID(ctx context.Context, challengeID id.ChallengeID) (*models.Challenge, error)
	Execute(ctx context.Context, challengeID id.ChallengeID, fn func(*models.Challenge) (bool, error)) (*models.Challenge, error)
}

// CodeSender delivers a plaintext code to the guardian. Transport is external.
type CodeSender interface {
	Send(ctx context.Context, delivery models.Delivery) error
}

type Option func(*Service)

type Service struct {
	store       Store
	sender      CodeSender
	hasher      *codeHasher
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      tracer.Tracer
	codeTTL     time.Duration
	maxAttempts int
	generate    func() (string, error)
}

func New(store Store, sender CodeSender, pepper string, logger *slog.Logger, opts ...Option) (*Service, error) {
	hasher, err := newCodeHasher(pepper)
	if err != nil {
		return nil, err
	}
	svc := &Service{
		store:       store,
		sender:      sender,
		hasher:      hasher,
		logger:      logger,
		tracer:      tracer.NewNoop(),
		codeTTL:     models.DefaultCodeTTL,
		maxAttempts: models.DefaultMaxAttempts,
		generate:    generateCode,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
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

// WithCodeTTL overrides the 5 minute challenge lifetime.
func WithCodeTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.codeTTL = ttl
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithCodeGenerator replaces the crypto/rand code source. Tests only.
func WithCodeGenerator(gen func() (string, error)) Option {
	return func(s *Service) {
		if gen != nil {
			s.generate = gen
		}
	}
}

// IssueChallenge creates a new challenge for the consent record, invalidating
// any earlier live one. EXISTING_IDENTITY returns an already satisfied handle
// without generating or sending a code.
func (s *Service) IssueChallenge(ctx context.Context, consentID id.ConsentID, method models.Method, destination string) (handle *models.Handle, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanChallengeIssue,
		tracer.String(tracer.AttrConsentID, consentID.String()),
		tracer.String(tracer.AttrMethod, string(method)),
	)
	defer func() { span.End(err) }()

	if consentID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "consent_id is required")
	}
	if !method.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown verification method")
	}
	destination = strings.TrimSpace(destination)
	if method.RequiresCode() && destination == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "destination is required for "+string(method))
	}

	now := requestcontext.Now(ctx)
	challenge := &models.Challenge{
		ID:              id.NewChallengeID(),
		ConsentRecordID: consentID,
		Method:          method,
		DestinationHint: privacy.MaskDestination(destination),
		IssuedAt:        now,
		ExpiresAt:       now.Add(s.codeTTL),
	}

	switch method {
	case models.MethodExistingIdentity:
		challenge.Satisfied = true
		if err := s.store.Issue(ctx, challenge); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store challenge")
		}
	case models.MethodEmailOTP, models.MethodSMSOTP:
		code, err := s.generate()
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate verification code")
		}
		challenge.CodeHash = s.hasher.Sum(challenge.ID, code)
		if err := s.store.Issue(ctx, challenge); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store challenge")
		}
		if err := s.dispatch(ctx, challenge, destination, code); err != nil {
			return nil, err
		}
	}

	if s.metrics != nil {
		s.metrics.IncrementIssued(string(method))
	}
	s.logger.InfoContext(ctx, "verification challenge issued",
		"challenge_id", challenge.ID.String(),
		"consent_id", consentID.String(),
		"method", method,
		"destination", challenge.DestinationHint,
		"request_id", requestcontext.RequestID(ctx),
	)

	return &models.Handle{
		ChallengeID:     challenge.ID,
		Method:          method,
		ExpiresAt:       challenge.ExpiresAt,
		Satisfied:       challenge.Satisfied,
		DestinationHint: challenge.DestinationHint,
	}, nil
}

// dispatch hands the code to the sender once. An undeliverable challenge is
// consumed so it cannot linger as the live one.
func (s *Service) dispatch(ctx context.Context, challenge *models.Challenge, destination, code string) error {
	err := s.sender.Send(ctx, models.Delivery{
		ChallengeID: challenge.ID,
		Method:      challenge.Method,
		Destination: destination,
		Code:        code,
		ExpiresAt:   challenge.ExpiresAt,
	})
	if err == nil {
		return nil
	}

	if s.metrics != nil {
		s.metrics.IncrementDispatchFailure(string(challenge.Method))
	}
	s.logger.ErrorContext(ctx, "failed to deliver verification code",
		"error", err,
		"challenge_id", challenge.ID.String(),
		"destination", challenge.DestinationHint,
	)
	if _, cerr := s.store.Execute(ctx, challenge.ID, func(c *models.Challenge) (bool, error) {
		c.Consumed = true
		return true, nil
	}); cerr != nil {
		s.logger.WarnContext(ctx, "failed to retire undelivered challenge", "error", cerr, "challenge_id", challenge.ID.String())
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to deliver verification code")
}

// Validate checks a submitted code. The checks, the attempt increment and the
// consume all run under the store's per-challenge lock, so concurrent
// submissions cannot both observe the same attempt count.
//
// A nil error with Result.OK == false is a verification failure; errors are
// reserved for unknown challenges and infrastructure faults.
func (s *Service) Validate(ctx context.Context, challengeID id.ChallengeID, submittedCode string) (result models.Result, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanChallengeValidate,
		tracer.String(tracer.AttrChallengeID, challengeID.String()),
	)
	defer func() {
		span.SetAttributes(tracer.Bool("verification.ok", result.OK), tracer.String(tracer.AttrReason, string(result.Reason)))
		span.End(err)
	}()

	now := requestcontext.Now(ctx)
	submitted := strings.TrimSpace(submittedCode)

	updated, err := s.store.Execute(ctx, challengeID, func(c *models.Challenge) (bool, error) {
		if reason := c.Precheck(now, s.maxAttempts); reason != "" {
			result = models.Result{Reason: reason}
			return false, nil
		}
		if c.Satisfied {
			c.Consumed = true
			result = models.Result{OK: true}
			return true, nil
		}

		c.Attempts++
		expected := s.hasher.Sum(c.ID, submitted)
		if subtle.ConstantTimeCompare(expected, c.CodeHash) == 1 {
			c.Consumed = true
			result = models.Result{OK: true}
		} else {
			result = models.Result{Reason: dErrors.ReasonInvalidCode}
		}
		return true, nil
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.Result{}, dErrors.New(dErrors.CodeNotFound, "verification challenge not found")
		}
		return models.Result{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to validate challenge")
	}
	result.Attempts = updated.Attempts

	s.observe(ctx, challengeID, result)
	return result, nil
}

func (s *Service) observe(ctx context.Context, challengeID id.ChallengeID, result models.Result) {
	outcome := "ok"
	if !result.OK {
		outcome = strings.ToLower(string(result.Reason))
		s.logger.InfoContext(ctx, "verification failed",
			"challenge_id", challengeID.String(),
			"reason", result.Reason,
			"attempts", result.Attempts,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	if s.metrics != nil {
		s.metrics.ObserveValidation(outcome)
	}
}

// Get returns the stored challenge. The code hash is never exposed outside the service.
func (s *Service) Get(ctx context.Context, challengeID id.ChallengeID) (*models.Challenge, error) {
	c, err := s.store.FindByID(ctx, challengeID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "verification challenge not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load challenge")
	}
	c.CodeHash = nil
	return c, nil
}
