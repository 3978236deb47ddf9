// Package service implements the grievance tracker.
package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,Auditor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"compliance/internal/audit"
	"compliance/internal/grievance/metrics"
	"compliance/internal/grievance/models"
	"compliance/internal/platform/tracer"
	"compliance/internal/sla"
	id "compliance/pkg/domain"
	dErrors "compliance/pkg/domain-errors"
	"compliance/pkg/platform/sentinel"
	"compliance/pkg/platform/validation"
	"compliance/pkg/requestcontext"
)

// Store persists grievances.
// Error Contract:
//   - FindByID, FindByPublicID and Execute return sentinel.ErrNotFound
//   - Create returns sentinel.ErrConflict on an id or public id collision
type Store interface {
	Create(ctx context.Context, g *models.Grievance) error
	FindByID(ctx context.Context, grievanceID id.GrievanceID) (*models.Grievance, error)
	FindByPublicID(ctx context.Context, publicID string) (*models.Grievance, error)
	List(ctx context.Context, filter models.Filter) ([]*models.Grievance, error)
	ListOpen(ctx context.Context) ([]*models.Grievance, error)
	Execute(ctx context.Context, grievanceID id.GrievanceID, fn func(*models.Grievance) (bool, error)) (*models.Grievance, error)
}

// Auditor records grievance events.
type Auditor interface {
	Emit(ctx context.Context, event audit.Event) error
}

// SLAResetter forgets the last SLA classification observed for a grievance.
type SLAResetter interface {
	Forget(ctx context.Context, grievanceID id.GrievanceID) error
}

type Option func(*Service)

type Service struct {
	store    Store
	auditor  Auditor
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   tracer.Tracer
	slaReset SLAResetter
}

func New(store Store, auditor Auditor, logger *slog.Logger, opts ...Option) *Service {
	svc := &Service{
		store:   store,
		auditor: auditor,
		logger:  logger,
		tracer:  tracer.NewNoop(),
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

// WithSLAResetter clears the sweeper's breach memory on reopen, so a
// reopened grievance that is still past its window escalates again.
func WithSLAResetter(r SLAResetter) Option {
	return func(s *Service) {
		s.slaReset = r
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// FileInput is a new complaint. Severity defaults to MEDIUM.
type FileInput struct {
	StudentID   *id.StudentID
	Category    models.Category
	Severity    models.Severity
	Subject     string
	Description string
}

func (in *FileInput) normalize() {
	in.Subject = validation.NormalizeText(in.Subject)
	in.Description = validation.NormalizeText(in.Description)
	if in.Severity == "" {
		in.Severity = models.SeverityMedium
	}
}

func (in *FileInput) validate() error {
	switch {
	case in.Category == "":
		return dErrors.New(dErrors.CodeValidation, "category is required")
	case !in.Category.IsValid():
		return dErrors.New(dErrors.CodeValidation, "unknown category "+string(in.Category))
	case in.Subject == "":
		return dErrors.New(dErrors.CodeValidation, "subject is required")
	case in.Description == "":
		return dErrors.New(dErrors.CodeValidation, "description is required")
	case !in.Severity.IsValid():
		return dErrors.New(dErrors.CodeValidation, "unknown severity "+string(in.Severity))
	}
	if err := validation.CheckStringLength("subject", in.Subject, validation.MaxSubjectLength); err != nil {
		return err
	}
	return validation.CheckStringLength("description", in.Description, validation.MaxDescriptionLength)
}

// FileGrievance records a SUBMITTED grievance for the calling actor.
func (s *Service) FileGrievance(ctx context.Context, in FileInput) (g *models.Grievance, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanGrievanceFile,
		tracer.String(tracer.AttrSeverity, string(in.Severity)),
	)
	defer func() { span.End(err) }()

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	// Public ids are short; retry the rare collision with a fresh id.
	for range 3 {
		g = models.NewGrievance(actor.ID, in.StudentID, in.Category, in.Severity, in.Subject, in.Description, now)
		err = s.store.Create(ctx, g)
		if !errors.Is(err, sentinel.ErrConflict) {
			break
		}
	}
	if err != nil {
		return nil, s.translate(err, "failed to file grievance")
	}

	s.emit(ctx, audit.ActionGrievanceFiled, g, "")
	if s.metrics != nil {
		s.metrics.IncrementFiled(string(g.Category), string(g.Severity))
	}
	s.logger.InfoContext(ctx, "grievance filed",
		"grievance_id", g.ID.String(),
		"public_id", g.PublicID,
		"severity", g.Severity,
		"request_id", requestcontext.RequestID(ctx),
	)
	return g, nil
}

// Acknowledge moves SUBMITTED to ACKNOWLEDGED. Repeating it is a no-op.
func (s *Service) Acknowledge(ctx context.Context, grievanceID id.GrievanceID) (*models.Grievance, error) {
	return s.transition(ctx, grievanceID, models.StatusAcknowledged, audit.ActionGrievanceAcknowledged, "",
		func(g *models.Grievance, now time.Time) error { return g.Acknowledge(now) })
}

// StartReview moves ACKNOWLEDGED to UNDER_REVIEW. Repeating it is a no-op.
func (s *Service) StartReview(ctx context.Context, grievanceID id.GrievanceID) (*models.Grievance, error) {
	return s.transition(ctx, grievanceID, models.StatusUnderReview, audit.ActionGrievanceReviewStarted, "",
		func(g *models.Grievance, now time.Time) error { return g.StartReview(now) })
}

// Resolve records the resolution. Repeating it is a no-op that keeps the
// original notes.
func (s *Service) Resolve(ctx context.Context, grievanceID id.GrievanceID, notes string) (*models.Grievance, error) {
	notes = validation.NormalizeText(notes)
	if err := validation.CheckStringLength("notes", notes, validation.MaxDescriptionLength); err != nil {
		return nil, err
	}
	return s.transition(ctx, grievanceID, models.StatusResolved, audit.ActionGrievanceResolved, "",
		func(g *models.Grievance, now time.Time) error { return g.Resolve(notes, now) })
}

// Close moves RESOLVED to CLOSED. Repeating it is a no-op.
func (s *Service) Close(ctx context.Context, grievanceID id.GrievanceID) (*models.Grievance, error) {
	return s.transition(ctx, grievanceID, models.StatusClosed, audit.ActionGrievanceClosed, "",
		func(g *models.Grievance, now time.Time) error { return g.Close(now) })
}

// Reopen sends a RESOLVED grievance back to review and notes why on the thread.
func (s *Service) Reopen(ctx context.Context, grievanceID id.GrievanceID, reason string) (*models.Grievance, error) {
	reason = validation.NormalizeText(reason)
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	if err := validation.CheckStringLength("reason", reason, validation.MaxReasonLength); err != nil {
		return nil, err
	}
	actor, _ := requestcontext.ActorFrom(ctx)
	g, err := s.transition(ctx, grievanceID, "", audit.ActionGrievanceReopened, reason,
		func(g *models.Grievance, now time.Time) error {
			if err := g.Reopen(now); err != nil {
				return err
			}
			g.AddComment(actor.ID, models.RoleSystem, "Reopened: "+reason, now)
			return nil
		})
	if err != nil {
		return nil, err
	}
	if s.slaReset != nil {
		if err := s.slaReset.Forget(ctx, g.ID); err != nil {
			s.logger.WarnContext(ctx, "failed to reset sla observation", "error", err, "grievance_id", g.ID.String())
		}
	}
	return g, nil
}

// transition runs an administrative status change atomically. A grievance
// already in target is returned unchanged; an empty target disables that.
func (s *Service) transition(
	ctx context.Context,
	grievanceID id.GrievanceID,
	target models.Status,
	action audit.Action,
	reason string,
	apply func(*models.Grievance, time.Time) error,
) (g *models.Grievance, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanGrievanceTransit,
		tracer.String(tracer.AttrGrievanceID, grievanceID.String()),
		tracer.String(tracer.AttrTransition, string(action)),
	)
	defer func() { span.End(err) }()

	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	var changed bool
	g, err = s.store.Execute(ctx, grievanceID, func(g *models.Grievance) (bool, error) {
		if target != "" && g.Status == target {
			return false, nil
		}
		if err := apply(g, now); err != nil {
			return false, dErrors.Wrap(err, dErrors.CodeInvalidTransition, err.Error())
		}
		changed = true
		return true, nil
	})
	if err != nil {
		return nil, s.translate(err, "failed to update grievance")
	}
	if !changed {
		return g, nil
	}

	s.emit(ctx, action, g, reason)
	s.observeTransition(g)
	s.logger.InfoContext(ctx, "grievance status changed",
		"grievance_id", g.ID.String(),
		"status", g.Status,
		"request_id", requestcontext.RequestID(ctx),
	)
	return g, nil
}

func (s *Service) observeTransition(g *models.Grievance) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncrementTransition(string(g.Status))
	switch g.Status {
	case models.StatusAcknowledged:
		s.metrics.ObserveAcknowledge(g.AcknowledgedAt.Sub(g.FiledAt).Hours())
	case models.StatusResolved:
		s.metrics.ObserveResolution(string(g.Severity), g.ResolvedAt.Sub(g.FiledAt).Hours())
	}
}

// AddComment appends to the thread. Filers may not comment once the
// grievance is resolved; administrators may.
func (s *Service) AddComment(ctx context.Context, grievanceID id.GrievanceID, authorID id.ActorID, role models.AuthorRole, body string) (*models.Comment, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if authorID != actor.ID {
		return nil, dErrors.New(dErrors.CodeForbidden, "comments must be authored by the caller")
	}
	switch role {
	case models.RoleFiler:
	case models.RoleAdmin:
		if !actor.IsAdmin() {
			return nil, dErrors.New(dErrors.CodeForbidden, "admin role required")
		}
	default:
		return nil, dErrors.New(dErrors.CodeValidation, "author_role must be FILER or ADMIN")
	}
	body = validation.NormalizeText(body)
	if body == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "comment is required")
	}
	if err := validation.CheckStringLength("comment", body, validation.MaxCommentLength); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var comment models.Comment
	g, err := s.store.Execute(ctx, grievanceID, func(g *models.Grievance) (bool, error) {
		if role == models.RoleFiler && g.FiledBy != authorID {
			return false, sentinel.ErrNotFound
		}
		if !g.AcceptsCommentFrom(role) {
			return false, dErrors.New(dErrors.CodeGrievanceClosed, "grievance is "+string(g.Status)+" and no longer accepts comments")
		}
		comment = g.AddComment(authorID, role, body, now)
		return true, nil
	})
	if err != nil {
		return nil, s.translate(err, "failed to add comment")
	}

	s.emit(ctx, audit.ActionGrievanceCommented, g, string(role))
	if s.metrics != nil {
		s.metrics.IncrementComment(string(role))
	}
	return &comment, nil
}

// Get returns the grievance with its thread. Non-admins only see their own.
func (s *Service) Get(ctx context.Context, grievanceID id.GrievanceID) (*models.Grievance, error) {
	g, err := s.store.FindByID(ctx, grievanceID)
	if err != nil {
		return nil, s.translate(err, "failed to load grievance")
	}
	return s.visible(ctx, g)
}

func (s *Service) GetByPublicID(ctx context.Context, publicID string) (*models.Grievance, error) {
	g, err := s.store.FindByPublicID(ctx, publicID)
	if err != nil {
		return nil, s.translate(err, "failed to load grievance")
	}
	return s.visible(ctx, g)
}

// List applies filter; non-admin callers are restricted to their own filings.
func (s *Service) List(ctx context.Context, filter models.Filter) ([]*models.Grievance, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		filter.FiledBy = actor.ID
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown status "+string(filter.Status))
	}
	if filter.Category != "" && !filter.Category.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown category "+string(filter.Category))
	}
	if filter.Severity != "" && !filter.Severity.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown severity "+string(filter.Severity))
	}
	out, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, s.translate(err, "failed to list grievances")
	}
	return out, nil
}

// ListOpen feeds the SLA sweeper; it bypasses caller visibility.
func (s *Service) ListOpen(ctx context.Context) ([]*models.Grievance, error) {
	return s.store.ListOpen(ctx)
}

// GetTimelineStatus applies the shared SLA rule.
func (s *Service) GetTimelineStatus(g *models.Grievance, now time.Time) sla.Status {
	return sla.Classify(g, now)
}

func (s *Service) visible(ctx context.Context, g *models.Grievance) (*models.Grievance, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && g.FiledBy != actor.ID {
		return nil, dErrors.New(dErrors.CodeNotFound, "grievance not found")
	}
	return g, nil
}

// translate maps store sentinels to domain errors once, at the service edge.
func (s *Service) translate(err error, msg string) error {
	var domainErr *dErrors.Error
	switch {
	case errors.As(err, &domainErr):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "grievance not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "grievance was modified concurrently")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

func (s *Service) emit(ctx context.Context, action audit.Action, g *models.Grievance, reason string) {
	if s.auditor == nil {
		return
	}
	event := audit.Event{
		Action:       action,
		ResourceType: audit.ResourceGrievance,
		ResourceID:   g.ID.String(),
		Decision:     string(g.Status),
		Reason:       reason,
	}
	if g.StudentID != nil {
		event.StudentID = g.StudentID.String()
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
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

func requireAdmin(ctx context.Context) (requestcontext.Actor, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return actor, err
	}
	if !actor.IsAdmin() {
		return actor, dErrors.New(dErrors.CodeForbidden, "admin role required")
	}
	return actor, nil
}
