package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"compliance/internal/audit"
	"compliance/internal/grievance/metrics"
	"compliance/internal/grievance/models"
	"compliance/internal/grievance/service/mocks"
	"compliance/internal/grievance/store"
	"compliance/internal/sla"
	id "compliance/pkg/domain"
	dErrors "compliance/pkg/domain-errors"
	"compliance/pkg/platform/sentinel"
	"compliance/pkg/requestcontext"
	"compliance/pkg/testutil"
)

type ServiceSuite struct {
	suite.Suite
	store      *store.InMemoryStore
	auditStore *audit.InMemoryStore
	metrics    *metrics.Metrics
	service    *Service
	filer      requestcontext.Actor
	other      requestcontext.Actor
	admin      requestcontext.Actor
	now        time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.store = store.NewInMemoryStore()
	s.auditStore = audit.NewInMemoryStore()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.service = New(s.store, audit.NewPublisher(s.auditStore), logger, WithMetrics(s.metrics))
	s.filer = requestcontext.Actor{ID: testutil.TestIDs.Guardian1, Role: requestcontext.RoleGuardian}
	s.other = requestcontext.Actor{ID: testutil.TestIDs.Guardian2, Role: requestcontext.RoleGuardian}
	s.admin = requestcontext.Actor{ID: testutil.TestIDs.Admin1, Role: requestcontext.RoleAdmin}
	s.now = testutil.FixedTime
}

func (s *ServiceSuite) ctxAs(actor requestcontext.Actor, offset time.Duration) context.Context {
	ctx := requestcontext.WithTime(context.Background(), s.now.Add(offset))
	return requestcontext.WithActor(ctx, actor)
}

func (s *ServiceSuite) file(severity models.Severity) *models.Grievance {
	student := testutil.TestIDs.Student1
	g, err := s.service.FileGrievance(s.ctxAs(s.filer, 0), FileInput{
		StudentID:   &student,
		Category:    models.CategoryDataBreach,
		Severity:    severity,
		Subject:     "Report card emailed to wrong parent",
		Description: "My child's report card was sent to another family.",
	})
	s.Require().NoError(err)
	return g
}

func (s *ServiceSuite) requireCode(err error, code dErrors.Code) {
	s.T().Helper()
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, code), "expected %s, got %v", code, err)
}

func (s *ServiceSuite) TestCriticalBreachTimeline() {
	g := s.file(models.SeverityCritical)
	s.Equal(models.StatusSubmitted, g.Status)
	s.True(strings.HasPrefix(g.PublicID, "GRV-"))

	g, err := s.service.Acknowledge(s.ctxAs(s.admin, time.Hour), g.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusAcknowledged, g.Status)

	at50 := s.service.GetTimelineStatus(g, s.now.Add(50*time.Hour))
	s.Equal(sla.KindOnTrack, at50.Kind)
	s.False(at50.Kind.IsBreach())

	at73 := s.service.GetTimelineStatus(g, s.now.Add(73*time.Hour))
	s.Equal(sla.KindOverdueResolution, at73.Kind)
	s.Equal(73, at73.Hours)

	g, err = s.service.StartReview(s.ctxAs(s.admin, 2*time.Hour), g.ID)
	s.Require().NoError(err)
	g, err = s.service.Resolve(s.ctxAs(s.admin, 30*time.Hour), g.ID, "Access revoked and family notified.")
	s.Require().NoError(err)
	s.Equal(models.StatusResolved, g.Status)
	s.Equal("Access revoked and family notified.", g.ResolutionNotes)

	resolved := s.service.GetTimelineStatus(g, s.now.Add(100*time.Hour))
	s.Equal(sla.KindResolvedIn, resolved.Kind)
	s.Equal(30, resolved.Hours)

	g, err = s.service.Close(s.ctxAs(s.admin, 40*time.Hour), g.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusClosed, g.Status)

	events, err := s.auditStore.List(context.Background(), audit.Filter{ResourceID: g.ID.String()})
	s.Require().NoError(err)
	actions := make([]audit.Action, 0, len(events))
	for _, e := range events {
		actions = append(actions, e.Action)
	}
	s.Equal([]audit.Action{
		audit.ActionGrievanceClosed,
		audit.ActionGrievanceResolved,
		audit.ActionGrievanceReviewStarted,
		audit.ActionGrievanceAcknowledged,
		audit.ActionGrievanceFiled,
	}, actions)

	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.GrievancesFiled.WithLabelValues("DATA_BREACH", "CRITICAL")))
	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.Transitions.WithLabelValues("CLOSED")))
}

func (s *ServiceSuite) TestFileGrievance() {
	s.Run("severity defaults to medium", func() {
		g, err := s.service.FileGrievance(s.ctxAs(s.filer, 0), FileInput{
			Category:    models.CategoryOther,
			Subject:     "  Question  ",
			Description: "Who can see attendance data?",
		})
		s.Require().NoError(err)
		s.Equal(models.SeverityMedium, g.Severity)
		s.Equal("Question", g.Subject)
		s.Nil(g.StudentID)
		s.Equal(s.filer.ID, g.FiledBy)
	})

	s.Run("validation failures", func() {
		long := strings.Repeat("x", 201)
		cases := map[string]FileInput{
			"missing category": {Subject: "s", Description: "d"},
			"unknown category": {Category: "SPAM", Subject: "s", Description: "d"},
			"blank subject":    {Category: models.CategoryOther, Subject: "   ", Description: "d"},
			"blank body":       {Category: models.CategoryOther, Subject: "s"},
			"subject too long": {Category: models.CategoryOther, Subject: long, Description: "d"},
			"unknown severity": {Category: models.CategoryOther, Subject: "s", Description: "d", Severity: "URGENT"},
		}
		for name, in := range cases {
			_, err := s.service.FileGrievance(s.ctxAs(s.filer, 0), in)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation), name)
		}
	})

	s.Run("missing actor", func() {
		ctx := requestcontext.WithTime(context.Background(), s.now)
		_, err := s.service.FileGrievance(ctx, FileInput{Category: models.CategoryOther, Subject: "s", Description: "d"})
		s.requireCode(err, dErrors.CodeUnauthorized)
	})
}

func (s *ServiceSuite) TestTransitionsRequireAdmin() {
	g := s.file(models.SeverityLow)

	_, err := s.service.Acknowledge(s.ctxAs(s.filer, time.Hour), g.ID)
	s.requireCode(err, dErrors.CodeForbidden)

	staff := requestcontext.Actor{ID: testutil.TestIDs.Staff1, Role: requestcontext.RoleStaff}
	_, err = s.service.Resolve(s.ctxAs(staff, time.Hour), g.ID, "done")
	s.requireCode(err, dErrors.CodeForbidden)

	stored, err := s.store.FindByID(context.Background(), g.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusSubmitted, stored.Status)
}

func (s *ServiceSuite) TestIllegalTransitions() {
	g := s.file(models.SeverityHigh)
	ctx := s.ctxAs(s.admin, time.Hour)

	_, err := s.service.Close(ctx, g.ID)
	s.requireCode(err, dErrors.CodeInvalidTransition)
	_, err = s.service.StartReview(ctx, g.ID)
	s.requireCode(err, dErrors.CodeInvalidTransition)
	_, err = s.service.Reopen(ctx, g.ID, "not resolved yet")
	s.requireCode(err, dErrors.CodeInvalidTransition)

	_, err = s.service.Acknowledge(ctx, id.NewGrievanceID())
	s.requireCode(err, dErrors.CodeNotFound)

	stored, err := s.store.FindByID(context.Background(), g.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusSubmitted, stored.Status)
	s.Nil(stored.AcknowledgedAt)
}

func (s *ServiceSuite) TestRepeatedTransitionIsNoOp() {
	g := s.file(models.SeverityMedium)

	first, err := s.service.Acknowledge(s.ctxAs(s.admin, time.Hour), g.ID)
	s.Require().NoError(err)
	second, err := s.service.Acknowledge(s.ctxAs(s.admin, 5*time.Hour), g.ID)
	s.Require().NoError(err)
	s.Equal(*first.AcknowledgedAt, *second.AcknowledgedAt)

	_, err = s.service.Resolve(s.ctxAs(s.admin, 6*time.Hour), g.ID, "first notes")
	s.Require().NoError(err)
	again, err := s.service.Resolve(s.ctxAs(s.admin, 7*time.Hour), g.ID, "second notes")
	s.Require().NoError(err)
	s.Equal("first notes", again.ResolutionNotes)

	events, err := s.auditStore.List(context.Background(), audit.Filter{
		ResourceID: g.ID.String(),
		Action:     audit.ActionGrievanceAcknowledged,
	})
	s.Require().NoError(err)
	s.Len(events, 1)
}

func (s *ServiceSuite) TestReopen() {
	g := s.file(models.SeverityMedium)
	ctx := s.ctxAs(s.admin, time.Hour)
	_, err := s.service.Resolve(ctx, g.ID, "")
	s.requireCode(err, dErrors.CodeInvalidTransition)
	_, err = s.service.Acknowledge(ctx, g.ID)
	s.Require().NoError(err)
	_, err = s.service.Resolve(ctx, g.ID, "fixed")
	s.Require().NoError(err)

	_, err = s.service.Reopen(ctx, g.ID, "   ")
	s.requireCode(err, dErrors.CodeValidation)

	g, err = s.service.Reopen(s.ctxAs(s.admin, 2*time.Hour), g.ID, "parent reports recurrence")
	s.Require().NoError(err)
	s.Equal(models.StatusUnderReview, g.Status)
	s.Nil(g.ResolvedAt)
	s.Empty(g.ResolutionNotes)
	s.Require().Len(g.Comments, 1)
	s.Equal(models.RoleSystem, g.Comments[0].AuthorRole)
	s.Contains(g.Comments[0].Body, "parent reports recurrence")
}

// escalationLog records escalations from a sweeper driven by the service.
type escalationLog struct {
	mu     sync.Mutex
	events []sla.Escalation
}

func (e *escalationLog) Escalate(_ context.Context, esc sla.Escalation) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, esc)
	return nil
}

func (s *ServiceSuite) TestReopenedBreachIsEscalatedAgain() {
	tracker := sla.NewMemoryTracker()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.service = New(s.store, audit.NewPublisher(s.auditStore), logger, WithSLAResetter(tracker))
	escalations := &escalationLog{}
	var clock time.Time
	sweeper, err := sla.NewSweeper(s.service, tracker, escalations,
		sla.WithClock(func() time.Time { return clock }),
		sla.WithLogger(logger),
	)
	s.Require().NoError(err)
	sweepAt := func(offset time.Duration) {
		clock = s.now.Add(offset)
		_, err := sweeper.RunOnce(context.Background())
		s.Require().NoError(err)
	}

	g := s.file(models.SeverityCritical)
	_, err = s.service.Acknowledge(s.ctxAs(s.admin, time.Hour), g.ID)
	s.Require().NoError(err)
	sweepAt(73 * time.Hour)
	s.Require().Len(escalations.events, 1)

	_, err = s.service.Resolve(s.ctxAs(s.admin, 74*time.Hour), g.ID, "Access revoked.")
	s.Require().NoError(err)
	_, err = s.service.Reopen(s.ctxAs(s.admin, 80*time.Hour), g.ID, "parent reports recurrence")
	s.Require().NoError(err)
	sweepAt(81 * time.Hour)

	s.Require().Len(escalations.events, 2)
	s.Equal(sla.KindOverdueResolution, escalations.events[1].Kind)
	s.Equal(81, escalations.events[1].ElapsedHours)
	s.Equal(sla.Kind(""), escalations.events[1].Previous)
}

func (s *ServiceSuite) TestComments() {
	g := s.file(models.SeverityMedium)

	c, err := s.service.AddComment(s.ctxAs(s.filer, time.Hour), g.ID, s.filer.ID, models.RoleFiler, "Any update?")
	s.Require().NoError(err)
	s.Equal(models.RoleFiler, c.AuthorRole)

	_, err = s.service.AddComment(s.ctxAs(s.admin, 2*time.Hour), g.ID, s.admin.ID, models.RoleAdmin, "Looking into it.")
	s.Require().NoError(err)

	s.Run("other guardians cannot see the grievance", func() {
		_, err := s.service.AddComment(s.ctxAs(s.other, time.Hour), g.ID, s.other.ID, models.RoleFiler, "hello")
		s.requireCode(err, dErrors.CodeNotFound)
	})

	s.Run("admin role requires an admin", func() {
		_, err := s.service.AddComment(s.ctxAs(s.filer, time.Hour), g.ID, s.filer.ID, models.RoleAdmin, "hello")
		s.requireCode(err, dErrors.CodeForbidden)
	})

	s.Run("system role is reserved", func() {
		_, err := s.service.AddComment(s.ctxAs(s.admin, time.Hour), g.ID, s.admin.ID, models.RoleSystem, "hello")
		s.requireCode(err, dErrors.CodeValidation)
	})

	s.Run("author must be the caller", func() {
		_, err := s.service.AddComment(s.ctxAs(s.filer, time.Hour), g.ID, s.other.ID, models.RoleFiler, "hello")
		s.requireCode(err, dErrors.CodeForbidden)
	})

	s.Run("empty body", func() {
		_, err := s.service.AddComment(s.ctxAs(s.filer, time.Hour), g.ID, s.filer.ID, models.RoleFiler, " \n ")
		s.requireCode(err, dErrors.CodeValidation)
	})

	_, err = s.service.Acknowledge(s.ctxAs(s.admin, 3*time.Hour), g.ID)
	s.Require().NoError(err)
	_, err = s.service.Resolve(s.ctxAs(s.admin, 4*time.Hour), g.ID, "done")
	s.Require().NoError(err)

	_, err = s.service.AddComment(s.ctxAs(s.filer, 5*time.Hour), g.ID, s.filer.ID, models.RoleFiler, "Thanks")
	s.requireCode(err, dErrors.CodeGrievanceClosed)
	_, err = s.service.AddComment(s.ctxAs(s.admin, 5*time.Hour), g.ID, s.admin.ID, models.RoleAdmin, "Follow-up note")
	s.Require().NoError(err)

	stored, err := s.service.Get(s.ctxAs(s.filer, 6*time.Hour), g.ID)
	s.Require().NoError(err)
	s.Len(stored.Comments, 3)
	s.Equal(2.0, promtestutil.ToFloat64(s.metrics.CommentsAdded.WithLabelValues("ADMIN")))
}

func (s *ServiceSuite) TestVisibility() {
	g := s.file(models.SeverityLow)
	s.file(models.SeverityHigh)
	_, err := s.service.FileGrievance(s.ctxAs(s.other, time.Minute), FileInput{
		Category:    models.CategoryRetentionViolation,
		Subject:     "Old records",
		Description: "Records from 2019 still visible.",
	})
	s.Require().NoError(err)

	_, err = s.service.Get(s.ctxAs(s.other, time.Hour), g.ID)
	s.requireCode(err, dErrors.CodeNotFound)
	_, err = s.service.GetByPublicID(s.ctxAs(s.other, time.Hour), g.PublicID)
	s.requireCode(err, dErrors.CodeNotFound)

	byPublic, err := s.service.GetByPublicID(s.ctxAs(s.admin, time.Hour), g.PublicID)
	s.Require().NoError(err)
	s.Equal(g.ID, byPublic.ID)

	mine, err := s.service.List(s.ctxAs(s.filer, time.Hour), models.Filter{FiledBy: s.other.ID})
	s.Require().NoError(err)
	s.Len(mine, 2)
	for _, m := range mine {
		s.Equal(s.filer.ID, m.FiledBy)
	}

	all, err := s.service.List(s.ctxAs(s.admin, time.Hour), models.Filter{})
	s.Require().NoError(err)
	s.Len(all, 3)

	high, err := s.service.List(s.ctxAs(s.admin, time.Hour), models.Filter{Severity: models.SeverityHigh})
	s.Require().NoError(err)
	s.Len(high, 1)

	_, err = s.service.List(s.ctxAs(s.admin, time.Hour), models.Filter{Status: "PENDING"})
	s.requireCode(err, dErrors.CodeValidation)
}

func (s *ServiceSuite) TestConcurrentTransitionsApplyOnce() {
	g := s.file(models.SeverityHigh)

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.Acknowledge(s.ctxAs(s.admin, time.Duration(i+1)*time.Minute), g.ID)
			s.NoError(err)
		}()
	}
	wg.Wait()

	events, err := s.auditStore.List(context.Background(), audit.Filter{
		ResourceID: g.ID.String(),
		Action:     audit.ActionGrievanceAcknowledged,
	})
	s.Require().NoError(err)
	s.Len(events, 1)
	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.Transitions.WithLabelValues("ACKNOWLEDGED")))
}

func (s *ServiceSuite) TestConcurrentCommentsAllKept() {
	g := s.file(models.SeverityHigh)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.AddComment(s.ctxAs(s.admin, time.Hour), g.ID, s.admin.ID, models.RoleAdmin, "note")
			s.NoError(err)
		}()
	}
	wg.Wait()

	stored, err := s.service.Get(s.ctxAs(s.admin, 2*time.Hour), g.ID)
	s.Require().NoError(err)
	s.Len(stored.Comments, 20)
}

func TestFileRetriesPublicIDCollision(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)
	auditor := mocks.NewMockAuditor(ctrl)
	svc := New(st, auditor, slog.New(slog.NewTextHandler(io.Discard, nil)))

	gomock.InOrder(
		st.EXPECT().Create(gomock.Any(), gomock.Any()).Return(sentinel.ErrConflict),
		st.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil),
	)
	auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e audit.Event) error {
			assert.Equal(t, audit.ActionGrievanceFiled, e.Action)
			assert.Equal(t, audit.ResourceGrievance, e.ResourceType)
			return nil
		})

	ctx := requestcontext.WithActor(context.Background(), requestcontext.Actor{ID: "guardian-1", Role: requestcontext.RoleGuardian})
	g, err := svc.FileGrievance(ctx, FileInput{Category: models.CategoryOther, Subject: "s", Description: "d"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmitted, g.Status)
}

func TestStoreFailuresAreInternal(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)
	svc := New(st, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	st.EXPECT().Execute(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("connection reset"))

	ctx := requestcontext.WithActor(context.Background(), requestcontext.Actor{ID: "admin-1", Role: requestcontext.RoleAdmin})
	_, err := svc.Acknowledge(ctx, id.NewGrievanceID())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
}
