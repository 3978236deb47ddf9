package sla_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"compliance/internal/grievance/models"
	"compliance/internal/sla"
	"compliance/internal/sla/metrics"
	"compliance/internal/sla/mocks"
	id "compliance/pkg/domain"
)

// recordingEscalator keeps every escalation it receives.
type recordingEscalator struct {
	mu     sync.Mutex
	events []sla.Escalation
}

func (r *recordingEscalator) Escalate(_ context.Context, e sla.Escalation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingEscalator) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type staticLister []*models.Grievance

func (l staticLister) ListOpen(context.Context) ([]*models.Grievance, error) {
	return l, nil
}

// openSet is a lister whose contents change between sweeps.
type openSet struct {
	mu    sync.Mutex
	items []*models.Grievance
}

func (o *openSet) set(items ...*models.Grievance) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.items = items
}

func (o *openSet) ListOpen(context.Context) ([]*models.Grievance, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*models.Grievance(nil), o.items...), nil
}

// forgetTracker counts Forget calls and can be told to fail them.
type forgetTracker struct {
	*sla.MemoryTracker
	mu      sync.Mutex
	fail    bool
	forgets int
}

func (f *forgetTracker) Forget(ctx context.Context, grievanceID id.GrievanceID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forgets++
	if f.fail {
		return errors.New("tracker unavailable")
	}
	return f.MemoryTracker.Forget(ctx, grievanceID)
}

type SweeperSuite struct {
	suite.Suite
	filedAt   time.Time
	now       time.Time
	escalator *recordingEscalator
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func TestSweeperSuite(t *testing.T) {
	suite.Run(t, new(SweeperSuite))
}

func (s *SweeperSuite) SetupTest() {
	s.filedAt = time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	s.now = s.filedAt
	s.escalator = &recordingEscalator{}
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *SweeperSuite) newSweeper(lister sla.OpenLister, tracker sla.Tracker, escalator sla.Escalator) *sla.Sweeper {
	sweeper, err := sla.NewSweeper(lister, tracker, escalator,
		sla.WithClock(func() time.Time { return s.now }),
		sla.WithMetrics(s.metrics),
		sla.WithLogger(s.logger),
	)
	s.Require().NoError(err)
	return sweeper
}

func (s *SweeperSuite) grievance(severity models.Severity) *models.Grievance {
	return models.NewGrievance("guardian-1", nil, models.CategoryDataBreach, severity, "X", "Y", s.filedAt)
}

func (s *SweeperSuite) TestEscalatesOncePerBreach() {
	ctx := context.Background()
	g := s.grievance(models.SeverityCritical)
	sweeper := s.newSweeper(staticLister{g}, sla.NewMemoryTracker(), s.escalator)

	s.now = s.filedAt.Add(2 * time.Hour)
	res, err := sweeper.RunOnce(ctx)
	s.Require().NoError(err)
	s.Equal(sla.SweepResult{Open: 1, Unchanged: 1}, res)

	s.now = s.filedAt.Add(25 * time.Hour)
	res, err = sweeper.RunOnce(ctx)
	s.Require().NoError(err)
	s.Equal(1, res.Escalated)
	s.Require().Equal(1, s.escalator.count())
	s.Equal(sla.KindOverdueAck, s.escalator.events[0].Kind)
	s.Equal(g.PublicID, s.escalator.events[0].PublicID)

	// Same classification again: nothing new.
	res, err = sweeper.RunOnce(ctx)
	s.Require().NoError(err)
	s.Equal(0, res.Escalated)
	s.Equal(1, res.Breached)
	s.Equal(1, s.escalator.count())

	// Acknowledged late, then the critical resolution window lapses.
	s.Require().NoError(g.Acknowledge(s.filedAt.Add(26 * time.Hour)))
	s.now = s.filedAt.Add(73 * time.Hour)
	_, err = sweeper.RunOnce(ctx)
	s.Require().NoError(err)
	s.Require().Equal(2, s.escalator.count())
	s.Equal(sla.KindOverdueResolution, s.escalator.events[1].Kind)
	s.Equal(sla.KindOverdueAck, s.escalator.events[1].Previous)

	s.Equal(float64(1), promtestutil.ToFloat64(s.metrics.Escalations.WithLabelValues("OVERDUE_ACK")))
	s.Equal(float64(1), promtestutil.ToFloat64(s.metrics.Escalations.WithLabelValues("OVERDUE_RESOLUTION")))
	s.Equal(float64(1), promtestutil.ToFloat64(s.metrics.OpenByKind.WithLabelValues("OVERDUE_RESOLUTION")))
}

func (s *SweeperSuite) TestRecoveryThenNewBreach() {
	ctx := context.Background()
	g := s.grievance(models.SeverityCritical)
	lister := staticLister{g}
	sweeper := s.newSweeper(lister, sla.NewMemoryTracker(), s.escalator)

	s.now = s.filedAt.Add(25 * time.Hour)
	_, err := sweeper.RunOnce(ctx)
	s.Require().NoError(err)

	s.Require().NoError(g.Acknowledge(s.now))
	s.now = s.filedAt.Add(30 * time.Hour)
	_, err = sweeper.RunOnce(ctx)
	s.Require().NoError(err)
	s.Equal(1, s.escalator.count())

	s.now = s.filedAt.Add(80 * time.Hour)
	_, err = sweeper.RunOnce(ctx)
	s.Require().NoError(err)
	s.Require().Equal(2, s.escalator.count())
	s.Equal(sla.KindOnTrack, s.escalator.events[1].Previous)
}

func (s *SweeperSuite) TestReopenedBreachEscalatesAgain() {
	ctx := context.Background()
	g := s.grievance(models.SeverityCritical)
	open := &openSet{}
	open.set(g)
	tracker := sla.NewMemoryTracker()
	sweeper := s.newSweeper(open, tracker, s.escalator)

	s.Require().NoError(g.Acknowledge(s.filedAt.Add(time.Hour)))
	s.now = s.filedAt.Add(73 * time.Hour)
	_, err := sweeper.RunOnce(ctx)
	s.Require().NoError(err)
	s.Require().Equal(1, s.escalator.count())

	s.Require().NoError(g.Resolve("Access revoked.", s.filedAt.Add(74*time.Hour)))
	open.set()
	s.now = s.filedAt.Add(75 * time.Hour)
	res, err := sweeper.RunOnce(ctx)
	s.Require().NoError(err)
	s.Equal(0, res.Open)

	s.Require().NoError(g.Reopen(s.filedAt.Add(80 * time.Hour)))
	open.set(g)
	s.now = s.filedAt.Add(81 * time.Hour)
	res, err = sweeper.RunOnce(ctx)
	s.Require().NoError(err)
	s.Equal(1, res.Escalated)
	s.Require().Equal(2, s.escalator.count())
	s.Equal(sla.KindOverdueResolution, s.escalator.events[1].Kind)
	s.Equal(81, s.escalator.events[1].ElapsedHours)
	s.Equal(sla.Kind(""), s.escalator.events[1].Previous)
}

func (s *SweeperSuite) TestDepartedGrievancesAreForgotten() {
	ctx := context.Background()
	a := s.grievance(models.SeverityLow)
	b := s.grievance(models.SeverityLow)
	open := &openSet{}
	open.set(a, b)
	tracker := &forgetTracker{MemoryTracker: sla.NewMemoryTracker()}
	sweeper := s.newSweeper(open, tracker, s.escalator)

	s.now = s.filedAt.Add(25 * time.Hour)
	_, err := sweeper.RunOnce(ctx)
	s.Require().NoError(err)
	s.Equal(0, tracker.forgets)

	open.set(b)
	tracker.fail = true
	_, err = sweeper.RunOnce(ctx)
	s.ErrorContains(err, "forget grievance")

	tracker.fail = false
	_, err = sweeper.RunOnce(ctx)
	s.Require().NoError(err)
	s.Equal(2, tracker.forgets, "a failed forget is retried on the next sweep")

	prev, err := tracker.Swap(ctx, a.ID, sla.KindOnTrack)
	s.Require().NoError(err)
	s.Equal(sla.Kind(""), prev)
	prev, err = tracker.Swap(ctx, b.ID, sla.KindOverdueAck)
	s.Require().NoError(err)
	s.Equal(sla.KindOverdueAck, prev, "still-open grievances keep their observation")

	_, err = sweeper.RunOnce(ctx)
	s.Require().NoError(err)
	s.Equal(2, tracker.forgets)
}

func (s *SweeperSuite) TestConcurrentSweepersShareRedisState() {
	ctx := context.Background()
	mr := miniredis.RunT(s.T())
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	open := staticLister{
		s.grievance(models.SeverityLow),
		s.grievance(models.SeverityCritical),
		s.grievance(models.SeverityMedium),
	}
	s.now = s.filedAt.Add(48 * time.Hour)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sweeper := s.newSweeper(open, sla.NewRedisTracker(client, time.Hour), s.escalator)
			_, _ = sweeper.RunOnce(ctx)
		}()
	}
	wg.Wait()

	s.Equal(len(open), s.escalator.count())
}

func (s *SweeperSuite) TestFailedEscalationIsRetried() {
	ctx := context.Background()
	ctrl := gomock.NewController(s.T())
	escalator := mocks.NewMockEscalator(ctrl)
	g := s.grievance(models.SeverityLow)
	sweeper := s.newSweeper(staticLister{g}, sla.NewMemoryTracker(), escalator)
	s.now = s.filedAt.Add(25 * time.Hour)

	gomock.InOrder(
		escalator.EXPECT().Escalate(gomock.Any(), gomock.Any()).Return(errors.New("broker unavailable")),
		escalator.EXPECT().Escalate(gomock.Any(), gomock.Any()).Return(nil),
	)

	res, err := sweeper.RunOnce(ctx)
	s.Error(err)
	s.Equal(1, res.FailedSends)
	s.Equal(float64(1), promtestutil.ToFloat64(s.metrics.EscalationFails))

	res, err = sweeper.RunOnce(ctx)
	s.NoError(err)
	s.Equal(1, res.Escalated)
}

func (s *SweeperSuite) TestListFailure() {
	ctrl := gomock.NewController(s.T())
	lister := mocks.NewMockOpenLister(ctrl)
	lister.EXPECT().ListOpen(gomock.Any()).Return(nil, errors.New("db down"))

	_, err := s.newSweeper(lister, sla.NewMemoryTracker(), s.escalator).RunOnce(context.Background())
	s.ErrorContains(err, "list open grievances")
}

func (s *SweeperSuite) TestStartStopsOnCancel() {
	ctx, cancel := context.WithCancel(context.Background())
	g := s.grievance(models.SeverityLow)
	s.now = s.filedAt.Add(25 * time.Hour)
	sweeper, err := sla.NewSweeper(staticLister{g}, sla.NewMemoryTracker(), s.escalator,
		sla.WithInterval(10*time.Millisecond),
		sla.WithClock(func() time.Time { return s.now }),
		sla.WithLogger(s.logger),
	)
	s.Require().NoError(err)

	done := make(chan error, 1)
	go func() { done <- sweeper.Start(ctx) }()

	s.Eventually(func() bool { return s.escalator.count() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		s.ErrorIs(err, context.Canceled)
	case <-time.After(time.Second):
		s.Fail("sweeper did not stop")
	}
	s.Equal(1, s.escalator.count())
}

func TestNewSweeperRequiresCollaborators(t *testing.T) {
	if _, err := sla.NewSweeper(nil, sla.NewMemoryTracker(), &recordingEscalator{}); err == nil {
		t.Fatal("expected error for nil lister")
	}
}
