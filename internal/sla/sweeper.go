package sla

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"compliance/internal/grievance/models"
	"compliance/internal/platform/tracer"
	"compliance/internal/sla/metrics"
	id "compliance/pkg/domain"
)

// OpenLister lists grievances the SLA clock still runs for.
type OpenLister interface {
	ListOpen(ctx context.Context) ([]*models.Grievance, error)
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Open        int
	Breached    int
	Escalated   int
	Unchanged   int
	FailedSends int
}

// Sweeper periodically classifies open grievances and escalates new breaches.
type Sweeper struct {
	lister    OpenLister
	tracker   Tracker
	escalator Escalator
	interval  time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    tracer.Tracer
	now       func() time.Time

	// lastOpen is the open set seen by the previous sweep.
	mu       sync.Mutex
	lastOpen map[id.GrievanceID]struct{}
}

// SweeperOption configures Sweeper.
type SweeperOption func(*Sweeper)

// WithInterval overrides the sweep interval when greater than zero.
func WithInterval(interval time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

func WithLogger(logger *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) SweeperOption {
	return func(s *Sweeper) {
		s.metrics = m
	}
}

func WithTracer(t tracer.Tracer) SweeperOption {
	return func(s *Sweeper) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSweeper constructs a Sweeper with required collaborators and options applied.
func NewSweeper(lister OpenLister, tracker Tracker, escalator Escalator, opts ...SweeperOption) (*Sweeper, error) {
	if lister == nil || tracker == nil || escalator == nil {
		return nil, fmt.Errorf("lister, tracker, and escalator are required")
	}
	s := &Sweeper{
		lister:    lister,
		tracker:   tracker,
		escalator: escalator,
		interval:  5 * time.Minute,
		logger:    slog.Default(),
		tracer:    tracer.NewNoop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Start runs a sweep immediately and then on every tick until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.ErrorContext(ctx, "sla sweep failed", "error", err)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunOnce classifies every open grievance once. Re-running it without a
// state change emits nothing.
func (s *Sweeper) RunOnce(ctx context.Context) (res SweepResult, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanSLASweep)
	defer func() {
		span.SetAttributes(
			tracer.Int(tracer.AttrOpenCount, res.Open),
			tracer.Int(tracer.AttrEscalations, res.Escalated),
		)
		span.End(err)
	}()
	start := time.Now()
	now := s.now()

	open, err := s.lister.ListOpen(ctx)
	if err != nil {
		return res, fmt.Errorf("list open grievances: %w", err)
	}
	res.Open = len(open)

	var errs []error
	if err := s.forgetDeparted(ctx, open); err != nil {
		errs = append(errs, err)
	}

	counts := make(map[string]int)
	for _, g := range open {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		st := Classify(g, now)
		counts[string(st.Kind)]++
		if st.Kind.IsBreach() {
			res.Breached++
		}

		escalated, err := s.observe(ctx, g, st, now)
		switch {
		case err != nil:
			res.FailedSends++
			errs = append(errs, fmt.Errorf("grievance %s: %w", g.PublicID, err))
		case escalated:
			res.Escalated++
		default:
			res.Unchanged++
		}
	}

	if s.metrics != nil {
		s.metrics.SetOpen(counts)
		s.metrics.ObserveSweep(time.Since(start).Seconds())
	}
	s.logger.DebugContext(ctx, "sla sweep completed",
		"open", res.Open,
		"breached", res.Breached,
		"escalated", res.Escalated,
	)
	return res, errors.Join(errs...)
}

// observe records the classification and escalates on entry into a breach.
// A failed send restores the previous observation so the next sweep retries.
func (s *Sweeper) observe(ctx context.Context, g *models.Grievance, st Status, now time.Time) (bool, error) {
	prev, err := s.tracker.Swap(ctx, g.ID, st.Kind)
	if err != nil {
		return false, err
	}
	if !st.Kind.IsBreach() || prev == st.Kind {
		return false, nil
	}

	if err := s.escalator.Escalate(ctx, newEscalation(g, st, prev, now)); err != nil {
		if s.metrics != nil {
			s.metrics.IncrementEscalationFailure()
		}
		if rerr := s.restore(ctx, g, prev); rerr != nil {
			err = errors.Join(err, rerr)
		}
		return false, fmt.Errorf("escalate: %w", err)
	}

	if s.metrics != nil {
		s.metrics.IncrementEscalation(string(st.Kind))
	}
	s.logger.InfoContext(ctx, "grievance escalated",
		"grievance_id", g.ID.String(),
		"public_id", g.PublicID,
		"kind", st.Kind,
		"previous", prev,
	)
	return true, nil
}

// forgetDeparted drops observations for grievances that left the open set
// since the previous sweep, so a reopened grievance escalates afresh. Ids
// whose Forget failed stay in the set and are retried on the next sweep.
func (s *Sweeper) forgetDeparted(ctx context.Context, open []*models.Grievance) error {
	current := make(map[id.GrievanceID]struct{}, len(open))
	for _, g := range open {
		current[g.ID] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for gid := range s.lastOpen {
		if _, ok := current[gid]; ok {
			continue
		}
		if err := s.tracker.Forget(ctx, gid); err != nil {
			current[gid] = struct{}{}
			errs = append(errs, fmt.Errorf("forget grievance %s: %w", gid, err))
		}
	}
	s.lastOpen = current
	return errors.Join(errs...)
}

func (s *Sweeper) restore(ctx context.Context, g *models.Grievance, prev Kind) error {
	if prev == "" {
		return s.tracker.Forget(ctx, g.ID)
	}
	_, err := s.tracker.Swap(ctx, g.ID, prev)
	return err
}
