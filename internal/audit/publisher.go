package audit

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"compliance/pkg/platform/privacy"
	"compliance/pkg/requestcontext"
)

// Publisher captures audit events. It is append-only and persists through
// the Store so tests can swap sinks.
type Publisher struct {
	store  Store
	events chan Event
	wg     sync.WaitGroup
	logger *slog.Logger
	async  bool

	// mu guards closed and every send on events.
	mu     sync.RWMutex
	closed bool
}

type PublisherOption func(*Publisher)

// WithAsyncBuffer queues events and persists them in a background goroutine.
func WithAsyncBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		if size > 0 {
			p.events = make(chan Event, size)
			p.async = true
		}
	}
}

func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.async {
		p.wg.Add(1)
		go p.processEvents()
	}
	return p
}

func (p *Publisher) processEvents() {
	defer p.wg.Done()
	for event := range p.events {
		if err := p.store.Append(context.Background(), event); err != nil && p.logger != nil {
			p.logger.Error("failed to persist audit event",
				"error", err,
				"action", event.Action,
				"resource_id", event.ResourceID,
			)
		}
	}
}

// Close drains pending events. Safe to call more than once.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.async {
		close(p.events)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Emit enriches the event with request metadata and records it.
// In async mode a full buffer drops the event rather than block the caller.
// After Close, events are written straight to the store.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	event = enrich(ctx, event)
	if p.async && p.enqueue(ctx, event) {
		return nil
	}
	return p.store.Append(ctx, event)
}

// enqueue reports false once the publisher is closed.
func (p *Publisher) enqueue(ctx context.Context, event Event) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.events <- event:
	default:
		if p.logger != nil {
			p.logger.WarnContext(ctx, "audit buffer full, event dropped",
				"action", event.Action,
				"resource_id", event.ResourceID,
			)
		}
	}
	return true
}

func (p *Publisher) List(ctx context.Context, filter Filter) ([]Event, error) {
	return p.store.List(ctx, filter)
}

func enrich(ctx context.Context, e Event) Event {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = requestcontext.Now(ctx)
	}
	if e.RequestID == "" {
		e.RequestID = requestcontext.RequestID(ctx)
	}
	if e.ClientDevice == "" {
		e.ClientDevice = requestcontext.ClientDevice(ctx)
	}
	if e.IPPrefix == "" {
		e.IPPrefix = privacy.AnonymizeIP(requestcontext.ClientIP(ctx))
	}
	if e.ActorID == "" {
		if actor, ok := requestcontext.ActorFrom(ctx); ok {
			e.ActorID = actor.ID.String()
			e.ActorRole = string(actor.Role)
		}
	}
	return e
}
