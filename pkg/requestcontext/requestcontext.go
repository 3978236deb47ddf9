// Package requestcontext carries request-scoped values (request ID, request
// time, client metadata and the authenticated actor) through context.Context.
//
// All operations within a single HTTP request use the same "now" timestamp,
// so audit events and domain timestamps written by one request agree.
package requestcontext

import (
	"context"
	"time"

	id "compliance/pkg/domain"
)

type (
	requestIDKey struct{}
	timeKey      struct{}
	clientKey    struct{}
	actorKey     struct{}
)

// Role is the coarse authorization role supplied by the parent portal.
type Role string

const (
	RoleGuardian Role = "GUARDIAN"
	RoleStaff    Role = "STAFF"
	RoleAdmin    Role = "ADMIN"
)

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	return r == RoleGuardian || r == RoleStaff || r == RoleAdmin
}

// Actor is the authenticated caller as asserted by the portal.
type Actor struct {
	ID               id.ActorID
	Role             Role
	IdentityVerified bool
}

// IsAdmin reports whether the actor may perform administrative grievance actions.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

type clientMetadata struct {
	ip        string
	userAgent string
	device    string
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithTime injects a specific time into a context.
// Used by the request-time middleware, by workers that need one "now" per
// batch, and by service tests.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, timeKey{}, t)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(timeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

func WithClientMetadata(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, clientKey{}, clientMetadata{ip: ip, userAgent: userAgent})
}

func ClientIP(ctx context.Context) string {
	if v, ok := ctx.Value(clientKey{}).(clientMetadata); ok {
		return v.ip
	}
	return ""
}

func UserAgent(ctx context.Context) string {
	if v, ok := ctx.Value(clientKey{}).(clientMetadata); ok {
		return v.userAgent
	}
	return ""
}

// WithClientDevice records a display name for the client, e.g. "Chrome on Android".
func WithClientDevice(ctx context.Context, device string) context.Context {
	v, _ := ctx.Value(clientKey{}).(clientMetadata)
	v.device = device
	return context.WithValue(ctx, clientKey{}, v)
}

func ClientDevice(ctx context.Context) string {
	if v, ok := ctx.Value(clientKey{}).(clientMetadata); ok {
		return v.device
	}
	return ""
}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the authenticated actor, if the auth middleware set one.
func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	if !ok || a.ID.IsNil() {
		return Actor{}, false
	}
	return a, true
}
