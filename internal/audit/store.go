package audit

import "context"

type Store interface {
	Append(ctx context.Context, event Event) error
	// List returns matching events, newest first.
	List(ctx context.Context, filter Filter) ([]Event, error)
}
