package audit

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var eventColumns = []string{
	"id", "occurred_at", "action", "actor_id", "actor_role", "resource_type", "resource_id",
	"student_id", "purpose", "decision", "reason", "request_id", "client_device", "ip_prefix",
}

// PostgresStore persists audit events in the audit_events table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, e Event) error {
	query, args, err := psql.Insert("audit_events").
		Columns(eventColumns...).
		Values(e.ID, e.OccurredAt, string(e.Action), e.ActorID, e.ActorRole, string(e.ResourceType), e.ResourceID,
			e.StudentID, e.Purpose, e.Decision, e.Reason, e.RequestID, e.ClientDevice, e.IPPrefix).
		ToSql()
	if err != nil {
		return fmt.Errorf("build audit insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]Event, error) {
	q := psql.Select(eventColumns...).From("audit_events")
	if filter.ResourceType != "" {
		q = q.Where(sq.Eq{"resource_type": string(filter.ResourceType)})
	}
	if filter.ResourceID != "" {
		q = q.Where(sq.Eq{"resource_id": filter.ResourceID})
	}
	if filter.StudentID != "" {
		q = q.Where(sq.Eq{"student_id": filter.StudentID})
	}
	if filter.Action != "" {
		q = q.Where(sq.Eq{"action": string(filter.Action)})
	}
	query, args, err := q.OrderBy("occurred_at DESC", "id DESC").Limit(uint64(filter.limit())).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build audit query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var action, resourceType string
		if err := rows.Scan(&e.ID, &e.OccurredAt, &action, &e.ActorID, &e.ActorRole, &resourceType, &e.ResourceID,
			&e.StudentID, &e.Purpose, &e.Decision, &e.Reason, &e.RequestID, &e.ClientDevice, &e.IPPrefix); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Action = Action(action)
		e.ResourceType = ResourceType(resourceType)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return out, nil
}
