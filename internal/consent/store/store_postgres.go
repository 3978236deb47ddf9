package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"compliance/internal/consent/models"
	"compliance/internal/platform/database"
	vmodels "compliance/internal/verification/models"
	id "compliance/pkg/domain"
	"compliance/pkg/platform/sentinel"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var recordColumns = []string{
	"id", "student_id", "purpose_code", "verification_method", "status", "challenge_id",
	"consent_given", "consent_date", "withdrawn", "withdrawn_at", "withdrawal_reason",
	"requested_by", "supersedes", "created_at", "updated_at", "version",
}

const uniqueViolation = "23505"

// PostgresStore persists consent records in consent_records.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, r *models.Record) error {
	query, args, err := psql.Insert("consent_records").
		Columns(recordColumns...).
		Values(recordValues(r)...).
		ToSql()
	if err != nil {
		return fmt.Errorf("build consent insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert consent record: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, consentID id.ConsentID) (*models.Record, error) {
	return s.findOne(ctx, s.db, psql.Select(recordColumns...).
		From("consent_records").
		Where(sq.Eq{"id": uuid.UUID(consentID)}))
}

// FindLatest prefers the live record, of which there is at most one, over
// withdrawn history that may share its created_at.
func (s *PostgresStore) FindLatest(ctx context.Context, studentID id.StudentID, purposeCode string) (*models.Record, error) {
	return s.findOne(ctx, s.db, psql.Select(recordColumns...).
		From("consent_records").
		Where(sq.Eq{"student_id": uuid.UUID(studentID), "purpose_code": purposeCode}).
		OrderByClause("status <> ? DESC", string(models.StatusWithdrawn)).
		OrderBy("created_at DESC", "version DESC").
		Limit(1))
}

func (s *PostgresStore) ListByStudent(ctx context.Context, studentID id.StudentID) ([]*models.Record, error) {
	query, args, err := psql.Select(recordColumns...).
		From("consent_records").
		Where(sq.Eq{"student_id": uuid.UUID(studentID)}).
		OrderBy("created_at", "purpose_code").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build consent list: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list consent records: %w", err)
	}
	defer rows.Close()

	var out []*models.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consent records: %w", err)
	}
	return out, nil
}

// Execute locks the row with SELECT ... FOR UPDATE for the duration of fn.
func (s *PostgresStore) Execute(ctx context.Context, consentID id.ConsentID, fn func(*models.Record) (bool, error)) (*models.Record, error) {
	var out *models.Record
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		r, err := s.findOne(ctx, tx, psql.Select(recordColumns...).
			From("consent_records").
			Where(sq.Eq{"id": uuid.UUID(consentID)}).
			Suffix("FOR UPDATE"))
		if err != nil {
			return err
		}

		changed, err := fn(r)
		if err != nil {
			return err
		}
		if changed {
			if err := update(ctx, tx, r); err != nil {
				return err
			}
		}
		out = r
		return nil
	})
	return out, err
}

func update(ctx context.Context, exec database.Executor, r *models.Record) error {
	query, args, err := psql.Update("consent_records").
		SetMap(map[string]any{
			"verification_method": string(r.VerificationMethod),
			"status":              string(r.Status),
			"challenge_id":        nullUUID(r.ChallengeID),
			"consent_given":       r.ConsentGiven,
			"consent_date":        nullTime(r.ConsentDate),
			"withdrawn":           r.Withdrawn,
			"withdrawn_at":        nullTime(r.WithdrawnAt),
			"withdrawal_reason":   database.NullString(r.WithdrawalReason),
			"requested_by":        r.RequestedBy.String(),
			"updated_at":          r.UpdatedAt,
			"version":             r.Version,
		}).
		Where(sq.Eq{"id": uuid.UUID(r.ID)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build consent update: %w", err)
	}
	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update consent record: %w", err)
	}
	return nil
}

func (s *PostgresStore) findOne(ctx context.Context, exec database.Executor, q sq.SelectBuilder) (*models.Record, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build consent query: %w", err)
	}
	return scanRecord(exec.QueryRowContext(ctx, query, args...))
}

func recordValues(r *models.Record) []any {
	return []any{
		uuid.UUID(r.ID), uuid.UUID(r.StudentID), r.PurposeCode, string(r.VerificationMethod), string(r.Status),
		nullUUID(r.ChallengeID), r.ConsentGiven, nullTime(r.ConsentDate), r.Withdrawn, nullTime(r.WithdrawnAt),
		database.NullString(r.WithdrawalReason), r.RequestedBy.String(), nullUUID(r.Supersedes),
		r.CreatedAt, r.UpdatedAt, r.Version,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var (
		r                       models.Record
		recordID, studentID     uuid.UUID
		method, status, actor   string
		challengeID, supersedes uuid.NullUUID
		consentDate, withdrawAt sql.NullTime
		reason                  sql.NullString
	)
	err := row.Scan(&recordID, &studentID, &r.PurposeCode, &method, &status, &challengeID,
		&r.ConsentGiven, &consentDate, &r.Withdrawn, &withdrawAt, &reason,
		&actor, &supersedes, &r.CreatedAt, &r.UpdatedAt, &r.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan consent record: %w", err)
	}

	r.ID = id.ConsentID(recordID)
	r.StudentID = id.StudentID(studentID)
	r.VerificationMethod = vmodels.Method(method)
	r.Status = models.Status(status)
	r.RequestedBy = id.ActorID(actor)
	r.WithdrawalReason = reason.String
	if challengeID.Valid {
		v := id.ChallengeID(challengeID.UUID)
		r.ChallengeID = &v
	}
	if supersedes.Valid {
		v := id.ConsentID(supersedes.UUID)
		r.Supersedes = &v
	}
	if consentDate.Valid {
		v := consentDate.Time
		r.ConsentDate = &v
	}
	if withdrawAt.Valid {
		v := withdrawAt.Time
		r.WithdrawnAt = &v
	}
	return &r, nil
}

func nullUUID[T ~[16]byte](v *T) uuid.NullUUID {
	if v == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*v), Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
