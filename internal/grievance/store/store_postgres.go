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

	"compliance/internal/grievance/models"
	"compliance/internal/platform/database"
	id "compliance/pkg/domain"
	"compliance/pkg/platform/sentinel"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var grievanceColumns = []string{
	"id", "public_id", "student_id", "filed_by", "category", "subject", "description",
	"severity", "status", "filed_at", "acknowledged_at", "review_started_at",
	"resolved_at", "closed_at", "resolution_notes",
}

var commentColumns = []string{"id", "grievance_id", "author_id", "author_role", "body", "created_at"}

const uniqueViolation = "23505"

// PostgresStore persists grievances in grievances and grievance_comments.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, g *models.Grievance) error {
	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		query, args, err := psql.Insert("grievances").
			Columns(grievanceColumns...).
			Values(grievanceValues(g)...).
			ToSql()
		if err != nil {
			return fmt.Errorf("build grievance insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return sentinel.ErrConflict
			}
			return fmt.Errorf("insert grievance: %w", err)
		}
		return insertComments(ctx, tx, g.Comments)
	})
}

func (s *PostgresStore) FindByID(ctx context.Context, grievanceID id.GrievanceID) (*models.Grievance, error) {
	return s.findWithComments(ctx, s.db, sq.Eq{"id": uuid.UUID(grievanceID)}, "")
}

func (s *PostgresStore) FindByPublicID(ctx context.Context, publicID string) (*models.Grievance, error) {
	return s.findWithComments(ctx, s.db, sq.Eq{"public_id": publicID}, "")
}

// List returns matches oldest first, without comments.
func (s *PostgresStore) List(ctx context.Context, filter models.Filter) ([]*models.Grievance, error) {
	q := psql.Select(grievanceColumns...).From("grievances")
	if filter.Status != "" {
		q = q.Where(sq.Eq{"status": string(filter.Status)})
	}
	if filter.Category != "" {
		q = q.Where(sq.Eq{"category": string(filter.Category)})
	}
	if filter.Severity != "" {
		q = q.Where(sq.Eq{"severity": string(filter.Severity)})
	}
	if filter.FiledBy != "" {
		q = q.Where(sq.Eq{"filed_by": filter.FiledBy.String()})
	}
	if filter.OpenOnly {
		q = q.Where(sq.Eq{"status": openStatuses()})
	}
	q = q.OrderBy("filed_at", "public_id").Limit(uint64(filter.EffectiveLimit()))
	return s.list(ctx, q)
}

// ListOpen returns every open grievance, unpaged, oldest first.
func (s *PostgresStore) ListOpen(ctx context.Context) ([]*models.Grievance, error) {
	return s.list(ctx, psql.Select(grievanceColumns...).
		From("grievances").
		Where(sq.Eq{"status": openStatuses()}).
		OrderBy("filed_at", "public_id"))
}

// Execute locks the grievance row with SELECT ... FOR UPDATE for the duration
// of fn. Comments appended by fn are inserted in order.
func (s *PostgresStore) Execute(ctx context.Context, grievanceID id.GrievanceID, fn func(*models.Grievance) (bool, error)) (*models.Grievance, error) {
	var out *models.Grievance
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		g, err := s.findWithComments(ctx, tx, sq.Eq{"id": uuid.UUID(grievanceID)}, "FOR UPDATE")
		if err != nil {
			return err
		}
		existing := len(g.Comments)

		changed, err := fn(g)
		if err != nil {
			return err
		}
		if changed {
			if err := update(ctx, tx, g); err != nil {
				return err
			}
			if err := insertComments(ctx, tx, g.Comments[existing:]); err != nil {
				return err
			}
		}
		out = g
		return nil
	})
	return out, err
}

func update(ctx context.Context, exec database.Executor, g *models.Grievance) error {
	query, args, err := psql.Update("grievances").
		SetMap(map[string]any{
			"status":            string(g.Status),
			"acknowledged_at":   nullTime(g.AcknowledgedAt),
			"review_started_at": nullTime(g.ReviewStartedAt),
			"resolved_at":       nullTime(g.ResolvedAt),
			"closed_at":         nullTime(g.ClosedAt),
			"resolution_notes":  database.NullString(g.ResolutionNotes),
		}).
		Where(sq.Eq{"id": uuid.UUID(g.ID)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build grievance update: %w", err)
	}
	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update grievance: %w", err)
	}
	return nil
}

func insertComments(ctx context.Context, exec database.Executor, comments []models.Comment) error {
	if len(comments) == 0 {
		return nil
	}
	q := psql.Insert("grievance_comments").Columns(commentColumns...)
	for _, c := range comments {
		q = q.Values(uuid.UUID(c.ID), uuid.UUID(c.GrievanceID), c.AuthorID.String(), string(c.AuthorRole), c.Body, c.CreatedAt)
	}
	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build comment insert: %w", err)
	}
	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert comments: %w", err)
	}
	return nil
}

func (s *PostgresStore) findWithComments(ctx context.Context, exec database.Executor, where sq.Eq, suffix string) (*models.Grievance, error) {
	q := psql.Select(grievanceColumns...).From("grievances").Where(where)
	if suffix != "" {
		q = q.Suffix(suffix)
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build grievance query: %w", err)
	}
	g, err := scanGrievance(exec.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, err
	}

	query, args, err = psql.Select(commentColumns...).
		From("grievance_comments").
		Where(sq.Eq{"grievance_id": uuid.UUID(g.ID)}).
		OrderBy("seq").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build comment query: %w", err)
	}
	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load comments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		g.Comments = append(g.Comments, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return g, nil
}

func (s *PostgresStore) list(ctx context.Context, q sq.SelectBuilder) ([]*models.Grievance, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build grievance list: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list grievances: %w", err)
	}
	defer rows.Close()

	var out []*models.Grievance
	for rows.Next() {
		g, err := scanGrievance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate grievances: %w", err)
	}
	return out, nil
}

func openStatuses() []string {
	out := make([]string, 0, len(models.OpenStatuses))
	for _, st := range models.OpenStatuses {
		out = append(out, string(st))
	}
	return out
}

func grievanceValues(g *models.Grievance) []any {
	var studentID uuid.NullUUID
	if g.StudentID != nil {
		studentID = uuid.NullUUID{UUID: uuid.UUID(*g.StudentID), Valid: true}
	}
	return []any{
		uuid.UUID(g.ID), g.PublicID, studentID, g.FiledBy.String(), string(g.Category),
		g.Subject, g.Description, string(g.Severity), string(g.Status), g.FiledAt,
		nullTime(g.AcknowledgedAt), nullTime(g.ReviewStartedAt), nullTime(g.ResolvedAt),
		nullTime(g.ClosedAt), database.NullString(g.ResolutionNotes),
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGrievance(row rowScanner) (*models.Grievance, error) {
	var (
		g                    models.Grievance
		grievanceID          uuid.UUID
		studentID            uuid.NullUUID
		filedBy, category    string
		severity, status     string
		ackAt, reviewAt      sql.NullTime
		resolvedAt, closedAt sql.NullTime
		notes                sql.NullString
	)
	err := row.Scan(&grievanceID, &g.PublicID, &studentID, &filedBy, &category, &g.Subject, &g.Description,
		&severity, &status, &g.FiledAt, &ackAt, &reviewAt, &resolvedAt, &closedAt, &notes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan grievance: %w", err)
	}

	g.ID = id.GrievanceID(grievanceID)
	g.FiledBy = id.ActorID(filedBy)
	g.Category = models.Category(category)
	g.Severity = models.Severity(severity)
	g.Status = models.Status(status)
	g.ResolutionNotes = notes.String
	if studentID.Valid {
		v := id.StudentID(studentID.UUID)
		g.StudentID = &v
	}
	g.AcknowledgedAt = timePtr(ackAt)
	g.ReviewStartedAt = timePtr(reviewAt)
	g.ResolvedAt = timePtr(resolvedAt)
	g.ClosedAt = timePtr(closedAt)
	return &g, nil
}

func scanComment(row rowScanner) (*models.Comment, error) {
	var (
		c                   models.Comment
		commentID, parentID uuid.UUID
		author, role        string
	)
	if err := row.Scan(&commentID, &parentID, &author, &role, &c.Body, &c.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan comment: %w", err)
	}
	c.ID = id.CommentID(commentID)
	c.GrievanceID = id.GrievanceID(parentID)
	c.AuthorID = id.ActorID(author)
	c.AuthorRole = models.AuthorRole(role)
	return &c, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
