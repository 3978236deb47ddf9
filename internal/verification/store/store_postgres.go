package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"compliance/internal/platform/database"
	"compliance/internal/verification/models"
	id "compliance/pkg/domain"
	"compliance/pkg/platform/sentinel"
)

// PostgresStore persists challenges in verification_challenges.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const challengeColumns = `id, consent_record_id, method, code_hash, destination_hint,
	issued_at, expires_at, attempts, consumed, satisfied`

func (s *PostgresStore) Issue(ctx context.Context, c *models.Challenge) error {
	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		// Lock the owning consent row so concurrent issues for one record queue up.
		if _, err := tx.ExecContext(ctx,
			`SELECT 1 FROM consent_records WHERE id = $1 FOR UPDATE`,
			uuid.UUID(c.ConsentRecordID)); err != nil {
			return fmt.Errorf("lock consent record: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE verification_challenges SET consumed = TRUE
			 WHERE consent_record_id = $1 AND NOT consumed`,
			uuid.UUID(c.ConsentRecordID)); err != nil {
			return fmt.Errorf("retire prior challenges: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO verification_challenges (`+challengeColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			uuid.UUID(c.ID), uuid.UUID(c.ConsentRecordID), string(c.Method), c.CodeHash, c.DestinationHint,
			c.IssuedAt, c.ExpiresAt, c.Attempts, c.Consumed, c.Satisfied,
		)
		if err != nil {
			return fmt.Errorf("insert challenge: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) FindByID(ctx context.Context, challengeID id.ChallengeID) (*models.Challenge, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+challengeColumns+` FROM verification_challenges WHERE id = $1`,
		uuid.UUID(challengeID))
	return scanChallenge(row)
}

// Execute locks the challenge row with SELECT ... FOR UPDATE for the duration of fn.
func (s *PostgresStore) Execute(ctx context.Context, challengeID id.ChallengeID, fn func(*models.Challenge) (bool, error)) (*models.Challenge, error) {
	var out *models.Challenge
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+challengeColumns+` FROM verification_challenges WHERE id = $1 FOR UPDATE`,
			uuid.UUID(challengeID))
		c, err := scanChallenge(row)
		if err != nil {
			return err
		}

		changed, err := fn(c)
		if err != nil {
			return err
		}
		if changed {
			if _, err := tx.ExecContext(ctx,
				`UPDATE verification_challenges SET attempts = $2, consumed = $3 WHERE id = $1`,
				uuid.UUID(c.ID), c.Attempts, c.Consumed); err != nil {
				return fmt.Errorf("update challenge: %w", err)
			}
		}
		out = c
		return nil
	})
	return out, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChallenge(row rowScanner) (*models.Challenge, error) {
	var (
		c                  models.Challenge
		challengeID, recID uuid.UUID
		method             string
	)
	err := row.Scan(&challengeID, &recID, &method, &c.CodeHash, &c.DestinationHint,
		&c.IssuedAt, &c.ExpiresAt, &c.Attempts, &c.Consumed, &c.Satisfied)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan challenge: %w", err)
	}
	c.ID = id.ChallengeID(challengeID)
	c.ConsentRecordID = id.ConsentID(recID)
	c.Method = models.Method(method)
	return &c, nil
}
