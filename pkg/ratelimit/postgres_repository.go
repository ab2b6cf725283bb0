package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is an interface that allows us to use either a pool or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// PostgresAttemptRepository implements AttemptRepository on the login_attempts table
type PostgresAttemptRepository struct {
	db DBTX
}

// NewPostgresAttemptRepository creates a new PostgreSQL attempt log
func NewPostgresAttemptRepository(db DBTX) *PostgresAttemptRepository {
	return &PostgresAttemptRepository{db: db}
}

func (r *PostgresAttemptRepository) Record(ctx context.Context, attempt Attempt) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO login_attempts (ip_address, username, attempted_at, success, reason)
		VALUES ($1, $2, $3, $4, $5)`,
		attempt.IPAddress, attempt.Username, attempt.AttemptedAt, attempt.Success, attempt.Reason)
	if err != nil {
		return fmt.Errorf("failed to record login attempt: %w", err)
	}
	return nil
}

func (r *PostgresAttemptRepository) CountFailuresSince(ctx context.Context, ip string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM login_attempts
		WHERE ip_address = $1 AND success = FALSE AND attempted_at > $2`, ip, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count login failures: %w", err)
	}
	return count, nil
}
