package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is an interface that allows us to use either a pool or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// PostgresRepository implements the Repository interface using PostgreSQL
type PostgresRepository struct {
	db DBTX
}

// NewPostgresRepository creates a new PostgreSQL session repository
func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const sessionColumns = `id, token, user_id, ip_address, user_agent, created_at, expires_at, last_activity, is_active`

func scanSession(row pgx.Row) (Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.Token, &s.UserID, &s.IPAddress, &s.UserAgent,
		&s.CreatedAt, &s.ExpiresAt, &s.LastActivity, &s.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, err
	}
	s.CreatedAt = s.CreatedAt.UTC()
	s.ExpiresAt = s.ExpiresAt.UTC()
	s.LastActivity = s.LastActivity.UTC()
	return s, nil
}

// Create creates a new session
func (r *PostgresRepository) Create(ctx context.Context, session Session) (Session, error) {
	created, err := scanSession(r.db.QueryRow(ctx, `
		INSERT INTO sessions (id, token, user_id, ip_address, user_agent, created_at, expires_at, last_activity, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE)
		RETURNING `+sessionColumns,
		session.ID, session.Token, session.UserID, session.IPAddress, session.UserAgent,
		session.CreatedAt, session.ExpiresAt, session.LastActivity))
	if err != nil {
		return Session{}, fmt.Errorf("failed to create session: %w", err)
	}
	return created, nil
}

// GetActiveByToken retrieves the active session for a token
func (r *PostgresRepository) GetActiveByToken(ctx context.Context, token string) (Session, error) {
	s, err := scanSession(r.db.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM sessions WHERE token = $1 AND is_active = TRUE`, token))
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		return Session{}, fmt.Errorf("failed to get session: %w", err)
	}
	return s, err
}

// Deactivate ends a session if it is still active
func (r *PostgresRepository) Deactivate(ctx context.Context, token string) (bool, error) {
	tag, err := r.db.Exec(ctx, `UPDATE sessions SET is_active = FALSE WHERE token = $1 AND is_active = TRUE`, token)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate session: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// DeactivateAllForUser ends every active session of a user
func (r *PostgresRepository) DeactivateAllForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	tag, err := r.db.Exec(ctx, `UPDATE sessions SET is_active = FALSE WHERE user_id = $1 AND is_active = TRUE`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// TouchActivity updates last_activity
func (r *PostgresRepository) TouchActivity(ctx context.Context, token string, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE sessions SET last_activity = $2 WHERE token = $1`, token, at)
	if err != nil {
		return fmt.Errorf("failed to update session activity: %w", err)
	}
	return nil
}

// ListActiveByUser lists live sessions newest first
func (r *PostgresRepository) ListActiveByUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]Session, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE user_id = $1 AND is_active = TRUE AND expires_at > $2
		ORDER BY created_at DESC`, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	out := []Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// HasSessionFromIP reports whether the user ever had a session from ip
func (r *PostgresRepository) HasSessionFromIP(ctx context.Context, userID uuid.UUID, ip string) (bool, error) {
	var seen bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM sessions WHERE user_id = $1 AND ip_address = $2)`, userID, ip).Scan(&seen)
	if err != nil {
		return false, fmt.Errorf("failed to check session history: %w", err)
	}
	return seen, nil
}
