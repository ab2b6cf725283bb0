package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mytad/game-auth/pkg/utils"
)

// DBTX is an interface that allows us to use either a pool or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db DBTX
}

// NewPostgresRepository creates a new PostgreSQL user repository
func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, username, email, password_hash, is_active, account_locked_until,
	failed_login_attempts, two_factor_enabled, two_factor_secret, is_muted, muted_until,
	is_email_verified, created_at, last_login, last_password_change`

func scanUser(row pgx.Row) (User, error) {
	var u User
	var lockedUntil, mutedUntil, lastLogin, lastChange sql.NullTime
	var secret sql.NullString

	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsActive, &lockedUntil,
		&u.FailedLoginAttempts, &u.TwoFactorEnabled, &secret, &u.IsMuted, &mutedUntil,
		&u.IsEmailVerified, &u.CreatedAt, &lastLogin, &lastChange,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}

	u.AccountLockedUntil = utils.NullTimePtr(lockedUntil)
	u.MutedUntil = utils.NullTimePtr(mutedUntil)
	u.LastLogin = utils.NullTimePtr(lastLogin)
	u.LastPasswordChange = utils.NullTimePtr(lastChange)
	u.TwoFactorSecret = secret.String
	return u, nil
}

func (r *PostgresRepository) Create(ctx context.Context, params CreateParams) (User, error) {
	query := `
		INSERT INTO users (id, username, email, password_hash, is_active, created_at)
		VALUES ($1, $2, $3, $4, TRUE, NOW())
		RETURNING ` + userColumns

	u, err := scanUser(r.db.QueryRow(ctx, query, uuid.New(), params.Username, params.Email, params.PasswordHash))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if strings.Contains(pgErr.ConstraintName, "email") {
				return User{}, ErrEmailTaken
			}
			return User{}, ErrUsernameTaken
		}
		return User{}, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return User{}, fmt.Errorf("failed to get user: %w", err)
	}
	return u, err
}

func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	u, err := scanUser(r.db.QueryRow(ctx, query, username))
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return User{}, fmt.Errorf("failed to get user by username: %w", err)
	}
	return u, err
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	u, err := scanUser(r.db.QueryRow(ctx, query, email))
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return User{}, fmt.Errorf("failed to get user by email: %w", err)
	}
	return u, err
}

// exec runs an update that must touch exactly one user row
func (r *PostgresRepository) exec(ctx context.Context, op, query string, args ...interface{}) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *PostgresRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return r.exec(ctx, "update password", `
		UPDATE users
		SET password_hash = $2, last_password_change = NOW(), failed_login_attempts = 0
		WHERE id = $1`, id, passwordHash)
}

func (r *PostgresRepository) IncrementFailedAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1
		WHERE id = $1
		RETURNING failed_login_attempts`, id).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to increment failed attempts: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) SetLockedUntil(ctx context.Context, id uuid.UUID, until *time.Time) error {
	return r.exec(ctx, "set lock", `UPDATE users SET account_locked_until = $2 WHERE id = $1`, id, until)
}

func (r *PostgresRepository) Unlock(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, "unlock user", `
		UPDATE users SET account_locked_until = NULL, failed_login_attempts = 0 WHERE id = $1`, id)
}

func (r *PostgresRepository) RecordLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.exec(ctx, "record login", `
		UPDATE users SET failed_login_attempts = 0, last_login = $2 WHERE id = $1`, id, at)
}

func (r *PostgresRepository) SetActive(ctx context.Context, id uuid.UUID, active bool, lockedUntil *time.Time) error {
	return r.exec(ctx, "set active", `
		UPDATE users SET is_active = $2, account_locked_until = $3 WHERE id = $1`, id, active, lockedUntil)
}

func (r *PostgresRepository) SetMuted(ctx context.Context, id uuid.UUID, muted bool, until *time.Time) error {
	return r.exec(ctx, "set muted", `
		UPDATE users SET is_muted = $2, muted_until = $3 WHERE id = $1`, id, muted, until)
}

func (r *PostgresRepository) SetTwoFactor(ctx context.Context, id uuid.UUID, enabled bool, secret string) error {
	return r.exec(ctx, "set two factor", `
		UPDATE users SET two_factor_enabled = $2, two_factor_secret = $3 WHERE id = $1`, id, enabled, utils.ToNullString(secret))
}

func (r *PostgresRepository) ListRestricted(ctx context.Context) ([]User, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE is_active = FALSE OR account_locked_until IS NOT NULL
		ORDER BY account_locked_until DESC NULLS LAST, created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list restricted users: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
