package admin

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

// PostgresRepository implements Repository on the admins table
type PostgresRepository struct {
	db DBTX
}

// NewPostgresRepository creates a new PostgreSQL admin repository
func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const adminSelect = `
	SELECT a.user_id, COALESCE(u.username, ''), a.granted_by, a.granted_at, a.is_protected
	FROM admins a
	LEFT JOIN users u ON u.id = a.user_id`

func scanAdmin(row pgx.Row) (Admin, error) {
	var a Admin
	var grantedBy uuid.NullUUID
	if err := row.Scan(&a.UserID, &a.Username, &grantedBy, &a.GrantedAt, &a.IsProtected); err != nil {
		return Admin{}, err
	}
	if grantedBy.Valid {
		id := grantedBy.UUID
		a.GrantedBy = &id
	}
	a.GrantedAt = a.GrantedAt.UTC()
	return a, nil
}

func (r *PostgresRepository) Get(ctx context.Context, userID uuid.UUID) (Admin, error) {
	a, err := scanAdmin(r.db.QueryRow(ctx, adminSelect+` WHERE a.user_id = $1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Admin{}, ErrNotAdmin
		}
		return Admin{}, fmt.Errorf("failed to get admin: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]Admin, error) {
	rows, err := r.db.Query(ctx, adminSelect+` ORDER BY a.granted_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}
	defer rows.Close()

	out := []Admin{}
	for rows.Next() {
		a, err := scanAdmin(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan admin: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Grant(ctx context.Context, admin Admin) error {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO admins (user_id, granted_by, granted_at, is_protected)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO NOTHING`,
		admin.UserID, admin.GrantedBy, admin.GrantedAt, admin.IsProtected)
	if err != nil {
		return fmt.Errorf("failed to grant admin: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyAdmin
	}
	return nil
}

func (r *PostgresRepository) Revoke(ctx context.Context, userID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM admins WHERE user_id = $1 AND is_protected = FALSE`, userID)
	if err != nil {
		return fmt.Errorf("failed to revoke admin: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.Get(ctx, userID); err != nil {
		return err
	}
	return ErrProtectedAdmin
}

func (r *PostgresRepository) EnsureProtected(ctx context.Context, userID uuid.UUID, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO admins (user_id, granted_at, is_protected)
		SELECT $1::uuid, $2::timestamptz, TRUE
		WHERE NOT EXISTS (SELECT 1 FROM admins WHERE is_protected AND user_id <> $1::uuid)
		ON CONFLICT (user_id) DO UPDATE SET is_protected = TRUE`, userID, at)
	if err != nil {
		return fmt.Errorf("failed to seed protected admin: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOwnerMismatch
	}
	return nil
}
