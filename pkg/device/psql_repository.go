package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mytad/game-auth/pkg/utils"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// PostgresBanRepository implements BanRepository on the device_bans table
type PostgresBanRepository struct {
	db DBTX
}

// NewPostgresBanRepository creates a new PostgreSQL ban repository
func NewPostgresBanRepository(db DBTX) *PostgresBanRepository {
	return &PostgresBanRepository{db: db}
}

const banColumns = `id, fingerprint, ip_address, reason, is_permanent, banned_until, banned_by, created_at, lifted_at`

func scanBan(row pgx.Row) (Ban, error) {
	var b Ban
	var fingerprint, ip sql.NullString
	var until, lifted sql.NullTime
	var bannedBy uuid.NullUUID
	if err := row.Scan(&b.ID, &fingerprint, &ip, &b.Reason, &b.IsPermanent, &until, &bannedBy, &b.CreatedAt, &lifted); err != nil {
		return Ban{}, err
	}
	b.Fingerprint = utils.FromNullString(fingerprint)
	b.IPAddress = utils.FromNullString(ip)
	b.BannedUntil = utils.NullTimePtr(until)
	b.LiftedAt = utils.NullTimePtr(lifted)
	if bannedBy.Valid {
		id := bannedBy.UUID
		b.BannedBy = &id
	}
	b.CreatedAt = b.CreatedAt.UTC()
	return b, nil
}

func (r *PostgresBanRepository) Create(ctx context.Context, ban Ban) (Ban, error) {
	if ban.ID == uuid.Nil {
		ban.ID = uuid.New()
	}
	if ban.CreatedAt.IsZero() {
		ban.CreatedAt = time.Now().UTC()
	}
	created, err := scanBan(r.db.QueryRow(ctx, `
		INSERT INTO device_bans (id, fingerprint, ip_address, reason, is_permanent, banned_until, banned_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+banColumns,
		ban.ID, utils.ToNullString(ban.Fingerprint), utils.ToNullString(ban.IPAddress), ban.Reason,
		ban.IsPermanent, utils.ToNullTime(ban.BannedUntil), ban.BannedBy, ban.CreatedAt))
	if err != nil {
		return Ban{}, fmt.Errorf("failed to create device ban: %w", err)
	}
	return created, nil
}

func (r *PostgresBanRepository) FindActive(ctx context.Context, fingerprint, ip string, now time.Time) (*Ban, error) {
	b, err := scanBan(r.db.QueryRow(ctx, `
		SELECT `+banColumns+`
		FROM device_bans
		WHERE (fingerprint = $1 OR ip_address = $2)
		  AND lifted_at IS NULL
		  AND (is_permanent OR banned_until > $3)
		ORDER BY created_at DESC
		LIMIT 1`, utils.ToNullString(fingerprint), utils.ToNullString(ip), now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up device ban: %w", err)
	}
	return &b, nil
}

func (r *PostgresBanRepository) Lift(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE device_bans SET lifted_at = $2 WHERE id = $1 AND lifted_at IS NULL`, id, at)
	if err != nil {
		return fmt.Errorf("failed to lift device ban: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBanNotFound
	}
	return nil
}

func (r *PostgresBanRepository) ListActive(ctx context.Context, now time.Time) ([]Ban, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+banColumns+`
		FROM device_bans
		WHERE lifted_at IS NULL AND (is_permanent OR banned_until > $1)
		ORDER BY created_at DESC`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list device bans: %w", err)
	}
	defer rows.Close()

	out := []Ban{}
	for rows.Next() {
		b, err := scanBan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device ban: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// PostgresExclusionRepository implements ExclusionRepository on the ban_exclusions table
type PostgresExclusionRepository struct {
	db DBTX
}

// NewPostgresExclusionRepository creates a new PostgreSQL exclusion repository
func NewPostgresExclusionRepository(db DBTX) *PostgresExclusionRepository {
	return &PostgresExclusionRepository{db: db}
}

func (r *PostgresExclusionRepository) Add(ctx context.Context, exclusion Exclusion) error {
	if exclusion.CreatedAt.IsZero() {
		exclusion.CreatedAt = time.Now().UTC()
	}
	tag, err := r.db.Exec(ctx, `
		INSERT INTO ban_exclusions (user_id, reason, added_by, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO NOTHING`,
		exclusion.UserID, exclusion.Reason, exclusion.AddedBy, exclusion.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add ban exclusion: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyExcluded
	}
	return nil
}

func (r *PostgresExclusionRepository) Remove(ctx context.Context, userID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM ban_exclusions WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to remove ban exclusion: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExclusionNotFound
	}
	return nil
}

func (r *PostgresExclusionRepository) IsExcluded(ctx context.Context, userID uuid.UUID) (bool, error) {
	var excluded bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ban_exclusions WHERE user_id = $1)`, userID).Scan(&excluded)
	if err != nil {
		return false, fmt.Errorf("failed to check ban exclusion: %w", err)
	}
	return excluded, nil
}

func (r *PostgresExclusionRepository) List(ctx context.Context) ([]Exclusion, error) {
	rows, err := r.db.Query(ctx, `
		SELECT e.user_id, COALESCE(u.username, ''), e.reason, e.added_by, e.created_at
		FROM ban_exclusions e
		LEFT JOIN users u ON u.id = e.user_id
		ORDER BY e.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list ban exclusions: %w", err)
	}
	defer rows.Close()

	out := []Exclusion{}
	for rows.Next() {
		var e Exclusion
		var addedBy uuid.NullUUID
		if err := rows.Scan(&e.UserID, &e.Username, &e.Reason, &addedBy, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ban exclusion: %w", err)
		}
		if addedBy.Valid {
			id := addedBy.UUID
			e.AddedBy = &id
		}
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
