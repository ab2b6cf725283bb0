package twofa

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is an interface that allows us to use either a pool or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	Begin(context.Context) (pgx.Tx, error)
}

// PostgresBackupCodeRepository keeps codes in two_factor_backup_codes
type PostgresBackupCodeRepository struct {
	db DBTX
}

func NewPostgresBackupCodeRepository(db DBTX) *PostgresBackupCodeRepository {
	return &PostgresBackupCodeRepository{db: db}
}

func (r *PostgresBackupCodeRepository) Replace(ctx context.Context, userID uuid.UUID, hashes []string, at time.Time) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM two_factor_backup_codes WHERE user_id = $1`, userID); err != nil {
		return err
	}
	for _, h := range hashes {
		_, err := tx.Exec(ctx, `
			INSERT INTO two_factor_backup_codes (id, user_id, code_hash, created_at)
			VALUES ($1, $2, $3, $4)`, uuid.New(), userID, h, at)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *PostgresBackupCodeRepository) ListUnused(ctx context.Context, userID uuid.UUID) ([]BackupCode, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, code_hash, created_at
		FROM two_factor_backup_codes
		WHERE user_id = $1 AND used_at IS NULL
		ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []BackupCode
	for rows.Next() {
		var c BackupCode
		if err := rows.Scan(&c.ID, &c.UserID, &c.CodeHash, &c.CreatedAt); err != nil {
			return nil, err
		}
		codes = append(codes, c)
	}
	return codes, rows.Err()
}

func (r *PostgresBackupCodeRepository) Consume(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE two_factor_backup_codes SET used_at = $2
		WHERE id = $1 AND used_at IS NULL`, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresBackupCodeRepository) DeleteAll(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM two_factor_backup_codes WHERE user_id = $1`, userID)
	return err
}

// InMemoryBackupCodeRepository implements BackupCodeRepository for tests and single-node runs
type InMemoryBackupCodeRepository struct {
	mu    sync.Mutex
	codes map[uuid.UUID]BackupCode
}

func NewInMemoryBackupCodeRepository() *InMemoryBackupCodeRepository {
	return &InMemoryBackupCodeRepository{codes: make(map[uuid.UUID]BackupCode)}
}

func (r *InMemoryBackupCodeRepository) Replace(ctx context.Context, userID uuid.UUID, hashes []string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, c := range r.codes {
		if c.UserID == userID {
			delete(r.codes, id)
		}
	}
	for _, h := range hashes {
		id := uuid.New()
		r.codes[id] = BackupCode{ID: id, UserID: userID, CodeHash: h, CreatedAt: at}
	}
	return nil
}

func (r *InMemoryBackupCodeRepository) ListUnused(ctx context.Context, userID uuid.UUID) ([]BackupCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []BackupCode
	for _, c := range r.codes {
		if c.UserID == userID && c.UsedAt == nil {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *InMemoryBackupCodeRepository) Consume(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.codes[id]
	if !ok || c.UsedAt != nil {
		return false, nil
	}
	c.UsedAt = &at
	r.codes[id] = c
	return true, nil
}

func (r *InMemoryBackupCodeRepository) DeleteAll(ctx context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, c := range r.codes {
		if c.UserID == userID {
			delete(r.codes, id)
		}
	}
	return nil
}

// ErrNotFound is returned by a Store when the record is missing or expired
var ErrNotFound = errors.New("not found or expired")
