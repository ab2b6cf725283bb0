package twofa

import (
	"context"
	"crypto/rand"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	BackupCodeCount  = 10
	BackupCodeLength = 8
	backupAlphabet   = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// BackupCode is one stored, hashed single-use code
type BackupCode struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	CodeHash  string
	CreatedAt time.Time
	UsedAt    *time.Time
}

// BackupCodeRepository stores hashed backup codes
type BackupCodeRepository interface {
	// Replace drops every code of userID and stores hashes in their place.
	Replace(ctx context.Context, userID uuid.UUID, hashes []string, at time.Time) error

	ListUnused(ctx context.Context, userID uuid.UUID) ([]BackupCode, error)

	// Consume marks the code used and reports whether this call was the one that used it.
	Consume(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)

	DeleteAll(ctx context.Context, userID uuid.UUID) error
}

// GenerateBackupCodes returns n random codes drawn from [0-9A-Z]
func GenerateBackupCodes(n int) ([]string, error) {
	max := big.NewInt(int64(len(backupAlphabet)))
	codes := make([]string, n)
	for i := range codes {
		var b strings.Builder
		for j := 0; j < BackupCodeLength; j++ {
			idx, err := rand.Int(rand.Reader, max)
			if err != nil {
				return nil, err
			}
			b.WriteByte(backupAlphabet[idx.Int64()])
		}
		codes[i] = b.String()
	}
	return codes, nil
}

// NormalizeBackupCode uppercases and strips separators users tend to type
func NormalizeBackupCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	return strings.NewReplacer("-", "", " ", "").Replace(code)
}
