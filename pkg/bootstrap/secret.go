package bootstrap

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// MinSecretLength is the shortest accepted challenge signing secret
const MinSecretLength = 16

// SigningSecretConfig contains configuration for the 2FA challenge signing secret
type SigningSecretConfig struct {
	// Secret from CHALLENGE_SIGNING_SECRET; takes precedence over the file
	Secret string

	// Path of the file the generated secret is persisted to (e.g. "challenge-secret")
	File string
}

// SigningSecretResult contains the resolved secret
type SigningSecretResult struct {
	Secret []byte

	// Absolute path to the secret file, empty when the secret came from the environment
	Path string

	// Whether the secret was newly generated (true) or loaded (false)
	Generated bool

	// Fingerprint (SHA-256 of the secret, hex), safe to log
	Fingerprint string
}

// EnsureSigningSecret returns the configured secret, or loads it from File, generating and
// persisting a random one when the file does not exist.
func EnsureSigningSecret(cfg SigningSecretConfig) (*SigningSecretResult, error) {
	if cfg.Secret != "" {
		if len(cfg.Secret) < MinSecretLength {
			return nil, fmt.Errorf("signing secret must be at least %d characters", MinSecretLength)
		}
		return newResult([]byte(cfg.Secret), "", false), nil
	}
	if cfg.File == "" {
		return nil, fmt.Errorf("either a signing secret or a secret file is required")
	}

	path, err := filepath.Abs(cfg.File)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve secret path: %w", err)
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		secret := strings.TrimSpace(string(data))
		if len(secret) < MinSecretLength {
			return nil, fmt.Errorf("secret file %s is too short", path)
		}
		slog.Info("Loaded challenge signing secret", "path", path)
		return newResult([]byte(secret), path, false), nil
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("failed to read secret file: %w", err)
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate secret: %w", err)
	}
	secret := hex.EncodeToString(buf)

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create secret directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(secret+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write secret file: %w", err)
	}
	slog.Info("Generated challenge signing secret", "path", path)
	return newResult([]byte(secret), path, true), nil
}

func newResult(secret []byte, path string, generated bool) *SigningSecretResult {
	sum := sha256.Sum256(secret)
	return &SigningSecretResult{
		Secret:      secret,
		Path:        path,
		Generated:   generated,
		Fingerprint: hex.EncodeToString(sum[:]),
	}
}
