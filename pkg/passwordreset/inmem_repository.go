package passwordreset

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type InMemoryRepository struct {
	mu     sync.Mutex
	tokens map[string]Token
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{tokens: make(map[string]Token)}
}

func (r *InMemoryRepository) Create(ctx context.Context, token Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	r.tokens[token.Token] = token
	slog.Debug("Password reset token stored", "user_id", token.UserID)
	return nil
}

func (r *InMemoryRepository) GetByToken(ctx context.Context, token string) (Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[token]
	if !ok {
		return Token{}, ErrTokenNotFound
	}
	return t, nil
}

func (r *InMemoryRepository) MarkUsed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, t := range r.tokens {
		if t.ID != id {
			continue
		}
		if t.UsedAt != nil {
			return false, nil
		}
		used := at.UTC()
		t.UsedAt = &used
		r.tokens[key] = t
		return true, nil
	}
	return false, ErrTokenNotFound
}

func (r *InMemoryRepository) DeleteUnused(ctx context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, t := range r.tokens {
		if t.UserID == userID && t.UsedAt == nil {
			delete(r.tokens, key)
		}
	}
	return nil
}
