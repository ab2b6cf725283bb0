package sessions

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRepository implements Repository using in-memory storage
type InMemoryRepository struct {
	mu       sync.Mutex
	sessions map[string]Session
}

// NewInMemoryRepository creates a new in-memory session repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{sessions: make(map[string]Session)}
}

func (r *InMemoryRepository) Create(ctx context.Context, session Session) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.Token] = session
	return session, nil
}

func (r *InMemoryRepository) GetActiveByToken(ctx context.Context, token string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[token]
	if !ok || !s.IsActive {
		return Session{}, ErrSessionNotFound
	}
	return s, nil
}

func (r *InMemoryRepository) Deactivate(ctx context.Context, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[token]
	if !ok || !s.IsActive {
		return false, nil
	}
	s.IsActive = false
	r.sessions[token] = s
	return true, nil
}

func (r *InMemoryRepository) DeactivateAllForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for token, s := range r.sessions {
		if s.UserID == userID && s.IsActive {
			s.IsActive = false
			r.sessions[token] = s
			n++
		}
	}
	return n, nil
}

func (r *InMemoryRepository) TouchActivity(ctx context.Context, token string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[token]
	if !ok {
		return ErrSessionNotFound
	}
	s.LastActivity = at
	r.sessions[token] = s
	return nil
}

func (r *InMemoryRepository) ListActiveByUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []Session{}
	for _, s := range r.sessions {
		if s.UserID == userID && s.IsActive && !s.ExpiredAt(now) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *InMemoryRepository) HasSessionFromIP(ctx context.Context, userID uuid.UUID, ip string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sessions {
		if s.UserID == userID && s.IPAddress == ip {
			return true, nil
		}
	}
	return false, nil
}
