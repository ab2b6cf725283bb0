package admin

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRepository implements Repository using in-memory storage
type InMemoryRepository struct {
	mu     sync.RWMutex
	admins map[uuid.UUID]Admin
}

// NewInMemoryRepository creates a new in-memory admin repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{admins: make(map[uuid.UUID]Admin)}
}

func (r *InMemoryRepository) Get(ctx context.Context, userID uuid.UUID) (Admin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.admins[userID]
	if !ok {
		return Admin{}, ErrNotAdmin
	}
	return a, nil
}

func (r *InMemoryRepository) List(ctx context.Context) ([]Admin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Admin, 0, len(r.admins))
	for _, a := range r.admins {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GrantedAt.Before(out[j].GrantedAt) })
	return out, nil
}

func (r *InMemoryRepository) Grant(ctx context.Context, admin Admin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.admins[admin.UserID]; ok {
		return ErrAlreadyAdmin
	}
	r.admins[admin.UserID] = admin
	return nil
}

func (r *InMemoryRepository) Revoke(ctx context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.admins[userID]
	if !ok {
		return ErrNotAdmin
	}
	if a.IsProtected {
		return ErrProtectedAdmin
	}
	delete(r.admins, userID)
	return nil
}

func (r *InMemoryRepository) EnsureProtected(ctx context.Context, userID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, existing := range r.admins {
		if existing.IsProtected && id != userID {
			return ErrOwnerMismatch
		}
	}
	a, ok := r.admins[userID]
	if !ok {
		a = Admin{UserID: userID, GrantedAt: at}
	}
	a.IsProtected = true
	r.admins[userID] = a
	return nil
}
