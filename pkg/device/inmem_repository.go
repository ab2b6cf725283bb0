package device

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mytad/game-auth/pkg/user"
)

// UserLookup resolves usernames for exclusion listings
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (user.User, error)
}

// InMemoryBanRepository implements BanRepository using in-memory storage
type InMemoryBanRepository struct {
	mu   sync.RWMutex
	bans []Ban
}

// NewInMemoryBanRepository creates a new in-memory ban repository
func NewInMemoryBanRepository() *InMemoryBanRepository {
	return &InMemoryBanRepository{}
}

func (r *InMemoryBanRepository) Create(ctx context.Context, ban Ban) (Ban, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ban.ID == uuid.Nil {
		ban.ID = uuid.New()
	}
	if ban.CreatedAt.IsZero() {
		ban.CreatedAt = time.Now().UTC()
	}
	r.bans = append(r.bans, ban)
	return ban, nil
}

func (r *InMemoryBanRepository) FindActive(ctx context.Context, fingerprint, ip string, now time.Time) (*Ban, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.bans) - 1; i >= 0; i-- {
		b := r.bans[i]
		if b.Matches(fingerprint, ip) && b.ActiveAt(now) {
			return &b, nil
		}
	}
	return nil, nil
}

func (r *InMemoryBanRepository) Lift(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.bans {
		if r.bans[i].ID == id && r.bans[i].LiftedAt == nil {
			lifted := at.UTC()
			r.bans[i].LiftedAt = &lifted
			return nil
		}
	}
	return ErrBanNotFound
}

func (r *InMemoryBanRepository) ListActive(ctx context.Context, now time.Time) ([]Ban, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []Ban{}
	for i := len(r.bans) - 1; i >= 0; i-- {
		if r.bans[i].ActiveAt(now) {
			out = append(out, r.bans[i])
		}
	}
	return out, nil
}

// InMemoryExclusionRepository implements ExclusionRepository using in-memory storage
type InMemoryExclusionRepository struct {
	mu         sync.RWMutex
	exclusions map[uuid.UUID]Exclusion
	users      UserLookup
}

// NewInMemoryExclusionRepository creates a new in-memory exclusion list. users may be nil.
func NewInMemoryExclusionRepository(users UserLookup) *InMemoryExclusionRepository {
	return &InMemoryExclusionRepository{
		exclusions: make(map[uuid.UUID]Exclusion),
		users:      users,
	}
}

func (r *InMemoryExclusionRepository) Add(ctx context.Context, exclusion Exclusion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.exclusions[exclusion.UserID]; ok {
		return ErrAlreadyExcluded
	}
	if exclusion.CreatedAt.IsZero() {
		exclusion.CreatedAt = time.Now().UTC()
	}
	r.exclusions[exclusion.UserID] = exclusion
	return nil
}

func (r *InMemoryExclusionRepository) Remove(ctx context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.exclusions[userID]; !ok {
		return ErrExclusionNotFound
	}
	delete(r.exclusions, userID)
	return nil
}

func (r *InMemoryExclusionRepository) IsExcluded(ctx context.Context, userID uuid.UUID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.exclusions[userID]
	return ok, nil
}

func (r *InMemoryExclusionRepository) List(ctx context.Context) ([]Exclusion, error) {
	r.mu.RLock()
	out := make([]Exclusion, 0, len(r.exclusions))
	for _, e := range r.exclusions {
		out = append(out, e)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if r.users != nil {
		for i := range out {
			if u, err := r.users.GetByID(ctx, out[i].UserID); err == nil {
				out[i].Username = u.Username
			}
		}
	}
	return out, nil
}
