package audit

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/mytad/game-auth/pkg/user"
)

// UserLookup resolves usernames for report rows
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (user.User, error)
}

// InMemoryRepository implements Repository using in-memory storage
type InMemoryRepository struct {
	mu      sync.RWMutex
	entries []Entry
	users   UserLookup
}

// NewInMemoryRepository creates a new in-memory audit repository. users may be nil.
func NewInMemoryRepository(users UserLookup) *InMemoryRepository {
	return &InMemoryRepository{users: users}
}

func (r *InMemoryRepository) Append(ctx context.Context, entry Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	r.entries = append(r.entries, entry)
	return nil
}

func (r *InMemoryRepository) Query(ctx context.Context, filter Filter) ([]Entry, error) {
	filter = filter.Normalize()

	r.mu.RLock()
	var matched []Entry
	for _, e := range r.entries {
		if filter.Matches(e) {
			matched = append(matched, e)
		}
	}
	r.mu.RUnlock()

	// newest first, ties in reverse insertion order
	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filter.Offset >= len(matched) {
		return []Entry{}, nil
	}
	matched = matched[filter.Offset:]
	if len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}

	if r.users != nil {
		for i := range matched {
			if matched[i].UserID == nil {
				continue
			}
			if u, err := r.users.GetByID(ctx, *matched[i].UserID); err == nil {
				matched[i].Username = u.Username
			}
		}
	}
	return matched, nil
}
