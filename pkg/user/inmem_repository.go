package user

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRepository implements Repository using in-memory storage
type InMemoryRepository struct {
	mu    sync.Mutex
	users map[uuid.UUID]User
}

// NewInMemoryRepository creates a new in-memory user repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		users: make(map[uuid.UUID]User),
	}
}

func (r *InMemoryRepository) Create(ctx context.Context, params CreateParams) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Username == params.Username {
			return User{}, ErrUsernameTaken
		}
		if strings.EqualFold(u.Email, params.Email) {
			return User{}, ErrEmailTaken
		}
	}

	u := User{
		ID:           uuid.New(),
		Username:     params.Username,
		Email:        params.Email,
		PasswordHash: params.PasswordHash,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
	r.users[u.ID] = u
	slog.Debug("User created", "user_id", u.ID, "username", u.Username)
	return u, nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id uuid.UUID) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (r *InMemoryRepository) GetByUsername(ctx context.Context, username string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Username == username {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (r *InMemoryRepository) GetByEmail(ctx context.Context, email string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

// update applies fn to the stored user under the lock
func (r *InMemoryRepository) update(id uuid.UUID, fn func(u *User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	fn(&u)
	r.users[id] = u
	return nil
}

func (r *InMemoryRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	now := time.Now().UTC()
	return r.update(id, func(u *User) {
		u.PasswordHash = passwordHash
		u.LastPasswordChange = &now
		u.FailedLoginAttempts = 0
	})
}

func (r *InMemoryRepository) IncrementFailedAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	var count int
	err := r.update(id, func(u *User) {
		u.FailedLoginAttempts++
		count = u.FailedLoginAttempts
	})
	return count, err
}

func (r *InMemoryRepository) SetLockedUntil(ctx context.Context, id uuid.UUID, until *time.Time) error {
	return r.update(id, func(u *User) {
		u.AccountLockedUntil = copyTime(until)
	})
}

func (r *InMemoryRepository) Unlock(ctx context.Context, id uuid.UUID) error {
	return r.update(id, func(u *User) {
		u.AccountLockedUntil = nil
		u.FailedLoginAttempts = 0
	})
}

func (r *InMemoryRepository) RecordLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.update(id, func(u *User) {
		u.FailedLoginAttempts = 0
		u.LastLogin = copyTime(&at)
	})
}

func (r *InMemoryRepository) SetActive(ctx context.Context, id uuid.UUID, active bool, lockedUntil *time.Time) error {
	return r.update(id, func(u *User) {
		u.IsActive = active
		u.AccountLockedUntil = copyTime(lockedUntil)
	})
}

func (r *InMemoryRepository) SetMuted(ctx context.Context, id uuid.UUID, muted bool, until *time.Time) error {
	return r.update(id, func(u *User) {
		u.IsMuted = muted
		u.MutedUntil = copyTime(until)
	})
}

func (r *InMemoryRepository) SetTwoFactor(ctx context.Context, id uuid.UUID, enabled bool, secret string) error {
	return r.update(id, func(u *User) {
		u.TwoFactorEnabled = enabled
		u.TwoFactorSecret = secret
	})
}

func (r *InMemoryRepository) ListRestricted(ctx context.Context) ([]User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []User
	for _, u := range r.users {
		if !u.IsActive || u.AccountLockedUntil != nil {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].AccountLockedUntil, out[j].AccountLockedUntil
		if a != nil && b != nil && !a.Equal(*b) {
			return a.After(*b)
		}
		if (a == nil) != (b == nil) {
			return a != nil
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
