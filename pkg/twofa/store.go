package twofa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mytad/game-auth/pkg/cache"
	"github.com/redis/go-redis/v9"
)

// PendingSetup is an unconfirmed secret with its backup codes in clear text.
type PendingSetup struct {
	UserID          uuid.UUID `json:"user_id"`
	Secret          string    `json:"secret"`
	ProvisioningURI string    `json:"provisioning_uri"`
	BackupCodes     []string  `json:"backup_codes"`
	CreatedAt       time.Time `json:"created_at"`
}

// Challenge is a login that passed the password step and awaits a second factor.
type Challenge struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	IPAddress  string    `json:"ip_address"`
	UserAgent  string    `json:"user_agent"`
	RememberMe bool      `json:"remember_me"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Store holds the short-lived 2FA state outside the process so any instance can finish a flow.
type Store interface {
	SaveSetup(ctx context.Context, setup PendingSetup, ttl time.Duration) error
	GetSetup(ctx context.Context, userID uuid.UUID) (PendingSetup, error)
	DeleteSetup(ctx context.Context, userID uuid.UUID) error

	SaveChallenge(ctx context.Context, c Challenge, ttl time.Duration) error
	GetChallenge(ctx context.Context, id uuid.UUID) (Challenge, error)
	// IncrementFailures counts one wrong code and returns the running total.
	IncrementFailures(ctx context.Context, id uuid.UUID) (int, error)
	// TakeChallenge deletes the challenge and reports whether this call removed it.
	TakeChallenge(ctx context.Context, id uuid.UUID) (bool, error)
}

// RedisStore keeps 2FA state as JSON values with a TTL
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func setupKey(userID uuid.UUID) string {
	return cache.KeyPrefix + "2fa:setup:" + userID.String()
}

func challengeKey(id uuid.UUID) string {
	return cache.KeyPrefix + "2fa:challenge:" + id.String()
}

func failuresKey(id uuid.UUID) string {
	return challengeKey(id) + ":failures"
}

func (s *RedisStore) SaveSetup(ctx context.Context, setup PendingSetup, ttl time.Duration) error {
	data, err := json.Marshal(setup)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, setupKey(setup.UserID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save pending setup: %w", err)
	}
	return nil
}

func (s *RedisStore) GetSetup(ctx context.Context, userID uuid.UUID) (PendingSetup, error) {
	var setup PendingSetup
	if err := s.getJSON(ctx, setupKey(userID), &setup); err != nil {
		return PendingSetup{}, err
	}
	return setup, nil
}

func (s *RedisStore) DeleteSetup(ctx context.Context, userID uuid.UUID) error {
	return s.client.Del(ctx, setupKey(userID)).Err()
}

func (s *RedisStore) SaveChallenge(ctx context.Context, c Challenge, ttl time.Duration) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, challengeKey(c.ID), data, ttl)
		p.Set(ctx, failuresKey(c.ID), 0, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save challenge: %w", err)
	}
	return nil
}

func (s *RedisStore) GetChallenge(ctx context.Context, id uuid.UUID) (Challenge, error) {
	var c Challenge
	if err := s.getJSON(ctx, challengeKey(id), &c); err != nil {
		return Challenge{}, err
	}
	return c, nil
}

func (s *RedisStore) IncrementFailures(ctx context.Context, id uuid.UUID) (int, error) {
	n, err := s.client.Incr(ctx, failuresKey(id)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count challenge failure: %w", err)
	}
	return int(n), nil
}

func (s *RedisStore) TakeChallenge(ctx context.Context, id uuid.UUID) (bool, error) {
	n, err := s.client.Del(ctx, challengeKey(id), failuresKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to take challenge: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) getJSON(ctx context.Context, key string, v interface{}) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	return json.Unmarshal(data, v)
}

type inMemoryEntry[T any] struct {
	value     T
	expiresAt time.Time
}

// InMemoryStore implements Store in process memory. It is only correct for a single instance.
type InMemoryStore struct {
	mu         sync.Mutex
	setups     map[uuid.UUID]inMemoryEntry[PendingSetup]
	challenges map[uuid.UUID]inMemoryEntry[Challenge]
	failures   map[uuid.UUID]int
	now        func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		setups:     make(map[uuid.UUID]inMemoryEntry[PendingSetup]),
		challenges: make(map[uuid.UUID]inMemoryEntry[Challenge]),
		failures:   make(map[uuid.UUID]int),
		now:        time.Now,
	}
}

// WithClock replaces time.Now, for tests
func (s *InMemoryStore) WithClock(now func() time.Time) *InMemoryStore {
	s.now = now
	return s
}

func (s *InMemoryStore) SaveSetup(ctx context.Context, setup PendingSetup, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setups[setup.UserID] = inMemoryEntry[PendingSetup]{value: setup, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *InMemoryStore) GetSetup(ctx context.Context, userID uuid.UUID) (PendingSetup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.setups[userID]
	if !ok || !e.expiresAt.After(s.now()) {
		delete(s.setups, userID)
		return PendingSetup{}, ErrNotFound
	}
	return e.value, nil
}

func (s *InMemoryStore) DeleteSetup(ctx context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.setups, userID)
	return nil
}

func (s *InMemoryStore) SaveChallenge(ctx context.Context, c Challenge, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[c.ID] = inMemoryEntry[Challenge]{value: c, expiresAt: s.now().Add(ttl)}
	s.failures[c.ID] = 0
	return nil
}

func (s *InMemoryStore) GetChallenge(ctx context.Context, id uuid.UUID) (Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.challenges[id]
	if !ok || !e.expiresAt.After(s.now()) {
		delete(s.challenges, id)
		delete(s.failures, id)
		return Challenge{}, ErrNotFound
	}
	return e.value, nil
}

func (s *InMemoryStore) IncrementFailures(ctx context.Context, id uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[id]++
	return s.failures[id], nil
}

func (s *InMemoryStore) TakeChallenge(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.challenges[id]
	delete(s.challenges, id)
	delete(s.failures, id)
	return ok, nil
}
