package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mytad/game-auth/pkg/cache"
	"github.com/redis/go-redis/v9"
)

// RedisWindowStore keeps failed attempts per IP in a sorted set scored by time.
// Only failures are stored; successes are a no-op.
type RedisWindowStore struct {
	client *redis.Client
	ttl    time.Duration
	name   string
}

// NewRedisWindowStore creates a window store. ttl bounds how long an idle IP key lives
// and must be at least the longest window queried.
func NewRedisWindowStore(client *redis.Client, ttl time.Duration) *RedisWindowStore {
	return &RedisWindowStore{client: client, ttl: ttl, name: "login_failures"}
}

// WithName keys the sets under name instead of login_failures, so one Redis can hold
// several independent windows.
func (s *RedisWindowStore) WithName(name string) *RedisWindowStore {
	s.name = name
	return s
}

func (s *RedisWindowStore) key(ip string) string {
	return cache.KeyPrefix + s.name + ":" + ip
}

func (s *RedisWindowStore) Record(ctx context.Context, attempt Attempt) error {
	if attempt.Success {
		return nil
	}
	key := s.key(attempt.IPAddress)
	score := float64(attempt.AttemptedAt.UnixMilli())
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, key, redis.Z{Score: score, Member: uuid.NewString()})
		p.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(attempt.AttemptedAt.Add(-s.ttl).UnixMilli(), 10))
		p.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record failure in redis: %w", err)
	}
	return nil
}

func (s *RedisWindowStore) CountFailuresSince(ctx context.Context, ip string, since time.Time) (int, error) {
	n, err := s.client.ZCount(ctx, s.key(ip), "("+strconv.FormatInt(since.UnixMilli(), 10), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count failures in redis: %w", err)
	}
	return int(n), nil
}
