package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisEnvelope is the stored form of an entry. The creation time is kept so the
// absolute bound survives sliding renewals, which reset the key TTL.
type redisEnvelope struct {
	Value    []byte        `json:"v"`
	Created  int64         `json:"c"`
	Absolute time.Duration `json:"a,omitempty"`
	Sliding  time.Duration `json:"s,omitempty"`
}

// RedisStore is a Store backed by Redis, for deployments running several replicas.
type RedisStore struct {
	rc     *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisStore creates a new Redis backed store. Keys are namespaced with prefix.
func NewRedisStore(rc *redis.Client, prefix string) *RedisStore {
	return &RedisStore{
		rc:     rc,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *RedisStore) key(key string) string {
	if s.prefix != "" {
		return fmt.Sprintf("%s:%s", s.prefix, key)
	}
	return key
}

// Get retrieves an entry and renews its sliding window.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.rc == nil {
		return nil, false, errors.New("redis client is nil, cannot get cache")
	}

	raw, err := s.rc.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil // Cache miss
		}
		return nil, false, fmt.Errorf("failed to get cache: %w", err)
	}

	var env redisEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		// Unreadable entries are dropped and treated as a miss
		_ = s.rc.Del(ctx, s.key(key)).Err()
		return nil, false, nil
	}

	now := s.now()
	exp := Expiration{Absolute: env.Absolute, Sliding: env.Sliding}
	deadline := exp.deadline(time.Unix(0, env.Created), now)
	if !deadline.IsZero() {
		ttl := deadline.Sub(now)
		if ttl <= 0 {
			_ = s.rc.Del(ctx, s.key(key)).Err()
			return nil, false, nil
		}
		if env.Sliding > 0 {
			if err := s.rc.PExpire(ctx, s.key(key), ttl).Err(); err != nil {
				return nil, false, fmt.Errorf("failed to renew cache entry: %w", err)
			}
		}
	}

	return env.Value, true, nil
}

// Set saves a single entry.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, exp Expiration) error {
	if s.rc == nil {
		return errors.New("redis client is nil, cannot set cache")
	}

	now := s.now()
	env := redisEnvelope{
		Value:    value,
		Created:  now.UnixNano(),
		Absolute: exp.Absolute,
		Sliding:  exp.Sliding,
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	var ttl time.Duration
	if deadline := exp.deadline(now, now); !deadline.IsZero() {
		ttl = deadline.Sub(now)
	}

	if err := s.rc.Set(ctx, s.key(key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}
	return nil
}

// Remove deletes the keys.
func (s *RedisStore) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if s.rc == nil {
		return errors.New("redis client is nil, cannot delete cache")
	}

	full := make([]string, len(keys))
	for i, key := range keys {
		full[i] = s.key(key)
	}

	if err := s.rc.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("failed to delete cache: %w", err)
	}
	return nil
}
