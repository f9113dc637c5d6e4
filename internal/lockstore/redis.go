package lockstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only when it still carries the
// caller's token, so a worker whose TTL lapsed cannot remove the lock of
// the worker that took over.
var releaseScript = redis.NewScript(`
    if redis.call('GET', KEYS[1]) == ARGV[1] then
        return redis.call('DEL', KEYS[1])
    end
    return 0
`)

// RedisStore implements Store on a go-redis client.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore wraps an existing client.  The client's lifecycle stays
// with the caller.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// TrySetLock issues SET key token NX PX ttl.
func (s *RedisStore) TrySetLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lockstore: set %s: %w", key, err)
	}
	return ok, nil
}

// ReleaseLock removes key if token still owns it.
func (s *RedisStore) ReleaseLock(ctx context.Context, key, token string) error {
	n, err := releaseScript.Run(ctx, s.rdb, []string{key}, token).Int64()
	if err != nil {
		return fmt.Errorf("lockstore: release %s: %w", key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

// Get returns the value at key; the boolean is false when the key does
// not exist.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lockstore: get %s: %w", key, err)
	}
	return v, true, nil
}

// Set writes value with an expiry.  A zero ttl keeps the key forever.
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("lockstore: set %s: %w", key, err)
	}
	return nil
}

// Delete removes key.  Deleting a missing key is not an error.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("lockstore: del %s: %w", key, err)
	}
	return nil
}

// Increment atomically bumps the counter at key and returns the new
// value.  A missing key starts at zero, so the first caller gets 1.
func (s *RedisStore) Increment(ctx context.Context, key string) (int64, error) {
	n, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("lockstore: incr %s: %w", key, err)
	}
	return n, nil
}
