// Package lockstore is the shared key-value store used for per-seat
// mutual exclusion and for short-lived data that must be visible to
// every server instance: reservation mirrors, queue position counters
// and cached availability counts.
package lockstore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
)

// ErrNotHeld is returned by ReleaseLock when the key is absent or owned
// by another token.  Callers log it and move on; the lock TTL bounds
// how long a stale key can linger.
var ErrNotHeld = errors.New("lockstore: lock not held")

// Store is the contract the reservation engine relies on.  TrySetLock is
// a single non-blocking attempt: it succeeds only when the key was
// absent and sets the expiry atomically with the value.
type Store interface {
	TrySetLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Increment(ctx context.Context, key string) (int64, error)
}

// NewToken returns a random owner token for a lock.
func NewToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand does not fail on supported platforms
		panic(err)
	}
	return hex.EncodeToString(b)
}
