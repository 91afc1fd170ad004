// Package cache provides the key/value stores backing the role directory cache.
//
// Entries are opaque byte slices so a cached value can never be mutated through a
// shared reference. Each entry carries two expirations: an absolute lifetime that
// caps how long it may live, and a sliding window that is renewed on every read.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Expiration describes how long an entry may stay in a store.
// A zero Absolute or Sliding disables that bound.
type Expiration struct {
	Absolute time.Duration
	Sliding  time.Duration
}

// Store is a concurrency-safe byte cache with absolute and sliding expiration.
type Store interface {
	// Get returns the value and true on hit. A miss is not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key with the given expiration, replacing any previous entry.
	Set(ctx context.Context, key string, value []byte, exp Expiration) error
	// Remove drops the keys. Missing keys are ignored.
	Remove(ctx context.Context, keys ...string) error
}

// GetJSON reads key from store and decodes it into a T.
func GetJSON[T any](ctx context.Context, store Store, key string) (T, bool, error) {
	var value T
	raw, ok, err := store.Get(ctx, key)
	if err != nil || !ok {
		return value, false, err
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return value, false, fmt.Errorf("failed to decode cache entry %q: %w", key, err)
	}
	return value, true, nil
}

// SetJSON encodes value and stores it under key.
func SetJSON[T any](ctx context.Context, store Store, key string, value T, exp Expiration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry %q: %w", key, err)
	}
	return store.Set(ctx, key, raw, exp)
}

// deadline returns the instant an entry stored at now expires given its last access.
func (e Expiration) deadline(created, lastAccess time.Time) time.Time {
	var d time.Time
	if e.Absolute > 0 {
		d = created.Add(e.Absolute)
	}
	if e.Sliding > 0 {
		s := lastAccess.Add(e.Sliding)
		if d.IsZero() || s.Before(d) {
			d = s
		}
	}
	return d
}
