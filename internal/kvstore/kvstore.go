package kvstore

import (
	"context"
	"errors"
	"time"
)

// ErrNoKey is returned by Incr when the counter key does not exist.
// Callers that want create-then-increment semantics must Set or SetNX first.
var ErrNoKey = errors.New("kvstore: no such key")

// Store is the narrow atomic interface over the shared key-value store.
// It backs the distributed lock, the global rate counter and the recipient
// list cache, and is the only mutable state shared across workers. No
// transactional isolation is provided beyond these primitives; higher-level
// invariants built on them are check-then-act and therefore best-effort.
type Store interface {
	// Get returns the raw value at key. The second return is false if the
	// key does not exist.
	Get(ctx context.Context, key string) (string, bool, error)

	// GetInt returns the value at key parsed as an integer, or (0, false)
	// if the key does not exist.
	GetInt(ctx context.Context, key string) (int64, bool, error)

	// Set writes value at key with the given TTL. A zero TTL means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNX writes value at key only if the key is absent. Returns true if
	// the write happened.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Incr atomically increments the integer at key and returns the new
	// value. Returns ErrNoKey if the key does not exist.
	Incr(ctx context.Context, key string) (int64, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
