package distlock

import (
	"context"
	"database/sql"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lock is a per-campaign mutual exclusion token. Acquisition is
// non-blocking: a caller that fails to acquire must abandon the invocation
// rather than wait, since a held lock means another worker is already
// sending for that campaign.
//
// A Lock instance is for a single goroutine; concurrent invocations each
// create their own instance.
type Lock interface {
	// Acquire tries to take the lock. Returns false if it is already held.
	Acquire(ctx context.Context) (bool, error)
	// Release frees the lock if this instance still owns it. Must run on
	// every exit path; the TTL is only the crash-recovery backstop.
	Release(ctx context.Context) error
}

// Factory builds the lock for one campaign dispatch invocation.
type Factory func(campaignID string) Lock

// NewFactory returns a Factory using the best available backend: Redis when
// a client is provided, otherwise PostgreSQL advisory locks (session-scoped,
// released when the connection drops).
func NewFactory(redisClient *redis.Client, db *sql.DB, ttl time.Duration) Factory {
	return func(campaignID string) Lock {
		if redisClient != nil {
			return NewRedisLock(redisClient, campaignID, ttl)
		}
		return NewPGAdvisoryLock(db, campaignID)
	}
}

// PGAdvisoryLock implements Lock with pg_try_advisory_lock /
// pg_advisory_unlock. There is no TTL; crash-safety comes from the database
// releasing session locks when the connection dies.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
}

// NewPGAdvisoryLock derives a deterministic advisory lock ID from the key.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{db: db, lockID: int64(h.Sum64())}
}

// Acquire tries the advisory lock without blocking.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	var acquired bool
	err := l.db.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired)
	return acquired, err
}

// Release frees the advisory lock.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}
