// Package runlock provides an advisory lock claimed by an import run before
// it mutates a comparison's ledger entries. Two operators (or a cron overlap)
// importing the same pending set would otherwise double-create customers on
// the billing side.
package runlock

import (
	"context"
	"database/sql"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RunLock is the advisory lock interface. Implementations are meant to be
// used from a single goroutine; this tool is serial by design.
type RunLock interface {
	// Acquire tries to claim the lock, returning true on success. It never
	// blocks waiting for the holder.
	Acquire(ctx context.Context) (bool, error)
	// Extend renews the holder's lease so a long run does not outlive it.
	Extend(ctx context.Context) error
	// Release gives the lock back if this instance still owns it.
	Release(ctx context.Context) error
}

// New picks the best available backend for the given key. Redis is preferred
// when configured (cross-host safe, TTL guards against crashed holders);
// otherwise a Postgres advisory lock on the ledger database is used, which
// releases automatically when the session drops.
func New(redisClient *redis.Client, db *sql.DB, key string, ttl time.Duration) RunLock {
	if redisClient != nil {
		return NewRedisLock(redisClient, key, ttl)
	}
	return NewPGAdvisoryLock(db, key)
}

// PGAdvisoryLock implements RunLock with pg_try_advisory_lock, keyed by an
// fnv-64a hash of the lock name.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
}

// NewPGAdvisoryLock creates an advisory lock with a deterministic lock ID
// derived from key.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{db: db, lockID: int64(h.Sum64())}
}

// Acquire tries the advisory lock, non-blocking.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	var acquired bool
	err := l.db.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired)
	return acquired, err
}

// Extend is a no-op: session advisory locks have no TTL and hold until
// released or the connection drops.
func (l *PGAdvisoryLock) Extend(ctx context.Context) error {
	return nil
}

// Release unlocks the advisory lock.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}
