// Package lock provides the MySQL advisory lock that guards a shared sandbox database.
package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrLockTimeout is returned when another run holds the sandbox lock.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// Timeout values for lock acquisition (in seconds).
const (
	// TimeoutImmediate returns at once if the lock is taken.
	TimeoutImmediate = 0

	// TimeoutShort fails fast when another run owns the sandbox.
	TimeoutShort = 1

	// TimeoutInfinite waits until the lock is free. MySQL treats negative values as infinite.
	TimeoutInfinite = -1
)

// maxLockNameLength is MySQL's limit on GET_LOCK names.
const maxLockNameLength = 64

// AdvisoryLock is a MySQL GET_LOCK() named lock.
//
// Named locks belong to a session, so the lock pins one connection from the
// pool for as long as it is held; acquiring and releasing on different pooled
// connections would leak the lock.
type AdvisoryLock struct {
	db       *sql.DB
	conn     *sql.Conn
	lockName string
	held     bool
}

// NewAdvisoryLock creates a new advisory lock with the given name.
// The lock is not acquired until Acquire is called.
func NewAdvisoryLock(db *sql.DB, lockName string) *AdvisoryLock {
	return &AdvisoryLock{
		db:       db,
		lockName: lockName,
	}
}

// NewSandboxLock creates the lock guarding the named sandbox database.
func NewSandboxLock(db *sql.DB, database string) *AdvisoryLock {
	return NewAdvisoryLock(db, SandboxLockName(database))
}

// SandboxLockName builds the lock name for a sandbox database:
// "typeprobe:sandbox:{database}", sanitized and capped at 64 characters.
func SandboxLockName(database string) string {
	sanitized := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, database)

	name := "typeprobe:sandbox:" + sanitized
	if len(name) > maxLockNameLength {
		name = name[:maxLockNameLength]
	}
	return name
}

// Acquire attempts to acquire the lock, waiting up to timeoutSeconds.
// It returns false without error when the wait timed out.
//
// MySQL GET_LOCK() returns 1 when obtained, 0 on timeout and NULL on error.
func (a *AdvisoryLock) Acquire(ctx context.Context, timeoutSeconds int) (bool, error) {
	if a.held {
		return true, nil
	}
	if a.db == nil {
		return false, errors.New("advisory lock has no database")
	}

	conn, err := a.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to reserve connection for lock %q: %w", a.lockName, err)
	}

	var result sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", a.lockName, timeoutSeconds).Scan(&result); err != nil {
		conn.Close()
		return false, fmt.Errorf("failed to execute GET_LOCK: %w", err)
	}

	if !result.Valid {
		conn.Close()
		return false, fmt.Errorf("GET_LOCK returned NULL for lock %q (possible database error)", a.lockName)
	}

	switch result.Int64 {
	case 1:
		a.conn = conn
		a.held = true
		return true, nil
	case 0:
		conn.Close()
		return false, nil
	default:
		conn.Close()
		return false, fmt.Errorf("unexpected GET_LOCK return value: %d", result.Int64)
	}
}

// AcquireOrFail acquires the lock with TimeoutShort and returns ErrLockTimeout
// when another run holds it.
func (a *AdvisoryLock) AcquireOrFail(ctx context.Context) error {
	acquired, err := a.Acquire(ctx, TimeoutShort)
	if err != nil {
		return err
	}
	if !acquired {
		return fmt.Errorf("%w: lock %q is held by another run", ErrLockTimeout, a.lockName)
	}
	return nil
}

// Release releases the lock and returns its pinned connection to the pool.
// It returns false when the lock was not held.
//
// MySQL RELEASE_LOCK() returns 1 when released, 0 when held by another
// session and NULL when the lock does not exist.
func (a *AdvisoryLock) Release(ctx context.Context) (bool, error) {
	if !a.held {
		return false, nil
	}

	conn := a.conn
	a.conn = nil
	a.held = false
	defer conn.Close()

	var result sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT RELEASE_LOCK(?)", a.lockName).Scan(&result); err != nil {
		return false, fmt.Errorf("failed to execute RELEASE_LOCK: %w", err)
	}

	if !result.Valid {
		return false, fmt.Errorf("RELEASE_LOCK returned NULL for lock %q (lock did not exist)", a.lockName)
	}
	return result.Int64 == 1, nil
}

// IsHeld reports whether this instance holds the lock.
func (a *AdvisoryLock) IsHeld() bool {
	return a.held
}

// LockName returns the name of the advisory lock.
func (a *AdvisoryLock) LockName() string {
	return a.lockName
}
