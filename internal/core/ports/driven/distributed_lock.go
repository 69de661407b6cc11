package driven

import (
	"context"
	"time"
)

// DistributedLock keeps periodic maintenance single-instance when several
// workers run against the same database.
type DistributedLock interface {
	// Acquire tries to take the named lock for ttl.
	// Returns false without error when another instance holds it.
	Acquire(ctx context.Context, name string, ttl time.Duration) (acquired bool, err error)

	// Release gives up the named lock. Releasing a lock that is not held is not an error.
	Release(ctx context.Context, name string) error

	// Extend pushes out the TTL of a lock held by this instance.
	// Backends without TTLs treat this as a no-op.
	Extend(ctx context.Context, name string, ttl time.Duration) error

	// Ping checks if the lock backend is healthy.
	Ping(ctx context.Context) error
}
