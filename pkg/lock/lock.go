package lock

import (
	"context"
	"errors"
)

// ErrLocked is returned by TryAcquire when the key is already held
var ErrLocked = errors.New("lock is held")

// ReleaseFunc releases an acquired lock. Calling it more than once is safe.
type ReleaseFunc func()

// Locker is a non-blocking keyed mutual exclusion registry
type Locker interface {
	// TryAcquire takes the lock for key or returns ErrLocked immediately
	TryAcquire(ctx context.Context, key string) (ReleaseFunc, error)

	// Held reports whether key is currently locked
	Held(ctx context.Context, key string) (bool, error)
}
