package ports

import (
	"context"
	"time"
)

// WriteLocker serializes writers on a (scope, key) pair. Acquire waits up to
// wait for the current holder, then fails with errors.ErrWriteConflict. The
// returned release func is idempotent. Reads never take this lock.
type WriteLocker interface {
	Acquire(ctx context.Context, key string, wait time.Duration) (release func(), err error)
}
