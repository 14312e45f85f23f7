package locks

import (
	"context"
	"sync"
	"time"

	"github.com/buildless/buildcached/internal/application/ports"
	domerrors "github.com/buildless/buildcached/internal/domain/errors"
)

// MemoryLocker is an in-memory WriteLocker suitable for single-instance
// deployment. For multi-instance, use a shared lock (e.g. Redis SET NX with
// expiry) behind the same port.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

// NewMemoryLocker returns an empty lock table.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]chan struct{})}
}

// Acquire takes the exclusive lock for key, waiting up to wait for the
// current holder. The loser of a contended acquire gets ErrWriteConflict
// rather than blocking indefinitely.
func (l *MemoryLocker) Acquire(ctx context.Context, key string, wait time.Duration) (func(), error) {
	deadline := time.Now().Add(wait)
	for {
		l.mu.Lock()
		holder, taken := l.held[key]
		if !taken {
			ch := make(chan struct{})
			l.held[key] = ch
			l.mu.Unlock()
			var once sync.Once
			release := func() {
				once.Do(func() {
					l.mu.Lock()
					delete(l.held, key)
					l.mu.Unlock()
					close(ch)
				})
			}
			return release, nil
		}
		l.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, domerrors.ErrWriteConflict
		}
		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-holder:
			timer.Stop()
			// Holder released; race for the lock again.
		case <-timer.C:
			return nil, domerrors.ErrWriteConflict
		}
	}
}

var _ ports.WriteLocker = (*MemoryLocker)(nil)
