package locks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domerrors "github.com/buildless/buildcached/internal/domain/errors"
)

func TestAcquireExclusive(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	release, err := l.Acquire(ctx, "k", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	_, err = l.Acquire(ctx, "k", 10*time.Millisecond)
	if !errors.Is(err, domerrors.ErrWriteConflict) {
		t.Fatalf("contended acquire = %v, want ErrWriteConflict", err)
	}

	// A different key is independent.
	release2, err := l.Acquire(ctx, "other", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("independent key: %v", err)
	}
	release2()

	release()
	release() // idempotent

	release3, err := l.Acquire(ctx, "k", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	release3()
}

func TestAcquireWaitsForHolder(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	release, err := l.Acquire(ctx, "k", time.Second)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(20 * time.Millisecond)
		release()
	}()

	// The waiter should win once the holder releases within the bound.
	release2, err := l.Acquire(ctx, "k", time.Second)
	if err != nil {
		t.Fatalf("bounded wait acquire: %v", err)
	}
	release2()
	wg.Wait()
}

func TestAcquireHonorsContext(t *testing.T) {
	l := NewMemoryLocker()
	release, err := l.Acquire(context.Background(), "k", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Acquire(ctx, "k", time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled acquire = %v, want context.Canceled", err)
	}
}
