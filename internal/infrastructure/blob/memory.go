package blob

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/buildless/buildcached/internal/application/ports"
	domerrors "github.com/buildless/buildcached/internal/domain/errors"
)

type memObject struct {
	data     []byte
	storedAt time.Time
}

// MemoryStore is an in-memory BlobStore for tests and single-instance dev
// deployments. Writes replace the whole object under the lock, so readers
// observe either the previous or the committed object, never partial bytes.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]memObject
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]memObject)}
}

func (s *MemoryStore) Stat(ctx context.Context, key string) (*ports.BlobInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	size := int64(len(obj.data))
	return &ports.BlobInfo{Size: size, Total: size, StoredAt: obj.storedAt}, nil
}

func (s *MemoryStore) Get(ctx context.Context, key string, rng *ports.ByteRange) (io.ReadCloser, *ports.BlobInfo, error) {
	s.mu.RLock()
	obj, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, domerrors.ErrObjectNotFound
	}
	data := obj.data
	total := int64(len(data))
	if rng != nil {
		start, end := rng.Start, rng.End
		if end < 0 || end > total {
			end = total
		}
		if start < 0 || start >= total || start > end {
			return nil, nil, domerrors.ErrRangeNotSatisfiable
		}
		data = data[start:end]
	}
	info := &ports.BlobInfo{Size: int64(len(data)), Total: total, StoredAt: obj.storedAt}
	return io.NopCloser(bytes.NewReader(data)), info, nil
}

func (s *MemoryStore) Put(ctx context.Context, key string, r io.Reader, size int64) (*ports.BlobInfo, error) {
	// Buffer fully before publishing: an abandoned upload never becomes
	// visible.
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	obj := memObject{data: data, storedAt: time.Now()}
	s.mu.Lock()
	s.data[key] = obj
	s.mu.Unlock()
	size = int64(len(data))
	return &ports.BlobInfo{Size: size, Total: size, StoredAt: obj.storedAt}, nil
}

func (s *MemoryStore) Remove(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[key]
	delete(s.data, key)
	return ok, nil
}

func (s *MemoryStore) RemoveScope(ctx context.Context, scope string) (int, error) {
	prefix := scope + "::"
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key := range s.data {
		if strings.HasPrefix(key, prefix) {
			delete(s.data, key)
			n++
		}
	}
	return n, nil
}

var _ ports.BlobStore = (*MemoryStore)(nil)
