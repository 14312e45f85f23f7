package tagstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/buildless/buildcached/internal/application/ports"
	"github.com/buildless/buildcached/internal/domain"
)

// MemoryStore is an in-memory TagStore suitable for single-instance
// deployment and tests. For multi-instance, use the Redis store.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]domain.CacheTag
}

// NewMemoryStore returns an empty tag index.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]domain.CacheTag)}
}

func (s *MemoryStore) SetTags(ctx context.Context, ref string, tags []domain.CacheTag, caps domain.TagCapabilities) error {
	if err := domain.ValidateTags(tags, caps); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(tags) == 0 {
		delete(s.data, ref)
		return nil
	}
	cp := make([]domain.CacheTag, len(tags))
	copy(cp, tags)
	s.data[ref] = cp
	return nil
}

func (s *MemoryStore) GetTags(ctx context.Context, ref string) ([]domain.CacheTag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tags, ok := s.data[ref]
	if !ok {
		return []domain.CacheTag{}, nil
	}
	out := make([]domain.CacheTag, len(tags))
	copy(out, tags)
	return out, nil
}

func (s *MemoryStore) MatchByTag(ctx context.Context, scope string, pred func(domain.CacheTag) bool) (ports.ObjectIterator, error) {
	return &memoryIterator{store: s, scope: scope, pred: pred}, nil
}

func (s *MemoryStore) Clear(ctx context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, ref)
	return nil
}

// memoryIterator snapshots matching refs on first Next so ordering stays
// stable within one execution; Reset discards the snapshot and re-queries.
type memoryIterator struct {
	store *MemoryStore
	scope string
	pred  func(domain.CacheTag) bool

	snapshot []string
	pos      int
	started  bool
}

func (it *memoryIterator) Next(ctx context.Context) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	if !it.started {
		it.snapshot = it.run()
		it.started = true
		it.pos = 0
	}
	if it.pos >= len(it.snapshot) {
		return "", false, nil
	}
	ref := it.snapshot[it.pos]
	it.pos++
	return ref, true, nil
}

func (it *memoryIterator) Reset() {
	it.started = false
	it.snapshot = nil
	it.pos = 0
}

func (it *memoryIterator) run() []string {
	prefix := it.scope + "::"
	it.store.mu.RLock()
	defer it.store.mu.RUnlock()
	var refs []string
	for ref, tags := range it.store.data {
		if !strings.HasPrefix(ref, prefix) {
			continue
		}
		for _, tag := range tags {
			if it.pred(tag) {
				refs = append(refs, ref)
				break
			}
		}
	}
	sort.Strings(refs)
	return refs
}

var _ ports.TagStore = (*MemoryStore)(nil)
