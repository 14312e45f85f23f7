package tagstore

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/buildless/buildcached/internal/application/ports"
	"github.com/buildless/buildcached/internal/domain"
)

const (
	tagKeyPrefix   = "cache:tags:"
	scopeKeyPrefix = "cache:tagscope:"
)

// RedisStore is a TagStore backed by Redis, for multi-instance deployments.
// Tags are stored as one JSON document per object ref plus a per-scope set
// of refs for tag queries.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// storedTag is the JSON wire form of domain.CacheTag.
type storedTag struct {
	WellKnown string          `json:"wk,omitempty"`
	KeyedKey  string          `json:"key,omitempty"`
	System    bool            `json:"system,omitempty"`
	Value     *storedTagValue `json:"value,omitempty"`
}

type storedTagValue struct {
	Present bool   `json:"present"`
	Derived bool   `json:"derived,omitempty"`
	Inline  []byte `json:"inline,omitempty"`
	TypeURL string `json:"type_url,omitempty"`
	Data    []byte `json:"data,omitempty"`
}

func encodeTags(tags []domain.CacheTag) ([]byte, error) {
	out := make([]storedTag, 0, len(tags))
	for _, t := range tags {
		st := storedTag{WellKnown: string(t.WellKnown)}
		if t.Keyed != nil {
			st.KeyedKey = t.Keyed.Key
			st.System = t.Keyed.System
		}
		if t.Value != nil {
			sv := &storedTagValue{Present: t.Value.Present, Derived: t.Value.Derived, Inline: t.Value.Inline}
			if t.Value.Typed != nil {
				sv.TypeURL = t.Value.Typed.TypeURL
				sv.Data = t.Value.Typed.Data
			}
			st.Value = sv
		}
		out = append(out, st)
	}
	return json.Marshal(out)
}

func decodeTags(raw []byte) ([]domain.CacheTag, error) {
	var stored []storedTag
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, err
	}
	out := make([]domain.CacheTag, 0, len(stored))
	for _, st := range stored {
		t := domain.CacheTag{WellKnown: domain.WellKnownTag(st.WellKnown)}
		if st.KeyedKey != "" {
			t.Keyed = &domain.KeyedTag{Key: st.KeyedKey, System: st.System}
		}
		if st.Value != nil {
			t.Value = &domain.TagValue{Present: st.Value.Present, Derived: st.Value.Derived, Inline: st.Value.Inline}
			if st.Value.TypeURL != "" || len(st.Value.Data) > 0 {
				t.Value.Typed = &domain.TypedValue{TypeURL: st.Value.TypeURL, Data: st.Value.Data}
			}
		}
		out = append(out, t)
	}
	return out, nil
}

func refScope(ref string) string {
	if i := strings.Index(ref, "::"); i >= 0 {
		return ref[:i]
	}
	return ref
}

func (s *RedisStore) SetTags(ctx context.Context, ref string, tags []domain.CacheTag, caps domain.TagCapabilities) error {
	if err := domain.ValidateTags(tags, caps); err != nil {
		return err
	}
	if len(tags) == 0 {
		return s.Clear(ctx, ref)
	}
	raw, err := encodeTags(tags)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, tagKeyPrefix+ref, raw, 0)
	pipe.SAdd(ctx, scopeKeyPrefix+refScope(ref), ref)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) GetTags(ctx context.Context, ref string) ([]domain.CacheTag, error) {
	raw, err := s.client.Get(ctx, tagKeyPrefix+ref).Bytes()
	if err == redis.Nil {
		return []domain.CacheTag{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeTags(raw)
}

func (s *RedisStore) MatchByTag(ctx context.Context, scope string, pred func(domain.CacheTag) bool) (ports.ObjectIterator, error) {
	return &redisIterator{store: s, scope: scope, pred: pred}, nil
}

func (s *RedisStore) Clear(ctx context.Context, ref string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, tagKeyPrefix+ref)
	pipe.SRem(ctx, scopeKeyPrefix+refScope(ref), ref)
	_, err := pipe.Exec(ctx)
	return err
}

// redisIterator snapshots the scope's refs on first Next, then filters
// lazily one ref per call. Order is stable within one execution (sorted
// snapshot); Reset re-runs the query.
type redisIterator struct {
	store *RedisStore
	scope string
	pred  func(domain.CacheTag) bool

	refs    []string
	pos     int
	started bool
}

func (it *redisIterator) Next(ctx context.Context) (string, bool, error) {
	if !it.started {
		refs, err := it.store.client.SMembers(ctx, scopeKeyPrefix+it.scope).Result()
		if err != nil {
			return "", false, err
		}
		sort.Strings(refs)
		it.refs = refs
		it.pos = 0
		it.started = true
	}
	for it.pos < len(it.refs) {
		ref := it.refs[it.pos]
		it.pos++
		tags, err := it.store.GetTags(ctx, ref)
		if err != nil {
			return "", false, err
		}
		for _, tag := range tags {
			if it.pred(tag) {
				return ref, true, nil
			}
		}
	}
	return "", false, nil
}

func (it *redisIterator) Reset() {
	it.started = false
	it.refs = nil
	it.pos = 0
}

var _ ports.TagStore = (*RedisStore)(nil)
