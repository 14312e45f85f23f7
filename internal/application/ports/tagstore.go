package ports

import (
	"context"

	"github.com/buildless/buildcached/internal/domain"
)

// ObjectIterator is a lazy, restartable sequence of object references
// produced by a tag query. Ordering is unspecified but stable within one
// execution; Reset restarts the query.
type ObjectIterator interface {
	Next(ctx context.Context) (ref string, ok bool, err error)
	Reset()
}

// TagStore maintains the per-object tag index, queryable without fetching
// object bodies. Keys are normalized-key strings (domain.NormalizedKey).
type TagStore interface {
	// SetTags replaces the tag set for ref. Implementations validate tags
	// against caps (reserved prefixes, derived gating) via
	// domain.ValidateTags before persisting.
	SetTags(ctx context.Context, ref string, tags []domain.CacheTag, caps domain.TagCapabilities) error
	// GetTags returns the tag set for ref; empty (never nil error) when the
	// object has no tags. Metadata-only: must not touch the blob store.
	GetTags(ctx context.Context, ref string) ([]domain.CacheTag, error)
	// MatchByTag returns refs in scope whose tag set satisfies pred.
	MatchByTag(ctx context.Context, scope string, pred func(domain.CacheTag) bool) (ObjectIterator, error)
	// Clear removes all tags for ref (flush / purge path).
	Clear(ctx context.Context, ref string) error
}
