package tagstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildless/buildcached/internal/domain"
	domerrors "github.com/buildless/buildcached/internal/domain/errors"
)

func keyedTag(key string) domain.CacheTag {
	return domain.CacheTag{Keyed: &domain.KeyedTag{Key: key}}
}

func TestSetGetTags(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	tags, err := s.GetTags(ctx, "tenant:acme/w::absent")
	require.NoError(t, err)
	assert.Empty(t, tags, "untagged object yields empty set, not an error")

	in := []domain.CacheTag{keyedTag("ci.run"), {WellKnown: domain.TagBuildArtifact}}
	require.NoError(t, s.SetTags(ctx, "tenant:acme/w::k1", in, domain.TagCapabilities{}))

	got, err := s.GetTags(ctx, "tenant:acme/w::k1")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSetTagsValidates(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	err := s.SetTags(ctx, "tenant:acme/w::k1", []domain.CacheTag{keyedTag("system.meta")}, domain.TagCapabilities{})
	require.ErrorIs(t, err, domerrors.ErrReservedTag)

	// Rejected set leaves the index unchanged.
	got, err := s.GetTags(ctx, "tenant:acme/w::k1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMatchByTagStableAndRestartable(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	caps := domain.TagCapabilities{}

	require.NoError(t, s.SetTags(ctx, "tenant:acme/w::b", []domain.CacheTag{keyedTag("ci.run")}, caps))
	require.NoError(t, s.SetTags(ctx, "tenant:acme/w::a", []domain.CacheTag{keyedTag("ci.run")}, caps))
	require.NoError(t, s.SetTags(ctx, "tenant:acme/w::c", []domain.CacheTag{keyedTag("other")}, caps))
	// A different scope never leaks into the query.
	require.NoError(t, s.SetTags(ctx, "user:u1/w::a", []domain.CacheTag{keyedTag("ci.run")}, caps))

	pred := func(tag domain.CacheTag) bool {
		return tag.Keyed != nil && tag.Keyed.Key == "ci.run"
	}
	it, err := s.MatchByTag(ctx, "tenant:acme/w", pred)
	require.NoError(t, err)

	collect := func() []string {
		var refs []string
		for {
			ref, ok, err := it.Next(ctx)
			require.NoError(t, err)
			if !ok {
				return refs
			}
			refs = append(refs, ref)
		}
	}

	first := collect()
	assert.Equal(t, []string{"tenant:acme/w::a", "tenant:acme/w::b"}, first)

	it.Reset()
	second := collect()
	assert.Equal(t, first, second, "restarted query repeats the sequence")
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.SetTags(ctx, "tenant:acme/w::k1", []domain.CacheTag{keyedTag("ci")}, domain.TagCapabilities{}))
	require.NoError(t, s.Clear(ctx, "tenant:acme/w::k1"))
	got, err := s.GetTags(ctx, "tenant:acme/w::k1")
	require.NoError(t, err)
	assert.Empty(t, got)
}
