package handlers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/buildless/buildcached/internal/application/ports"
	"github.com/buildless/buildcached/internal/domain"
	domerrors "github.com/buildless/buildcached/internal/domain/errors"
)

// Request headers carrying cache metadata.
const (
	HeaderCacheProject = "X-Cache-Project"
	HeaderCacheTag     = "X-Cache-Tag"
)

var wellKnownTags = map[string]domain.WellKnownTag{
	string(domain.TagGeneric):       domain.TagGeneric,
	string(domain.TagBuildArtifact): domain.TagBuildArtifact,
	string(domain.TagTestResult):    domain.TagTestResult,
	string(domain.TagCompilerOut):   domain.TagCompilerOut,
}

// parseTagHeaders turns repeated X-Cache-Tag headers ("name" or
// "name=value") into a tag set. Names matching a well-known tag resolve to
// it; everything else is a keyed tag. Grammar violations surface later from
// tag validation.
func parseTagHeaders(values []string) []domain.CacheTag {
	var tags []domain.CacheTag
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			name, value, hasValue := strings.Cut(part, "=")
			tag := domain.CacheTag{}
			if wk, ok := wellKnownTags[name]; ok {
				tag.WellKnown = wk
			} else {
				tag.Keyed = &domain.KeyedTag{Key: name}
			}
			if hasValue {
				tag.Value = &domain.TagValue{Present: true, Inline: []byte(value)}
			}
			tags = append(tags, tag)
		}
	}
	return tags
}

// parseRangeHeader parses a single-range "bytes=start-end" header into the
// half-open range the blob store expects. Suffix ranges and multipart ranges
// are not supported.
func parseRangeHeader(header string) (*ports.ByteRange, error) {
	if header == "" {
		return nil, nil
	}
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok || strings.Contains(spec, ",") {
		return nil, domerrors.ErrRangeNotSatisfiable
	}
	startStr, endStr, ok := strings.Cut(spec, "-")
	if !ok || startStr == "" {
		return nil, domerrors.ErrRangeNotSatisfiable
	}
	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return nil, domerrors.ErrRangeNotSatisfiable
	}
	rng := &ports.ByteRange{Start: start, End: -1}
	if endStr != "" {
		end, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < start {
			return nil, domerrors.ErrRangeNotSatisfiable
		}
		rng.End = end + 1 // header is inclusive, the store half-open
	}
	return rng, nil
}

// parseProjectRef splits an "owner-scope/name" reference
// ("tenant:acme/webapp", "user:u123/ci") from the X-Cache-Project header.
func parseProjectRef(ref string) (domain.AccountScope, string, error) {
	scopeStr, name, ok := strings.Cut(ref, "/")
	if !ok || name == "" {
		return domain.AccountScope{}, "", fmt.Errorf("malformed project reference %q", ref)
	}
	scope, err := domain.ParseScope(scopeStr)
	if err != nil {
		return domain.AccountScope{}, "", err
	}
	return scope, name, nil
}
