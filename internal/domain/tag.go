package domain

import (
	"fmt"
	"regexp"
	"strings"

	domerrors "github.com/buildless/buildcached/internal/domain/errors"
)

// WellKnownTag is an extensible enum of platform-defined tag identities.
type WellKnownTag string

const (
	TagGeneric       WellKnownTag = "generic"
	TagBuildArtifact WellKnownTag = "build-artifact"
	TagTestResult    WellKnownTag = "test-result"
	TagCompilerOut   WellKnownTag = "compiler-output"
)

// KeyedTag is a user- or system-defined tag identity. Key is a dotted path
// whose segments match keyedTagSegment; System marks platform-reserved tags.
type KeyedTag struct {
	Key    string
	System bool
}

var keyedTagSegment = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// Prefixes reserved for the platform; keyed tags under them are rejected
// unless the caller holds the system capability.
var reservedTagPrefixes = []string{"system", "elide", "buildless"}

// CacheTag is metadata attached to a cache object, identified by exactly one
// of a well-known type or a keyed tag. Tags never participate in the object
// key: changing tags never changes the key a client addresses.
type CacheTag struct {
	WellKnown WellKnownTag // set iff Keyed is nil
	Keyed     *KeyedTag
	Value     *TagValue
}

// TagValue is an optional payload. Derived values are system-computed and
// may not be written by ordinary callers. Exactly one of Inline or Typed is
// set when Present.
type TagValue struct {
	Present bool
	Derived bool
	Inline  []byte
	Typed   *TypedValue
}

// TypedValue carries a payload with an out-of-band type URL.
type TypedValue struct {
	TypeURL string
	Data    []byte
}

// Identity returns a stable string identity for deduplication and indexing.
func (t CacheTag) Identity() string {
	if t.Keyed != nil {
		return "keyed:" + t.Keyed.Key
	}
	return "wk:" + string(t.WellKnown)
}

// TagCapabilities describes what the calling principal may write. It is
// passed explicitly by the object manager, never inferred from tag content.
type TagCapabilities struct {
	System bool
}

// ValidateTag checks one tag against the identity union, the keyed-tag
// grammar, reserved prefixes, and the derived/value invariants.
func ValidateTag(t CacheTag, caps TagCapabilities) error {
	hasWK := t.WellKnown != ""
	hasKeyed := t.Keyed != nil
	if hasWK == hasKeyed {
		return fmt.Errorf("%w: tag must set exactly one of well-known or keyed identity", domerrors.ErrInvalidTag)
	}
	if hasKeyed {
		if err := validateKeyedTagKey(t.Keyed.Key); err != nil {
			return err
		}
		if reservedPrefix(t.Keyed.Key) && !caps.System {
			return fmt.Errorf("%w: %q uses a reserved prefix", domerrors.ErrReservedTag, t.Keyed.Key)
		}
		if t.Keyed.System && !caps.System {
			return fmt.Errorf("%w: system tag from non-system caller", domerrors.ErrReservedTag)
		}
	}
	if v := t.Value; v != nil {
		if !v.Present && (len(v.Inline) > 0 || v.Typed != nil) {
			return fmt.Errorf("%w: absent tag value carries a payload", domerrors.ErrInvalidTag)
		}
		if v.Present && len(v.Inline) > 0 && v.Typed != nil {
			return fmt.Errorf("%w: tag value sets both inline and typed payloads", domerrors.ErrInvalidTag)
		}
		if v.Derived && !caps.System {
			return fmt.Errorf("%w: derived tags are system-computed", domerrors.ErrReservedTag)
		}
	}
	return nil
}

// ValidateTags checks a whole tag set, rejecting duplicates by identity.
func ValidateTags(tags []CacheTag, caps TagCapabilities) error {
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		if err := ValidateTag(t, caps); err != nil {
			return err
		}
		id := t.Identity()
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate tag %s", domerrors.ErrInvalidTag, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func validateKeyedTagKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty keyed tag", domerrors.ErrInvalidTag)
	}
	for _, seg := range strings.Split(key, ".") {
		if !keyedTagSegment.MatchString(seg) {
			return fmt.Errorf("%w: segment %q in %q", domerrors.ErrInvalidTag, seg, key)
		}
	}
	return nil
}

func reservedPrefix(key string) bool {
	first, _, _ := strings.Cut(key, ".")
	for _, p := range reservedTagPrefixes {
		if first == p {
			return true
		}
	}
	return false
}
