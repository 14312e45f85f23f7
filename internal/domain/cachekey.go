package domain

import (
	"strings"

	domerrors "github.com/buildless/buildcached/internal/domain/errors"
)

// MaxCacheKeyBytes is the limit on the client-supplied key, before
// scope namespacing.
const MaxCacheKeyBytes = 64

// scopeSeparator joins the scope prefix to the raw key inside a
// NormalizedKey. Raw keys may not contain it, so two identical key strings
// under different scopes can never collide and a key can never escape its
// namespace.
const scopeSeparator = "::"

// NormalizedKey is a cache key bound to its resolved scope. Construct via
// NormalizeKey; the zero value is invalid.
type NormalizedKey struct {
	scope string
	key   string
}

// Scope returns the namespace the key was normalized under.
func (k NormalizedKey) Scope() string { return k.scope }

// Key returns the raw client-supplied key.
func (k NormalizedKey) Key() string { return k.key }

// String returns the storage form "<scope>::<key>".
func (k NormalizedKey) String() string { return k.scope + scopeSeparator + k.key }

// IsZero reports whether the key was not produced by NormalizeKey.
func (k NormalizedKey) IsZero() bool { return k.scope == "" && k.key == "" }

// NormalizeKey validates a raw cache key and binds it to scope. Pure: no
// side effects, no I/O. Tags are out-of-band and never part of the key.
func NormalizeKey(key, scope string) (NormalizedKey, error) {
	if key == "" {
		return NormalizedKey{}, domerrors.ErrKeyEmpty
	}
	if len(key) > MaxCacheKeyBytes {
		return NormalizedKey{}, domerrors.ErrKeyTooLong
	}
	if strings.Contains(key, scopeSeparator) {
		return NormalizedKey{}, domerrors.ErrKeyReservedSequence
	}
	if scope == "" {
		return NormalizedKey{}, domerrors.ErrScopeNotFound
	}
	return NormalizedKey{scope: scope, key: key}, nil
}
