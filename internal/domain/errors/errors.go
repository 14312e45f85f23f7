package errors

import "errors"

// Sentinel errors for handlers to map to HTTP status. Validation and
// authorization errors are never retried; ErrStorageUnavailable is surfaced
// only after the manager's bounded retries are exhausted.
var (
	// Validation (rejected before any authorization check).
	ErrKeyEmpty            = errors.New("cache key is empty")
	ErrKeyTooLong          = errors.New("cache key exceeds 64 bytes")
	ErrKeyReservedSequence = errors.New("cache key contains a reserved separator sequence")
	ErrInvalidTag          = errors.New("invalid cache tag")
	ErrReservedTag         = errors.New("tag is reserved for system callers")
	ErrInvalidDraft        = errors.New("invalid project draft")
	ErrPayloadTooLarge     = errors.New("payload exceeds the maximum object size")

	// Authentication / authorization.
	ErrUnauthenticated  = errors.New("missing or invalid credentials")
	ErrPermissionDenied = errors.New("permission denied")

	// Resolution and lifecycle.
	ErrScopeNotFound   = errors.New("account scope or project not found")
	ErrProjectInactive = errors.New("project is archived or tombstoned")
	ErrObjectNotFound  = errors.New("cache object not found")
	ErrProjectExists   = errors.New("project name already exists in scope")

	// Concurrency.
	ErrWriteConflict = errors.New("key is locked by a concurrent store")
	ErrStaleVersion  = errors.New("stale project settings version")

	// Backend.
	ErrStorageUnavailable  = errors.New("blob storage unavailable")
	ErrRangeNotSatisfiable = errors.New("requested range not satisfiable")
)

// StaleVersionError wraps ErrStaleVersion with the version the caller needs
// to retry against.
type StaleVersionError struct {
	CurrentVersion int64
}

func (e *StaleVersionError) Error() string { return ErrStaleVersion.Error() }

// Unwrap lets errors.Is(err, ErrStaleVersion) match.
func (e *StaleVersionError) Unwrap() error { return ErrStaleVersion }
