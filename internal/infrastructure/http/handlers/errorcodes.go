package handlers

// API error codes returned in JSON { "error": "...", "code": "..." } for
// stable client handling.
const (
	ErrCodeInvalidRequest     = "invalid_request"
	ErrCodeUnauthenticated    = "unauthenticated"
	ErrCodeForbidden          = "forbidden"
	ErrCodeNotFound           = "not_found"
	ErrCodeConflict           = "conflict"
	ErrCodeStaleVersion       = "stale_version"
	ErrCodeProjectExists      = "project_exists"
	ErrCodeProjectInactive    = "project_inactive"
	ErrCodeKeyTooLong         = "key_too_long"
	ErrCodePayloadTooLarge    = "payload_too_large"
	ErrCodeLengthRequired     = "length_required"
	ErrCodeUnsupportedMedia   = "unsupported_media_type"
	ErrCodeInvalidPayload     = "invalid_payload"
	ErrCodeRangeUnsatisfiable = "range_not_satisfiable"
	ErrCodeRateLimited        = "rate_limited"
	ErrCodeStorageUnavailable = "storage_unavailable"
	ErrCodeInternal           = "internal_error"
)
