package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	domerrors "github.com/buildless/buildcached/internal/domain/errors"
)

// writeErr sends JSON { "error": message, "code": errCode }. If errCode is
// empty, a default is derived from the HTTP status.
func writeErr(w http.ResponseWriter, code int, errCode string, message string) {
	if errCode == "" {
		errCode = defaultErrCode(code)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message, "code": errCode})
}

func defaultErrCode(httpCode int) string {
	switch httpCode {
	case http.StatusBadRequest:
		return ErrCodeInvalidRequest
	case http.StatusUnauthorized:
		return ErrCodeUnauthenticated
	case http.StatusForbidden:
		return ErrCodeForbidden
	case http.StatusNotFound:
		return ErrCodeNotFound
	case http.StatusConflict:
		return ErrCodeConflict
	case http.StatusTooManyRequests:
		return ErrCodeRateLimited
	case http.StatusServiceUnavailable:
		return ErrCodeStorageUnavailable
	default:
		return ErrCodeInternal
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDomainErr maps domain sentinels to the HTTP contract. Unknown errors
// become 500 without leaking detail.
func writeDomainErr(w http.ResponseWriter, err error) {
	var stale *domerrors.StaleVersionError
	if errors.As(err, &stale) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error":           "version conflict",
			"code":            ErrCodeStaleVersion,
			"current_version": stale.CurrentVersion,
		})
		return
	}
	switch {
	case errors.Is(err, domerrors.ErrUnauthenticated):
		writeErr(w, http.StatusUnauthorized, ErrCodeUnauthenticated, "authentication required")
	case errors.Is(err, domerrors.ErrPermissionDenied):
		writeErr(w, http.StatusForbidden, ErrCodeForbidden, "permission denied")
	case errors.Is(err, domerrors.ErrProjectInactive):
		writeErr(w, http.StatusForbidden, ErrCodeProjectInactive, err.Error())
	case errors.Is(err, domerrors.ErrObjectNotFound):
		writeErr(w, http.StatusNotFound, ErrCodeNotFound, "not found")
	case errors.Is(err, domerrors.ErrScopeNotFound):
		writeErr(w, http.StatusNotFound, ErrCodeNotFound, "project not found")
	case errors.Is(err, domerrors.ErrProjectExists):
		writeErr(w, http.StatusConflict, ErrCodeProjectExists, "project already exists")
	case errors.Is(err, domerrors.ErrWriteConflict):
		writeErr(w, http.StatusConflict, ErrCodeConflict, "key is locked by a concurrent write")
	case errors.Is(err, domerrors.ErrKeyTooLong):
		writeErr(w, http.StatusRequestURITooLong, ErrCodeKeyTooLong, err.Error())
	case errors.Is(err, domerrors.ErrPayloadTooLarge):
		writeErr(w, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "payload too large")
	case errors.Is(err, domerrors.ErrRangeNotSatisfiable):
		writeErr(w, http.StatusRequestedRangeNotSatisfiable, ErrCodeRangeUnsatisfiable, "range not satisfiable")
	case errors.Is(err, domerrors.ErrKeyEmpty),
		errors.Is(err, domerrors.ErrKeyReservedSequence),
		errors.Is(err, domerrors.ErrInvalidTag),
		errors.Is(err, domerrors.ErrReservedTag),
		errors.Is(err, domerrors.ErrInvalidDraft):
		writeErr(w, http.StatusUnprocessableEntity, ErrCodeInvalidPayload, err.Error())
	case errors.Is(err, domerrors.ErrStorageUnavailable):
		writeErr(w, http.StatusServiceUnavailable, ErrCodeStorageUnavailable, "storage unavailable")
	default:
		writeErr(w, http.StatusInternalServerError, ErrCodeInternal, "internal error")
	}
}
