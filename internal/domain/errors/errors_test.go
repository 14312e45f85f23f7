package errors

import (
	stderrors "errors"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	if ErrPermissionDenied == nil {
		t.Error("ErrPermissionDenied should not be nil")
	}
	if ErrObjectNotFound == nil {
		t.Error("ErrObjectNotFound should not be nil")
	}
	if ErrWriteConflict == nil {
		t.Error("ErrWriteConflict should not be nil")
	}
}

func TestStaleVersionErrorUnwraps(t *testing.T) {
	err := &StaleVersionError{CurrentVersion: 4}
	if !stderrors.Is(err, ErrStaleVersion) {
		t.Error("StaleVersionError should match ErrStaleVersion")
	}
	var sv *StaleVersionError
	if !stderrors.As(err, &sv) || sv.CurrentVersion != 4 {
		t.Error("StaleVersionError should carry the current version")
	}
}
