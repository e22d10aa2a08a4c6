package core

import (
	"errors"
	"testing"
)

func TestJobErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewJobError(KindAllFetchesFailed, "every page fetch failed", cause)

	if !errors.Is(err, cause) {
		t.Errorf("expected errors.Is to find wrapped cause")
	}
	if err.Kind != KindAllFetchesFailed {
		t.Errorf("expected kind %s, got %s", KindAllFetchesFailed, err.Kind)
	}
}

func TestJobErrorWithoutCause(t *testing.T) {
	err := NewJobError(KindInvalidCompanyName, "website is required", nil)
	if err.Unwrap() != nil {
		t.Errorf("expected nil unwrap for cause-less error")
	}
	if err.Error() == "" {
		t.Errorf("expected non-empty error message")
	}
}
