package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		msg  string
	}{
		{"ErrNotFound", ErrNotFound, "not found"},
		{"ErrAlreadyExists", ErrAlreadyExists, "already exists"},
		{"ErrInvalidInput", ErrInvalidInput, "invalid input"},
		{"ErrUnauthorized", ErrUnauthorized, "unauthorized"},
		{"ErrForbidden", ErrForbidden, "forbidden"},
		{"ErrTokenExpired", ErrTokenExpired, "token expired"},
		{"ErrTokenInvalid", ErrTokenInvalid, "token invalid"},
		{"ErrExtractionFailed", ErrExtractionFailed, "extraction failed"},
		{"ErrEmbeddingUnavailable", ErrEmbeddingUnavailable, "embedding unavailable"},
		{"ErrIndexWrite", ErrIndexWrite, "index write failed"},
		{"ErrNoGroundingAvailable", ErrNoGroundingAvailable, "no documents available for grounding"},
		{"ErrInvalidTransition", ErrInvalidTransition, "invalid status transition"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.msg {
				t.Errorf("expected %q, got %q", tt.msg, tt.err.Error())
			}
		})
	}
}

func TestErrorsAreDistinct(t *testing.T) {
	allErrors := []error{
		ErrNotFound,
		ErrAlreadyExists,
		ErrInvalidInput,
		ErrUnauthorized,
		ErrForbidden,
		ErrTokenExpired,
		ErrTokenInvalid,
		ErrInvalidProvider,
		ErrServiceUnavailable,
		ErrExtractionFailed,
		ErrEmbeddingUnavailable,
		ErrIndexWrite,
		ErrNoGroundingAvailable,
		ErrInvalidTransition,
		ErrStreamFailed,
		ErrStorage,
	}

	for i, a := range allErrors {
		for j, b := range allErrors {
			if i != j && errors.Is(a, b) {
				t.Errorf("errors %d and %d should be distinct", i, j)
			}
		}
	}
}

func TestErrorsSurviveWrapping(t *testing.T) {
	wrapped := fmt.Errorf("embed chunk 3: %w", ErrEmbeddingUnavailable)
	if !errors.Is(wrapped, ErrEmbeddingUnavailable) {
		t.Error("expected wrapped error to match ErrEmbeddingUnavailable")
	}
	if errors.Is(wrapped, ErrIndexWrite) {
		t.Error("wrapped error should not match ErrIndexWrite")
	}
}
