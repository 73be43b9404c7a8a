package errors

import (
	"fmt"
	"net/http"
	"testing"
)

func TestAppErrorMessage(t *testing.T) {
	err := InvalidInput("op", nil, "test message")

	if err.Code != http.StatusBadRequest {
		t.Errorf("expected code %d, got %d", http.StatusBadRequest, err.Code)
	}
	if err.Error() != "test message" {
		t.Errorf("expected error string 'test message', got '%s'", err.Error())
	}
}

func TestErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("cause error")
	err := Internal("op", cause, "test message")

	expected := "test message: cause error"
	if err.Error() != expected {
		t.Errorf("expected '%s', got '%s'", expected, err.Error())
	}
	if err.Unwrap() != cause {
		t.Error("expected Unwrap to return the cause")
	}
}

func TestCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{
			name:     "invalid input",
			err:      InvalidInput("op", nil, "bad"),
			expected: http.StatusBadRequest,
		},
		{
			name:     "not found",
			err:      NotFound("op", nil, "missing"),
			expected: http.StatusNotFound,
		},
		{
			name:     "unavailable",
			err:      Unavailable("op", nil, "down"),
			expected: http.StatusServiceUnavailable,
		},
		{
			name:     "wrapped app error",
			err:      fmt.Errorf("outer: %w", NotFound("op", nil, "missing")),
			expected: http.StatusNotFound,
		},
		{
			name:     "non-custom error",
			err:      fmt.Errorf("standard error"),
			expected: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Code(tt.err); got != tt.expected {
				t.Errorf("Code() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestPredicates(t *testing.T) {
	if !IsNotFound(NotFound("op", nil, "x")) {
		t.Error("IsNotFound() = false for NotFound error")
	}
	if IsNotFound(InvalidInput("op", nil, "x")) {
		t.Error("IsNotFound() = true for InvalidInput error")
	}
	if !IsInvalidInput(InvalidInput("op", nil, "x")) {
		t.Error("IsInvalidInput() = false for InvalidInput error")
	}
	if !IsUnavailable(Unavailable("op", nil, "x")) {
		t.Error("IsUnavailable() = false for Unavailable error")
	}
}
