package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		checkFn  func(error) bool
		expected bool
	}{
		{
			name:     "ErrNotFound is recognized",
			err:      ErrNotFound,
			checkFn:  IsNotFound,
			expected: true,
		},
		{
			name:     "Wrapped ErrNotFound is recognized",
			err:      fmt.Errorf("get faculty: %w", ErrNotFound),
			checkFn:  IsNotFound,
			expected: true,
		},
		{
			name:     "Different error is not ErrNotFound",
			err:      ErrConflict,
			checkFn:  IsNotFound,
			expected: false,
		},
		{
			name:     "ErrConflict is recognized",
			err:      errors.Join(ErrConflict, errors.New("slug taken")),
			checkFn:  IsConflict,
			expected: true,
		},
		{
			name:     "ErrUnavailable is recognized",
			err:      ErrUnavailable,
			checkFn:  IsUnavailable,
			expected: true,
		},
		{
			name:     "ValidationError counts as invalid input",
			err:      NewValidationError("slug", "must not be empty"),
			checkFn:  IsInvalidInput,
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.checkFn(tt.err)
			if result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("category", "must be CA or CMA")

	if err.Field != "category" {
		t.Errorf("expected field 'category', got '%s'", err.Field)
	}

	expected := "validation failed on category: must be CA or CMA"
	if err.Error() != expected {
		t.Errorf("expected error '%s', got '%s'", expected, err.Error())
	}

	if !errors.Is(err, ErrInvalidInput) {
		t.Error("expected validation error to match ErrInvalidInput")
	}
}
