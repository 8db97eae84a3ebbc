package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorError(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "without internal error",
			err:  New(http.StatusNotFound, "not_found", "Resource not found"),
			want: "not_found: Resource not found",
		},
		{
			name: "with internal error",
			err:  New(http.StatusInternalServerError, "internal_error", "boom").WithInternal(errors.New("db down")),
			want: "internal_error: boom (db down)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("inner")
	err := ErrDatabase.WithInternal(inner)

	if !errors.Is(err, inner) {
		t.Error("errors.Is should find the internal error")
	}
	if ErrNotFound.Unwrap() != nil {
		t.Error("Unwrap() should return nil when no internal error is set")
	}
}

func TestWithMessageDoesNotMutateOriginal(t *testing.T) {
	custom := ErrNotFound.WithMessage("Submission 'abc' not found")

	if custom.Message != "Submission 'abc' not found" {
		t.Errorf("WithMessage() message = %q", custom.Message)
	}
	if ErrNotFound.Message != "Resource not found" {
		t.Errorf("original message mutated: %q", ErrNotFound.Message)
	}
	if custom.HTTPStatus != http.StatusNotFound || custom.Code != "not_found" {
		t.Error("WithMessage() should preserve status and code")
	}
}

func TestWithDetails(t *testing.T) {
	err := ErrValidation.WithDetails(map[string]any{"field": "to"})

	if err.Details["field"] != "to" {
		t.Errorf("WithDetails() details = %v", err.Details)
	}
	if ErrValidation.Details != nil {
		t.Error("original details mutated")
	}
}

func TestNewNotFound(t *testing.T) {
	err := NewNotFound("submission", "s-123")

	want := fmt.Sprintf("%s '%s' not found", "submission", "s-123")
	if err.Message != want {
		t.Errorf("NewNotFound() message = %q, want %q", err.Message, want)
	}
	if err.HTTPStatus != http.StatusNotFound {
		t.Errorf("NewNotFound() status = %d", err.HTTPStatus)
	}
}

func TestCommonErrorStatuses(t *testing.T) {
	tests := []struct {
		name   string
		err    *Error
		status int
		code   string
	}{
		{"ErrNotFound", ErrNotFound, http.StatusNotFound, "not_found"},
		{"ErrSubmissionNotFound", ErrSubmissionNotFound, http.StatusNotFound, "submission_not_found"},
		{"ErrNotificationNotFound", ErrNotificationNotFound, http.StatusNotFound, "notification_not_found"},
		{"ErrConflict", ErrConflict, http.StatusConflict, "conflict"},
		{"ErrBadRequest", ErrBadRequest, http.StatusBadRequest, "bad_request"},
		{"ErrValidation", ErrValidation, http.StatusUnprocessableEntity, "validation_error"},
		{"ErrInternal", ErrInternal, http.StatusInternalServerError, "internal_error"},
		{"ErrDatabase", ErrDatabase, http.StatusInternalServerError, "database_error"},
		{"ErrUnavailable", ErrUnavailable, http.StatusServiceUnavailable, "service_unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.HTTPStatus != tt.status {
				t.Errorf("status = %d, want %d", tt.err.HTTPStatus, tt.status)
			}
			if tt.err.Code != tt.code {
				t.Errorf("code = %q, want %q", tt.err.Code, tt.code)
			}
		})
	}
}
