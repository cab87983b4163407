package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("rating", "rating is required"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "InvalidCredentials wraps ErrInvalidCredentials",
			err:       InvalidCredentials(errors.New("EMAIL_NOT_FOUND")),
			target:    ErrInvalidCredentials,
			wantMatch: true,
		},
		{
			name:      "404 matches ErrNotFound",
			err:       FromStatus(http.StatusNotFound, ""),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "404 also matches ErrNetwork",
			err:       FromStatus(http.StatusNotFound, ""),
			target:    ErrNetwork,
			wantMatch: true,
		},
		{
			name:      "500 matches ErrNetwork",
			err:       FromStatus(http.StatusInternalServerError, ""),
			target:    ErrNetwork,
			wantMatch: true,
		},
		{
			name:      "401 matches ErrUnauthorized",
			err:       FromStatus(http.StatusUnauthorized, "token expired"),
			target:    ErrUnauthorized,
			wantMatch: true,
		},
		{
			name:      "wrapped with fmt.Errorf still matches",
			err:       fmt.Errorf("api: listing services: %w", FromStatus(http.StatusForbidden, "")),
			target:    ErrForbidden,
			wantMatch: true,
		},
		{
			name:      "Credential does NOT match ErrInvalidCredentials",
			err:       Credential("email already in use", nil),
			target:    ErrInvalidCredentials,
			wantMatch: false,
		},
		{
			name:      "ValidationFailed does NOT match ErrNetwork",
			err:       ValidationFailed("price", "price must not be negative"),
			target:    ErrNetwork,
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{
			name:        "InvalidCredentials is generic",
			err:         InvalidCredentials(errors.New("INVALID_PASSWORD")),
			wantMessage: "invalid email or password",
		},
		{
			name:        "FromStatus falls back to the status",
			err:         FromStatus(http.StatusBadGateway, ""),
			wantMessage: "request failed with status 502",
		},
		{
			name:        "FromStatus keeps the server message",
			err:         FromStatus(http.StatusConflict, "already reviewed"),
			wantMessage: "already reviewed",
		},
		{
			name:        "NotConfirmed names the action",
			err:         NotConfirmed("delete service"),
			wantMessage: "delete service cancelled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestCauseIsReachable(t *testing.T) {
	cause := errors.New("connection refused")
	err := Network("posting session", cause)

	if !errors.Is(err, cause) {
		t.Errorf("errors.Is(err, cause) = false, want true")
	}
	if !errors.Is(err, ErrNetwork) {
		t.Errorf("errors.Is(err, ErrNetwork) = false, want true")
	}
}

func TestStatusOf(t *testing.T) {
	if got := StatusOf(fmt.Errorf("wrapped: %w", FromStatus(http.StatusNotFound, ""))); got != http.StatusNotFound {
		t.Errorf("StatusOf() = %d, want %d", got, http.StatusNotFound)
	}
	if got := StatusOf(errors.New("plain")); got != 0 {
		t.Errorf("StatusOf(plain) = %d, want 0", got)
	}
}

func TestValidationFailedField(t *testing.T) {
	err := ValidationFailed("reviewText", "review text is required")

	if err.Field != "reviewText" {
		t.Errorf("Field = %q, want %q", err.Field, "reviewText")
	}
}
