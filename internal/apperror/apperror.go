package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrCredential         = errors.New("credential error")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSignOut            = errors.New("sign-out error")
	ErrNetwork            = errors.New("network error")
	ErrValidation         = errors.New("validation error")

	// Refinements of ErrNetwork by HTTP status. An AppError carrying one of
	// these also matches ErrNetwork.
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")

	ErrNotConfirmed    = errors.New("not confirmed")
	ErrUnauthenticated = errors.New("unauthenticated")
)

type AppError struct {
	Err     error  // sentinel kind
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Status  int    // Optional: HTTP status that produced the error
	Cause   error  // Optional: underlying error (transport failure, provider response)
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() []error {
	errs := []error{e.Err}
	if e.Status != 0 && e.Err != ErrNetwork {
		errs = append(errs, ErrNetwork)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

func Credential(message string, cause error) *AppError {
	return &AppError{
		Err:     ErrCredential,
		Message: message,
		Cause:   cause,
	}
}

// InvalidCredentials never says whether the account exists.
func InvalidCredentials(cause error) *AppError {
	return &AppError{
		Err:     ErrInvalidCredentials,
		Message: "invalid email or password",
		Cause:   cause,
	}
}

func SignOut(cause error) *AppError {
	return &AppError{
		Err:     ErrSignOut,
		Message: fmt.Sprintf("sign-out failed: %v", cause),
		Cause:   cause,
	}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Network wraps a transport failure (no response at all).
func Network(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrNetwork,
		Message: fmt.Sprintf("%s: %v", op, cause),
		Cause:   cause,
	}
}

// FromStatus maps a non-2xx response to the matching kind.
func FromStatus(status int, message string) *AppError {
	kind := ErrNetwork
	switch status {
	case http.StatusNotFound:
		kind = ErrNotFound
	case http.StatusForbidden:
		kind = ErrForbidden
	case http.StatusConflict:
		kind = ErrConflict
	case http.StatusUnauthorized:
		kind = ErrUnauthorized
	}
	if message == "" {
		message = fmt.Sprintf("request failed with status %d", status)
	}
	return &AppError{
		Err:     kind,
		Message: message,
		Status:  status,
	}
}

func NotConfirmed(action string) *AppError {
	return &AppError{
		Err:     ErrNotConfirmed,
		Message: fmt.Sprintf("%s cancelled", action),
	}
}

func Unauthenticated() *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: "please login to continue",
	}
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return 0
}
