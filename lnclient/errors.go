package lnclient

import "fmt"

// ValidationError means caller-supplied parameters violate a precondition.
// It is always raised before any network call.
type ValidationError struct {
	Message string
}

func NewValidationError(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func (err *ValidationError) Error() string {
	return err.Message
}

// BackendError wraps an application-level error returned by the backend's
// wire call, carrying the backend's own error message.
type BackendError struct {
	Message string
}

func NewBackendError(format string, args ...interface{}) error {
	return &BackendError{Message: fmt.Sprintf(format, args...)}
}

func (err *BackendError) Error() string {
	return err.Message
}

// NotFoundError means a lookup found no matching invoice after exhausting
// backend-specific fallback paths.
type NotFoundError struct {
	PaymentHash string
}

func NewNotFoundError(paymentHash string) error {
	return &NotFoundError{PaymentHash: paymentHash}
}

func (err *NotFoundError) Error() string {
	return "the invoice requested was not found"
}

// AuthError means a login or credential exchange with the backend failed.
type AuthError struct {
	Message string
}

func NewAuthError(format string, args ...interface{}) error {
	return &AuthError{Message: fmt.Sprintf(format, args...)}
}

func (err *AuthError) Error() string {
	return err.Message
}
