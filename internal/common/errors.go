package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Conversion outcome sentinels. The orchestrator matches on these with
// errors.Is to pick the user-facing message; nothing below the
// orchestrator formats text for the requester.
var (
	// ErrUnsupportedInput: the upload is not a usable PDF. Rejected
	// before any extraction side effect.
	ErrUnsupportedInput = errors.New("unsupported input")

	// ErrNoExtractableText: both the embedded text layer and recognition
	// yielded blank text. Final, not retryable.
	ErrNoExtractableText = errors.New("no extractable text")

	// ErrRecognitionUnavailable: the recognition path itself could not
	// run (rasterization failed entirely, recognizer missing).
	ErrRecognitionUnavailable = errors.New("recognition unavailable")

	ErrInvalidInput = errors.New("invalid input")
	ErrDatabase     = errors.New("database error")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
