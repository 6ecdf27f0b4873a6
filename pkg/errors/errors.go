package errors

import (
	"errors"
	"fmt"
)

type ErrorType string

const (
	ValidationError ErrorType = "validation"
	ConfigError     ErrorType = "config"
	LinkError       ErrorType = "link"
	NetworkError    ErrorType = "network"
	ProcessingError ErrorType = "processing"
)

// ErrAlreadyApplied marks a subrate request whose parameters match the
// set already running on the link. It is a success, not a failure.
var ErrAlreadyApplied = errors.New("subrate parameters already applied")

// ErrLinkClosed marks an operation against a link or link layer that has
// shut down.
var ErrLinkClosed = errors.New("link closed")

// ErrSubrateRejected marks a subrate request the peer answered with a
// non-success status.
var ErrSubrateRejected = errors.New("subrate request rejected by peer")

// Is reports whether any error in err's chain matches target. Wrapper
// around the standard library so callers need a single errors import.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func NewValidationError(message string, cause error) *AppError {
	return &AppError{Type: ValidationError, Message: message, Cause: cause}
}

func NewConfigError(message string, cause error) *AppError {
	return &AppError{Type: ConfigError, Message: message, Cause: cause}
}

func NewLinkError(message string, cause error) *AppError {
	return &AppError{Type: LinkError, Message: message, Cause: cause}
}

func NewNetworkError(message string, cause error) *AppError {
	return &AppError{Type: NetworkError, Message: message, Cause: cause}
}

func NewProcessingError(message string, cause error) *AppError {
	return &AppError{Type: ProcessingError, Message: message, Cause: cause}
}
