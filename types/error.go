package types

import "fmt"

// ErrorCode represents a unified error code across the coordination layer.
type ErrorCode string

// Transport error codes
const (
	ErrTransportUnavailable ErrorCode = "TRANSPORT_UNAVAILABLE"
	ErrChannelName          ErrorCode = "CHANNEL_NAME"
	ErrSignatureMismatch    ErrorCode = "SIGNATURE_MISMATCH"
	ErrTransportClosed      ErrorCode = "TRANSPORT_CLOSED"
)

// Aggregation error codes
const (
	ErrInvalidQuery      ErrorCode = "INVALID_QUERY"
	ErrSourceTimeout     ErrorCode = "SOURCE_TIMEOUT"
	ErrSourceError       ErrorCode = "SOURCE_ERROR"
	ErrInvalidResultType ErrorCode = "INVALID_RESULT_TYPE"
	ErrSourceRegistered  ErrorCode = "SOURCE_REGISTERED"
	ErrCircuitOpen       ErrorCode = "CIRCUIT_OPEN"
)

// Error represents a structured error with code, message, and metadata.
// Only TRANSPORT_UNAVAILABLE and CHANNEL_NAME propagate to callers of the
// aggregation path; every source-level fault is absorbed into metrics.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Source    string    `json:"source,omitempty"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithSource sets the originating source name.
func (e *Error) WithSource(source string) *Error {
	e.Source = source
	return e
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// ErrorKind maps an arbitrary error to the metrics error-kind label.
// Structured errors report their code; everything else is "exception".
func ErrorKind(err error) string {
	if code := GetErrorCode(err); code != "" {
		return string(code)
	}
	return "exception"
}
