package types

import "fmt"

// ErrorCode represents a unified error code across streambridge.
type ErrorCode string

// Pipeline error codes
const (
	ErrInputTimeout            ErrorCode = "INPUT_TIMEOUT"
	ErrAudioBufferInsufficient ErrorCode = "AUDIO_BUFFER_INSUFFICIENT"
	ErrWorkflowValidation      ErrorCode = "WORKFLOW_VALIDATION"
)

// Backend error codes
const (
	ErrBackendProtocol ErrorCode = "BACKEND_PROTOCOL"
	ErrConnectionLost  ErrorCode = "CONNECTION_LOST"
	ErrQueueSaturation ErrorCode = "QUEUE_SATURATION"
	ErrBackendBusy     ErrorCode = "BACKEND_BUSY"
	ErrClientClosed    ErrorCode = "CLIENT_CLOSED"
	ErrInternalError   ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Backend   string    `json:"backend,omitempty"`
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

// WithBackend sets the backend address the error originated from.
func (e *Error) WithBackend(backend string) *Error {
	e.Backend = backend
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// AudioBufferError reports that the running sample buffer held fewer
// samples than the next frame needed. It carries the exact counts so the
// caller can decide how much silence to synthesize.
type AudioBufferError struct {
	Needed    int
	Available int
}

// Error implements the error interface.
func (e *AudioBufferError) Error() string {
	return fmt.Sprintf("[%s] audio buffer holds %d samples, need %d",
		ErrAudioBufferInsufficient, e.Available, e.Needed)
}

// NewAudioBufferError creates an AudioBufferError with the given counts.
func NewAudioBufferError(needed, available int) *AudioBufferError {
	return &AudioBufferError{Needed: needed, Available: available}
}
