package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError is the error type shared by every package of the module. Hosts
// and the notifier branch on Code; Retryable drives reconnects and reloads.
type AppError struct {
	Code      ErrorCode      `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
	Cause     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause == nil {
		return string(e.Code) + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
}

func (e *AppError) Unwrap() error { return e.Cause }

// Is matches another AppError with the same code and no message, so
// errors.Is(err, &AppError{Code: ErrCodeProtocol}) tests the code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Message == "" && t.Code == e.Code
}

// WithCause records the underlying error and returns e.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail sets one detail and returns e.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any, 1)
	}
	e.Details[key] = value
	return e
}

// New creates an error whose retryability follows its code.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message, Retryable: IsRetryableCode(code)}
}

func newf(code ErrorCode, format string, args ...any) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// CapabilityUnavailable reports a host without the named primitive, such as
// EventSource. It is never retried.
func CapabilityUnavailable(capability string) *AppError {
	return newf(ErrCodeCapabilityUnavailable, "%s is not available in this environment", capability).
		WithDetail("capability", capability)
}

// ServiceUnavailable reports a server that answered but cannot serve yet,
// as a dev server mid-restart does.
func ServiceUnavailable(service string) *AppError {
	return newf(ErrCodeServiceUnavailable, "%s is unavailable", service).WithDetail("service", service)
}

// ConnectionFailed reports a server that could not be reached.
func ConnectionFailed(service string) *AppError {
	return newf(ErrCodeConnectionFailed, "cannot connect to %s", service).WithDetail("service", service)
}

// Timeout reports an operation that ran out of time.
func Timeout(operation string) *AppError {
	return newf(ErrCodeTimeout, "%s timed out", operation).WithDetail("operation", operation)
}

// Protocol reports a response outside the event-stream contract.
func Protocol(reason string) *AppError {
	return New(ErrCodeProtocol, reason)
}

// InvalidInput reports a bad value. An empty field is left out of Details.
func InvalidInput(field, reason string) *AppError {
	e := newf(ErrCodeInvalidInput, "invalid input: %s", reason)
	if field != "" {
		e.WithDetail("field", field)
	}
	return e
}

// Validation reports a failed struct validation.
func Validation(message string) *AppError {
	return New(ErrCodeInvalidInput, message)
}

// MissingField reports a required field left empty.
func MissingField(field string) *AppError {
	return newf(ErrCodeMissingField, "missing required field: %s", field).WithDetail("field", field)
}

// Internal wraps an unexpected failure.
func Internal(cause error) *AppError {
	return New(ErrCodeInternal, "unexpected error").WithCause(cause)
}

// AsAppError finds the first AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err is an AppError carrying code.
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

// IsRetryable reports whether err is worth another attempt. Errors that are
// not AppErrors are treated as retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if appErr, ok := AsAppError(err); ok {
		return appErr.Retryable
	}
	return true
}
