package errors

// ErrorCode is a machine-readable error class.
type ErrorCode string

// Failures reaching the dev server. These are retried.
const (
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeConnectionFailed   ErrorCode = "CONNECTION_FAILED"
	ErrCodeTimeout            ErrorCode = "TIMEOUT"
)

// Failures of the host or of the stream contract. These are final.
const (
	// ErrCodeCapabilityUnavailable means the host lacks server-sent events.
	ErrCodeCapabilityUnavailable ErrorCode = "CAPABILITY_UNAVAILABLE"
	// ErrCodeProtocol means a bad status or content type on the stream.
	ErrCodeProtocol ErrorCode = "PROTOCOL_ERROR"
)

// Configuration and input failures.
const (
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"
)

const ErrCodeInternal ErrorCode = "INTERNAL_ERROR"

// IsRetryableCode reports whether errors with code are retried by default.
func IsRetryableCode(code ErrorCode) bool {
	switch code {
	case ErrCodeServiceUnavailable, ErrCodeConnectionFailed, ErrCodeTimeout:
		return true
	default:
		return false
	}
}
