package ir

import (
	"errors"
	"fmt"
)

// UsageError represents a programming error at an API boundary: the call was
// invalid for the current document state. Usage errors are never recovered
// locally; callers fix the call site.
type UsageError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Path is the addressed path, when there is one.
	Path Path
}

// ErrorCode categorizes usage errors.
type ErrorCode string

const (
	// ErrCodeDuplicateNode indicates a create for an id that already exists.
	ErrCodeDuplicateNode ErrorCode = "DUPLICATE_NODE"

	// ErrCodeMissingNode indicates the addressed node does not exist.
	ErrCodeMissingNode ErrorCode = "MISSING_NODE"

	// ErrCodeMissingProperty indicates the addressed property does not exist.
	ErrCodeMissingProperty ErrorCode = "MISSING_PROPERTY"

	// ErrCodeContentMismatch indicates a delete whose payload disagrees with stored content.
	ErrCodeContentMismatch ErrorCode = "CONTENT_MISMATCH"

	// ErrCodeOutOfRange indicates a text or array position outside the value.
	ErrCodeOutOfRange ErrorCode = "OUT_OF_RANGE"

	// ErrCodeTypeMismatch indicates an operation applied to a value of the wrong type.
	ErrCodeTypeMismatch ErrorCode = "TYPE_MISMATCH"

	// ErrCodeSchemaViolation indicates node data that does not satisfy its node type.
	ErrCodeSchemaViolation ErrorCode = "SCHEMA_VIOLATION"

	// ErrCodeNestedTransaction indicates a transaction opened while another is live.
	ErrCodeNestedTransaction ErrorCode = "NESTED_TRANSACTION"

	// ErrCodeUnsupported indicates an unknown operation, opcode, or selection type.
	ErrCodeUnsupported ErrorCode = "UNSUPPORTED"

	// ErrCodeInvalidState indicates a lifecycle transition that is not allowed.
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"

	// ErrCodeUnknownChange indicates a change id the session does not know.
	ErrCodeUnknownChange ErrorCode = "UNKNOWN_CHANGE"
)

// Error implements the error interface.
func (e *UsageError) Error() string {
	if len(e.Path) > 0 {
		return fmt.Sprintf("%s: %s (path=%s)", e.Code, e.Message, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Errorf creates a UsageError with a formatted message.
func Errorf(code ErrorCode, path Path, format string, args ...any) *UsageError {
	return &UsageError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Path:    path.Clone(),
	}
}

// IsUsageError returns true if err wraps a UsageError.
func IsUsageError(err error) bool {
	var ue *UsageError
	return errors.As(err, &ue)
}

// HasCode returns true if err wraps a UsageError with the given code.
func HasCode(err error, code ErrorCode) bool {
	var ue *UsageError
	if errors.As(err, &ue) {
		return ue.Code == code
	}
	return false
}
