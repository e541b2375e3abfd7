package store

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a write failure independently of the dialect.
type ErrorCode string

const (
	CodeUniqueViolation     ErrorCode = "unique_violation"
	CodeNotNullViolation    ErrorCode = "not_null_violation"
	CodeForeignKeyViolation ErrorCode = "foreign_key_violation"
	CodeCheckViolation      ErrorCode = "check_violation"
	CodeInvalidValue        ErrorCode = "invalid_value"
	CodeConnection          ErrorCode = "connection"
	CodeUnsupported         ErrorCode = "unsupported"
	CodeUnknown             ErrorCode = "unknown"
)

// ErrUnsupportedConflictMode is returned by dialects that cannot honor a ConflictMode.
var ErrUnsupportedConflictMode = errors.New("conflict mode not supported by this store")

// WriteError is a failed schema or write operation.
type WriteError struct {
	Op      string
	Table   string
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *WriteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %s: %v", e.Op, e.Table, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s %s: %s: %s", e.Op, e.Table, e.Code, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *WriteError) Unwrap() error {
	return e.Err
}

// IsCode reports whether err is a WriteError with the given code.
func IsCode(err error, code ErrorCode) bool {
	var we *WriteError
	return errors.As(err, &we) && we.Code == code
}
