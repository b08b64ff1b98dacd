// Package errors provides error code definitions shared across the sync core.
package errors

import "fmt"

// ErrorCode represents a unique error code surfaced to the UI layer.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrDuplicate  ErrorCode = "DUPLICATE"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Local store errors
	ErrStore      ErrorCode = "STORE_ERROR"
	ErrMigration  ErrorCode = "MIGRATION_FAILED"
	ErrConstraint ErrorCode = "CONSTRAINT_VIOLATION"

	// Record errors
	ErrRecordNotFound ErrorCode = "RECORD_NOT_FOUND"
	ErrRecordInvalid  ErrorCode = "RECORD_INVALID"

	// Remote backend errors
	ErrRemote        ErrorCode = "REMOTE_ERROR"
	ErrRemoteAuth    ErrorCode = "REMOTE_AUTH_FAILED"
	ErrRemoteTimeout ErrorCode = "REMOTE_TIMEOUT"

	// Sync errors
	ErrSyncOffline        ErrorCode = "SYNC_OFFLINE"
	ErrSyncFailed         ErrorCode = "SYNC_FAILED"
	ErrSyncInProgress     ErrorCode = "SYNC_IN_PROGRESS"
	ErrSyncRetryExhausted ErrorCode = "SYNC_RETRY_EXHAUSTED"

	// Conflict errors
	ErrConflictNotFound   ErrorCode = "CONFLICT_NOT_FOUND"
	ErrConflictResolved   ErrorCode = "CONFLICT_ALREADY_RESOLVED"
	ErrConflictUnresolved ErrorCode = "CONFLICT_UNRESOLVED"

	// Backup errors
	ErrExportFailed  ErrorCode = "EXPORT_FAILED"
	ErrImportFailed  ErrorCode = "IMPORT_FAILED"
	ErrImportInvalid ErrorCode = "IMPORT_INVALID"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is checks if an error is of a specific code.
func Is(err error, code ErrorCode) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == code
	}
	return false
}
