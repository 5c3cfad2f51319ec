package service

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyDocumentID indicates a document id argument was blank.
	ErrEmptyDocumentID = errors.New("document id cannot be empty")

	// ErrEmptyPrefix indicates a rename prefix argument was empty.
	ErrEmptyPrefix = errors.New("prefix cannot be empty")
)

// OperationError wraps errors from a service operation with context.
type OperationError struct {
	// Operation is the operation that failed (e.g., "rename_pages", "list_workspaces")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for OperationError.
func (e *OperationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("%s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *OperationError) Unwrap() error {
	return e.Err
}

// NewOperationError creates a new OperationError.
// It returns service sentinel errors directly without wrapping.
func NewOperationError(operation, message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrEmptyDocumentID) || errors.Is(err, ErrEmptyPrefix) {
		return err
	}
	return &OperationError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
