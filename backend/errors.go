package backend

import "fmt"

// BackendError represents an error from a remote store operation
// It carries the HTTP status (when there is one), the table and record
// involved, and the underlying error
type BackendError struct {
	Operation  string // e.g., "SelectAll", "Insert", "Subscribe"
	StatusCode int    // HTTP status code (0 if not an HTTP error)
	Message    string // Human-readable error message
	Table      string // Optional: affected table
	RecordID   string // Optional: affected record id
	Body       string // Optional: response body for debugging
	Err        error  // Optional: underlying error
}

// Error implements the error interface
func (e *BackendError) Error() string {
	target := e.Operation
	if e.Table != "" {
		target = fmt.Sprintf("%s %s", e.Operation, e.Table)
	}
	if e.RecordID != "" {
		target = fmt.Sprintf("%s/%s", target, e.RecordID)
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s failed with status %d: %s", target, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s failed: %s", target, e.Message)
}

// Unwrap returns the underlying error for error wrapping
func (e *BackendError) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the error is a 404 Not Found
func (e *BackendError) IsNotFound() bool {
	return e.StatusCode == 404
}

// IsUnauthorized returns true if the error is a 401 Unauthorized or 403 Forbidden
func (e *BackendError) IsUnauthorized() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

// IsConflict returns true if the error is a 409, typically a duplicate key
func (e *BackendError) IsConflict() bool {
	return e.StatusCode == 409
}

// IsServerError returns true if the error is a 5xx server error
func (e *BackendError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// NewBackendError creates a new BackendError
func NewBackendError(operation string, statusCode int, message string) *BackendError {
	return &BackendError{
		Operation:  operation,
		StatusCode: statusCode,
		Message:    message,
	}
}

// WithTable adds the table name to the error for context
func (e *BackendError) WithTable(table string) *BackendError {
	e.Table = table
	return e
}

// WithRecordID adds the record id to the error for context
func (e *BackendError) WithRecordID(id string) *BackendError {
	e.RecordID = id
	return e
}

// WithBody adds the response body to the error for debugging
func (e *BackendError) WithBody(body string) *BackendError {
	e.Body = body
	return e
}

// WithError wraps an underlying error
func (e *BackendError) WithError(err error) *BackendError {
	e.Err = err
	if e.Message == "" && err != nil {
		e.Message = err.Error()
	}
	return e
}
