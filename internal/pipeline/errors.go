package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrAdmissionRejected means the session exceeded its ingest rate.
	ErrAdmissionRejected = errors.New("rate limited")
	// ErrSuppressed means the update repeated the session's current text.
	ErrSuppressed = errors.New("duplicate partial suppressed")
)

// ValidationError is a malformed ingest message.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return "invalid ingest message: " + e.Reason + ": " + e.Err.Error()
	}
	return "invalid ingest message: " + e.Reason
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ProcessingError is a translate or compile failure for one update.
type ProcessingError struct {
	Stage string
	Err   error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }
