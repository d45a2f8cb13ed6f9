package store

import "fmt"

// Store defines the interface for run report persistence operations.
// Implementations must be thread-safe and handle concurrent access gracefully.
//
// Error handling conventions:
//   - Return nil error on success
//   - Return ErrNotFound if the report doesn't exist (for Load/Delete)
//   - Return descriptive errors for I/O, serialization, or validation failures
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveReport atomically saves the report of a finished run, replacing
	// any earlier report with the same ID.
	SaveReport(runID string, report *RunReport) error

	// LoadReport retrieves the report for the given run.
	// Returns ErrNotFound if no report exists for this runID.
	LoadReport(runID string) (*RunReport, error)

	// ListReports returns metadata for all stored reports. Unreadable
	// reports are skipped.
	ListReports() ([]RunReportInfo, error)

	// DeleteReport removes the report and every artifact of the run,
	// including its trace.
	// Returns ErrNotFound if no report exists for this runID.
	DeleteReport(runID string) error
}

// ErrNotFound is returned when a requested report does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing report or trace.
type NotFoundError struct {
	RunID string
}

func (e *NotFoundError) Error() string {
	if e.RunID != "" {
		return "run not found: " + e.RunID
	}
	return "run not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}

// ErrInvalidRunID is returned for run IDs that do not name a single
// directory, such as "..", "" or anything containing a path separator.
var ErrInvalidRunID = &InvalidRunIDError{}

// InvalidRunIDError rejects a run ID before it reaches the filesystem.
type InvalidRunIDError struct {
	RunID string
}

func (e *InvalidRunIDError) Error() string {
	return fmt.Sprintf("invalid run ID %q", e.RunID)
}

func (e *InvalidRunIDError) Is(target error) bool {
	_, ok := target.(*InvalidRunIDError)
	return ok
}
