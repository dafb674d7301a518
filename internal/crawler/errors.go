package crawler

import (
	"errors"
	"fmt"
)

// Errors returned by the pipeline, grouped by how the Runner reacts to them.
var (
	// ErrFetchExhausted means every fetch attempt failed; the network is
	// presumed down and the run aborts.
	ErrFetchExhausted = errors.New("fetch attempts exhausted")
	// ErrNoTableFound means the page carries no observation table; the month
	// has no data and counts as processed.
	ErrNoTableFound = errors.New("no observation table found")
	// ErrMalformedDocument means the page could not be trusted; the month is
	// failed but the run continues.
	ErrMalformedDocument = errors.New("malformed document")
	// ErrRowShapeMismatch means a data row has fewer cells than the header
	// promised; the month is failed but the run continues.
	ErrRowShapeMismatch = errors.New("row shape mismatch")
	// ErrInvariantViolation means a cell no longer matches the expected
	// encoding; the run aborts.
	ErrInvariantViolation = errors.New("data invariant violated")
	// ErrDestinationExists means the run's output directory is already
	// present; nothing is created.
	ErrDestinationExists = errors.New("destination already exists")
	// ErrRunIncomplete means at least one month could not be processed.
	ErrRunIncomplete = errors.New("run incomplete")
)

// MonthError ties a pipeline failure to the month it happened in.
type MonthError struct {
	Month MonthKey
	Err   error
}

func (e *MonthError) Error() string {
	return fmt.Sprintf("month %s: %v", e.Month, e.Err)
}

func (e *MonthError) Unwrap() error {
	return e.Err
}

// isMonthRecoverable reports whether err only invalidates the current month.
func isMonthRecoverable(err error) bool {
	return errors.Is(err, ErrMalformedDocument) || errors.Is(err, ErrRowShapeMismatch)
}
