// Package pipeline wires scoring, capacity, selection and notification into
// the application lifecycle: intake, shortlisting, interviews, final ranking
// and offers.
package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when the job id does not exist
	ErrJobNotFound = errors.New("job not found")
	// ErrNotClosed is returned when shortlisting is asked for a job that is still taking applications
	ErrNotClosed = errors.New("job applications are not closed")
	// ErrApplicationNotFound is returned when the application id does not exist
	ErrApplicationNotFound = errors.New("application not found")
	// ErrWrongJobState is returned when a host action does not fit the job's current status
	ErrWrongJobState = errors.New("action not allowed in the job's current status")
	// ErrSelectionFull is returned when selecting a candidate would exceed the job's FinalSelectionCount
	ErrSelectionFull = errors.New("final selection is full")
	// ErrInvalidInput is returned for malformed requests
	ErrInvalidInput = errors.New("invalid input")
)

// OrchestratorError is a fatal failure of one shortlisting run. The job is
// left as it was, so the run can be retried.
type OrchestratorError struct {
	JobID string
	Err   error
}

func (e *OrchestratorError) Error() string {
	return fmt.Sprintf("shortlisting job %s: %v", e.JobID, e.Err)
}

func (e *OrchestratorError) Unwrap() error {
	return e.Err
}
