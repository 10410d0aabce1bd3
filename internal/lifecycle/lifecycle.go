// Package lifecycle defines the application and job state machines.
//
// Application status graph:
//
//	applied ──► shortlisted ──► interview_scheduled ──► interview_completed ──► selected ──► offer_sent
//	   │             └──────────────────────────────────────►┘        │
//	   └──► rejected ◄──────────────────────────────────────────────────┘
//
// Re-applying the current status is a permitted no-op. The package has no I/O;
// callers persist the result and trigger notifications.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/fmuoria/shortlist-agent/internal/models"
)

// InvalidTransitionError reports an edge the state machine does not allow
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %q to %q", e.From, e.To)
}

// applicationEdges lists every allowed (from → to) pair
var applicationEdges = map[models.ApplicationStatus][]models.ApplicationStatus{
	models.StatusApplied:     {models.StatusShortlisted, models.StatusRejected},
	models.StatusShortlisted: {models.StatusInterviewScheduled, models.StatusInterviewCompleted},
	// a scheduled interview still has to be completed; shortlisted candidates
	// may also take the voice interview without a scheduling step
	models.StatusInterviewScheduled: {models.StatusInterviewCompleted},
	models.StatusInterviewCompleted: {models.StatusSelected, models.StatusRejected},
	models.StatusSelected:           {models.StatusOfferSent},
	// rejected and offer_sent are terminal
}

// jobEdges lists every allowed job status change; cancellation is handled separately
var jobEdges = map[models.JobStatus][]models.JobStatus{
	models.JobDraft:               {models.JobPublished},
	models.JobPublished:           {models.JobApplicationsOpen, models.JobApplicationsClosed},
	models.JobApplicationsOpen:    {models.JobApplicationsClosed},
	models.JobApplicationsClosed:  {models.JobInterviewsActive},
	models.JobInterviewsActive:    {models.JobInterviewsCompleted},
	models.JobInterviewsCompleted: {models.JobOffersSent, models.JobCompleted},
	models.JobOffersSent:          {models.JobCompleted},
}

// ApplicationStatuses returns every known application status in lifecycle order
func ApplicationStatuses() []models.ApplicationStatus {
	return []models.ApplicationStatus{
		models.StatusApplied,
		models.StatusShortlisted,
		models.StatusInterviewScheduled,
		models.StatusInterviewCompleted,
		models.StatusSelected,
		models.StatusRejected,
		models.StatusOfferSent,
	}
}

// ParseApplicationStatus converts a raw string to a status, rejecting unknown values
func ParseApplicationStatus(s string) (models.ApplicationStatus, error) {
	for _, st := range ApplicationStatuses() {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown application status %q", s)
}

// CanTransition reports whether from → to is a listed edge
func CanTransition(from, to models.ApplicationStatus) bool {
	for _, s := range applicationEdges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions leave status
func IsTerminal(status models.ApplicationStatus) bool {
	return len(applicationEdges[status]) == 0
}

// Transition moves app to target. The returned application is a copy; the
// input is never modified. Transitioning to the current status returns the
// application unchanged.
func Transition(app models.Application, target models.ApplicationStatus) (models.Application, error) {
	if app.Status == target {
		return app, nil
	}
	if !CanTransition(app.Status, target) {
		return app, &InvalidTransitionError{From: string(app.Status), To: string(target)}
	}

	next := app
	next.Status = target
	next.UpdatedAt = time.Now().UTC()
	return next, nil
}

// CanTransitionJob reports whether a job may move from → to
func CanTransitionJob(from, to models.JobStatus) bool {
	if to == models.JobCancelled {
		return Cancellable(from)
	}
	for _, s := range jobEdges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Cancellable reports whether a job in status can still be cancelled, which
// is every status before completed
func Cancellable(status models.JobStatus) bool {
	switch status {
	case models.JobDraft, models.JobPublished, models.JobApplicationsOpen,
		models.JobApplicationsClosed, models.JobInterviewsActive, models.JobInterviewsCompleted,
		models.JobOffersSent:
		return true
	default:
		return false
	}
}

// TransitionJob moves job to target with the same no-op rule as applications
func TransitionJob(job models.Job, target models.JobStatus) (models.Job, error) {
	if job.Status == target {
		return job, nil
	}
	if !CanTransitionJob(job.Status, target) {
		return job, &InvalidTransitionError{From: string(job.Status), To: string(target)}
	}

	next := job
	next.Status = target
	next.UpdatedAt = time.Now().UTC()
	return next, nil
}
