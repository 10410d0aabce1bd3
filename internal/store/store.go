// Package store persists jobs and applications.
//
// Every update is conditional on the entity's Version: the caller passes the
// version it read, the store writes Version+1 and fails with ErrVersionConflict
// when somebody else got there first.
package store

import (
	"context"
	"errors"

	"github.com/fmuoria/shortlist-agent/internal/models"
)

var (
	// ErrNotFound is returned when a job or application does not exist
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict is returned when a conditional update lost a race
	ErrVersionConflict = errors.New("version conflict")
	// ErrDuplicateApplication is returned when a user applies twice to the same job
	ErrDuplicateApplication = errors.New("application already exists for this job and user")
	// ErrJobHasApplications is returned when deleting a job that still has applications
	ErrJobHasApplications = errors.New("job has applications")
)

// Store is the persistence contract used by the pipeline
type Store interface {
	CreateJob(ctx context.Context, job models.Job) (models.Job, error)
	GetJob(ctx context.Context, id string) (models.Job, error)
	ListJobs(ctx context.Context) ([]models.Job, error)
	// UpdateJob writes job if the stored version still equals job.Version
	UpdateJob(ctx context.Context, job models.Job) (models.Job, error)
	// DeleteJob hard-deletes a job with zero applications
	DeleteJob(ctx context.Context, id string) error

	// RecordApplication updates job (version-checked) and inserts app in one commit
	RecordApplication(ctx context.Context, job models.Job, app models.Application) (models.Job, models.Application, error)
	GetApplication(ctx context.Context, id string) (models.Application, error)
	FindApplication(ctx context.Context, jobID, userID string) (models.Application, error)
	ListApplicationsByJob(ctx context.Context, jobID string) ([]models.Application, error)
	// UpdateApplication writes app if the stored version still equals app.Version
	UpdateApplication(ctx context.Context, app models.Application) (models.Application, error)

	Close() error
}
