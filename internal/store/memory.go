package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fmuoria/shortlist-agent/internal/models"
)

// Memory is an in-process Store guarded by a single mutex
type Memory struct {
	mu   sync.RWMutex
	jobs map[string]models.Job
	apps map[string]models.Application
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		jobs: make(map[string]models.Job),
		apps: make(map[string]models.Application),
	}
}

// CreateJob stores a new job at version 1
func (m *Memory) CreateJob(_ context.Context, job models.Job) (models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[job.ID]; exists {
		return models.Job{}, fmt.Errorf("job %s already exists", job.ID)
	}
	job.Version = 1
	m.jobs[job.ID] = cloneJob(job)
	return cloneJob(job), nil
}

// GetJob returns a copy of the job with the given id
func (m *Memory) GetJob(_ context.Context, id string) (models.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return models.Job{}, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return cloneJob(job), nil
}

// ListJobs returns every job ordered by creation time
func (m *Memory) ListJobs(_ context.Context) ([]models.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]models.Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, cloneJob(job))
	}
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
		}
		return jobs[i].ID < jobs[j].ID
	})
	return jobs, nil
}

// UpdateJob replaces the stored job when versions match
func (m *Memory) UpdateJob(_ context.Context, job models.Job) (models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.updateJobLocked(job)
}

func (m *Memory) updateJobLocked(job models.Job) (models.Job, error) {
	current, ok := m.jobs[job.ID]
	if !ok {
		return models.Job{}, fmt.Errorf("job %s: %w", job.ID, ErrNotFound)
	}
	if current.Version != job.Version {
		return models.Job{}, fmt.Errorf("job %s at version %d: %w", job.ID, job.Version, ErrVersionConflict)
	}

	job.Version++
	job.UpdatedAt = time.Now().UTC()
	m.jobs[job.ID] = cloneJob(job)
	return cloneJob(job), nil
}

// DeleteJob removes a job that has no applications
func (m *Memory) DeleteJob(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[id]; !ok {
		return fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	for _, app := range m.apps {
		if app.JobID == id {
			return fmt.Errorf("job %s: %w", id, ErrJobHasApplications)
		}
	}
	delete(m.jobs, id)
	return nil
}

// RecordApplication updates the job and inserts the application under one lock
func (m *Memory) RecordApplication(_ context.Context, job models.Job, app models.Application) (models.Job, models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.apps[app.ID]; exists {
		return models.Job{}, models.Application{}, fmt.Errorf("application %s already exists", app.ID)
	}
	for _, existing := range m.apps {
		if existing.JobID == app.JobID && existing.UserID == app.UserID {
			return models.Job{}, models.Application{}, ErrDuplicateApplication
		}
	}

	updated, err := m.updateJobLocked(job)
	if err != nil {
		return models.Job{}, models.Application{}, err
	}

	app.Version = 1
	m.apps[app.ID] = cloneApplication(app)
	return updated, cloneApplication(app), nil
}

// GetApplication returns a copy of the application with the given id
func (m *Memory) GetApplication(_ context.Context, id string) (models.Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	app, ok := m.apps[id]
	if !ok {
		return models.Application{}, fmt.Errorf("application %s: %w", id, ErrNotFound)
	}
	return cloneApplication(app), nil
}

// FindApplication looks up the application a user submitted to a job
func (m *Memory) FindApplication(_ context.Context, jobID, userID string) (models.Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, app := range m.apps {
		if app.JobID == jobID && app.UserID == userID {
			return cloneApplication(app), nil
		}
	}
	return models.Application{}, fmt.Errorf("application for job %s user %s: %w", jobID, userID, ErrNotFound)
}

// ListApplicationsByJob returns every application of a job ordered by submission
func (m *Memory) ListApplicationsByJob(_ context.Context, jobID string) ([]models.Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var apps []models.Application
	for _, app := range m.apps {
		if app.JobID == jobID {
			apps = append(apps, cloneApplication(app))
		}
	}
	sort.Slice(apps, func(i, j int) bool {
		if !apps[i].CreatedAt.Equal(apps[j].CreatedAt) {
			return apps[i].CreatedAt.Before(apps[j].CreatedAt)
		}
		return apps[i].ID < apps[j].ID
	})
	return apps, nil
}

// UpdateApplication replaces the stored application when versions match
func (m *Memory) UpdateApplication(_ context.Context, app models.Application) (models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.apps[app.ID]
	if !ok {
		return models.Application{}, fmt.Errorf("application %s: %w", app.ID, ErrNotFound)
	}
	if current.Version != app.Version {
		return models.Application{}, fmt.Errorf("application %s at version %d: %w", app.ID, app.Version, ErrVersionConflict)
	}

	app.Version++
	app.UpdatedAt = time.Now().UTC()
	m.apps[app.ID] = cloneApplication(app)
	return cloneApplication(app), nil
}

// Close is a no-op for the memory store
func (m *Memory) Close() error {
	return nil
}

func cloneJob(job models.Job) models.Job {
	job.Requirements = append([]string(nil), job.Requirements...)
	job.ShortlistedCandidates = append([]string(nil), job.ShortlistedCandidates...)
	return job
}

func cloneApplication(app models.Application) models.Application {
	if app.VoiceInterviewScore != nil {
		score := *app.VoiceInterviewScore
		app.VoiceInterviewScore = &score
	}
	app.ResumeFeedback.Strengths = append([]string(nil), app.ResumeFeedback.Strengths...)
	app.ResumeFeedback.Weaknesses = append([]string(nil), app.ResumeFeedback.Weaknesses...)
	return app
}
