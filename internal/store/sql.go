package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/fmuoria/shortlist-agent/internal/models"
)

// Supported database drivers
const (
	DriverPgx      = "pgx"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// migrations are applied in order by Migrate; each statement is idempotent
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		id                       TEXT PRIMARY KEY,
		host_id                  TEXT NOT NULL,
		title                    TEXT NOT NULL,
		description              TEXT NOT NULL DEFAULT '',
		requirements             TEXT NOT NULL DEFAULT '[]',
		target_applications      INTEGER NOT NULL,
		max_candidates_shortlist INTEGER NOT NULL,
		final_selection_count    INTEGER NOT NULL,
		current_applications     INTEGER NOT NULL DEFAULT 0,
		status                   TEXT NOT NULL,
		shortlisted_candidates   TEXT NOT NULL DEFAULT '[]',
		version                  BIGINT NOT NULL,
		created_at               BIGINT NOT NULL,
		updated_at               BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS applications (
		id                        TEXT PRIMARY KEY,
		job_id                    TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
		user_id                   TEXT NOT NULL,
		candidate_name            TEXT NOT NULL DEFAULT '',
		candidate_email           TEXT NOT NULL DEFAULT '',
		ats_score                 INTEGER NOT NULL,
		resume_feedback           TEXT NOT NULL DEFAULT '{}',
		voice_interview_score     INTEGER,
		voice_interview_completed BOOLEAN NOT NULL DEFAULT FALSE,
		interview_feedback        TEXT NOT NULL DEFAULT '{}',
		final_score               INTEGER NOT NULL,
		status                    TEXT NOT NULL,
		ranking                   INTEGER NOT NULL DEFAULT 0,
		shortlist_email_sent      BOOLEAN NOT NULL DEFAULT FALSE,
		rejection_email_sent      BOOLEAN NOT NULL DEFAULT FALSE,
		offer_email_sent          BOOLEAN NOT NULL DEFAULT FALSE,
		version                   BIGINT NOT NULL,
		created_at                BIGINT NOT NULL,
		updated_at                BIGINT NOT NULL,
		UNIQUE (job_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_applications_job_id ON applications (job_id)`,
}

const jobColumns = `id, host_id, title, description, requirements, target_applications,
	max_candidates_shortlist, final_selection_count, current_applications, status,
	shortlisted_candidates, version, created_at, updated_at`

const applicationColumns = `id, job_id, user_id, candidate_name, candidate_email, ats_score,
	resume_feedback, voice_interview_score, voice_interview_completed, interview_feedback,
	final_score, status, ranking, shortlist_email_sent, rejection_email_sent, offer_email_sent,
	version, created_at, updated_at`

// SQL is a Store backed by database/sql (Postgres or SQLite)
type SQL struct {
	db     *sql.DB
	driver string
}

// Open connects to the database and applies migrations
func Open(ctx context.Context, driver, dsn string) (*SQL, error) {
	switch driver {
	case DriverPgx, DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1) // SQLite: single writer
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQL{db: db, driver: driver}
	if driver == DriverSQLite {
		if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the schema if it does not exist
func (s *SQL) Migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", i+1, err)
		}
	}
	return nil
}

// Close closes the underlying connection pool
func (s *SQL) Close() error {
	return s.db.Close()
}

// CreateJob inserts a new job at version 1
func (s *SQL) CreateJob(ctx context.Context, job models.Job) (models.Job, error) {
	job.Version = 1
	requirements, shortlisted, err := encodeJobLists(job)
	if err != nil {
		return models.Job{}, err
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		job.ID, job.HostID, job.Title, job.Description, requirements, job.TargetApplications,
		job.MaxCandidatesShortlist, job.FinalSelectionCount, job.CurrentApplications, string(job.Status),
		shortlisted, job.Version, toUnix(job.CreatedAt), toUnix(job.UpdatedAt))
	if err != nil {
		return models.Job{}, fmt.Errorf("failed to create job: %w", err)
	}
	return job, nil
}

// GetJob loads a job by id
func (s *SQL) GetJob(ctx context.Context, id string) (models.Job, error) {
	return getJob(ctx, s.db, id)
}

// ListJobs returns every job ordered by creation time
func (s *SQL) ListJobs(ctx context.Context) ([]models.Job, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// UpdateJob writes job when the stored version still equals job.Version
func (s *SQL) UpdateJob(ctx context.Context, job models.Job) (models.Job, error) {
	return updateJob(ctx, s.db, job)
}

// DeleteJob removes a job that has no applications
func (s *SQL) DeleteJob(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := getJob(ctx, tx, id); err != nil {
			return err
		}

		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM applications WHERE job_id = $1`, id).Scan(&count); err != nil {
			return fmt.Errorf("failed to count applications: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("job %s: %w", id, ErrJobHasApplications)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete job: %w", err)
		}
		return nil
	})
}

// RecordApplication updates the job and inserts the application in one transaction
func (s *SQL) RecordApplication(ctx context.Context, job models.Job, app models.Application) (models.Job, models.Application, error) {
	var updated models.Job
	app.Version = 1

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM applications WHERE job_id = $1 AND user_id = $2`,
			app.JobID, app.UserID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check for duplicate application: %w", err)
		}
		if exists > 0 {
			return ErrDuplicateApplication
		}

		updated, err = updateJob(ctx, tx, job)
		if err != nil {
			return err
		}
		return insertApplication(ctx, tx, app)
	})
	if err != nil {
		return models.Job{}, models.Application{}, err
	}
	return updated, app, nil
}

// GetApplication loads an application by id
func (s *SQL) GetApplication(ctx context.Context, id string) (models.Application, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id)
	app, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Application{}, fmt.Errorf("application %s: %w", id, ErrNotFound)
	}
	return app, err
}

// FindApplication looks up the application a user submitted to a job
func (s *SQL) FindApplication(ctx context.Context, jobID, userID string) (models.Application, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications
		WHERE job_id = $1 AND user_id = $2`, jobID, userID)
	app, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Application{}, fmt.Errorf("application for job %s user %s: %w", jobID, userID, ErrNotFound)
	}
	return app, err
}

// ListApplicationsByJob returns every application of a job ordered by submission
func (s *SQL) ListApplicationsByJob(ctx context.Context, jobID string) ([]models.Application, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+applicationColumns+` FROM applications
		WHERE job_id = $1 ORDER BY created_at, id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	var apps []models.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	return apps, nil
}

// UpdateApplication writes app when the stored version still equals app.Version
func (s *SQL) UpdateApplication(ctx context.Context, app models.Application) (models.Application, error) {
	resumeFeedback, err := json.Marshal(app.ResumeFeedback)
	if err != nil {
		return models.Application{}, fmt.Errorf("failed to encode resume feedback: %w", err)
	}
	interviewFeedback, err := json.Marshal(app.InterviewFeedback)
	if err != nil {
		return models.Application{}, fmt.Errorf("failed to encode interview feedback: %w", err)
	}

	expected := app.Version
	app.Version++
	app.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `UPDATE applications SET
			candidate_name = $1, candidate_email = $2, ats_score = $3, resume_feedback = $4,
			voice_interview_score = $5, voice_interview_completed = $6, interview_feedback = $7,
			final_score = $8, status = $9, ranking = $10, shortlist_email_sent = $11,
			rejection_email_sent = $12, offer_email_sent = $13, version = $14, updated_at = $15
		WHERE id = $16 AND version = $17`,
		app.CandidateName, app.CandidateEmail, app.ATSScore, string(resumeFeedback),
		nullableScore(app.VoiceInterviewScore), app.VoiceInterviewCompleted, string(interviewFeedback),
		app.FinalScore, string(app.Status), app.Ranking, app.ShortlistEmailSent,
		app.RejectionEmailSent, app.OfferEmailSent, app.Version, toUnix(app.UpdatedAt),
		app.ID, expected)
	if err != nil {
		return models.Application{}, fmt.Errorf("failed to update application: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return models.Application{}, fmt.Errorf("failed to update application: %w", err)
	}
	if n == 0 {
		if _, err := s.GetApplication(ctx, app.ID); err != nil {
			return models.Application{}, err
		}
		return models.Application{}, fmt.Errorf("application %s at version %d: %w", app.ID, expected, ErrVersionConflict)
	}
	return app, nil
}

// querier is the subset of *sql.DB and *sql.Tx the helpers need
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQL) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func getJob(ctx context.Context, q querier, id string) (models.Job, error) {
	row := q.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Job{}, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return job, err
}

func updateJob(ctx context.Context, q querier, job models.Job) (models.Job, error) {
	requirements, shortlisted, err := encodeJobLists(job)
	if err != nil {
		return models.Job{}, err
	}

	expected := job.Version
	job.Version++
	job.UpdatedAt = time.Now().UTC()

	res, err := q.ExecContext(ctx, `UPDATE jobs SET
			host_id = $1, title = $2, description = $3, requirements = $4, target_applications = $5,
			max_candidates_shortlist = $6, final_selection_count = $7, current_applications = $8,
			status = $9, shortlisted_candidates = $10, version = $11, updated_at = $12
		WHERE id = $13 AND version = $14`,
		job.HostID, job.Title, job.Description, requirements, job.TargetApplications,
		job.MaxCandidatesShortlist, job.FinalSelectionCount, job.CurrentApplications,
		string(job.Status), shortlisted, job.Version, toUnix(job.UpdatedAt), job.ID, expected)
	if err != nil {
		return models.Job{}, fmt.Errorf("failed to update job: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return models.Job{}, fmt.Errorf("failed to update job: %w", err)
	}
	if n == 0 {
		if _, err := getJob(ctx, q, job.ID); err != nil {
			return models.Job{}, err
		}
		return models.Job{}, fmt.Errorf("job %s at version %d: %w", job.ID, expected, ErrVersionConflict)
	}
	return job, nil
}

func insertApplication(ctx context.Context, q querier, app models.Application) error {
	resumeFeedback, err := json.Marshal(app.ResumeFeedback)
	if err != nil {
		return fmt.Errorf("failed to encode resume feedback: %w", err)
	}
	interviewFeedback, err := json.Marshal(app.InterviewFeedback)
	if err != nil {
		return fmt.Errorf("failed to encode interview feedback: %w", err)
	}

	_, err = q.ExecContext(ctx, `INSERT INTO applications (`+applicationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		app.ID, app.JobID, app.UserID, app.CandidateName, app.CandidateEmail, app.ATSScore,
		string(resumeFeedback), nullableScore(app.VoiceInterviewScore), app.VoiceInterviewCompleted,
		string(interviewFeedback), app.FinalScore, string(app.Status), app.Ranking,
		app.ShortlistEmailSent, app.RejectionEmailSent, app.OfferEmailSent, app.Version,
		toUnix(app.CreatedAt), toUnix(app.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateApplication
		}
		return fmt.Errorf("failed to insert application: %w", err)
	}
	return nil
}

func scanJob(row rowScanner) (models.Job, error) {
	var (
		job                       models.Job
		status                    string
		requirements, shortlisted string
		createdAt, updatedAt      int64
	)
	err := row.Scan(&job.ID, &job.HostID, &job.Title, &job.Description, &requirements,
		&job.TargetApplications, &job.MaxCandidatesShortlist, &job.FinalSelectionCount,
		&job.CurrentApplications, &status, &shortlisted, &job.Version, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Job{}, err
		}
		return models.Job{}, fmt.Errorf("failed to scan job: %w", err)
	}

	job.Status = models.JobStatus(status)
	job.CreatedAt = fromUnix(createdAt)
	job.UpdatedAt = fromUnix(updatedAt)
	if err := json.Unmarshal([]byte(requirements), &job.Requirements); err != nil {
		return models.Job{}, fmt.Errorf("failed to decode job requirements: %w", err)
	}
	if err := json.Unmarshal([]byte(shortlisted), &job.ShortlistedCandidates); err != nil {
		return models.Job{}, fmt.Errorf("failed to decode shortlisted candidates: %w", err)
	}
	return job, nil
}

func scanApplication(row rowScanner) (models.Application, error) {
	var (
		app                               models.Application
		status                            string
		resumeFeedback, interviewFeedback string
		interviewScore                    sql.NullInt64
		createdAt, updatedAt              int64
	)
	err := row.Scan(&app.ID, &app.JobID, &app.UserID, &app.CandidateName, &app.CandidateEmail,
		&app.ATSScore, &resumeFeedback, &interviewScore, &app.VoiceInterviewCompleted,
		&interviewFeedback, &app.FinalScore, &status, &app.Ranking, &app.ShortlistEmailSent,
		&app.RejectionEmailSent, &app.OfferEmailSent, &app.Version, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Application{}, err
		}
		return models.Application{}, fmt.Errorf("failed to scan application: %w", err)
	}

	app.Status = models.ApplicationStatus(status)
	app.CreatedAt = fromUnix(createdAt)
	app.UpdatedAt = fromUnix(updatedAt)
	if interviewScore.Valid {
		score := int(interviewScore.Int64)
		app.VoiceInterviewScore = &score
	}
	if err := json.Unmarshal([]byte(resumeFeedback), &app.ResumeFeedback); err != nil {
		return models.Application{}, fmt.Errorf("failed to decode resume feedback: %w", err)
	}
	if err := json.Unmarshal([]byte(interviewFeedback), &app.InterviewFeedback); err != nil {
		return models.Application{}, fmt.Errorf("failed to decode interview feedback: %w", err)
	}
	return app, nil
}

func encodeJobLists(job models.Job) (string, string, error) {
	requirements, err := json.Marshal(nonNil(job.Requirements))
	if err != nil {
		return "", "", fmt.Errorf("failed to encode job requirements: %w", err)
	}
	shortlisted, err := json.Marshal(nonNil(job.ShortlistedCandidates))
	if err != nil {
		return "", "", fmt.Errorf("failed to encode shortlisted candidates: %w", err)
	}
	return string(requirements), string(shortlisted), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullableScore(score *int) sql.NullInt64 {
	if score == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*score), Valid: true}
}

// timestamps are stored as unix nanoseconds so both drivers round-trip them identically
func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
