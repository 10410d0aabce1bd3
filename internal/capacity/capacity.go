// Package capacity enforces the numeric limits of a job and detects the
// moment its application count first reaches the target.
package capacity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/fmuoria/shortlist-agent/internal/models"
	"github.com/fmuoria/shortlist-agent/internal/store"
)

// MaxShortlistLimit is the largest shortlist a job may ask for
const MaxShortlistLimit = 100

// ErrApplicationsClosed is returned when a job no longer accepts applications
var ErrApplicationsClosed = errors.New("job is not accepting applications")

// ConfigError reports a capacity configuration the host must fix
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ValidateConfig checks finalSelectionCount <= maxCandidatesShortlist <= targetApplications
func ValidateConfig(targetApplications, maxCandidatesShortlist, finalSelectionCount int) error {
	if targetApplications < 1 {
		return &ConfigError{Field: "target_applications", Reason: "must be at least 1"}
	}
	if maxCandidatesShortlist < 1 || maxCandidatesShortlist > MaxShortlistLimit {
		return &ConfigError{
			Field:  "max_candidates_shortlist",
			Reason: fmt.Sprintf("must be between 1 and %d", MaxShortlistLimit),
		}
	}
	if finalSelectionCount < 1 {
		return &ConfigError{Field: "final_selection_count", Reason: "must be at least 1"}
	}
	if maxCandidatesShortlist > targetApplications {
		return &ConfigError{
			Field: "max_candidates_shortlist",
			Reason: fmt.Sprintf("%d exceeds target_applications %d",
				maxCandidatesShortlist, targetApplications),
		}
	}
	if finalSelectionCount > maxCandidatesShortlist {
		return &ConfigError{
			Field: "final_selection_count",
			Reason: fmt.Sprintf("%d exceeds max_candidates_shortlist %d",
				finalSelectionCount, maxCandidatesShortlist),
		}
	}
	return nil
}

// Advance counts one more application against job. It returns the updated
// job and whether this application is the one that reached the target; when
// it is, the job is already flipped to applications_closed so no later call
// can report a crossing again.
func Advance(job models.Job) (models.Job, bool, error) {
	if !job.Status.AcceptsApplications() {
		return job, false, fmt.Errorf("job %s is %s: %w", job.ID, job.Status, ErrApplicationsClosed)
	}

	next := job
	next.CurrentApplications++
	next.Status = models.JobApplicationsOpen

	crossed := next.CurrentApplications >= next.TargetApplications
	if crossed {
		next.Status = models.JobApplicationsClosed
	}
	return next, crossed, nil
}

// Options tune how hard the guard retries on version conflicts
type Options struct {
	MaxTries       uint
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultOptions returns retry settings suited to bursts of concurrent submissions
func DefaultOptions() Options {
	return Options{
		MaxTries:       20,
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     200 * time.Millisecond,
	}
}

// Guard records applications against a job's persisted state
type Guard struct {
	store  store.Store
	opts   Options
	logger *slog.Logger
}

// NewGuard creates a new capacity guard
func NewGuard(s store.Store, opts Options, logger *slog.Logger) *Guard {
	if opts.MaxTries == 0 {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{store: s, opts: opts, logger: logger}
}

// Result is what RecordApplication committed
type Result struct {
	Job         models.Job
	Application models.Application
	Crossed     bool
}

// RecordApplication increments the job counter and inserts app in a single
// version-checked commit. Concurrent callers that lose the race re-read the
// job and try again, so exactly one of them observes Crossed.
func (g *Guard) RecordApplication(ctx context.Context, jobID string, app models.Application) (Result, error) {
	attempt := 0
	operation := func() (Result, error) {
		attempt++
		job, err := g.store.GetJob(ctx, jobID)
		if err != nil {
			return Result{}, backoff.Permanent(err)
		}

		next, crossed, err := Advance(job)
		if err != nil {
			return Result{}, backoff.Permanent(err)
		}

		committed, saved, err := g.store.RecordApplication(ctx, next, app)
		if errors.Is(err, store.ErrVersionConflict) {
			return Result{}, err
		}
		if err != nil {
			return Result{}, backoff.Permanent(err)
		}
		return Result{Job: committed, Application: saved, Crossed: crossed}, nil
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(g.newBackOff()),
		backoff.WithMaxTries(g.opts.MaxTries),
		backoff.WithMaxElapsedTime(10*time.Second),
	)
	if err != nil {
		return Result{}, fmt.Errorf("failed to record application for job %s: %w", jobID, err)
	}

	if attempt > 1 {
		g.logger.Debug("application recorded after version conflicts",
			slog.String("job_id", jobID),
			slog.Int("attempts", attempt))
	}
	if result.Crossed {
		g.logger.Info("application target reached",
			slog.String("job_id", jobID),
			slog.Int("current_applications", result.Job.CurrentApplications))
	}
	return result, nil
}

func (g *Guard) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.opts.InitialBackoff
	b.MaxInterval = g.opts.MaxBackoff
	return b
}
