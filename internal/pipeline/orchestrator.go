package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fmuoria/shortlist-agent/internal/lifecycle"
	"github.com/fmuoria/shortlist-agent/internal/logging"
	"github.com/fmuoria/shortlist-agent/internal/metrics"
	"github.com/fmuoria/shortlist-agent/internal/models"
	"github.com/fmuoria/shortlist-agent/internal/notify"
	"github.com/fmuoria/shortlist-agent/internal/selection"
	"github.com/fmuoria/shortlist-agent/internal/store"
)

// OrchestratorOptions configure a shortlisting run
type OrchestratorOptions struct {
	// NotifyConcurrency bounds parallel notification sends
	NotifyConcurrency int
	// Timeout bounds the whole run; zero means no bound
	Timeout time.Duration
}

// Orchestrator runs shortlisting for a job whose applications have closed
type Orchestrator struct {
	store    store.Store
	notifier notify.Notifier
	reporter notify.Reporter
	metrics  *metrics.Collector
	opts     OrchestratorOptions
	logger   *slog.Logger
}

// NewOrchestrator creates a new orchestrator. reporter may be nil.
func NewOrchestrator(s store.Store, n notify.Notifier, r notify.Reporter, m *metrics.Collector,
	opts OrchestratorOptions, logger *slog.Logger) *Orchestrator {
	if opts.NotifyConcurrency < 1 {
		opts.NotifyConcurrency = 1
	}
	if m == nil {
		m = metrics.NewCollector(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{store: s, notifier: n, reporter: r, metrics: m, opts: opts, logger: logger}
}

// Run ranks the job's applications, moves each to shortlisted or rejected,
// notifies the candidates whose status this run changed, and finally moves
// the job to interviews_active with the ordered shortlist. Running it for a
// job that is already past shortlisting is a successful no-op.
func (o *Orchestrator) Run(ctx context.Context, jobID string) (models.ShortlistOutcome, error) {
	start := time.Now()
	if o.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.Timeout)
		defer cancel()
	}

	outcome, err := o.run(ctx, jobID)
	switch {
	case err != nil:
		o.metrics.RecordShortlistRun("failed", time.Since(start))
		o.logger.Error("shortlisting failed", slog.String("job_id", jobID), logging.Err(err))
	case outcome.Skipped:
		o.metrics.RecordShortlistRun("skipped", time.Since(start))
		o.logger.Info("shortlisting skipped, job already past shortlisting", slog.String("job_id", jobID))
	default:
		o.metrics.RecordShortlistRun("completed", time.Since(start))
		o.logger.Info("shortlisting completed",
			slog.String("job_id", jobID),
			slog.String("summary", outcome.Summary()),
			slog.Duration("elapsed", time.Since(start)))
	}
	return outcome, err
}

func (o *Orchestrator) run(ctx context.Context, jobID string) (models.ShortlistOutcome, error) {
	outcome := models.ShortlistOutcome{JobID: jobID}

	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return outcome, &OrchestratorError{JobID: jobID, Err: ErrJobNotFound}
		}
		return outcome, &OrchestratorError{JobID: jobID, Err: err}
	}
	if job.Status.PastShortlisting() {
		outcome.Skipped = true
		return outcome, nil
	}
	if job.Status != models.JobApplicationsClosed {
		return outcome, &OrchestratorError{
			JobID: jobID,
			Err:   fmt.Errorf("%w (status %s)", ErrNotClosed, job.Status),
		}
	}

	apps, err := o.store.ListApplicationsByJob(ctx, jobID)
	if err != nil {
		return outcome, &OrchestratorError{JobID: jobID, Err: err}
	}
	result := selection.Select(apps, job.MaxCandidatesShortlist)

	// every transition commits before any notice goes out or the job flips
	var notices []notice
	for _, app := range result.Shortlisted {
		n, err := o.transition(ctx, app, models.StatusShortlisted, KindShortlist)
		if err != nil {
			return outcome, &OrchestratorError{JobID: jobID, Err: err}
		}
		if n != nil {
			notices = append(notices, *n)
		}
		outcome.Shortlisted = append(outcome.Shortlisted, app.ID)
	}
	for _, app := range result.Rejected {
		n, err := o.transition(ctx, app, models.StatusRejected, KindRejection)
		if err != nil {
			return outcome, &OrchestratorError{JobID: jobID, Err: err}
		}
		if n != nil {
			notices = append(notices, *n)
		}
		outcome.Rejected = append(outcome.Rejected, app.ID)
	}

	outcome.NotificationsSent, outcome.NotificationsFailed = o.delivery().deliver(ctx, job, notices)

	// an expired run leaves the job closed; a re-run finishes it and the
	// retry sweep picks up the notices that did not go out
	if err := ctx.Err(); err != nil {
		return outcome, &OrchestratorError{JobID: jobID, Err: err}
	}

	shortlisted := selection.IDs(result.Shortlisted)
	_, err = mutateJob(ctx, o.store, jobID, func(current models.Job) (models.Job, bool, error) {
		if current.Status.PastShortlisting() {
			// a concurrent run finished first
			return current, false, nil
		}
		next, err := lifecycle.TransitionJob(current, models.JobInterviewsActive)
		if err != nil {
			return current, false, err
		}
		next.ShortlistedCandidates = shortlisted
		return next, true, nil
	})
	if err != nil {
		return outcome, &OrchestratorError{JobID: jobID, Err: fmt.Errorf("failed to activate interviews: %w", err)}
	}

	if o.reporter != nil {
		if err := o.reporter.ReportShortlist(ctx, job, outcome); err != nil {
			o.logger.Warn("failed to report shortlist to host", slog.String("job_id", jobID), logging.Err(err))
		}
	}
	return outcome, nil
}

// transition applies one status change and returns the notice it owes, if any
func (o *Orchestrator) transition(ctx context.Context, app models.Application,
	target models.ApplicationStatus, kind string) (*notice, error) {
	saved, changed, err := transitionApplication(ctx, o.store, app.ID, target, app.Ranking)
	if err != nil {
		var invalid *lifecycle.InvalidTransitionError
		if errors.As(err, &invalid) {
			o.metrics.RecordInvalidTransition()
		}
		return nil, fmt.Errorf("application %s: %w", app.ID, err)
	}
	if !changed {
		return nil, nil
	}
	return &notice{kind: kind, app: saved}, nil
}

func (o *Orchestrator) delivery() *delivery {
	return &delivery{
		store:       o.store,
		notifier:    o.notifier,
		metrics:     o.metrics,
		logger:      o.logger,
		concurrency: o.opts.NotifyConcurrency,
	}
}
