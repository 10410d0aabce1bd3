package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fmuoria/shortlist-agent/internal/capacity"
	"github.com/fmuoria/shortlist-agent/internal/lifecycle"
	"github.com/fmuoria/shortlist-agent/internal/logging"
	"github.com/fmuoria/shortlist-agent/internal/metrics"
	"github.com/fmuoria/shortlist-agent/internal/models"
	"github.com/fmuoria/shortlist-agent/internal/notify"
	"github.com/fmuoria/shortlist-agent/internal/selection"
	"github.com/fmuoria/shortlist-agent/internal/store"
)

// JobRequest describes a new hiring campaign
type JobRequest struct {
	HostID                 string   `json:"host_id"`
	Title                  string   `json:"title"`
	Description            string   `json:"description"`
	Requirements           []string `json:"requirements"`
	TargetApplications     int      `json:"target_applications"`
	MaxCandidatesShortlist int      `json:"max_candidates_shortlist"`
	FinalSelectionCount    int      `json:"final_selection_count"`
	Publish                bool     `json:"publish"`
}

// CapacityRequest replaces a job's capacity settings
type CapacityRequest struct {
	TargetApplications     int `json:"target_applications"`
	MaxCandidatesShortlist int `json:"max_candidates_shortlist"`
	FinalSelectionCount    int `json:"final_selection_count"`
}

// StageOutcome summarizes final ranking or offer sending
type StageOutcome struct {
	JobID               string   `json:"job_id"`
	Selected            []string `json:"selected"`
	Rejected            []string `json:"rejected"`
	NotificationsSent   int      `json:"notifications_sent"`
	NotificationsFailed int      `json:"notifications_failed"`
}

// Host carries out the actions a job's owner takes around the pipeline
type Host struct {
	store       store.Store
	notifier    notify.Notifier
	dispatcher  Submitter
	metrics     *metrics.Collector
	logger      *slog.Logger
	concurrency int
}

// NewHost creates the host service. dispatcher may be nil, in which case
// closing a job leaves shortlisting to RecoverPending or the CLI.
func NewHost(s store.Store, n notify.Notifier, dispatcher Submitter, m *metrics.Collector,
	notifyConcurrency int, logger *slog.Logger) *Host {
	if m == nil {
		m = metrics.NewCollector(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{
		store:       s,
		notifier:    n,
		dispatcher:  dispatcher,
		metrics:     m,
		logger:      logger,
		concurrency: max(notifyConcurrency, 1),
	}
}

// CreateJob validates the capacity settings and stores a draft or published job
func (h *Host) CreateJob(ctx context.Context, req JobRequest) (models.Job, error) {
	if strings.TrimSpace(req.Title) == "" {
		return models.Job{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if err := capacity.ValidateConfig(req.TargetApplications, req.MaxCandidatesShortlist, req.FinalSelectionCount); err != nil {
		return models.Job{}, err
	}

	status := models.JobDraft
	if req.Publish {
		status = models.JobPublished
	}
	now := time.Now().UTC()
	job, err := h.store.CreateJob(ctx, models.Job{
		ID:                     uuid.NewString(),
		HostID:                 req.HostID,
		Title:                  strings.TrimSpace(req.Title),
		Description:            req.Description,
		Requirements:           req.Requirements,
		TargetApplications:     req.TargetApplications,
		MaxCandidatesShortlist: req.MaxCandidatesShortlist,
		FinalSelectionCount:    req.FinalSelectionCount,
		Status:                 status,
		CreatedAt:              now,
		UpdatedAt:              now,
	})
	if err != nil {
		return models.Job{}, fmt.Errorf("failed to create job: %w", err)
	}

	h.logger.Info("job created",
		slog.String("job_id", job.ID),
		slog.String("status", string(job.Status)),
		slog.Int("target_applications", job.TargetApplications))
	return job, nil
}

// GetJob returns one job
func (h *Host) GetJob(ctx context.Context, jobID string) (models.Job, error) {
	job, err := h.store.GetJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return models.Job{}, fmt.Errorf("%s: %w", jobID, ErrJobNotFound)
	}
	return job, err
}

// ListJobs returns every job
func (h *Host) ListJobs(ctx context.Context) ([]models.Job, error) {
	return h.store.ListJobs(ctx)
}

// ListApplications returns a job's applications in the selector's ranking order
func (h *Host) ListApplications(ctx context.Context, jobID string) ([]models.Application, error) {
	if _, err := h.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	apps, err := h.store.ListApplicationsByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return selection.Rank(apps), nil
}

// UpdateCapacity replaces the capacity settings of a job still taking
// applications. The target cannot drop below the applications already
// received; a target equal to that count closes the job and queues
// shortlisting.
func (h *Host) UpdateCapacity(ctx context.Context, jobID string, req CapacityRequest) (models.Job, error) {
	if err := capacity.ValidateConfig(req.TargetApplications, req.MaxCandidatesShortlist, req.FinalSelectionCount); err != nil {
		return models.Job{}, err
	}

	crossed := false
	job, err := mutateJob(ctx, h.store, jobID, func(job models.Job) (models.Job, bool, error) {
		if job.Status != models.JobDraft && !job.Status.AcceptsApplications() {
			return job, false, fmt.Errorf("%w: capacity is fixed once applications close (job is %s)",
				ErrWrongJobState, job.Status)
		}
		if req.TargetApplications < job.CurrentApplications {
			return job, false, &capacity.ConfigError{
				Field: "target_applications",
				Reason: fmt.Sprintf("%d is below the %d applications already received",
					req.TargetApplications, job.CurrentApplications),
			}
		}

		next := job
		next.TargetApplications = req.TargetApplications
		next.MaxCandidatesShortlist = req.MaxCandidatesShortlist
		next.FinalSelectionCount = req.FinalSelectionCount
		next.UpdatedAt = time.Now().UTC()

		crossed = job.Status.AcceptsApplications() && job.CurrentApplications > 0 &&
			job.CurrentApplications >= req.TargetApplications
		if crossed {
			var err error
			if next, err = lifecycle.TransitionJob(next, models.JobApplicationsClosed); err != nil {
				return job, false, err
			}
		}
		return next, true, nil
	})
	if err != nil {
		return models.Job{}, err
	}

	if crossed {
		h.dispatch(jobID)
	}
	return job, nil
}

// Publish opens a draft job to applications
func (h *Host) Publish(ctx context.Context, jobID string) (models.Job, error) {
	return h.transitionJob(ctx, jobID, models.JobPublished)
}

// CloseApplications stops intake before the target is reached and queues
// shortlisting for whatever has arrived
func (h *Host) CloseApplications(ctx context.Context, jobID string) (models.Job, error) {
	job, err := h.transitionJob(ctx, jobID, models.JobApplicationsClosed)
	if err != nil {
		return models.Job{}, err
	}
	h.dispatch(jobID)
	return job, nil
}

// Cancel cancels a job. Applications keep their status.
func (h *Host) Cancel(ctx context.Context, jobID string) (models.Job, error) {
	return h.transitionJob(ctx, jobID, models.JobCancelled)
}

// Complete closes a job after final ranking or offers
func (h *Host) Complete(ctx context.Context, jobID string) (models.Job, error) {
	return h.transitionJob(ctx, jobID, models.JobCompleted)
}

// Delete removes a job that has no applications
func (h *Host) Delete(ctx context.Context, jobID string) error {
	err := h.store.DeleteJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s: %w", jobID, ErrJobNotFound)
	}
	return err
}

// SetStatus applies a manual status change through the state machine. It is
// only allowed once shortlisting has finished for the job, so it never races
// a shortlisting run. Moving a candidate to rejected sends the rejection notice.
func (h *Host) SetStatus(ctx context.Context, applicationID string, target models.ApplicationStatus) (models.Application, error) {
	app, err := h.store.GetApplication(ctx, applicationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Application{}, fmt.Errorf("%s: %w", applicationID, ErrApplicationNotFound)
		}
		return models.Application{}, err
	}
	job, err := h.GetJob(ctx, app.JobID)
	if err != nil {
		return models.Application{}, err
	}
	switch job.Status {
	case models.JobInterviewsActive, models.JobInterviewsCompleted, models.JobOffersSent:
	default:
		return models.Application{}, fmt.Errorf("%w: manual status changes need a shortlisted job (job is %s)",
			ErrWrongJobState, job.Status)
	}

	if target == models.StatusSelected && app.Status != models.StatusSelected {
		if err := h.checkSelectionRoom(ctx, job); err != nil {
			return models.Application{}, err
		}
	}

	saved, changed, err := transitionApplication(ctx, h.store, app.ID, target, app.Ranking)
	if err != nil {
		var invalid *lifecycle.InvalidTransitionError
		if errors.As(err, &invalid) {
			h.metrics.RecordInvalidTransition()
		}
		return models.Application{}, err
	}

	if changed && target == models.StatusRejected {
		h.delivery().deliver(ctx, job, []notice{{kind: KindRejection, app: saved}})
		if saved, err = h.store.GetApplication(ctx, app.ID); err != nil {
			return models.Application{}, err
		}
	}
	return saved, nil
}

// Finalize ranks the interviewed candidates of a job, selects the top
// FinalSelectionCount and rejects the rest. Candidates the host already
// selected by hand keep their place, rank first and count against
// FinalSelectionCount. Shortlisted candidates who never completed an
// interview keep their status but lose their ranking, so the final rankings
// stay unique.
func (h *Host) Finalize(ctx context.Context, jobID string) (StageOutcome, error) {
	outcome := StageOutcome{JobID: jobID}

	job, err := h.GetJob(ctx, jobID)
	if err != nil {
		return outcome, err
	}
	if job.Status != models.JobInterviewsActive {
		return outcome, fmt.Errorf("%w: finalizing needs interviews_active (job is %s)", ErrWrongJobState, job.Status)
	}

	apps, err := h.store.ListApplicationsByJob(ctx, jobID)
	if err != nil {
		return outcome, err
	}

	var preSelected, interviewed []models.Application
	for _, app := range apps {
		switch app.Status {
		case models.StatusSelected:
			preSelected = append(preSelected, app)
		case models.StatusInterviewCompleted:
			interviewed = append(interviewed, app)
		case models.StatusShortlisted, models.StatusInterviewScheduled:
			if _, err := h.setRanking(ctx, app.ID, 0); err != nil {
				return outcome, err
			}
		}
	}

	// selected only moves on to offer_sent, so manual picks keep their place
	preSelected = selection.Rank(preSelected)
	for i, app := range preSelected {
		if _, err := h.setRanking(ctx, app.ID, i+1); err != nil {
			return outcome, fmt.Errorf("application %s: %w", app.ID, err)
		}
		outcome.Selected = append(outcome.Selected, app.ID)
	}
	result := selection.Select(interviewed, job.FinalSelectionCount-len(preSelected))

	var notices []notice
	for _, app := range result.Shortlisted {
		ranking := app.Ranking + len(preSelected)
		if _, _, err := transitionApplication(ctx, h.store, app.ID, models.StatusSelected, ranking); err != nil {
			return outcome, fmt.Errorf("application %s: %w", app.ID, err)
		}
		outcome.Selected = append(outcome.Selected, app.ID)
	}
	for _, app := range result.Rejected {
		saved, changed, err := transitionApplication(ctx, h.store, app.ID, models.StatusRejected, 0)
		if err != nil {
			return outcome, fmt.Errorf("application %s: %w", app.ID, err)
		}
		if changed {
			notices = append(notices, notice{kind: KindRejection, app: saved})
		}
		outcome.Rejected = append(outcome.Rejected, app.ID)
	}

	outcome.NotificationsSent, outcome.NotificationsFailed = h.delivery().deliver(ctx, job, notices)

	if _, err := h.transitionJob(ctx, jobID, models.JobInterviewsCompleted); err != nil {
		return outcome, fmt.Errorf("failed to complete interviews: %w", err)
	}

	h.logger.Info("final selection completed",
		slog.String("job_id", jobID),
		slog.Int("selected", len(outcome.Selected)),
		slog.Int("rejected", len(outcome.Rejected)),
		slog.Int("notifications_failed", outcome.NotificationsFailed))
	return outcome, nil
}

// SendOffers moves every selected candidate to offer_sent and sends the
// offer. Calling it again resends offers whose earlier send failed.
func (h *Host) SendOffers(ctx context.Context, jobID string, offer models.OfferDetails) (StageOutcome, error) {
	outcome := StageOutcome{JobID: jobID}

	job, err := h.GetJob(ctx, jobID)
	if err != nil {
		return outcome, err
	}
	if job.Status != models.JobInterviewsCompleted && job.Status != models.JobOffersSent {
		return outcome, fmt.Errorf("%w: offers need interviews_completed (job is %s)", ErrWrongJobState, job.Status)
	}
	if offer.Position == "" {
		offer.Position = job.Title
	}

	apps, err := h.store.ListApplicationsByJob(ctx, jobID)
	if err != nil {
		return outcome, err
	}

	var notices []notice
	for _, app := range apps {
		switch {
		case app.Status == models.StatusSelected:
			saved, _, err := transitionApplication(ctx, h.store, app.ID, models.StatusOfferSent, app.Ranking)
			if err != nil {
				return outcome, fmt.Errorf("application %s: %w", app.ID, err)
			}
			notices = append(notices, notice{kind: KindOffer, app: saved, offer: offer})
		case app.Status == models.StatusOfferSent && !app.OfferEmailSent:
			notices = append(notices, notice{kind: KindOffer, app: app, offer: offer})
		default:
			continue
		}
		outcome.Selected = append(outcome.Selected, app.ID)
	}

	outcome.NotificationsSent, outcome.NotificationsFailed = h.delivery().deliver(ctx, job, notices)

	if _, err := h.transitionJob(ctx, jobID, models.JobOffersSent); err != nil {
		return outcome, fmt.Errorf("failed to mark offers sent: %w", err)
	}
	return outcome, nil
}

func (h *Host) transitionJob(ctx context.Context, jobID string, target models.JobStatus) (models.Job, error) {
	job, err := mutateJob(ctx, h.store, jobID, func(job models.Job) (models.Job, bool, error) {
		next, err := lifecycle.TransitionJob(job, target)
		if err != nil {
			return job, false, err
		}
		return next, next.Status != job.Status, nil
	})
	if err != nil {
		return models.Job{}, err
	}
	h.logger.Info("job status changed", slog.String("job_id", jobID), slog.String("status", string(job.Status)))
	return job, nil
}

// checkSelectionRoom refuses a manual selection once the job already has
// FinalSelectionCount selected or offered candidates
func (h *Host) checkSelectionRoom(ctx context.Context, job models.Job) error {
	apps, err := h.store.ListApplicationsByJob(ctx, job.ID)
	if err != nil {
		return err
	}
	selected := 0
	for _, app := range apps {
		if app.Status == models.StatusSelected || app.Status == models.StatusOfferSent {
			selected++
		}
	}
	if selected >= job.FinalSelectionCount {
		return fmt.Errorf("%w: %d of %d candidates already selected", ErrSelectionFull, selected, job.FinalSelectionCount)
	}
	return nil
}

func (h *Host) setRanking(ctx context.Context, applicationID string, ranking int) (models.Application, error) {
	return mutateApplication(ctx, h.store, applicationID, func(app models.Application) (models.Application, bool, error) {
		if app.Ranking == ranking {
			return app, false, nil
		}
		app.Ranking = ranking
		app.UpdatedAt = time.Now().UTC()
		return app, true, nil
	})
}

func (h *Host) dispatch(jobID string) {
	if h.dispatcher == nil {
		return
	}
	if err := h.dispatcher.Submit(jobID); err != nil {
		h.logger.Warn("failed to queue shortlisting", slog.String("job_id", jobID), logging.Err(err))
	}
}

func (h *Host) delivery() *delivery {
	return &delivery{
		store:       h.store,
		notifier:    h.notifier,
		metrics:     h.metrics,
		logger:      h.logger,
		concurrency: h.concurrency,
	}
}
