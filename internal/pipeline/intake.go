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
	"github.com/fmuoria/shortlist-agent/internal/logging"
	"github.com/fmuoria/shortlist-agent/internal/metrics"
	"github.com/fmuoria/shortlist-agent/internal/models"
	"github.com/fmuoria/shortlist-agent/internal/ratelimit"
	"github.com/fmuoria/shortlist-agent/internal/scoring"
	"github.com/fmuoria/shortlist-agent/internal/store"
)

// ErrRateLimited is returned when an applicant submits too often
var ErrRateLimited = errors.New("too many submissions, try again later")

// Submitter queues a job for background shortlisting
type Submitter interface {
	Submit(jobID string) error
}

// ApplicationRequest is one candidate's submission
type ApplicationRequest struct {
	JobID          string `json:"job_id"`
	UserID         string `json:"user_id"`
	CandidateName  string `json:"candidate_name"`
	CandidateEmail string `json:"candidate_email"`
	ResumeText     string `json:"resume_text"`
}

// Intake scores incoming applications and records them against job capacity
type Intake struct {
	store      store.Store
	guard      *capacity.Guard
	scorer     scoring.ResumeScorer
	dispatcher Submitter
	limiter    ratelimit.Limiter
	metrics    *metrics.Collector
	logger     *slog.Logger
}

// NewIntake creates the intake service. limiter may be nil.
func NewIntake(s store.Store, guard *capacity.Guard, scorer scoring.ResumeScorer, dispatcher Submitter,
	limiter ratelimit.Limiter, m *metrics.Collector, logger *slog.Logger) *Intake {
	if m == nil {
		m = metrics.NewCollector(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Intake{
		store:      s,
		guard:      guard,
		scorer:     scorer,
		dispatcher: dispatcher,
		limiter:    limiter,
		metrics:    m,
		logger:     logger,
	}
}

// Submit scores the resume and records the application. When this
// application fills the job, shortlisting is queued and Submit returns
// without waiting for it.
func (in *Intake) Submit(ctx context.Context, req ApplicationRequest) (models.Application, error) {
	if err := validateApplication(req); err != nil {
		return models.Application{}, err
	}

	if in.limiter != nil && !in.limiter.Allow(ctx, req.UserID) {
		in.metrics.RecordRefused("rate_limited")
		return models.Application{}, ErrRateLimited
	}

	job, err := in.store.GetJob(ctx, req.JobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Application{}, fmt.Errorf("%s: %w", req.JobID, ErrJobNotFound)
		}
		return models.Application{}, err
	}
	if !job.Status.AcceptsApplications() {
		in.metrics.RecordRefused("closed")
		return models.Application{}, capacity.ErrApplicationsClosed
	}

	// checked before scoring so a repeat submission costs no LLM call
	if _, err := in.store.FindApplication(ctx, req.JobID, req.UserID); err == nil {
		in.metrics.RecordRefused("duplicate")
		return models.Application{}, store.ErrDuplicateApplication
	} else if !errors.Is(err, store.ErrNotFound) {
		return models.Application{}, err
	}

	scored, err := in.scorer.Score(ctx, scoring.ResumeInput{
		ResumeText:      req.ResumeText,
		JobTitle:        job.Title,
		JobDescription:  job.Description,
		JobRequirements: job.Requirements,
	})
	if err != nil {
		return models.Application{}, fmt.Errorf("failed to score resume: %w", err)
	}

	app := models.Application{
		ID:             uuid.NewString(),
		JobID:          req.JobID,
		UserID:         req.UserID,
		CandidateName:  strings.TrimSpace(req.CandidateName),
		CandidateEmail: strings.TrimSpace(req.CandidateEmail),
		ATSScore:       scored.ATSScore,
		ResumeFeedback: scored.Feedback,
		FinalScore:     scoring.Combine(scored.ATSScore, nil),
		Status:         models.StatusApplied,
		CreatedAt:      time.Now().UTC(),
	}

	res, err := in.guard.RecordApplication(ctx, req.JobID, app)
	if err != nil {
		switch {
		case errors.Is(err, capacity.ErrApplicationsClosed):
			in.metrics.RecordRefused("closed")
		case errors.Is(err, store.ErrDuplicateApplication):
			in.metrics.RecordRefused("duplicate")
		}
		return models.Application{}, err
	}
	in.metrics.RecordApplication(res.Crossed)

	in.logger.Info("application recorded",
		slog.String("job_id", req.JobID),
		slog.String("application_id", res.Application.ID),
		slog.Int("ats_score", res.Application.ATSScore),
		slog.Int("current_applications", res.Job.CurrentApplications))

	if res.Crossed {
		in.dispatch(req.JobID)
	}
	return res.Application, nil
}

func (in *Intake) dispatch(jobID string) {
	if in.dispatcher == nil {
		return
	}
	if err := in.dispatcher.Submit(jobID); err != nil {
		// the job stays applications_closed and RecoverPending queues it later
		in.logger.Warn("failed to queue shortlisting",
			slog.String("job_id", jobID),
			logging.Err(err))
	}
}

func validateApplication(req ApplicationRequest) error {
	switch {
	case strings.TrimSpace(req.JobID) == "":
		return fmt.Errorf("%w: job_id is required", ErrInvalidInput)
	case strings.TrimSpace(req.UserID) == "":
		return fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	case !strings.Contains(req.CandidateEmail, "@"):
		return fmt.Errorf("%w: candidate_email is required", ErrInvalidInput)
	case strings.TrimSpace(req.ResumeText) == "":
		return fmt.Errorf("%w: resume_text is required", ErrInvalidInput)
	case isBinaryText(req.ResumeText):
		return fmt.Errorf("%w: resume_text must be extracted text, not a document file", ErrInvalidInput)
	}
	return nil
}

const (
	binarySampleSize = 1000
	binaryThreshold  = 0.3
)

// isBinaryText reports whether text is a raw PDF or DOCX payload, or is
// mostly control characters
func isBinaryText(text string) bool {
	if strings.HasPrefix(text, "%PDF-") || strings.HasPrefix(text, "PK\x03\x04") {
		return true
	}

	sample := text[:min(binarySampleSize, len(text))]
	nonPrintable := 0
	for i := 0; i < len(sample); i++ {
		ch := sample[i]
		if ch < 32 && ch != '\n' && ch != '\r' && ch != '\t' {
			nonPrintable++
		}
	}
	return float64(nonPrintable)/float64(len(sample)) > binaryThreshold
}
