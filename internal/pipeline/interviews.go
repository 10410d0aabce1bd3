package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fmuoria/shortlist-agent/internal/lifecycle"
	"github.com/fmuoria/shortlist-agent/internal/models"
	"github.com/fmuoria/shortlist-agent/internal/scoring"
	"github.com/fmuoria/shortlist-agent/internal/store"
)

// ErrInterviewAlreadyScored is returned when an interview result arrives twice
var ErrInterviewAlreadyScored = errors.New("interview already scored")

// InterviewRequest carries a finished voice interview
type InterviewRequest struct {
	ApplicationID string   `json:"application_id"`
	Transcript    string   `json:"transcript"`
	Questions     []string `json:"questions"`
}

// Interviews scores voice interviews for shortlisted candidates
type Interviews struct {
	store  store.Store
	scorer scoring.InterviewScorer
	logger *slog.Logger
}

// NewInterviews creates the interview service
func NewInterviews(s store.Store, scorer scoring.InterviewScorer, logger *slog.Logger) *Interviews {
	if logger == nil {
		logger = slog.Default()
	}
	return &Interviews{store: s, scorer: scorer, logger: logger}
}

// Schedule moves a shortlisted application to interview_scheduled
func (iv *Interviews) Schedule(ctx context.Context, applicationID string) (models.Application, error) {
	app, _, err := iv.load(ctx, applicationID)
	if err != nil {
		return models.Application{}, err
	}
	saved, _, err := transitionApplication(ctx, iv.store, app.ID, models.StatusInterviewScheduled, app.Ranking)
	return saved, err
}

// Complete scores the transcript, stores the interview score and feedback,
// recomputes the final score and moves the application to interview_completed.
// The interview score is set once; a second result is refused.
func (iv *Interviews) Complete(ctx context.Context, req InterviewRequest) (models.Application, error) {
	if strings.TrimSpace(req.Transcript) == "" {
		return models.Application{}, fmt.Errorf("%w: transcript is required", ErrInvalidInput)
	}

	app, job, err := iv.load(ctx, req.ApplicationID)
	if err != nil {
		return models.Application{}, err
	}
	if app.VoiceInterviewCompleted {
		return models.Application{}, ErrInterviewAlreadyScored
	}
	// refuse early so an illegal request costs no LLM call
	if !lifecycle.CanTransition(app.Status, models.StatusInterviewCompleted) {
		return models.Application{}, &lifecycle.InvalidTransitionError{
			From: string(app.Status),
			To:   string(models.StatusInterviewCompleted),
		}
	}

	result, err := iv.scorer.Score(ctx, scoring.InterviewInput{
		Transcript: req.Transcript,
		Questions:  req.Questions,
		JobTitle:   job.Title,
	})
	if err != nil {
		return models.Application{}, fmt.Errorf("failed to score interview: %w", err)
	}

	saved, err := mutateApplication(ctx, iv.store, app.ID, func(current models.Application) (models.Application, bool, error) {
		if current.VoiceInterviewCompleted {
			return current, false, ErrInterviewAlreadyScored
		}
		next, err := lifecycle.Transition(current, models.StatusInterviewCompleted)
		if err != nil {
			return current, false, err
		}
		score := result.OverallPerformance
		next.VoiceInterviewScore = &score
		next.VoiceInterviewCompleted = true
		next.InterviewFeedback = result.Feedback
		next.FinalScore = scoring.Combine(next.ATSScore, next.VoiceInterviewScore)
		return next, true, nil
	})
	if err != nil {
		return models.Application{}, err
	}

	iv.logger.Info("interview scored",
		slog.String("job_id", saved.JobID),
		slog.String("application_id", saved.ID),
		slog.Int("interview_score", result.OverallPerformance),
		slog.Int("final_score", saved.FinalScore))
	return saved, nil
}

// load returns the application and its job, which must be running interviews
func (iv *Interviews) load(ctx context.Context, applicationID string) (models.Application, models.Job, error) {
	app, err := iv.store.GetApplication(ctx, applicationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Application{}, models.Job{}, fmt.Errorf("%s: %w", applicationID, ErrApplicationNotFound)
		}
		return models.Application{}, models.Job{}, err
	}
	job, err := iv.store.GetJob(ctx, app.JobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Application{}, models.Job{}, fmt.Errorf("%s: %w", app.JobID, ErrJobNotFound)
		}
		return models.Application{}, models.Job{}, err
	}
	if job.Status != models.JobInterviewsActive {
		return models.Application{}, models.Job{}, fmt.Errorf("%w: job %s is %s", ErrWrongJobState, job.ID, job.Status)
	}
	return app, job, nil
}
