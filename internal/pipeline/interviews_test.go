package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fmuoria/shortlist-agent/internal/lifecycle"
	"github.com/fmuoria/shortlist-agent/internal/models"
	"github.com/fmuoria/shortlist-agent/internal/store"
)

func TestInterviews_Complete(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	scorer := &fakeInterviewScorer{score: 90}
	iv := NewInterviews(s, scorer, discardLogger)

	_, apps := shortlistedJob(t, s, 2, 1, 70, 50, 10)

	scheduled, err := iv.Schedule(ctx, apps[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInterviewScheduled, scheduled.Status)

	done, err := iv.Complete(ctx, InterviewRequest{ApplicationID: apps[0].ID, Transcript: "I led the migration."})
	require.NoError(t, err)
	assert.Equal(t, models.StatusInterviewCompleted, done.Status)
	assert.True(t, done.VoiceInterviewCompleted)
	require.NotNil(t, done.VoiceInterviewScore)
	assert.Equal(t, 90, *done.VoiceInterviewScore)
	assert.Equal(t, 78, done.FinalScore, "0.6*70 + 0.4*90")
	assert.Equal(t, 90, done.InterviewFeedback.CommunicationSkills)
	assert.Equal(t, 1, done.Ranking)

	_, err = iv.Complete(ctx, InterviewRequest{ApplicationID: apps[0].ID, Transcript: "again"})
	assert.ErrorIs(t, err, ErrInterviewAlreadyScored)

	// shortlisted straight to completed is allowed
	direct, err := iv.Complete(ctx, InterviewRequest{ApplicationID: apps[1].ID, Transcript: "ok"})
	require.NoError(t, err)
	assert.Equal(t, 66, direct.FinalScore, "0.6*50 + 0.4*90")
	assert.Equal(t, 2, scorer.calls)
}

func TestInterviews_Refusals(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	scorer := &fakeInterviewScorer{score: 50}
	iv := NewInterviews(s, scorer, discardLogger)

	_, apps := shortlistedJob(t, s, 1, 1, 80, 20)

	_, err := iv.Complete(ctx, InterviewRequest{ApplicationID: apps[1].ID, Transcript: "hi"})
	var invalid *lifecycle.InvalidTransitionError
	require.ErrorAs(t, err, &invalid, "rejected candidates cannot be interviewed")
	assert.Equal(t, "rejected", invalid.From)

	_, err = iv.Complete(ctx, InterviewRequest{ApplicationID: apps[0].ID})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = iv.Complete(ctx, InterviewRequest{ApplicationID: "missing", Transcript: "hi"})
	assert.ErrorIs(t, err, ErrApplicationNotFound)

	open := createJob(t, s, 5, 2, 1, models.JobPublished)
	pending := seedApplications(t, s, open, 60)
	_, err = iv.Schedule(ctx, pending[0].ID)
	assert.ErrorIs(t, err, ErrWrongJobState)

	assert.Equal(t, 0, scorer.calls, "refused requests are never scored")
}
