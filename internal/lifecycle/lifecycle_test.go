package lifecycle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fmuoria/shortlist-agent/internal/models"
)

type edge struct {
	from, to models.ApplicationStatus
}

var legalEdges = map[edge]bool{
	{models.StatusApplied, models.StatusShortlisted}:                   true,
	{models.StatusApplied, models.StatusRejected}:                      true,
	{models.StatusShortlisted, models.StatusInterviewScheduled}:        true,
	{models.StatusShortlisted, models.StatusInterviewCompleted}:        true,
	{models.StatusInterviewScheduled, models.StatusInterviewCompleted}: true,
	{models.StatusInterviewCompleted, models.StatusSelected}:           true,
	{models.StatusInterviewCompleted, models.StatusRejected}:           true,
	{models.StatusSelected, models.StatusOfferSent}:                    true,
}

// TestTransition_AllPairs walks every (from, to) pair of the status set
func TestTransition_AllPairs(t *testing.T) {
	for _, from := range ApplicationStatuses() {
		for _, to := range ApplicationStatuses() {
			app := models.Application{ID: "app-1", Status: from}
			got, err := Transition(app, to)

			switch {
			case from == to:
				require.NoError(t, err, "%s -> %s should be a no-op", from, to)
				assert.Equal(t, app, got, "no-op must return the application unchanged")
			case legalEdges[edge{from, to}]:
				require.NoError(t, err, "%s -> %s should be legal", from, to)
				assert.Equal(t, to, got.Status)
			default:
				var invalid *InvalidTransitionError
				require.True(t, errors.As(err, &invalid), "%s -> %s should be rejected", from, to)
				assert.Equal(t, string(from), invalid.From)
				assert.Equal(t, string(to), invalid.To)
				assert.Equal(t, from, got.Status, "failed transition must not change status")
			}
		}
	}
}

func TestTransition_RejectedToShortlisted(t *testing.T) {
	_, err := Transition(models.Application{Status: models.StatusRejected}, models.StatusShortlisted)

	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "rejected", invalid.From)
	assert.Equal(t, "shortlisted", invalid.To)
	assert.EqualError(t, err, `invalid transition from "rejected" to "shortlisted"`)
}

func TestTransition_DoesNotMutateInput(t *testing.T) {
	app := models.Application{ID: "app-1", Status: models.StatusApplied}
	next, err := Transition(app, models.StatusShortlisted)
	require.NoError(t, err)

	assert.Equal(t, models.StatusApplied, app.Status)
	assert.Equal(t, models.StatusShortlisted, next.Status)
	assert.False(t, next.UpdatedAt.IsZero())
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(models.StatusRejected))
	assert.True(t, IsTerminal(models.StatusOfferSent))
	assert.False(t, IsTerminal(models.StatusApplied))
	assert.False(t, IsTerminal(models.StatusSelected))
}

func TestParseApplicationStatus(t *testing.T) {
	st, err := ParseApplicationStatus("interview_scheduled")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInterviewScheduled, st)

	_, err = ParseApplicationStatus("hired")
	assert.Error(t, err)
}

func TestTransitionJob(t *testing.T) {
	tests := []struct {
		name    string
		from    models.JobStatus
		to      models.JobStatus
		wantErr bool
	}{
		{name: "publish draft", from: models.JobDraft, to: models.JobPublished},
		{name: "first application opens", from: models.JobPublished, to: models.JobApplicationsOpen},
		{name: "close early", from: models.JobPublished, to: models.JobApplicationsClosed},
		{name: "close open", from: models.JobApplicationsOpen, to: models.JobApplicationsClosed},
		{name: "start interviews", from: models.JobApplicationsClosed, to: models.JobInterviewsActive},
		{name: "finish interviews", from: models.JobInterviewsActive, to: models.JobInterviewsCompleted},
		{name: "send offers", from: models.JobInterviewsCompleted, to: models.JobOffersSent},
		{name: "complete", from: models.JobOffersSent, to: models.JobCompleted},
		{name: "no reopen once closed", from: models.JobApplicationsClosed, to: models.JobApplicationsOpen, wantErr: true},
		{name: "no skipping shortlisting", from: models.JobApplicationsOpen, to: models.JobInterviewsActive, wantErr: true},
		{name: "cancel before completion", from: models.JobInterviewsActive, to: models.JobCancelled},
		{name: "cancel draft", from: models.JobDraft, to: models.JobCancelled},
		{name: "no cancel after completion", from: models.JobCompleted, to: models.JobCancelled, wantErr: true},
		{name: "cancel after offers", from: models.JobOffersSent, to: models.JobCancelled},
		{name: "same status is a no-op", from: models.JobInterviewsActive, to: models.JobInterviewsActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := TransitionJob(models.Job{Status: tt.from}, tt.to)
			if tt.wantErr {
				var invalid *InvalidTransitionError
				assert.ErrorAs(t, err, &invalid)
				assert.Equal(t, tt.from, next.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, next.Status)
		})
	}
}
