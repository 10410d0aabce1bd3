package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fmuoria/shortlist-agent/internal/capacity"
	"github.com/fmuoria/shortlist-agent/internal/lifecycle"
	"github.com/fmuoria/shortlist-agent/internal/models"
	"github.com/fmuoria/shortlist-agent/internal/store"
)

func newHost(s store.Store, n *fakeNotifier, d Submitter) *Host {
	return NewHost(s, n, d, nil, 4, discardLogger)
}

func TestHost_CreateJob(t *testing.T) {
	ctx := context.Background()
	h := newHost(store.NewMemory(), newFakeNotifier(), nil)

	tests := []struct {
		name       string
		req        JobRequest
		wantStatus models.JobStatus
		wantField  string
	}{
		{
			name:       "Draft by default",
			req:        JobRequest{Title: "Data Analyst", TargetApplications: 20, MaxCandidatesShortlist: 5, FinalSelectionCount: 1},
			wantStatus: models.JobDraft,
		},
		{
			name:       "Published on request",
			req:        JobRequest{Title: "Data Analyst", TargetApplications: 20, MaxCandidatesShortlist: 5, FinalSelectionCount: 1, Publish: true},
			wantStatus: models.JobPublished,
		},
		{
			name:      "Shortlist above target",
			req:       JobRequest{Title: "Data Analyst", TargetApplications: 10, MaxCandidatesShortlist: 15, FinalSelectionCount: 2},
			wantField: "max_candidates_shortlist",
		},
		{
			name:      "Final above shortlist",
			req:       JobRequest{Title: "Data Analyst", TargetApplications: 10, MaxCandidatesShortlist: 3, FinalSelectionCount: 4},
			wantField: "final_selection_count",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job, err := h.CreateJob(ctx, tt.req)
			if tt.wantField != "" {
				var cfgErr *capacity.ConfigError
				require.ErrorAs(t, err, &cfgErr)
				assert.Equal(t, tt.wantField, cfgErr.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, job.Status)
			assert.NotEmpty(t, job.ID)
			assert.Equal(t, int64(1), job.Version)
		})
	}

	_, err := h.CreateJob(ctx, JobRequest{TargetApplications: 1, MaxCandidatesShortlist: 1, FinalSelectionCount: 1})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestHost_UpdateCapacity(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	dispatched := &recordingSubmitter{}
	h := newHost(s, newFakeNotifier(), dispatched)

	job := createJob(t, s, 5, 2, 1, models.JobPublished)
	seedApplications(t, s, job, 70, 60)

	_, err := h.UpdateCapacity(ctx, job.ID, CapacityRequest{TargetApplications: 1, MaxCandidatesShortlist: 1, FinalSelectionCount: 1})
	var cfgErr *capacity.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "target_applications", cfgErr.Field)

	updated, err := h.UpdateCapacity(ctx, job.ID, CapacityRequest{TargetApplications: 8, MaxCandidatesShortlist: 4, FinalSelectionCount: 2})
	require.NoError(t, err)
	assert.Equal(t, 8, updated.TargetApplications)
	assert.Equal(t, models.JobApplicationsOpen, updated.Status)
	assert.Empty(t, dispatched.submitted())

	// lowering the target to the current count fills the job
	closed, err := h.UpdateCapacity(ctx, job.ID, CapacityRequest{TargetApplications: 2, MaxCandidatesShortlist: 2, FinalSelectionCount: 1})
	require.NoError(t, err)
	assert.Equal(t, models.JobApplicationsClosed, closed.Status)
	assert.Equal(t, []string{job.ID}, dispatched.submitted())

	_, err = h.UpdateCapacity(ctx, job.ID, CapacityRequest{TargetApplications: 9, MaxCandidatesShortlist: 2, FinalSelectionCount: 1})
	assert.ErrorIs(t, err, ErrWrongJobState)
}

func TestHost_JobLifecycleActions(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	dispatched := &recordingSubmitter{}
	h := newHost(s, newFakeNotifier(), dispatched)

	job, err := h.CreateJob(ctx, JobRequest{Title: "SRE", TargetApplications: 5, MaxCandidatesShortlist: 2, FinalSelectionCount: 1})
	require.NoError(t, err)

	_, err = h.CloseApplications(ctx, job.ID)
	var invalid *lifecycle.InvalidTransitionError
	require.ErrorAs(t, err, &invalid, "a draft cannot be closed")

	published, err := h.Publish(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobPublished, published.Status)

	closed, err := h.CloseApplications(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobApplicationsClosed, closed.Status)
	assert.Equal(t, []string{job.ID}, dispatched.submitted())

	cancelled, err := h.Cancel(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCancelled, cancelled.Status)

	_, err = h.Publish(ctx, job.ID)
	assert.ErrorAs(t, err, &invalid)

	_, err = h.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestHost_Delete(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	h := newHost(s, newFakeNotifier(), nil)

	empty := createJob(t, s, 5, 2, 1, models.JobDraft)
	require.NoError(t, h.Delete(ctx, empty.ID))
	assert.ErrorIs(t, h.Delete(ctx, empty.ID), ErrJobNotFound)

	busy := createJob(t, s, 5, 2, 1, models.JobPublished)
	seedApplications(t, s, busy, 50)
	assert.ErrorIs(t, h.Delete(ctx, busy.ID), store.ErrJobHasApplications)
}

// shortlistedJob runs shortlisting over the given ATS scores and returns the
// job with its applications in submission order
func shortlistedJob(t *testing.T, s store.Store, shortlist, final int, ats ...int) (models.Job, []models.Application) {
	t.Helper()
	job := createJob(t, s, len(ats), shortlist, final, models.JobPublished)
	apps := seedApplications(t, s, job, ats...)
	_, err := newOrchestrator(s, newFakeNotifier()).Run(context.Background(), job.ID)
	require.NoError(t, err)
	return job, apps
}

func TestHost_FinalizeAndOffers(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	notifier := newFakeNotifier()
	h := newHost(s, notifier, nil)
	interviews := NewInterviews(s, &fakeInterviewScorer{score: 80}, discardLogger)

	job, apps := shortlistedJob(t, s, 3, 1, 90, 70, 60, 40)

	// 90 and 70 interview; 60 was shortlisted but never interviews
	for _, app := range apps[:2] {
		_, err := interviews.Complete(ctx, InterviewRequest{ApplicationID: app.ID, Transcript: "hello"})
		require.NoError(t, err)
	}

	_, err := h.SendOffers(ctx, job.ID, models.OfferDetails{})
	assert.ErrorIs(t, err, ErrWrongJobState, "offers wait for final selection")

	outcome, err := h.Finalize(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{apps[0].ID}, outcome.Selected)
	assert.Equal(t, []string{apps[1].ID}, outcome.Rejected)
	assert.Equal(t, 1, outcome.NotificationsSent)
	assert.Equal(t, []string{apps[1].ID}, notifier.ids(KindRejection))

	selected, err := s.GetApplication(ctx, apps[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSelected, selected.Status)
	assert.Equal(t, 1, selected.Ranking)

	idle, err := s.GetApplication(ctx, apps[2].ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusShortlisted, idle.Status)
	assert.Equal(t, 0, idle.Ranking)

	afterFinal, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobInterviewsCompleted, afterFinal.Status)

	offers, err := h.SendOffers(ctx, job.ID, models.OfferDetails{Salary: "KES 400,000"})
	require.NoError(t, err)
	assert.Equal(t, []string{apps[0].ID}, offers.Selected)
	assert.Equal(t, 1, offers.NotificationsSent)
	require.Len(t, notifier.offers, 1)
	assert.Equal(t, "Backend Engineer", notifier.offers[0].Position)

	offered, err := s.GetApplication(ctx, apps[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOfferSent, offered.Status)
	assert.True(t, offered.OfferEmailSent)

	afterOffers, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobOffersSent, afterOffers.Status)

	// nothing left to send
	again, err := h.SendOffers(ctx, job.ID, models.OfferDetails{})
	require.NoError(t, err)
	assert.Empty(t, again.Selected)
	assert.Equal(t, 1, notifier.count(KindOffer))

	completed, err := h.Complete(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, completed.Status)
}

func TestHost_FinalizeKeepsManualSelections(t *testing.T) {
	tests := []struct {
		name         string
		final        int
		wantSelected func(apps []models.Application) []string
		wantRejected func(apps []models.Application) []string
	}{
		{
			name:         "Manual pick fills the selection",
			final:        1,
			wantSelected: func(apps []models.Application) []string { return []string{apps[1].ID} },
			wantRejected: func(apps []models.Application) []string { return []string{apps[0].ID} },
		},
		{
			name:         "Manual pick ranks ahead of the rest",
			final:        2,
			wantSelected: func(apps []models.Application) []string { return []string{apps[1].ID, apps[0].ID} },
			wantRejected: func(apps []models.Application) []string { return nil },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := store.NewMemory()
			h := newHost(s, newFakeNotifier(), nil)
			interviews := NewInterviews(s, &fakeInterviewScorer{score: 80}, discardLogger)

			job, apps := shortlistedJob(t, s, 2, tt.final, 90, 70, 40)
			for _, app := range apps[:2] {
				_, err := interviews.Complete(ctx, InterviewRequest{ApplicationID: app.ID, Transcript: "hello"})
				require.NoError(t, err)
			}

			// the host picks the weaker candidate before final ranking
			_, err := h.SetStatus(ctx, apps[1].ID, models.StatusSelected)
			require.NoError(t, err)

			outcome, err := h.Finalize(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSelected(apps), outcome.Selected)
			assert.Equal(t, tt.wantRejected(apps), outcome.Rejected)

			for i, id := range outcome.Selected {
				app, err := s.GetApplication(ctx, id)
				require.NoError(t, err)
				assert.Equal(t, models.StatusSelected, app.Status)
				assert.Equal(t, i+1, app.Ranking)
			}

			all, err := s.ListApplicationsByJob(ctx, job.ID)
			require.NoError(t, err)
			selected := 0
			for _, app := range all {
				if app.Status == models.StatusSelected {
					selected++
				}
			}
			assert.Equal(t, tt.final, selected)

			finalized, err := s.GetJob(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, models.JobInterviewsCompleted, finalized.Status)
		})
	}
}

func TestHost_SetStatusRefusesSelectionBeyondCount(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	h := newHost(s, newFakeNotifier(), nil)
	interviews := NewInterviews(s, &fakeInterviewScorer{score: 80}, discardLogger)

	_, apps := shortlistedJob(t, s, 2, 1, 90, 70, 40)
	for _, app := range apps[:2] {
		_, err := interviews.Complete(ctx, InterviewRequest{ApplicationID: app.ID, Transcript: "hello"})
		require.NoError(t, err)
	}

	_, err := h.SetStatus(ctx, apps[1].ID, models.StatusSelected)
	require.NoError(t, err)

	_, err = h.SetStatus(ctx, apps[0].ID, models.StatusSelected)
	assert.ErrorIs(t, err, ErrSelectionFull)

	// re-applying the current status stays a no-op
	_, err = h.SetStatus(ctx, apps[1].ID, models.StatusSelected)
	assert.NoError(t, err)

	untouched, err := s.GetApplication(ctx, apps[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInterviewCompleted, untouched.Status)
}

func TestHost_SendOffersRetriesFailedSend(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	notifier := newFakeNotifier("a@example.com")
	h := newHost(s, notifier, nil)
	interviews := NewInterviews(s, &fakeInterviewScorer{score: 75}, discardLogger)

	job, apps := shortlistedJob(t, s, 1, 1, 85, 30)
	_, err := interviews.Complete(ctx, InterviewRequest{ApplicationID: apps[0].ID, Transcript: "hi"})
	require.NoError(t, err)
	_, err = h.Finalize(ctx, job.ID)
	require.NoError(t, err)

	first, err := h.SendOffers(ctx, job.ID, models.OfferDetails{})
	require.NoError(t, err)
	assert.Equal(t, 1, first.NotificationsFailed)

	notifier.heal()
	second, err := h.SendOffers(ctx, job.ID, models.OfferDetails{})
	require.NoError(t, err)
	assert.Equal(t, 1, second.NotificationsSent)
	assert.Equal(t, []string{apps[0].ID}, notifier.ids(KindOffer))
}

func TestHost_SetStatus(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	notifier := newFakeNotifier()
	h := newHost(s, notifier, nil)

	early := createJob(t, s, 5, 2, 1, models.JobPublished)
	earlyApps := seedApplications(t, s, early, 50)
	_, err := h.SetStatus(ctx, earlyApps[0].ID, models.StatusShortlisted)
	assert.ErrorIs(t, err, ErrWrongJobState, "manual changes wait for shortlisting")

	_, apps := shortlistedJob(t, s, 1, 1, 90, 20)

	scheduled, err := h.SetStatus(ctx, apps[0].ID, models.StatusInterviewScheduled)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInterviewScheduled, scheduled.Status)
	assert.Equal(t, 1, scheduled.Ranking)

	_, err = h.SetStatus(ctx, apps[1].ID, models.StatusShortlisted)
	var invalid *lifecycle.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "rejected", invalid.From)
	assert.Equal(t, "shortlisted", invalid.To)

	completed, err := h.SetStatus(ctx, apps[0].ID, models.StatusInterviewCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInterviewCompleted, completed.Status)

	rejectionsBefore := notifier.count(KindRejection)
	rejected, err := h.SetStatus(ctx, apps[0].ID, models.StatusRejected)
	require.NoError(t, err)
	assert.True(t, rejected.RejectionEmailSent)
	assert.Equal(t, rejectionsBefore+1, notifier.count(KindRejection))

	_, err = h.SetStatus(ctx, "missing", models.StatusRejected)
	assert.ErrorIs(t, err, ErrApplicationNotFound)
}
