package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fmuoria/shortlist-agent/internal/capacity"
	"github.com/fmuoria/shortlist-agent/internal/models"
	"github.com/fmuoria/shortlist-agent/internal/ratelimit"
	"github.com/fmuoria/shortlist-agent/internal/store"
)

func newIntake(s store.Store, scorer *fakeResumeScorer, d Submitter, l ratelimit.Limiter) *Intake {
	opts := capacity.Options{MaxTries: 200, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
	return NewIntake(s, capacity.NewGuard(s, opts, discardLogger), scorer, d, l, nil, discardLogger)
}

func request(jobID, user string) ApplicationRequest {
	return ApplicationRequest{
		JobID:          jobID,
		UserID:         user,
		CandidateName:  " Wanjiku ",
		CandidateEmail: user + "@example.com",
		ResumeText:     "cv",
	}
}

func TestIntake_PendingInterviewKeepsATSScore(t *testing.T) {
	s := store.NewMemory()
	job := createJob(t, s, 10, 5, 2, models.JobPublished)
	intake := newIntake(s, &fakeResumeScorer{scores: map[string]int{"cv": 65}}, nil, nil)

	app, err := intake.Submit(context.Background(), request(job.ID, "u1"))
	require.NoError(t, err)
	assert.Equal(t, 65, app.ATSScore)
	assert.Equal(t, 65, app.FinalScore)
	assert.Nil(t, app.VoiceInterviewScore)
	assert.Equal(t, models.StatusApplied, app.Status)
	assert.Equal(t, "Wanjiku", app.CandidateName)
	assert.NotEmpty(t, app.ID)

	stored, err := s.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobApplicationsOpen, stored.Status)
	assert.Equal(t, 1, stored.CurrentApplications)
}

func TestIntake_Refusals(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	open := createJob(t, s, 10, 5, 2, models.JobPublished)
	draft := createJob(t, s, 10, 5, 2, models.JobDraft)
	scorer := &fakeResumeScorer{scores: map[string]int{"cv": 50}}
	intake := newIntake(s, scorer, nil, nil)

	_, err := intake.Submit(ctx, request(open.ID, "dup"))
	require.NoError(t, err)
	callsAfterFirst := scorer.calls

	tests := []struct {
		name    string
		req     ApplicationRequest
		wantErr error
	}{
		{name: "Duplicate user", req: request(open.ID, "dup"), wantErr: store.ErrDuplicateApplication},
		{name: "Draft job", req: request(draft.ID, "u2"), wantErr: capacity.ErrApplicationsClosed},
		{name: "Unknown job", req: request("missing", "u3"), wantErr: ErrJobNotFound},
		{name: "Missing resume", req: ApplicationRequest{JobID: open.ID, UserID: "u4", CandidateEmail: "u4@example.com"}, wantErr: ErrInvalidInput},
		{name: "Missing email", req: ApplicationRequest{JobID: open.ID, UserID: "u5", ResumeText: "cv"}, wantErr: ErrInvalidInput},
		{name: "Raw PDF resume", req: ApplicationRequest{JobID: open.ID, UserID: "u6", CandidateEmail: "u6@example.com", ResumeText: "%PDF-1.7\n%%EOF"}, wantErr: ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := intake.Submit(ctx, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Equal(t, callsAfterFirst, scorer.calls, "refused submissions are never scored")
}

func TestIntake_ScoringFailureRecordsNothing(t *testing.T) {
	s := store.NewMemory()
	job := createJob(t, s, 10, 5, 2, models.JobPublished)
	intake := newIntake(s, &fakeResumeScorer{err: errors.New("quota exceeded")}, nil, nil)

	_, err := intake.Submit(context.Background(), request(job.ID, "u1"))
	assert.ErrorContains(t, err, "failed to score resume")

	stored, err := s.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.CurrentApplications)
}

func TestIntake_RateLimited(t *testing.T) {
	s := store.NewMemory()
	job := createJob(t, s, 10, 5, 2, models.JobPublished)
	intake := newIntake(s, &fakeResumeScorer{}, nil, ratelimit.NewMemoryLimiter(1, time.Hour))

	_, err := intake.Submit(context.Background(), request(job.ID, "u1"))
	require.NoError(t, err)

	other := request(job.ID, "u1")
	other.JobID = createJob(t, s, 10, 5, 2, models.JobPublished).ID
	_, err = intake.Submit(context.Background(), other)
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestIntake_ConcurrentSubmissionsDispatchOnce(t *testing.T) {
	s := store.NewMemory()
	job := createJob(t, s, 10, 3, 1, models.JobPublished)
	dispatched := &recordingSubmitter{}
	intake := newIntake(s, &fakeResumeScorer{}, dispatched, nil)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		closed   int
	)
	for i := 0; i < 15; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := intake.Submit(context.Background(), request(job.ID, fmt.Sprintf("user-%d", i)))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, capacity.ErrApplicationsClosed):
				closed++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, accepted)
	assert.Equal(t, 5, closed)
	assert.Equal(t, []string{job.ID}, dispatched.submitted())

	apps, err := s.ListApplicationsByJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Len(t, apps, 10)
}

func TestIsBinaryText(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{name: "Plain resume", text: "Jane Doe\nSoftware Engineer\tNairobi\n5 years Go", want: false},
		{name: "Stray control character", text: "John Doe - Engineer\x00\nExperience: 5 years\nEducation: BSc", want: false},
		{name: "PDF header", text: "%PDF-1.4\n1 0 obj", want: true},
		{name: "DOCX archive", text: "PK\x03\x04\x14\x00", want: true},
		{name: "Mostly control characters", text: strings.Repeat("\x01", 400) + strings.Repeat("x", 600), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isBinaryText(tt.text))
		})
	}
}
