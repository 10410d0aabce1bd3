package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/fmuoria/shortlist-agent/internal/models"
	"github.com/fmuoria/shortlist-agent/internal/scoring"
	"github.com/fmuoria/shortlist-agent/internal/store"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeNotifier records every send and fails for emails listed in failFor
type fakeNotifier struct {
	mu      sync.Mutex
	sent    map[string][]string // kind -> application ids
	failFor map[string]bool
	offers  []models.OfferDetails
}

func newFakeNotifier(failFor ...string) *fakeNotifier {
	f := &fakeNotifier{sent: make(map[string][]string), failFor: make(map[string]bool)}
	for _, email := range failFor {
		f.failFor[email] = true
	}
	return f
}

func (f *fakeNotifier) record(kind string, app models.Application) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[app.CandidateEmail] {
		return errors.New("smtp unavailable")
	}
	f.sent[kind] = append(f.sent[kind], app.ID)
	return nil
}

func (f *fakeNotifier) SendShortlist(_ context.Context, app models.Application, _ models.Job) error {
	return f.record(KindShortlist, app)
}

func (f *fakeNotifier) SendRejection(_ context.Context, app models.Application, _ models.Job) error {
	return f.record(KindRejection, app)
}

func (f *fakeNotifier) SendOffer(_ context.Context, app models.Application, _ models.Job, offer models.OfferDetails) error {
	f.mu.Lock()
	f.offers = append(f.offers, offer)
	f.mu.Unlock()
	return f.record(KindOffer, app)
}

func (f *fakeNotifier) heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failFor = make(map[string]bool)
}

func (f *fakeNotifier) count(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent[kind])
}

func (f *fakeNotifier) ids(kind string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent[kind]...)
}

// fakeResumeScorer scores a resume by looking its text up in scores
type fakeResumeScorer struct {
	mu     sync.Mutex
	scores map[string]int
	calls  int
	err    error
}

func (f *fakeResumeScorer) Score(_ context.Context, in scoring.ResumeInput) (scoring.ResumeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return scoring.ResumeResult{}, f.err
	}
	return scoring.ResumeResult{
		ATSScore: f.scores[in.ResumeText],
		Feedback: models.ResumeFeedback{Summary: "scored"},
	}, nil
}

type fakeInterviewScorer struct {
	score int
	calls int
}

func (f *fakeInterviewScorer) Score(_ context.Context, _ scoring.InterviewInput) (scoring.InterviewResult, error) {
	f.calls++
	return scoring.InterviewResult{
		OverallPerformance: f.score,
		Feedback:           models.InterviewFeedback{CommunicationSkills: f.score, Summary: "solid"},
	}, nil
}

// recordingSubmitter captures dispatched job ids instead of running them
type recordingSubmitter struct {
	mu   sync.Mutex
	jobs []string
}

func (r *recordingSubmitter) Submit(jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, jobID)
	return nil
}

func (r *recordingSubmitter) submitted() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.jobs...)
}

func createJob(t *testing.T, s store.Store, target, shortlist, final int, status models.JobStatus) models.Job {
	t.Helper()
	job, err := s.CreateJob(context.Background(), models.Job{
		ID:                     uuid.NewString(),
		Title:                  "Backend Engineer",
		TargetApplications:     target,
		MaxCandidatesShortlist: shortlist,
		FinalSelectionCount:    final,
		Status:                 status,
		CreatedAt:              time.Now().UTC(),
	})
	require.NoError(t, err)
	return job
}

// seedApplications stores one applied application per ATS score, in order,
// and leaves the job applications_closed with the matching count
func seedApplications(t *testing.T, s store.Store, job models.Job, atsScores ...int) []models.Application {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	var apps []models.Application
	for i, ats := range atsScores {
		current, err := s.GetJob(ctx, job.ID)
		require.NoError(t, err)
		current.CurrentApplications++
		if current.CurrentApplications >= current.TargetApplications {
			current.Status = models.JobApplicationsClosed
		} else {
			current.Status = models.JobApplicationsOpen
		}
		_, app, err := s.RecordApplication(ctx, current, models.Application{
			ID:             job.ID + "-app-" + string(rune('a'+i)),
			JobID:          job.ID,
			UserID:         "user-" + string(rune('a'+i)),
			CandidateEmail: string(rune('a'+i)) + "@example.com",
			ATSScore:       ats,
			FinalScore:     scoring.Combine(ats, nil),
			Status:         models.StatusApplied,
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
		apps = append(apps, app)
	}
	return apps
}
