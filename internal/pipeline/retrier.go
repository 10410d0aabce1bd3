package pipeline

import (
	"context"
	"log/slog"

	"github.com/fmuoria/shortlist-agent/internal/metrics"
	"github.com/fmuoria/shortlist-agent/internal/models"
	"github.com/fmuoria/shortlist-agent/internal/notify"
	"github.com/fmuoria/shortlist-agent/internal/store"
)

// RetryOutcome counts what one sweep did
type RetryOutcome struct {
	Attempted int `json:"attempted"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
}

// Retrier resends shortlist and rejection notices whose earlier send failed.
// Offers carry host-supplied details and are resent through Host.SendOffers.
type Retrier struct {
	delivery *delivery
	logger   *slog.Logger
}

// NewRetrier creates a notification retrier
func NewRetrier(s store.Store, n notify.Notifier, m *metrics.Collector, concurrency int, logger *slog.Logger) *Retrier {
	if m == nil {
		m = metrics.NewCollector(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrier{
		delivery: &delivery{store: s, notifier: n, metrics: m, logger: logger, concurrency: concurrency},
		logger:   logger,
	}
}

// Sweep makes one delivery attempt for every notice still owed. Jobs that
// have not finished shortlisting are skipped; their run sends its own notices.
func (r *Retrier) Sweep(ctx context.Context) (RetryOutcome, error) {
	var outcome RetryOutcome

	jobs, err := r.delivery.store.ListJobs(ctx)
	if err != nil {
		return outcome, err
	}

	for _, job := range jobs {
		if !owesNotices(job.Status) {
			continue
		}
		apps, err := r.delivery.store.ListApplicationsByJob(ctx, job.ID)
		if err != nil {
			return outcome, err
		}

		var notices []notice
		for _, app := range apps {
			if n, ok := pendingNotice(app); ok {
				notices = append(notices, n)
			}
		}
		if len(notices) == 0 {
			continue
		}

		sent, failed := r.delivery.deliver(ctx, job, notices)
		outcome.Attempted += len(notices)
		outcome.Sent += sent
		outcome.Failed += failed
	}

	if outcome.Attempted > 0 {
		r.logger.Info("notification retry sweep finished",
			slog.Int("attempted", outcome.Attempted),
			slog.Int("sent", outcome.Sent),
			slog.Int("failed", outcome.Failed))
	}
	return outcome, nil
}

func owesNotices(status models.JobStatus) bool {
	switch status {
	case models.JobInterviewsActive, models.JobInterviewsCompleted, models.JobOffersSent, models.JobCompleted:
		return true
	default:
		return false
	}
}

// pendingNotice returns the notice an application's current status calls for
// when it has not been delivered yet
func pendingNotice(app models.Application) (notice, bool) {
	switch {
	case app.Status == models.StatusShortlisted && !app.ShortlistEmailSent:
		return notice{kind: KindShortlist, app: app}, true
	case app.Status == models.StatusRejected && !app.RejectionEmailSent:
		return notice{kind: KindRejection, app: app}, true
	default:
		return notice{}, false
	}
}
