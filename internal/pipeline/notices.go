package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/fmuoria/shortlist-agent/internal/logging"
	"github.com/fmuoria/shortlist-agent/internal/metrics"
	"github.com/fmuoria/shortlist-agent/internal/models"
	"github.com/fmuoria/shortlist-agent/internal/notify"
	"github.com/fmuoria/shortlist-agent/internal/store"
)

// Notification kinds, also used as metric labels
const (
	KindShortlist = "shortlist"
	KindRejection = "rejection"
	KindOffer     = "offer"
)

// errAlreadyClaimed means another sender owns this notice
var errAlreadyClaimed = errors.New("notice already claimed")

// notice is one candidate notification owed to an application
type notice struct {
	kind  string
	app   models.Application
	offer models.OfferDetails
}

// delivery sends notices and keeps the *EmailSent flags in step with them
type delivery struct {
	store       store.Store
	notifier    notify.Notifier
	metrics     *metrics.Collector
	logger      *slog.Logger
	concurrency int
}

// deliver sends notices in parallel and returns how many were sent and how
// many failed. Notices another sender already claimed count as neither.
func (d *delivery) deliver(ctx context.Context, job models.Job, notices []notice) (sent, failed int) {
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(d.concurrency, 1))
	for _, n := range notices {
		g.Go(func() error {
			err := d.send(gctx, job, n)
			if errors.Is(err, errAlreadyClaimed) {
				return nil
			}
			d.metrics.RecordNotification(n.kind, err)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				d.logger.Warn("failed to notify candidate",
					slog.String("job_id", job.ID),
					slog.String("application_id", n.app.ID),
					slog.String("kind", n.kind),
					logging.Err(err))
				return nil
			}
			sent++
			return nil
		})
	}
	// workers never return errors
	_ = g.Wait()
	return sent, failed
}

// send claims the notice by setting its flag, sends it, and releases the
// claim when the send fails so a later sweep can try again
func (d *delivery) send(ctx context.Context, job models.Job, n notice) error {
	if _, err := d.setFlag(ctx, n, true); err != nil {
		return err
	}

	var err error
	switch n.kind {
	case KindShortlist:
		err = d.notifier.SendShortlist(ctx, n.app, job)
	case KindRejection:
		err = d.notifier.SendRejection(ctx, n.app, job)
	case KindOffer:
		err = d.notifier.SendOffer(ctx, n.app, job, n.offer)
	default:
		err = fmt.Errorf("unknown notice kind %q", n.kind)
	}
	if err == nil {
		return nil
	}

	// the run context may be done; releasing must still happen
	if _, relErr := d.setFlag(context.WithoutCancel(ctx), n, false); relErr != nil {
		d.logger.Error("failed to release notice claim",
			slog.String("application_id", n.app.ID),
			slog.String("kind", n.kind),
			logging.Err(relErr))
	}
	return err
}

// setFlag moves the notice's flag to value. Claiming a flag that is already
// set returns errAlreadyClaimed.
func (d *delivery) setFlag(ctx context.Context, n notice, value bool) (models.Application, error) {
	return mutateApplication(ctx, d.store, n.app.ID, func(app models.Application) (models.Application, bool, error) {
		flag := noticeFlag(&app, n.kind)
		if flag == nil {
			return app, false, fmt.Errorf("unknown notice kind %q", n.kind)
		}
		if *flag == value {
			if value {
				return app, false, errAlreadyClaimed
			}
			return app, false, nil
		}
		*flag = value
		return app, true, nil
	})
}

func noticeFlag(app *models.Application, kind string) *bool {
	switch kind {
	case KindShortlist:
		return &app.ShortlistEmailSent
	case KindRejection:
		return &app.RejectionEmailSent
	case KindOffer:
		return &app.OfferEmailSent
	default:
		return nil
	}
}
