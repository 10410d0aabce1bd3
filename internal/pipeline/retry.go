package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/fmuoria/shortlist-agent/internal/lifecycle"
	"github.com/fmuoria/shortlist-agent/internal/models"
	"github.com/fmuoria/shortlist-agent/internal/store"
)

const (
	conflictMaxTries       = 10
	conflictInitialBackoff = 10 * time.Millisecond
	conflictMaxBackoff     = 500 * time.Millisecond
)

// retryOnConflict runs op again while it fails with store.ErrVersionConflict
func retryOnConflict[T any](ctx context.Context, op func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = conflictInitialBackoff
	b.MaxInterval = conflictMaxBackoff

	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && !errors.Is(err, store.ErrVersionConflict) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(conflictMaxTries))
}

// mutateApplication re-reads the application, applies fn and writes it back,
// retrying when another writer bumped the version in between. fn returning
// false skips the write.
func mutateApplication(ctx context.Context, s store.Store, id string,
	fn func(app models.Application) (models.Application, bool, error)) (models.Application, error) {
	return retryOnConflict(ctx, func() (models.Application, error) {
		current, err := s.GetApplication(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return models.Application{}, fmt.Errorf("%s: %w", id, ErrApplicationNotFound)
			}
			return models.Application{}, err
		}

		next, write, err := fn(current)
		if err != nil || !write {
			return current, err
		}
		return s.UpdateApplication(ctx, next)
	})
}

// mutateJob is mutateApplication for jobs
func mutateJob(ctx context.Context, s store.Store, id string,
	fn func(job models.Job) (models.Job, bool, error)) (models.Job, error) {
	return retryOnConflict(ctx, func() (models.Job, error) {
		current, err := s.GetJob(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return models.Job{}, fmt.Errorf("%s: %w", id, ErrJobNotFound)
			}
			return models.Job{}, err
		}

		next, write, err := fn(current)
		if err != nil || !write {
			return current, err
		}
		return s.UpdateJob(ctx, next)
	})
}

// transitionApplication moves one application to target with the given
// ranking and reports whether its status actually changed
func transitionApplication(ctx context.Context, s store.Store, id string,
	target models.ApplicationStatus, ranking int) (models.Application, bool, error) {
	changed := false
	app, err := mutateApplication(ctx, s, id, func(app models.Application) (models.Application, bool, error) {
		next, err := lifecycle.Transition(app, target)
		if err != nil {
			return app, false, err
		}
		changed = app.Status != target
		if !changed && app.Ranking == ranking {
			return app, false, nil
		}
		next.Ranking = ranking
		return next, true, nil
	})
	return app, changed, err
}
