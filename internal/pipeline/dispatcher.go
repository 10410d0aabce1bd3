package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/fmuoria/shortlist-agent/internal/logging"
	"github.com/fmuoria/shortlist-agent/internal/metrics"
	"github.com/fmuoria/shortlist-agent/internal/models"
	"github.com/fmuoria/shortlist-agent/internal/store"
)

var (
	// ErrDispatcherClosed is returned by Submit after Stop
	ErrDispatcherClosed = errors.New("dispatcher is closed")
	// ErrDispatcherNotStarted is returned by Submit before Start
	ErrDispatcherNotStarted = errors.New("dispatcher not started")
	// ErrQueueFull is returned when no queue slot is free; the job stays
	// applications_closed and is picked up again by RecoverPending
	ErrQueueFull = errors.New("dispatch queue is full")
)

// Runner executes shortlisting for one job
type Runner interface {
	Run(ctx context.Context, jobID string) (models.ShortlistOutcome, error)
}

// Dispatcher runs shortlisting in the background on a fixed set of workers.
// A job id that is already queued or running is not queued again.
type Dispatcher struct {
	runner  Runner
	metrics *metrics.Collector
	logger  *slog.Logger

	taskCh chan string
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu       sync.Mutex
	started  bool
	stopped  bool
	inFlight map[string]bool
}

// NewDispatcher creates a dispatcher with room for bufferSize queued jobs
func NewDispatcher(runner Runner, bufferSize int, m *metrics.Collector, logger *slog.Logger) *Dispatcher {
	if bufferSize < 1 {
		bufferSize = 1
	}
	if m == nil {
		m = metrics.NewCollector(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		runner:   runner,
		metrics:  m,
		logger:   logger,
		taskCh:   make(chan string, bufferSize),
		stopCh:   make(chan struct{}),
		inFlight: make(map[string]bool),
	}
}

// Start launches workerCount workers; runs inherit ctx
func (d *Dispatcher) Start(ctx context.Context, workerCount int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return errors.New("dispatcher already started")
	}
	if workerCount < 1 {
		workerCount = 1
	}

	for i := 0; i < workerCount; i++ {
		d.wg.Add(1)
		go func(id int) {
			defer d.wg.Done()
			d.work(ctx, id)
		}(i)
	}

	d.started = true
	return nil
}

// Submit queues jobID for shortlisting without blocking
func (d *Dispatcher) Submit(jobID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return ErrDispatcherNotStarted
	}
	if d.stopped {
		return ErrDispatcherClosed
	}
	if d.inFlight[jobID] {
		return nil
	}

	select {
	case d.taskCh <- jobID:
		d.inFlight[jobID] = true
		d.metrics.SetQueueDepth(len(d.taskCh))
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop stops accepting work and waits for running jobs to finish. Jobs still
// queued are dropped; their status is unchanged so RecoverPending finds them.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.started || d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()

	close(d.stopCh)
	d.wg.Wait()
}

// RecoverPending queues every job left in applications_closed, typically by
// a previous process that stopped before shortlisting ran
func (d *Dispatcher) RecoverPending(ctx context.Context, s store.Store) (int, error) {
	jobs, err := s.ListJobs(ctx)
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, job := range jobs {
		if job.Status != models.JobApplicationsClosed {
			continue
		}
		if err := d.Submit(job.ID); err != nil {
			return queued, err
		}
		queued++
	}
	return queued, nil
}

func (d *Dispatcher) work(ctx context.Context, id int) {
	for {
		select {
		case <-d.stopCh:
			return
		case <-ctx.Done():
			return
		case jobID := <-d.taskCh:
			d.metrics.SetQueueDepth(len(d.taskCh))
			d.runOne(ctx, id, jobID)
		}
	}
}

func (d *Dispatcher) runOne(ctx context.Context, worker int, jobID string) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("shortlisting worker panic",
				slog.Int("worker", worker),
				slog.String("job_id", jobID),
				slog.Any("panic", r))
		}
		d.mu.Lock()
		delete(d.inFlight, jobID)
		d.mu.Unlock()
	}()

	if _, err := d.runner.Run(ctx, jobID); err != nil {
		d.logger.Warn("background shortlisting failed",
			slog.Int("worker", worker),
			slog.String("job_id", jobID),
			logging.Err(err))
	}
}
