package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/eq-labs/interactions-gateway/pkg/config"
)

// JobProcessor executes one claimed job. Implemented by Processor; stubbed
// in tests.
type JobProcessor interface {
	Process(ctx context.Context, job *Job) ExecutionResult
}

// Worker is a single queue worker that polls for and processes upload jobs.
type Worker struct {
	id        string
	store     *Store
	processor JobProcessor
	cfg       config.WorkerConfig
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewWorker creates a queue worker.
func NewWorker(id string, store *Store, processor JobProcessor, cfg config.WorkerConfig) *Worker {
	return &Worker{
		id:        id,
		store:     store,
		processor: processor,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the worker polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for it to finish its current job.
// Safe to call multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id)
	log.Info("Upload worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("Upload worker shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, upload worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, ErrNoJobsAvailable) {
					w.sleep(w.pollInterval())
					continue
				}
				log.Error("Error processing upload job", "error", err)
				w.sleep(time.Second)
			}
		}
	}
}

// sleep waits for the given duration or until stop is signalled.
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollAndProcess claims one job, runs it under the job timeout, and records
// the terminal status.
func (w *Worker) pollAndProcess(ctx context.Context) error {
	job, err := w.store.Claim(ctx, w.id)
	if err != nil {
		return err
	}

	log := slog.With("job_id", job.ID, "tenant_id", job.TenantID, "worker_id", w.id)
	log.Info("Upload job claimed", "filename", job.Filename)

	jobCtx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	defer cancel()

	result := w.processor.Process(jobCtx, job)

	if result.Failed() && errors.Is(jobCtx.Err(), context.DeadlineExceeded) {
		result = failure(ErrCodeProcessingTimeout,
			fmt.Errorf("job timed out after %v", w.cfg.JobTimeout))
	}

	// Terminal writes use a background context: jobCtx may already be dead.
	if result.Failed() {
		log.Warn("Upload job failed", "error_code", result.ErrCode, "error", result.Err)
		if err := w.store.MarkFailed(context.Background(), job.ID, result.ErrCode, result.Err.Error()); err != nil {
			return err
		}
		return nil
	}

	if err := w.store.MarkSucceeded(context.Background(), job.ID, result.Summary); err != nil {
		return err
	}
	log.Info("Upload job complete", "interaction_id", result.InteractionID)
	return nil
}

// pollInterval returns the poll duration with jitter.
func (w *Worker) pollInterval() time.Duration {
	base := w.cfg.PollInterval
	jitter := w.cfg.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}
