package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eq-labs/interactions-gateway/pkg/config"
)

// Pool manages the upload workers and the stuck-job reaper.
type Pool struct {
	podID     string
	store     *Store
	processor JobProcessor
	cfg       config.WorkerConfig
	workers   []*Worker
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	started   bool
}

// NewPool creates a worker pool.
func NewPool(podID string, store *Store, processor JobProcessor, cfg config.WorkerConfig) *Pool {
	return &Pool{
		podID:     podID,
		store:     store,
		processor: processor,
		cfg:       cfg,
		workers:   make([]*Worker, 0, cfg.WorkerCount),
		stopCh:    make(chan struct{}),
	}
}

// Start spawns the workers and the stuck-job reaper. Safe to call multiple
// times; subsequent calls are no-ops.
func (p *Pool) Start(ctx context.Context) {
	if p.started {
		slog.Warn("Worker pool already started, ignoring duplicate Start call", "pod_id", p.podID)
		return
	}
	p.started = true

	slog.Info("Starting upload worker pool", "pod_id", p.podID, "worker_count", p.cfg.WorkerCount)

	for i := 0; i < p.cfg.WorkerCount; i++ {
		worker := NewWorker(fmt.Sprintf("%s-worker-%d", p.podID, i), p.store, p.processor, p.cfg)
		p.workers = append(p.workers, worker)
		worker.Start(ctx)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runStuckJobReaper(ctx)
	}()
}

// Stop signals all workers to stop and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	slog.Info("Stopping upload worker pool gracefully")
	for _, worker := range p.workers {
		worker.Stop()
	}
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
	slog.Info("Upload worker pool stopped")
}

// runStuckJobReaper periodically fails processing jobs whose worker died.
// All pods run this independently; the update is idempotent.
func (p *Pool) runStuckJobReaper(ctx context.Context) {
	interval := p.cfg.StuckJobThreshold / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			recovered, err := p.store.RecoverStuck(ctx, p.cfg.StuckJobThreshold)
			if err != nil {
				slog.Error("Stuck job recovery failed", "error", err)
				continue
			}
			if recovered > 0 {
				slog.Warn("Recovered stuck upload jobs", "count", recovered)
			}
		}
	}
}
