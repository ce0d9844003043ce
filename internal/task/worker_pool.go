package task

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/moderation-api/internal/redact"
)

// dequeueErrorBackoff is the pause after a queue read fails, so a broker
// outage does not spin the workers.
const dequeueErrorBackoff = time.Second

// JobHandler processes one job. The context is not cancelled by Stop.
type JobHandler func(ctx context.Context, job Job)

// WorkerPool manages a pool of worker goroutines that pull jobs from a
// queue. Each goroutine handles one job at a time.
type WorkerPool struct {
	// queue provides the jobs to be processed
	queue Queue

	// handler is called for every dequeued job
	handler JobHandler

	// workerCount is the number of concurrent workers to start
	workerCount int

	// wg tracks active worker goroutines for clean shutdown
	wg sync.WaitGroup

	// ctx is cancelled by Stop to end the dequeue loops
	ctx    context.Context
	cancel context.CancelFunc

	logger *slog.Logger
}

// WorkerPoolConfig holds configuration options for the worker pool
type WorkerPoolConfig struct {
	// WorkerCount determines how many concurrent worker goroutines to start
	// If zero or negative, defaults to 1
	WorkerCount int
}

// NewWorkerPool creates a new worker pool with the specified configuration
func NewWorkerPool(queue Queue, handler JobHandler, config WorkerPoolConfig, logger *slog.Logger) *WorkerPool {
	if logger == nil {
		logger = slog.Default()
	}

	workerCount := config.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", 1)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		queue:       queue,
		handler:     handler,
		workerCount: workerCount,
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger,
	}
}

// Start launches the worker goroutines.
func (p *WorkerPool) Start() {
	p.logger.Info("starting worker pool", "worker_count", p.workerCount)

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop ends the dequeue loops and waits for in-flight jobs to finish.
func (p *WorkerPool) Stop() {
	p.logger.Info("stopping worker pool")
	p.cancel()
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	log := p.logger.With("worker_id", id)
	log.Debug("starting worker")

	for {
		job, err := p.queue.Dequeue(p.ctx)
		if err != nil {
			if p.ctx.Err() != nil {
				log.Debug("stopping worker")
				return
			}
			if errors.Is(err, ErrQueueClosed) {
				log.Debug("queue closed, stopping worker")
				return
			}

			log.Error("failed to dequeue job", "error", redact.Error(err))
			select {
			case <-p.ctx.Done():
				return
			case <-time.After(dequeueErrorBackoff):
			}
			continue
		}

		p.handler(context.WithoutCancel(p.ctx), job)
	}
}
