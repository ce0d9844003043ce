package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/moderation-api/internal/domain"
	"github.com/phrazzld/moderation-api/internal/redact"
	"github.com/phrazzld/moderation-api/internal/store"
	"github.com/robfig/cron/v3"
)

// recoverBatchLimit caps how many pending tasks one recovery pass re-enqueues.
const recoverBatchLimit = 10000

// RunnerConfig holds configuration for the task runner
type RunnerConfig struct {
	// WorkerCount determines how many concurrent workers process jobs
	WorkerCount int

	// RecoverOnStart re-enqueues every pending task when the runner starts
	RecoverOnStart bool

	// StuckTaskAge enables the reconciliation sweep when positive. Tasks in
	// processing for longer are failed. It must exceed the longest time a
	// worker can legitimately hold a task.
	StuckTaskAge time.Duration

	// StalePendingAge is how long a task may sit in pending before the sweep
	// re-enqueues it
	StalePendingAge time.Duration

	// SweepSchedule is a cron expression, e.g. "@every 5m"
	SweepSchedule string

	// SweepBatchSize bounds the tasks handled per status per sweep
	SweepBatchSize int
}

// DefaultRunnerConfig returns a RunnerConfig with reasonable defaults.
// The sweep is disabled.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		WorkerCount:     2,
		RecoverOnStart:  true,
		StalePendingAge: 10 * time.Minute,
		SweepSchedule:   "@every 5m",
		SweepBatchSize:  100,
	}
}

// SweepReport summarizes one reconciliation pass.
type SweepReport struct {
	Requeued int
	Failed   int
}

// Runner owns the worker pool and the reconciliation schedule.
type Runner struct {
	store  store.TaskStore
	queue  Queue
	worker *Worker
	pool   *WorkerPool
	cron   *cron.Cron
	config RunnerConfig
	logger *slog.Logger
	now    func() time.Time

	// requeuedAt remembers when the sweep last re-enqueued each pending task.
	sweepMu    sync.Mutex
	requeuedAt map[uuid.UUID]time.Time

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewRunner creates a Runner. It does not start any goroutines.
func NewRunner(
	taskStore store.TaskStore,
	queue Queue,
	worker *Worker,
	config RunnerConfig,
	logger *slog.Logger,
) (*Runner, error) {
	if taskStore == nil {
		return nil, fmt.Errorf("task store cannot be nil")
	}
	if queue == nil {
		return nil, fmt.Errorf("queue cannot be nil")
	}
	if worker == nil {
		return nil, fmt.Errorf("worker cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.SweepBatchSize <= 0 {
		config.SweepBatchSize = DefaultRunnerConfig().SweepBatchSize
	}
	logger = logger.With("component", "task_runner")

	r := &Runner{
		store:  taskStore,
		queue:  queue,
		worker: worker,
		config: config,
		logger: logger,
		now:    time.Now,
	}
	r.pool = NewWorkerPool(queue, r.handle, WorkerPoolConfig{WorkerCount: config.WorkerCount}, logger)

	if config.StuckTaskAge > 0 {
		cl := cronLogger{logger: logger}
		r.cron = cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		)
		if _, err := r.cron.AddFunc(config.SweepSchedule, func() {
			if _, err := r.Sweep(context.Background()); err != nil {
				logger.Error("reconciliation sweep failed", "error", redact.Error(err))
			}
		}); err != nil {
			return nil, fmt.Errorf("invalid sweep schedule %q: %w", config.SweepSchedule, err)
		}
	}

	return r, nil
}

// Start starts the workers, recovers pending tasks if configured, and starts
// the sweep schedule.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started || r.stopped {
		return fmt.Errorf("runner already started")
	}

	// Workers run before recovery so a bounded queue drains while it refills.
	r.pool.Start()

	if r.config.RecoverOnStart {
		if _, err := r.Recover(ctx); err != nil {
			r.pool.Stop()
			r.stopped = true
			return fmt.Errorf("failed to recover tasks: %w", err)
		}
	}

	if r.cron != nil {
		r.cron.Start()
		r.logger.Info("reconciliation sweep scheduled",
			"schedule", r.config.SweepSchedule,
			"stuck_task_age", r.config.StuckTaskAge,
			"stale_pending_age", r.config.StalePendingAge)
	}

	r.started = true
	return nil
}

// Stop halts the schedule and waits for running sweeps and in-flight jobs.
// A stopped runner cannot be restarted.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		return
	}
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
	r.pool.Stop()
	r.started = false
	r.stopped = true
}

// Recover re-enqueues every pending task. Duplicates of jobs still in the
// queue are harmless: only one delivery can claim the task.
func (r *Runner) Recover(ctx context.Context) (int, error) {
	pending, err := r.store.ListByStatus(ctx, domain.TaskStatusPending, 0, recoverBatchLimit)
	if err != nil {
		return 0, fmt.Errorf("failed to get pending tasks: %w", err)
	}

	requeued := r.requeue(ctx, pending)
	r.logger.Info("recovered pending tasks", "pending_count", len(pending), "requeued", requeued)
	if len(pending) == recoverBatchLimit {
		r.logger.Warn("recovery hit its batch limit, remaining tasks wait for the next pass",
			"limit", recoverBatchLimit)
	}
	return requeued, nil
}

// Sweep re-enqueues stale pending tasks and fails tasks stuck in processing
// longer than StuckTaskAge. It never moves a task back to pending. With
// StuckTaskAge unset it does nothing.
func (r *Runner) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	if r.config.StuckTaskAge <= 0 {
		return report, nil
	}

	stale, err := r.store.ListByStatus(ctx, domain.TaskStatusPending, r.config.StalePendingAge, r.config.SweepBatchSize)
	if err != nil {
		return report, fmt.Errorf("failed to list stale pending tasks: %w", err)
	}
	report.Requeued = r.requeueStale(ctx, stale)

	stuck, err := r.store.ListByStatus(ctx, domain.TaskStatusProcessing, r.config.StuckTaskAge, r.config.SweepBatchSize)
	if err != nil {
		return report, fmt.Errorf("failed to list stuck tasks: %w", err)
	}

	message := fmt.Sprintf("task abandoned: no progress for %s", r.config.StuckTaskAge)
	for _, t := range stuck {
		ok, err := r.store.Fail(ctx, t.ID, domain.TaskStatusProcessing, message)
		if err != nil {
			r.logger.Error("failed to fail stuck task", "task_id", t.ID, "error", redact.Error(err))
			continue
		}
		if ok {
			report.Failed++
			r.logger.Warn("failed stuck task", "task_id", t.ID, "processing_since", t.UpdatedAt)
		}
	}

	if report.Requeued > 0 || report.Failed > 0 {
		r.logger.Info("reconciliation sweep finished",
			"requeued", report.Requeued,
			"failed", report.Failed)
	}
	return report, nil
}

func (r *Runner) requeue(ctx context.Context, tasks []*domain.Task) int {
	requeued := 0
	for _, t := range tasks {
		if err := r.queue.Enqueue(ctx, NewJob(t.ID)); err != nil {
			r.logger.Error("failed to requeue pending task", "task_id", t.ID, "error", redact.Error(err))
			continue
		}
		requeued++
	}
	return requeued
}

// requeueStale re-enqueues stale pending tasks, skipping any this runner
// already re-enqueued within StalePendingAge. Enqueueing does not touch
// updated_at, so without this a backlog older than StalePendingAge would be
// pushed again on every pass.
func (r *Runner) requeueStale(ctx context.Context, tasks []*domain.Task) int {
	r.sweepMu.Lock()
	defer r.sweepMu.Unlock()

	now := r.now()
	kept := make(map[uuid.UUID]time.Time, len(tasks))
	requeued := 0
	for _, t := range tasks {
		if last, ok := r.requeuedAt[t.ID]; ok && now.Sub(last) < r.config.StalePendingAge {
			kept[t.ID] = last
			continue
		}
		if err := r.queue.Enqueue(ctx, NewJob(t.ID)); err != nil {
			r.logger.Error("failed to requeue pending task", "task_id", t.ID, "error", redact.Error(err))
			continue
		}
		kept[t.ID] = now
		requeued++
	}
	// Tasks that left pending drop out here.
	r.requeuedAt = kept
	return requeued
}

// handle is the pool's job handler.
func (r *Runner) handle(ctx context.Context, job Job) {
	outcome, err := r.worker.Process(ctx, job)
	if err != nil {
		if errors.Is(err, ErrTaskMissing) {
			if dl, ok := r.queue.(DeadLetterer); ok {
				if dlErr := dl.DeadLetter(ctx, job, err.Error()); dlErr != nil {
					r.logger.Error("failed to dead-letter job", "task_id", job.TaskID, "error", redact.Error(dlErr))
				}
			}
		}
		r.logger.Error("job processing failed", "task_id", job.TaskID, "error", redact.Error(err))
		return
	}

	r.logger.Debug("job handled", "task_id", job.TaskID, "outcome", outcome.String())
}

// cronLogger routes cron's logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]interface{}{"error", redact.Error(err)}, keysAndValues...)...)
}
