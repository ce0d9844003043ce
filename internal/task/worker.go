package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/moderation-api/internal/domain"
	"github.com/phrazzld/moderation-api/internal/platform/logger"
	"github.com/phrazzld/moderation-api/internal/redact"
	"github.com/phrazzld/moderation-api/internal/store"
)

// DefaultCallTimeout bounds a single backend call.
const DefaultCallTimeout = 60 * time.Second

// Outcome is what a worker did with one job.
type Outcome int

const (
	// OutcomeNone is returned alongside an error when no decision was reached.
	OutcomeNone Outcome = iota
	// OutcomeCompleted means the task moved to completed with its result.
	OutcomeCompleted
	// OutcomeFailed means the task moved to failed with the last error.
	OutcomeFailed
	// OutcomeDuplicate means the task was already completed; nothing was done.
	OutcomeDuplicate
	// OutcomeClaimLost means another actor owned the task; nothing was written.
	OutcomeClaimLost
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeClaimLost:
		return "claim_lost"
	default:
		return "none"
	}
}

// Worker executes a single job against the store and the classifier.
// It holds no per-job state and is safe for concurrent use.
type Worker struct {
	store       store.TaskStore
	classifier  Classifier
	policy      RetryPolicy
	callTimeout time.Duration
	logger      *slog.Logger
}

// NewWorker creates a Worker. A non-positive callTimeout uses DefaultCallTimeout.
func NewWorker(
	taskStore store.TaskStore,
	classifier Classifier,
	policy RetryPolicy,
	callTimeout time.Duration,
	log *slog.Logger,
) (*Worker, error) {
	if taskStore == nil {
		return nil, fmt.Errorf("task store cannot be nil")
	}
	if classifier == nil {
		return nil, fmt.Errorf("classifier cannot be nil")
	}
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	if log == nil {
		log = slog.Default()
	}

	return &Worker{
		store:       taskStore,
		classifier:  classifier,
		policy:      policy,
		callTimeout: callTimeout,
		logger:      log.With("component", "task_worker"),
	}, nil
}

// Process runs one delivery of job through the task lifecycle:
// fetch, idempotency guard, claim, execute with retries, record the outcome.
//
// Once the task is claimed the rest of the work is detached from ctx's
// cancellation, so a shutdown never leaves a half-written outcome. Each
// backend attempt is still bounded by the call timeout.
func (w *Worker) Process(ctx context.Context, job Job) (Outcome, error) {
	log := logger.FromContextOrDefault(ctx, w.logger).With("task_id", job.TaskID)

	t, err := w.store.Get(ctx, job.TaskID)
	if err != nil {
		if store.IsNotFoundError(err) {
			log.Error("dequeued job references a missing task", "error", redact.Error(err))
			return OutcomeNone, fmt.Errorf("%w: %s", ErrTaskMissing, job.TaskID)
		}
		return OutcomeNone, fmt.Errorf("failed to load task: %w", err)
	}

	if t.Status == domain.TaskStatusCompleted {
		log.Info("task already completed, skipping duplicate delivery")
		return OutcomeDuplicate, nil
	}

	claimed, err := w.store.CompareAndSetStatus(ctx, t.ID, domain.TaskStatusPending, domain.TaskStatusProcessing)
	if err != nil {
		return OutcomeNone, fmt.Errorf("failed to claim task: %w", err)
	}
	if !claimed {
		log.Info("task claimed elsewhere, skipping", "status", t.Status)
		return OutcomeClaimLost, nil
	}

	execCtx := context.WithoutCancel(ctx)
	log.Info("processing task", "texts", len(t.Input))
	start := time.Now()

	result, attempts, execErr := w.execute(execCtx, log, t.Input)
	if execErr != nil {
		return w.recordFailure(execCtx, log, t, execErr, attempts)
	}

	ok, err := w.store.Complete(execCtx, t.ID, result)
	if err != nil {
		log.Error("failed to record task result", "error", redact.Error(err))
		return OutcomeNone, fmt.Errorf("failed to complete task: %w", err)
	}
	if !ok {
		log.Warn("task left processing before its result was recorded, result discarded",
			"attempts", attempts)
		return OutcomeClaimLost, nil
	}

	log.Info("task completed",
		"attempts", attempts,
		"duration_ms", time.Since(start).Milliseconds())
	return OutcomeCompleted, nil
}

func (w *Worker) recordFailure(
	ctx context.Context,
	log *slog.Logger,
	t *domain.Task,
	execErr error,
	attempts int,
) (Outcome, error) {
	message := execErr.Error()

	ok, err := w.store.Fail(ctx, t.ID, domain.TaskStatusProcessing, message)
	if err != nil {
		log.Error("failed to record task failure", "error", redact.Error(err), "cause", redact.String(message))
		return OutcomeNone, fmt.Errorf("failed to fail task: %w", err)
	}
	if !ok {
		log.Warn("task left processing before its failure was recorded", "cause", redact.String(message))
		return OutcomeClaimLost, nil
	}

	log.Error("task failed",
		"error", redact.String(message),
		"attempts", attempts,
		"transient", IsTransient(execErr))
	return OutcomeFailed, nil
}

// execute calls the classifier until it succeeds, fails permanently or the
// attempt budget is spent. It returns the number of attempts made.
func (w *Worker) execute(ctx context.Context, log *slog.Logger, texts []string) ([]domain.Prediction, int, error) {
	for attempt := 1; ; attempt++ {
		result, err := w.attempt(ctx, texts)
		if err == nil {
			return result, attempt, nil
		}

		if !w.policy.ShouldRetry(attempt, err) {
			return nil, attempt, err
		}

		log.Warn("classification attempt failed, retrying",
			"attempt", attempt,
			"max_attempts", w.policy.Attempts(),
			"error", redact.Error(err))

		if waitErr := w.policy.Wait(ctx, attempt); waitErr != nil {
			return nil, attempt, err
		}
	}
}

func (w *Worker) attempt(ctx context.Context, texts []string) ([]domain.Prediction, error) {
	callCtx, cancel := context.WithTimeout(ctx, w.callTimeout)
	defer cancel()

	result, err := w.classifier.Predict(callCtx, texts)
	if err != nil {
		// A call that ran out its own deadline is retried whatever the backend
		// made of the interruption.
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && !IsTransient(err) {
			return nil, fmt.Errorf("%w: call timed out after %s: %v", ErrTransientBackend, w.callTimeout, err)
		}
		return nil, err
	}

	if err := domain.CheckResult(texts, result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPermanentBackend, err)
	}
	return result, nil
}
