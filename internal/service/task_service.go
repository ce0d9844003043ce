package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/phrazzld/moderation-api/internal/domain"
	"github.com/phrazzld/moderation-api/internal/platform/logger"
	"github.com/phrazzld/moderation-api/internal/redact"
	"github.com/phrazzld/moderation-api/internal/store"
	"github.com/phrazzld/moderation-api/internal/task"
)

// DefaultListLimit is used when a list request asks for no limit or more
// than the configured maximum.
const DefaultListLimit = 50

// Limits bounds what a single submission or list request may ask for.
type Limits struct {
	MaxBatchSize  int
	MaxTextLength int
	MaxListLimit  int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxBatchSize:  100,
		MaxTextLength: 5000,
		MaxListLimit:  DefaultListLimit,
	}
}

// TaskService provides the submission, status and list operations.
type TaskService interface {
	// Submit validates texts, stores a pending task and enqueues it for
	// classification. It returns without waiting for the result.
	Submit(ctx context.Context, texts []string) (*domain.Task, error)

	// Get returns the full task record.
	Get(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// ListRecent returns up to limit task summaries, newest first.
	ListRecent(ctx context.Context, limit int) ([]domain.TaskSummary, error)
}

// TaskServiceError wraps errors from the task service with context.
type TaskServiceError struct {
	// Operation is the operation that failed (e.g., "submit", "get")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for TaskServiceError.
func (e *TaskServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("task service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("task service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *TaskServiceError) Unwrap() error {
	return e.Err
}

// NewTaskServiceError creates a new TaskServiceError.
// Store not-found errors are returned as ErrTaskNotFound without wrapping.
func NewTaskServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTaskNotFound) || store.IsNotFoundError(err) {
		return ErrTaskNotFound
	}
	return &TaskServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

type taskServiceImpl struct {
	store  store.TaskStore
	queue  task.Queue
	limits Limits
	logger *slog.Logger
}

var _ TaskService = (*taskServiceImpl)(nil)

// NewTaskService creates a TaskService. Zero fields in limits fall back to
// DefaultLimits.
func NewTaskService(
	taskStore store.TaskStore,
	queue task.Queue,
	limits Limits,
	log *slog.Logger,
) (TaskService, error) {
	if taskStore == nil {
		return nil, &TaskServiceError{Operation: "create_service", Message: "taskStore cannot be nil"}
	}
	if queue == nil {
		return nil, &TaskServiceError{Operation: "create_service", Message: "queue cannot be nil"}
	}
	if log == nil {
		log = slog.Default()
	}

	defaults := DefaultLimits()
	if limits.MaxBatchSize <= 0 {
		limits.MaxBatchSize = defaults.MaxBatchSize
	}
	if limits.MaxTextLength <= 0 {
		limits.MaxTextLength = defaults.MaxTextLength
	}
	if limits.MaxListLimit <= 0 {
		limits.MaxListLimit = defaults.MaxListLimit
	}

	return &taskServiceImpl{
		store:  taskStore,
		queue:  queue,
		limits: limits,
		logger: log.With(slog.String("component", "task_service")),
	}, nil
}

// Submit implements TaskService.
func (s *taskServiceImpl) Submit(ctx context.Context, texts []string) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := s.validate(texts); err != nil {
		log.Debug("rejected submission", slog.String("reason", err.Error()))
		return nil, err
	}

	t, err := domain.NewTask(texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if err := s.store.Create(ctx, t); err != nil {
		msg := "failed to store task"
		if store.IsDuplicateError(err) {
			msg = "task id collision on insert"
		}
		log.Error(msg,
			slog.String("task_id", t.ID.String()),
			slog.String("error", redact.Error(err)))
		return nil, NewTaskServiceError("submit", "failed to store task", err)
	}

	if err := s.queue.Enqueue(ctx, task.NewJob(t.ID)); err != nil {
		// The task stays pending; recovery re-enqueues it.
		log.Error("failed to enqueue task",
			slog.String("task_id", t.ID.String()),
			slog.String("error", redact.Error(err)))
		return nil, &TaskServiceError{
			Operation: "submit",
			Message:   fmt.Sprintf("task %s stored but not enqueued", t.ID),
			Err:       errors.Join(ErrQueueUnavailable, err),
		}
	}

	log.Info("task submitted",
		slog.String("task_id", t.ID.String()),
		slog.Int("texts", len(t.Input)))
	return t, nil
}

func (s *taskServiceImpl) validate(texts []string) error {
	if err := domain.ValidateInput(texts); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if len(texts) > s.limits.MaxBatchSize {
		return fmt.Errorf("%w: %d texts exceeds the limit of %d",
			ErrInvalidInput, len(texts), s.limits.MaxBatchSize)
	}
	for i, text := range texts {
		if n := utf8.RuneCountInString(text); n > s.limits.MaxTextLength {
			return fmt.Errorf("%w: text %d has %d characters, the limit is %d",
				ErrInvalidInput, i, n, s.limits.MaxTextLength)
		}
	}
	return nil
}

// Get implements TaskService.
func (s *taskServiceImpl) Get(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, NewTaskServiceError("get", "failed to load task", err)
	}
	return t, nil
}

// ListRecent implements TaskService. A limit outside (0, MaxListLimit] is
// clamped to MaxListLimit.
func (s *taskServiceImpl) ListRecent(ctx context.Context, limit int) ([]domain.TaskSummary, error) {
	if limit <= 0 || limit > s.limits.MaxListLimit {
		limit = s.limits.MaxListLimit
	}
	summaries, err := s.store.ListRecent(ctx, limit)
	if err != nil {
		return nil, NewTaskServiceError("list_recent", "failed to list tasks", err)
	}
	return summaries, nil
}
