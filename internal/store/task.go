package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/moderation-api/internal/domain"
)

// TaskStore defines the interface for classification task persistence.
// Version: 1.0
type TaskStore interface {
	// Create inserts a new task.
	// Returns ErrDuplicateTaskID if a task with the same ID already exists.
	Create(ctx context.Context, task *domain.Task) error

	// Get retrieves a task by its unique ID.
	// Returns ErrTaskNotFound if the task does not exist.
	Get(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// CompareAndSetStatus atomically moves a task from expected to next and
	// reports whether the transition happened. It never reads then writes:
	// implementations apply the check and the update as one operation.
	// Terminal targets are rejected with ErrInvalidTransition; use Complete or Fail.
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected, next domain.TaskStatus) (bool, error)

	// Complete atomically stores result and moves the task from processing to
	// completed. Returns false if the task was not processing.
	Complete(ctx context.Context, id uuid.UUID, result []domain.Prediction) (bool, error)

	// Fail atomically stores message and moves the task from expected to failed.
	// Returns false if the task was not in the expected status.
	Fail(ctx context.Context, id uuid.UUID, expected domain.TaskStatus, message string) (bool, error)

	// ListRecent returns up to limit task summaries, newest first.
	ListRecent(ctx context.Context, limit int) ([]domain.TaskSummary, error)

	// ListByStatus returns up to limit tasks in the given status whose last
	// transition is older than olderThan (zero means any age), oldest first.
	ListByStatus(ctx context.Context, status domain.TaskStatus, olderThan time.Duration, limit int) ([]*domain.Task, error)
}

// CheckTransition validates a CompareAndSetStatus request. The only
// non-terminal transition in the task lifecycle is the claim.
func CheckTransition(expected, next domain.TaskStatus) error {
	if expected == domain.TaskStatusPending && next == domain.TaskStatusProcessing {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, expected, next)
}
