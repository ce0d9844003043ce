package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/moderation-api/internal/domain"
	"github.com/phrazzld/moderation-api/internal/platform/logger"
	"github.com/phrazzld/moderation-api/internal/store"
)

const taskColumns = `id, status, input, result, error, created_at, updated_at`

// PostgresTaskStore implements the store.TaskStore interface
// using a PostgreSQL database as the storage backend.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskStore creates a new PostgreSQL implementation of the TaskStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

// Ensure PostgresTaskStore implements store.TaskStore interface
var _ store.TaskStore = (*PostgresTaskStore)(nil)

// Create implements store.TaskStore.Create.
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		log.Warn("invalid task data", "error", err, "task_id", task.ID)
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	input, err := json.Marshal(task.Input)
	if err != nil {
		return fmt.Errorf("failed to encode task input: %w", err)
	}
	var result []byte
	if task.Result != nil {
		if result, err = json.Marshal(task.Result); err != nil {
			return fmt.Errorf("failed to encode task result: %w", err)
		}
	}

	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = s.db.ExecContext(ctx, query,
		task.ID,
		string(task.Status),
		input,
		result,
		nullString(task.Error),
		task.CreatedAt.UTC(),
		task.UpdatedAt.UTC(),
	)
	if err != nil {
		if IsUniqueViolation(err) {
			log.Warn("duplicate task id", "task_id", task.ID)
			return MapUniqueViolation(err, store.ErrDuplicateTaskID)
		}
		log.Error("failed to insert task", "error", err, "task_id", task.ID)
		return store.NewStoreError("task", "create", "failed to insert task", MapError(err))
	}

	log.Debug("task created", "task_id", task.ID, "texts", len(task.Input))
	return nil
}

// Get implements store.TaskStore.Get.
func (s *PostgresTaskStore) Get(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get task", "error", err, "task_id", id)
		return nil, store.NewStoreError("task", "get", "failed to load task", MapError(err))
	}
	return task, nil
}

// CompareAndSetStatus implements store.TaskStore.CompareAndSetStatus as a
// single conditional UPDATE, so concurrent callers cannot both succeed.
func (s *PostgresTaskStore) CompareAndSetStatus(
	ctx context.Context,
	id uuid.UUID,
	expected, next domain.TaskStatus,
) (bool, error) {
	if err := store.CheckTransition(expected, next); err != nil {
		return false, err
	}

	query := `
		UPDATE tasks
		SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
	`
	res, err := s.db.ExecContext(ctx, query, id, string(expected), string(next), time.Now().UTC())
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("status transition failed",
			"error", err, "task_id", id, "from", expected, "to", next)
		return false, store.NewStoreError("task", "compare_and_set", "failed to update status", MapError(err))
	}
	return rowsChanged(res)
}

// Complete implements store.TaskStore.Complete.
func (s *PostgresTaskStore) Complete(ctx context.Context, id uuid.UUID, result []domain.Prediction) (bool, error) {
	if len(result) == 0 {
		return false, fmt.Errorf("%w: completed task needs a result", store.ErrInvalidEntity)
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return false, fmt.Errorf("failed to encode task result: %w", err)
	}

	query := `
		UPDATE tasks
		SET status = $2, result = $3, error = NULL, updated_at = $4
		WHERE id = $1 AND status = $5
	`
	res, err := s.db.ExecContext(ctx, query,
		id, string(domain.TaskStatusCompleted), payload, time.Now().UTC(), string(domain.TaskStatusProcessing))
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to complete task", "error", err, "task_id", id)
		return false, store.NewStoreError("task", "complete", "failed to store result", MapError(err))
	}
	return rowsChanged(res)
}

// Fail implements store.TaskStore.Fail.
func (s *PostgresTaskStore) Fail(
	ctx context.Context,
	id uuid.UUID,
	expected domain.TaskStatus,
	message string,
) (bool, error) {
	if expected.IsTerminal() || !expected.IsValid() {
		return false, fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, expected, domain.TaskStatusFailed)
	}
	if message == "" {
		message = "unknown error"
	}

	query := `
		UPDATE tasks
		SET status = $2, error = $3, result = NULL, updated_at = $4
		WHERE id = $1 AND status = $5
	`
	res, err := s.db.ExecContext(ctx, query,
		id, string(domain.TaskStatusFailed), message, time.Now().UTC(), string(expected))
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to fail task", "error", err, "task_id", id)
		return false, store.NewStoreError("task", "fail", "failed to store error", MapError(err))
	}
	return rowsChanged(res)
}

// ListRecent implements store.TaskStore.ListRecent.
func (s *PostgresTaskStore) ListRecent(ctx context.Context, limit int) ([]domain.TaskSummary, error) {
	if limit <= 0 {
		return []domain.TaskSummary{}, nil
	}

	query := `
		SELECT id, status, created_at
		FROM tasks
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to list tasks", "error", err)
		return nil, store.NewStoreError("task", "list_recent", "failed to query tasks", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	summaries := make([]domain.TaskSummary, 0, limit)
	for rows.Next() {
		var (
			summary domain.TaskSummary
			status  string
		)
		if err := rows.Scan(&summary.ID, &status, &summary.CreatedAt); err != nil {
			return nil, store.NewStoreError("task", "list_recent", "failed to scan task", err)
		}
		summary.Status = domain.TaskStatus(status)
		summary.CreatedAt = summary.CreatedAt.UTC()
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("task", "list_recent", "failed to iterate tasks", err)
	}
	return summaries, nil
}

// ListByStatus implements store.TaskStore.ListByStatus.
func (s *PostgresTaskStore) ListByStatus(
	ctx context.Context,
	status domain.TaskStatus,
	olderThan time.Duration,
	limit int,
) ([]*domain.Task, error) {
	if limit <= 0 {
		return []*domain.Task{}, nil
	}
	cutoff := time.Now().UTC().Add(-olderThan)

	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE status = $1 AND updated_at <= $2
		ORDER BY updated_at ASC
		LIMIT $3
	`
	rows, err := s.db.QueryContext(ctx, query, string(status), cutoff, limit)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to list tasks by status",
			"error", err, "status", status)
		return nil, store.NewStoreError("task", "list_by_status", "failed to query tasks", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, store.NewStoreError("task", "list_by_status", "failed to scan task", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("task", "list_by_status", "failed to iterate tasks", err)
	}
	return tasks, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		task   domain.Task
		status string
		input  []byte
		result []byte
		errMsg sql.NullString
	)
	if err := row.Scan(&task.ID, &status, &input, &result, &errMsg, &task.CreatedAt, &task.UpdatedAt); err != nil {
		return nil, err
	}

	task.Status = domain.TaskStatus(status)
	task.Error = errMsg.String
	task.CreatedAt = task.CreatedAt.UTC()
	task.UpdatedAt = task.UpdatedAt.UTC()

	if err := json.Unmarshal(input, &task.Input); err != nil {
		return nil, fmt.Errorf("failed to decode task input: %w", err)
	}
	if len(result) > 0 {
		if err := json.Unmarshal(result, &task.Result); err != nil {
			return nil, fmt.Errorf("failed to decode task result: %w", err)
		}
	}
	return &task, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
