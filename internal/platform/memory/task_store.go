package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/moderation-api/internal/domain"
	"github.com/phrazzld/moderation-api/internal/store"
)

// TaskStore implements store.TaskStore with a map guarded by a mutex. Every
// operation runs in one critical section, which makes the status CAS atomic.
// Tasks are copied on the way in and out so callers never share state.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*domain.Task
	now   func() time.Time
}

// Option configures a TaskStore.
type Option func(*TaskStore)

// WithClock replaces the time source used for UpdatedAt and age filters.
func WithClock(now func() time.Time) Option {
	return func(s *TaskStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewTaskStore creates an empty store.
func NewTaskStore(opts ...Option) *TaskStore {
	s := &TaskStore{
		tasks: make(map[uuid.UUID]*domain.Task),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ store.TaskStore = (*TaskStore)(nil)

// Create implements store.TaskStore.Create.
func (s *TaskStore) Create(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[task.ID]; exists {
		return fmt.Errorf("%w: %s", store.ErrDuplicateTaskID, task.ID)
	}
	s.tasks[task.ID] = cloneTask(task)
	return nil
}

// Get implements store.TaskStore.Get.
func (s *TaskStore) Get(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return cloneTask(task), nil
}

// CompareAndSetStatus implements store.TaskStore.CompareAndSetStatus.
func (s *TaskStore) CompareAndSetStatus(
	ctx context.Context,
	id uuid.UUID,
	expected, next domain.TaskStatus,
) (bool, error) {
	if err := store.CheckTransition(expected, next); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok || task.Status != expected {
		return false, nil
	}
	task.Status = next
	task.UpdatedAt = s.now()
	return true, nil
}

// Complete implements store.TaskStore.Complete.
func (s *TaskStore) Complete(ctx context.Context, id uuid.UUID, result []domain.Prediction) (bool, error) {
	if len(result) == 0 {
		return false, fmt.Errorf("%w: completed task needs a result", store.ErrInvalidEntity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok || task.Status != domain.TaskStatusProcessing {
		return false, nil
	}
	task.Status = domain.TaskStatusCompleted
	task.Result = clonePredictions(result)
	task.Error = ""
	task.UpdatedAt = s.now()
	return true, nil
}

// Fail implements store.TaskStore.Fail.
func (s *TaskStore) Fail(ctx context.Context, id uuid.UUID, expected domain.TaskStatus, message string) (bool, error) {
	if expected.IsTerminal() || !expected.IsValid() {
		return false, fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, expected, domain.TaskStatusFailed)
	}
	if message == "" {
		message = "unknown error"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok || task.Status != expected {
		return false, nil
	}
	task.Status = domain.TaskStatusFailed
	task.Error = message
	task.Result = nil
	task.UpdatedAt = s.now()
	return true, nil
}

// ListRecent implements store.TaskStore.ListRecent.
func (s *TaskStore) ListRecent(ctx context.Context, limit int) ([]domain.TaskSummary, error) {
	if limit <= 0 {
		return []domain.TaskSummary{}, nil
	}

	s.mu.RLock()
	summaries := make([]domain.TaskSummary, 0, len(s.tasks))
	for _, task := range s.tasks {
		summaries = append(summaries, task.Summary())
	}
	s.mu.RUnlock()

	sort.Slice(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID.String() > b.ID.String()
	})

	if len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

// ListByStatus implements store.TaskStore.ListByStatus.
func (s *TaskStore) ListByStatus(
	ctx context.Context,
	status domain.TaskStatus,
	olderThan time.Duration,
	limit int,
) ([]*domain.Task, error) {
	if limit <= 0 {
		return []*domain.Task{}, nil
	}

	s.mu.RLock()
	cutoff := s.now().Add(-olderThan)
	var matched []*domain.Task
	for _, task := range s.tasks {
		if task.Status == status && !task.UpdatedAt.After(cutoff) {
			matched = append(matched, cloneTask(task))
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].UpdatedAt.Before(matched[j].UpdatedAt)
	})

	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func cloneTask(t *domain.Task) *domain.Task {
	c := *t
	c.Input = append([]string(nil), t.Input...)
	c.Result = clonePredictions(t.Result)
	return &c
}

func clonePredictions(in []domain.Prediction) []domain.Prediction {
	if in == nil {
		return nil
	}
	out := make([]domain.Prediction, len(in))
	for i, p := range in {
		out[i] = p
		if p.Probabilities != nil {
			out[i].Probabilities = make(map[string]float64, len(p.Probabilities))
			for k, v := range p.Probabilities {
				out[i].Probabilities[k] = v
			}
		}
	}
	return out
}
