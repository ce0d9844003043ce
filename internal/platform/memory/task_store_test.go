package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/moderation-api/internal/domain"
	"github.com/phrazzld/moderation-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTask(t *testing.T, texts ...string) *domain.Task {
	t.Helper()
	if len(texts) == 0 {
		texts = []string{"free money", "meeting at 3"}
	}
	task, err := domain.NewTask(texts)
	require.NoError(t, err)
	return task
}

func predictionsFor(texts []string) []domain.Prediction {
	out := make([]domain.Prediction, len(texts))
	for i, text := range texts {
		out[i] = domain.Prediction{Text: text, Label: "spam", LabelID: 1, Confidence: 0.8,
			Probabilities: map[string]float64{"ham": 0.2, "spam": 0.8}}
	}
	return out
}

func TestTaskStore_CreateAndGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewTaskStore()
	task := newTask(t)

	require.NoError(t, s.Create(ctx, task))

	err := s.Create(ctx, task)
	assert.ErrorIs(t, err, store.ErrDuplicateTaskID)
	assert.ErrorIs(t, err, store.ErrDuplicate)

	got, err := s.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task, got)

	// Returned records are copies.
	got.Input[0] = "mutated"
	again, err := s.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "free money", again.Input[0])

	_, err = s.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}

func TestTaskStore_CreateRejectsInvalid(t *testing.T) {
	t.Parallel()

	task := newTask(t)
	task.Status = domain.TaskStatusCompleted

	err := NewTaskStore().Create(context.Background(), task)
	assert.ErrorIs(t, err, store.ErrInvalidEntity)
}

func TestTaskStore_Transitions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewTaskStore(WithClock(func() time.Time { return now }))
	task := newTask(t)
	require.NoError(t, s.Create(ctx, task))

	ok, err := s.Complete(ctx, task.ID, predictionsFor(task.Input))
	require.NoError(t, err)
	assert.False(t, ok, "complete requires processing")

	_, err = s.CompareAndSetStatus(ctx, task.ID, domain.TaskStatusProcessing, domain.TaskStatusCompleted)
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	ok, err = s.CompareAndSetStatus(ctx, task.ID, domain.TaskStatusPending, domain.TaskStatusProcessing)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.CompareAndSetStatus(ctx, task.ID, domain.TaskStatusPending, domain.TaskStatusProcessing)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Complete(ctx, task.ID, predictionsFor(task.Input))
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, got.Status)
	assert.Equal(t, now, got.UpdatedAt)
	require.NoError(t, got.Validate())

	ok, err = s.Fail(ctx, task.ID, domain.TaskStatusProcessing, "too late")
	require.NoError(t, err)
	assert.False(t, ok, "terminal tasks are never mutated")

	_, err = s.Fail(ctx, task.ID, domain.TaskStatusCompleted, "nope")
	assert.ErrorIs(t, err, store.ErrInvalidTransition)
}

func TestTaskStore_FailFromPending(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewTaskStore()
	task := newTask(t)
	require.NoError(t, s.Create(ctx, task))

	ok, err := s.Fail(ctx, task.ID, domain.TaskStatusPending, "")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, got.Status)
	assert.Equal(t, "unknown error", got.Error)
}

func TestTaskStore_ConcurrentClaim(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewTaskStore()
	task := newTask(t)
	require.NoError(t, s.Create(ctx, task))

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.CompareAndSetStatus(ctx, task.ID, domain.TaskStatusPending, domain.TaskStatusProcessing)
			if err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestTaskStore_ListRecent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewTaskStore()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		task := newTask(t)
		task.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, s.Create(ctx, task))
		ids = append(ids, task.ID)
	}

	got, err := s.ListRecent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, ids[4], got[0].ID)
	assert.Equal(t, ids[3], got[1].ID)
	assert.Equal(t, ids[2], got[2].ID)
	assert.Equal(t, domain.TaskStatusPending, got[0].Status)

	all, err := s.ListRecent(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	none, err := s.ListRecent(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestTaskStore_ListByStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewTaskStore(WithClock(func() time.Time { return now }))

	old := newTask(t)
	old.UpdatedAt = now.Add(-time.Hour)
	fresh := newTask(t)
	fresh.UpdatedAt = now.Add(-time.Minute)
	claimed := newTask(t)
	claimed.UpdatedAt = now.Add(-2 * time.Hour)
	for _, task := range []*domain.Task{old, fresh, claimed} {
		require.NoError(t, s.Create(ctx, task))
	}
	ok, err := s.CompareAndSetStatus(ctx, claimed.ID, domain.TaskStatusPending, domain.TaskStatusProcessing)
	require.NoError(t, err)
	require.True(t, ok)

	pending, err := s.ListByStatus(ctx, domain.TaskStatusPending, 10*time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, old.ID, pending[0].ID)

	allPending, err := s.ListByStatus(ctx, domain.TaskStatusPending, 0, 10)
	require.NoError(t, err)
	require.Len(t, allPending, 2)
	assert.Equal(t, old.ID, allPending[0].ID, "oldest first")

	processing, err := s.ListByStatus(ctx, domain.TaskStatusProcessing, 0, 10)
	require.NoError(t, err)
	require.Len(t, processing, 1)
	assert.Equal(t, claimed.ID, processing[0].ID)
}
