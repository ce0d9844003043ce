package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func predictionsFor(texts []string) []Prediction {
	out := make([]Prediction, len(texts))
	for i, text := range texts {
		out[i] = Prediction{Text: text, Label: "ham", Confidence: 0.9}
	}
	return out
}

func validTask(status TaskStatus) *Task {
	now := time.Now().UTC()
	task := &Task{
		ID:        uuid.New(),
		Status:    status,
		Input:     []string{"win a prize", "see you at noon"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	switch status {
	case TaskStatusCompleted:
		task.Result = predictionsFor(task.Input)
	case TaskStatusFailed:
		task.Error = "classifier responded 400"
	}
	return task
}

func TestTaskStatus(t *testing.T) {
	t.Parallel()

	for _, s := range []TaskStatus{TaskStatusPending, TaskStatusProcessing, TaskStatusCompleted, TaskStatusFailed} {
		assert.True(t, s.IsValid(), s)
	}
	assert.False(t, TaskStatus("").IsValid())
	assert.False(t, TaskStatus("PENDING").IsValid())

	assert.False(t, TaskStatusPending.IsTerminal())
	assert.False(t, TaskStatusProcessing.IsTerminal())
	assert.True(t, TaskStatusCompleted.IsTerminal())
	assert.True(t, TaskStatusFailed.IsTerminal())
}

func TestNewTask(t *testing.T) {
	t.Parallel()

	texts := []string{"first", "second"}
	task, err := NewTask(texts)

	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, task.ID)
	assert.Equal(t, TaskStatusPending, task.Status)
	assert.Equal(t, texts, task.Input)
	assert.Empty(t, task.Result)
	assert.Empty(t, task.Error)
	assert.Equal(t, time.UTC, task.CreatedAt.Location())
	assert.Equal(t, task.CreatedAt, task.UpdatedAt)
	require.NoError(t, task.Validate())

	texts[0] = "changed"
	assert.Equal(t, "first", task.Input[0], "input should be copied")

	other, err := NewTask([]string{"first"})
	require.NoError(t, err)
	assert.NotEqual(t, task.ID, other.ID)
}

func TestValidateInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		texts   []string
		wantErr error
	}{
		{"nil", nil, ErrEmptyInput},
		{"empty", []string{}, ErrEmptyInput},
		{"empty string", []string{"ok", ""}, ErrBlankText},
		{"whitespace only", []string{" \t\n"}, ErrBlankText},
		{"single text", []string{"hello"}, nil},
		{"padded text", []string{"  hello  "}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateInput(tt.texts)

			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	err := ValidateInput([]string{"ok", "ok", " "})
	assert.Contains(t, err.Error(), "index 2")
}

func TestTask_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Task)
		status  TaskStatus
		wantErr error
	}{
		{name: "pending", status: TaskStatusPending},
		{name: "processing", status: TaskStatusProcessing},
		{name: "completed", status: TaskStatusCompleted},
		{name: "failed", status: TaskStatusFailed},
		{
			name:    "nil id",
			status:  TaskStatusPending,
			mutate:  func(task *Task) { task.ID = uuid.Nil },
			wantErr: ErrEmptyTaskID,
		},
		{
			name:    "unknown status",
			status:  TaskStatusPending,
			mutate:  func(task *Task) { task.Status = "queued" },
			wantErr: ErrInvalidStatus,
		},
		{
			name:    "empty input",
			status:  TaskStatusPending,
			mutate:  func(task *Task) { task.Input = nil },
			wantErr: ErrEmptyInput,
		},
		{
			name:    "completed without result",
			status:  TaskStatusCompleted,
			mutate:  func(task *Task) { task.Result = nil },
			wantErr: ErrInconsistentTask,
		},
		{
			name:    "pending with result",
			status:  TaskStatusPending,
			mutate:  func(task *Task) { task.Result = predictionsFor(task.Input) },
			wantErr: ErrInconsistentTask,
		},
		{
			name:    "processing with result",
			status:  TaskStatusProcessing,
			mutate:  func(task *Task) { task.Result = predictionsFor(task.Input) },
			wantErr: ErrInconsistentTask,
		},
		{
			name:    "failed without error",
			status:  TaskStatusFailed,
			mutate:  func(task *Task) { task.Error = "" },
			wantErr: ErrInconsistentTask,
		},
		{
			name:    "processing with error",
			status:  TaskStatusProcessing,
			mutate:  func(task *Task) { task.Error = "boom" },
			wantErr: ErrInconsistentTask,
		},
		{
			name:    "completed with error",
			status:  TaskStatusCompleted,
			mutate:  func(task *Task) { task.Error = "boom" },
			wantErr: ErrInconsistentTask,
		},
		{
			name:    "failed with result",
			status:  TaskStatusFailed,
			mutate:  func(task *Task) { task.Result = predictionsFor(task.Input) },
			wantErr: ErrInconsistentTask,
		},
		{
			name:    "completed with short result",
			status:  TaskStatusCompleted,
			mutate:  func(task *Task) { task.Result = task.Result[:1] },
			wantErr: ErrResultMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			task := validTask(tt.status)
			if tt.mutate != nil {
				tt.mutate(task)
			}

			err := task.Validate()

			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCheckResult(t *testing.T) {
	t.Parallel()

	input := []string{"a", "b", "c"}

	assert.NoError(t, CheckResult(input, predictionsFor(input)))

	tests := []struct {
		name   string
		result []Prediction
	}{
		{"nil result", nil},
		{"too few", predictionsFor(input[:2])},
		{"too many", predictionsFor(append([]string{"z"}, input...))},
		{"reordered", predictionsFor([]string{"b", "a", "c"})},
		{"different text", predictionsFor([]string{"a", "b", "x"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.ErrorIs(t, CheckResult(input, tt.result), ErrResultMismatch)
		})
	}
}

func TestTask_Summary(t *testing.T) {
	t.Parallel()

	task := validTask(TaskStatusFailed)
	summary := task.Summary()

	assert.Equal(t, TaskSummary{ID: task.ID, Status: TaskStatusFailed, CreatedAt: task.CreatedAt}, summary)
}
