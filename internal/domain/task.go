package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the current state of a classification task
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// IsValid reports whether s is one of the known statuses.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusProcessing, TaskStatusCompleted, TaskStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions can leave s.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Prediction is the classification output for a single input text.
type Prediction struct {
	Text          string             `json:"text"`
	Label         string             `json:"label"`
	LabelID       int                `json:"label_id"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities,omitempty"`
}

// Task is one batch of submitted texts tracked through its lifecycle.
type Task struct {
	ID        uuid.UUID
	Status    TaskStatus
	Input     []string
	Result    []Prediction
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TaskSummary is the list view of a task.
type TaskSummary struct {
	ID        uuid.UUID
	Status    TaskStatus
	CreatedAt time.Time
}

// NewTask creates a pending task with a fresh ID for the given texts.
// The input slice is copied so later changes by the caller do not leak in.
func NewTask(texts []string) (*Task, error) {
	if err := ValidateInput(texts); err != nil {
		return nil, err
	}

	input := make([]string, len(texts))
	copy(input, texts)

	now := time.Now().UTC()
	return &Task{
		ID:        uuid.New(),
		Status:    TaskStatusPending,
		Input:     input,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ValidateInput checks that texts is a non-empty list of non-blank strings.
func ValidateInput(texts []string) error {
	if len(texts) == 0 {
		return ErrEmptyInput
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("%w: index %d", ErrBlankText, i)
		}
	}
	return nil
}

// Validate checks the record-level invariants that tie status to result and error.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, t.Status)
	}
	if err := ValidateInput(t.Input); err != nil {
		return err
	}

	hasResult := len(t.Result) > 0
	hasError := t.Error != ""

	switch {
	case hasResult != (t.Status == TaskStatusCompleted):
		return fmt.Errorf("%w: result present=%t with status %s", ErrInconsistentTask, hasResult, t.Status)
	case hasError != (t.Status == TaskStatusFailed):
		return fmt.Errorf("%w: error present=%t with status %s", ErrInconsistentTask, hasError, t.Status)
	}

	if hasResult {
		return CheckResult(t.Input, t.Result)
	}
	return nil
}

// CheckResult verifies that result lines up one-to-one with input.
func CheckResult(input []string, result []Prediction) error {
	if len(result) != len(input) {
		return fmt.Errorf("%w: got %d predictions for %d texts", ErrResultMismatch, len(result), len(input))
	}
	for i := range input {
		if result[i].Text != input[i] {
			return fmt.Errorf("%w: prediction %d is for a different text", ErrResultMismatch, i)
		}
	}
	return nil
}

// Summary returns the list view of the task.
func (t *Task) Summary() TaskSummary {
	return TaskSummary{
		ID:        t.ID,
		Status:    t.Status,
		CreatedAt: t.CreatedAt,
	}
}
