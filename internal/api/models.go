package api

import (
	"time"

	"github.com/phrazzld/moderation-api/internal/domain"
)

// SubmitTaskRequest is the body of POST /api/v1/tasks.
type SubmitTaskRequest struct {
	Texts []string `json:"texts" validate:"required,min=1,dive,required"`
}

// SubmitTaskResponse acknowledges an accepted submission.
type SubmitTaskResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// TaskResponse is the full task record. Result and Error are null until
// the task reaches the matching terminal status.
type TaskResponse struct {
	ID        string              `json:"id"`
	Status    string              `json:"status"`
	Input     []string            `json:"input"`
	Result    []domain.Prediction `json:"result"`
	Error     *string             `json:"error"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// TaskSummaryResponse is one entry of the task list.
type TaskSummaryResponse struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// ListTasksResponse is the body of GET /api/v1/tasks.
type ListTasksResponse struct {
	Tasks []TaskSummaryResponse `json:"tasks"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

func taskToResponse(t *domain.Task) TaskResponse {
	resp := TaskResponse{
		ID:        t.ID.String(),
		Status:    string(t.Status),
		Input:     t.Input,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
	if len(t.Result) > 0 {
		resp.Result = t.Result
	}
	if t.Error != "" {
		msg := t.Error
		resp.Error = &msg
	}
	return resp
}

func summariesToResponse(summaries []domain.TaskSummary) ListTasksResponse {
	out := ListTasksResponse{Tasks: make([]TaskSummaryResponse, 0, len(summaries))}
	for _, s := range summaries {
		out.Tasks = append(out.Tasks, TaskSummaryResponse{
			ID:        s.ID.String(),
			Status:    string(s.Status),
			CreatedAt: s.CreatedAt,
		})
	}
	return out
}
