package task

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/moderation-api/internal/domain"
)

var (
	// ErrTransientBackend marks a backend failure worth retrying: the service
	// was unreachable, overloaded or timed out.
	ErrTransientBackend = errors.New("transient classification backend error")

	// ErrPermanentBackend marks a backend failure that retrying cannot fix.
	ErrPermanentBackend = errors.New("permanent classification backend error")

	// ErrTaskMissing is returned when a dequeued job names a task the store
	// does not have. Producers always store before enqueueing, so this is a
	// protocol violation.
	ErrTaskMissing = errors.New("task referenced by job does not exist")
)

// Job is the message carried by the work queue. It holds only the task id;
// the store is the source of truth for everything else.
type Job struct {
	TaskID     uuid.UUID `json:"task_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewJob creates a job for the given task id.
func NewJob(id uuid.UUID) Job {
	return Job{TaskID: id, EnqueuedAt: time.Now().UTC()}
}

// Queue is an at-least-once work queue of jobs.
// Version: 1.0
type Queue interface {
	// Enqueue adds a job. Returns ErrQueueFull or ErrQueueClosed when the
	// job cannot be accepted.
	Enqueue(ctx context.Context, job Job) error

	// Dequeue blocks until a job is available or ctx is done.
	// Returns ErrQueueClosed once a closed queue has drained.
	Dequeue(ctx context.Context) (Job, error)
}

// DeadLetterer is implemented by queues that can park undeliverable jobs.
type DeadLetterer interface {
	DeadLetter(ctx context.Context, job Job, reason string) error
}

// Classifier is the classification backend contract. Predict returns one
// prediction per input text, in input order. Failures should wrap
// ErrTransientBackend or ErrPermanentBackend so the worker can decide
// whether to retry.
type Classifier interface {
	Predict(ctx context.Context, texts []string) ([]domain.Prediction, error)
}

// ClassInfo describes one label the classifier can produce.
type ClassInfo struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ModelsInfo describes the model behind a classifier.
type ModelsInfo struct {
	ModelAvailable bool        `json:"model_available"`
	NumClasses     int         `json:"num_classes"`
	Classes        []ClassInfo `json:"classes"`
}

// ModelDescriber is implemented by classifiers that can report their model.
type ModelDescriber interface {
	ModelsInfo(ctx context.Context) (*ModelsInfo, error)
}
