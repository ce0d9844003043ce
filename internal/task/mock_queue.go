package task

import (
	"context"
	"sync"
)

// MockQueue records enqueued jobs and can be told to fail. It is meant for
// producer-side tests; Dequeue only returns jobs already recorded.
type MockQueue struct {
	EnqueueFn func(ctx context.Context, job Job) error

	mu          sync.Mutex
	jobs        []Job
	deadLetters []Job
}

// Enqueue records job unless EnqueueFn returns an error.
func (q *MockQueue) Enqueue(ctx context.Context, job Job) error {
	if q.EnqueueFn != nil {
		if err := q.EnqueueFn(ctx, job); err != nil {
			return err
		}
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

// Dequeue pops the oldest recorded job, or blocks until ctx is done.
func (q *MockQueue) Dequeue(ctx context.Context) (Job, error) {
	q.mu.Lock()
	if len(q.jobs) > 0 {
		job := q.jobs[0]
		q.jobs = q.jobs[1:]
		q.mu.Unlock()
		return job, nil
	}
	q.mu.Unlock()

	<-ctx.Done()
	return Job{}, ctx.Err()
}

// DeadLetter records job as dead-lettered.
func (q *MockQueue) DeadLetter(ctx context.Context, job Job, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deadLetters = append(q.deadLetters, job)
	return nil
}

// Jobs returns a copy of the recorded jobs.
func (q *MockQueue) Jobs() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Job(nil), q.jobs...)
}

// DeadLetters returns a copy of the dead-lettered jobs.
func (q *MockQueue) DeadLetters() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Job(nil), q.deadLetters...)
}
