// Package redisqueue implements the task work queue on Redis lists.
//
// Jobs are JSON documents pushed with RPUSH onto queue:<name>:ready and
// popped with BLPOP, giving FIFO order across any number of processes.
// Undeliverable jobs are parked on queue:<name>:dlq for inspection or replay.
package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/moderation-api/internal/redact"
	"github.com/phrazzld/moderation-api/internal/task"
	"github.com/redis/go-redis/v9"
)

// ReadyKey returns the list holding jobs waiting for a worker.
func ReadyKey(queueName string) string {
	return "queue:" + queueName + ":ready"
}

// DLQKey returns the dead-letter list.
func DLQKey(queueName string) string {
	return "queue:" + queueName + ":dlq"
}

// Connect parses url, opens a client and verifies it with PING.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}

// DeadLetter is a parked job with the reason it could not be processed.
type DeadLetter struct {
	Job      task.Job  `json:"job"`
	Reason   string    `json:"reason"`
	ParkedAt time.Time `json:"parked_at"`
}

// Queue is a task.Queue backed by a Redis list.
type Queue struct {
	rdb         *redis.Client
	name        string
	pollTimeout time.Duration
	logger      *slog.Logger
}

var (
	_ task.Queue        = (*Queue)(nil)
	_ task.DeadLetterer = (*Queue)(nil)
)

// New creates a queue named name on rdb. pollTimeout bounds each BLPOP so
// Dequeue notices cancellation promptly.
func New(rdb *redis.Client, name string, pollTimeout time.Duration, logger *slog.Logger) *Queue {
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		rdb:         rdb,
		name:        name,
		pollTimeout: pollTimeout,
		logger:      logger.With("component", "redis_queue", "queue", name),
	}
}

// Enqueue appends job to the ready list.
func (q *Queue) Enqueue(ctx context.Context, job task.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	if err := q.rdb.RPush(ctx, ReadyKey(q.name), payload).Err(); err != nil {
		return fmt.Errorf("failed to push job: %w", err)
	}
	q.logger.Debug("job enqueued", "task_id", job.TaskID)
	return nil
}

// Dequeue blocks until a job is available or ctx is done. Payloads that
// cannot be decoded are moved to the dead-letter list and skipped.
func (q *Queue) Dequeue(ctx context.Context) (task.Job, error) {
	for {
		if err := ctx.Err(); err != nil {
			return task.Job{}, err
		}

		res, err := q.rdb.BLPop(ctx, q.pollTimeout, ReadyKey(q.name)).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return task.Job{}, ctxErr
			}
			return task.Job{}, fmt.Errorf("failed to pop job: %w", err)
		}

		// BLPOP returns [key, value].
		if len(res) != 2 {
			return task.Job{}, fmt.Errorf("unexpected BLPOP reply with %d elements", len(res))
		}

		job, err := decodeJob(res[1])
		if err != nil {
			q.logger.Error("dropping malformed job payload", "error", redact.Error(err))
			q.parkRaw(ctx, res[1], err.Error())
			continue
		}
		return job, nil
	}
}

// DeadLetter parks job on the dead-letter list.
func (q *Queue) DeadLetter(ctx context.Context, job task.Job, reason string) error {
	payload, err := json.Marshal(DeadLetter{Job: job, Reason: reason, ParkedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to encode dead letter: %w", err)
	}
	if err := q.rdb.RPush(ctx, DLQKey(q.name), payload).Err(); err != nil {
		return fmt.Errorf("failed to push dead letter: %w", err)
	}
	q.logger.Warn("job dead-lettered", "task_id", job.TaskID, "reason", reason)
	return nil
}

// ListDeadLetters returns dead letters in the inclusive index range
// [start, stop], using Redis LRANGE semantics.
func (q *Queue) ListDeadLetters(ctx context.Context, start, stop int64) ([]DeadLetter, error) {
	items, err := q.rdb.LRange(ctx, DLQKey(q.name), start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read dead letters: %w", err)
	}

	letters := make([]DeadLetter, 0, len(items))
	for _, item := range items {
		var dl DeadLetter
		if err := json.Unmarshal([]byte(item), &dl); err != nil {
			dl = DeadLetter{Reason: "undecodable payload: " + item}
		}
		letters = append(letters, dl)
	}
	return letters, nil
}

// ReplayDeadLetters moves up to count dead-lettered jobs back onto the
// ready list and returns how many moved.
func (q *Queue) ReplayDeadLetters(ctx context.Context, count int) (int, error) {
	moved := 0
	for i := 0; i < count; i++ {
		val, err := q.rdb.LPop(ctx, DLQKey(q.name)).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				break
			}
			return moved, fmt.Errorf("failed to pop dead letter: %w", err)
		}

		var dl DeadLetter
		if err := json.Unmarshal([]byte(val), &dl); err != nil || dl.Job.TaskID == uuid.Nil {
			q.logger.Error("discarding undecodable dead letter", "payload", val)
			continue
		}
		if err := q.Enqueue(ctx, dl.Job); err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}

// Len returns the number of jobs waiting on the ready list.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, ReadyKey(q.name)).Result()
}

func (q *Queue) parkRaw(ctx context.Context, raw, reason string) {
	payload, err := json.Marshal(map[string]any{
		"raw":       raw,
		"reason":    reason,
		"parked_at": time.Now().UTC(),
	})
	if err != nil {
		return
	}
	if err := q.rdb.RPush(ctx, DLQKey(q.name), payload).Err(); err != nil {
		q.logger.Error("failed to park malformed payload", "error", redact.Error(err))
	}
}

func decodeJob(raw string) (task.Job, error) {
	var job task.Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return task.Job{}, fmt.Errorf("failed to decode job: %w", err)
	}
	if job.TaskID == uuid.Nil {
		return task.Job{}, fmt.Errorf("job has no task id")
	}
	return job, nil
}
