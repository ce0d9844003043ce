package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/moderation-api/internal/config"
	"github.com/phrazzld/moderation-api/internal/platform/logger"
	"github.com/phrazzld/moderation-api/internal/platform/redisqueue"
	"github.com/phrazzld/moderation-api/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDeadLetters keeps dead letters and ready jobs in slices.
type fakeDeadLetters struct {
	letters   []redisqueue.DeadLetter
	ready     []task.Job
	replayErr error
	lastStop  int64
}

func (f *fakeDeadLetters) Len(ctx context.Context) (int64, error) {
	return int64(len(f.ready)), nil
}

func (f *fakeDeadLetters) ListDeadLetters(ctx context.Context, start, stop int64) ([]redisqueue.DeadLetter, error) {
	f.lastStop = stop
	end := int(stop) + 1
	if end > len(f.letters) {
		end = len(f.letters)
	}
	return f.letters[start:end], nil
}

func (f *fakeDeadLetters) ReplayDeadLetters(ctx context.Context, count int) (int, error) {
	if f.replayErr != nil {
		return 0, f.replayErr
	}
	moved := 0
	for moved < count && len(f.letters) > 0 {
		f.ready = append(f.ready, f.letters[0].Job)
		f.letters = f.letters[1:]
		moved++
	}
	return moved, nil
}

func newFakeDeadLetters(n int) *fakeDeadLetters {
	f := &fakeDeadLetters{}
	for i := 0; i < n; i++ {
		f.letters = append(f.letters, redisqueue.DeadLetter{
			Job:      task.NewJob(uuid.New()),
			Reason:   "task referenced by job does not exist",
			ParkedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		})
	}
	return f
}

func TestHandleDeadLetters_List(t *testing.T) {
	t.Parallel()

	q := newFakeDeadLetters(3)
	lg, logs := logger.NewTestLogger()
	var out bytes.Buffer

	err := handleDeadLetters(context.Background(), q, dlqList, 2, &out, lg)

	require.NoError(t, err)
	assert.Equal(t, int64(1), q.lastStop, "count is translated to an inclusive stop index")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	var first redisqueue.DeadLetter
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, q.letters[0].Job.TaskID, first.Job.TaskID)
	assert.Equal(t, q.letters[0].Reason, first.Reason)

	entries := logs.EntriesWithMessage("dead letters listed")
	require.Len(t, entries, 1)
	assert.EqualValues(t, 2, entries[0]["listed"])
}

func TestHandleDeadLetters_Replay(t *testing.T) {
	t.Parallel()

	q := newFakeDeadLetters(3)
	ids := []uuid.UUID{q.letters[0].Job.TaskID, q.letters[1].Job.TaskID}
	lg, _ := logger.NewTestLogger()
	var out bytes.Buffer

	err := handleDeadLetters(context.Background(), q, dlqReplay, 2, &out, lg)

	require.NoError(t, err)
	require.Len(t, q.ready, 2)
	assert.Equal(t, ids[0], q.ready[0].TaskID)
	assert.Equal(t, ids[1], q.ready[1].TaskID)
	assert.Len(t, q.letters, 1)
	assert.Equal(t, "replayed 2 dead letters, 2 jobs ready\n", out.String())
}

func TestHandleDeadLetters_Errors(t *testing.T) {
	t.Parallel()
	lg, _ := logger.NewTestLogger()

	q := newFakeDeadLetters(1)
	q.replayErr = errors.New("connection reset")
	err := handleDeadLetters(context.Background(), q, dlqReplay, 5, &bytes.Buffer{}, lg)
	assert.ErrorIs(t, err, q.replayErr)

	err = handleDeadLetters(context.Background(), newFakeDeadLetters(0), "purge", 5, &bytes.Buffer{}, lg)
	assert.Error(t, err)
}

func TestRunDeadLetters_RequiresRedis(t *testing.T) {
	t.Parallel()
	lg, _ := logger.NewTestLogger()

	cfg := &config.Config{Queue: config.QueueConfig{Driver: "memory"}}
	err := runDeadLetters(context.Background(), cfg, dlqList, 10, &bytes.Buffer{}, lg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue.driver=redis")
}
