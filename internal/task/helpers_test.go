package task

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/phrazzld/moderation-api/internal/domain"
	"github.com/phrazzld/moderation-api/internal/platform/memory"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// sleepRecorder replaces the retry sleep so tests run instantly.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

// testPolicy is the default schedule without jitter and with a recorded sleep.
func testPolicy(rec *sleepRecorder) RetryPolicy {
	p := DefaultRetryPolicy()
	p.Jitter = false
	p.Sleep = rec.sleep
	return p
}

// seedTask stores a pending task for texts and returns it.
func seedTask(t *testing.T, s *memory.TaskStore, texts ...string) *domain.Task {
	t.Helper()
	if len(texts) == 0 {
		texts = []string{"claim your reward", "lunch tomorrow?"}
	}
	task, err := domain.NewTask(texts)
	require.NoError(t, err)
	require.NoError(t, s.Create(context.Background(), task))
	return task
}

func newTestWorker(t *testing.T, s *memory.TaskStore, c Classifier, policy RetryPolicy) *Worker {
	t.Helper()
	w, err := NewWorker(s, c, policy, time.Second, discardLogger())
	require.NoError(t, err)
	return w
}
