package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/phrazzld/moderation-api/internal/config"
	"github.com/phrazzld/moderation-api/internal/platform/redisqueue"
)

// Dead-letter commands.
const (
	dlqList   = "list"
	dlqReplay = "replay"

	defaultDLQCount = 100
)

// deadLetterQueue is the part of the Redis queue the dead-letter commands use.
type deadLetterQueue interface {
	Len(ctx context.Context) (int64, error)
	ListDeadLetters(ctx context.Context, start, stop int64) ([]redisqueue.DeadLetter, error)
	ReplayDeadLetters(ctx context.Context, count int) (int, error)
}

var _ deadLetterQueue = (*redisqueue.Queue)(nil)

func runDeadLetters(ctx context.Context, cfg *config.Config, command string, count int, out io.Writer, lg *slog.Logger) error {
	if cfg.Queue.Driver != "redis" {
		return fmt.Errorf("dead letters need queue.driver=redis, got %q", cfg.Queue.Driver)
	}

	rdb, err := redisqueue.Connect(ctx, cfg.Queue.RedisURL)
	if err != nil {
		return err
	}
	defer func() { _ = rdb.Close() }()

	q := redisqueue.New(rdb, cfg.Queue.Name, cfg.Queue.PollTimeout, lg)
	return handleDeadLetters(ctx, q, command, count, out, lg)
}

// handleDeadLetters prints up to count dead letters as JSON lines, or moves up
// to count of them back onto the ready list.
func handleDeadLetters(
	ctx context.Context,
	q deadLetterQueue,
	command string,
	count int,
	out io.Writer,
	lg *slog.Logger,
) error {
	switch command {
	case dlqList:
		letters, err := q.ListDeadLetters(ctx, 0, int64(count)-1)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		for _, dl := range letters {
			if err := enc.Encode(dl); err != nil {
				return fmt.Errorf("failed to write dead letter: %w", err)
			}
		}
		ready, err := q.Len(ctx)
		if err != nil {
			return fmt.Errorf("failed to read queue length: %w", err)
		}
		lg.Info("dead letters listed", "listed", len(letters), "ready", ready)
		return nil

	case dlqReplay:
		moved, err := q.ReplayDeadLetters(ctx, count)
		if err != nil {
			return fmt.Errorf("replay stopped after %d jobs: %w", moved, err)
		}
		ready, err := q.Len(ctx)
		if err != nil {
			return fmt.Errorf("failed to read queue length: %w", err)
		}
		lg.Info("dead letters replayed", "replayed", moved, "ready", ready)
		_, err = fmt.Fprintf(out, "replayed %d dead letters, %d jobs ready\n", moved, ready)
		return err

	default:
		return fmt.Errorf("invalid dead-letter command %q", command)
	}
}
