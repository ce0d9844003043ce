// Package main runs the moderation API: the HTTP surface for submitting
// classification tasks and the workers that process them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/phrazzld/moderation-api/internal/config"
	"github.com/phrazzld/moderation-api/internal/platform/logger"
	"github.com/phrazzld/moderation-api/internal/platform/postgres"
)

// Process roles.
const (
	roleAll    = "all"
	roleAPI    = "api"
	roleWorker = "worker"
)

type options struct {
	configPath string
	role       string
	migrate    string
	dlq        string
	dlqCount   int
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		log.Fatalf("moderation-api: %v", err)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	lg, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	if opts.migrate != "" {
		return runMigration(ctx, cfg, opts.migrate, lg)
	}
	if opts.dlq != "" {
		return runDeadLetters(ctx, cfg, opts.dlq, opts.dlqCount, stdout, lg)
	}

	if err := checkRole(cfg, opts.role); err != nil {
		return err
	}

	lg.Info("starting moderation API",
		"role", opts.role,
		"port", cfg.Server.Port,
		"store", cfg.Database.Driver,
		"queue", cfg.Queue.Driver,
		"classifier", cfg.Classifier.Backend,
		"auth_enabled", cfg.Auth.JWTSecret != "")

	app, err := newApplication(ctx, cfg, opts.role, lg)
	if err != nil {
		return err
	}
	return app.serve(ctx)
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("moderation-api", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	fs.StringVar(&opts.configPath, "config", "", "path to a YAML config file (default: ./config.yaml if present)")
	fs.StringVar(&opts.role, "role", roleAll, "process role: all, api or worker")
	fs.StringVar(&opts.migrate, "migrate", "",
		"run a migration command (up, down, status, version) and exit")
	fs.StringVar(&opts.dlq, "dlq", "", "inspect the Redis dead-letter list (list, replay) and exit")
	fs.IntVar(&opts.dlqCount, "dlq-count", defaultDLQCount, "how many dead letters --dlq lists or replays")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	switch opts.role {
	case roleAll, roleAPI, roleWorker:
	default:
		return options{}, fmt.Errorf("invalid role %q: must be all, api or worker", opts.role)
	}

	switch opts.migrate {
	case "", postgres.MigrateUp, postgres.MigrateDown, postgres.MigrateStatus, postgres.MigrateVersion:
	default:
		return options{}, fmt.Errorf("invalid migration command %q", opts.migrate)
	}

	switch opts.dlq {
	case "", dlqList, dlqReplay:
	default:
		return options{}, fmt.Errorf("invalid dead-letter command %q", opts.dlq)
	}
	if opts.dlqCount <= 0 {
		return options{}, fmt.Errorf("--dlq-count must be positive, got %d", opts.dlqCount)
	}
	if opts.dlq != "" && opts.migrate != "" {
		return options{}, fmt.Errorf("--dlq and --migrate cannot be combined")
	}

	return opts, nil
}

// checkRole rejects split deployments that cannot share state.
func checkRole(cfg *config.Config, role string) error {
	if role == roleAll {
		return nil
	}
	if cfg.Queue.Driver == "memory" {
		return fmt.Errorf("the memory queue requires --role=all")
	}
	if cfg.Database.Driver == "memory" {
		return fmt.Errorf("the memory store requires --role=all")
	}
	return nil
}

func runMigration(ctx context.Context, cfg *config.Config, command string, lg *slog.Logger) error {
	if cfg.Database.Driver != "postgres" {
		return fmt.Errorf("migrations need database.driver=postgres, got %q", cfg.Database.Driver)
	}

	db, err := openDatabase(ctx, cfg.Database, lg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	return postgres.Migrate(ctx, db, command, lg)
}
