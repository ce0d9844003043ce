package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/phrazzld/moderation-api/internal/api"
	apiMiddleware "github.com/phrazzld/moderation-api/internal/api/middleware"
	"github.com/phrazzld/moderation-api/internal/auth"
	"github.com/phrazzld/moderation-api/internal/config"
	"github.com/phrazzld/moderation-api/internal/platform/classifier"
	"github.com/phrazzld/moderation-api/internal/platform/gemini"
	"github.com/phrazzld/moderation-api/internal/platform/memory"
	"github.com/phrazzld/moderation-api/internal/platform/postgres"
	"github.com/phrazzld/moderation-api/internal/platform/redisqueue"
	"github.com/phrazzld/moderation-api/internal/service"
	"github.com/phrazzld/moderation-api/internal/store"
	"github.com/phrazzld/moderation-api/internal/task"
	"github.com/redis/go-redis/v9"
)

// application holds the process's dependencies so they can be closed in
// order on shutdown.
type application struct {
	config *config.Config
	role   string
	logger *slog.Logger

	db    *sql.DB
	rdb   *redis.Client
	store store.TaskStore
	queue task.Queue

	classifier task.Classifier
	runner     *task.Runner
	router     http.Handler
}

// newApplication builds every component the role needs. On error, anything
// already opened is closed.
func newApplication(ctx context.Context, cfg *config.Config, role string, lg *slog.Logger) (app *application, err error) {
	app = &application{config: cfg, role: role, logger: lg}
	defer func() {
		if err != nil {
			app.cleanup()
			app = nil
		}
	}()

	if err = app.setupStore(ctx); err != nil {
		return nil, err
	}
	if err = app.setupQueue(ctx); err != nil {
		return nil, err
	}
	if err = app.setupClassifier(ctx); err != nil {
		return nil, err
	}

	if role != roleAPI {
		if err = app.setupRunner(); err != nil {
			return nil, err
		}
	}

	if err = app.setupRouter(); err != nil {
		return nil, err
	}
	return app, nil
}

func (app *application) setupStore(ctx context.Context) error {
	switch app.config.Database.Driver {
	case "memory":
		app.store = memory.NewTaskStore()
		app.logger.Warn("using in-memory task store; tasks are lost on restart")
		return nil
	case "postgres":
		db, err := openDatabase(ctx, app.config.Database, app.logger)
		if err != nil {
			return err
		}
		app.db = db
		if app.config.Database.AutoMigrate {
			if err := postgres.Migrate(ctx, db, postgres.MigrateUp, app.logger); err != nil {
				return fmt.Errorf("failed to apply migrations: %w", err)
			}
		}
		app.store = postgres.NewPostgresTaskStore(db, app.logger)
		return nil
	default:
		return fmt.Errorf("unsupported database driver %q", app.config.Database.Driver)
	}
}

func (app *application) setupQueue(ctx context.Context) error {
	qcfg := app.config.Queue
	switch qcfg.Driver {
	case "memory":
		app.queue = task.NewMemoryQueue(qcfg.Size, app.logger)
		return nil
	case "redis":
		rdb, err := redisqueue.Connect(ctx, qcfg.RedisURL)
		if err != nil {
			return err
		}
		app.rdb = rdb
		app.queue = redisqueue.New(rdb, qcfg.Name, qcfg.PollTimeout, app.logger)
		app.logger.Info("redis work queue ready", "queue", qcfg.Name)
		return nil
	default:
		return fmt.Errorf("unsupported queue driver %q", qcfg.Driver)
	}
}

func (app *application) setupClassifier(ctx context.Context) error {
	ccfg := app.config.Classifier
	switch ccfg.Backend {
	case "http":
		c, err := classifier.NewClient(ccfg.URL, app.logger)
		if err != nil {
			return fmt.Errorf("failed to create classifier client: %w", err)
		}
		app.classifier = c
	case "gemini":
		c, err := gemini.NewClassifier(ctx, ccfg, app.logger)
		if err != nil {
			return fmt.Errorf("failed to create Gemini classifier: %w", err)
		}
		app.classifier = c
		app.logger.Info("Gemini classifier initialized", "model", ccfg.GeminiModel, "labels", ccfg.Labels)
	default:
		return fmt.Errorf("unsupported classifier backend %q", ccfg.Backend)
	}
	return nil
}

func (app *application) setupRunner() error {
	wcfg := app.config.Worker

	policy := task.RetryPolicy{
		MaxAttempts: wcfg.MaxAttempts,
		BaseDelay:   wcfg.BaseDelay,
		MaxDelay:    wcfg.MaxDelay,
		Jitter:      wcfg.RetryJitter,
	}
	worker, err := task.NewWorker(app.store, app.classifier, policy, wcfg.CallTimeout, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	app.runner, err = task.NewRunner(app.store, app.queue, worker, task.RunnerConfig{
		WorkerCount:     wcfg.Count,
		RecoverOnStart:  wcfg.RecoverOnStart,
		StuckTaskAge:    wcfg.StuckTaskAge,
		StalePendingAge: wcfg.StalePendingAge,
		SweepSchedule:   wcfg.SweepSchedule,
		SweepBatchSize:  wcfg.SweepBatchSize,
	}, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create task runner: %w", err)
	}
	return nil
}

func (app *application) setupRouter() error {
	var models task.ModelDescriber
	if d, ok := app.classifier.(task.ModelDescriber); ok {
		models = d
	}

	routes := api.RouterConfig{
		System: api.NewSystemHandler(models, app.config.Server.Version, app.logger),
		Logger: app.logger,
	}

	if app.role != roleWorker {
		svc, err := service.NewTaskService(app.store, app.queue, service.Limits{
			MaxBatchSize:  app.config.API.MaxBatchSize,
			MaxTextLength: app.config.API.MaxTextLength,
			MaxListLimit:  app.config.API.MaxListLimit,
		}, app.logger)
		if err != nil {
			return fmt.Errorf("failed to create task service: %w", err)
		}
		routes.Tasks = api.NewTaskHandler(svc, app.logger)

		routes.Auth = apiMiddleware.NewAuthMiddleware(nil)
		if secret := app.config.Auth.JWTSecret; secret != "" {
			verifier, err := auth.NewHMACVerifier(secret)
			if err != nil {
				return fmt.Errorf("failed to create token verifier: %w", err)
			}
			routes.Auth = apiMiddleware.NewAuthMiddleware(verifier)
		}
	}

	app.router = api.NewRouter(routes)
	return nil
}

// cleanup releases resources in reverse order of acquisition. The runner
// must already be stopped.
func (app *application) cleanup() {
	if mq, ok := app.queue.(*task.MemoryQueue); ok {
		mq.Close()
	}
	if app.rdb != nil {
		if err := app.rdb.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			app.logger.Error("failed to close redis client", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("failed to close database", "error", err)
		}
	}
}
