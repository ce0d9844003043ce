package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	apiMiddleware "github.com/phrazzld/moderation-api/internal/api/middleware"
)

// RouterConfig holds the handlers and middleware the router mounts. A nil
// Tasks handler leaves only the health endpoint, for worker-only processes.
type RouterConfig struct {
	Tasks  *TaskHandler
	System *SystemHandler
	Auth   *apiMiddleware.AuthMiddleware
	Logger *slog.Logger
}

// NewRouter builds the HTTP routes.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(cfg.Logger))

	if cfg.System != nil {
		r.Get("/health", cfg.System.Health)
		r.Head("/health", cfg.System.Health)
	}

	if cfg.Tasks == nil {
		return r
	}

	auth := cfg.Auth
	if auth == nil {
		auth = apiMiddleware.NewAuthMiddleware(nil)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Authenticate)

		r.Post("/tasks", cfg.Tasks.Submit)
		r.Get("/tasks", cfg.Tasks.List)
		r.Get("/tasks/{id}", cfg.Tasks.Get)

		if cfg.System != nil {
			r.Get("/models", cfg.System.Models)
		}
	})

	return r
}
