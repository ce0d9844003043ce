package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/moderation-api/internal/api/shared"
	"github.com/phrazzld/moderation-api/internal/task"
)

// SystemHandler serves the health and model information endpoints.
type SystemHandler struct {
	models  task.ModelDescriber
	version string
	logger  *slog.Logger
}

// NewSystemHandler creates a SystemHandler. models may be nil when the
// classification backend cannot describe itself.
func NewSystemHandler(models task.ModelDescriber, version string, log *slog.Logger) *SystemHandler {
	if log == nil {
		log = slog.Default()
	}
	return &SystemHandler{models: models, version: version, logger: log}
}

// Health handles GET and HEAD /health.
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{Status: "OK", Version: h.version})
}

// Models handles GET /api/v1/models.
func (h *SystemHandler) Models(w http.ResponseWriter, r *http.Request) {
	if h.models == nil {
		shared.RespondWithError(w, r, http.StatusNotFound, "Model information not available")
		return
	}

	info, err := h.models.ModelsInfo(r.Context())
	if err != nil {
		status := http.StatusBadGateway
		if task.IsTransient(err) {
			status = http.StatusServiceUnavailable
		}
		shared.RespondWithErrorAndLog(w, r, status, "Classifier unavailable", err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, info)
}
