package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/echolens/listening-gateway/internal/middleware"
	"github.com/echolens/listening-gateway/internal/session"
	"github.com/echolens/listening-gateway/pkg/logger"
)

// StudioHandler exposes saved insight artifacts.
type StudioHandler struct {
	registry *session.Registry
	logger   *logger.Logger
}

// NewStudioHandler creates a new studio handler.
func NewStudioHandler(registry *session.Registry, log *logger.Logger) *StudioHandler {
	return &StudioHandler{
		registry: registry,
		logger:   log,
	}
}

// List handles GET /api/v1/studio/artifacts
func (h *StudioHandler) List(w http.ResponseWriter, r *http.Request) {
	sess := h.registry.Get(middleware.GetUserID(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{
		"artifacts": sess.Studio.List(),
	})
}

// Delete handles DELETE /api/v1/studio/artifacts/{id}
func (h *StudioHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sess := h.registry.Get(middleware.GetUserID(r.Context()))
	if !sess.Studio.Remove(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, "artifact not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
