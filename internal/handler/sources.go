package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/echolens/listening-gateway/internal/middleware"
	"github.com/echolens/listening-gateway/internal/model"
	"github.com/echolens/listening-gateway/internal/session"
	"github.com/echolens/listening-gateway/pkg/logger"
)

// SourcesHandler exposes the user's collection sources and the agent-proposed
// collection setup.
type SourcesHandler struct {
	registry *session.Registry
	logger   *logger.Logger
}

// NewSourcesHandler creates a new sources handler.
func NewSourcesHandler(registry *session.Registry, log *logger.Logger) *SourcesHandler {
	return &SourcesHandler{
		registry: registry,
		logger:   log,
	}
}

// List handles GET /api/v1/sources
func (h *SourcesHandler) List(w http.ResponseWriter, r *http.Request) {
	sess := h.registry.Get(middleware.GetUserID(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{
		"sources": sess.Sources.List(),
	})
}

// Replace handles PUT /api/v1/sources, syncing the list from the backend's
// collection inventory.
func (h *SourcesHandler) Replace(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Sources []*model.Source `json:"sources"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess := h.registry.Get(middleware.GetUserID(r.Context()))
	sess.Sources.SetSources(req.Sources)
	w.WriteHeader(http.StatusNoContent)
}

// Select handles POST /api/v1/sources/{id}/select
func (h *SourcesHandler) Select(w http.ResponseWriter, r *http.Request) {
	h.setSelected(w, r, true)
}

// Deselect handles POST /api/v1/sources/{id}/deselect
func (h *SourcesHandler) Deselect(w http.ResponseWriter, r *http.Request) {
	h.setSelected(w, r, false)
}

func (h *SourcesHandler) setSelected(w http.ResponseWriter, r *http.Request, selected bool) {
	collectionID := chi.URLParam(r, "id")
	if err := middleware.ValidateCollectionID(collectionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess := h.registry.Get(middleware.GetUserID(r.Context()))
	if !sess.Sources.SetSelected(collectionID, selected) {
		writeError(w, http.StatusNotFound, "source not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PendingSetup handles GET /api/v1/sources/pending-setup
func (h *SourcesHandler) PendingSetup(w http.ResponseWriter, r *http.Request) {
	sess := h.registry.Get(middleware.GetUserID(r.Context()))
	pending := sess.Sources.PendingSetup()
	if pending == nil {
		writeError(w, http.StatusNotFound, "no pending setup")
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

// DismissPendingSetup handles DELETE /api/v1/sources/pending-setup
func (h *SourcesHandler) DismissPendingSetup(w http.ResponseWriter, r *http.Request) {
	sess := h.registry.Get(middleware.GetUserID(r.Context()))
	sess.Sources.ClearPendingSetup()
	w.WriteHeader(http.StatusNoContent)
}
