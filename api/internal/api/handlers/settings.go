package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/irgordon/vela/api/internal/core/domain"
	"github.com/irgordon/vela/api/internal/core/services"
	"github.com/irgordon/vela/api/internal/engine"
)

type SetSettingRequest struct {
	Value string `json:"value" validate:"required,max=64"`
}

// knownSettings are the keys the renderer actually reads. Writes to anything
// else are rejected to keep typos out of the settings table.
var knownSettings = map[string]struct{}{
	engine.SettingWorkerConnections:   {},
	engine.SettingClientMaxBodySize:   {},
	engine.SettingKeepaliveTimeout:    {},
	engine.SettingProxyConnectTimeout: {},
	engine.SettingProxySendTimeout:    {},
	engine.SettingProxyReadTimeout:    {},
	engine.SettingStatusPort:          {},
}

type SettingsHandler struct {
	Repo  domain.SettingsRepository
	Audit *services.AuditService
}

func NewSettingsHandler(repo domain.SettingsRepository, audit *services.AuditService) *SettingsHandler {
	return &SettingsHandler{Repo: repo, Audit: audit}
}

// List handles GET /api/v1/settings
func (h *SettingsHandler) List(w http.ResponseWriter, r *http.Request) {
	settings, err := h.Repo.GetAll(r.Context())
	if err != nil {
		HandleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

// Set handles PUT /api/v1/settings/{key}
func (h *SettingsHandler) Set(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r)
	if !ok {
		respondJSON(w, http.StatusUnauthorized, errorResponse{Message: "Unauthorized"})
		return
	}

	key := chi.URLParam(r, "key")
	if _, known := knownSettings[key]; !known {
		respondJSON(w, http.StatusBadRequest, errorResponse{Message: "Unknown setting key"})
		return
	}

	var req SetSettingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		HandleError(w, r, err)
		return
	}

	if err := h.Repo.Set(r.Context(), key, req.Value); err != nil {
		HandleError(w, r, err)
		return
	}

	h.Audit.Record(r.Context(), &user.ID, "setting_changed", "setting", key, map[string]string{"value": req.Value})
	respondJSON(w, http.StatusOK, map[string]string{"key": key, "value": req.Value})
}

// Delete handles DELETE /api/v1/settings/{key}
// Removing a key reverts the renderer to its built-in default.
func (h *SettingsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r)
	if !ok {
		respondJSON(w, http.StatusUnauthorized, errorResponse{Message: "Unauthorized"})
		return
	}

	key := chi.URLParam(r, "key")
	if err := h.Repo.Delete(r.Context(), key); err != nil {
		HandleError(w, r, err)
		return
	}

	h.Audit.Record(r.Context(), &user.ID, "setting_removed", "setting", key, nil)
	w.WriteHeader(http.StatusNoContent)
}
