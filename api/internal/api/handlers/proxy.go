package handlers

import (
	"errors"
	"net/http"

	"github.com/irgordon/vela/api/internal/core/services"
	"github.com/irgordon/vela/api/internal/engine"
)

type ProxyHandler struct {
	Proxy *services.ProxyService
}

func NewProxyHandler(proxy *services.ProxyService) *ProxyHandler {
	return &ProxyHandler{Proxy: proxy}
}

// Reload handles POST /api/v1/proxy/reload
// Runs the full pipeline synchronously under the controller's mutex. The
// terminal outcome decides the status code: committed is 200, everything
// else surfaces as 422 with the engine's diagnostics attached.
func (h *ProxyHandler) Reload(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r)
	if !ok {
		respondJSON(w, http.StatusUnauthorized, errorResponse{Message: "Unauthorized"})
		return
	}

	result, err := h.Proxy.Reload(r.Context(), &user.ID)
	if err != nil && result == nil {
		// Snapshot assembly failed before the engine ever ran.
		HandleError(w, r, err)
		return
	}

	status := http.StatusOK
	switch result.Outcome {
	case engine.OutcomeAborted, engine.OutcomeRolledBack:
		status = http.StatusUnprocessableEntity
	case engine.OutcomeRollbackFailed:
		// The proxy may be serving a broken configuration. This is the one
		// outcome that demands operator intervention.
		status = http.StatusInternalServerError
	}
	respondJSON(w, status, result)
}

// Preview handles GET /api/v1/proxy/preview
// Renders and validates what the current database state would produce,
// without touching the live file. Returns the raw config text.
func (h *ProxyHandler) Preview(w http.ResponseWriter, r *http.Request) {
	text, warnings, err := h.Proxy.Preview(r.Context())
	if err != nil {
		var cfgErr *engine.ValidationError
		if errors.As(err, &cfgErr) && text != "" {
			// Show the candidate anyway so the operator can see what failed.
			respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"config":      text,
				"warnings":    warnings,
				"diagnostics": cfgErr.Diagnostics,
			})
			return
		}
		HandleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"config":   text,
		"warnings": warnings,
	})
}

// Status handles GET /api/v1/proxy/status
func (h *ProxyHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.Proxy.Status(r.Context())
	if err != nil {
		HandleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}
