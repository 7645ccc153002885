package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/irgordon/vela/api/internal/core/domain"
	"github.com/irgordon/vela/api/internal/engine"
)

// Shared validator instance; struct tags drive all payload validation.
var validate = validator.New()

type errorResponse struct {
	Message     string `json:"message"`
	Diagnostics string `json:"diagnostics,omitempty"`
}

// HandleError maps domain and engine errors onto HTTP status codes. The
// engine's validation diagnostics are passed through verbatim so the operator
// sees exactly what nginx said.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		respondJSON(w, http.StatusBadRequest, errorResponse{Message: "Validation failed: " + validationErrs.Error()})
		return
	}

	var cfgErr *engine.ValidationError
	if errors.As(err, &cfgErr) {
		respondJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Message:     "Configuration rejected by validator",
			Diagnostics: cfgErr.Diagnostics,
		})
		return
	}
	var renderErr *engine.RenderError
	if errors.As(err, &renderErr) {
		respondJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Message:     "Configuration could not be rendered",
			Diagnostics: renderErr.Reason,
		})
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		respondJSON(w, http.StatusNotFound, errorResponse{Message: "Resource not found"})
	case errors.Is(err, domain.ErrConflict):
		respondJSON(w, http.StatusConflict, errorResponse{Message: "Resource already exists"})
	case errors.Is(err, domain.ErrInUse):
		respondJSON(w, http.StatusConflict, errorResponse{Message: "Resource is referenced by active configuration"})
	case errors.Is(err, domain.ErrInvalidInput):
		respondJSON(w, http.StatusBadRequest, errorResponse{Message: err.Error()})
	case errors.Is(err, domain.ErrUnauthorized):
		respondJSON(w, http.StatusUnauthorized, errorResponse{Message: "Unauthorized"})
	default:
		slog.Default().Error("unhandled request error", slog.Any("error", err), slog.String("path", r.URL.Path))
		respondJSON(w, http.StatusInternalServerError, errorResponse{Message: "Internal server error"})
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// currentUser extracts the authenticated user the middleware stashed in the
// request context.
func currentUser(r *http.Request) (*domain.User, bool) {
	user, ok := r.Context().Value(domain.UserContextKey).(*domain.User)
	return user, ok
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Message: "Invalid JSON payload"})
		return false
	}
	return true
}
