package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/irgordon/vela/api/internal/core/domain"
	"github.com/irgordon/vela/api/internal/core/services"
)

type AuditHandler struct {
	Audit *services.AuditService
}

func NewAuditHandler(audit *services.AuditService) *AuditHandler {
	return &AuditHandler{Audit: audit}
}

// List handles GET /api/v1/audit
// Filters come in as query parameters; unknown values simply match nothing.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := domain.AuditFilter{
		ResourceType: q.Get("resource_type"),
		Action:       q.Get("action"),
		Severity:     q.Get("severity"),
	}
	if actor := q.Get("actor_id"); actor != "" {
		id, err := uuid.Parse(actor)
		if err != nil {
			respondJSON(w, http.StatusBadRequest, errorResponse{Message: "Invalid actor_id format"})
			return
		}
		filter.ActorID = &id
	}
	if limit := q.Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			filter.Limit = n
		}
	}
	if offset := q.Get("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil {
			filter.Offset = n
		}
	}

	events, total, err := h.Audit.List(r.Context(), filter)
	if err != nil {
		HandleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"total":  total,
	})
}
