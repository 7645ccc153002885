package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/irgordon/vela/api/internal/core/domain"
	"github.com/irgordon/vela/api/internal/core/services"
)

type BackendRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Host        string `json:"host" validate:"required,hostname_rfc1123|ip,max=255"`
	Port        int    `json:"port" validate:"required,min=1,max=65535"`
	Scheme      string `json:"scheme" validate:"required,oneof=http https"`
	Description string `json:"description" validate:"max=500"`
	IsActive    *bool  `json:"is_active"`
}

type BackendHandler struct {
	Repo  domain.BackendRepository
	Audit *services.AuditService
}

func NewBackendHandler(repo domain.BackendRepository, audit *services.AuditService) *BackendHandler {
	return &BackendHandler{Repo: repo, Audit: audit}
}

// List handles GET /api/v1/backends
func (h *BackendHandler) List(w http.ResponseWriter, r *http.Request) {
	backends, err := h.Repo.List(r.Context())
	if err != nil {
		HandleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, backends)
}

// GetByID handles GET /api/v1/backends/{id}
func (h *BackendHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	backend, err := h.Repo.GetByID(r.Context(), id)
	if err != nil {
		HandleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, backend)
}

// Create handles POST /api/v1/backends
func (h *BackendHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r)
	if !ok {
		respondJSON(w, http.StatusUnauthorized, errorResponse{Message: "Unauthorized"})
		return
	}

	var req BackendRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		HandleError(w, r, err)
		return
	}

	backend := &domain.Backend{
		Name:        req.Name,
		Host:        req.Host,
		Port:        req.Port,
		Scheme:      req.Scheme,
		Description: req.Description,
		IsActive:    req.IsActive == nil || *req.IsActive,
		CreatedBy:   user.ID,
	}
	if err := h.Repo.Create(r.Context(), backend); err != nil {
		HandleError(w, r, err)
		return
	}

	h.Audit.Record(r.Context(), &user.ID, "backend_created", "backend", backend.ID.String(), map[string]string{"name": backend.Name})
	respondJSON(w, http.StatusCreated, backend)
}

// Update handles PUT /api/v1/backends/{id}
func (h *BackendHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r)
	if !ok {
		respondJSON(w, http.StatusUnauthorized, errorResponse{Message: "Unauthorized"})
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req BackendRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		HandleError(w, r, err)
		return
	}

	backend, err := h.Repo.GetByID(r.Context(), id)
	if err != nil {
		HandleError(w, r, err)
		return
	}

	backend.Name = req.Name
	backend.Host = req.Host
	backend.Port = req.Port
	backend.Scheme = req.Scheme
	backend.Description = req.Description
	if req.IsActive != nil {
		backend.IsActive = *req.IsActive
	}
	if err := h.Repo.Update(r.Context(), backend); err != nil {
		HandleError(w, r, err)
		return
	}

	h.Audit.Record(r.Context(), &user.ID, "backend_updated", "backend", backend.ID.String(), map[string]string{"name": backend.Name})
	respondJSON(w, http.StatusOK, backend)
}

// Delete handles DELETE /api/v1/backends/{id}
func (h *BackendHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r)
	if !ok {
		respondJSON(w, http.StatusUnauthorized, errorResponse{Message: "Unauthorized"})
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := h.Repo.Delete(r.Context(), id); err != nil {
		HandleError(w, r, err)
		return
	}

	h.Audit.Record(r.Context(), &user.ID, "backend_deleted", "backend", id.String(), nil)
	w.WriteHeader(http.StatusNoContent)
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Message: "Invalid ID format"})
		return uuid.Nil, false
	}
	return id, true
}
