package handlers

import (
	"net/http"

	"github.com/irgordon/vela/api/internal/core/services"
)

type CreateUserRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Role     string `json:"role" validate:"required,oneof=admin operator viewer"`
}

type UpdateUserRequest struct {
	Role     string `json:"role" validate:"required,oneof=admin operator viewer"`
	IsActive *bool  `json:"is_active" validate:"required"`
}

type ResetPasswordRequest struct {
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72"`
}

type UserHandler struct {
	Users *services.UserService
	Audit *services.AuditService
}

func NewUserHandler(users *services.UserService, audit *services.AuditService) *UserHandler {
	return &UserHandler{Users: users, Audit: audit}
}

// List handles GET /api/v1/users (admin only).
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.Users.List(r.Context())
	if err != nil {
		HandleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, users)
}

// Create handles POST /api/v1/users (admin only).
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(r)
	if !ok {
		respondJSON(w, http.StatusUnauthorized, errorResponse{Message: "Unauthorized"})
		return
	}

	var req CreateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		HandleError(w, r, err)
		return
	}

	user, err := h.Users.Create(r.Context(), req.Email, req.Password, req.Role)
	if err != nil {
		HandleError(w, r, err)
		return
	}

	h.Audit.Record(r.Context(), &actor.ID, "user_created", "user", user.ID.String(), map[string]string{"email": user.Email, "role": user.Role})
	respondJSON(w, http.StatusCreated, user)
}

// Update handles PUT /api/v1/users/{id} (admin only): role and activation.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(r)
	if !ok {
		respondJSON(w, http.StatusUnauthorized, errorResponse{Message: "Unauthorized"})
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req UpdateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		HandleError(w, r, err)
		return
	}

	user, err := h.Users.Update(r.Context(), actor.ID, id, req.Role, *req.IsActive)
	if err != nil {
		HandleError(w, r, err)
		return
	}

	h.Audit.Record(r.Context(), &actor.ID, "user_updated", "user", user.ID.String(), map[string]string{"role": user.Role})
	respondJSON(w, http.StatusOK, user)
}

// ResetPassword handles PUT /api/v1/users/{id}/password (admin only).
func (h *UserHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(r)
	if !ok {
		respondJSON(w, http.StatusUnauthorized, errorResponse{Message: "Unauthorized"})
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req ResetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		HandleError(w, r, err)
		return
	}

	if err := h.Users.SetPassword(r.Context(), id, req.Password); err != nil {
		HandleError(w, r, err)
		return
	}

	h.Audit.Record(r.Context(), &actor.ID, "user_password_reset", "user", id.String(), nil)
	w.WriteHeader(http.StatusNoContent)
}

// ChangeOwnPassword handles PUT /api/v1/users/me/password. Any authenticated
// account may rotate its own password; the current one must check out.
func (h *UserHandler) ChangeOwnPassword(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(r)
	if !ok {
		respondJSON(w, http.StatusUnauthorized, errorResponse{Message: "Unauthorized"})
		return
	}

	var req ChangePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		HandleError(w, r, err)
		return
	}

	if err := h.Users.ChangePassword(r.Context(), actor.ID, req.CurrentPassword, req.NewPassword); err != nil {
		HandleError(w, r, err)
		return
	}

	h.Audit.Record(r.Context(), &actor.ID, "user_password_changed", "user", actor.ID.String(), nil)
	w.WriteHeader(http.StatusNoContent)
}
