package handlers

import (
	"net/http"
	"time"

	"github.com/irgordon/vela/api/internal/core/services"
)

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type AuthHandler struct {
	Auth *services.AuthService
}

func NewAuthHandler(auth *services.AuthService) *AuthHandler {
	return &AuthHandler{Auth: auth}
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		HandleError(w, r, err)
		return
	}

	access, refresh, err := h.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		HandleError(w, r, err)
		return
	}

	h.setAuthCookies(w, access, refresh)
	respondJSON(w, http.StatusOK, map[string]string{
		"access_token":  access,
		"refresh_token": refresh,
	})
}

// Refresh handles POST /api/v1/auth/refresh (the silent refresh flow)
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie("vela_refresh_token")
	if err != nil {
		respondJSON(w, http.StatusUnauthorized, errorResponse{Message: "No refresh token provided"})
		return
	}

	access, refresh, err := h.Auth.Refresh(r.Context(), cookie.Value)
	if err != nil {
		// Expired or tampered token: clear the dead cookies so the client
		// falls back to a full login.
		h.clearCookies(w)
		respondJSON(w, http.StatusUnauthorized, errorResponse{Message: "Session expired, please log in again"})
		return
	}

	h.setAuthCookies(w, access, refresh)
	respondJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

func (h *AuthHandler) setAuthCookies(w http.ResponseWriter, accessToken, refreshToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     "vela_access_token",
		Value:    accessToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(15 * time.Minute.Seconds()),
	})

	http.SetCookie(w, &http.Cookie{
		Name:     "vela_refresh_token",
		Value:    refreshToken,
		Path:     "/api/v1/auth/refresh", // 🛡️ only ever sent to the refresh endpoint
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(7 * 24 * time.Hour.Seconds()),
	})
}

func (h *AuthHandler) clearCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     "vela_access_token",
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     "vela_refresh_token",
		Value:    "",
		Path:     "/api/v1/auth/refresh",
		HttpOnly: true,
		MaxAge:   -1,
	})
}
