package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/irgordon/vela/api/internal/core/domain"
	"github.com/irgordon/vela/api/internal/core/services"
)

type RuleRequest struct {
	// fqdn keeps malformed hostnames away from the nginx template.
	Domain        string   `json:"domain" validate:"required,fqdn,max=255"`
	BackendID     string   `json:"backend_id" validate:"required,uuid4"`
	CertificateID string   `json:"certificate_id,omitempty" validate:"omitempty,uuid4"`
	PathPattern   string   `json:"path_pattern" validate:"omitempty,startswith=/,max=255"`
	ForceHTTPS    bool     `json:"force_https"`
	EnableHSTS    bool     `json:"enable_hsts"`
	HSTSMaxAge    int      `json:"hsts_max_age" validate:"omitempty,min=0,max=63072000"`
	RateLimit     string   `json:"rate_limit" validate:"omitempty,max=16"`
	IPAllowlist   []string `json:"ip_allowlist" validate:"omitempty,dive,cidr|ip"`
	SecurityHdrs  *bool    `json:"security_headers"`
	IsActive      *bool    `json:"is_active"`
}

type RuleHandler struct {
	Repo     domain.RuleRepository
	Backends domain.BackendRepository
	Audit    *services.AuditService
}

func NewRuleHandler(repo domain.RuleRepository, backends domain.BackendRepository, audit *services.AuditService) *RuleHandler {
	return &RuleHandler{Repo: repo, Backends: backends, Audit: audit}
}

// List handles GET /api/v1/rules
func (h *RuleHandler) List(w http.ResponseWriter, r *http.Request) {
	rules, err := h.Repo.List(r.Context())
	if err != nil {
		HandleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, rules)
}

// GetByID handles GET /api/v1/rules/{id}
func (h *RuleHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	rule, err := h.Repo.GetByID(r.Context(), id)
	if err != nil {
		HandleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

// Create handles POST /api/v1/rules
func (h *RuleHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r)
	if !ok {
		respondJSON(w, http.StatusUnauthorized, errorResponse{Message: "Unauthorized"})
		return
	}

	rule, ok := h.ruleFromRequest(w, r)
	if !ok {
		return
	}
	rule.CreatedBy = user.ID

	// The backend must exist before the rule points at it; the renderer would
	// reject the whole snapshot otherwise.
	if _, err := h.Backends.GetByID(r.Context(), rule.BackendID); err != nil {
		HandleError(w, r, err)
		return
	}

	if err := h.Repo.Create(r.Context(), rule); err != nil {
		HandleError(w, r, err)
		return
	}

	h.Audit.Record(r.Context(), &user.ID, "rule_created", "rule", rule.ID.String(), map[string]string{"domain": rule.Domain})
	respondJSON(w, http.StatusCreated, rule)
}

// Update handles PUT /api/v1/rules/{id}
func (h *RuleHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r)
	if !ok {
		respondJSON(w, http.StatusUnauthorized, errorResponse{Message: "Unauthorized"})
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	existing, err := h.Repo.GetByID(r.Context(), id)
	if err != nil {
		HandleError(w, r, err)
		return
	}

	updated, ok := h.ruleFromRequest(w, r)
	if !ok {
		return
	}
	updated.ID = existing.ID
	updated.CreatedBy = existing.CreatedBy

	if _, err := h.Backends.GetByID(r.Context(), updated.BackendID); err != nil {
		HandleError(w, r, err)
		return
	}

	if err := h.Repo.Update(r.Context(), updated); err != nil {
		HandleError(w, r, err)
		return
	}

	h.Audit.Record(r.Context(), &user.ID, "rule_updated", "rule", updated.ID.String(), map[string]string{"domain": updated.Domain})
	respondJSON(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/v1/rules/{id}
func (h *RuleHandler) Delete(w http.ResponseWriter, r *http.Request) {
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

	h.Audit.Record(r.Context(), &user.ID, "rule_deleted", "rule", id.String(), nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *RuleHandler) ruleFromRequest(w http.ResponseWriter, r *http.Request) (*domain.Rule, bool) {
	var req RuleRequest
	if !decodeJSON(w, r, &req) {
		return nil, false
	}
	if err := validate.Struct(req); err != nil {
		HandleError(w, r, err)
		return nil, false
	}

	backendID, err := uuid.Parse(req.BackendID)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Message: "Invalid backend ID format"})
		return nil, false
	}

	rule := &domain.Rule{
		Domain:          req.Domain,
		BackendID:       backendID,
		PathPattern:     req.PathPattern,
		ForceHTTPS:      req.ForceHTTPS,
		EnableHSTS:      req.EnableHSTS,
		HSTSMaxAge:      req.HSTSMaxAge,
		RateLimit:       req.RateLimit,
		IPAllowlist:     req.IPAllowlist,
		SecurityHeaders: req.SecurityHdrs == nil || *req.SecurityHdrs,
		IsActive:        req.IsActive == nil || *req.IsActive,
	}
	if req.CertificateID != "" {
		certID, err := uuid.Parse(req.CertificateID)
		if err != nil {
			respondJSON(w, http.StatusBadRequest, errorResponse{Message: "Invalid certificate ID format"})
			return nil, false
		}
		rule.CertificateID = &certID
	}
	return rule, true
}
