package handlers

import (
	"net/http"

	"github.com/irgordon/vela/api/internal/core/services"
)

type UploadCertificateRequest struct {
	Name          string `json:"name" validate:"required,max=100"`
	DomainPattern string `json:"domain_pattern" validate:"required,max=255"`
	CertPEM       string `json:"cert_pem" validate:"required"`
	KeyPEM        string `json:"key_pem" validate:"required"`
	IsDefault     bool   `json:"is_default"`
}

type ProvisionCertificateRequest struct {
	Domain string `json:"domain" validate:"required,fqdn,max=255"`
}

type CertificateHandler struct {
	Certs *services.CertificateService
	Acme  *services.AcmeService
	Audit *services.AuditService
}

func NewCertificateHandler(certs *services.CertificateService, acme *services.AcmeService, audit *services.AuditService) *CertificateHandler {
	return &CertificateHandler{Certs: certs, Acme: acme, Audit: audit}
}

// List handles GET /api/v1/certificates
func (h *CertificateHandler) List(w http.ResponseWriter, r *http.Request) {
	certs, err := h.Certs.List(r.Context())
	if err != nil {
		HandleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, certs)
}

// Upload handles POST /api/v1/certificates
func (h *CertificateHandler) Upload(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r)
	if !ok {
		respondJSON(w, http.StatusUnauthorized, errorResponse{Message: "Unauthorized"})
		return
	}

	var req UploadCertificateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		HandleError(w, r, err)
		return
	}

	cert, err := h.Certs.Upload(r.Context(), user.ID, req.Name, req.DomainPattern, req.CertPEM, req.KeyPEM, req.IsDefault)
	if err != nil {
		HandleError(w, r, err)
		return
	}

	h.Audit.Record(r.Context(), &user.ID, "certificate_uploaded", "certificate", cert.ID.String(), map[string]string{"pattern": cert.DomainPattern})
	respondJSON(w, http.StatusCreated, cert)
}

// Provision handles POST /api/v1/certificates/provision
// Runs the ACME flow synchronously; the CA handshake can take a while, so the
// route sits behind the request timeout middleware.
func (h *CertificateHandler) Provision(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r)
	if !ok {
		respondJSON(w, http.StatusUnauthorized, errorResponse{Message: "Unauthorized"})
		return
	}

	var req ProvisionCertificateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		HandleError(w, r, err)
		return
	}

	cert, err := h.Acme.Provision(r.Context(), user.ID, req.Domain)
	if err != nil {
		HandleError(w, r, err)
		return
	}

	h.Audit.Record(r.Context(), &user.ID, "certificate_provisioned", "certificate", cert.ID.String(), map[string]string{"domain": req.Domain})
	respondJSON(w, http.StatusCreated, cert)
}

// SetDefault handles POST /api/v1/certificates/{id}/default
func (h *CertificateHandler) SetDefault(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r)
	if !ok {
		respondJSON(w, http.StatusUnauthorized, errorResponse{Message: "Unauthorized"})
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	cert, err := h.Certs.SetDefault(r.Context(), id)
	if err != nil {
		HandleError(w, r, err)
		return
	}

	h.Audit.Record(r.Context(), &user.ID, "certificate_default_changed", "certificate", id.String(), nil)
	respondJSON(w, http.StatusOK, cert)
}

// Delete handles DELETE /api/v1/certificates/{id}
func (h *CertificateHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r)
	if !ok {
		respondJSON(w, http.StatusUnauthorized, errorResponse{Message: "Unauthorized"})
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := h.Certs.Delete(r.Context(), id); err != nil {
		HandleError(w, r, err)
		return
	}

	h.Audit.Record(r.Context(), &user.ID, "certificate_deleted", "certificate", id.String(), nil)
	w.WriteHeader(http.StatusNoContent)
}
