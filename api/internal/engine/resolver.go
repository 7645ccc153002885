package engine

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/irgordon/vela/api/internal/core/domain"
)

// ResolveCertificate picks the certificate a rule should terminate TLS with,
// or nil when the rule serves plain HTTP. Precedence, first match wins:
//
//  1. The rule's explicit certificate reference. An explicit assignment is
//     never overridden, even when expired — expiry is a monitoring concern.
//  2. A certificate whose pattern is an exact, case-insensitive match.
//  3. A certificate whose pattern is a single-level wildcard covering the
//     domain ("*.example.com" matches "api.example.com", not "a.b.example.com").
//  4. The default-flagged certificate.
//  5. None.
//
// The returned warning is non-empty when the certificate set violates the
// single-default invariant; the caller routes it to the audit trail.
func ResolveCertificate(rule domain.Rule, certs []domain.Certificate) (*domain.Certificate, string) {
	if rule.CertificateID != nil {
		for i := range certs {
			if certs[i].ID == *rule.CertificateID {
				return &certs[i], ""
			}
		}
		// Dangling reference: fall through to pattern matching rather than
		// failing the whole render.
	}

	ruleDomain := strings.ToLower(rule.Domain)

	if c := pickByID(certs, func(c *domain.Certificate) bool {
		return strings.EqualFold(c.DomainPattern, ruleDomain)
	}); c != nil {
		return c, ""
	}

	if c := pickByID(certs, func(c *domain.Certificate) bool {
		return wildcardMatches(c.DomainPattern, ruleDomain)
	}); c != nil {
		return c, ""
	}

	var defaults []*domain.Certificate
	for i := range certs {
		if certs[i].IsDefault {
			defaults = append(defaults, &certs[i])
		}
	}
	switch len(defaults) {
	case 0:
		return nil, ""
	case 1:
		return defaults[0], ""
	}

	// The write path is supposed to keep at most one default flag set. If it
	// didn't, pick the smallest ID so the choice stays deterministic, and
	// tell the operator about the violation.
	chosen := defaults[0]
	for _, c := range defaults[1:] {
		if bytes.Compare(c.ID[:], chosen.ID[:]) < 0 {
			chosen = c
		}
	}
	warning := fmt.Sprintf(
		"%d certificates carry the default flag; deterministically using %q (%s)",
		len(defaults), chosen.Name, chosen.ID,
	)
	return chosen, warning
}

// pickByID returns the matching certificate with the smallest ID, keeping
// resolution deterministic even when patterns overlap.
func pickByID(certs []domain.Certificate, match func(*domain.Certificate) bool) *domain.Certificate {
	var best *domain.Certificate
	for i := range certs {
		if !match(&certs[i]) {
			continue
		}
		if best == nil || bytes.Compare(certs[i].ID[:], best.ID[:]) < 0 {
			best = &certs[i]
		}
	}
	return best
}

// wildcardMatches reports whether pattern is a single-level wildcard that
// covers name. "*.example.com" covers "api.example.com" but neither
// "example.com" nor "a.b.example.com"; wildcards never recurse.
func wildcardMatches(pattern, name string) bool {
	if !strings.HasPrefix(pattern, "*.") {
		return false
	}
	suffix := strings.ToLower(pattern[1:]) // ".example.com"
	if !strings.HasSuffix(name, suffix) {
		return false
	}
	label := name[:len(name)-len(suffix)]
	return label != "" && !strings.Contains(label, ".")
}
