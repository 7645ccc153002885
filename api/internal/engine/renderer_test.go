package engine

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irgordon/vela/api/internal/core/domain"
)

func backend(id, name, host string, port int, active bool) domain.Backend {
	return domain.Backend{
		ID:       uuid.MustParse(id),
		Name:     name,
		Host:     host,
		Port:     port,
		Scheme:   "http",
		IsActive: active,
	}
}

func rule(id, host string, backendID uuid.UUID) domain.Rule {
	return domain.Rule{
		ID:              uuid.MustParse(id),
		Domain:          host,
		BackendID:       backendID,
		IsActive:        true,
		SecurityHeaders: true,
	}
}

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer()
	require.NoError(t, err)
	return r
}

func TestRender_EmptySnapshotIsCompleteConfig(t *testing.T) {
	r := newTestRenderer(t)

	text, warnings, err := r.Render(Snapshot{Settings: domain.ProxySettings{}})
	require.NoError(t, err)
	assert.Empty(t, warnings)

	// Still a full nginx.conf: events, http, and the status server.
	assert.Contains(t, text, "events {")
	assert.Contains(t, text, "worker_connections 768;")
	assert.Contains(t, text, "location = /healthz")
	assert.NotContains(t, text, "proxy_pass")
	assert.NotContains(t, text, "upstream ")
}

func TestRender_Deterministic(t *testing.T) {
	r := newTestRenderer(t)

	b1 := backend("10000000-0000-0000-0000-000000000001", "app", "10.0.0.1", 3000, true)
	b2 := backend("10000000-0000-0000-0000-000000000002", "api", "10.0.0.2", 8080, true)
	snap := Snapshot{
		Backends: []domain.Backend{b1, b2},
		Rules: []domain.Rule{
			rule("20000000-0000-0000-0000-000000000001", "zulu.example.com", b1.ID),
			rule("20000000-0000-0000-0000-000000000002", "alpha.example.com", b2.ID),
		},
		Settings: domain.ProxySettings{},
	}

	first, _, err := r.Render(snap)
	require.NoError(t, err)
	second, _, err := r.Render(snap)
	require.NoError(t, err)
	assert.Equal(t, first, second, "re-rendering identical input must be byte-identical")

	// Server blocks come out in ascending domain order.
	assert.Less(t, strings.Index(first, "server_name alpha.example.com"),
		strings.Index(first, "server_name zulu.example.com"))
}

func TestRender_InactiveBackendExcludesRule(t *testing.T) {
	r := newTestRenderer(t)

	down := backend("10000000-0000-0000-0000-000000000001", "down", "10.0.0.1", 3000, false)
	snap := Snapshot{
		Backends: []domain.Backend{down},
		Rules:    []domain.Rule{rule("20000000-0000-0000-0000-000000000001", "app.example.com", down.ID)},
		Settings: domain.ProxySettings{},
	}

	text, _, err := r.Render(snap)
	require.NoError(t, err)
	assert.NotContains(t, text, "app.example.com")
	assert.NotContains(t, text, "upstream ")
}

func TestRender_NonexistentBackendIsRenderError(t *testing.T) {
	r := newTestRenderer(t)

	snap := Snapshot{
		Rules:    []domain.Rule{rule("20000000-0000-0000-0000-000000000001", "app.example.com", uuid.New())},
		Settings: domain.ProxySettings{},
	}

	_, _, err := r.Render(snap)
	var renderErr *RenderError
	require.ErrorAs(t, err, &renderErr)
	assert.Contains(t, renderErr.Reason, "nonexistent backend")
}

func TestRender_UnreferencedBackendGetsNoUpstream(t *testing.T) {
	r := newTestRenderer(t)

	used := backend("10000000-0000-0000-0000-000000000001", "used", "10.0.0.1", 3000, true)
	idle := backend("10000000-0000-0000-0000-000000000002", "idle", "10.0.0.2", 3001, true)
	snap := Snapshot{
		Backends: []domain.Backend{used, idle},
		Rules:    []domain.Rule{rule("20000000-0000-0000-0000-000000000001", "app.example.com", used.ID)},
		Settings: domain.ProxySettings{},
	}

	text, _, err := r.Render(snap)
	require.NoError(t, err)
	assert.Contains(t, text, upstreamName(used.ID.String()))
	assert.NotContains(t, text, upstreamName(idle.ID.String()))
}

func TestRender_TLSRuleGetsCertAndListener(t *testing.T) {
	r := newTestRenderer(t)

	b := backend("10000000-0000-0000-0000-000000000001", "app", "10.0.0.1", 3000, true)
	c := cert("30000000-0000-0000-0000-000000000001", "app-cert", "app.example.com", false)

	ru := rule("20000000-0000-0000-0000-000000000001", "app.example.com", b.ID)
	ru.EnableHSTS = true
	ru.HSTSMaxAge = 31536000

	snap := Snapshot{
		Backends:     []domain.Backend{b},
		Rules:        []domain.Rule{ru},
		Certificates: []domain.Certificate{c},
		Settings:     domain.ProxySettings{},
	}

	text, _, err := r.Render(snap)
	require.NoError(t, err)
	assert.Contains(t, text, "listen 443 ssl;")
	assert.Contains(t, text, "ssl_certificate /etc/vela/certs/app-cert.crt;")
	assert.Contains(t, text, "ssl_certificate_key /etc/vela/certs/app-cert.key;")
	assert.Contains(t, text, "max-age=31536000")

	// HSTS belongs only to the TLS listener: the plain listener for the same
	// domain must not carry the header.
	plainBlock := text[:strings.Index(text, "listen 443 ssl;")]
	assert.NotContains(t, plainBlock, "Strict-Transport-Security")
}

func TestRender_NoCertificateServesPlainHTTP(t *testing.T) {
	r := newTestRenderer(t)

	b := backend("10000000-0000-0000-0000-000000000001", "app", "10.0.0.1", 3000, true)
	snap := Snapshot{
		Backends: []domain.Backend{b},
		Rules:    []domain.Rule{rule("20000000-0000-0000-0000-000000000001", "app.example.com", b.ID)},
		Settings: domain.ProxySettings{},
	}

	text, _, err := r.Render(snap)
	require.NoError(t, err)
	assert.Contains(t, text, "listen 80;")
	assert.NotContains(t, text, "listen 443")
	assert.NotContains(t, text, "ssl_certificate")
}

func TestRender_ForceHTTPSEmitsRedirect(t *testing.T) {
	r := newTestRenderer(t)

	b := backend("10000000-0000-0000-0000-000000000001", "app", "10.0.0.1", 3000, true)
	c := cert("30000000-0000-0000-0000-000000000001", "app-cert", "app.example.com", false)
	ru := rule("20000000-0000-0000-0000-000000000001", "app.example.com", b.ID)
	ru.ForceHTTPS = true

	snap := Snapshot{
		Backends:     []domain.Backend{b},
		Rules:        []domain.Rule{ru},
		Certificates: []domain.Certificate{c},
		Settings:     domain.ProxySettings{},
	}

	text, _, err := r.Render(snap)
	require.NoError(t, err)
	assert.Contains(t, text, "return 301 https://$host$request_uri;")
}

func TestRender_RateLimitAndAllowlist(t *testing.T) {
	r := newTestRenderer(t)

	b := backend("10000000-0000-0000-0000-000000000001", "app", "10.0.0.1", 3000, true)
	ru := rule("20000000-0000-0000-0000-000000000001", "app.example.com", b.ID)
	ru.RateLimit = "10r/s"
	ru.IPAllowlist = []string{"10.1.0.0/16", "192.168.1.5"}

	snap := Snapshot{
		Backends: []domain.Backend{b},
		Rules:    []domain.Rule{ru},
		Settings: domain.ProxySettings{},
	}

	text, _, err := r.Render(snap)
	require.NoError(t, err)
	zone := rateZoneName(ru.ID.String())
	assert.Contains(t, text, "limit_req_zone $binary_remote_addr zone="+zone+":10m rate=10r/s;")
	assert.Contains(t, text, "limit_req zone="+zone)
	assert.Contains(t, text, "allow 10.1.0.0/16;")
	assert.Contains(t, text, "allow 192.168.1.5;")
	assert.Contains(t, text, "deny all;")
}

func TestRender_SecurityHeadersToggle(t *testing.T) {
	r := newTestRenderer(t)

	b := backend("10000000-0000-0000-0000-000000000001", "app", "10.0.0.1", 3000, true)
	ru := rule("20000000-0000-0000-0000-000000000001", "app.example.com", b.ID)
	ru.SecurityHeaders = false

	snap := Snapshot{
		Backends: []domain.Backend{b},
		Rules:    []domain.Rule{ru},
		Settings: domain.ProxySettings{},
	}

	text, _, err := r.Render(snap)
	require.NoError(t, err)
	assert.NotContains(t, text, "X-Frame-Options")
	assert.NotContains(t, text, "X-Content-Type-Options")
}

func TestRender_RejectsDirectiveInjection(t *testing.T) {
	r := newTestRenderer(t)
	b := backend("10000000-0000-0000-0000-000000000001", "app", "10.0.0.1", 3000, true)

	tests := []struct {
		name   string
		mutate func(*domain.Rule)
	}{
		{"domain with directive break", func(ru *domain.Rule) { ru.Domain = "evil.com;}\nserver{" }},
		{"path with semicolon", func(ru *domain.Rule) { ru.PathPattern = "/ok; deny all" }},
		{"rate limit with payload", func(ru *domain.Rule) { ru.RateLimit = "10r/s; include /etc/passwd" }},
		{"allowlist with directive", func(ru *domain.Rule) { ru.IPAllowlist = []string{"all; deny none"} }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ru := rule("20000000-0000-0000-0000-000000000001", "app.example.com", b.ID)
			tc.mutate(&ru)
			snap := Snapshot{
				Backends: []domain.Backend{b},
				Rules:    []domain.Rule{ru},
				Settings: domain.ProxySettings{},
			}
			_, _, err := r.Render(snap)
			var renderErr *RenderError
			assert.ErrorAs(t, err, &renderErr)
		})
	}
}

func TestRender_SettingsFlowThroughVerbatim(t *testing.T) {
	r := newTestRenderer(t)

	snap := Snapshot{
		Settings: domain.ProxySettings{
			SettingWorkerConnections: "2048",
			SettingClientMaxBodySize: "50m",
			SettingProxyReadTimeout:  "120",
			"unknown_key":            "ignored",
		},
	}

	text, _, err := r.Render(snap)
	require.NoError(t, err)
	assert.Contains(t, text, "worker_connections 2048;")
	assert.Contains(t, text, "client_max_body_size 50m;")
	assert.NotContains(t, text, "ignored")
}

func TestRender_MultipleDefaultCertsSurfaceWarning(t *testing.T) {
	r := newTestRenderer(t)

	b := backend("10000000-0000-0000-0000-000000000001", "app", "10.0.0.1", 3000, true)
	d1 := cert("30000000-0000-0000-0000-0000000000aa", "one", "one.example.net", true)
	d2 := cert("30000000-0000-0000-0000-0000000000bb", "two", "two.example.net", true)

	snap := Snapshot{
		Backends:     []domain.Backend{b},
		Rules:        []domain.Rule{rule("20000000-0000-0000-0000-000000000001", "app.example.com", b.ID)},
		Certificates: []domain.Certificate{d1, d2},
		Settings:     domain.ProxySettings{},
	}

	text, warnings, err := r.Render(snap)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "default flag")
	assert.Contains(t, text, "ssl_certificate /etc/vela/certs/one.crt;")
}
