package engine

import (
	"bytes"
	"embed"
	"fmt"
	"net/netip"
	"regexp"
	"sort"
	"strings"
	"text/template"

	"github.com/irgordon/vela/api/internal/core/domain"
)

//go:embed templates/nginx.conf.tmpl
var templateFS embed.FS

// Settings keys the renderer understands; anything else in the map is
// ignored. Values are emitted as given, without unit conversion.
const (
	SettingWorkerConnections   = "worker_connections"
	SettingClientMaxBodySize   = "client_max_body_size"
	SettingKeepaliveTimeout    = "keepalive_timeout"
	SettingProxyConnectTimeout = "proxy_connect_timeout"
	SettingProxySendTimeout    = "proxy_send_timeout"
	SettingProxyReadTimeout    = "proxy_read_timeout"
	SettingStatusPort          = "status_port"
)

// DefaultStatusPort is the loopback port of the always-present status server
// block. The health prober targets it after every reload.
const DefaultStatusPort = "8999"

var (
	domainPattern    = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9-]*[a-z0-9])?)+$`)
	pathPattern      = regexp.MustCompile(`^/[A-Za-z0-9_./-]*$`)
	rateLimitPattern = regexp.MustCompile(`^[1-9][0-9]{0,5}r/[sm]$`)
	numberPattern    = regexp.MustCompile(`^[0-9]{1,9}$`)
	sizePattern      = regexp.MustCompile(`^[0-9]{1,9}[kKmMgG]?$`)
)

type globalView struct {
	WorkerConnections   string
	ClientMaxBodySize   string
	KeepaliveTimeout    string
	ProxyConnectTimeout string
	ProxySendTimeout    string
	ProxyReadTimeout    string
	StatusPort          string
}

type upstreamView struct {
	Name string
	Addr string
}

type rateZoneView struct {
	Zone string
	Rate string
}

// serverView is one fully resolved server block. The template stays dumb:
// everything conditional is decided here so re-rendering identical input
// always yields byte-identical output.
type serverView struct {
	Domain          string
	Listen          string
	TLS             bool
	RedirectToHTTPS bool
	CertPath        string
	KeyPath         string
	HSTS            bool
	HSTSMaxAge      int
	SecurityHeaders bool
	RateZone        string
	Allowlist       []string
	Path            string
	Target          string // proxy_pass target, e.g. "http://up_ab12..."
}

type templateData struct {
	Global    globalView
	RateZones []rateZoneView
	Upstreams []upstreamView
	Servers   []serverView
}

// Renderer turns a snapshot into a complete nginx.conf. It is a pure
// function of its input: no clock, no filesystem, no randomness.
type Renderer struct {
	tmpl *template.Template
}

func NewRenderer() (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/nginx.conf.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse nginx template: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Render produces the configuration text plus any non-fatal resolution
// warnings. An empty rule set still renders a complete, valid file.
func (r *Renderer) Render(snap Snapshot) (string, []string, error) {
	data, warnings, err := buildTemplateData(snap)
	if err != nil {
		return "", nil, err
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return "", nil, &RenderError{Reason: fmt.Sprintf("template execution: %v", err)}
	}
	return buf.String(), warnings, nil
}

func buildTemplateData(snap Snapshot) (*templateData, []string, error) {
	global, err := buildGlobalView(snap.Settings)
	if err != nil {
		return nil, nil, err
	}

	activeBackends := make(map[string]*domain.Backend)
	for i := range snap.Backends {
		b := &snap.Backends[i]
		if !b.IsActive {
			continue
		}
		if b.Port < 1 || b.Port > 65535 {
			return nil, nil, &RenderError{Reason: fmt.Sprintf("backend %q has out-of-range port %d", b.Name, b.Port)}
		}
		if !validHost(b.Host) {
			return nil, nil, &RenderError{Reason: fmt.Sprintf("backend %q has an invalid host %q", b.Name, b.Host)}
		}
		activeBackends[b.ID.String()] = b
	}

	knownBackends := make(map[string]bool, len(snap.Backends))
	for i := range snap.Backends {
		knownBackends[snap.Backends[i].ID.String()] = true
	}

	var warnings []string
	var rules []ruleBinding
	for i := range snap.Rules {
		rule := snap.Rules[i]
		if !rule.IsActive {
			continue
		}
		if !knownBackends[rule.BackendID.String()] {
			// The data layer should have filtered this out; treat it as a bug
			// in the upstream snapshot, fatal to this attempt.
			return nil, nil, &RenderError{Reason: fmt.Sprintf("rule %q references nonexistent backend %s", rule.Domain, rule.BackendID)}
		}
		backend, ok := activeBackends[rule.BackendID.String()]
		if !ok {
			continue // backend exists but is inactive: rule drops out of generation
		}
		if err := checkRule(&rule); err != nil {
			return nil, nil, err
		}

		cert, warn := ResolveCertificate(rule, snap.Certificates)
		if warn != "" {
			warnings = append(warnings, warn)
		}
		if cert != nil && (!pathPattern.MatchString(cert.CertPath) || !pathPattern.MatchString(cert.KeyPath)) {
			return nil, nil, &RenderError{Reason: fmt.Sprintf("certificate %q has an invalid file path", cert.Name)}
		}
		rules = append(rules, ruleBinding{rule: rule, backend: backend, cert: cert})
	}

	sort.Slice(rules, func(i, j int) bool {
		di, dj := strings.ToLower(rules[i].rule.Domain), strings.ToLower(rules[j].rule.Domain)
		if di != dj {
			return di < dj
		}
		return bytes.Compare(rules[i].rule.ID[:], rules[j].rule.ID[:]) < 0
	})

	data := &templateData{
		Global:    global,
		RateZones: buildRateZones(rules),
		Upstreams: buildUpstreams(rules),
		Servers:   buildServers(rules),
	}
	return data, warnings, nil
}

type ruleBinding struct {
	rule    domain.Rule
	backend *domain.Backend
	cert    *domain.Certificate
}

func buildGlobalView(settings domain.ProxySettings) (globalView, error) {
	g := globalView{
		WorkerConnections:   settings.Get(SettingWorkerConnections, "768"),
		ClientMaxBodySize:   settings.Get(SettingClientMaxBodySize, "20m"),
		KeepaliveTimeout:    settings.Get(SettingKeepaliveTimeout, "65"),
		ProxyConnectTimeout: settings.Get(SettingProxyConnectTimeout, "60"),
		ProxySendTimeout:    settings.Get(SettingProxySendTimeout, "60"),
		ProxyReadTimeout:    settings.Get(SettingProxyReadTimeout, "60"),
		StatusPort:          settings.Get(SettingStatusPort, DefaultStatusPort),
	}
	for name, v := range map[string]string{
		SettingWorkerConnections:   g.WorkerConnections,
		SettingKeepaliveTimeout:    g.KeepaliveTimeout,
		SettingProxyConnectTimeout: g.ProxyConnectTimeout,
		SettingProxySendTimeout:    g.ProxySendTimeout,
		SettingProxyReadTimeout:    g.ProxyReadTimeout,
		SettingStatusPort:          g.StatusPort,
	} {
		if !numberPattern.MatchString(v) {
			return globalView{}, &RenderError{Reason: fmt.Sprintf("setting %s has non-numeric value %q", name, v)}
		}
	}
	if !sizePattern.MatchString(g.ClientMaxBodySize) {
		return globalView{}, &RenderError{Reason: fmt.Sprintf("setting %s has invalid size %q", SettingClientMaxBodySize, g.ClientMaxBodySize)}
	}
	return g, nil
}

// checkRule rejects any value that could smuggle directives into the
// rendered file. Escaping nginx syntax is fragile; strict character sets
// are not.
func checkRule(rule *domain.Rule) error {
	if !domainPattern.MatchString(strings.ToLower(rule.Domain)) {
		return &RenderError{Reason: fmt.Sprintf("rule domain %q is not a valid hostname", rule.Domain)}
	}
	if p := rulePath(rule); !pathPattern.MatchString(p) {
		return &RenderError{Reason: fmt.Sprintf("rule %q has an invalid path pattern %q", rule.Domain, p)}
	}
	if rule.RateLimit != "" && !rateLimitPattern.MatchString(rule.RateLimit) {
		return &RenderError{Reason: fmt.Sprintf("rule %q has an invalid rate limit %q", rule.Domain, rule.RateLimit)}
	}
	if rule.EnableHSTS && rule.HSTSMaxAge < 0 {
		return &RenderError{Reason: fmt.Sprintf("rule %q has a negative HSTS max-age", rule.Domain)}
	}
	for _, entry := range rule.IPAllowlist {
		if !validAllowlistEntry(entry) {
			return &RenderError{Reason: fmt.Sprintf("rule %q has an invalid allowlist entry %q", rule.Domain, entry)}
		}
	}
	return nil
}

func rulePath(rule *domain.Rule) string {
	if rule.PathPattern == "" {
		return "/"
	}
	return rule.PathPattern
}

func validAllowlistEntry(entry string) bool {
	if _, err := netip.ParseAddr(entry); err == nil {
		return true
	}
	if _, err := netip.ParsePrefix(entry); err == nil {
		return true
	}
	return false
}

func validHost(host string) bool {
	if _, err := netip.ParseAddr(host); err == nil {
		return true
	}
	return domainPattern.MatchString(strings.ToLower(host)) || host == "localhost"
}

// upstreamName derives a stable nginx identifier from the backend ID.
func upstreamName(id string) string {
	return "up_" + strings.ReplaceAll(id, "-", "")
}

func rateZoneName(id string) string {
	return "rl_" + strings.ReplaceAll(id, "-", "")
}

func buildUpstreams(rules []ruleBinding) []upstreamView {
	seen := make(map[string]bool)
	var ups []upstreamView
	for _, rb := range rules {
		id := rb.backend.ID.String()
		if seen[id] {
			continue
		}
		seen[id] = true
		ups = append(ups, upstreamView{
			Name: upstreamName(id),
			Addr: fmt.Sprintf("%s:%d", rb.backend.Host, rb.backend.Port),
		})
	}
	sort.Slice(ups, func(i, j int) bool { return ups[i].Name < ups[j].Name })
	return ups
}

func buildRateZones(rules []ruleBinding) []rateZoneView {
	var zones []rateZoneView
	for _, rb := range rules {
		if rb.rule.RateLimit == "" {
			continue
		}
		zones = append(zones, rateZoneView{
			Zone: rateZoneName(rb.rule.ID.String()),
			Rate: rb.rule.RateLimit,
		})
	}
	sort.Slice(zones, func(i, j int) bool { return zones[i].Zone < zones[j].Zone })
	return zones
}

// buildServers expands each retained rule into its concrete server blocks:
// plain listeners first, then TLS listeners, each sorted by domain. A rule
// with no resolvable certificate is served HTTP-only, which is a
// generation-time decision rather than an error.
func buildServers(rules []ruleBinding) []serverView {
	var plain, tls []serverView
	for _, rb := range rules {
		rule := rb.rule
		common := serverView{
			Domain:          strings.ToLower(rule.Domain),
			SecurityHeaders: rule.SecurityHeaders,
			Path:            rulePath(&rule),
			Target:          fmt.Sprintf("%s://%s", rb.backend.Scheme, upstreamName(rb.backend.ID.String())),
			Allowlist:       rule.IPAllowlist,
		}
		if rule.RateLimit != "" {
			common.RateZone = rateZoneName(rule.ID.String())
		}

		if rb.cert == nil {
			v := common
			v.Listen = "80"
			plain = append(plain, v)
			continue
		}

		if rule.ForceHTTPS {
			redirect := serverView{
				Domain:          common.Domain,
				Listen:          "80",
				RedirectToHTTPS: true,
			}
			plain = append(plain, redirect)
		} else {
			v := common
			v.Listen = "80"
			plain = append(plain, v)
		}

		secure := common
		secure.Listen = "443 ssl"
		secure.TLS = true
		secure.CertPath = rb.cert.CertPath
		secure.KeyPath = rb.cert.KeyPath
		secure.HSTS = rule.EnableHSTS
		secure.HSTSMaxAge = rule.HSTSMaxAge
		tls = append(tls, secure)
	}
	return append(plain, tls...)
}
