package engine

import (
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"strings"
	"time"
)

// Signaler delivers the proxy's graceful-reload signal.
type Signaler interface {
	Reload(ctx context.Context) error
}

// HealthProber confirms the proxy is alive and answering after a reload.
type HealthProber interface {
	Probe(ctx context.Context) error
}

// NginxSignaler asks the running master process to re-read its
// configuration via "nginx -s reload".
type NginxSignaler struct {
	Binary  string
	Timeout time.Duration
}

func NewNginxSignaler(binary string, timeout time.Duration) *NginxSignaler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &NginxSignaler{Binary: binary, Timeout: timeout}
}

func (s *NginxSignaler) Reload(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, s.Binary, "-s", "reload").CombinedOutput()
	if err != nil {
		return &SignalError{Output: strings.TrimSpace(string(out)), Err: err}
	}
	return nil
}

// HTTPProber polls the proxy's own status endpoint until it answers 200 or
// the deadline passes. The status server block is emitted unconditionally
// by the renderer, so the probe target exists in every generated config.
type HTTPProber struct {
	URL      string
	Deadline time.Duration
	Interval time.Duration
	client   *http.Client
}

func NewHTTPProber(url string, deadline time.Duration) *HTTPProber {
	if deadline <= 0 {
		deadline = 10 * time.Second
	}
	return &HTTPProber{
		URL:      url,
		Deadline: deadline,
		Interval: 250 * time.Millisecond,
		client:   &http.Client{Timeout: 2 * time.Second},
	}
}

func (p *HTTPProber) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.Deadline)
	defer cancel()

	var lastErr error
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
		if err != nil {
			return &VerifyError{Err: err}
		}
		resp, err := p.client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
			lastErr = fmt.Errorf("status endpoint answered %d", resp.StatusCode)
		} else {
			lastErr = err
		}

		select {
		case <-ctx.Done():
			return &VerifyError{Err: fmt.Errorf("deadline exceeded: %w", lastErr)}
		case <-time.After(p.Interval):
		}
	}
}
