package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Validator checks a candidate configuration without touching the live one.
type Validator interface {
	Validate(ctx context.Context, config string) error
}

// NginxValidator shells out to the proxy binary's own syntax checker
// ("nginx -t") against a private temporary file. Each invocation gets a
// fresh unique path, so overlapping calls never share state.
type NginxValidator struct {
	Binary  string
	Timeout time.Duration
}

func NewNginxValidator(binary string, timeout time.Duration) *NginxValidator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &NginxValidator{Binary: binary, Timeout: timeout}
}

func (v *NginxValidator) Validate(ctx context.Context, config string) error {
	tmp, err := os.CreateTemp("", "vela-candidate-*.conf")
	if err != nil {
		return fmt.Errorf("create candidate file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(config); err != nil {
		tmp.Close()
		return fmt.Errorf("write candidate file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close candidate file: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, v.Timeout)
	defer cancel()

	// nginx -t prints its verdict on stderr; keep it verbatim so operators
	// see the proxy's own diagnostics.
	out, err := exec.CommandContext(ctx, v.Binary, "-t", "-c", tmp.Name()).CombinedOutput()
	if err != nil {
		diagnostics := strings.TrimSpace(string(out))
		if diagnostics == "" {
			diagnostics = err.Error()
		}
		return &ValidationError{Diagnostics: diagnostics}
	}
	return nil
}
