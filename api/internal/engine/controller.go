package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/irgordon/vela/api/internal/core/domain"
)

// Reload outcomes, one audit event each.
const (
	OutcomeCommitted      = "committed"
	OutcomeRolledBack     = "rolled_back"
	OutcomeAborted        = "aborted"
	OutcomeRollbackFailed = "rollback_failed"
)

// Result describes a terminal reload state. After any outcome other than
// Committed the previously committed configuration is still the live one —
// except RollbackFailed, which demands operator intervention.
type Result struct {
	Outcome     string   `json:"outcome"`
	ConfigHash  string   `json:"config_hash,omitempty"`
	Diagnostics string   `json:"diagnostics,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
}

// AuditEmitter receives one structured event per terminal reload outcome,
// plus non-fatal resolution warnings.
type AuditEmitter interface {
	Emit(ctx context.Context, event domain.AuditEvent)
}

// Controller owns the live configuration file and its single rollback slot.
// One process-wide mutex serializes reload attempts: concurrent triggers
// queue instead of racing, so bursts of edits collapse into one reload that
// reflects the latest snapshot.
type Controller struct {
	mu sync.Mutex

	renderer  *Renderer
	validator Validator
	signaler  Signaler
	prober    HealthProber
	audit     AuditEmitter
	logger    *slog.Logger

	livePath   string
	backupPath string
}

func NewController(
	renderer *Renderer,
	validator Validator,
	signaler Signaler,
	prober HealthProber,
	audit AuditEmitter,
	livePath, backupPath string,
	logger *slog.Logger,
) *Controller {
	return &Controller{
		renderer:   renderer,
		validator:  validator,
		signaler:   signaler,
		prober:     prober,
		audit:      audit,
		livePath:   livePath,
		backupPath: backupPath,
		logger:     logger,
	}
}

// Preview renders and validates a candidate without taking the reload mutex
// or touching the live file. Useful as a dry run before a risky change.
func (c *Controller) Preview(ctx context.Context, snap Snapshot) (string, []string, error) {
	text, warnings, err := c.renderer.Render(snap)
	if err != nil {
		return "", nil, err
	}
	if err := c.validator.Validate(ctx, text); err != nil {
		return text, warnings, err
	}
	return text, warnings, nil
}

// Apply runs the full render → validate → backup → swap → signal → verify
// pipeline. The returned Result is always non-nil for terminal outcomes;
// the error carries the engine's typed failure when the outcome is not
// Committed.
func (c *Controller) Apply(ctx context.Context, snap Snapshot, actorID *uuid.UUID) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Rendering. A failure here means the upstream snapshot is broken;
	// nothing on disk has been touched yet.
	text, warnings, err := c.renderer.Render(snap)
	if err != nil {
		res := &Result{Outcome: OutcomeAborted, Diagnostics: err.Error()}
		c.emit(ctx, actorID, "reload_aborted", domain.SeverityWarning, res)
		return res, err
	}
	hash := configHash(text)
	for _, w := range warnings {
		c.emitWarning(ctx, actorID, w)
	}

	// Validating. This is the primary safety gate: a syntactically broken
	// configuration is never swapped in.
	if err := c.validator.Validate(ctx, text); err != nil {
		res := &Result{Outcome: OutcomeAborted, ConfigHash: hash, Diagnostics: err.Error(), Warnings: warnings}
		c.emit(ctx, actorID, "reload_aborted", domain.SeverityWarning, res)
		return res, err
	}

	// Backing up. The rollback slot always holds the configuration that was
	// live immediately before the most recent swap.
	previous, hadPrevious, err := c.backupLive()
	if err != nil {
		swapErr := &SwapError{Path: c.backupPath, Err: err}
		res := &Result{Outcome: OutcomeAborted, ConfigHash: hash, Diagnostics: swapErr.Error(), Warnings: warnings}
		c.emit(ctx, actorID, "reload_aborted", domain.SeverityWarning, res)
		return res, swapErr
	}

	// Swapping. Write-to-temp-then-rename: the live path is never observed
	// half-written.
	if err := writeFileAtomic(c.livePath, []byte(text), 0o644); err != nil {
		swapErr := &SwapError{Path: c.livePath, Err: err}
		res := &Result{Outcome: OutcomeAborted, ConfigHash: hash, Diagnostics: swapErr.Error(), Warnings: warnings}
		c.emit(ctx, actorID, "reload_aborted", domain.SeverityWarning, res)
		return res, swapErr
	}

	// Signaling and verifying. Any failure past this point triggers the
	// rollback path, because the new file is already in place.
	if err := c.signalAndVerify(ctx); err != nil {
		return c.rollback(ctx, actorID, hash, warnings, previous, hadPrevious, err)
	}

	res := &Result{Outcome: OutcomeCommitted, ConfigHash: hash, Warnings: warnings}
	c.emit(ctx, actorID, "reload_committed", domain.SeverityInfo, res)
	c.logger.Info("proxy configuration committed", slog.String("config_hash", hash))
	return res, nil
}

func (c *Controller) signalAndVerify(ctx context.Context) error {
	if err := c.signaler.Reload(ctx); err != nil {
		return err
	}
	return c.prober.Probe(ctx)
}

// rollback restores the previous configuration, re-signals, and re-verifies
// exactly once. A second failure is not retried: the controller reports it
// loudly and leaves the rest to the operator.
func (c *Controller) rollback(
	ctx context.Context,
	actorID *uuid.UUID,
	hash string,
	warnings []string,
	previous []byte,
	hadPrevious bool,
	cause error,
) (*Result, error) {
	c.logger.Warn("reload failed, rolling back", slog.String("cause", cause.Error()))

	var restoreErr error
	if hadPrevious {
		restoreErr = writeFileAtomic(c.livePath, previous, 0o644)
	} else {
		restoreErr = fmt.Errorf("no previously committed configuration to restore")
	}
	if restoreErr == nil {
		restoreErr = c.signalAndVerify(ctx)
	}

	if restoreErr != nil {
		fatal := &RollbackError{Cause: cause, RollbackErr: restoreErr}
		res := &Result{
			Outcome:     OutcomeRollbackFailed,
			ConfigHash:  hash,
			Diagnostics: fatal.Error(),
			Warnings:    warnings,
		}
		c.emit(ctx, actorID, "reload_rollback_failed", domain.SeverityCritical, res)
		c.logger.Error("rollback failed, proxy configuration state unknown",
			slog.String("cause", cause.Error()),
			slog.String("rollback_error", restoreErr.Error()))
		return res, fatal
	}

	res := &Result{
		Outcome:     OutcomeRolledBack,
		ConfigHash:  hash,
		Diagnostics: cause.Error(),
		Warnings:    warnings,
	}
	c.emit(ctx, actorID, "reload_rolled_back", domain.SeverityWarning, res)
	return res, cause
}

// backupLive copies the current live file into the rollback slot and also
// returns its content, so the rollback path does not depend on re-reading
// the slot it just wrote.
func (c *Controller) backupLive() ([]byte, bool, error) {
	current, err := os.ReadFile(c.livePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil // first ever reload: nothing to back up
	}
	if err != nil {
		return nil, false, err
	}
	if err := writeFileAtomic(c.backupPath, current, 0o644); err != nil {
		return nil, false, err
	}
	return current, true, nil
}

func (c *Controller) emit(ctx context.Context, actorID *uuid.UUID, action, severity string, res *Result) {
	if c.audit == nil {
		return
	}
	c.audit.Emit(ctx, domain.AuditEvent{
		ActorID:      actorID,
		Action:       action,
		ResourceType: "proxy",
		ResourceID:   c.livePath,
		Severity:     severity,
		Diagnostics:  res.Diagnostics,
		Metadata:     map[string]string{"config_hash": res.ConfigHash},
		CreatedAt:    time.Now().UTC(),
	})
}

func (c *Controller) emitWarning(ctx context.Context, actorID *uuid.UUID, warning string) {
	if c.audit == nil {
		return
	}
	c.audit.Emit(ctx, domain.AuditEvent{
		ActorID:      actorID,
		Action:       "certificate_resolution_warning",
		ResourceType: "certificate",
		ResourceID:   "default",
		Severity:     domain.SeverityWarning,
		Diagnostics:  warning,
		CreatedAt:    time.Now().UTC(),
	})
}

func configHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
