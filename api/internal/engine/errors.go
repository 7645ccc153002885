package engine

import "fmt"

// RenderError means the snapshot itself was malformed or contradictory
// (a rule pointing at a backend that does not exist, a domain that would
// break the nginx grammar). Nothing on disk has been touched.
type RenderError struct {
	Reason string
}

func (e *RenderError) Error() string {
	return "render: " + e.Reason
}

// ValidationError carries the proxy binary's own diagnostics verbatim so
// operators see nginx's error, not a reinterpretation of it.
type ValidationError struct {
	Diagnostics string
}

func (e *ValidationError) Error() string {
	return "config validation failed: " + e.Diagnostics
}

// SwapError is a filesystem failure while staging or renaming the candidate
// into place. The rename is the last step, so the live file is untouched.
type SwapError struct {
	Path string
	Err  error
}

func (e *SwapError) Error() string {
	return fmt.Sprintf("config swap failed at %s: %v", e.Path, e.Err)
}

func (e *SwapError) Unwrap() error { return e.Err }

// SignalError means the graceful-reload signal could not be delivered.
type SignalError struct {
	Output string
	Err    error
}

func (e *SignalError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("reload signal failed: %v: %s", e.Err, e.Output)
	}
	return fmt.Sprintf("reload signal failed: %v", e.Err)
}

func (e *SignalError) Unwrap() error { return e.Err }

// VerifyError means the proxy did not come back healthy within the probe
// deadline after a signal was delivered.
type VerifyError struct {
	Err error
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("proxy health verification failed: %v", e.Err)
}

func (e *VerifyError) Unwrap() error { return e.Err }

// RollbackError is the only fatal case: applying the new configuration
// failed AND restoring the previous one did not verify. The proxy may be
// serving with an unknown configuration state and an operator must step in.
type RollbackError struct {
	Cause       error // why the new configuration was abandoned
	RollbackErr error // why the restore did not come back healthy
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("rollback failed after %v: %v", e.Cause, e.RollbackErr)
}

func (e *RollbackError) Unwrap() error { return e.RollbackErr }
