// Package failure defines the error classes a load run can produce.
//
// Only SetupError and ConfigurationError abort a run. Everything else is
// captured by the metrics collector and surfaces through the final report.
package failure

import (
	"errors"
	"fmt"
)

// ErrLogoutForbidden is wrapped by the ConfigurationError returned when a
// logout is attempted while the session coordinator runs in shared-account mode.
var ErrLogoutForbidden = errors.New("logout is forbidden in shared-account mode")

// ErrTooFewAccounts is wrapped by the ConfigurationError returned when
// isolated VUs that log out would have to share an account.
var ErrTooFewAccounts = errors.New("not enough accounts for isolated sessions")

// SetupError is raised when a scenario's one-shot setup hook fails.
type SetupError struct {
	Scenario string
	Err      error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("setup failed for scenario %q: %v", e.Scenario, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// IterationError wraps a failure raised by a scenario body. The VU that
// produced it keeps running.
type IterationError struct {
	Scenario  string
	VU        int
	Iteration int64
	Err       error
}

func (e *IterationError) Error() string {
	return fmt.Sprintf("scenario %q vu %d iteration %d: %v", e.Scenario, e.VU, e.Iteration, e.Err)
}

func (e *IterationError) Unwrap() error { return e.Err }

// TransportError is a request that never produced a status code
// (connection refused, timeout, DNS failure).
type TransportError struct {
	Label string
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure on %q: %v", e.Label, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ConfigurationError is a fatal problem detected before any VU starts.
type ConfigurationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigurationError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Field != "" {
		return fmt.Sprintf("configuration error on '%s': %s", e.Field, msg)
	}
	return "configuration error: " + msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// IsFatal reports whether err must abort the run.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var setupErr *SetupError
	var cfgErr *ConfigurationError
	return errors.As(err, &setupErr) || errors.As(err, &cfgErr)
}
