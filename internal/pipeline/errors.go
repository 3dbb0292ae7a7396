package pipeline

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// TimeoutError reports that a stage exceeded the execution window its
// routing environment allows. It is distinct from worker business errors so
// operators can tell overruns from genuine failures.
type TimeoutError struct {
	JobType string
	Window  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s stage exceeded its %s execution window", e.JobType, e.Window)
}

// transientError marks a failure worth retrying: network trouble, worker
// throttling, or a transient upstream 5xx.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// terminalError marks a failure that must not be retried, either because
// the input is bad (malware positive, corrupt file) or because retries are
// exhausted.
type terminalError struct {
	err error
}

func (e *terminalError) Error() string { return e.err.Error() }
func (e *terminalError) Unwrap() error { return e.err }

// Transient wraps err so the retry policy will retry it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// Terminal wraps err so the retry policy surfaces it immediately.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &terminalError{err: err}
}

// IsTransient classifies err for the retry policy. Explicit terminal
// marking wins over everything else; otherwise explicit transient marking
// or a network timeout qualifies.
func IsTransient(err error) bool {
	var term *terminalError
	if errors.As(err, &term) {
		return false
	}
	var trans *transientError
	if errors.As(err, &trans) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// IsTerminal reports whether err was tagged terminal.
func IsTerminal(err error) bool {
	var term *terminalError
	return errors.As(err, &term)
}
