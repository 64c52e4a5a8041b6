package engine

import (
	"errors"
	"fmt"
	"strings"
)

// UnresolvedReferenceError is returned when a declaration references a
// resource that does not exist in the declaration set. It is reported before
// any mutation happens.
type UnresolvedReferenceError struct {
	Address   string // resource holding the reference
	Reference string // the dangling target address
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("resource %s references undeclared resource %s", e.Address, e.Reference)
}

// CycleError is returned when the dependency graph is not acyclic. Members
// lists the resources participating in (or downstream of) the cycle.
type CycleError struct {
	Members []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected involving: %s", strings.Join(e.Members, ", "))
}

// PlanError is a fatal planning failure. No side effect has occurred when it
// is returned.
type PlanError struct {
	Address string
	Reason  string
	Err     error
}

func (e *PlanError) Error() string {
	msg := e.Reason
	if e.Address != "" {
		msg = fmt.Sprintf("%s: %s", e.Address, e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("plan error: %s: %v", msg, e.Err)
	}
	return "plan error: " + msg
}

func (e *PlanError) Unwrap() error {
	return e.Err
}

// TransientError marks a runtime failure as retryable. Providers wrap errors
// they know to be transient; anything else is classified heuristically by
// IsTransientError.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// transientPatterns are substrings that indicate a retryable runtime or
// network failure.
var transientPatterns = []string{
	"throttl",
	"rate exceed",
	"too many requests",
	"request limit",
	"service unavailable",
	"internal server error",
	"connection reset",
	"connection refused",
	"timeout",
	"TLS handshake",
	"i/o timeout",
	"temporary failure",
	"EOF",
}

// IsTransientError reports whether an error is likely transient and worth
// retrying against the runtime.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}

// IsConfigError reports whether an error belongs to the
// configuration-time taxonomy (reported before any mutation).
func IsConfigError(err error) bool {
	var ure *UnresolvedReferenceError
	var ce *CycleError
	var pe *PlanError
	return errors.As(err, &ure) || errors.As(err, &ce) || errors.As(err, &pe)
}
