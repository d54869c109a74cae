// Package errors provides structured error types for the revprox engine.
//
// Errors fall into three severity classes that drive the orchestrator's
// behavior:
//
//   - Fatal errors abort the whole run before any further artifact is
//     touched. Mark them with Fatal() and detect them with IsFatal().
//   - Domain-isolated errors stop one domain's processing; the orchestrator
//     catches them at the domain boundary and continues with the next domain.
//   - Advisory errors are logged and the run proceeds.
//
// The severity is a property of where an error is handled, not of its code:
// a PROVIDER error is fatal when no provider resolves at all, but
// domain-isolated when a single domain's override is unavailable.
package errors

import (
	"errors"
	"fmt"
)

// Code categorizes errors for reporting and tests.
type Code string

// Error codes for the engine's failure categories.
const (
	CodeConfig   Code = "CONFIG"    // Specification document missing or invalid
	CodeStorage  Code = "STORAGE"   // Storage root or layout problem
	CodeProvider Code = "PROVIDER"  // DNS-challenge provider unknown or unavailable
	CodeCert     Code = "CERT"      // Certificate issuance, renewal, or store failure
	CodeNotFound Code = "NOT_FOUND" // Requested record does not exist
	CodeRender   Code = "RENDER"    // Configuration rendering or artifact commit failure
	CodeActivate Code = "ACTIVATE"  // Validation or reactivation of the running proxy failed
	CodeInternal Code = "INTERNAL"  // Unexpected failure
)

// RunError is an error with a category code and optional domain context.
type RunError struct {
	Code    Code
	Message string
	Domain  string
	Err     error
}

func (e *RunError) Error() string {
	switch {
	case e.Domain != "" && e.Err != nil:
		return fmt.Sprintf("domain %s: %s: %v", e.Domain, e.Message, e.Err)
	case e.Domain != "":
		return fmt.Sprintf("domain %s: %s", e.Domain, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for error chain traversal.
func (e *RunError) Unwrap() error {
	return e.Err
}

// Is matches RunErrors by code.
func (e *RunError) Is(target error) bool {
	t, ok := target.(*RunError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a RunError with the given code and message.
func New(code Code, msg string) error {
	return &RunError{Code: code, Message: msg}
}

// Newf creates a RunError with a formatted message.
func Newf(code Code, format string, args ...interface{}) error {
	return &RunError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a RunError wrapping an underlying error.
func Wrap(code Code, msg string, err error) error {
	return &RunError{Code: code, Message: msg, Err: err}
}

// Domain creates a domain-scoped RunError wrapping an underlying error.
func Domain(code Code, domain, msg string, err error) error {
	return &RunError{Code: code, Message: msg, Domain: domain, Err: err}
}

// CodeOf returns the code of the first RunError in err's chain, or
// CodeInternal when no RunError is present.
func CodeOf(err error) Code {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code
	}
	return CodeInternal
}

// fatalError marks an error as run-fatal.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Fatal marks err as fatal for the whole run. A nil err stays nil.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// IsFatal reports whether err or any error in its chain was marked fatal.
func IsFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe)
}

// Is reports whether any error in err's chain matches target.
// This is a re-export of errors.Is for convenience.
var Is = errors.Is

// As finds the first error in err's chain that matches target.
// This is a re-export of errors.As for convenience.
var As = errors.As
