package tracker

import (
	"errors"
	"fmt"
)

// Sentinel errors used to classify refresh failures.
var (
	ErrInvalidRequest   = errors.New("invalid provider request")
	ErrUnknownProvider  = errors.New("unknown provider")
	ErrNotSelectable    = errors.New("provider only serves keyword engine overrides")
	ErrTransport        = errors.New("transport failure")
	ErrProviderReported = errors.New("provider reported error")
	ErrCanceled         = errors.New("refresh canceled")
	ErrNotFound         = errors.New("keyword not found")
)

// ErrorKind groups failures by how the orchestrator reacts to them.
type ErrorKind string

// Error kinds.
const (
	KindConfiguration ErrorKind = "configuration"
	KindTransport     ErrorKind = "transport"
	KindProvider      ErrorKind = "provider"
	KindCanceled      ErrorKind = "canceled"
)

// OutcomeError is the error descriptor attached to a failed Outcome.
type OutcomeError struct {
	Kind     ErrorKind
	Provider string
	Code     string
	Err      error
}

func (e *OutcomeError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code %s): %v", e.Provider, e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *OutcomeError) Unwrap() error {
	return e.Err
}

// Retriable reports whether a later attempt with the same settings can succeed.
func (e *OutcomeError) Retriable() bool {
	return e.Kind == KindTransport || e.Kind == KindProvider
}

// KindOf extracts the kind of an outcome error, or "" for foreign errors.
func KindOf(err error) ErrorKind {
	var oe *OutcomeError
	if errors.As(err, &oe) {
		return oe.Kind
	}
	return ""
}
