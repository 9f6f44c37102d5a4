// Package errs defines the tagged error taxonomy used by every
// component of the control core and the retryability predicate that
// drives the retry executor. Errors carry an optional wrapped cause
// and are never stringified at a boundary that still has the original
// error value available — callers that need the chain use
// errors.As/errors.Is or Error.Unwrap.
package errs

import (
	"errors"
	"fmt"
)

// Kind enumerates the error taxonomy 
type Kind int

const (
	KindConfig Kind = iota
	KindCloudProvider
	KindIO
	KindCloudCompute
	KindCloudBlob
	KindCloudAgent
	KindResourceNotFound
	KindResourceExists
	KindValidation
	KindRetryable
	KindCleanup
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindCloudProvider:
		return "cloud_provider"
	case KindIO:
		return "io"
	case KindCloudCompute:
		return "cloud_compute"
	case KindCloudBlob:
		return "cloud_blob"
	case KindCloudAgent:
		return "cloud_agent"
	case KindResourceNotFound:
		return "resource_not_found"
	case KindResourceExists:
		return "resource_exists"
	case KindValidation:
		return "validation"
	case KindRetryable:
		return "retryable"
	case KindCleanup:
		return "cleanup"
	default:
		return "unknown"
	}
}

// Error is the single struct backing every taxonomy variant. Fields
// not relevant to a given Kind are left zero; constructors below set
// only what applies so call sites stay readable.
type Error struct {
	Kind     Kind
	Provider string // set for KindCloudProvider / KindCloudCompute / KindCloudBlob / KindCloudAgent
	Message  string
	Field    string // set for KindValidation
	Reason   string // set for KindValidation / KindCleanup
	ResKind  string // resource kind, set for KindResourceNotFound / KindResourceExists
	ResID    string // resource id, set for KindResourceNotFound / KindResourceExists
	Attempt  int    // set for KindRetryable
	MaxAttempts int // set for KindRetryable
	Err      error  // optional wrapped cause, preserved end-to-end
}

// Error implements the error interface. It never loses the cause: the
// message always includes %v of the wrapped error when present.
func (e *Error) Error() string {
	switch e.Kind {
	case KindValidation:
		return fmt.Sprintf("validation error: field %q: %s", e.Field, e.Reason)
	case KindResourceNotFound:
		return fmt.Sprintf("%s %q not found", e.ResKind, e.ResID)
	case KindResourceExists:
		return fmt.Sprintf("%s %q already exists", e.ResKind, e.ResID)
	case KindRetryable:
		msg := fmt.Sprintf("exhausted after %d/%d attempts: %s", e.Attempt, e.MaxAttempts, e.Reason)
		if e.Err != nil {
			msg += fmt.Sprintf(": %v", e.Err)
		}
		return msg
	case KindCleanup:
		return fmt.Sprintf("cleanup blocked: %s", e.Reason)
	default:
		msg := e.Message
		if e.Provider != "" {
			msg = fmt.Sprintf("%s: %s", e.Provider, msg)
		}
		if e.Err != nil {
			msg = fmt.Sprintf("%s: %v", msg, e.Err)
		}
		return msg
	}
}

// Unwrap exposes the wrapped cause so errors.Is/errors.As can traverse
// the chain past the taxonomy boundary.
func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether an error is worth retrying: true for
// CloudProvider, CloudCompute, CloudBlob, CloudAgent, Io, and
// Retryable; false for Validation, ResourceNotFound, Config, and
// everything else not explicitly listed.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case KindCloudProvider, KindIO, KindRetryable, KindCloudCompute, KindCloudBlob, KindCloudAgent:
		return true
	default:
		return false
	}
}

// Constructors. Each moves (never stringifies) any wrapped cause.

func Config(message string, cause error) *Error {
	return &Error{Kind: KindConfig, Message: message, Err: cause}
}

func CloudProvider(provider, message string, cause error) *Error {
	return &Error{Kind: KindCloudProvider, Provider: provider, Message: message, Err: cause}
}

func IO(message string, cause error) *Error {
	return &Error{Kind: KindIO, Message: message, Err: cause}
}

func CloudCompute(provider, message string, cause error) *Error {
	return &Error{Kind: KindCloudCompute, Provider: provider, Message: message, Err: cause}
}

func CloudBlob(provider, message string, cause error) *Error {
	return &Error{Kind: KindCloudBlob, Provider: provider, Message: message, Err: cause}
}

func CloudAgent(provider, message string, cause error) *Error {
	return &Error{Kind: KindCloudAgent, Provider: provider, Message: message, Err: cause}
}

func ResourceNotFound(kind, id string) *Error {
	return &Error{Kind: KindResourceNotFound, ResKind: kind, ResID: id}
}

func ResourceExists(kind, id string) *Error {
	return &Error{Kind: KindResourceExists, ResKind: kind, ResID: id}
}

func Validation(field, reason string) *Error {
	return &Error{Kind: KindValidation, Field: field, Reason: reason}
}

func Retryable(attempt, maxAttempts int, reason string, cause error) *Error {
	return &Error{Kind: KindRetryable, Attempt: attempt, MaxAttempts: maxAttempts, Reason: reason, Err: cause}
}

func Cleanup(reason string) *Error {
	return &Error{Kind: KindCleanup, Reason: reason}
}

// As is a convenience wrapper around errors.As for the common case of
// pulling the taxonomy Error back out of an opaque chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
