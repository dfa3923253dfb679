package types

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the dispatch boundary. The string values are
// the wire codes returned to MCP clients.
type Kind string

// Error kinds
const (
	KindWorkspaceMissing       Kind = "WORKSPACE_MISSING"
	KindNotFound               Kind = "NOT_FOUND"
	KindInvalidInput           Kind = "INVALID_INPUT"
	KindInvalidMode            Kind = "INVALID_MODE"
	KindPaginationInvalid      Kind = "PAGINATION_INVALID"
	KindConflict               Kind = "CONFLICT"
	KindDependencyNotSatisfied Kind = "DEPENDENCY_NOT_SATISFIED"
	KindCycle                  Kind = "CYCLE"
	KindBlockerReasonMissing   Kind = "BLOCKER_REASON_MISSING"
	KindLockContended          Kind = "LOCK_CONTENDED"
	KindResponseSizeExceeded   Kind = "RESPONSE_SIZE_EXCEEDED"
	KindInternal               Kind = "INTERNAL"
)

// Error is a structured domain error. It carries the machine-readable kind,
// a human message, and optional details and suggestion for the caller.
type Error struct {
	Kind       Kind           `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	Suggestion string         `json:"suggestion,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Errorf creates a structured error with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithDetail attaches a key/value pair to the error's details.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion attaches a remediation hint for the caller.
func (e *Error) WithSuggestion(s string) *Error {
	e.Suggestion = s
	return e
}

// KindOf returns the kind of err, unwrapping as needed.
// Non-domain errors report KindInternal; nil reports "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// IsKind reports whether err (or anything it wraps) has the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus returns the documentation-only HTTP analog for the kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindWorkspaceMissing, KindInvalidInput, KindInvalidMode, KindPaginationInvalid, KindBlockerReasonMissing:
		return 400
	case KindNotFound:
		return 404
	case KindConflict, KindDependencyNotSatisfied, KindCycle:
		return 409
	case KindResponseSizeExceeded:
		return 413
	case KindLockContended:
		return 503
	}
	return 500
}

// Retriable reports whether the caller is advised to retry.
func (k Kind) Retriable() bool {
	return k == KindLockContended
}
