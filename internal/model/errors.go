package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures for user-facing handling.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindResolutionFailed
	KindCredentialsRequired
	KindAcquisitionFailed
	KindTooLarge
	KindInvalidAction
)

func (k ErrorKind) String() string {
	switch k {
	case KindResolutionFailed:
		return "resolution_failed"
	case KindCredentialsRequired:
		return "credentials_required"
	case KindAcquisitionFailed:
		return "acquisition_failed"
	case KindTooLarge:
		return "too_large"
	case KindInvalidAction:
		return "invalid_action"
	default:
		return "unknown"
	}
}

// Error is a classified pipeline error.
type Error struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a classified error.
func NewError(kind ErrorKind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
