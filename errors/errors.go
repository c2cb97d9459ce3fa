// Package errors provides error handling for paysync.
//
// This package re-exports github.com/cockroachdb/errors so every package wraps
// errors the same way and keeps stack traces:
//
//	if err := fetch(); err != nil {
//	    return errors.Wrap(err, "fetch client detail")
//	}
//
//	// Sentinels survive wrapping
//	if errors.Is(err, errors.ErrCredential) {
//	    // fatal: no further API calls are possible
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint     = crdb.WithHint
	WithHintf    = crdb.WithHintf
	WithDetail   = crdb.WithDetail
	WithDetailf  = crdb.WithDetailf
	FlattenHints = crdb.FlattenHints
)

// Error inspection
var (
	Is            = crdb.Is
	IsAny         = crdb.IsAny
	As            = crdb.As
	Unwrap        = crdb.Unwrap
	UnwrapAll     = crdb.UnwrapAll
	GetAllHints   = crdb.GetAllHints
	GetAllDetails = crdb.GetAllDetails
)

// GetStack returns the reportable stack trace attached to err, if any.
var GetStack = crdb.GetReportableStackTrace

// Sentinel errors shared across packages.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")

	// ErrInvalidRequest indicates the request was malformed or invalid
	ErrInvalidRequest = New("invalid request")

	// ErrCredential indicates the API credential could not be obtained.
	// Runs stop immediately on this error.
	ErrCredential = New("credential exchange failed")

	// ErrInvalidMode indicates an unknown extraction mode was selected
	ErrInvalidMode = New("invalid mode")

	// ErrUnknownReference indicates an organization title or code that is
	// absent from the client's declared lookup tables
	ErrUnknownReference = New("unknown organization reference")

	// ErrWriteAbandoned indicates a storage write gave up after its retry budget
	ErrWriteAbandoned = New("write abandoned after retries")
)

// IsNotFoundError checks if an error is or wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsFatal reports whether err must stop the whole run rather than a single
// record or page.
func IsFatal(err error) bool {
	return err != nil && IsAny(err, ErrCredential, ErrInvalidMode)
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Wrap(ErrInvalidRequest, Newf(format, args...).Error())
}
