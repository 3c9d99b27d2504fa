// Package domainerrors carries the error taxonomy shared by services and transport.
//
// Stores return infrastructure facts (see pkg/platform/sentinel); services translate
// those facts into coded errors from this package so handlers can map them to HTTP
// responses without inspecting messages.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for callers and transport mapping.
type Code string

const (
	// CodeValidation marks user-correctable input problems.
	CodeValidation Code = "validation_error"
	// CodeBadRequest marks malformed requests (undecodable bodies, bad ids).
	CodeBadRequest Code = "bad_request"
	// CodeInvalidInput marks a single invalid value at a trust boundary.
	CodeInvalidInput Code = "invalid_input"
	// CodeInvariantViolation marks a domain constructor or mutator rejecting state.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeDuplicateAccount marks a signup that collides with an existing account.
	CodeDuplicateAccount Code = "duplicate_account"
	// CodeConflict marks a state conflict other than a duplicate signup.
	CodeConflict Code = "conflict"
	// CodeProvisioningFailed marks a failed auth account write inside provisioning.
	CodeProvisioningFailed Code = "provisioning_failed"
	// CodeNotFound marks a missing entity.
	CodeNotFound Code = "not_found"
	// CodeUnauthorized marks missing or invalid credentials.
	CodeUnauthorized Code = "unauthorized"
	// CodeUnavailable marks a transient dependency outage.
	CodeUnavailable Code = "unavailable"
	// CodeTimeout marks an operation that ran out of time.
	CodeTimeout Code = "timeout"
	// CodeInternal marks anything unexpected.
	CodeInternal Code = "internal_error"
)

// Error is a coded error with an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a coded error.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// From returns the outermost coded error in the chain.
func From(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasCode reports whether the outermost coded error in the chain has code.
func HasCode(err error, code Code) bool {
	de, ok := From(err)
	return ok && de.Code == code
}

// Is is an alias of HasCode kept for call sites that read better with it.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the code of err, or CodeInternal for uncoded errors.
func CodeOf(err error) Code {
	if de, ok := From(err); ok {
		return de.Code
	}
	return CodeInternal
}
