package domainerrors

import "errors"

// Code represents a domain error category independent of transport layer.
// These codes describe what went wrong in business logic terms, not HTTP terms.
type Code string

const (
	CodeNotFound           Code = "not_found"
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_failed"
	CodeInternal           Code = "internal_error"
	CodeConflict           Code = "conflict"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeTimeout            Code = "timeout"
	CodeInvariantViolation Code = "invariant_violation"
	CodeUnknownPurpose     Code = "unknown_purpose"

	// StateConflict: the requested transition is illegal for the current state.
	// The stored state is never mutated when one of these is returned.
	CodeInvalidTransition   Code = "invalid_transition"
	CodeMandatoryProcessing Code = "mandatory_processing"
	CodeGrievanceClosed     Code = "grievance_closed"
	CodeNotAgreed           Code = "not_agreed"

	// CodeVerificationFailed carries a Reason describing why a challenge was rejected.
	CodeVerificationFailed Code = "verification_failed"
)

// Reason refines CodeVerificationFailed so callers can pick UI messaging
// without string matching.
type Reason string

const (
	ReasonInvalidCode         Reason = "INVALID_CODE"
	ReasonExpired             Reason = "EXPIRED"
	ReasonTooManyAttempts     Reason = "TOO_MANY_ATTEMPTS"
	ReasonAlreadyConsumed     Reason = "ALREADY_CONSUMED"
	ReasonIdentityNotVerified Reason = "IDENTITY_NOT_VERIFIED"
)

// Error wraps domain or infrastructure failures with a stable code.
// It is transport-agnostic and can be used across service, store, and other layers.
type Error struct {
	Code    Code
	Reason  Reason
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Reason != "" {
		return string(e.Reason)
	}
	return string(e.Code)
}

// Unwrap implements error unwrapping for error chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is enables errors.Is() to match errors by code (and reason, when the target sets one).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Reason != "" && e.Reason != t.Reason {
		return false
	}
	return e.Code == t.Code
}

// New creates a new domain error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Verification creates a CodeVerificationFailed error with the given reason.
func Verification(reason Reason, msg string) error {
	return &Error{Code: CodeVerificationFailed, Reason: reason, Message: msg}
}

// Wrap creates a new domain error wrapping an existing error.
// If the wrapped error is already a domain error, the original code and reason are preserved.
func Wrap(err error, code Code, msg string) error {
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Code: existing.Code, Reason: existing.Reason, Message: msg, Err: err}
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode checks if an error is a domain error with the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// ReasonOf returns the verification reason carried by err, if any.
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}
