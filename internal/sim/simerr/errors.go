// Package simerr holds the error taxonomy shared by the simulation kernel.
//
// Errors carry a machine-readable Code so callers can branch with errors.Is
// against the sentinels below without string matching.
package simerr

import "fmt"

// Code is a machine-readable error code.
type Code string

const (
	// CodeConfig marks malformed level, map or behavior configuration.
	// Always fatal at load time.
	CodeConfig Code = "E_CONFIG"
	// CodeDomain marks a caller contract violation in the fixed math layer
	// (sqrt of a negative, undefined angle, division by zero).
	CodeDomain Code = "E_DOMAIN"
	// CodeReplayMismatch marks a replayed tick whose digest differs from the log.
	CodeReplayMismatch Code = "E_REPLAY_MISMATCH"
	// CodeState marks an operation invoked in the wrong lifecycle state.
	CodeState Code = "E_STATE"
	// CodeIO marks persistence failures (command log, snapshot, index).
	CodeIO Code = "E_IO"
)

// Sentinels for errors.Is; matching is by code only.
var (
	ErrConfig         = &Error{Code: CodeConfig}
	ErrDomain         = &Error{Code: CodeDomain}
	ErrReplayMismatch = &Error{Code: CodeReplayMismatch}
	ErrState          = &Error{Code: CodeState}
	ErrIO             = &Error{Code: CodeIO}
)

// Error is the kernel error type with structured metadata.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{Code: code, Message: message, Metadata: metadata}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Configf is shorthand for the most common construction-time failure.
func Configf(format string, args ...any) *Error {
	return Newf(CodeConfig, format, args...)
}

// Domain builds the value fixedmath panics with.
func Domain(message string) *Error {
	return New(CodeDomain, message)
}
