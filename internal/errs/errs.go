// Package errs defines the four error categories spec.md §7 requires —
// fatal-local, retriable-remote, missing-optional, user-reported —
// each carrying the stable numeric exit code its category maps to.
// Built on github.com/juju/errors so every sentinel composes with
// Trace/Annotate the same way the rest of the codebase's errors do.
package errs

import "github.com/juju/errors"

// Code is a stable process exit code, per spec.md §6's contract:
// 0 success, 1 command-defined non-fatal, 25-255 error-class codes.
type Code int

const (
	CodeAssertion    Code = 25
	CodeFileMissing  Code = 38
	CodeLockAcquire  Code = 42
	CodeCrypto       Code = 43
	CodeFormat       Code = 55
	CodeTermSignal   Code = 63
	CodeUserReported Code = 1
)

// Coded is implemented by every error type in this package; the
// protocol server (internal/protocol) and the CLI entry point both
// switch on it rather than on concrete types.
type Coded interface {
	error
	Code() int
}

// Fatal wraps a fatal-local error: assertion failure, out-of-memory,
// malformed data, checksum mismatch, a missing mandatory file, or a
// crypto failure. The command aborts immediately.
type Fatal struct {
	code Code
	err  error
}

// NewFatal wraps err as a Fatal with the given exit code.
func NewFatal(code Code, err error) *Fatal { return &Fatal{code: code, err: err} }

func (e *Fatal) Error() string { return e.err.Error() }
func (e *Fatal) Code() int     { return int(e.code) }
func (e *Fatal) Unwrap() error { return e.err }

// Retriable wraps a retriable-remote error: HTTP 5xx, connection
// reset, DNS timeout, partial read. The storage drivers neither return
// Retriable nor retry a failed call; the only retry loop is the per-job
// one in protocol.Executor. Escalate converts a Retriable into a Fatal
// of the appropriate category.
type Retriable struct {
	err error
}

// NewRetriable wraps err as retriable.
func NewRetriable(err error) *Retriable { return &Retriable{err: err} }

func (e *Retriable) Error() string { return e.err.Error() }
func (e *Retriable) Cause() error  { return e.err }

// Escalate converts a Retriable whose attempts are exhausted into a
// Fatal with the given code, preserving the original cause via Trace.
func (e *Retriable) Escalate(code Code) *Fatal {
	return NewFatal(code, errors.Trace(e.err))
}

// MissingOptional marks a "not found, and that's fine" outcome: a file
// not found when ignore_missing=true, or a WAL segment not present at
// archive-get. It is not propagated as a command failure; callers
// check for it and return a distinguished absent result instead.
type MissingOptional struct {
	err error
}

// NewMissingOptional wraps err (typically a *errors.NotFound) as
// missing-optional.
func NewMissingOptional(err error) *MissingOptional { return &MissingOptional{err: err} }

func (e *MissingOptional) Error() string { return e.err.Error() }
func (e *MissingOptional) Unwrap() error { return e.err }

// UserReported marks an invalid option, missing stanza, or lock held
// by a peer: the CLI entry point prints a short message with no stack
// trace (a stack trace is emitted only at debug log level) and exits
// with CodeUserReported unless the specific case names another code
// (e.g. lock-acquire uses CodeLockAcquire).
type UserReported struct {
	code Code
	err  error
}

// NewUserReported wraps err as user-reported with the given exit code
// (CodeUserReported for the generic case).
func NewUserReported(code Code, err error) *UserReported { return &UserReported{code: code, err: err} }

func (e *UserReported) Error() string { return e.err.Error() }
func (e *UserReported) Code() int     { return int(e.code) }
func (e *UserReported) Unwrap() error { return e.err }

// IsMissingOptional reports whether err (after unwrapping juju/errors
// annotation layers) is a MissingOptional.
func IsMissingOptional(err error) bool {
	_, ok := errors.Cause(err).(*MissingOptional)
	return ok
}

// ExitCode extracts the process exit code for err: the code from a
// Coded error (after unwrapping annotation layers), or CodeAssertion
// for any other error reaching the top level unclassified.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if c, ok := errors.Cause(err).(Coded); ok {
		return c.Code()
	}
	return int(CodeAssertion)
}
