// Package errs provides the typed error taxonomy shared by every component
// of the container runtime. All errors support errors.Is/errors.As.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation failed.
type Kind int

const (
	// Unsupported indicates a required kernel feature is absent.
	Unsupported Kind = iota
	// Permission indicates the caller lacks a required capability.
	Permission
	// NotFound indicates a referenced pid, cgroup, or path is gone.
	NotFound
	// Exists indicates the target is already present and non-empty.
	Exists
	// Invalid indicates an argument or state transition is forbidden.
	Invalid
	// Busy indicates the cgroup is populated or the resource is in use.
	Busy
	// Io indicates an underlying syscall failed for other reasons.
	Io
	// Timeout indicates a bounded wait elapsed.
	Timeout
)

// String returns a human-readable name for the error kind.
func (k Kind) String() string {
	switch k {
	case Unsupported:
		return "unsupported"
	case Permission:
		return "permission denied"
	case NotFound:
		return "not found"
	case Exists:
		return "already exists"
	case Invalid:
		return "invalid"
	case Busy:
		return "busy"
	case Io:
		return "io error"
	case Timeout:
		return "timeout"
	default:
		return "unknown error"
	}
}

// Error is the concrete error type returned by every package in this
// module. Op names the failing operation, Container names the owning
// container when applicable, and Notes carries cleanup-path failures that
// must not replace the originating error.
type Error struct {
	Op        string
	Container string
	Kind      Kind
	Detail    string
	Err       error
	Notes     []string
}

// Error renders the error message.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	var msg string
	if e.Container != "" {
		msg = fmt.Sprintf("container %s: ", e.Container)
	}
	if e.Op != "" {
		msg += fmt.Sprintf("%s: ", e.Op)
	}
	if e.Detail != "" {
		msg += e.Detail
	} else {
		msg += e.Kind.String()
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	for _, n := range e.Notes {
		msg += fmt.Sprintf(" (note: %s)", n)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target matches by Kind, the way sentinel errors are
// compared throughout this module.
func (e *Error) Is(target error) bool {
	if e == nil {
		return target == nil
	}
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// WithNote attaches a cleanup-path failure without replacing the
// originating error. Safe to call on a nil *Error (returns nil).
func (e *Error) WithNote(note string) *Error {
	if e == nil {
		return nil
	}
	e.Notes = append(e.Notes, note)
	return e
}

// New creates an Error with the given kind.
func New(kind Kind, op, detail string) *Error {
	return &Error{Op: op, Kind: kind, Detail: detail}
}

// Wrap wraps err with an operation and kind.
func Wrap(err error, kind Kind, op string) *Error {
	return &Error{Op: op, Err: err, Kind: kind}
}

// WrapWithContainer wraps err with operation, kind and container ID.
func WrapWithContainer(err error, kind Kind, op, containerID string) *Error {
	return &Error{Op: op, Container: containerID, Err: err, Kind: kind}
}

// WrapWithDetail wraps err with an operation, kind and free-text detail.
func WrapWithDetail(err error, kind Kind, op, detail string) *Error {
	return &Error{Op: op, Err: err, Kind: kind, Detail: detail}
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// GetKind returns the Kind of err if it is an *Error.
func GetKind(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Re-exported for convenience so callers need only import this package.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
)
