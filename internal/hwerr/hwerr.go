// Package hwerr classifies pipeline failures so callers can decide between
// rollback, retry and dropping a frame.
package hwerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is the failure class. A Kind is itself an error so that it can be
// used as an errors.Is target.
type Kind int

const (
	// Configuration covers bad geometry or format and zero-size layouts.
	Configuration Kind = iota + 1
	// Resource covers allocation, export and slot reservation failures.
	Resource
	// NotFound means no display plane matched the selector.
	NotFound
	// Protocol covers invalid buffer indices and out-of-order queue operations.
	Protocol
	// Present means the display rejected a plane update.
	Present
	// Device covers device-level enqueue and dequeue failures.
	Device
)

func (k Kind) String() string {
	switch k {
	case Configuration:
		return "configuration"
	case Resource:
		return "resource"
	case NotFound:
		return "not found"
	case Protocol:
		return "protocol"
	case Present:
		return "present"
	case Device:
		return "device"
	default:
		return "unknown"
	}
}

func (k Kind) Error() string {
	return k.String() + " error"
}

// ExitCode maps a failure class onto the process exit status.
func (k Kind) ExitCode() int {
	switch k {
	case Configuration:
		return 1
	default:
		return 3
	}
}

// Error is a classified failure of operation Op.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind.String())
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind.String(), e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is this error's Kind.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// New returns a classified error with a formatted cause.
func New(kind Kind, op, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: errors.Errorf(format, args...)}
}

// Wrap classifies err. It returns nil if err is nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of the first classified error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
