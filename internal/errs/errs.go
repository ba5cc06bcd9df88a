// Package errs implements the telemetry core's error taxonomy: a small
// set of stable kinds that the object surface maps to response codes,
// instead of threading exceptions through the aggregation and threshold
// engines.
package errs

import (
	"errors"
	"fmt"
)

// Kind is one of the error kinds named in the telemetry core design.
type Kind int

const (
	// Unknown is the zero value; never returned deliberately.
	Unknown Kind = iota
	// InvalidArgument covers malformed IDs, impossible interval/duration
	// combinations, mixed threshold kinds, and append limits over the cap.
	InvalidArgument
	// AlreadyExists covers a duplicate report or trigger ID.
	AlreadyExists
	// NotFound covers deleting an entity that is not registered.
	NotFound
	// ResourceLimit covers hitting MaxReports or MaxTriggers.
	ResourceLimit
	// TransportIO covers sensor read or discovery failures.
	TransportIO
	// PersistenceIO covers store/load failures against the blob store.
	PersistenceIO
	// VersionMismatch covers a stored blob declaring an unsupported schema version.
	VersionMismatch
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid_argument"
	case AlreadyExists:
		return "already_exists"
	case NotFound:
		return "not_found"
	case ResourceLimit:
		return "resource_limit"
	case TransportIO:
		return "transport_io"
	case PersistenceIO:
		return "persistence_io"
	case VersionMismatch:
		return "version_mismatch"
	default:
		return "unknown"
	}
}

// E is a kinded, wrappable error.
type E struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *E) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *E) Unwrap() error { return e.Err }

// New builds an *E with the given kind, operation label and optional
// wrapped cause.
func New(kind Kind, op string, err error) *E {
	return &E{Kind: kind, Op: op, Err: err}
}

// Newf is New with a formatted cause.
func Newf(kind Kind, op, format string, args ...interface{}) *E {
	return &E{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the Kind from err, walking the wrap chain. Returns
// Unknown if err is nil or carries no *E.
func KindOf(err error) Kind {
	var e *E
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}
