package sysvipc

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

// Error kinds reported by this package. Every failure returned by an operation
// matches exactly one of them with errors.Is.
var (
	// ErrInvalidArgument is returned for malformed requests, such as an empty
	// operation list. No kernel call is made.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrResourceUnavailable is returned when a non-blocking request could not
	// proceed immediately.
	ErrResourceUnavailable = errors.New("resource temporarily unavailable")

	// ErrNotFound is returned when a path or IPC key does not resolve.
	ErrNotFound = errors.New("no such file or directory")

	// ErrInterrupted is returned when a blocking wait was interrupted by a signal.
	// Interrupted waits are never retried.
	ErrInterrupted = errors.New("interrupted")

	// ErrKernelRejected covers every other kernel failure (bad identifier,
	// permission denied, removed set). The raw errno is kept on the OpError.
	ErrKernelRejected = errors.New("rejected by kernel")

	// ErrNotSupported is returned by the backend on platforms without System V IPC
	// system calls.
	ErrNotSupported = errors.New("System V IPC is not supported on this platform")
)

// OpError describes a failed IPC operation. Err is one of the error kinds above;
// Sys is the underlying system error, usually a unix.Errno, and may be nil.
//
// OpError unwraps to both, so callers can test either the kind or the errno:
//
//	errors.Is(err, sysvipc.ErrKernelRejected)
//	errors.Is(err, unix.EACCES)
type OpError struct {
	// Op is the operation name ("semop", "ftok", "shmget", ...).
	Op string

	// ID is the IPC identifier the operation targeted, or -1.
	ID int

	// Index is the position of the failing request within an operation list, or -1.
	Index int

	// Path is set for key derivation failures.
	Path string

	Err error
	Sys error
}

func (e *OpError) Error() string {
	var b strings.Builder
	b.WriteString("sysvipc: ")
	b.WriteString(e.Op)
	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(e.Path)
	}
	if e.ID >= 0 {
		fmt.Fprintf(&b, " id %d", e.ID)
	}
	if e.Index >= 0 {
		fmt.Fprintf(&b, " op %d", e.Index)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.Sys != nil && e.Sys != e.Err {
		b.WriteString(": ")
		b.WriteString(e.Sys.Error())
	}
	return b.String()
}

func (e *OpError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.Sys != nil {
		errs = append(errs, e.Sys)
	}
	return errs
}

func newOpError(op string, id int, sys error) *OpError {
	return &OpError{Op: op, ID: id, Index: -1, Err: classify(sys), Sys: sys}
}

// classify maps a system error onto one of the package error kinds.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotSupported):
		return ErrNotSupported
	case errors.Is(err, unix.EAGAIN):
		return ErrResourceUnavailable
	case errors.Is(err, unix.EINTR):
		return ErrInterrupted
	case errors.Is(err, unix.ENOENT):
		return ErrNotFound
	case errors.Is(err, unix.EINVAL):
		return ErrInvalidArgument
	default:
		return ErrKernelRejected
	}
}
