package bootimg

import (
	"fmt"

	"github.com/hashicorp/errwrap"
)

// ErrorKind categorizes an Error the way libmbbootimg's error codes do:
// argument, format, I/O, or internal.
type ErrorKind int

const (
	KindArgument ErrorKind = iota
	KindFormat
	KindIO
	KindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindArgument:
		return "argument"
	case KindFormat:
		return "format"
	case KindIO:
		return "io"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is the structured error carrier the core returns in place of the
// source's out-of-band reader/writer error object. Fatal mirrors the
// stream's own fatal/non-fatal classification and must never be
// reclassified while wrapping.
type Error struct {
	Kind    ErrorKind
	Op      string
	Fatal   bool
	wrapped error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.wrapped.Error())
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.wrapped
}

// WrappedErrors satisfies errwrap.Wrapper so callers can pull the
// underlying stream error back out, same as util.GetErrors does for the
// teacher's hashicorp/errwrap-based errors.
func (e *Error) WrappedErrors() []error {
	if e.wrapped == nil {
		return nil
	}
	if w, ok := e.wrapped.(errwrap.Wrapper); ok {
		return append([]error{e}, w.WrappedErrors()...)
	}
	return []error{e, e.wrapped}
}

// NewError builds a structured error for a named operation.
func NewError(kind ErrorKind, fatal bool, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Fatal: fatal, wrapped: cause}
}

// NewErrorf builds a structured error from a formatted message with no
// underlying wrapped error.
func NewErrorf(kind ErrorKind, fatal bool, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Fatal: fatal, wrapped: fmt.Errorf(format, args...)}
}

// GetErrors unwraps the chain of messages carried by an error returned by
// this package, innermost cause last. Adapted from the teacher's
// util.GetErrors, generalized from a fixed two-element chain to the full
// errwrap.Wrapper chain.
func GetErrors(err error) []string {
	w, ok := err.(errwrap.Wrapper)
	if !ok {
		if err == nil {
			return nil
		}
		return []string{err.Error()}
	}

	var out []string
	for _, e := range w.WrappedErrors() {
		out = append(out, e.Error())
	}
	return out
}
