// Package stream is the seekable, truncatable byte-stream abstraction the
// core codec engine is built against. It is deliberately thin: positioned
// seek/read/write, truncate, offset query, and a fatal/non-fatal error
// classification, matching libmbbootimg's File abstraction.
package stream

import (
	"errors"
	"io"
	"os"

	"github.com/hashicorp/errwrap"
)

// Whence mirrors io.Seeker's whence values so callers don't need to import
// "io" just to seek.
const (
	SeekStart   = io.SeekStart
	SeekCurrent = io.SeekCurrent
	SeekEnd     = io.SeekEnd
)

// Error carries a human-readable message naming the failed operation plus
// the fatal/non-fatal classification inherited from the underlying stream.
type Error struct {
	Op    string
	Fatal bool
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Op + ": " + e.cause.Error()
	}
	return e.Op
}

func (e *Error) Unwrap() error { return e.cause }

// WrappedErrors satisfies errwrap.Wrapper, the same pattern the teacher's
// util.GetErrors relies on, so the original OS error stays inspectable.
func (e *Error) WrappedErrors() []error {
	if e.cause == nil {
		return []error{e}
	}
	if w, ok := e.cause.(errwrap.Wrapper); ok {
		return append([]error{e}, w.WrappedErrors()...)
	}
	return []error{e, e.cause}
}

// classify reports whether err should be treated as fatal: anything
// surfaced directly from the OS (a broken fd, a device gone away) is
// fatal, since the stream can no longer be trusted; an ordinary io.EOF or
// a short count is not.
func classify(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return false
	}
	var pathErr *os.PathError
	var linkErr *os.LinkError
	return errors.As(err, &pathErr) || errors.As(err, &linkErr)
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Fatal: classify(err), cause: err}
}

// Stream is the byte-stream interface the core codec engine consumes. A
// *File satisfies it; so does anything else with positioned seek/read/
// write and truncate (e.g. an in-memory buffer).
type Stream interface {
	io.ReaderAt
	io.WriterAt
	SeekAbs(offset int64) error
	SeekRel(offset int64) error
	Offset() (int64, error)
	ReadFull(buf []byte) (int, error)
	WriteFull(buf []byte) (int, error)
	Truncate(size int64) error
}

// File wraps an *os.File (or anything satisfying the same surface) to
// implement Stream with the fatal/non-fatal error classification callers
// rely on to decide whether a failure is worth retrying.
type File struct {
	f interface {
		io.ReadWriteSeeker
		io.ReaderAt
		io.WriterAt
		Truncate(size int64) error
	}
}

// New wraps f as a Stream.
func New(f *os.File) *File {
	return &File{f: f}
}

func (s *File) ReadAt(p []byte, off int64) (int, error) {
	n, err := s.f.ReadAt(p, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, wrap("read at offset", err)
	}
	return n, err
}

func (s *File) WriteAt(p []byte, off int64) (int, error) {
	n, err := s.f.WriteAt(p, off)
	if err != nil {
		return n, wrap("write at offset", err)
	}
	return n, nil
}

func (s *File) SeekAbs(offset int64) error {
	_, err := s.f.Seek(offset, io.SeekStart)
	return wrap("seek absolute", err)
}

func (s *File) SeekRel(offset int64) error {
	_, err := s.f.Seek(offset, io.SeekCurrent)
	return wrap("seek relative", err)
}

func (s *File) Offset() (int64, error) {
	off, err := s.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, wrap("query offset", err)
	}
	return off, nil
}

// ReadFull reads exactly len(buf) bytes unless the stream ends first, in
// which case the short count is returned with io.ErrUnexpectedEOF (or
// io.EOF if nothing at all was read) so callers can apply their own
// truncation tolerance.
func (s *File) ReadFull(buf []byte) (int, error) {
	n, err := io.ReadFull(s.f, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return n, wrap("read", err)
	}
	return n, err
}

func (s *File) WriteFull(buf []byte) (int, error) {
	n, err := s.f.Write(buf)
	if err != nil {
		return n, wrap("write", err)
	}
	if n != len(buf) {
		return n, wrap("write", io.ErrShortWrite)
	}
	return n, nil
}

func (s *File) Truncate(size int64) error {
	return wrap("truncate", s.f.Truncate(size))
}

// IsFatal reports whether err (as produced by this package) is fatal.
func IsFatal(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Fatal
	}
	return false
}
