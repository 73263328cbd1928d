// Package status defines the error taxonomy shared by every KiteDB command.
//
// A nil error means OK. Everything else carries one of five kinds:
// NotFound, InvalidArgument, Corruption, IOError and EndFile. Callers
// branch on the kind via the Is* predicates; the detail string (for
// example the "Stale" detail on NotFound) is informational only.
package status

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Kind classifies a command error.
type Kind int

const (
	// KindNotFound means the key, sub-record or field is absent or
	// logically stale.
	KindNotFound Kind = iota + 1
	// KindInvalidArgument means the caller passed something the command
	// cannot act on: bad TTLs, negative offsets, overflowing deltas.
	KindInvalidArgument
	// KindCorruption means a stored value cannot be interpreted the way
	// the command requires, or an index is outside the committed range.
	KindCorruption
	// KindIOError wraps failures bubbled up from the underlying store.
	KindIOError
	// KindEndFile signals iterator exhaustion. Internal.
	KindEndFile
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindCorruption:
		return "Corruption"
	case KindIOError:
		return "IOError"
	case KindEndFile:
		return "EndFile"
	default:
		return "Unknown"
	}
}

// Status is the concrete error type returned by KiteDB commands.
type Status struct {
	kind  Kind
	msg   string
	cause error
}

func (s *Status) Error() string {
	if s.msg == "" {
		return s.kind.String()
	}
	return fmt.Sprintf("%s: %s", s.kind, s.msg)
}

// Unwrap exposes the wrapped cause, if any, for errors.Is / errors.As.
func (s *Status) Unwrap() error { return s.cause }

// Kind returns the error classification.
func (s *Status) Kind() Kind { return s.kind }

// NotFound returns a NotFound error with an optional detail string.
func NotFound(detail string) error {
	return &Status{kind: KindNotFound, msg: detail}
}

// InvalidArgument returns an InvalidArgument error.
func InvalidArgument(msg string) error {
	return &Status{kind: KindInvalidArgument, msg: msg}
}

// Corruption returns a Corruption error.
func Corruption(msg string) error {
	return &Status{kind: KindCorruption, msg: msg}
}

// IOError wraps an error from the underlying store. The cause chain is
// preserved, so errors.Is against the original error still matches.
func IOError(context string, cause error) error {
	return &Status{kind: KindIOError, msg: context, cause: errors.Wrap(cause, context)}
}

// EndFile returns the iterator-exhaustion sentinel.
func EndFile() error {
	return &Status{kind: KindEndFile}
}

func is(err error, k Kind) bool {
	var s *Status
	if errors.As(err, &s) {
		return s.kind == k
	}
	return false
}

// IsNotFound reports whether err is a NotFound status.
func IsNotFound(err error) bool { return is(err, KindNotFound) }

// IsInvalidArgument reports whether err is an InvalidArgument status.
func IsInvalidArgument(err error) bool { return is(err, KindInvalidArgument) }

// IsCorruption reports whether err is a Corruption status.
func IsCorruption(err error) bool { return is(err, KindCorruption) }

// IsIOError reports whether err is an IOError status.
func IsIOError(err error) bool { return is(err, KindIOError) }

// IsEndFile reports whether err is the iterator-exhaustion sentinel.
func IsEndFile(err error) bool { return is(err, KindEndFile) }
