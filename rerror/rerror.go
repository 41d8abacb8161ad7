// Package rerror implements the sticky, annotated error type used
// throughout riegeli. Every fallible operation in the core returns an
// error built by this package rather than a bare error value, so that
// once a reader or writer has failed, every later call can report the
// same status.
package rerror

import (
	"fmt"
	"strings"
)

// Kind classifies an error the way the operation that produced it would
// like a caller to react to it.
type Kind int

const (
	// Other is an unclassified error.
	Other Kind = iota
	// InvalidArgument covers malformed input: bad varints, corrupt
	// compressed streams, field-projection paths with a misplaced
	// EXISTENCE_ONLY, state machines with an implicit loop.
	InvalidArgument
	// DataLoss covers corruption detected by a checksum or a structural
	// invariant: hash mismatch, truncated chunk, impossible transition.
	DataLoss
	// ResourceExhausted covers overflow: position overflow, too many
	// buckets or buffers, a size limit exceeded.
	ResourceExhausted
	// Unimplemented covers an operation a concrete reader/writer opts out
	// of, such as Seek or Size.
	Unimplemented
	// FailedPrecondition covers calling a method out of the sequence the
	// object's state machine allows.
	FailedPrecondition
	// OutOfRange covers a position or index past the end of a stream.
	OutOfRange
	// Canceled covers a context cancellation observed by an underlying
	// dependency.
	Canceled
)

var kindNames = map[Kind]string{
	Other:               "other",
	InvalidArgument:     "invalid argument",
	DataLoss:            "data loss",
	ResourceExhausted:   "resource exhausted",
	Unimplemented:       "unimplemented",
	FailedPrecondition:  "failed precondition",
	OutOfRange:          "out of range",
	Canceled:            "canceled",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "other"
}

// Error is the annotated error type returned by every riegeli package.
// It carries a Kind, an optional message, and an optional wrapped cause.
// Context is accumulated by Annotate as the error propagates up through
// layers, without losing the original Kind or cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// New creates an Error of the given kind with a formatted message and no
// underlying cause.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Annotate wraps err with an additional context message, preserving err's
// Kind if err is itself an *Error (Other otherwise). A nil err returns nil,
// so Annotate can be used unconditionally around a call that may fail.
func Annotate(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	kind := Other
	if e, ok := err.(*Error); ok {
		kind = e.Kind
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithKind wraps err, overriding its Kind. Used when a lower layer's
// generic error (e.g. an io.Reader's error) needs to be reclassified as
// it crosses into riegeli's status taxonomy.
func WithKind(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap lets errors.Is/errors.As see through an Error to its cause.
func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err if it is (or wraps) an *Error, Other
// otherwise. A nil err reports Other.
func KindOf(err error) Kind {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return Other
		}
		err = u.Unwrap()
	}
	return Other
}
