// Package result provides the tagged outcome type returned by every public
// cloud operation: either a value, or a classified failure.
package result

import (
	"errors"
	"fmt"
)

// Kind categorizes a failure so callers can decide whether to retry,
// fix their configuration, or give up.
type Kind int

const (
	// KindUnknown is any failure that does not fit another kind.
	KindUnknown Kind = iota
	// KindCredentials indicates missing, invalid, expired or insufficient credentials.
	KindCredentials
	// KindNotFound indicates the named resource does not exist.
	KindNotFound
	// KindTransient indicates throttling, service unavailability or a network error.
	KindTransient
	// KindInvalidInput indicates the caller supplied malformed input.
	KindInvalidInput
	// KindConflict indicates the target already exists and will not be overwritten.
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindCredentials:
		return "credentials"
	case KindNotFound:
		return "not_found"
	case KindTransient:
		return "transient"
	case KindInvalidInput:
		return "invalid_input"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Retryable reports whether a failure of this kind may succeed if repeated.
func (k Kind) Retryable() bool {
	return k == KindTransient
}

// Error is a classified failure. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf builds a classified error from a format string.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Result holds either a value of type T or a classified failure.
type Result[T any] struct {
	value T
	err   *Error
}

// Success wraps a value.
func Success[T any](v T) Result[T] {
	return Result[T]{value: v}
}

// Failure wraps a classified error. A nil err is replaced by a descriptive one.
func Failure[T any](kind Kind, op string, err error) Result[T] {
	if err == nil {
		err = errors.New("operation failed")
	}
	return Result[T]{err: &Error{Kind: kind, Op: op, Err: err}}
}

// FromError converts an error into a failed Result, keeping the kind of an
// existing *Error in the chain.
func FromError[T any](op string, err error) Result[T] {
	var e *Error
	if errors.As(err, &e) {
		c := *e
		if c.Op == "" {
			c.Op = op
		}
		return Result[T]{err: &c}
	}
	return Failure[T](KindUnknown, op, err)
}

// OK reports whether the result holds a value.
func (r Result[T]) OK() bool {
	return r.err == nil
}

// Value returns the held value, or the zero value on failure.
func (r Result[T]) Value() T {
	return r.value
}

// Kind returns the failure kind. It is meaningless when OK is true.
func (r Result[T]) Kind() Kind {
	if r.err == nil {
		return KindUnknown
	}
	return r.err.Kind
}

// Err returns the failure as an error, or nil on success.
func (r Result[T]) Err() error {
	if r.err == nil {
		return nil
	}
	return r.err
}

// Get returns the value and error in the conventional Go form.
func (r Result[T]) Get() (T, error) {
	return r.value, r.Err()
}
