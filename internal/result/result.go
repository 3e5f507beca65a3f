// Package result provides a value-or-error container used where keytune
// degrades individual reads instead of aborting a whole operation.
package result

import (
	"fmt"

	"github.com/muurk/keytune/internal/errs"
)

// Result holds either a value or an error, never both.
type Result[T any] struct {
	value T
	err   error
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] {
	return Result[T]{value: v}
}

// Err wraps a failure. A nil err is replaced with a KindUnknown error so an
// Err result is never mistaken for success.
func Err[T any](err error) Result[T] {
	if err == nil {
		err = errs.New(errs.KindUnknown, "", "nil error in failed result")
	}
	return Result[T]{err: err}
}

// Of converts a conventional (value, error) pair.
func Of[T any](v T, err error) Result[T] {
	if err != nil {
		return Err[T](err)
	}
	return Ok(v)
}

// Try runs fn and converts a panic into a KindUnknown error.
func Try[T any](fn func() (T, error)) (r Result[T]) {
	defer func() {
		if p := recover(); p != nil {
			r = Err[T](errs.New(errs.KindUnknown, "", fmt.Sprintf("panic: %v", p)))
		}
	}()
	return Of(fn())
}

func (r Result[T]) IsOk() bool { return r.err == nil }

// Err returns the failure, or nil.
func (r Result[T]) Err() error { return r.err }

// Kind returns the error kind of a failure; KindUnknown for success.
func (r Result[T]) Kind() errs.Kind { return errs.KindOf(r.err) }

// Value returns the wrapped value; the zero value for a failure.
func (r Result[T]) Value() T { return r.value }

// Unwrap returns the conventional (value, error) pair.
func (r Result[T]) Unwrap() (T, error) { return r.value, r.err }

// UnwrapOr returns the value, or def for a failure.
func (r Result[T]) UnwrapOr(def T) T {
	if r.err != nil {
		return def
	}
	return r.value
}

// OrElse calls fn with the failure and returns its result; success passes through.
func (r Result[T]) OrElse(fn func(error) Result[T]) Result[T] {
	if r.err == nil {
		return r
	}
	return fn(r.err)
}

// Map transforms a successful value. Failures short-circuit.
func Map[T, U any](r Result[T], fn func(T) U) Result[U] {
	if r.err != nil {
		return Err[U](r.err)
	}
	return Ok(fn(r.value))
}

// AndThen chains a fallible step. Failures short-circuit.
func AndThen[T, U any](r Result[T], fn func(T) Result[U]) Result[U] {
	if r.err != nil {
		return Err[U](r.err)
	}
	return fn(r.value)
}
