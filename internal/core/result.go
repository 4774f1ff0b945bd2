package core

import "errors"

var errMissing = errors.New("result carries no error")

// Result is the outcome of a use case: either a value or an error.
type Result[T any] struct {
	value T
	err   error
}

func Ok[T any](v T) Result[T] {
	return Result[T]{value: v}
}

// Err builds a failed result. A nil error still yields a failure.
func Err[T any](err error) Result[T] {
	if err == nil {
		err = errMissing
	}
	return Result[T]{err: err}
}

func (r Result[T]) IsOk() bool  { return r.err == nil }
func (r Result[T]) IsErr() bool { return r.err != nil }

// Value returns the zero value for failed results.
func (r Result[T]) Value() T { return r.value }

func (r Result[T]) Err() error { return r.err }

func (r Result[T]) Unwrap() (T, error) { return r.value, r.err }
