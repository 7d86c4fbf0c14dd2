//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package lookup carries the outcome of a status lookup that the access
// pipeline depends on but cannot itself perform, such as "is this individual
// safety-flagged" or "which unit authored this note".
//
// A [Result] never exposes its value on its own.  The only way to read it is
// [Result.Or], which takes the value to use when the lookup failed.  Leaving
// out the failure case is therefore visible at the call site:
//
//	flagged := status.Or(true) // unknown counts as flagged
package lookup

import "github.com/pkg/errors"

// Result is a value that may have failed to load.  The zero Result counts
// as failed, so a field that was never filled in falls back like an error.
type Result[T any] struct {
	value T
	err   error
	known bool
}

// errNotLoaded is reported by a zero Result.
var errNotLoaded = errors.New("lookup was not performed")

// Of builds a Result from the usual (value, error) pair.
func Of[T any](v T, err error) Result[T] {
	if err != nil {
		return Failed[T](err)
	}
	return Known(v)
}

// Known builds a successful Result.
func Known[T any](v T) Result[T] {
	return Result[T]{value: v, known: true}
}

// Failed builds a Result for a lookup that could not be completed.
func Failed[T any](err error) Result[T] {
	if err == nil {
		err = errNotLoaded
	}
	return Result[T]{err: err}
}

// Or returns the looked-up value, or fallback when the lookup failed.
func (r Result[T]) Or(fallback T) T {
	if !r.known {
		return fallback
	}
	return r.value
}

// Err returns the lookup failure, if any.
func (r Result[T]) Err() error {
	if !r.known && r.err == nil {
		return errNotLoaded
	}
	return r.err
}

// Failed reports whether the lookup could not be completed.
func (r Result[T]) Failed() bool {
	return !r.known
}
