package taskx

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrArityMismatch = errors.New("argument count does not match callable")
	ErrArgumentType  = errors.New("argument does not fit parameter")
	ErrMalformedItem = errors.New("malformed work item")
)

// NotFoundError means a work item names a callable this process never
// registered. It points at a deployment mismatch between producer and
// consumer, not a transient fault.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("callable %q %s", e.Key, ErrNotFound)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// ArityError is a decode-time failure: the item carries a different number
// of arguments than the callable takes.
type ArityError struct {
	Key      string
	Want     int
	Got      int
	Variadic bool
}

func (e *ArityError) Error() string {
	want := fmt.Sprint(e.Want)
	if e.Variadic {
		want = "at least " + want
	}
	return fmt.Sprintf("callable %q: %s: want %s, got %d", e.Key, ErrArityMismatch, want, e.Got)
}

func (e *ArityError) Unwrap() error {
	return ErrArityMismatch
}

// InvocationError wraps an error returned, or a panic raised, by a callable.
type InvocationError struct {
	Key      string
	Err      error
	Panicked bool
	Stack    []byte
}

func (e *InvocationError) Error() string {
	if e.Panicked {
		return fmt.Sprintf("callable %q panicked: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("callable %q failed: %v", e.Key, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}
