// Package errors extends the standard "errors" package with stack traces,
// multi errors, nested errors and a configurable formatter.
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

const stackDepth = 32

type StackTrace []uintptr

type stackTracer interface {
	StackTrace() StackTrace
}

// withStack is an error with a stack trace.
type withStack struct {
	error
	trace StackTrace
}

// wrappedError is a message prefix for another error.
type wrappedError struct {
	msg   string
	err   error
	trace StackTrace
}

func New(message string) error {
	return &withStack{error: errors.New(message), trace: callers()}
}

func Errorf(format string, a ...any) error {
	return &withStack{error: fmt.Errorf(format, a...), trace: callers()} // nolint: forbidigo
}

// WithStack adds a stack trace to the error, if it is not already present.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	var tracer stackTracer
	if errors.As(err, &tracer) {
		return err
	}
	return &withStack{error: err, trace: callers()}
}

// Wrap returns a new error with the message and the original error as the cause.
func Wrap(err error, message string) error {
	return &wrappedError{msg: message, err: err, trace: callers()}
}

func Wrapf(err error, format string, a ...any) error {
	return &wrappedError{msg: fmt.Sprintf(format, a...), err: err, trace: callers()}
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func Unwrap(err error) error {
	return errors.Unwrap(err)
}

func (e *withStack) Unwrap() error {
	return e.error
}

func (e *withStack) StackTrace() StackTrace {
	return e.trace
}

func (e *wrappedError) Error() string {
	return e.msg
}

func (e *wrappedError) Unwrap() error {
	return e.err
}

func (e *wrappedError) StackTrace() StackTrace {
	return e.trace
}

func callers() StackTrace {
	pcs := make([]uintptr, stackDepth)
	n := runtime.Callers(3, pcs)
	return pcs[0:n]
}
