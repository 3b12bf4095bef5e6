// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package assemble

import (
	stderrors "errors"

	"github.com/pkg/errors"
)

var (
	// ErrExecution is matched by every ExecutionError.
	ErrExecution = stderrors.New("execution error")
	// ErrDecode is matched by every DecodeError.
	ErrDecode = stderrors.New("decode error")
)

// ExecutionError is returned when the statements of a query cannot be run.
// Backend errors are wrapped unmodified.
type ExecutionError struct {
	Err error
}

func (e *ExecutionError) Error() string {
	return "cannot execute query: " + e.Err.Error()
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	return target == ErrExecution
}

// DecodeError is returned when a row cannot be decoded into a model.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "cannot decode result: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

func executionErrorf(format string, args ...any) error {
	return &ExecutionError{Err: errors.Errorf(format, args...)}
}

func decodeErrorf(format string, args ...any) error {
	return &DecodeError{Err: errors.Errorf(format, args...)}
}

// execution wraps a backend error, leaving errors of this package as they
// are.
func execution(err error) error {
	if err == nil {
		return nil
	}
	var ee *ExecutionError
	var de *DecodeError
	if stderrors.As(err, &ee) || stderrors.As(err, &de) {
		return err
	}
	return &ExecutionError{Err: err}
}
