// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlgen

import (
	stderrors "errors"

	"github.com/pkg/errors"
)

// ErrGeneration is matched by every GenerationError.
var ErrGeneration = stderrors.New("generation error")

// GenerationError is returned when a chain cannot be turned into SQL.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return "cannot generate query: " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

func (e *GenerationError) Is(target error) bool {
	return target == ErrGeneration
}

func errorf(format string, args ...any) error {
	return &GenerationError{Err: errors.Errorf(format, args...)}
}

// wrap turns err into a GenerationError unless it already is one.
func wrap(err error) error {
	if err == nil {
		return nil
	}
	var ge *GenerationError
	if stderrors.As(err, &ge) {
		return err
	}
	return &GenerationError{Err: err}
}
