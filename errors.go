// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlcrud

import (
	"database/sql"
	"errors"

	"github.com/canonical/sqlcrud/internal/assemble"
	"github.com/canonical/sqlcrud/internal/sqlgen"
)

// GenerationError is returned when a chain cannot be turned into SQL. No
// statement has been run when it is returned.
type GenerationError = sqlgen.GenerationError

// ExecutionError is returned when the database fails to run a statement.
// The error of the driver is wrapped.
type ExecutionError = assemble.ExecutionError

// DecodeError is returned when a row cannot be decoded into a model.
type DecodeError = assemble.DecodeError

var (
	ErrGeneration = sqlgen.ErrGeneration
	ErrExecution  = assemble.ErrExecution
	ErrDecode     = assemble.ErrDecode
)

var ErrNoRows = sql.ErrNoRows
var ErrTXDone = sql.ErrTxDone

// ErrNilDestination is wrapped by the DecodeError returned when decoding
// into a nil pointer.
var ErrNilDestination = errors.New("nil destination")

// IsGenerationError reports whether err is a GenerationError.
func IsGenerationError(err error) bool {
	return errors.Is(err, ErrGeneration)
}

// IsExecutionError reports whether err is an ExecutionError.
func IsExecutionError(err error) bool {
	return errors.Is(err, ErrExecution)
}

// IsDecodeError reports whether err is a DecodeError.
func IsDecodeError(err error) bool {
	return errors.Is(err, ErrDecode)
}
