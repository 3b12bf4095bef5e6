// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlcrud

import (
	"iter"
	"reflect"

	"github.com/canonical/sqlcrud/internal/assemble"
)

// Rows is the result of a query. Root rows are read from the database as
// Next is called, with the rows of joined tables already loaded into them.
// Rows cannot be rewound.
type Rows[T any] struct {
	result *assemble.Result
}

// Next prepares the next row for [Rows.Get] or [Rows.Value]. It returns false
// when the rows are exhausted or an error occurred, see [Rows.Err]. The
// database resources are released once the rows are exhausted.
func (r *Rows[T]) Next() bool {
	return r.result.Next()
}

// Get decodes the current row into dest, replacing all of its fields.
func (r *Rows[T]) Get(dest *T) error {
	if dest == nil {
		return &DecodeError{Err: ErrNilDestination}
	}
	return r.result.Decode(reflect.ValueOf(dest).Elem())
}

// Value decodes the current row into a new value.
func (r *Rows[T]) Value() (T, error) {
	var v T
	err := r.Get(&v)
	return v, err
}

// Err returns the error that ended the iteration, if any.
func (r *Rows[T]) Err() error {
	return r.result.Err()
}

// Close releases the database resources of the rows. It can be called more
// than once and before the rows are exhausted.
func (r *Rows[T]) Close() error {
	return r.result.Close()
}

// All decodes the remaining rows and closes r.
func (r *Rows[T]) All() (vs []T, err error) {
	defer func() {
		if cerr := r.Close(); err == nil {
			err = cerr
		}
	}()
	for r.Next() {
		v, err := r.Value()
		if err != nil {
			return nil, err
		}
		vs = append(vs, v)
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return vs, nil
}

// Seq returns an iterator over the remaining rows. The rows are closed when
// the iteration ends, including when the loop is left early. An error ends
// the iteration after being yielded.
func (r *Rows[T]) Seq() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		defer r.Close()
		for r.Next() {
			v, err := r.Value()
			if !yield(v, err) || err != nil {
				return
			}
		}
		if err := r.Err(); err != nil {
			var zero T
			yield(zero, err)
		}
	}
}
