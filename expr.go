// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlcrud

import (
	"reflect"

	"github.com/canonical/sqlcrud/internal/expr"
)

// Expr is a filter over the columns of the tables of a query. Expressions
// are built with the functions below and passed to [Chain.Where].
type Expr = expr.Expr

func column[T, K any](field func(*T) *K) expr.Column {
	return expr.Column{Type: reflect.TypeFor[T](), Ref: field}
}

func compare[T, K any](op expr.Op, field func(*T) *K, v K) Expr {
	return expr.Binary{Op: op, Left: column(field), Right: expr.Value{V: v}}
}

// Eq matches rows where the field equals v.
func Eq[T, K any](field func(*T) *K, v K) Expr {
	return compare(expr.OpEq, field, v)
}

// Ne matches rows where the field does not equal v.
func Ne[T, K any](field func(*T) *K, v K) Expr {
	return compare(expr.OpNe, field, v)
}

// Lt matches rows where the field is less than v.
func Lt[T, K any](field func(*T) *K, v K) Expr {
	return compare(expr.OpLt, field, v)
}

// Le matches rows where the field is less than or equal to v.
func Le[T, K any](field func(*T) *K, v K) Expr {
	return compare(expr.OpLe, field, v)
}

// Gt matches rows where the field is greater than v.
func Gt[T, K any](field func(*T) *K, v K) Expr {
	return compare(expr.OpGt, field, v)
}

// Ge matches rows where the field is greater than or equal to v.
func Ge[T, K any](field func(*T) *K, v K) Expr {
	return compare(expr.OpGe, field, v)
}

// Like matches rows where the field matches the SQL LIKE pattern.
func Like[T any](field func(*T) *string, pattern string) Expr {
	return compare(expr.OpLike, field, pattern)
}

// IsNull matches rows where the field is NULL.
func IsNull[T, K any](field func(*T) *K) Expr {
	return expr.Binary{Op: expr.OpEq, Left: column(field), Right: expr.Null{}}
}

// IsNotNull matches rows where the field is not NULL.
func IsNotNull[T, K any](field func(*T) *K) Expr {
	return expr.Binary{Op: expr.OpNe, Left: column(field), Right: expr.Null{}}
}

// In matches rows where the field equals one of vs. With no values it
// matches nothing.
func In[T, K any](field func(*T) *K, vs ...K) Expr {
	values := make([]expr.Expr, len(vs))
	for i, v := range vs {
		values[i] = expr.Value{V: v}
	}
	return expr.In{X: column(field), Values: values}
}

// EqField matches rows where two fields hold the same value.
func EqField[T, U, K any](a func(*T) *K, b func(*U) *K) Expr {
	return expr.Binary{Op: expr.OpEq, Left: column(a), Right: column(b)}
}

// And matches rows matched by every expression.
func And(es ...Expr) Expr {
	return expr.Logical{Exprs: es}
}

// Or matches rows matched by any of the expressions.
func Or(es ...Expr) Expr {
	return expr.Logical{Or: true, Exprs: es}
}

// Not matches rows not matched by e.
func Not(e Expr) Expr {
	return expr.Not{X: e}
}
