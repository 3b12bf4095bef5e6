// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package expr

import (
	"reflect"
	"strings"

	"github.com/pkg/errors"

	"github.com/canonical/sqlcrud/internal/typeinfo"
)

// Context supplies the statement specific parts of a rendered expression.
type Context interface {
	// Column returns the qualified SQL for the column named by ref on the
	// table of type t.
	Column(t reflect.Type, ref typeinfo.Ref) (string, error)
	// Bind records v as the next statement binding and returns the
	// placeholder to write in its place.
	Bind(v any) string
}

// Expr is a node of an expression tree.
type Expr interface {
	writeSQL(b *strings.Builder, ctx Context) error
}

// Op is a comparison operator.
type Op string

const (
	OpEq   Op = "="
	OpNe   Op = "<>"
	OpLt   Op = "<"
	OpLe   Op = "<="
	OpGt   Op = ">"
	OpGe   Op = ">="
	OpLike Op = "LIKE"
)

// Render writes e as SQL using ctx.
func Render(e Expr, ctx Context) (string, error) {
	if e == nil {
		return "", errors.New("cannot render nil expression")
	}
	var b strings.Builder
	if err := e.writeSQL(&b, ctx); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Column references the column of a field of a model type.
type Column struct {
	Type reflect.Type
	Ref  typeinfo.Ref
}

func (c Column) writeSQL(b *strings.Builder, ctx Context) error {
	sql, err := ctx.Column(c.Type, c.Ref)
	if err != nil {
		return err
	}
	b.WriteString(sql)
	return nil
}

// Value is a bound value.
type Value struct {
	V any
}

func (v Value) writeSQL(b *strings.Builder, ctx Context) error {
	b.WriteString(ctx.Bind(v.V))
	return nil
}

// Null is the SQL NULL literal.
type Null struct{}

func (Null) writeSQL(b *strings.Builder, _ Context) error {
	b.WriteString("NULL")
	return nil
}

// Binary compares two expressions. Equality with Null is written as IS NULL
// and inequality as IS NOT NULL.
type Binary struct {
	Op    Op
	Left  Expr
	Right Expr
}

func (e Binary) writeSQL(b *strings.Builder, ctx Context) error {
	if e.Left == nil || e.Right == nil {
		return errors.Errorf("missing operand for %s", e.Op)
	}
	left, right := e.Left, e.Right
	if _, ok := left.(Null); ok {
		left, right = right, left
	}
	if _, ok := right.(Null); ok {
		var is string
		switch e.Op {
		case OpEq:
			is = " IS NULL"
		case OpNe:
			is = " IS NOT NULL"
		default:
			return errors.Errorf("cannot compare NULL with %s", e.Op)
		}
		b.WriteString("(")
		if err := left.writeSQL(b, ctx); err != nil {
			return err
		}
		b.WriteString(is + ")")
		return nil
	}

	b.WriteString("(")
	if err := left.writeSQL(b, ctx); err != nil {
		return err
	}
	b.WriteString(" " + string(e.Op) + " ")
	if err := right.writeSQL(b, ctx); err != nil {
		return err
	}
	b.WriteString(")")
	return nil
}

// Logical joins expressions with AND or OR.
type Logical struct {
	Or    bool
	Exprs []Expr
}

func (e Logical) writeSQL(b *strings.Builder, ctx Context) error {
	if len(e.Exprs) == 0 {
		return errors.New("empty logical expression")
	}
	sep := " AND "
	if e.Or {
		sep = " OR "
	}
	b.WriteString("(")
	for i, x := range e.Exprs {
		if i > 0 {
			b.WriteString(sep)
		}
		if x == nil {
			return errors.New("nil operand in logical expression")
		}
		if err := x.writeSQL(b, ctx); err != nil {
			return err
		}
	}
	b.WriteString(")")
	return nil
}

// Not negates an expression.
type Not struct {
	X Expr
}

func (e Not) writeSQL(b *strings.Builder, ctx Context) error {
	if e.X == nil {
		return errors.New("missing operand for NOT")
	}
	b.WriteString("NOT ")
	return e.X.writeSQL(b, ctx)
}

// In tests membership of X in Values. An empty list is always false.
type In struct {
	X      Expr
	Values []Expr
}

func (e In) writeSQL(b *strings.Builder, ctx Context) error {
	if e.X == nil {
		return errors.New("missing operand for IN")
	}
	if len(e.Values) == 0 {
		b.WriteString("(1 = 0)")
		return nil
	}
	b.WriteString("(")
	if err := e.X.writeSQL(b, ctx); err != nil {
		return err
	}
	b.WriteString(" IN (")
	for i, v := range e.Values {
		if i > 0 {
			b.WriteString(", ")
		}
		if err := v.writeSQL(b, ctx); err != nil {
			return err
		}
	}
	b.WriteString("))")
	return nil
}

// Conjoin returns the conjunction of a and b, either of which may be nil.
func Conjoin(a, b Expr) Expr {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return Logical{Exprs: []Expr{a, b}}
}
