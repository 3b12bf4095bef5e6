// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlgen

import (
	"reflect"
	"strings"

	"github.com/canonical/sqlcrud/internal/typeinfo"
)

// checkWritable rejects modifiers that have no meaning for cmd.
func (s *State) checkWritable(p Pending) error {
	if len(p.Orderings) > 0 {
		return errorf("order is not supported with %s", s.command)
	}
	if p.Limit != nil {
		return errorf("limit is not supported with %s", s.command)
	}
	return nil
}

// writtenFields returns the fields of the value to write, honoring the
// column filters. Fields tagged omitempty are left out when zero.
func (s *State) writtenFields(t Table, p Pending) ([]typeinfo.Field, []any, error) {
	if !s.value.IsValid() {
		return nil, nil, errorf("no value to %s", s.command)
	}
	v := s.value
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, nil, errorf("cannot %s nil %s", s.command, t.Type.Name())
		}
		v = v.Elem()
	}
	if v.Type() != t.Type {
		return nil, nil, errorf("cannot %s %s into table of %q", s.command, v.Type(), t.Type.Name())
	}
	cols, err := s.columns(t, p.Filters, nil)
	if err != nil {
		return nil, nil, err
	}
	var fields []typeinfo.Field
	var values []any
	for _, col := range cols {
		f, _ := t.Info.Column(col)
		fv := v.Field(f.Index)
		if f.OmitEmpty && fv.IsZero() {
			continue
		}
		fields = append(fields, f)
		values = append(values, fv.Interface())
	}
	if len(fields) == 0 {
		return nil, nil, errorf("no columns to %s for %q", s.command, t.Type.Name())
	}
	return fields, values, nil
}

func (s *State) emitInsert(t Table, p Pending) (Statement, error) {
	if err := s.checkWritable(p); err != nil {
		return Statement{}, err
	}
	if p.Where != nil {
		return Statement{}, errorf("where is not supported with insert")
	}
	fields, values, err := s.writtenFields(t, p)
	if err != nil {
		return Statement{}, err
	}
	ctx := s.newContext(false)
	var b strings.Builder
	b.WriteString("INSERT INTO " + s.quote(t.Name) + " (")
	for i, f := range fields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(s.quote(f.Column))
	}
	b.WriteString(") VALUES (")
	for i, v := range values {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(ctx.Bind(v))
	}
	b.WriteString(")")
	return Statement{SQL: b.String(), Bindings: ctx.bindings}, nil
}

func (s *State) emitUpdate(t Table, p Pending) (Statement, error) {
	if err := s.checkWritable(p); err != nil {
		return Statement{}, err
	}
	fields, values, err := s.writtenFields(t, p)
	if err != nil {
		return Statement{}, err
	}
	ctx := s.newContext(false, scope{table: t})
	var b strings.Builder
	b.WriteString("UPDATE " + s.quote(t.Name) + " SET ")
	for i, f := range fields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(s.quote(f.Column) + " = " + ctx.Bind(values[i]))
	}
	if err := s.writeWhere(&b, ctx, p.Where); err != nil {
		return Statement{}, err
	}
	return Statement{SQL: b.String(), Bindings: ctx.bindings}, nil
}

func (s *State) emitDelete(t Table, p Pending) (Statement, error) {
	if err := s.checkWritable(p); err != nil {
		return Statement{}, err
	}
	if len(p.Filters) > 0 {
		return Statement{}, errorf("column filters are not supported with delete")
	}
	ctx := s.newContext(false, scope{table: t})
	var b strings.Builder
	b.WriteString("DELETE FROM " + s.quote(t.Name))
	if err := s.writeWhere(&b, ctx, p.Where); err != nil {
		return Statement{}, err
	}
	return Statement{SQL: b.String(), Bindings: ctx.bindings}, nil
}

// CreateTable returns the statements creating the table of model type t.
func CreateTable(d Delegate, namer TableNamer, t reflect.Type, policy CreatePolicy) ([]string, error) {
	info, err := typeinfo.GetTypeInfo(t)
	if err != nil {
		return nil, wrap(err)
	}
	if namer == nil {
		namer = DefaultTableName
	}
	stmts, err := d.CreateTableSQL(SchemaOf(info, namer(info)), policy)
	return stmts, wrap(err)
}

// CreateIndex returns the statements creating an index over the columns
// named by refs on the table of model type t.
func CreateIndex(d Delegate, namer TableNamer, t reflect.Type, unique bool, refs ...typeinfo.Ref) ([]string, error) {
	info, err := typeinfo.GetTypeInfo(t)
	if err != nil {
		return nil, wrap(err)
	}
	if len(refs) == 0 {
		return nil, errorf("index on %q needs at least one column", info.Type.Name())
	}
	if namer == nil {
		namer = DefaultTableName
	}
	cols := make([]string, 0, len(refs))
	for _, ref := range refs {
		col, err := info.ResolveColumn(ref)
		if err != nil {
			return nil, wrap(err)
		}
		cols = append(cols, col)
	}
	stmts, err := d.CreateIndexSQL(namer(info), cols, unique)
	return stmts, wrap(err)
}
