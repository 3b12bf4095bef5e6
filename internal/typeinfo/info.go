// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package typeinfo

import (
	"reflect"
)

// TableNamer is implemented by model types that supply an explicit table
// name instead of the type name.
type TableNamer interface {
	TableName() string
}

// Field represents a single field from a struct type.
type Field struct {
	Type reflect.Type

	// Name is the name of the struct field.
	Name string

	// Index of this field in the structure.
	Index int

	// Offset of this field from the start of the structure.
	Offset uintptr

	// Column is the name found in the "db" tag. It is empty for fields that
	// are not stored in a column, such as relation slices.
	Column string

	// OmitEmpty is true when "omitempty" is
	// a property of the field's "db" tag.
	OmitEmpty bool
}

// IsColumn reports whether the field is stored in a column.
func (f Field) IsColumn() bool {
	return f.Column != ""
}

// Info represents reflected information about a struct type.
type Info struct {
	Type reflect.Type

	// Table is the table name of the type.
	Table string

	// ExplicitTable is true when Table was supplied by a TableNamer.
	ExplicitTable bool

	// Fields holds every exported field in declaration order.
	Fields []Field

	// Relate tag names to fields.
	TagToField map[string]Field

	// Relate field names to tags.
	FieldToTag map[string]string
}

// Columns returns the column names of the type in field declaration order.
func (info *Info) Columns() []string {
	cols := make([]string, 0, len(info.TagToField))
	for _, f := range info.Fields {
		if f.IsColumn() {
			cols = append(cols, f.Column)
		}
	}
	return cols
}

// Column returns the field stored in the named column.
func (info *Info) Column(name string) (Field, bool) {
	f, ok := info.TagToField[name]
	return f, ok
}
