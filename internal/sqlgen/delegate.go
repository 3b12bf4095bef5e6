// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlgen

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/canonical/sqlcrud/internal/typeinfo"
)

// Delegate supplies the dialect specific parts of generated SQL.
type Delegate interface {
	// Placeholder returns the token for the n-th binding of a statement,
	// counting from 1.
	Placeholder(n int) string
	// QuoteIdentifier quotes a table or column name.
	QuoteIdentifier(name string) string
	// CreateTableSQL returns the statements creating a table.
	CreateTableSQL(schema TableSchema, policy CreatePolicy) ([]string, error)
	// CreateIndexSQL returns the statements creating an index over the
	// columns of a table.
	CreateIndexSQL(table string, columns []string, unique bool) ([]string, error)
}

// LimitDelegate may be implemented by a Delegate whose LIMIT syntax differs
// from LIMIT n OFFSET m, or that cannot express an offset without a limit.
type LimitDelegate interface {
	LimitClause(max, skip int) string
}

// LimitClause returns the standard limit clause, with a leading space, or
// the empty string if nothing is limited.
func LimitClause(max, skip int) string {
	var b strings.Builder
	if max > 0 {
		b.WriteString(" LIMIT " + strconv.Itoa(max))
	}
	if skip > 0 {
		b.WriteString(" OFFSET " + strconv.Itoa(skip))
	}
	return b.String()
}

// CreatePolicy controls how CreateTableSQL treats an existing table.
type CreatePolicy uint8

const (
	// CreateIfNotExists leaves an existing table untouched.
	CreateIfNotExists CreatePolicy = 1 << iota
	// DropTable drops an existing table before creating it.
	DropTable
	// ReconcileTable brings an existing table in line with the model. It
	// is implemented by dropping and recreating the table.
	ReconcileTable
)

// Has reports whether every flag of o is set in p.
func (p CreatePolicy) Has(o CreatePolicy) bool {
	return p&o == o
}

// ColumnSchema describes one column of a table.
type ColumnSchema struct {
	Name string
	// Type is the Go type of the field stored in the column.
	Type reflect.Type
	// Nullable is true for pointer fields and sql.Null* types.
	Nullable bool
}

// TableSchema describes a table to create.
type TableSchema struct {
	Name    string
	Columns []ColumnSchema
	// PrimaryKey is the name of the primary key column, if any.
	PrimaryKey string
}

// PrimaryKeyColumn is the column treated as primary key when creating a
// table.
const PrimaryKeyColumn = "id"

var scannerType = reflect.TypeOf((*interface{ Scan(any) error })(nil)).Elem()

// SchemaOf returns the schema of the table storing info under the given
// name.
func SchemaOf(info *typeinfo.Info, name string) TableSchema {
	schema := TableSchema{Name: name}
	for _, f := range info.Fields {
		if !f.IsColumn() {
			continue
		}
		col := ColumnSchema{Name: f.Column, Type: f.Type}
		if f.Type.Kind() == reflect.Pointer || reflect.PointerTo(f.Type).Implements(scannerType) {
			col.Nullable = true
		}
		if f.Column == PrimaryKeyColumn {
			schema.PrimaryKey = f.Column
		}
		schema.Columns = append(schema.Columns, col)
	}
	return schema
}
