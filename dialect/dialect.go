// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package dialect

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	moderncsqlite "modernc.org/sqlite"

	"github.com/canonical/sqlcrud/internal/sqlgen"
)

// Dialect names.
const (
	SQLite   = "sqlite"
	Postgres = "postgres"
	MySQL    = "mysql"
)

// Dialect generates the database specific parts of SQL statements.
type Dialect interface {
	sqlgen.Delegate
	// Name returns the name of the dialect.
	Name() string
}

// Get returns the dialect with the given name.
func Get(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case SQLite, "sqlite3":
		return sqliteDialect{}, nil
	case Postgres, "postgresql", "pgx":
		return postgresDialect{}, nil
	case MySQL, "mariadb":
		return mysqlDialect{}, nil
	}
	return nil, errors.Errorf("unknown dialect %q", name)
}

// ForDriver returns the dialect spoken by the database behind drv.
func ForDriver(drv driver.Driver) (Dialect, error) {
	switch drv.(type) {
	case *sqlite3.SQLiteDriver, *moderncsqlite.Driver:
		return sqliteDialect{}, nil
	case *pq.Driver, *stdlib.Driver:
		return postgresDialect{}, nil
	case *mysql.MySQLDriver:
		return mysqlDialect{}, nil
	}
	return nil, errors.Errorf("no dialect for driver %T", drv)
}

// columnKind is the dialect independent class of a column type.
type columnKind int

const (
	kindInt columnKind = iota
	kindSmallInt
	kindBigInt
	kindFloat
	kindBool
	kindText
	kindBytes
	kindTime
	kindUUID
)

var (
	timeType       = reflect.TypeOf(time.Time{})
	uuidType       = reflect.TypeOf(uuid.UUID{})
	bytesType      = reflect.TypeOf([]byte(nil))
	nullStringType = reflect.TypeOf(sql.NullString{})
	nullInt64Type  = reflect.TypeOf(sql.NullInt64{})
	nullInt32Type  = reflect.TypeOf(sql.NullInt32{})
	nullInt16Type  = reflect.TypeOf(sql.NullInt16{})
	nullFloatType  = reflect.TypeOf(sql.NullFloat64{})
	nullBoolType   = reflect.TypeOf(sql.NullBool{})
	nullTimeType   = reflect.TypeOf(sql.NullTime{})
	valuerType     = reflect.TypeOf((*driver.Valuer)(nil)).Elem()
)

// kindOf classifies the Go type stored in a column.
func kindOf(t reflect.Type) (columnKind, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t {
	case timeType, nullTimeType:
		return kindTime, nil
	case uuidType:
		return kindUUID, nil
	case bytesType:
		return kindBytes, nil
	case nullStringType:
		return kindText, nil
	case nullInt64Type:
		return kindBigInt, nil
	case nullInt32Type:
		return kindInt, nil
	case nullInt16Type:
		return kindSmallInt, nil
	case nullFloatType:
		return kindFloat, nil
	case nullBoolType:
		return kindBool, nil
	}
	switch t.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Uint8:
		return kindSmallInt, nil
	case reflect.Int32, reflect.Uint16:
		return kindInt, nil
	case reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint32, reflect.Uint64:
		return kindBigInt, nil
	case reflect.Float32, reflect.Float64:
		return kindFloat, nil
	case reflect.Bool:
		return kindBool, nil
	case reflect.String:
		return kindText, nil
	}
	if t.Implements(valuerType) || reflect.PointerTo(t).Implements(valuerType) {
		return kindText, nil
	}
	return 0, errors.Errorf("no column type for %s", t)
}

// typeMapper maps a column kind to a column type of its dialect. The
// primary flag is set for primary key columns.
type typeMapper interface {
	sqlgen.Delegate
	mapType(k columnKind, primary bool) string
}

// createTableSQL returns the statements creating schema according to
// policy.
func createTableSQL(d typeMapper, schema sqlgen.TableSchema, policy sqlgen.CreatePolicy) ([]string, error) {
	if len(schema.Columns) == 0 {
		return nil, errors.Errorf("table %q has no columns", schema.Name)
	}
	var stmts []string
	table := d.QuoteIdentifier(schema.Name)
	if policy.Has(sqlgen.DropTable) || policy.Has(sqlgen.ReconcileTable) {
		stmts = append(stmts, "DROP TABLE IF EXISTS "+table)
	}
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	if policy.Has(sqlgen.CreateIfNotExists) {
		b.WriteString("IF NOT EXISTS ")
	}
	b.WriteString(table + " (")
	for i, col := range schema.Columns {
		kind, err := kindOf(col.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "column %q of %q", col.Name, schema.Name)
		}
		if i > 0 {
			b.WriteString(", ")
		}
		primary := col.Name == schema.PrimaryKey
		fmt.Fprintf(&b, "%s %s", d.QuoteIdentifier(col.Name), d.mapType(kind, primary))
		switch {
		case primary:
			b.WriteString(" PRIMARY KEY")
		case !col.Nullable:
			b.WriteString(" NOT NULL")
		}
	}
	b.WriteString(")")
	return append(stmts, b.String()), nil
}

// indexName returns the name of the index over columns of table.
func indexName(table string, columns []string, unique bool) string {
	name := "idx_" + table + "_" + strings.Join(columns, "_")
	if unique {
		name += "_unique"
	}
	return name
}

// createIndexSQL returns the statement creating an index. ifNotExists is
// set by dialects supporting CREATE INDEX IF NOT EXISTS.
func createIndexSQL(d sqlgen.Delegate, table string, columns []string, unique, ifNotExists bool) ([]string, error) {
	if len(columns) == 0 {
		return nil, errors.Errorf("index on %q has no columns", table)
	}
	var b strings.Builder
	b.WriteString("CREATE ")
	if unique {
		b.WriteString("UNIQUE ")
	}
	b.WriteString("INDEX ")
	if ifNotExists {
		b.WriteString("IF NOT EXISTS ")
	}
	b.WriteString(d.QuoteIdentifier(indexName(table, columns, unique)))
	b.WriteString(" ON " + d.QuoteIdentifier(table) + " (")
	for i, col := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.QuoteIdentifier(col))
	}
	b.WriteString(")")
	return []string{b.String()}, nil
}
