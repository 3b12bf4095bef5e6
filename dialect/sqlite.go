// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package dialect

import (
	"strconv"
	"strings"

	"github.com/canonical/sqlcrud/internal/sqlgen"
)

type sqliteDialect struct{}

func (sqliteDialect) Name() string { return SQLite }

func (sqliteDialect) Placeholder(int) string { return "?" }

func (sqliteDialect) QuoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// LimitClause uses a negative limit, meaning no limit, when only rows are
// skipped. SQLite does not accept OFFSET without LIMIT.
func (sqliteDialect) LimitClause(max, skip int) string {
	if max <= 0 && skip > 0 {
		return " LIMIT -1 OFFSET " + strconv.Itoa(skip)
	}
	return sqlgen.LimitClause(max, skip)
}

func (sqliteDialect) mapType(k columnKind, primary bool) string {
	switch k {
	case kindInt, kindSmallInt, kindBigInt, kindBool:
		return "INTEGER"
	case kindFloat:
		return "REAL"
	case kindBytes:
		return "BLOB"
	case kindTime:
		return "TIMESTAMP"
	}
	return "TEXT"
}

func (d sqliteDialect) CreateTableSQL(schema sqlgen.TableSchema, policy sqlgen.CreatePolicy) ([]string, error) {
	return createTableSQL(d, schema, policy)
}

func (d sqliteDialect) CreateIndexSQL(table string, columns []string, unique bool) ([]string, error) {
	return createIndexSQL(d, table, columns, unique, true)
}
