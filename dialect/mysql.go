// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package dialect

import (
	"strconv"
	"strings"

	"github.com/canonical/sqlcrud/internal/sqlgen"
)

// mysqlMaxRows is the largest row count MySQL accepts in a LIMIT clause.
const mysqlMaxRows = "18446744073709551615"

type mysqlDialect struct{}

func (mysqlDialect) Name() string { return MySQL }

func (mysqlDialect) Placeholder(int) string { return "?" }

func (mysqlDialect) QuoteIdentifier(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

// LimitClause uses the largest row count when only rows are skipped, MySQL
// does not accept OFFSET without LIMIT.
func (mysqlDialect) LimitClause(max, skip int) string {
	if max <= 0 && skip > 0 {
		return " LIMIT " + mysqlMaxRows + " OFFSET " + strconv.Itoa(skip)
	}
	return sqlgen.LimitClause(max, skip)
}

func (mysqlDialect) mapType(k columnKind, primary bool) string {
	switch k {
	case kindSmallInt:
		return "SMALLINT"
	case kindInt:
		return "INT"
	case kindBigInt:
		return "BIGINT"
	case kindFloat:
		return "DOUBLE"
	case kindBool:
		return "BOOLEAN"
	case kindBytes:
		if primary {
			return "VARBINARY(255)"
		}
		return "BLOB"
	case kindTime:
		return "DATETIME(6)"
	case kindUUID:
		return "CHAR(36)"
	}
	// TEXT columns cannot be keys without a prefix length.
	if primary {
		return "VARCHAR(255)"
	}
	return "TEXT"
}

func (d mysqlDialect) CreateTableSQL(schema sqlgen.TableSchema, policy sqlgen.CreatePolicy) ([]string, error) {
	return createTableSQL(d, schema, policy)
}

func (d mysqlDialect) CreateIndexSQL(table string, columns []string, unique bool) ([]string, error) {
	return createIndexSQL(d, table, columns, unique, false)
}
