// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package dialect

import (
	"strconv"

	"github.com/lib/pq"

	"github.com/canonical/sqlcrud/internal/sqlgen"
)

type postgresDialect struct{}

func (postgresDialect) Name() string { return Postgres }

func (postgresDialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (postgresDialect) QuoteIdentifier(s string) string {
	return pq.QuoteIdentifier(s)
}

func (postgresDialect) mapType(k columnKind, primary bool) string {
	switch k {
	case kindSmallInt:
		return "SMALLINT"
	case kindInt:
		return "INTEGER"
	case kindBigInt:
		return "BIGINT"
	case kindFloat:
		return "DOUBLE PRECISION"
	case kindBool:
		return "BOOLEAN"
	case kindBytes:
		return "BYTEA"
	case kindTime:
		return "TIMESTAMPTZ"
	case kindUUID:
		return "UUID"
	}
	return "TEXT"
}

func (d postgresDialect) CreateTableSQL(schema sqlgen.TableSchema, policy sqlgen.CreatePolicy) ([]string, error) {
	return createTableSQL(d, schema, policy)
}

func (d postgresDialect) CreateIndexSQL(table string, columns []string, unique bool) ([]string, error) {
	return createIndexSQL(d, table, columns, unique, true)
}
