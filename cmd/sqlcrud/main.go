// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Command sqlcrud runs nested queries against a configured database.
//
// Usage:
//
//	sqlcrud [--config sqlcrud.yaml] [--format yaml|text] demo
//	sqlcrud dialects
//
// Settings are read from the config file and from SQLCRUD_* environment
// variables, e.g. SQLCRUD_DIALECT=postgres SQLCRUD_DSN=postgres://....
package main

import (
	"os"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
