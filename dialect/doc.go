// Package dialect provides the SQL dialects sqlcrud generates statements
// for.
//
// A dialect supplies the parts of generated SQL that differ between
// databases: binding placeholders, identifier quoting, LIMIT syntax and the
// DDL used to create tables and indexes.
//
// # Supported Dialects
//
//	dialect.SQLite   = "sqlite"
//	dialect.Postgres = "postgres"
//	dialect.MySQL    = "mysql"
//
// A dialect is looked up by name with Get, or inferred from the driver of an
// open database with ForDriver.
package dialect
