// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlcrud

import (
	"context"
	"database/sql"
	"sync/atomic"

	"github.com/go-openapi/inflect"
	"go.uber.org/zap"

	"github.com/canonical/sqlcrud/dialect"
	"github.com/canonical/sqlcrud/internal/sqlgen"
	"github.com/canonical/sqlcrud/internal/typeinfo"
)

// stmtCache stores the driver prepared statements of the generated SQL run
// on each DB.
var stmtCache = newStatementCache()

// DB runs queries on a database.
type DB struct {
	// cacheID is used to look up the cached driver prepared statements prepared
	// on this database.
	cacheID dbID
	// sqldb is the underlying database/sql DB object.
	sqldb *sql.DB
	opts  options
}

type options struct {
	logger   *zap.Logger
	dialect  dialect.Dialect
	parallel bool
	naming   func(string) string
}

// Option configures a DB.
type Option func(*options)

// WithLogger sets the logger queries are logged on. Statements are logged at
// debug level.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithDialect sets the SQL dialect of the database. By default it is
// inferred from the driver, falling back to SQLite.
func WithDialect(d dialect.Dialect) Option {
	return func(o *options) {
		o.dialect = d
	}
}

// WithParallelPrefetch runs the statements of joined tables concurrently.
// Queries run in a transaction always run them one by one.
func WithParallelPrefetch(parallel bool) Option {
	return func(o *options) {
		o.parallel = parallel
	}
}

// WithTableNaming maps the name of a model type to its table name. It is not
// applied to models implementing TableName.
func WithTableNaming(naming func(typeName string) string) Option {
	return func(o *options) {
		o.naming = naming
	}
}

// SnakeCase names the table of PersonTag person_tag.
func SnakeCase(typeName string) string {
	return inflect.Underscore(typeName)
}

// SnakeCasePlural names the table of PersonTag person_tags.
func SnakeCasePlural(typeName string) string {
	return inflect.Pluralize(inflect.Underscore(typeName))
}

// NewDB creates a new [DB] from a [sql.DB].
func NewDB(sqldb *sql.DB, opts ...Option) *DB {
	if sqldb == nil {
		return nil
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.dialect == nil {
		d, err := dialect.ForDriver(sqldb.Driver())
		if err != nil {
			o.logger.Debug("falling back to sqlite dialect", zap.Error(err))
			d, _ = dialect.Get(dialect.SQLite)
		}
		o.dialect = d
	}
	return stmtCache.newDB(sqldb, o)
}

// PlainDB returns the underlying database object.
func (db *DB) PlainDB() *sql.DB {
	return db.sqldb
}

// Dialect returns the SQL dialect of the database.
func (db *DB) Dialect() dialect.Dialect {
	return db.opts.dialect
}

func (db *DB) session() *session {
	return &session{db: db}
}

// namer returns the table naming of the DB.
func (o options) namer() sqlgen.TableNamer {
	if o.naming == nil {
		return sqlgen.DefaultTableName
	}
	return func(info *typeinfo.Info) string {
		if info.ExplicitTable {
			return info.Table
		}
		return o.naming(info.Type.Name())
	}
}

// Querier is a DB or a TX.
type Querier interface {
	session() *session
}

// TX represents a transaction on the database.
type TX struct {
	sqltx *sql.Tx
	db    *DB
	done  int32
}

func (tx *TX) isDone() bool {
	return atomic.LoadInt32(&tx.done) == 1
}

func (tx *TX) setDone() error {
	if !atomic.CompareAndSwapInt32(&tx.done, 0, 1) {
		return ErrTXDone
	}
	return nil
}

func (tx *TX) session() *session {
	return &session{db: tx.db, tx: tx}
}

// Begin starts a transaction. A transaction must be ended
// with a [TX.Commit] or [TX.Rollback].
func (db *DB) Begin(ctx context.Context, opts *TXOptions) (*TX, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	sqltx, err := db.sqldb.BeginTx(ctx, opts.plainTXOptions())
	if err != nil {
		return nil, err
	}
	return &TX{sqltx: sqltx, db: db}, nil
}

// Commit commits the transaction.
func (tx *TX) Commit() error {
	err := tx.setDone()
	if err == nil {
		err = tx.sqltx.Commit()
	}
	return err
}

// Rollback aborts the transaction.
func (tx *TX) Rollback() error {
	err := tx.setDone()
	if err == nil {
		err = tx.sqltx.Rollback()
	}
	return err
}

// TXOptions holds the transaction options to be used in [DB.Begin].
type TXOptions struct {
	// Isolation is the transaction isolation level.
	// If zero, the driver or database's default level is used.
	Isolation sql.IsolationLevel
	ReadOnly  bool
}

func (txopts *TXOptions) plainTXOptions() *sql.TxOptions {
	if txopts == nil {
		return nil
	}
	return &sql.TxOptions{Isolation: txopts.Isolation, ReadOnly: txopts.ReadOnly}
}
