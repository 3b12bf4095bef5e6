// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlcrud

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/canonical/sqlcrud/internal/assemble"
)

// session runs the statements of one query on a DB, or on a TX if set.
type session struct {
	db *DB
	tx *TX
}

func (s *session) logger() *zap.Logger {
	return s.db.opts.logger
}

func (s *session) assembleOptions() assemble.Options {
	return assemble.Options{
		Logger: s.logger(),
		// A transaction holds a single connection.
		Parallel: s.db.opts.parallel && s.tx == nil,
	}
}

func (s *session) check() error {
	if s.tx != nil && s.tx.isDone() {
		return ErrTXDone
	}
	return nil
}

// ExecDelegate returns a delegate running query. Queries run on a DB are
// prepared through the statement cache. A query run on a transaction reuses
// the statement prepared on the DB if there is one, otherwise it runs
// directly on the transaction.
func (s *session) ExecDelegate(ctx context.Context, query string) (assemble.ExecDelegate, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	d := &stmtDelegate{query: query}
	if s.tx != nil {
		d.tx = s.tx.sqltx
		if sqlstmt, ok := stmtCache.lookupStmt(s.db, query); ok {
			// Register the prepared statement on the transaction. Note that
			// this does not re-prepare the statement on the driver.
			d.stmt = d.tx.Stmt(sqlstmt)
			d.ownsStmt = true
		}
		return d, nil
	}
	sqlstmt, cached, err := stmtCache.prepareStmt(ctx, s.db.cacheID, s.db.sqldb, query)
	if err != nil {
		return nil, err
	}
	d.stmt = sqlstmt
	d.ownsStmt = !cached
	return d, nil
}

// stmtDelegate runs one statement through database/sql.
type stmtDelegate struct {
	query string
	// stmt is the prepared statement to run. If nil the query is run on tx.
	stmt *sql.Stmt
	// ownsStmt is set when stmt is not shared through the cache.
	ownsStmt bool
	tx       *sql.Tx
	rows     *sql.Rows
	closed   bool
}

func (d *stmtDelegate) Bind(ctx context.Context, args []any, skip int) error {
	if d.closed {
		return sql.ErrConnDone
	}
	if skip > len(args) {
		skip = len(args)
	}
	var err error
	if d.stmt != nil {
		d.rows, err = d.stmt.QueryContext(ctx, args[skip:]...)
	} else {
		d.rows, err = d.tx.QueryContext(ctx, d.query, args[skip:]...)
	}
	return err
}

func (d *stmtDelegate) HasNext() (bool, error) {
	if d.rows == nil {
		return false, nil
	}
	if d.rows.Next() {
		return true, nil
	}
	return false, d.rows.Err()
}

// Next returns the rows themselves, which read the current row.
func (d *stmtDelegate) Next() (assemble.RowReader, error) {
	return d.rows, nil
}

func (d *stmtDelegate) Exec(ctx context.Context, args []any) (int64, error) {
	var res sql.Result
	var err error
	if d.stmt != nil {
		res, err = d.stmt.ExecContext(ctx, args...)
	} else {
		res, err = d.tx.ExecContext(ctx, d.query, args...)
	}
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (d *stmtDelegate) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	var err error
	if d.rows != nil {
		err = d.rows.Close()
	}
	if d.ownsStmt {
		if cerr := d.stmt.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
