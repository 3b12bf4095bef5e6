// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlcrud

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"strings"
	"sync"
	"unsafe"

	"github.com/mattn/go-sqlite3"
)

// This file contains a wrapper sql.Driver over the SQLite driver which
// monitors the creation and closing of prepared statements, and counts the
// queries run. We can later use that information to check for statement
// leaks and statement reuse.

// TrackedDriverName is the name the tracking driver is registered under.
// Its DSN must carry the test name in the testName parameter.
const TrackedDriverName = "sqlite3_tracked"

const testNameParam = "testName"

// driverStats holds, per test name, the statements opened and closed on the
// driver and the number of queries run directly on a connection or through a
// prepared statement. Statements are stored as unsafe pointers, a reference
// would keep them from being garbage collected.
type driverStats struct {
	mu          sync.Mutex
	opened      map[string]map[uintptr]string
	closed      map[string]map[uintptr]bool
	connQueries map[string]int
	stmtQueries map[string]int
}

var stats = newDriverStats()

func newDriverStats() *driverStats {
	return &driverStats{
		opened:      map[string]map[uintptr]string{},
		closed:      map[string]map[uintptr]bool{},
		connQueries: map[string]int{},
		stmtQueries: map[string]int{},
	}
}

func (ds *driverStats) stmtOpened(testName string, s *trackedStmt, query string) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.opened[testName] == nil {
		ds.opened[testName] = map[uintptr]string{}
	}
	ds.opened[testName][uintptr(unsafe.Pointer(s))] = query
}

func (ds *driverStats) stmtClosed(testName string, s *trackedStmt) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.closed[testName] == nil {
		ds.closed[testName] = map[uintptr]bool{}
	}
	ds.closed[testName][uintptr(unsafe.Pointer(s))] = true
}

func (ds *driverStats) queryRun(testName string, onStmt bool) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if onStmt {
		ds.stmtQueries[testName]++
	} else {
		ds.connQueries[testName]++
	}
}

// StmtsOpened returns the number of statements prepared on the driver by a
// test.
func StmtsOpened(testName string) int {
	stats.mu.Lock()
	defer stats.mu.Unlock()
	return len(stats.opened[testName])
}

// StmtsLeaked returns the statements of a test prepared on the driver and
// never closed.
func StmtsLeaked(testName string) []string {
	stats.mu.Lock()
	defer stats.mu.Unlock()
	var leaked []string
	for ptr, query := range stats.opened[testName] {
		if !stats.closed[testName][ptr] {
			leaked = append(leaked, query)
		}
	}
	return leaked
}

// QueriesRun returns the number of queries a test ran directly on a
// connection and through prepared statements.
func QueriesRun(testName string) (onConn, onStmt int) {
	stats.mu.Lock()
	defer stats.mu.Unlock()
	return stats.connQueries[testName], stats.stmtQueries[testName]
}

// ResetDriverStats forgets everything recorded by the tracking driver.
func ResetDriverStats() {
	fresh := newDriverStats()
	stats.mu.Lock()
	defer stats.mu.Unlock()
	stats.opened, stats.closed = fresh.opened, fresh.closed
	stats.connQueries, stats.stmtQueries = fresh.connQueries, fresh.stmtQueries
}

type trackedDriver struct {
	base *sqlite3.SQLiteDriver
}

type trackedConn struct {
	testName string
	*sqlite3.SQLiteConn
}

type trackedStmt struct {
	testName string
	*sqlite3.SQLiteStmt
}

// Open expects the DSN to contain the test name in the testName parameter.
func (d *trackedDriver) Open(name string) (driver.Conn, error) {
	var testName string
	if _, params, ok := strings.Cut(name, "?"); ok {
		for _, p := range strings.Split(params, "&") {
			if v, ok := strings.CutPrefix(p, testNameParam+"="); ok {
				testName = v
			}
		}
	}
	if testName == "" {
		panic("internal error: testName is not found in the db DSN")
	}
	conn, err := d.base.Open(name)
	if err != nil {
		return nil, err
	}
	sqliteConn, ok := conn.(*sqlite3.SQLiteConn)
	if !ok {
		panic("internal error: base driver is not SQLite")
	}
	return &trackedConn{SQLiteConn: sqliteConn, testName: testName}, nil
}

func (c *trackedConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	s, err := c.SQLiteConn.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	sm, ok := s.(*sqlite3.SQLiteStmt)
	if !ok {
		panic("internal error: base driver is not SQLite")
	}
	ts := &trackedStmt{SQLiteStmt: sm, testName: c.testName}
	stats.stmtOpened(c.testName, ts, query)
	return ts, nil
}

func (c *trackedConn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

func (c *trackedConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	rows, err := c.SQLiteConn.QueryContext(ctx, query, args)
	if err == nil {
		stats.queryRun(c.testName, false)
	}
	return rows, err
}

func (c *trackedConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	res, err := c.SQLiteConn.ExecContext(ctx, query, args)
	if err == nil {
		stats.queryRun(c.testName, false)
	}
	return res, err
}

func (s *trackedStmt) Close() error {
	stats.stmtClosed(s.testName, s)
	return s.SQLiteStmt.Close()
}

func (s *trackedStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	rows, err := s.SQLiteStmt.QueryContext(ctx, args)
	if err == nil {
		stats.queryRun(s.testName, true)
	}
	return rows, err
}

func (s *trackedStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	res, err := s.SQLiteStmt.ExecContext(ctx, args)
	if err == nil {
		stats.queryRun(s.testName, true)
	}
	return res, err
}

func init() {
	sql.Register(TrackedDriverName, &trackedDriver{base: &sqlite3.SQLiteDriver{}})
}
