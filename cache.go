// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlcrud

import (
	"context"
	"database/sql"
	"runtime"
	"sync"
	"sync/atomic"
)

// dbIDCount is a global variable used to generate unique IDs.
var dbIDCount int64

type dbID = int64

// maxCachedStmts bounds the number of prepared statements kept per DB.
// Statements prepared past the bound are closed after use.
const maxCachedStmts = 512

// statementCache caches the sql.Stmt objects prepared for generated SQL. The
// cache is indexed by the DB ID and the SQL text, so the same query built
// twice reuses the statement prepared the first time.
//
// A finalizer is set on DB objects to close all statements prepared on the
// DB, close the DB, and remove references to the DB from the cache.
//
// The mutex must be locked when accessing the dbStmtCache.
type statementCache struct {
	dbStmtCache map[dbID]map[string]*sql.Stmt
	mutex       sync.RWMutex
}

var once sync.Once
var singleStmtCache *statementCache

// newStatementCache returns the single instance of the statement cache.
func newStatementCache() *statementCache {
	once.Do(func() {
		singleStmtCache = &statementCache{
			dbStmtCache: map[dbID]map[string]*sql.Stmt{},
		}
	})
	return singleStmtCache
}

// newDB returns a new DB and allocates it in the cache. A finalizer is set on
// the DB which removes it from the cache, closes all sql.Stmt values prepared
// upon it and then closes the DB. The finalizer is run after the DB is
// garbage collected.
func (sc *statementCache) newDB(sqldb *sql.DB, opts options) *DB {
	cacheID := atomic.AddInt64(&dbIDCount, 1)
	sc.mutex.Lock()
	sc.dbStmtCache[cacheID] = map[string]*sql.Stmt{}
	sc.mutex.Unlock()
	db := &DB{sqldb: sqldb, cacheID: cacheID, opts: opts}
	runtime.SetFinalizer(db, sc.getDBFinalizer(db))
	return db
}

// prepareSubstrate is an object that queries can be prepared on, e.g. a sql.DB
// or sql.Conn. It is used in prepareStmt.
type prepareSubstrate interface {
	PrepareContext(context.Context, string) (*sql.Stmt, error)
}

// lookupStmt returns the statement prepared for query on db, if any.
func (sc *statementCache) lookupStmt(db *DB, query string) (*sql.Stmt, bool) {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()
	sqlstmt, ok := sc.dbStmtCache[db.cacheID][query]
	return sqlstmt, ok
}

// prepareStmt prepares query on a prepareSubstrate. It first checks in the
// cache to see if it has already been prepared on the DB. The returned cached
// flag is false when the cache is full, the caller then owns the statement
// and must close it.
// The prepareSubstrate must be associated with the same DB that prepareStmt is
// a method of.
func (sc *statementCache) prepareStmt(ctx context.Context, id dbID, ps prepareSubstrate, query string) (sqlstmt *sql.Stmt, cached bool, err error) {
	sc.mutex.RLock()
	sqlstmt, ok := sc.dbStmtCache[id][query]
	sc.mutex.RUnlock()
	if ok {
		return sqlstmt, true, nil
	}
	sqlstmt, err = ps.PrepareContext(ctx, query)
	if err != nil {
		return nil, false, err
	}
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	stmts, ok := sc.dbStmtCache[id]
	if !ok || len(stmts) >= maxCachedStmts {
		return sqlstmt, false, nil
	}
	// Check if a statement has been inserted by someone else since we last
	// checked.
	if sqlstmtAlt, ok := stmts[query]; ok {
		sqlstmt.Close()
		return sqlstmtAlt, true, nil
	}
	stmts[query] = sqlstmt
	return sqlstmt, true, nil
}

// getDBFinalizer returns a finalizer that closes and removes from the cache
// all sql.Stmt values prepared on the database, removes the database from then
// cache, then closes the sql.DB.
func (sc *statementCache) getDBFinalizer(db *DB) func(*DB) {
	return func(db *DB) {
		sc.mutex.Lock()
		defer sc.mutex.Unlock()
		for _, sqlstmt := range sc.dbStmtCache[db.cacheID] {
			sqlstmt.Close()
		}
		delete(sc.dbStmtCache, db.cacheID)
		db.sqldb.Close()
	}
}
