// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package assemble

import (
	"context"
	"database/sql"
	"reflect"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/canonical/sqlcrud/internal/sqlgen"
)

// RowReader reads the current row of a result set.
type RowReader interface {
	// Columns returns the names of the columns of the result set.
	Columns() ([]string, error)
	// Scan copies the columns of the current row into dest.
	Scan(dest ...any) error
}

// ExecDelegate runs one statement on a backend.
type ExecDelegate interface {
	// Bind runs the statement with args, leaving out the first skip args.
	Bind(ctx context.Context, args []any, skip int) error
	// HasNext advances to the next row and reports whether there is one.
	HasNext() (bool, error)
	// Next returns the reader of the current row.
	Next() (RowReader, error)
	// Close releases the resources of the delegate. It is safe to call
	// more than once.
	Close() error
}

// Execer is implemented by delegates that can run statements returning no
// rows.
type Execer interface {
	// Exec runs the statement with args and returns the number of rows
	// affected.
	Exec(ctx context.Context, args []any) (int64, error)
}

// Configurator hands out a delegate per statement.
type Configurator interface {
	ExecDelegate(ctx context.Context, query string) (ExecDelegate, error)
}

// Options control the execution of a query.
type Options struct {
	Logger *zap.Logger
	// Parallel runs the statements of joined tables concurrently.
	Parallel bool
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// relation holds the fully materialised rows of a joined table, indexed by
// the key the root rows are matched on.
type relation struct {
	table sqlgen.Table
	// children are the decoded rows of a direct join.
	children []reflect.Value
	// pivots are the decoded rows of a pivot join.
	pivots []pivotContainer
	// index maps a key to the positions in children or pivots of the rows
	// matching it, in arrival order.
	index map[any][]int
}

// pivotContainer pairs a child with the pivot keys of the row it was read
// from.
type pivotContainer struct {
	instance reflect.Value
	keys     [2]any
}

// Result is the lazily decoded sequence of root rows of a query. It is
// forward only and cannot be restarted.
type Result struct {
	logger    *zap.Logger
	root      sqlgen.Table
	delegate  ExecDelegate
	decoder   *decoder
	relations []*relation
	current   RowReader
	err       error
	closed    bool
}

// Open runs the statements of a select pass. The statements of joined tables
// are run first, in registration order unless opts.Parallel is set, and are
// fully materialised and released before the root statement is run. On
// success the caller must Close the Result.
func Open(ctx context.Context, cfg Configurator, state *sqlgen.State, opts Options) (*Result, error) {
	tables, stmts := state.Tables(), state.Statements()
	if len(tables) == 0 {
		return nil, executionErrorf("no tables in query")
	}
	if len(tables) != len(stmts) {
		return nil, executionErrorf("%d statements for %d tables", len(stmts), len(tables))
	}
	root := tables[0]
	if root.Info == nil {
		return nil, executionErrorf("no model information for %q", root.Name)
	}
	logger := opts.logger()

	relations := make([]*relation, len(tables)-1)
	load := func(ctx context.Context, i int) error {
		rel, err := loadRelation(ctx, cfg, tables[i], stmts[i], logger)
		if err != nil {
			return err
		}
		relations[i-1] = rel
		return nil
	}
	if opts.Parallel && len(relations) > 1 {
		eg, ectx := errgroup.WithContext(ctx)
		for i := 1; i < len(tables); i++ {
			eg.Go(func() error {
				return load(ectx, i)
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i := 1; i < len(tables); i++ {
			if err := load(ctx, i); err != nil {
				return nil, err
			}
		}
	}

	start := time.Now()
	delegate, err := bind(ctx, cfg, stmts[0])
	if err != nil {
		return nil, err
	}
	logger.Debug("root statement bound",
		zap.String("table", root.Name),
		zap.String("alias", root.Alias),
		zap.Duration("took", time.Since(start)))
	return &Result{
		logger:    logger,
		root:      root,
		delegate:  delegate,
		relations: relations,
	}, nil
}

// bind acquires a delegate for stmt and runs it. The delegate is released if
// binding fails.
func bind(ctx context.Context, cfg Configurator, stmt sqlgen.Statement) (ExecDelegate, error) {
	delegate, err := cfg.ExecDelegate(ctx, stmt.SQL)
	if err != nil {
		return nil, execution(err)
	}
	if err := delegate.Bind(ctx, stmt.Bindings, 0); err != nil {
		delegate.Close()
		return nil, execution(err)
	}
	return delegate, nil
}

// loadRelation reads every row of a joined table. The delegate is released
// before returning on every path.
func loadRelation(ctx context.Context, cfg Configurator, table sqlgen.Table, stmt sqlgen.Statement, logger *zap.Logger) (_ *relation, err error) {
	if table.Relation == nil {
		return nil, executionErrorf("no join data on %q", table.Name)
	}
	start := time.Now()
	delegate, err := bind(ctx, cfg, stmt)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := delegate.Close(); err == nil && cerr != nil {
			err = execution(cerr)
		}
	}()

	var keyTypes []reflect.Type
	if p := table.Relation.Pivot; p != nil {
		keyTypes = []reflect.Type{p.On.Type, p.Equals.Type}
	}
	rel := &relation{table: table, index: make(map[any][]int)}
	var dec *decoder
	for {
		ok, err := delegate.HasNext()
		if err != nil {
			return nil, execution(err)
		}
		if !ok {
			break
		}
		rr, err := delegate.Next()
		if err != nil {
			return nil, execution(err)
		}
		if dec == nil {
			cols, err := rr.Columns()
			if err != nil {
				return nil, execution(err)
			}
			if dec, err = newDecoder(table.Info, cols, keyTypes); err != nil {
				return nil, err
			}
		}
		child := reflect.New(table.Type).Elem()
		keys, err := dec.decode(rr, child)
		if err != nil {
			return nil, err
		}
		if keyTypes == nil {
			key, ok := keyOf(child.Field(table.Relation.Equals.Index))
			if !ok {
				continue
			}
			rel.index[key] = append(rel.index[key], len(rel.children))
			rel.children = append(rel.children, child)
			continue
		}
		key0, ok0 := keyOf(keys[0])
		key1, ok1 := keyOf(keys[1])
		if !ok0 || !ok1 {
			continue
		}
		rel.index[key0] = append(rel.index[key0], len(rel.pivots))
		rel.pivots = append(rel.pivots, pivotContainer{instance: child, keys: [2]any{key0, key1}})
	}
	logger.Debug("joined table loaded",
		zap.String("table", table.Name),
		zap.String("alias", table.Alias),
		zap.Int("rows", len(rel.children)+len(rel.pivots)),
		zap.Duration("took", time.Since(start)))
	return rel, nil
}

// Next advances to the next root row. It returns false when the rows are
// exhausted or an error occurred, see Err. The root delegate is released as
// soon as the rows are exhausted.
func (r *Result) Next() bool {
	if r.closed || r.err != nil {
		return false
	}
	ok, err := r.delegate.HasNext()
	if err == nil && ok {
		r.current, err = r.delegate.Next()
	}
	if err != nil {
		r.err = execution(err)
		r.Close()
		return false
	}
	if !ok {
		r.current = nil
		if err := r.Close(); err != nil {
			r.err = err
		}
		return false
	}
	return true
}

// Decode decodes the current root row into dest, an addressable value of the
// root model type, and assigns it the matching rows of every joined table.
func (r *Result) Decode(dest reflect.Value) error {
	if r.err != nil {
		return r.err
	}
	if r.current == nil {
		return executionErrorf("no current row")
	}
	if !dest.CanSet() || dest.Type() != r.root.Type {
		return decodeErrorf("cannot decode %q into %s", r.root.Type.Name(), dest.Type())
	}
	if r.decoder == nil {
		cols, err := r.current.Columns()
		if err != nil {
			return execution(err)
		}
		if r.decoder, err = newDecoder(r.root.Info, cols, nil); err != nil {
			return err
		}
	}
	dest.Set(reflect.Zero(dest.Type()))
	if _, err := r.decoder.decode(r.current, dest); err != nil {
		return err
	}
	for _, rel := range r.relations {
		rel.assign(dest)
	}
	return nil
}

// assign sets the relation field of root to its matching children. A root
// without children gets an empty, non-nil slice.
func (rel *relation) assign(root reflect.Value) {
	r := rel.table.Relation
	field := root.Field(r.To.Index)
	matched := reflect.MakeSlice(r.To.Type, 0, 0)
	key, ok := keyOf(root.Field(r.On.Index))
	if !ok {
		field.Set(matched)
		return
	}
	if r.Pivot == nil {
		for _, i := range rel.index[key] {
			matched = reflect.Append(matched, rel.children[i])
		}
		field.Set(matched)
		return
	}
	// Each container is one pivot row joined to one child row, so children
	// sharing a key are all kept.
	for _, i := range rel.index[key] {
		pc := rel.pivots[i]
		childKey, ok := keyOf(pc.instance.Field(r.Equals.Index))
		if !ok || childKey != pc.keys[1] {
			continue
		}
		matched = reflect.Append(matched, pc.instance)
	}
	field.Set(matched)
}

// Err returns the error that stopped the iteration, if any.
func (r *Result) Err() error {
	return r.err
}

// Close releases the root delegate. It can be called multiple times and
// after partial iteration.
func (r *Result) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.current = nil
	if err := r.delegate.Close(); err != nil {
		return execution(err)
	}
	return nil
}

// Count runs the statement of a count pass and returns the value of its
// count column.
func Count(ctx context.Context, cfg Configurator, state *sqlgen.State, opts Options) (_ int64, err error) {
	stmts := state.Statements()
	if len(stmts) != 1 {
		return 0, executionErrorf("count needs exactly one statement, got %d", len(stmts))
	}
	start := time.Now()
	delegate, err := bind(ctx, cfg, stmts[0])
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := delegate.Close(); err == nil && cerr != nil {
			err = execution(cerr)
		}
	}()
	ok, err := delegate.HasNext()
	if err != nil {
		return 0, execution(err)
	}
	if !ok {
		return 0, &ExecutionError{Err: errors.Wrap(sql.ErrNoRows, "count returned no rows")}
	}
	rr, err := delegate.Next()
	if err != nil {
		return 0, execution(err)
	}
	cols, err := rr.Columns()
	if err != nil {
		return 0, execution(err)
	}
	ptrs := make([]any, len(cols))
	var count sql.NullInt64
	found := false
	for i, col := range cols {
		if col == sqlgen.CountColumn {
			ptrs[i] = &count
			found = true
			continue
		}
		ptrs[i] = new(any)
	}
	if !found {
		return 0, decodeErrorf("count column %q missing from result", sqlgen.CountColumn)
	}
	if err := rr.Scan(ptrs...); err != nil {
		return 0, &DecodeError{Err: err}
	}
	if !count.Valid || count.Int64 < 0 {
		return 0, decodeErrorf("invalid count %v", count)
	}
	opts.logger().Debug("count statement run",
		zap.String("sql", stmts[0].SQL),
		zap.Int64("count", count.Int64),
		zap.Duration("took", time.Since(start)))
	return count.Int64, nil
}

// Exec runs the statements of an insert, update or delete pass and returns
// the total number of rows affected.
func Exec(ctx context.Context, cfg Configurator, state *sqlgen.State, opts Options) (int64, error) {
	var total int64
	for _, stmt := range state.Statements() {
		n, err := execOne(ctx, cfg, stmt)
		if err != nil {
			return total, err
		}
		opts.logger().Debug("statement executed",
			zap.String("command", state.Command().String()),
			zap.Int("bindings", len(stmt.Bindings)),
			zap.Int64("affected", n))
		total += n
	}
	return total, nil
}

func execOne(ctx context.Context, cfg Configurator, stmt sqlgen.Statement) (_ int64, err error) {
	delegate, err := cfg.ExecDelegate(ctx, stmt.SQL)
	if err != nil {
		return 0, execution(err)
	}
	defer func() {
		if cerr := delegate.Close(); err == nil && cerr != nil {
			err = execution(cerr)
		}
	}()
	execer, ok := delegate.(Execer)
	if !ok {
		return 0, executionErrorf("backend cannot run statements without rows")
	}
	n, err := execer.Exec(ctx, stmt.Bindings)
	return n, execution(err)
}
