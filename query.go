// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlcrud

import (
	"context"
	"reflect"

	"go.uber.org/zap"

	"github.com/canonical/sqlcrud/internal/assemble"
	"github.com/canonical/sqlcrud/internal/sqlgen"
	"github.com/canonical/sqlcrud/internal/typeinfo"
)

// Chain is a query over the table of the model T. F is the model the next
// Where, Order, Limit, Include or Exclude applies to: T itself, or the model
// of the last joined table.
//
// A Chain is immutable, every method returns a new Chain, so a chain may be
// extended in several ways and run any number of times.
type Chain[T, F any] struct {
	q    Querier
	node *sqlgen.Node
}

// Table starts a query over the table of the model T. The columns of T are
// the fields with a db tag.
func Table[T any](q Querier) Chain[T, T] {
	return Chain[T, T]{q: q, node: sqlgen.NewTable(reflect.TypeFor[T]())}
}

// Where filters the rows of the current table. Filters applied to the same
// table are combined with AND.
func (c Chain[T, F]) Where(e Expr) Chain[T, F] {
	return Chain[T, F]{q: c.q, node: c.node.WithWhere(e)}
}

func orderings[F any](desc bool, fields []func(*F) any) []sqlgen.Ordering {
	os := make([]sqlgen.Ordering, len(fields))
	for i, f := range fields {
		os[i] = sqlgen.Ordering{Type: reflect.TypeFor[F](), Ref: f, Desc: desc}
	}
	return os
}

// Order orders the rows of the current table by the fields, ascending. A
// field is named by a function returning a pointer to it:
//
//	func(p *Person) any { return &p.Name }
//
// Fields ordered earlier in the chain take precedence over later ones.
func (c Chain[T, F]) Order(fields ...func(*F) any) Chain[T, F] {
	return Chain[T, F]{q: c.q, node: c.node.WithOrder(orderings(false, fields)...)}
}

// OrderDesc orders the rows of the current table by the fields, descending.
func (c Chain[T, F]) OrderDesc(fields ...func(*F) any) Chain[T, F] {
	return Chain[T, F]{q: c.q, node: c.node.WithOrder(orderings(true, fields)...)}
}

// Limit returns at most max rows of the current table, after skipping the
// first skip rows. A max of zero means no maximum. The last limit applied to
// a table wins.
func (c Chain[T, F]) Limit(max, skip int) Chain[T, F] {
	return Chain[T, F]{q: c.q, node: c.node.WithLimit(max, skip)}
}

func refs[F any](fields []func(*F) any) []typeinfo.Ref {
	rs := make([]typeinfo.Ref, len(fields))
	for i, f := range fields {
		rs[i] = f
	}
	return rs
}

// Include restricts the columns read or written for the current table to
// the fields. Key columns needed to stitch joined tables are always read.
func (c Chain[T, F]) Include(fields ...func(*F) any) Chain[T, F] {
	return Chain[T, F]{q: c.q, node: c.node.WithColumns(sqlgen.ColumnFilter{Refs: refs(fields)})}
}

// Exclude removes the fields from the columns read or written for the
// current table.
func (c Chain[T, F]) Exclude(fields ...func(*F) any) Chain[T, F] {
	return Chain[T, F]{q: c.q, node: c.node.WithColumns(sqlgen.ColumnFilter{Refs: refs(fields), Exclude: true})}
}

// Join loads the rows of the model C related to each root row into the
// slice field named by to. A child row is related when its equals field
// holds the value of the root's on field. Every root row gets a non-nil
// slice, empty when nothing is related.
func Join[T, F, C any, K comparable](c Chain[T, F], to func(*T) *[]C, on func(*T) *K, equals func(*C) *K) Chain[T, C] {
	return Chain[T, C]{q: c.q, node: c.node.WithJoin(&sqlgen.JoinData{
		Type:   reflect.TypeFor[C](),
		To:     to,
		On:     on,
		Equals: equals,
	})}
}

// JoinPivot loads the rows of the model C related to each root row through
// the pivot table of the model P. A child row is related when a pivot row
// holds the value of the root's on field in its pivotOn field and the value
// of the child's equals field in its pivotEquals field.
func JoinPivot[T, F, C, P any, K1, K2 comparable](c Chain[T, F], to func(*T) *[]C, on func(*T) *K1, pivotOn func(*P) *K1, pivotEquals func(*P) *K2, equals func(*C) *K2) Chain[T, C] {
	return Chain[T, C]{q: c.q, node: c.node.WithJoin(&sqlgen.JoinData{
		Type:   reflect.TypeFor[C](),
		To:     to,
		On:     on,
		Equals: equals,
		Pivot: &sqlgen.PivotData{
			Type:   reflect.TypeFor[P](),
			On:     pivotOn,
			Equals: pivotEquals,
		},
	})}
}

// generate runs a generation pass of the chain for cmd.
func (c Chain[T, F]) generate(s *session, cmd sqlgen.Command, value any) (*sqlgen.State, error) {
	state := sqlgen.NewState(s.db.opts.dialect, s.db.opts.namer())
	if value != nil {
		state.SetValue(reflect.ValueOf(value))
	}
	if err := state.Generate(cmd, c.node); err != nil {
		return nil, err
	}
	if logger := s.logger(); logger.Core().Enabled(zap.DebugLevel) {
		tables := state.Tables()
		for _, stmt := range state.Statements() {
			t := tables[stmt.Table]
			logger.Debug("statement generated",
				zap.Stringer("command", cmd),
				zap.String("table", t.Name),
				zap.String("alias", t.Alias),
				zap.String("sql", stmt.SQL),
				zap.Int("bindings", len(stmt.Bindings)))
		}
	}
	return state, nil
}

// hasJoin reports whether a node of the chain joins a table.
func (c Chain[T, F]) hasJoin() bool {
	for n := c.node; n != nil; n = n.Parent {
		if n.Kind == sqlgen.KindJoin {
			return true
		}
	}
	return false
}

// hasLimit reports whether a node of the chain limits a table.
func (c Chain[T, F]) hasLimit() bool {
	for n := c.node; n != nil; n = n.Parent {
		if n.Kind == sqlgen.KindLimit {
			return true
		}
	}
	return false
}

// Select runs the query. The statements of joined tables are run and read
// in full first, the root rows are then decoded as they are read. The
// returned Rows must be closed.
func (c Chain[T, F]) Select(ctx context.Context) (*Rows[T], error) {
	if ctx == nil {
		ctx = context.Background()
	}
	s := c.q.session()
	if err := s.check(); err != nil {
		return nil, err
	}
	state, err := c.generate(s, sqlgen.CommandSelect, nil)
	if err != nil {
		return nil, err
	}
	result, err := assemble.Open(ctx, s, state, s.assembleOptions())
	if err != nil {
		return nil, err
	}
	return &Rows[T]{result: result}, nil
}

// All runs the query and returns every root row.
func (c Chain[T, F]) All(ctx context.Context) ([]T, error) {
	rows, err := c.Select(ctx)
	if err != nil {
		return nil, err
	}
	return rows.All()
}

// First runs the query and returns its first root row. It returns
// [ErrNoRows] if there is none.
func (c Chain[T, F]) First(ctx context.Context) (T, error) {
	var zero T
	q := c
	// A limit appended to a chain applies to its last table, and would
	// replace a limit set by the caller.
	if !c.hasJoin() && !c.hasLimit() {
		q = c.Limit(1, 0)
	}
	rows, err := q.Select(ctx)
	if err != nil {
		return zero, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return zero, err
		}
		return zero, ErrNoRows
	}
	v, err := rows.Value()
	if err != nil {
		return zero, err
	}
	return v, rows.Close()
}

// Count returns the number of root rows the query matches. A limit on the
// root table applies, orderings are ignored. Chains with joins or with
// Include or Exclude cannot be counted.
func (c Chain[T, F]) Count(ctx context.Context) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	s := c.q.session()
	if err := s.check(); err != nil {
		return 0, err
	}
	state, err := c.generate(s, sqlgen.CommandCount, nil)
	if err != nil {
		return 0, err
	}
	return assemble.Count(ctx, s, state, s.assembleOptions())
}

func (c Chain[T, F]) exec(ctx context.Context, cmd sqlgen.Command, value any) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	s := c.q.session()
	if err := s.check(); err != nil {
		return 0, err
	}
	state, err := c.generate(s, cmd, value)
	if err != nil {
		return 0, err
	}
	return assemble.Exec(ctx, s, state, s.assembleOptions())
}

// Insert inserts one row per value into the table of the chain, writing the
// included columns. Fields tagged omitempty holding their zero value are
// left to the database default. It returns the number of rows inserted.
func (c Chain[T, F]) Insert(ctx context.Context, values ...T) (int64, error) {
	var total int64
	for _, v := range values {
		n, err := c.exec(ctx, sqlgen.CommandInsert, v)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Update sets the included columns of the rows matched by the chain to the
// fields of value. It returns the number of rows updated.
func (c Chain[T, F]) Update(ctx context.Context, value T) (int64, error) {
	return c.exec(ctx, sqlgen.CommandUpdate, value)
}

// Delete deletes the rows matched by the chain. It returns the number of
// rows deleted.
func (c Chain[T, F]) Delete(ctx context.Context) (int64, error) {
	return c.exec(ctx, sqlgen.CommandDelete, nil)
}

// CreatePolicy controls how [CreateTable] treats an existing table.
type CreatePolicy = sqlgen.CreatePolicy

const (
	// CreateIfNotExists leaves an existing table untouched.
	CreateIfNotExists = sqlgen.CreateIfNotExists
	// DropTable drops an existing table before creating it.
	DropTable = sqlgen.DropTable
	// ReconcileTable replaces an existing table with one matching the
	// model. Its rows are lost.
	ReconcileTable = sqlgen.ReconcileTable
)

// CreateTable creates the table of the model T. The column named id is the
// primary key, pointer fields and sql.Scanner fields are nullable.
func CreateTable[T any](ctx context.Context, q Querier, policy CreatePolicy) error {
	s := q.session()
	stmts, err := sqlgen.CreateTable(s.db.opts.dialect, s.db.opts.namer(), reflect.TypeFor[T](), policy)
	if err != nil {
		return err
	}
	return s.run(ctx, stmts)
}

// CreateIndex creates an index over the fields of the table of the model T.
func CreateIndex[T any](ctx context.Context, q Querier, unique bool, fields ...func(*T) any) error {
	s := q.session()
	stmts, err := sqlgen.CreateIndex(s.db.opts.dialect, s.db.opts.namer(), reflect.TypeFor[T](), unique, refs(fields)...)
	if err != nil {
		return err
	}
	return s.run(ctx, stmts)
}

// run runs DDL statements without bindings.
func (s *session) run(ctx context.Context, stmts []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.check(); err != nil {
		return err
	}
	for _, stmt := range stmts {
		var err error
		if s.tx != nil {
			_, err = s.tx.sqltx.ExecContext(ctx, stmt)
		} else {
			_, err = s.db.sqldb.ExecContext(ctx, stmt)
		}
		if err != nil {
			return &ExecutionError{Err: err}
		}
		s.logger().Debug("schema statement run", zap.String("sql", stmt))
	}
	return nil
}
