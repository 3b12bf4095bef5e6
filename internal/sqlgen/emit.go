// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlgen

import (
	"reflect"
	"strings"

	"github.com/canonical/sqlcrud/internal/expr"
	"github.com/canonical/sqlcrud/internal/typeinfo"
)

// Generate runs a full generation pass of cmd over the chain ending in leaf.
// On success there is exactly one statement per registered table.
func (s *State) Generate(cmd Command, leaf *Node) error {
	if s.command != CommandUnknown {
		return errorf("generation state cannot be reused")
	}
	if cmd == CommandUnknown {
		return errorf("unknown command")
	}
	s.command = cmd
	if err := s.collect(leaf); err != nil {
		return err
	}
	switch cmd {
	case CommandInsert, CommandUpdate, CommandDelete:
		if len(s.tables) != 1 {
			return errorf("joins are not supported with %s", cmd)
		}
	}
	if err := s.emit(leaf); err != nil {
		return err
	}
	if len(s.statements) != len(s.tables) {
		return errorf("emitted %d statements for %d tables", len(s.statements), len(s.tables))
	}
	if cmd == CommandCount && len(s.statements) != 1 {
		return errorf("count requires exactly one statement, got %d", len(s.statements))
	}
	return nil
}

// SetValue sets the model written by insert and update passes.
func (s *State) SetValue(v reflect.Value) {
	s.value = v
}

// collect registers the tables of the chain, root first.
func (s *State) collect(n *Node) error {
	if n == nil {
		return errorf("chain has no root table")
	}
	if n.Kind != KindTable {
		if err := s.collect(n.Parent); err != nil {
			return err
		}
	}
	switch n.Kind {
	case KindTable:
		if n.Parent != nil {
			return errorf("table node must be the root of the chain")
		}
		_, err := s.AddTable(n, n.Type, nil)
		return err
	case KindJoin:
		if n.Join == nil {
			return errorf("join node without join data")
		}
		_, err := s.AddTable(n, n.Join.Type, n.Join)
		return err
	}
	return nil
}

// emit walks from the leaf to the root. Modifiers accumulate into the
// pending state, which the nearest table node consumes before its parent
// emits.
func (s *State) emit(n *Node) error {
	switch n.Kind {
	case KindWhere:
		if n.Where == nil {
			return errorf("where node without expression")
		}
		s.pending.Where = expr.Conjoin(n.Where, s.pending.Where)
	case KindOrder:
		// Orderings closer to the root come first.
		s.pending.Orderings = append(append([]Ordering(nil), n.Orderings...), s.pending.Orderings...)
	case KindLimit:
		if n.Limit.Skip < 0 {
			return errorf("cannot skip %d rows", n.Limit.Skip)
		}
		// The last limit in the chain wins.
		if s.pending.Limit == nil {
			l := n.Limit
			s.pending.Limit = &l
		}
	case KindColumns:
		s.pending.Filters = append(s.pending.Filters, n.Columns)
	}
	if !n.Kind.ownsTable() {
		return s.emit(n.Parent)
	}

	p := s.Consume()
	if n.Parent != nil {
		if err := s.emit(n.Parent); err != nil {
			return err
		}
	}
	idx, ok := s.nodeTable[n]
	if !ok {
		return errorf("%s node was not collected", n.Kind)
	}
	view, err := s.View(idx)
	if err != nil {
		return err
	}
	var stmt Statement
	switch {
	case idx == 0:
		stmt, err = s.emitRoot(view, p)
	case view.Current.Relation.Pivot != nil:
		stmt, err = s.emitPivot(view, p)
	default:
		stmt, err = s.emitJoin(view, p)
	}
	if err != nil {
		return wrap(err)
	}
	stmt.Table = idx
	s.statements = append(s.statements, stmt)
	return nil
}

func (s *State) emitRoot(view TableView, p Pending) (Statement, error) {
	switch s.command {
	case CommandInsert:
		return s.emitInsert(view.Current, p)
	case CommandUpdate:
		return s.emitUpdate(view.Current, p)
	case CommandDelete:
		return s.emitDelete(view.Current, p)
	}

	root := view.Current
	// Keep the filter for the sub-queries of joined tables.
	s.rootFilter = p.Where

	ctx := s.newContext(true, scope{table: root})
	var b strings.Builder
	var err error
	if s.command == CommandCount {
		if len(p.Filters) > 0 {
			return Statement{}, errorf("column filters are not supported with count")
		}
		// Orderings do not change the count and are dropped.
		limit := s.limitClause(p.Limit)
		b.WriteString("SELECT COUNT(*) AS " + s.quote(CountColumn) + " FROM ")
		if limit != "" {
			b.WriteString("(SELECT 1 FROM ")
		}
		s.writeFrom(&b, root.Name, root.Alias)
		if err := s.writeWhere(&b, ctx, p.Where); err != nil {
			return Statement{}, err
		}
		if limit != "" {
			b.WriteString(limit + ") AS " + root.Alias + "_count")
		}
		return Statement{SQL: b.String(), Bindings: ctx.bindings}, nil
	}

	var required []string
	for _, other := range view.Others {
		required = append(required, other.Relation.On.Column)
	}
	cols, err := s.columns(root, p.Filters, required)
	if err != nil {
		return Statement{}, err
	}
	b.WriteString("SELECT ")
	s.writeColumns(&b, root.Alias, cols)
	b.WriteString(" FROM ")
	s.writeFrom(&b, root.Name, root.Alias)
	if err = s.writeWhere(&b, ctx, p.Where); err != nil {
		return Statement{}, err
	}
	if err = s.writeTail(&b, ctx, p); err != nil {
		return Statement{}, err
	}
	return Statement{SQL: b.String(), Bindings: ctx.bindings}, nil
}

// emitJoin emits the statement reading the children of every root row:
//
//	SELECT tk.* FROM child AS tk WHERE tk.fk IN (SELECT t0.key FROM root AS t0 ...)
func (s *State) emitJoin(view TableView, p Pending) (Statement, error) {
	child, root := view.Current, view.First
	rel := child.Relation
	cols, err := s.columns(child, p.Filters, []string{rel.Equals.Column})
	if err != nil {
		return Statement{}, err
	}
	ctx := s.newContext(true, scope{table: child})

	var b strings.Builder
	b.WriteString("SELECT ")
	s.writeColumns(&b, child.Alias, cols)
	b.WriteString(" FROM ")
	s.writeFrom(&b, child.Name, child.Alias)
	b.WriteString(" WHERE " + s.qualified(child.Alias, rel.Equals.Column) + " IN ")
	if err := s.writeRootKeys(&b, ctx, root, rel.On.Column); err != nil {
		return Statement{}, err
	}
	if err := s.writeAnd(&b, ctx, p.Where); err != nil {
		return Statement{}, err
	}
	if err := s.writeTail(&b, ctx, p); err != nil {
		return Statement{}, err
	}
	return Statement{SQL: b.String(), Bindings: ctx.bindings}, nil
}

// emitPivot emits the statement reading the children of every root row
// through the pivot table, together with both pivot keys:
//
//	SELECT tk.*, tk_pivot.p0 AS _pivot_0, tk_pivot.p1 AS _pivot_1
//	FROM pivot AS tk_pivot JOIN child AS tk ON tk.key = tk_pivot.p1
//	WHERE tk_pivot.p0 IN (SELECT t0.key FROM root AS t0 ...)
func (s *State) emitPivot(view TableView, p Pending) (Statement, error) {
	child, root := view.Current, view.First
	rel := child.Relation
	pivotAlias := child.Alias + "_pivot"
	cols, err := s.columns(child, p.Filters, []string{rel.Equals.Column})
	if err != nil {
		return Statement{}, err
	}
	ctx := s.newContext(true, scope{table: child}, scope{
		table: Table{Type: rel.Pivot.Info.Type, Alias: pivotAlias, Info: rel.Pivot.Info, Name: rel.Pivot.Name},
		pivot: true,
	})

	var b strings.Builder
	b.WriteString("SELECT ")
	s.writeColumns(&b, child.Alias, cols)
	b.WriteString(", " + s.qualified(pivotAlias, rel.Pivot.On.Column) + " AS " + s.quote(PivotKey0))
	b.WriteString(", " + s.qualified(pivotAlias, rel.Pivot.Equals.Column) + " AS " + s.quote(PivotKey1))
	b.WriteString(" FROM ")
	s.writeFrom(&b, rel.Pivot.Name, pivotAlias)
	b.WriteString(" JOIN ")
	s.writeFrom(&b, child.Name, child.Alias)
	b.WriteString(" ON " + s.qualified(child.Alias, rel.Equals.Column) + " = " + s.qualified(pivotAlias, rel.Pivot.Equals.Column))
	b.WriteString(" WHERE " + s.qualified(pivotAlias, rel.Pivot.On.Column) + " IN ")
	if err := s.writeRootKeys(&b, ctx, root, rel.On.Column); err != nil {
		return Statement{}, err
	}
	if err := s.writeAnd(&b, ctx, p.Where); err != nil {
		return Statement{}, err
	}
	if err := s.writeTail(&b, ctx, p); err != nil {
		return Statement{}, err
	}
	return Statement{SQL: b.String(), Bindings: ctx.bindings}, nil
}

// writeRootKeys writes the sub-query selecting the keys of the root rows. The
// root limit is not carried over as not every backend accepts LIMIT in an IN
// sub-query. Only root columns can be referenced inside the sub-query.
func (s *State) writeRootKeys(b *strings.Builder, ctx *context, root Table, key string) error {
	outer := ctx.scopes
	ctx.scopes = []scope{{table: root}}
	defer func() { ctx.scopes = outer }()

	b.WriteString("(SELECT " + s.qualified(root.Alias, key) + " FROM ")
	s.writeFrom(b, root.Name, root.Alias)
	if err := s.writeWhere(b, ctx, s.rootFilter); err != nil {
		return err
	}
	b.WriteString(")")
	return nil
}

// columns returns the columns of t selected by filters, with the required
// columns added back, in field declaration order.
func (s *State) columns(t Table, filters []ColumnFilter, required []string) ([]string, error) {
	var include map[string]bool
	exclude := map[string]bool{}
	for _, f := range filters {
		for _, ref := range f.Refs {
			col, err := t.Info.ResolveColumn(ref)
			if err != nil {
				return nil, err
			}
			if f.Exclude {
				exclude[col] = true
				continue
			}
			if include == nil {
				include = map[string]bool{}
			}
			include[col] = true
		}
	}
	for _, col := range required {
		if include != nil {
			include[col] = true
		}
		delete(exclude, col)
	}

	var cols []string
	for _, col := range t.Info.Columns() {
		if include != nil && !include[col] {
			continue
		}
		if exclude[col] {
			continue
		}
		cols = append(cols, col)
	}
	if len(cols) == 0 {
		return nil, errorf("no columns selected for %q", t.Info.Type.Name())
	}
	return cols, nil
}

func (s *State) quote(name string) string {
	return s.delegate.QuoteIdentifier(name)
}

func (s *State) qualified(alias, col string) string {
	return alias + "." + s.quote(col)
}

func (s *State) writeFrom(b *strings.Builder, name, alias string) {
	b.WriteString(s.quote(name) + " AS " + alias)
}

func (s *State) writeColumns(b *strings.Builder, alias string, cols []string) {
	for i, col := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(s.qualified(alias, col))
	}
}

func (s *State) writeWhere(b *strings.Builder, ctx *context, e expr.Expr) error {
	if e == nil {
		return nil
	}
	sql, err := expr.Render(e, ctx)
	if err != nil {
		return err
	}
	b.WriteString(" WHERE " + sql)
	return nil
}

func (s *State) writeAnd(b *strings.Builder, ctx *context, e expr.Expr) error {
	if e == nil {
		return nil
	}
	sql, err := expr.Render(e, ctx)
	if err != nil {
		return err
	}
	b.WriteString(" AND " + sql)
	return nil
}

// writeTail writes the ORDER BY and LIMIT clauses.
func (s *State) writeTail(b *strings.Builder, ctx *context, p Pending) error {
	for i, o := range p.Orderings {
		if i == 0 {
			b.WriteString(" ORDER BY ")
		} else {
			b.WriteString(", ")
		}
		col, err := ctx.Column(o.Type, o.Ref)
		if err != nil {
			return err
		}
		b.WriteString(col)
		if o.Desc {
			b.WriteString(" DESC")
		}
	}
	b.WriteString(s.limitClause(p.Limit))
	return nil
}

func (s *State) limitClause(l *Limit) string {
	if l == nil {
		return ""
	}
	if ld, ok := s.delegate.(LimitDelegate); ok {
		return ld.LimitClause(l.Max, l.Skip)
	}
	return LimitClause(l.Max, l.Skip)
}

// scope is a table whose columns an expression may reference.
type scope struct {
	table Table
	// pivot tables are not registered, so they are not subject to the
	// alias lookup.
	pivot bool
}

// context renders the expressions of one statement. Bindings are numbered
// per statement.
type context struct {
	state    *State
	qualify  bool
	scopes   []scope
	bindings []any
}

var _ expr.Context = (*context)(nil)

func (s *State) newContext(qualify bool, scopes ...scope) *context {
	return &context{state: s, qualify: qualify, scopes: scopes}
}

func (c *context) Column(t reflect.Type, ref typeinfo.Ref) (string, error) {
	for _, sc := range c.scopes {
		if sc.table.Type != t {
			continue
		}
		alias := sc.table.Alias
		if !sc.pivot {
			var err error
			if alias, err = c.state.Alias(t); err != nil {
				return "", err
			}
		}
		col, err := sc.table.Info.ResolveColumn(ref)
		if err != nil {
			return "", err
		}
		if !c.qualify {
			return c.state.quote(col), nil
		}
		return c.state.qualified(alias, col), nil
	}
	return "", errorf("type %q cannot be referenced in this %s statement", typeName(t), c.state.command)
}

func (c *context) Bind(v any) string {
	c.bindings = append(c.bindings, v)
	return c.state.delegate.Placeholder(len(c.bindings))
}
