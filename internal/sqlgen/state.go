// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlgen

import (
	"reflect"
	"strconv"

	"github.com/canonical/sqlcrud/internal/expr"
	"github.com/canonical/sqlcrud/internal/typeinfo"
)

// Command is the kind of statement a generation pass produces.
type Command int

const (
	CommandUnknown Command = iota
	CommandSelect
	CommandCount
	CommandInsert
	CommandUpdate
	CommandDelete
)

func (c Command) String() string {
	switch c {
	case CommandSelect:
		return "select"
	case CommandCount:
		return "count"
	case CommandInsert:
		return "insert"
	case CommandUpdate:
		return "update"
	case CommandDelete:
		return "delete"
	}
	return "unknown"
}

// CountColumn is the column holding the result of a count statement.
const CountColumn = "count"

// Pivot key columns are selected under these names by pivot join statements.
const (
	PivotKey0 = "_pivot_0"
	PivotKey1 = "_pivot_1"
)

// Table is a table taking part in a query.
type Table struct {
	Type  reflect.Type
	Alias string
	Info  *typeinfo.Info
	// Name is the table name used in SQL.
	Name string
	// Relation is set for joined tables.
	Relation *Relation
}

// Relation is a JoinData with its references resolved.
type Relation struct {
	// To is the slice field of the root receiving the children.
	To typeinfo.Field
	// On is the key field of the root.
	On typeinfo.Field
	// Equals is the key field of the child.
	Equals typeinfo.Field
	// Pivot is set for many-to-many relations.
	Pivot *PivotRelation
}

// PivotRelation is a PivotData with its references resolved.
type PivotRelation struct {
	Info   *typeinfo.Info
	Name   string
	On     typeinfo.Field
	Equals typeinfo.Field
}

// TableView is the view of the table arena from one table.
type TableView struct {
	// First is the root table of the query.
	First Table
	// Current is the table being emitted.
	Current Table
	// Others holds every table but First and Current, in registration
	// order.
	Others []Table
}

// Pending is the modifier state accumulated for one table during emission.
type Pending struct {
	Orderings []Ordering
	Limit     *Limit
	Where     expr.Expr
	Filters   []ColumnFilter
}

// Statement is the SQL emitted for one table.
type Statement struct {
	// Table is the index of the table in the arena.
	Table    int
	SQL      string
	Bindings []any
}

// TableNamer maps a model type to its table name.
type TableNamer func(info *typeinfo.Info) string

// DefaultTableName is the TableNamer returning the table name of the type.
func DefaultTableName(info *typeinfo.Info) string {
	return info.Table
}

// State is the generation context of a single pass.
type State struct {
	delegate Delegate
	namer    TableNamer
	command  Command

	tables    []Table
	nodeTable map[*Node]int

	pending    Pending
	rootFilter expr.Expr
	statements []Statement

	// value is the model written by insert and update commands.
	value reflect.Value
}

// NewState returns a State generating SQL with d. If namer is nil the table
// name of each type is used.
func NewState(d Delegate, namer TableNamer) *State {
	if namer == nil {
		namer = DefaultTableName
	}
	return &State{
		delegate:  d,
		namer:     namer,
		nodeTable: make(map[*Node]int),
	}
}

// Command returns the command of the pass.
func (s *State) Command() Command {
	return s.command
}

// Tables returns the table arena in registration order.
func (s *State) Tables() []Table {
	return s.tables
}

// Statements returns the emitted statements in registration order.
func (s *State) Statements() []Statement {
	return s.statements
}

// AddTable registers the table of node n with model type t and mints its
// alias. The join must be nil for the first table and set for every other.
func (s *State) AddTable(n *Node, t reflect.Type, join *JoinData) (int, error) {
	info, err := typeinfo.GetTypeInfo(t)
	if err != nil {
		return 0, wrap(err)
	}
	table := Table{
		Type:  info.Type,
		Alias: "t" + strconv.Itoa(len(s.tables)),
		Info:  info,
		Name:  s.namer(info),
	}
	switch {
	case len(s.tables) == 0 && join != nil:
		return 0, errorf("first table of a query cannot be a join")
	case len(s.tables) > 0 && join == nil:
		return 0, errorf("table %q registered twice as root", info.Type.Name())
	case join != nil:
		rel, err := s.resolveJoin(s.tables[0].Info, info, join)
		if err != nil {
			return 0, err
		}
		table.Relation = rel
	}
	s.tables = append(s.tables, table)
	idx := len(s.tables) - 1
	if n != nil {
		s.nodeTable[n] = idx
	}
	return idx, nil
}

func (s *State) resolveJoin(root, child *typeinfo.Info, join *JoinData) (*Relation, error) {
	to, err := root.Resolve(join.To)
	if err != nil {
		return nil, wrap(err)
	}
	if to.Type != reflect.SliceOf(child.Type) {
		return nil, errorf("join target %q of %q must be a []%s, got %s", to.Name, root.Type.Name(), child.Type.Name(), to.Type)
	}
	rel := &Relation{To: to}
	if rel.On, err = resolveColumnField(root, join.On); err != nil {
		return nil, err
	}
	if rel.Equals, err = resolveColumnField(child, join.Equals); err != nil {
		return nil, err
	}

	if err := checkKey(root, rel.On); err != nil {
		return nil, err
	}
	if err := checkKey(child, rel.Equals); err != nil {
		return nil, err
	}

	if join.Pivot == nil {
		if rel.On.Type != rel.Equals.Type {
			return nil, errorf("join keys %q of %q and %q of %q have different types", rel.On.Name, root.Type.Name(), rel.Equals.Name, child.Type.Name())
		}
		return rel, nil
	}

	pinfo, err := typeinfo.GetTypeInfo(join.Pivot.Type)
	if err != nil {
		return nil, wrap(err)
	}
	prel := &PivotRelation{Info: pinfo, Name: s.namer(pinfo)}
	if prel.On, err = resolveColumnField(pinfo, join.Pivot.On); err != nil {
		return nil, err
	}
	if prel.Equals, err = resolveColumnField(pinfo, join.Pivot.Equals); err != nil {
		return nil, err
	}
	if rel.On.Type != prel.On.Type {
		return nil, errorf("pivot key %q of %q does not match the type of %q of %q", prel.On.Name, pinfo.Type.Name(), rel.On.Name, root.Type.Name())
	}
	if rel.Equals.Type != prel.Equals.Type {
		return nil, errorf("pivot key %q of %q does not match the type of %q of %q", prel.Equals.Name, pinfo.Type.Name(), rel.Equals.Name, child.Type.Name())
	}
	rel.Pivot = prel
	return rel, nil
}

// checkKey rejects join keys whose decoded values cannot be used as map
// keys. Interface fields hold whatever the driver scans, e.g. a []byte.
func checkKey(info *typeinfo.Info, f typeinfo.Field) error {
	if f.Type.Kind() == reflect.Interface || !f.Type.Comparable() {
		return errorf("join key %q of %q has type %s, which is not a comparable concrete type", f.Name, info.Type.Name(), f.Type)
	}
	return nil
}

func resolveColumnField(info *typeinfo.Info, ref typeinfo.Ref) (typeinfo.Field, error) {
	f, err := info.Resolve(ref)
	if err != nil {
		return typeinfo.Field{}, wrap(err)
	}
	if !f.IsColumn() {
		return typeinfo.Field{}, errorf("field %q of %q has no db tag", f.Name, info.Type.Name())
	}
	return f, nil
}

// Alias returns the alias of the table of type t. It fails if no table, or
// more than one table, of that type is registered.
func (s *State) Alias(t reflect.Type) (string, error) {
	alias := ""
	for _, table := range s.tables {
		if table.Type != t {
			continue
		}
		if alias != "" {
			return "", errorf("type %q is registered more than once, cannot resolve its alias", t.Name())
		}
		alias = table.Alias
	}
	if alias == "" {
		return "", errorf("type %q is not part of the query", typeName(t))
	}
	return alias, nil
}

// KeyName returns the column named by ref on the registered table of type t.
func (s *State) KeyName(t reflect.Type, ref typeinfo.Ref) (string, error) {
	for _, table := range s.tables {
		if table.Type == t {
			col, err := table.Info.ResolveColumn(ref)
			return col, wrap(err)
		}
	}
	return "", errorf("type %q is not part of the query", typeName(t))
}

// View returns the view of the arena from the table at index i.
func (s *State) View(i int) (TableView, error) {
	if i < 0 || i >= len(s.tables) {
		return TableView{}, errorf("no table at index %d", i)
	}
	v := TableView{First: s.tables[0], Current: s.tables[i]}
	for j, t := range s.tables[1:] {
		if j+1 != i {
			v.Others = append(v.Others, t)
		}
	}
	return v, nil
}

// Consume returns the pending modifier state and clears it.
func (s *State) Consume() Pending {
	p := s.pending
	s.pending = Pending{}
	return p
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.Name()
}
