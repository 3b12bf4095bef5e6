// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlgen

import (
	"reflect"

	"github.com/canonical/sqlcrud/internal/expr"
	"github.com/canonical/sqlcrud/internal/typeinfo"
)

// Kind identifies the variant of a chain Node.
type Kind int

const (
	// KindTable is the root table of a chain.
	KindTable Kind = iota
	// KindWhere filters the rows of the nearest table.
	KindWhere
	// KindOrder orders the rows of the nearest table.
	KindOrder
	// KindLimit limits the rows of the nearest table.
	KindLimit
	// KindColumns restricts the columns of the nearest table.
	KindColumns
	// KindJoin joins a child table to the root, directly or through a
	// pivot table.
	KindJoin
)

func (k Kind) String() string {
	switch k {
	case KindTable:
		return "table"
	case KindWhere:
		return "where"
	case KindOrder:
		return "order"
	case KindLimit:
		return "limit"
	case KindColumns:
		return "columns"
	case KindJoin:
		return "join"
	}
	return "unknown"
}

// ownsTable reports whether nodes of kind k register a table.
func (k Kind) ownsTable() bool {
	return k == KindTable || k == KindJoin
}

// Node is one step of a query chain. Only the fields matching Kind are set.
// Nodes are immutable once built, so chains may share prefixes.
type Node struct {
	Kind   Kind
	Parent *Node

	// Type is the model type of a KindTable node.
	Type reflect.Type
	// Where is the filter of a KindWhere node.
	Where expr.Expr
	// Orderings of a KindOrder node.
	Orderings []Ordering
	// Limit of a KindLimit node.
	Limit Limit
	// Columns of a KindColumns node.
	Columns ColumnFilter
	// Join of a KindJoin node.
	Join *JoinData
}

// Ordering orders rows by the column named by Ref.
type Ordering struct {
	Type reflect.Type
	Ref  typeinfo.Ref
	Desc bool
}

// Limit restricts the rows returned to at most Max, after skipping the first
// Skip rows. A Max of zero or less means no maximum.
type Limit struct {
	Max  int
	Skip int
}

// ColumnFilter restricts the columns read or written for a table. Include
// filters restrict the columns to the ones named, Exclude filters remove the
// ones named.
type ColumnFilter struct {
	Refs    []typeinfo.Ref
	Exclude bool
}

// JoinData describes a relation from the root table to a child table.
type JoinData struct {
	// Type is the child model type.
	Type reflect.Type
	// To names the slice field of the root that receives the children.
	To typeinfo.Ref
	// On names the key of the root.
	On typeinfo.Ref
	// Equals names the key of the child. For a direct join it must equal
	// the root key, for a pivot join it is matched by the pivot.
	Equals typeinfo.Ref
	// Pivot is set for many-to-many relations.
	Pivot *PivotData
}

// PivotData describes the intermediate table of a many-to-many relation.
type PivotData struct {
	Type reflect.Type
	// On names the pivot column holding the root key.
	On typeinfo.Ref
	// Equals names the pivot column holding the child key.
	Equals typeinfo.Ref
}

// NewTable returns the root node of a chain over the model type t.
func NewTable(t reflect.Type) *Node {
	return &Node{Kind: KindTable, Type: t}
}

// WithWhere returns a node filtering by e.
func (n *Node) WithWhere(e expr.Expr) *Node {
	return &Node{Kind: KindWhere, Parent: n, Where: e}
}

// WithOrder returns a node ordering by os.
func (n *Node) WithOrder(os ...Ordering) *Node {
	return &Node{Kind: KindOrder, Parent: n, Orderings: os}
}

// WithLimit returns a node limiting the rows.
func (n *Node) WithLimit(max, skip int) *Node {
	return &Node{Kind: KindLimit, Parent: n, Limit: Limit{Max: max, Skip: skip}}
}

// WithColumns returns a node filtering the columns.
func (n *Node) WithColumns(f ColumnFilter) *Node {
	return &Node{Kind: KindColumns, Parent: n, Columns: f}
}

// WithJoin returns a node joining a child table.
func (n *Node) WithJoin(j *JoinData) *Node {
	return &Node{Kind: KindJoin, Parent: n, Join: j}
}

// Root returns the root table node of the chain.
func (n *Node) Root() *Node {
	for n != nil && n.Parent != nil {
		n = n.Parent
	}
	return n
}
