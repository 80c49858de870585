// Package planner turns a parsed Cypher AST into a logical operator tree
// and rewrites it to a fixed point with DeepGraph's five optimizer passes:
// predicate pushdown, index selection, label hoisting, limit pushdown, and
// dead-binding elimination (spec.md §4.10).
//
// The teacher executes Cypher directly against MemoryEngine with no
// separate logical-plan or optimizer stage at all (pkg/cypher/executor.go
// walks the AST and calls into storage inline), so this package has no
// direct teacher analogue — it is a domain expansion built in the
// teacher's general "small struct per operation, explicit Go types over
// reflection" style, as seen in pkg/cypher/clauses.go's clause structs.
package planner

import (
	"github.com/deepskilling/deepgraph/pkg/cypher"
	"github.com/deepskilling/deepgraph/pkg/secidx"
)

// Op is the logical-plan tagged union.
type Op interface {
	planOp()
	Bindings() []string
}

type baseOp struct{}

func (baseOp) planOp() {}

// NodeScan iterates every node, or every node carrying Label if non-empty.
type NodeScan struct {
	baseOp
	Var   string
	Label string // empty means an unfiltered scan
}

func (s *NodeScan) Bindings() []string { return []string{s.Var} }

// IndexLookup replaces a NodeScan+Filter pair when an exact-match hash
// index (or a range-capable ordered index) covers the predicate.
type IndexLookup struct {
	baseOp
	Var       string
	Label     string
	IndexName string
	Kind      secidx.Kind
	Eq        *cypher.Literal // set for hash-index point lookups
	Lo, Hi    *cypher.Literal // set (either or both) for ordered-index range scans
	Property  string
}

func (l *IndexLookup) Bindings() []string { return []string{l.Var} }

// Expand follows adjacency from an already-bound node variable.
type Expand struct {
	baseOp
	Input     Op
	FromVar   string
	ToVar     string
	RelVar    string
	Direction cypher.RelDirection
	Type      string // empty means any relationship type
}

func (e *Expand) Bindings() []string {
	b := append(append([]string{}, e.Input.Bindings()...), e.ToVar)
	if e.RelVar != "" {
		b = append(b, e.RelVar)
	}
	return b
}

type Filter struct {
	baseOp
	Input Op
	Expr  cypher.Expr
}

func (f *Filter) Bindings() []string { return f.Input.Bindings() }

type ProjectItem struct {
	Var      string
	Property string
	Alias    string // output column name
}

type Project struct {
	baseOp
	Input Op
	Items []ProjectItem
}

func (p *Project) Bindings() []string { return p.Input.Bindings() }

type OrderByKey struct {
	Var      string
	Property string
	Desc     bool
}

type OrderBy struct {
	baseOp
	Input Op
	Keys  []OrderByKey
}

func (o *OrderBy) Bindings() []string { return o.Input.Bindings() }

type Limit struct {
	baseOp
	Input Op
	N     int64
}

func (l *Limit) Bindings() []string { return l.Input.Bindings() }

// CrossJoin combines the bindings of two independently-scanned patterns,
// used when a MATCH clause lists more than one comma-separated pattern.
// DeepGraph's declared grammar doesn't specify cross-pattern correlation
// beyond bare enumeration, so CrossJoin performs the simplest correct
// thing: a nested-loop cross product over both inputs' rows.
type CrossJoin struct {
	baseOp
	Left, Right Op
}

func (j *CrossJoin) Bindings() []string {
	return append(append([]string{}, j.Left.Bindings()...), j.Right.Bindings()...)
}

// Create represents a CREATE pattern to materialize; it has no input and
// its "bindings" are the pattern variables it introduces.
type Create struct {
	baseOp
	Pattern *cypher.Pattern
}

func (c *Create) Bindings() []string {
	var out []string
	for _, n := range c.Pattern.Nodes {
		if n.Var != "" {
			out = append(out, n.Var)
		}
	}
	for _, r := range c.Pattern.Rels {
		if r.Var != "" {
			out = append(out, r.Var)
		}
	}
	return out
}
