// Package executor implements DeepGraph's physical query execution: a set
// of pull-based iterator operators that walk a planner.Op tree and produce
// a result set, per spec.md §4.11.
//
// Grounded on the teacher's pkg/cypher/executor.go for its general
// row-as-map-of-bindings approach (it also represents an in-flight query's
// intermediate state as map[string]interface{} bindings), though the
// teacher's executor interprets the AST directly with no separate
// pull-based operator chain — DeepGraph's Iterator/Next interface is a
// domain expansion grounded on spec.md §4.11's explicit "operators are
// pull-based: each operator yields rows on demand" requirement.
package executor

import (
	"fmt"
	"sort"
	"time"

	"github.com/deepskilling/deepgraph/pkg/graph"
	"github.com/deepskilling/deepgraph/pkg/mvcc"
	"github.com/deepskilling/deepgraph/pkg/planner"
	"github.com/deepskilling/deepgraph/pkg/secidx"
)

// Row binds variable names to either a node, an edge, or a scalar
// projected value.
type Row map[string]any

// Iterator is the pull-based operator contract: Next returns the next row,
// or ok=false once exhausted.
type Iterator interface {
	Next() (Row, bool, error)
}

// Reader is the minimal read surface an executor needs from the engine —
// satisfied by pkg/engine's unexported reader adapter and kept narrow so executor never
// depends on transaction-coordination types directly.
type Reader interface {
	Snapshot() mvcc.Snapshot
	GetNode(ts mvcc.Timestamp, id graph.NodeID) (graph.Node, bool)
	GetEdge(ts mvcc.Timestamp, id graph.EdgeID) (graph.Edge, bool)
	NodesWithLabel(ts mvcc.Timestamp, label string) []graph.NodeID
	AllNodeIDs() []graph.NodeID
	Adjacent(ts mvcc.Timestamp, id graph.NodeID, dir graph.Direction) []graph.EdgeID
	Index(name string) (secidx.Descriptor, secidx.Index, bool)
}

// ResultSet is DeepGraph's Cypher query result shape (spec.md §4.11 /
// §6): column names in declaration order, one row per match, a row count,
// and the wall-clock execution time.
type ResultSet struct {
	Columns         []string
	Rows            []map[string]graph.Value
	RowCount        int
	ExecutionTimeMS int64
}

// Execute runs a fully-optimized logical plan against r and materializes a
// ResultSet. A Create root is rejected with an error: CREATE queries run
// through pkg/engine's write path (executeCreate), not through Execute.
func Execute(root planner.Op, r Reader, ts mvcc.Timestamp) (ResultSet, error) {
	start := time.Now()
	it, columns, err := build(root, r, ts)
	if err != nil {
		return ResultSet{}, err
	}
	var rows []map[string]graph.Value
	for {
		row, ok, err := it.Next()
		if err != nil {
			return ResultSet{}, err
		}
		if !ok {
			break
		}
		rows = append(rows, materialize(row, columns))
	}
	return ResultSet{
		Columns:         columns,
		Rows:            rows,
		RowCount:        len(rows),
		ExecutionTimeMS: time.Since(start).Milliseconds(),
	}, nil
}

func materialize(row Row, columns []string) map[string]graph.Value {
	out := make(map[string]graph.Value, len(columns))
	for _, col := range columns {
		out[col] = valueFor(row, col)
	}
	return out
}

func valueFor(row Row, col string) graph.Value {
	v, ok := row[col]
	if !ok {
		return graph.Null()
	}
	switch x := v.(type) {
	case graph.Value:
		return x
	case graph.Node:
		return graph.String(x.ID.String())
	case graph.Edge:
		return graph.String(x.ID.String())
	default:
		return graph.Null()
	}
}

// build walks the plan bottom-up producing an Iterator and, for the
// outermost Project (or the whole tree if there is none), the result
// column names.
func build(op planner.Op, r Reader, ts mvcc.Timestamp) (Iterator, []string, error) {
	switch x := op.(type) {
	case *planner.Create:
		_ = x
		return nil, nil, fmt.Errorf("executor: CREATE plans are executed by pkg/engine's write path, not Execute")
	case *planner.Project:
		input, _, err := build(x.Input, r, ts)
		if err != nil {
			return nil, nil, err
		}
		cols := make([]string, 0, len(x.Items))
		for _, it := range x.Items {
			cols = append(cols, it.Alias)
		}
		return &projectIter{input: input, items: x.Items}, cols, nil
	case *planner.OrderBy:
		input, cols, err := build(x.Input, r, ts)
		if err != nil {
			return nil, nil, err
		}
		materialized, err := drain(input)
		if err != nil {
			return nil, nil, err
		}
		sortRows(materialized, x.Keys)
		return &sliceIter{rows: materialized}, cols, nil
	case *planner.Limit:
		input, cols, err := build(x.Input, r, ts)
		if err != nil {
			return nil, nil, err
		}
		return &limitIter{input: input, remaining: x.N}, cols, nil
	case *planner.Filter:
		input, cols, err := build(x.Input, r, ts)
		if err != nil {
			return nil, nil, err
		}
		return &filterIter{upstream: input, expr: x.Expr, r: r, ts: ts}, cols, nil
	case *planner.IndexLookup:
		return buildIndexLookup(x, r, ts)
	case *planner.NodeScan:
		return &nodeScanIter{r: r, ts: ts, varName: x.Var, label: x.Label}, []string{x.Var}, nil
	case *planner.Expand:
		input, cols, err := build(x.Input, r, ts)
		if err != nil {
			return nil, nil, err
		}
		outCols := append(append([]string{}, cols...), x.ToVar)
		if x.RelVar != "" {
			outCols = append(outCols, x.RelVar)
		}
		return &expandIter{upstream: input, r: r, ts: ts, op: x}, outCols, nil
	case *planner.CrossJoin:
		left, lc, err := build(x.Left, r, ts)
		if err != nil {
			return nil, nil, err
		}
		leftRows, err := drain(left)
		if err != nil {
			return nil, nil, err
		}
		right, rc, err := build(x.Right, r, ts)
		if err != nil {
			return nil, nil, err
		}
		rightRows, err := drain(right)
		if err != nil {
			return nil, nil, err
		}
		return &crossJoinIter{left: leftRows, right: rightRows}, append(append([]string{}, lc...), rc...), nil
	default:
		return nil, nil, fmt.Errorf("executor: unsupported plan operator %T", op)
	}
}

func drain(it Iterator) ([]Row, error) {
	var out []Row
	for {
		row, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, row)
	}
}

func sortRows(rows []Row, keys []planner.OrderByKey) {
	// Rows that already went through a Project carry the key under its
	// projected column name (e.g. "n.name") instead of the bound variable.
	keyOf := func(row Row, k planner.OrderByKey) graph.Value {
		if _, bound := row[k.Var]; !bound {
			col := k.Var
			if k.Property != "" {
				col += "." + k.Property
			}
			if v, ok := row[col].(graph.Value); ok {
				return v
			}
		}
		return propertyOf(row, k.Var, k.Property)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, k := range keys {
			vi := keyOf(rows[i], k)
			vj := keyOf(rows[j], k)
			if vi.Equal(vj) {
				continue
			}
			if k.Desc {
				return vj.Less(vi)
			}
			return vi.Less(vj)
		}
		return false
	})
}

func propertyOf(row Row, varName, property string) graph.Value {
	v, ok := row[varName]
	if !ok {
		return graph.Null()
	}
	if property == "" {
		return graph.Null()
	}
	switch x := v.(type) {
	case graph.Node:
		if pv, ok := x.Props[property]; ok {
			return pv
		}
	case graph.Edge:
		if pv, ok := x.Props[property]; ok {
			return pv
		}
	}
	return graph.Null()
}
