package executor

import (
	"fmt"

	"github.com/deepskilling/deepgraph/pkg/cypher"
	"github.com/deepskilling/deepgraph/pkg/graph"
	"github.com/deepskilling/deepgraph/pkg/mvcc"
	"github.com/deepskilling/deepgraph/pkg/planner"
)

// nodeScanIter iterates every live node, optionally narrowed by label.
type nodeScanIter struct {
	r       Reader
	ts      mvcc.Timestamp
	varName string
	label   string

	ids []graph.NodeID
	pos int
	started bool
}

func (it *nodeScanIter) Next() (Row, bool, error) {
	if !it.started {
		if it.label != "" {
			it.ids = it.r.NodesWithLabel(it.ts, it.label)
		} else {
			it.ids = it.r.AllNodeIDs()
		}
		it.started = true
	}
	for it.pos < len(it.ids) {
		id := it.ids[it.pos]
		it.pos++
		if n, ok := it.r.GetNode(it.ts, id); ok {
			return Row{it.varName: n}, true, nil
		}
	}
	return nil, false, nil
}

// expandIter follows adjacency from each upstream row's FromVar binding.
type expandIter struct {
	input planner.Op
	r     Reader
	ts    mvcc.Timestamp
	op    *planner.Expand

	upstream Iterator
	curRow   Row
	edgeIDs  []graph.EdgeID
	edgePos  int
}

func (it *expandIter) ensureUpstream() error {
	if it.upstream != nil {
		return nil
	}
	up, _, err := build(it.input, it.r, it.ts)
	if err != nil {
		return err
	}
	it.upstream = up
	return nil
}

func (it *expandIter) Next() (Row, bool, error) {
	if err := it.ensureUpstream(); err != nil {
		return nil, false, err
	}
	for {
		if it.edgePos >= len(it.edgeIDs) {
			row, ok, err := it.upstream.Next()
			if err != nil {
				return nil, false, err
			}
			if !ok {
				return nil, false, nil
			}
			it.curRow = row
			n, ok := row[it.op.FromVar].(graph.Node)
			if !ok {
				continue
			}
			dir := directionFor(it.op.Direction)
			it.edgeIDs = it.r.Adjacent(it.ts, n.ID, dir)
			it.edgePos = 0
			continue
		}
		eid := it.edgeIDs[it.edgePos]
		it.edgePos++
		e, ok := it.r.GetEdge(it.ts, eid)
		if !ok {
			continue
		}
		if it.op.Type != "" && e.Type != it.op.Type {
			continue
		}
		fromNode, _ := it.curRow[it.op.FromVar].(graph.Node)
		otherID := e.Other(fromNode.ID)
		otherNode, ok := it.r.GetNode(it.ts, otherID)
		if !ok {
			continue
		}
		out := cloneRow(it.curRow)
		out[it.op.ToVar] = otherNode
		if it.op.RelVar != "" {
			out[it.op.RelVar] = e
		}
		return out, true, nil
	}
}

func directionFor(d cypher.RelDirection) graph.Direction {
	switch d {
	case cypher.RelOutgoing:
		return graph.DirOutgoing
	case cypher.RelIncoming:
		return graph.DirIncoming
	default:
		return graph.DirBoth
	}
}

func cloneRow(r Row) Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// filterIter evaluates a boolean expression tree against each upstream
// row, short-circuiting AND/OR and treating a comparison against a missing
// property as false rather than an error (spec.md §4.11).
type filterIter struct {
	input planner.Op
	expr  cypher.Expr
	r     Reader
	ts    mvcc.Timestamp

	upstream Iterator
}

func (it *filterIter) Next() (Row, bool, error) {
	if it.upstream == nil {
		up, _, err := build(it.input, it.r, it.ts)
		if err != nil {
			return nil, false, err
		}
		it.upstream = up
	}
	for {
		row, ok, err := it.upstream.Next()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}
		if it.expr == nil || evalExpr(it.expr, row) {
			return row, true, nil
		}
	}
}

func evalExpr(e cypher.Expr, row Row) bool {
	switch x := e.(type) {
	case *cypher.BinaryExpr:
		switch x.Op {
		case cypher.OpAnd:
			return evalExpr(x.Left, row) && evalExpr(x.Right, row)
		case cypher.OpOr:
			return evalExpr(x.Left, row) || evalExpr(x.Right, row)
		}
		return false
	case *cypher.CompareExpr:
		return evalCompare(x, row)
	default:
		return false
	}
}

func evalCompare(cmp *cypher.CompareExpr, row Row) bool {
	pv := propertyOf(row, cmp.Var, cmp.Property)
	if pv.IsNull() {
		// A missing property compares false against anything, including
		// itself — matching spec.md's "comparison with a missing property
		// yields false (not error)".
		return false
	}
	target := cmp.Value.Value
	switch cmp.Op {
	case cypher.CmpEq:
		return pv.Equal(target)
	case cypher.CmpNeq:
		return !pv.Equal(target)
	case cypher.CmpLt:
		return pv.Less(target)
	case cypher.CmpLte:
		return pv.Less(target) || pv.Equal(target)
	case cypher.CmpGt:
		return target.Less(pv)
	case cypher.CmpGte:
		return target.Less(pv) || pv.Equal(target)
	default:
		return false
	}
}

// projectIter maps each upstream row to the requested output columns.
type projectIter struct {
	input Iterator
	items []planner.ProjectItem
}

func (it *projectIter) Next() (Row, bool, error) {
	row, ok, err := it.input.Next()
	if err != nil || !ok {
		return nil, ok, err
	}
	out := make(Row, len(it.items))
	for _, item := range it.items {
		if item.Property == "" {
			out[item.Alias] = row[item.Var]
			continue
		}
		out[item.Alias] = propertyOf(row, item.Var, item.Property)
	}
	return out, true, nil
}

// limitIter caps the number of rows returned.
type limitIter struct {
	input     Iterator
	remaining int64
}

func (it *limitIter) Next() (Row, bool, error) {
	if it.remaining <= 0 {
		return nil, false, nil
	}
	row, ok, err := it.input.Next()
	if err != nil || !ok {
		return nil, ok, err
	}
	it.remaining--
	return row, true, nil
}

// sliceIter replays an already-materialized (and, for OrderBy, already
// sorted) row slice.
type sliceIter struct {
	rows []Row
	pos  int
}

func (it *sliceIter) Next() (Row, bool, error) {
	if it.pos >= len(it.rows) {
		return nil, false, nil
	}
	row := it.rows[it.pos]
	it.pos++
	return row, true, nil
}

// crossJoinIter yields the nested-loop cross product of two materialized
// row sets.
type crossJoinIter struct {
	left, right []Row
	li, ri      int
}

func (it *crossJoinIter) Next() (Row, bool, error) {
	if len(it.right) == 0 {
		return nil, false, nil
	}
	for it.li < len(it.left) {
		if it.ri >= len(it.right) {
			it.li++
			it.ri = 0
			continue
		}
		merged := cloneRow(it.left[it.li])
		for k, v := range it.right[it.ri] {
			merged[k] = v
		}
		it.ri++
		return merged, true, nil
	}
	return nil, false, nil
}

func buildIndexLookup(x *planner.IndexLookup, r Reader, ts mvcc.Timestamp) (Iterator, []string, error) {
	_, idx, ok := r.Index(x.IndexName)
	if !ok {
		return nil, nil, fmt.Errorf("executor: index %q not found", x.IndexName)
	}
	var ids []graph.NodeID
	var err error
	switch {
	case x.Eq != nil:
		ids = idx.Lookup(x.Eq.Value)
	default:
		ids, err = idx.RangeScan(litValue(x.Lo), litValue(x.Hi))
	}
	if err != nil {
		return nil, nil, err
	}
	return &idLookupIter{r: r, ts: ts, varName: x.Var, ids: ids}, []string{x.Var}, nil
}

func litValue(l *cypher.Literal) *graph.Value {
	if l == nil {
		return nil
	}
	return &l.Value
}

type idLookupIter struct {
	r       Reader
	ts      mvcc.Timestamp
	varName string
	ids     []graph.NodeID
	pos     int
}

func (it *idLookupIter) Next() (Row, bool, error) {
	for it.pos < len(it.ids) {
		id := it.ids[it.pos]
		it.pos++
		if n, ok := it.r.GetNode(it.ts, id); ok {
			return Row{it.varName: n}, true, nil
		}
	}
	return nil, false, nil
}
