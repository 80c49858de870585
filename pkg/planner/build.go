package planner

import (
	"fmt"

	"github.com/deepskilling/deepgraph/pkg/cypher"
)

// Build turns a parsed Query into an unoptimized logical plan. Callers
// should pass the result through Optimize before handing it to
// pkg/executor.
func Build(q *cypher.Query) (Op, error) {
	var root Op
	switch {
	case q.Match != nil:
		r, err := buildMatch(q.Match)
		if err != nil {
			return nil, err
		}
		root = r
	case q.Create != nil:
		root = &Create{Pattern: q.Create.Pattern}
	default:
		return nil, fmt.Errorf("planner: query has neither MATCH nor CREATE")
	}

	if q.Where != nil {
		root = &Filter{Input: root, Expr: q.Where.Expr}
	}

	if q.Return != nil {
		items := make([]ProjectItem, 0, len(q.Return.Items))
		for _, it := range q.Return.Items {
			items = append(items, ProjectItem{Var: it.Var, Property: it.Property, Alias: projectAlias(it)})
		}
		root = &Project{Input: root, Items: items}
	}

	if q.OrderBy != nil {
		keys := make([]OrderByKey, 0, len(q.OrderBy.Keys))
		for _, k := range q.OrderBy.Keys {
			keys = append(keys, OrderByKey{Var: k.Var, Property: k.Property, Desc: k.Desc})
		}
		root = &OrderBy{Input: root, Keys: keys}
	}

	if q.Limit != nil {
		root = &Limit{Input: root, N: q.Limit.N}
	}

	return root, nil
}

func projectAlias(it cypher.ReturnItem) string {
	if it.Property == "" {
		return it.Var
	}
	return it.Var + "." + it.Property
}

// buildMatch folds a MATCH's patterns into a scan for the first node,
// followed by an Expand per subsequent relationship/node pair. Additional
// comma-separated patterns are combined with a CrossJoin over the first.
func buildMatch(m *cypher.MatchClause) (Op, error) {
	var root Op
	for _, pat := range m.Patterns {
		built, err := buildPattern(pat)
		if err != nil {
			return nil, err
		}
		if root == nil {
			root = built
			continue
		}
		root = &CrossJoin{Left: root, Right: built}
	}
	return root, nil
}

func buildPattern(pat *cypher.Pattern) (Op, error) {
	first := pat.Nodes[0]
	var root Op = &NodeScan{Var: first.Var, Label: firstLabel(first)}
	if len(first.PropMap) > 0 {
		root = filterForProps(root, first)
	}

	for i, rel := range pat.Rels {
		toNode := pat.Nodes[i+1]
		root = &Expand{
			Input:     root,
			FromVar:   pat.Nodes[i].Var,
			ToVar:     toNode.Var,
			RelVar:    rel.Var,
			Direction: rel.Direction,
			Type:      firstType(rel),
		}
		if len(toNode.PropMap) > 0 {
			root = filterForProps(root, toNode)
		}
	}
	return root, nil
}

func firstLabel(n *cypher.NodePattern) string {
	if len(n.Labels) == 0 {
		return ""
	}
	return n.Labels[0]
}

func firstType(r *cypher.RelPattern) string {
	if len(r.Types) == 0 {
		return ""
	}
	return r.Types[0]
}

// filterForProps lowers an inline pattern property map ({k: v, ...}) to an
// equality Filter, reusing the same CompareExpr shape WHERE uses so the
// optimizer's predicate-pushdown and index-selection passes treat both
// uniformly.
func filterForProps(input Op, n *cypher.NodePattern) Op {
	var expr cypher.Expr
	for key, lit := range n.PropMap {
		cmp := &cypher.CompareExpr{Var: n.Var, Property: key, Op: cypher.CmpEq, Value: lit}
		if expr == nil {
			expr = cmp
		} else {
			expr = &cypher.BinaryExpr{Op: cypher.OpAnd, Left: expr, Right: cmp}
		}
	}
	return &Filter{Input: input, Expr: expr}
}
