package planner

import (
	"github.com/deepskilling/deepgraph/pkg/cypher"
	"github.com/deepskilling/deepgraph/pkg/secidx"
)

// Optimize applies DeepGraph's five rewrite passes to a fixed point: each
// pass runs in the fixed order spec.md §4.10 lists, and the whole sequence
// repeats until no pass changes the plan. This makes Optimize idempotent —
// running it again on its own output is a no-op, since a fixed point by
// definition admits no further rewrite.
func Optimize(root Op, indexes *secidx.Manager) Op {
	for {
		next := root
		next = pushdownPredicates(next)
		next = selectIndexes(next, indexes)
		next = hoistLabels(next)
		next = pushdownLimit(next)
		next = eliminateDeadBindings(next)
		if planEqual(next, root) {
			return next
		}
		root = next
	}
}

// pushdownPredicates moves a Filter below a Project (a Filter has no
// reason to wait until after projection, since projection never narrows
// the row set) and, where a Filter sits immediately above a scan/expand
// whose bindings already satisfy every variable the filter references,
// leaves it there (there's nowhere lower to push within DeepGraph's
// single-hop-per-Expand plan shape).
func pushdownPredicates(root Op) Op {
	switch op := root.(type) {
	case *Project:
		if f, ok := op.Input.(*Filter); ok {
			return &Project{Input: pushdownPredicates(&Filter{Input: pushdownPredicates(f.Input), Expr: f.Expr}), Items: op.Items}
		}
		return &Project{Input: pushdownPredicates(op.Input), Items: op.Items}
	case *Filter:
		if p, ok := op.Input.(*Project); ok {
			return &Project{Input: pushdownPredicates(&Filter{Input: p.Input, Expr: op.Expr}), Items: p.Items}
		}
		return &Filter{Input: pushdownPredicates(op.Input), Expr: op.Expr}
	case *Expand:
		return &Expand{Input: pushdownPredicates(op.Input), FromVar: op.FromVar, ToVar: op.ToVar, RelVar: op.RelVar, Direction: op.Direction, Type: op.Type}
	case *OrderBy:
		return &OrderBy{Input: pushdownPredicates(op.Input), Keys: op.Keys}
	case *Limit:
		return &Limit{Input: pushdownPredicates(op.Input), N: op.N}
	case *CrossJoin:
		return &CrossJoin{Left: pushdownPredicates(op.Left), Right: pushdownPredicates(op.Right)}
	default:
		return root
	}
}

// selectIndexes rewrites Filter(NodeScan) into IndexLookup when an equality
// or range predicate on the scan's label has a matching index, per
// spec.md's index-selection rule.
func selectIndexes(root Op, indexes *secidx.Manager) Op {
	switch op := root.(type) {
	case *Filter:
		input := selectIndexes(op.Input, indexes)
		if scan, ok := input.(*NodeScan); ok && scan.Label != "" {
			if lookup, ok := tryIndexLookup(scan, op.Expr, indexes); ok {
				return lookup
			}
		}
		return &Filter{Input: input, Expr: op.Expr}
	case *Project:
		return &Project{Input: selectIndexes(op.Input, indexes), Items: op.Items}
	case *Expand:
		return &Expand{Input: selectIndexes(op.Input, indexes), FromVar: op.FromVar, ToVar: op.ToVar, RelVar: op.RelVar, Direction: op.Direction, Type: op.Type}
	case *OrderBy:
		return &OrderBy{Input: selectIndexes(op.Input, indexes), Keys: op.Keys}
	case *Limit:
		return &Limit{Input: selectIndexes(op.Input, indexes), N: op.N}
	case *CrossJoin:
		return &CrossJoin{Left: selectIndexes(op.Left, indexes), Right: selectIndexes(op.Right, indexes)}
	default:
		return root
	}
}

func tryIndexLookup(scan *NodeScan, expr cypher.Expr, indexes *secidx.Manager) (*IndexLookup, bool) {
	cmp, ok := expr.(*cypher.CompareExpr)
	if !ok || cmp.Var != scan.Var {
		return nil, false
	}
	descs := indexes.ForLabel(secidx.TargetNode, scan.Label, cmp.Property)
	if len(descs) == 0 {
		return nil, false
	}
	desc := descs[0]
	lit := cmp.Value
	switch cmp.Op {
	case cypher.CmpEq:
		if desc.Kind != secidx.KindHash && desc.Kind != secidx.KindOrdered {
			return nil, false
		}
		return &IndexLookup{Var: scan.Var, Label: scan.Label, IndexName: desc.Name, Kind: desc.Kind, Eq: &lit, Property: cmp.Property}, true
	case cypher.CmpLt, cypher.CmpLte, cypher.CmpGt, cypher.CmpGte:
		if desc.Kind != secidx.KindOrdered {
			return nil, false
		}
		lk := &IndexLookup{Var: scan.Var, Label: scan.Label, IndexName: desc.Name, Kind: desc.Kind, Property: cmp.Property}
		switch cmp.Op {
		case cypher.CmpLt, cypher.CmpLte:
			lk.Hi = &lit
		case cypher.CmpGt, cypher.CmpGte:
			lk.Lo = &lit
		}
		return lk, true
	default:
		return nil, false
	}
}

// hoistLabels is a no-op: buildMatch already turns pattern labels into
// NodeScan.Label directly. It returns its input unchanged and does not
// rewrite any Filter into a scan label.
func hoistLabels(root Op) Op {
	return root
}

// pushdownLimit moves a Limit below a Project, since projecting columns
// never changes which rows satisfy the limit — only their shape.
func pushdownLimit(root Op) Op {
	switch op := root.(type) {
	case *Limit:
		if proj, ok := op.Input.(*Project); ok {
			return &Project{Input: pushdownLimit(&Limit{Input: proj.Input, N: op.N}), Items: proj.Items}
		}
		return &Limit{Input: pushdownLimit(op.Input), N: op.N}
	case *Project:
		return &Project{Input: pushdownLimit(op.Input), Items: op.Items}
	case *OrderBy:
		return &OrderBy{Input: pushdownLimit(op.Input), Keys: op.Keys}
	case *Filter:
		return &Filter{Input: pushdownLimit(op.Input), Expr: op.Expr}
	case *Expand:
		return &Expand{Input: pushdownLimit(op.Input), FromVar: op.FromVar, ToVar: op.ToVar, RelVar: op.RelVar, Direction: op.Direction, Type: op.Type}
	case *CrossJoin:
		return &CrossJoin{Left: pushdownLimit(op.Left), Right: pushdownLimit(op.Right)}
	default:
		return root
	}
}

// eliminateDeadBindings drops Expand steps whose introduced variable is
// never referenced by anything above them in the tree (no Filter, no
// Project, no OrderBy mentions it) — spec.md's dead-binding-elimination
// rule. DeepGraph's conservative implementation only removes a trailing
// Expand whose ToVar/RelVar bindings are entirely unused, since removing
// an interior Expand would also discard the traversal step a later Expand
// depends on for its FromVar.
func eliminateDeadBindings(root Op) Op {
	used := collectUsedVars(root)
	return dropUnusedTrailingExpand(root, used)
}

func dropUnusedTrailingExpand(op Op, used map[string]bool) Op {
	switch x := op.(type) {
	case *Project:
		return &Project{Input: dropUnusedTrailingExpand(x.Input, used), Items: x.Items}
	case *OrderBy:
		return &OrderBy{Input: dropUnusedTrailingExpand(x.Input, used), Keys: x.Keys}
	case *Limit:
		return &Limit{Input: dropUnusedTrailingExpand(x.Input, used), N: x.N}
	case *Filter:
		return &Filter{Input: dropUnusedTrailingExpand(x.Input, used), Expr: x.Expr}
	case *Expand:
		if !used[x.ToVar] && (x.RelVar == "" || !used[x.RelVar]) {
			return dropUnusedTrailingExpand(x.Input, used)
		}
		return x
	default:
		return op
	}
}

func collectUsedVars(op Op) map[string]bool {
	used := make(map[string]bool)
	var walk func(Op)
	walk = func(o Op) {
		switch x := o.(type) {
		case *Project:
			for _, it := range x.Items {
				used[it.Var] = true
			}
			walk(x.Input)
		case *OrderBy:
			for _, k := range x.Keys {
				used[k.Var] = true
			}
			walk(x.Input)
		case *Limit:
			walk(x.Input)
		case *Filter:
			markExprVars(x.Expr, used)
			walk(x.Input)
		case *Expand:
			walk(x.Input)
		case *CrossJoin:
			walk(x.Left)
			walk(x.Right)
		}
	}
	walk(op)
	return used
}

func markExprVars(e cypher.Expr, used map[string]bool) {
	switch x := e.(type) {
	case *cypher.BinaryExpr:
		markExprVars(x.Left, used)
		markExprVars(x.Right, used)
	case *cypher.CompareExpr:
		used[x.Var] = true
	}
}

// planEqual compares two plans structurally up to operator identity (the
// same operator kinds in the same shape), which is what spec.md requires
// of an idempotent optimizer: re-running it on a fixed point must not
// produce a "different but equivalent" tree.
func planEqual(a, b Op) bool {
	return describePlan(a) == describePlan(b)
}

func describePlan(op Op) string {
	switch x := op.(type) {
	case nil:
		return "nil"
	case *NodeScan:
		return "Scan(" + x.Var + ":" + x.Label + ")"
	case *IndexLookup:
		return "IndexLookup(" + x.IndexName + ")"
	case *Expand:
		return "Expand(" + describePlan(x.Input) + "->" + x.ToVar + ")"
	case *Filter:
		return "Filter(" + describePlan(x.Input) + ")"
	case *Project:
		s := "Project(" + describePlan(x.Input) + ";"
		for _, it := range x.Items {
			s += it.Alias + ","
		}
		return s + ")"
	case *OrderBy:
		return "OrderBy(" + describePlan(x.Input) + ")"
	case *Limit:
		return "Limit(" + describePlan(x.Input) + ")"
	case *CrossJoin:
		return "Join(" + describePlan(x.Left) + "," + describePlan(x.Right) + ")"
	case *Create:
		return "Create"
	default:
		return "?"
	}
}
