package engine

import (
	"context"
	"fmt"

	"github.com/deepskilling/deepgraph/pkg/cypher"
	"github.com/deepskilling/deepgraph/pkg/executor"
	"github.com/deepskilling/deepgraph/pkg/graph"
)

// executeCreate runs a CREATE query's pattern directly against
// pkg/txn.Coordinator: every node and relationship in the pattern is fresh
// (the grammar has no MATCH+CREATE combination, spec.md §4.9), so there is
// nothing to resolve against the existing graph — each pattern element
// becomes one CreateNode/CreateEdge call inside a single transaction, atomic
// with the rest of the statement.
func (g *GraphStorage) executeCreate(q *cypher.Query) (executor.ResultSet, error) {
	ctx := context.Background()
	t, err := g.coord.Begin(ctx)
	if err != nil {
		return executor.ResultSet{}, classifyTxnErr("ExecuteCypher", err)
	}

	bound := map[string]graph.Node{}
	var createdNodes []graph.Node
	var createdEdges []graph.Edge

	pat := q.Create.Pattern
	for i, np := range pat.Nodes {
		props, err := literalProps(np.PropMap)
		if err != nil {
			_ = g.coord.Abort(ctx, t)
			return executor.ResultSet{}, newError(KindInvalidArgument, "ExecuteCypher", err)
		}
		n := graph.Node{ID: graph.NewNodeID(), Labels: graph.NewLabelSet(np.Labels...), Props: props}
		if err := g.coord.CreateNode(ctx, t, n); err != nil {
			_ = g.coord.Abort(ctx, t)
			return executor.ResultSet{}, classifyTxnErr("ExecuteCypher", err)
		}
		createdNodes = append(createdNodes, n)
		if np.Var != "" {
			bound[np.Var] = n
		}

		if i == 0 {
			continue
		}
		rel := pat.Rels[i-1]
		from, to := createdNodes[i-1], n
		if rel.Direction == cypher.RelIncoming {
			from, to = n, createdNodes[i-1]
		}
		relProps, err := literalProps(rel.PropMap)
		if err != nil {
			_ = g.coord.Abort(ctx, t)
			return executor.ResultSet{}, newError(KindInvalidArgument, "ExecuteCypher", err)
		}
		typ := ""
		if len(rel.Types) > 0 {
			typ = rel.Types[0]
		}
		e := graph.Edge{ID: graph.NewEdgeID(), Type: typ, From: from.ID, To: to.ID, Props: relProps}
		if err := g.coord.CreateEdge(ctx, t, e); err != nil {
			_ = g.coord.Abort(ctx, t)
			return executor.ResultSet{}, classifyTxnErr("ExecuteCypher", err)
		}
		createdEdges = append(createdEdges, e)
	}

	if err := g.coord.Commit(ctx, t); err != nil {
		return executor.ResultSet{}, classifyTxnErr("ExecuteCypher", err)
	}
	for _, n := range createdNodes {
		g.indexNode(n)
	}
	for _, e := range createdEdges {
		g.indexEdge(e)
	}

	if q.Return == nil {
		return executor.ResultSet{RowCount: len(createdNodes)}, nil
	}
	return projectCreated(q.Return, bound), nil
}

func literalProps(m map[string]cypher.Literal) (graph.PropertyMap, error) {
	out := make(graph.PropertyMap, len(m))
	for k, lit := range m {
		out[k] = lit.Value
	}
	return out, nil
}

// projectCreated builds a one-row result set from a CREATE statement's own
// RETURN clause, pulling values from the just-created node bindings — a
// CREATE query never has an upstream row source to project from, unlike
// MATCH.
func projectCreated(ret *cypher.ReturnClause, bound map[string]graph.Node) executor.ResultSet {
	columns := make([]string, 0, len(ret.Items))
	row := make(map[string]graph.Value, len(ret.Items))
	for _, item := range ret.Items {
		alias := item.Var
		if item.Property != "" {
			alias = fmt.Sprintf("%s.%s", item.Var, item.Property)
		}
		columns = append(columns, alias)
		n, ok := bound[item.Var]
		if !ok {
			row[alias] = graph.Null()
			continue
		}
		if item.Property == "" {
			row[alias] = graph.String(n.ID.String())
			continue
		}
		if v, ok := n.Props[item.Property]; ok {
			row[alias] = v
		} else {
			row[alias] = graph.Null()
		}
	}
	return executor.ResultSet{Columns: columns, Rows: []map[string]graph.Value{row}, RowCount: 1}
}
