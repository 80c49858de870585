package engine

import (
	"github.com/deepskilling/deepgraph/pkg/cypher"
	"github.com/deepskilling/deepgraph/pkg/executor"
	"github.com/deepskilling/deepgraph/pkg/planner"
)

// ExecuteCypher parses, plans, optimizes, and runs text, returning the
// result set spec.md §4.1/§6 describes (columns, rows, row_count,
// execution_time_ms). CREATE queries are routed to executeCreate, which
// drives pkg/txn.Coordinator directly instead of the read-only pull-based
// executor (see pkg/executor.build's rejection of *planner.Create).
func (g *GraphStorage) ExecuteCypher(text string) (executor.ResultSet, error) {
	q, err := cypher.Parse(text)
	if err != nil {
		return executor.ResultSet{}, newError(KindInvalidArgument, "ExecuteCypher", err)
	}

	if q.Create != nil {
		return g.executeCreate(q)
	}

	root, err := planner.Build(q)
	if err != nil {
		return executor.ResultSet{}, newError(KindInvalidArgument, "ExecuteCypher", err)
	}
	root = planner.Optimize(root, g.secondary)

	rs, err := executor.Execute(root, reader{g}, g.snapshotTS())
	if err != nil {
		return executor.ResultSet{}, newError(KindInternal, "ExecuteCypher", err)
	}
	return rs, nil
}
