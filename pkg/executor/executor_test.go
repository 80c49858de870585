package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepskilling/deepgraph/pkg/cypher"
	"github.com/deepskilling/deepgraph/pkg/graph"
	"github.com/deepskilling/deepgraph/pkg/mvcc"
	"github.com/deepskilling/deepgraph/pkg/planner"
	"github.com/deepskilling/deepgraph/pkg/secidx"
)

// fakeReader is a minimal in-memory Reader built directly on graph.Index and
// secidx.Manager, avoiding an import of pkg/engine (which itself imports
// pkg/executor).
type fakeReader struct {
	index     *graph.Index
	clock     *mvcc.Clock
	secondary *secidx.Manager
}

func newFakeReader() *fakeReader {
	return &fakeReader{index: graph.NewIndex(), clock: mvcc.NewClock(), secondary: secidx.NewManager()}
}

func (f *fakeReader) Snapshot() mvcc.Snapshot { return mvcc.Snapshot{TS: f.clock.Current()} }

func (f *fakeReader) GetNode(ts mvcc.Timestamp, id graph.NodeID) (graph.Node, bool) {
	return f.index.GetNode(ts, id)
}

func (f *fakeReader) GetEdge(ts mvcc.Timestamp, id graph.EdgeID) (graph.Edge, bool) {
	return f.index.GetEdge(ts, id)
}

func (f *fakeReader) NodesWithLabel(ts mvcc.Timestamp, label string) []graph.NodeID {
	return f.index.NodesWithLabel(ts, label)
}

func (f *fakeReader) AllNodeIDs() []graph.NodeID { return f.index.AllNodeIDs() }

func (f *fakeReader) Adjacent(ts mvcc.Timestamp, id graph.NodeID, dir graph.Direction) []graph.EdgeID {
	return f.index.Adjacent(ts, id, dir)
}

func (f *fakeReader) Index(name string) (secidx.Descriptor, secidx.Index, bool) {
	idx, ok := f.secondary.Get(name)
	if !ok {
		return secidx.Descriptor{}, secidx.Index{}, false
	}
	return idx.Descriptor(), *idx, true
}

func (f *fakeReader) putNode(n graph.Node) {
	f.index.PutNode(f.clock.Next(), n)
}

func (f *fakeReader) putEdge(e graph.Edge) {
	f.index.PutEdge(f.clock.Next(), e)
}

func TestExecuteSimpleMatchReturn(t *testing.T) {
	r := newFakeReader()
	r.putNode(graph.Node{ID: graph.NewNodeID(), Labels: graph.NewLabelSet("Person"), Props: graph.PropertyMap{"name": graph.String("Alice")}})
	r.putNode(graph.Node{ID: graph.NewNodeID(), Labels: graph.NewLabelSet("Person"), Props: graph.PropertyMap{"name": graph.String("Bob")}})

	q, err := cypher.Parse("MATCH (n:Person) RETURN n.name")
	require.NoError(t, err)
	root, err := planner.Build(q)
	require.NoError(t, err)

	rs, err := Execute(root, r, r.Snapshot().TS)
	require.NoError(t, err)
	assert.Equal(t, []string{"n.name"}, rs.Columns)
	require.Equal(t, 2, rs.RowCount)

	var names []string
	for _, row := range rs.Rows {
		names = append(names, row["n.name"].String())
	}
	assert.ElementsMatch(t, []string{"Alice", "Bob"}, names)
}

func TestExecuteFilterDropsNonMatchingRows(t *testing.T) {
	r := newFakeReader()
	r.putNode(graph.Node{ID: graph.NewNodeID(), Labels: graph.NewLabelSet("Person"), Props: graph.PropertyMap{"age": graph.Int(30)}})
	r.putNode(graph.Node{ID: graph.NewNodeID(), Labels: graph.NewLabelSet("Person"), Props: graph.PropertyMap{"age": graph.Int(10)}})

	q, err := cypher.Parse("MATCH (n:Person) WHERE n.age = 30 RETURN n.age")
	require.NoError(t, err)
	root, err := planner.Build(q)
	require.NoError(t, err)

	rs, err := Execute(root, r, r.Snapshot().TS)
	require.NoError(t, err)
	require.Equal(t, 1, rs.RowCount)
	assert.Equal(t, graph.Int(30), rs.Rows[0]["n.age"])
}

func TestExecuteFilterMissingPropertyIsFalseNotError(t *testing.T) {
	r := newFakeReader()
	r.putNode(graph.Node{ID: graph.NewNodeID(), Labels: graph.NewLabelSet("Person"), Props: graph.PropertyMap{}})

	q, err := cypher.Parse("MATCH (n:Person) WHERE n.age = 30 RETURN n")
	require.NoError(t, err)
	root, err := planner.Build(q)
	require.NoError(t, err)

	rs, err := Execute(root, r, r.Snapshot().TS)
	require.NoError(t, err)
	assert.Equal(t, 0, rs.RowCount)
}

func TestExecuteExpandFollowsOutgoingEdges(t *testing.T) {
	r := newFakeReader()
	alice := graph.Node{ID: graph.NewNodeID(), Labels: graph.NewLabelSet("Person"), Props: graph.PropertyMap{"name": graph.String("Alice")}}
	bob := graph.Node{ID: graph.NewNodeID(), Labels: graph.NewLabelSet("Person"), Props: graph.PropertyMap{"name": graph.String("Bob")}}
	r.putNode(alice)
	r.putNode(bob)
	r.putEdge(graph.Edge{ID: graph.NewEdgeID(), Type: "KNOWS", From: alice.ID, To: bob.ID, Props: graph.PropertyMap{}})

	q, err := cypher.Parse("MATCH (a)-[:KNOWS]->(b) RETURN b.name")
	require.NoError(t, err)
	root, err := planner.Build(q)
	require.NoError(t, err)

	rs, err := Execute(root, r, r.Snapshot().TS)
	require.NoError(t, err)
	require.Equal(t, 1, rs.RowCount)
	assert.Equal(t, graph.String("Bob"), rs.Rows[0]["b.name"])
}

func TestExecuteOrderByAndLimit(t *testing.T) {
	r := newFakeReader()
	r.putNode(graph.Node{ID: graph.NewNodeID(), Labels: graph.NewLabelSet("Person"), Props: graph.PropertyMap{"name": graph.String("Carol")}})
	r.putNode(graph.Node{ID: graph.NewNodeID(), Labels: graph.NewLabelSet("Person"), Props: graph.PropertyMap{"name": graph.String("Alice")}})
	r.putNode(graph.Node{ID: graph.NewNodeID(), Labels: graph.NewLabelSet("Person"), Props: graph.PropertyMap{"name": graph.String("Bob")}})

	q, err := cypher.Parse("MATCH (n:Person) RETURN n.name ORDER BY n.name LIMIT 2")
	require.NoError(t, err)
	root, err := planner.Build(q)
	require.NoError(t, err)

	rs, err := Execute(root, r, r.Snapshot().TS)
	require.NoError(t, err)
	require.Equal(t, 2, rs.RowCount)
	assert.Equal(t, graph.String("Alice"), rs.Rows[0]["n.name"])
	assert.Equal(t, graph.String("Bob"), rs.Rows[1]["n.name"])
}

func TestExecuteIndexLookupEquality(t *testing.T) {
	r := newFakeReader()
	alice := graph.Node{ID: graph.NewNodeID(), Labels: graph.NewLabelSet("Person"), Props: graph.PropertyMap{"name": graph.String("Alice")}}
	bob := graph.Node{ID: graph.NewNodeID(), Labels: graph.NewLabelSet("Person"), Props: graph.PropertyMap{"name": graph.String("Bob")}}
	r.putNode(alice)
	r.putNode(bob)

	idx, err := r.secondary.Create(secidx.Descriptor{Name: "byname", Kind: secidx.KindHash, Target: secidx.TargetNode, Label: "Person", Property: "name"})
	require.NoError(t, err)
	idx.Insert(graph.String("Alice"), alice.ID)
	idx.Insert(graph.String("Bob"), bob.ID)

	q, err := cypher.Parse(`MATCH (n:Person) WHERE n.name = "Alice" RETURN n.name`)
	require.NoError(t, err)
	built, err := planner.Build(q)
	require.NoError(t, err)
	optimized := planner.Optimize(built, r.secondary)

	rs, err := Execute(optimized, r, r.Snapshot().TS)
	require.NoError(t, err)
	require.Equal(t, 1, rs.RowCount)
	assert.Equal(t, graph.String("Alice"), rs.Rows[0]["n.name"])
}

func TestExecuteCreatePlanIsRejected(t *testing.T) {
	r := newFakeReader()
	q, err := cypher.Parse(`CREATE (:Person {name: "Alice"})`)
	require.NoError(t, err)
	root, err := planner.Build(q)
	require.NoError(t, err)

	_, err = Execute(root, r, r.Snapshot().TS)
	assert.Error(t, err)
}

func TestExecuteNodeScanSkipsNodesDeletedBeforeSnapshot(t *testing.T) {
	r := newFakeReader()
	n := graph.Node{ID: graph.NewNodeID(), Labels: graph.NewLabelSet("Person"), Props: graph.PropertyMap{}}
	r.putNode(n)
	r.index.DeleteNode(r.clock.Next(), n.ID)

	q, err := cypher.Parse("MATCH (n:Person) RETURN n")
	require.NoError(t, err)
	root, err := planner.Build(q)
	require.NoError(t, err)

	rs, err := Execute(root, r, r.Snapshot().TS)
	require.NoError(t, err)
	assert.Equal(t, 0, rs.RowCount)
}
