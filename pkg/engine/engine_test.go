package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepskilling/deepgraph/pkg/graph"
	"github.com/deepskilling/deepgraph/pkg/secidx"
)

func TestAddAndGetNode(t *testing.T) {
	g, err := OpenInMemory()
	require.NoError(t, err)
	defer g.Close()

	id, err := g.AddNode([]string{"Person"}, graph.PropertyMap{"name": graph.String("Alice")})
	require.NoError(t, err)

	n, ok := g.GetNode(id)
	require.True(t, ok)
	assert.True(t, n.Labels.Has("Person"))
	assert.Equal(t, graph.String("Alice"), n.Props["name"])
}

func TestGetNodeUnknownIDIsOkFalse(t *testing.T) {
	g, err := OpenInMemory()
	require.NoError(t, err)
	defer g.Close()

	_, ok := g.GetNode(graph.NewNodeID())
	assert.False(t, ok)
}

func TestUpdateNodeMergesProperties(t *testing.T) {
	g, err := OpenInMemory()
	require.NoError(t, err)
	defer g.Close()

	id, err := g.AddNode([]string{"Person"}, graph.PropertyMap{"name": graph.String("Alice"), "age": graph.Int(30)})
	require.NoError(t, err)

	require.NoError(t, g.UpdateNode(id, graph.PropertyMap{"age": graph.Int(31)}))

	n, ok := g.GetNode(id)
	require.True(t, ok)
	assert.Equal(t, graph.String("Alice"), n.Props["name"])
	assert.Equal(t, graph.Int(31), n.Props["age"])
}

func TestUpdateNodeEmptyDeltaIsNoOp(t *testing.T) {
	g, err := OpenInMemory()
	require.NoError(t, err)
	defer g.Close()

	id, err := g.AddNode([]string{"Person"}, graph.PropertyMap{"name": graph.String("Alice")})
	require.NoError(t, err)

	require.NoError(t, g.UpdateNode(id, nil))

	n, ok := g.GetNode(id)
	require.True(t, ok)
	assert.Equal(t, graph.String("Alice"), n.Props["name"])
}

func TestDeleteNodeCascadesIncidentEdges(t *testing.T) {
	g, err := OpenInMemory()
	require.NoError(t, err)
	defer g.Close()

	a, err := g.AddNode([]string{"N"}, nil)
	require.NoError(t, err)
	b, err := g.AddNode([]string{"N"}, nil)
	require.NoError(t, err)
	eid, err := g.AddEdge(a, b, "LINK", nil)
	require.NoError(t, err)

	require.NoError(t, g.DeleteNode(a))

	_, ok := g.GetNode(a)
	assert.False(t, ok)
	_, ok = g.GetEdge(eid)
	assert.False(t, ok, "deleting an endpoint must cascade-delete its incident edges")

	bNode, ok := g.GetNode(b)
	require.True(t, ok)
	_ = bNode
}

func TestDeleteUnknownNodeIsNotFound(t *testing.T) {
	g, err := OpenInMemory()
	require.NoError(t, err)
	defer g.Close()

	err = g.DeleteNode(graph.NewNodeID())
	require.Error(t, err)
	assert.True(t, Is(err, KindNotFound))
}

func TestAddEdgeUnknownEndpointIsNotFound(t *testing.T) {
	g, err := OpenInMemory()
	require.NoError(t, err)
	defer g.Close()

	a, err := g.AddNode([]string{"N"}, nil)
	require.NoError(t, err)

	_, err = g.AddEdge(a, graph.NewNodeID(), "LINK", nil)
	require.Error(t, err)
	assert.True(t, Is(err, KindNotFound))
}

func TestClearRemovesEverything(t *testing.T) {
	g, err := OpenInMemory()
	require.NoError(t, err)
	defer g.Close()

	a, err := g.AddNode([]string{"N"}, nil)
	require.NoError(t, err)
	b, err := g.AddNode([]string{"N"}, nil)
	require.NoError(t, err)
	_, err = g.AddEdge(a, b, "LINK", nil)
	require.NoError(t, err)

	require.NoError(t, g.Clear())
	assert.Equal(t, 0, g.NodeCount())
	assert.Equal(t, 0, g.EdgeCount())
}

func TestHashIndexFindsNodesByProperty(t *testing.T) {
	g, err := OpenInMemory()
	require.NoError(t, err)
	defer g.Close()

	require.NoError(t, g.CreateHashIndex("person_name", secidx.TargetNode, "Person", "name"))

	_, err = g.AddNode([]string{"Person"}, graph.PropertyMap{"name": graph.String("Alice")})
	require.NoError(t, err)
	_, err = g.AddNode([]string{"Person"}, graph.PropertyMap{"name": graph.String("Bob")})
	require.NoError(t, err)

	found := g.FindNodesByProperty("name", graph.String("Alice"))
	require.Len(t, found, 1)
	assert.Equal(t, graph.String("Alice"), found[0].Props["name"])
}

func TestBadgerOrderedIndexBackfillsExistingNodes(t *testing.T) {
	g, err := OpenInMemory()
	require.NoError(t, err)
	defer g.Close()

	_, err = g.AddNode([]string{"Person"}, graph.PropertyMap{"age": graph.Int(30)})
	require.NoError(t, err)
	_, err = g.AddNode([]string{"Person"}, graph.PropertyMap{"age": graph.Int(40)})
	require.NoError(t, err)

	require.NoError(t, g.CreateBadgerOrderedIndex("person_age", secidx.TargetNode, "Person", "age"))

	found := g.FindNodesByProperty("age", graph.Int(30))
	require.Len(t, found, 1)
	assert.Equal(t, graph.Int(30), found[0].Props["age"])
}

func TestDropIndexUnknownNameIsInvalidArgument(t *testing.T) {
	g, err := OpenInMemory()
	require.NoError(t, err)
	defer g.Close()

	err = g.DropIndex("nope")
	require.Error(t, err)
	assert.True(t, Is(err, KindInvalidArgument))
}

func TestExecuteCypherCreateAndMatch(t *testing.T) {
	g, err := OpenInMemory()
	require.NoError(t, err)
	defer g.Close()

	_, err = g.ExecuteCypher(`CREATE (:Person {name: "Alice"})`)
	require.NoError(t, err)

	rs, err := g.ExecuteCypher(`MATCH (n:Person) RETURN n.name`)
	require.NoError(t, err)
	require.Equal(t, 1, rs.RowCount)
	assert.Equal(t, graph.String("Alice"), rs.Rows[0]["n.name"])
}

func TestDiskStorageReopenReplaysWAL(t *testing.T) {
	dir := t.TempDir()

	d, err := OpenDisk(dir)
	require.NoError(t, err)
	id, err := d.AddNode([]string{"Person"}, graph.PropertyMap{"name": graph.String("Alice")})
	require.NoError(t, err)
	require.NoError(t, d.Checkpoint())
	require.NoError(t, d.Close())

	reopened, err := OpenDisk(dir)
	require.NoError(t, err)
	defer reopened.Close()

	n, ok := reopened.GetNode(id)
	require.True(t, ok, "reopening a DiskStorage must replay the WAL to recover prior writes")
	assert.Equal(t, graph.String("Alice"), n.Props["name"])
}

func TestDiskStorageSizeOnDiskBytesNonNegative(t *testing.T) {
	dir := t.TempDir()
	d, err := OpenDisk(dir)
	require.NoError(t, err)
	defer d.Close()

	_, err = d.AddNode([]string{"N"}, nil)
	require.NoError(t, err)

	size, err := d.SizeOnDiskBytes()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, size, int64(0))
}
