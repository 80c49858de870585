package galgo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepskilling/deepgraph/pkg/engine"
	"github.com/deepskilling/deepgraph/pkg/graph"
)

// buildChain creates a -> b -> c -> d and returns their ids in order.
func buildChain(t *testing.T, g *engine.GraphStorage) []graph.NodeID {
	t.Helper()
	var ids []graph.NodeID
	for range 4 {
		id, err := g.AddNode([]string{"N"}, nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for i := 0; i < len(ids)-1; i++ {
		_, err := g.AddEdge(ids[i], ids[i+1], "NEXT", graph.PropertyMap{"weight": graph.Float(2.0)})
		require.NoError(t, err)
	}
	return ids
}

func openTestStorage(t *testing.T) *engine.GraphStorage {
	t.Helper()
	g, err := engine.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func TestBFSVisitsEveryReachableNodeOnce(t *testing.T) {
	g := openTestStorage(t)
	ids := buildChain(t, g)

	order, err := BFS(g, ids[0], graph.DirOutgoing)
	require.NoError(t, err)
	assert.Equal(t, ids, order)
}

func TestDFSVisitsEveryReachableNode(t *testing.T) {
	g := openTestStorage(t)
	ids := buildChain(t, g)

	order, err := DFS(g, ids[0], graph.DirOutgoing)
	require.NoError(t, err)
	assert.ElementsMatch(t, ids, order)
	assert.Equal(t, ids[0], order[0])
}

func TestBFSUnknownStartIsNotFound(t *testing.T) {
	g := openTestStorage(t)
	_, err := BFS(g, graph.NewNodeID(), graph.DirOutgoing)
	require.Error(t, err)
	assert.True(t, engine.Is(err, engine.KindNotFound))
}

func TestConnectedComponentsSeparatesDisjointSubgraphs(t *testing.T) {
	g := openTestStorage(t)
	chain := buildChain(t, g)

	_, err := g.AddNode([]string{"N"}, nil)
	require.NoError(t, err)

	comps, err := ConnectedComponents(g)
	require.NoError(t, err)
	require.Len(t, comps, 2)

	sizes := map[int]int{}
	for _, c := range comps {
		sizes[len(c)]++
	}
	assert.Equal(t, 1, sizes[len(chain)])
	assert.Equal(t, 1, sizes[1])
}

func TestDijkstraAccumulatesWeightsAlongChain(t *testing.T) {
	g := openTestStorage(t)
	ids := buildChain(t, g)

	dist, err := Dijkstra(g, ids[0], "weight", graph.DirOutgoing)
	require.NoError(t, err)
	assert.Equal(t, 0.0, dist[ids[0]])
	assert.Equal(t, 2.0, dist[ids[1]])
	assert.Equal(t, 4.0, dist[ids[2]])
	assert.Equal(t, 6.0, dist[ids[3]])
}

func TestDijkstraDefaultsMissingWeightToOne(t *testing.T) {
	g := openTestStorage(t)
	a, err := g.AddNode([]string{"N"}, nil)
	require.NoError(t, err)
	b, err := g.AddNode([]string{"N"}, nil)
	require.NoError(t, err)
	_, err = g.AddEdge(a, b, "NEXT", nil)
	require.NoError(t, err)

	dist, err := Dijkstra(g, a, "weight", graph.DirOutgoing)
	require.NoError(t, err)
	assert.Equal(t, 1.0, dist[b])
}

func TestPageRankScoresSumToApproximatelyOne(t *testing.T) {
	g := openTestStorage(t)
	buildChain(t, g)

	rank, err := PageRank(g, 0.85, 50)
	require.NoError(t, err)
	var total float64
	for _, v := range rank {
		total += v
	}
	assert.InDelta(t, 1.0, total, 0.01)
}

func TestPageRankOnEmptyGraph(t *testing.T) {
	g := openTestStorage(t)
	rank, err := PageRank(g, 0.85, 10)
	require.NoError(t, err)
	assert.Empty(t, rank)
}
