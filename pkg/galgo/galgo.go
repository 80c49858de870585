// Package galgo implements DeepGraph's graph-algorithm layer: BFS, DFS,
// connected components, Dijkstra's shortest path, and PageRank, each built
// only against pkg/engine.Facade's public read API
// (GetOutgoingEdges/GetIncomingEdges/GetAllNodes) — spec.md §1: "layered on
// top and uses only the public traversal interface." Triangle-count, Louvain
// community detection, and Node2Vec embeddings are named in spec.md §6's
// public-API entity list but are out of scope for this layer: the package
// does not implement them.
//
// Grounded on the teacher's pkg/cypher/traversal.go: a visited-set-guarded
// recursive walk over GetOutgoingEdges/GetIncomingEdges, generalized from
// Cypher variable-length-path matching into standalone graph algorithms.
package galgo

import (
	"container/heap"

	"github.com/deepskilling/deepgraph/pkg/engine"
	"github.com/deepskilling/deepgraph/pkg/graph"
)

// neighbors returns the node ids reachable from id in one hop of dir,
// deduplicated, via the facade's adjacency read API only.
func neighbors(g engine.Facade, id graph.NodeID, dir graph.Direction) ([]graph.NodeID, error) {
	var edges []graph.Edge
	switch dir {
	case graph.DirOutgoing:
		out, err := g.GetOutgoingEdges(id)
		if err != nil {
			return nil, err
		}
		edges = out
	case graph.DirIncoming:
		in, err := g.GetIncomingEdges(id)
		if err != nil {
			return nil, err
		}
		edges = in
	default: // DirBoth
		out, err := g.GetOutgoingEdges(id)
		if err != nil {
			return nil, err
		}
		in, err := g.GetIncomingEdges(id)
		if err != nil {
			return nil, err
		}
		edges = append(out, in...)
	}
	seen := make(map[graph.NodeID]struct{}, len(edges))
	out := make([]graph.NodeID, 0, len(edges))
	for _, e := range edges {
		next := e.To
		if e.To == id {
			next = e.From
		}
		if _, dup := seen[next]; dup {
			continue
		}
		seen[next] = struct{}{}
		out = append(out, next)
	}
	return out, nil
}

// BFS returns every node reachable from start in breadth-first order,
// following edges in direction dir. start itself is the first element.
func BFS(g engine.Facade, start graph.NodeID, dir graph.Direction) ([]graph.NodeID, error) {
	if _, ok := g.GetNode(start); !ok {
		return nil, &engine.Error{Kind: engine.KindNotFound, Op: "BFS"}
	}
	visited := map[graph.NodeID]struct{}{start: {}}
	order := []graph.NodeID{start}
	queue := []graph.NodeID{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		next, err := neighbors(g, cur, dir)
		if err != nil {
			return nil, err
		}
		for _, n := range next {
			if _, seen := visited[n]; seen {
				continue
			}
			visited[n] = struct{}{}
			order = append(order, n)
			queue = append(queue, n)
		}
	}
	return order, nil
}

// DFS returns every node reachable from start in depth-first pre-order.
func DFS(g engine.Facade, start graph.NodeID, dir graph.Direction) ([]graph.NodeID, error) {
	if _, ok := g.GetNode(start); !ok {
		return nil, &engine.Error{Kind: engine.KindNotFound, Op: "DFS"}
	}
	visited := map[graph.NodeID]struct{}{}
	var order []graph.NodeID
	var walk func(id graph.NodeID) error
	walk = func(id graph.NodeID) error {
		visited[id] = struct{}{}
		order = append(order, id)
		next, err := neighbors(g, id, dir)
		if err != nil {
			return err
		}
		for _, n := range next {
			if _, seen := visited[n]; seen {
				continue
			}
			if err := walk(n); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(start); err != nil {
		return nil, err
	}
	return order, nil
}

// ConnectedComponents partitions every node in the graph into groups
// reachable from one another, ignoring edge direction (spec.md §6's
// ConnectedComponents entity is defined over the undirected graph).
func ConnectedComponents(g engine.Facade) ([][]graph.NodeID, error) {
	visited := map[graph.NodeID]struct{}{}
	var components [][]graph.NodeID
	for _, n := range g.GetAllNodes() {
		if _, ok := visited[n.ID]; ok {
			continue
		}
		comp, err := BFS(g, n.ID, graph.DirBoth)
		if err != nil {
			return nil, err
		}
		for _, id := range comp {
			visited[id] = struct{}{}
		}
		components = append(components, comp)
	}
	return components, nil
}

// Dijkstra computes shortest-path distances from start to every reachable
// node, following edges in direction dir, weighted by weightProp (read off
// each traversed edge; missing or non-numeric weights are treated as 1.0).
// Negative weights are not supported (spec's non-goal: no negative-cycle
// detection).
func Dijkstra(g engine.Facade, start graph.NodeID, weightProp string, dir graph.Direction) (map[graph.NodeID]float64, error) {
	if _, ok := g.GetNode(start); !ok {
		return nil, &engine.Error{Kind: engine.KindNotFound, Op: "Dijkstra"}
	}
	dist := map[graph.NodeID]float64{start: 0}
	pq := &priorityQueue{{id: start, dist: 0}}
	heap.Init(pq)
	visited := map[graph.NodeID]struct{}{}

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(pqItem)
		if _, done := visited[cur.id]; done {
			continue
		}
		visited[cur.id] = struct{}{}

		edges, err := incidentEdges(g, cur.id, dir)
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			next := e.To
			if e.To == cur.id {
				next = e.From
			}
			w := 1.0
			if v, ok := e.Props[weightProp]; ok && (v.Kind() == graph.KindInt || v.Kind() == graph.KindFloat) {
				w = v.Float()
			}
			nd := cur.dist + w
			if existing, ok := dist[next]; !ok || nd < existing {
				dist[next] = nd
				heap.Push(pq, pqItem{id: next, dist: nd})
			}
		}
	}
	return dist, nil
}

func incidentEdges(g engine.Facade, id graph.NodeID, dir graph.Direction) ([]graph.Edge, error) {
	switch dir {
	case graph.DirOutgoing:
		return g.GetOutgoingEdges(id)
	case graph.DirIncoming:
		return g.GetIncomingEdges(id)
	default:
		out, err := g.GetOutgoingEdges(id)
		if err != nil {
			return nil, err
		}
		in, err := g.GetIncomingEdges(id)
		if err != nil {
			return nil, err
		}
		return append(out, in...), nil
	}
}

type pqItem struct {
	id   graph.NodeID
	dist float64
}

type priorityQueue []pqItem

func (pq priorityQueue) Len() int            { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool  { return pq[i].dist < pq[j].dist }
func (pq priorityQueue) Swap(i, j int)       { pq[i], pq[j] = pq[j], pq[i] }
func (pq *priorityQueue) Push(x interface{}) { *pq = append(*pq, x.(pqItem)) }
func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}

// PageRank runs the classic power-iteration PageRank over the directed
// graph for a fixed number of iterations, returning each node's score
// (scores sum to ~1.0 across the graph).
func PageRank(g engine.Facade, damping float64, iterations int) (map[graph.NodeID]float64, error) {
	nodes := g.GetAllNodes()
	n := len(nodes)
	if n == 0 {
		return map[graph.NodeID]float64{}, nil
	}

	outDegree := make(map[graph.NodeID]int, n)
	incoming := make(map[graph.NodeID][]graph.NodeID, n)
	rank := make(map[graph.NodeID]float64, n)
	for _, node := range nodes {
		rank[node.ID] = 1.0 / float64(n)
		out, err := g.GetOutgoingEdges(node.ID)
		if err != nil {
			return nil, err
		}
		outDegree[node.ID] = len(out)
		for _, e := range out {
			incoming[e.To] = append(incoming[e.To], node.ID)
		}
	}

	base := (1 - damping) / float64(n)
	for i := 0; i < iterations; i++ {
		next := make(map[graph.NodeID]float64, n)
		var danglingSum float64
		for _, node := range nodes {
			if outDegree[node.ID] == 0 {
				danglingSum += rank[node.ID]
			}
		}
		for _, node := range nodes {
			sum := 0.0
			for _, src := range incoming[node.ID] {
				sum += rank[src] / float64(outDegree[src])
			}
			next[node.ID] = base + damping*(sum+danglingSum/float64(n))
		}
		rank = next
	}
	return rank, nil
}
