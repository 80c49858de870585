package graph

import (
	"sync"

	"github.com/deepskilling/deepgraph/pkg/mvcc"
)

// NodeChain and EdgeChain are the MVCC version chains for the two record
// kinds DeepGraph stores.
type NodeChain = mvcc.Chain[Node]
type EdgeChain = mvcc.Chain[Edge]

// Index is the in-memory structural index over every node and edge chain:
// id lookup, label membership, and adjacency. It holds no transaction or
// durability logic of its own — pkg/txn and pkg/engine drive it — mirroring
// the teacher's MemoryEngine (pkg/storage/memory.go), which is itself "just"
// a set of maps guarded by one mutex, generalized here to hold version
// chains instead of bare records and to track adjacency per-direction
// separately (the teacher keeps outgoingEdges/incomingEdges as two maps;
// Index keeps the same shape).
type Index struct {
	mu sync.RWMutex

	nodes map[NodeID]*NodeChain
	edges map[EdgeID]*EdgeChain

	labelIndex map[string]map[NodeID]struct{}
	typeIndex  map[string]map[EdgeID]struct{}

	outgoing map[NodeID]map[EdgeID]struct{}
	incoming map[NodeID]map[EdgeID]struct{}
}

// Clear empties every map in place, preserving the *Index pointer identity
// so callers that already hold a reference (pkg/txn.Coordinator chief among
// them) keep operating on the same, now-empty, structure rather than a
// stale one.
func (ix *Index) Clear() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.nodes = make(map[NodeID]*NodeChain)
	ix.edges = make(map[EdgeID]*EdgeChain)
	ix.labelIndex = make(map[string]map[NodeID]struct{})
	ix.typeIndex = make(map[string]map[EdgeID]struct{})
	ix.outgoing = make(map[NodeID]map[EdgeID]struct{})
	ix.incoming = make(map[NodeID]map[EdgeID]struct{})
}

func NewIndex() *Index {
	return &Index{
		nodes:      make(map[NodeID]*NodeChain),
		edges:      make(map[EdgeID]*EdgeChain),
		labelIndex: make(map[string]map[NodeID]struct{}),
		typeIndex:  make(map[string]map[EdgeID]struct{}),
		outgoing:   make(map[NodeID]map[EdgeID]struct{}),
		incoming:   make(map[NodeID]map[EdgeID]struct{}),
	}
}

// PutNode installs a new version for id, creating its chain on first write,
// and updates the label index to match the new label set.
func (ix *Index) PutNode(ts mvcc.Timestamp, n Node) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	chain, ok := ix.nodes[n.ID]
	if !ok {
		chain = mvcc.NewChain[Node](ts, n)
		ix.nodes[n.ID] = chain
	} else {
		if prev, ok := chain.ReadAt(ts); ok {
			for l := range prev.Labels {
				if !n.Labels.Has(l) {
					ix.unindexLabel(l, n.ID)
				}
			}
		}
		chain.AppendVersion(ts, n)
	}
	for l := range n.Labels {
		ix.indexLabel(l, n.ID)
	}
}

func (ix *Index) indexLabel(label string, id NodeID) {
	set, ok := ix.labelIndex[label]
	if !ok {
		set = make(map[NodeID]struct{})
		ix.labelIndex[label] = set
	}
	set[id] = struct{}{}
}

func (ix *Index) unindexLabel(label string, id NodeID) {
	if set, ok := ix.labelIndex[label]; ok {
		delete(set, id)
	}
}

// DeleteNode marks the node's chain deleted at ts. The chain and its label
// memberships are left in place for snapshots predating ts; live lookups
// (NodesWithLabel et al.) filter on current visibility separately.
func (ix *Index) DeleteNode(ts mvcc.Timestamp, id NodeID) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	chain, ok := ix.nodes[id]
	if !ok {
		return
	}
	chain.MarkDeleted(ts)
}

func (ix *Index) GetNode(ts mvcc.Timestamp, id NodeID) (Node, bool) {
	ix.mu.RLock()
	chain, ok := ix.nodes[id]
	ix.mu.RUnlock()
	if !ok {
		return Node{}, false
	}
	return chain.ReadAt(ts)
}

func (ix *Index) NodeChainFor(id NodeID) (*NodeChain, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	c, ok := ix.nodes[id]
	return c, ok
}

func (ix *Index) EdgeChainFor(id EdgeID) (*EdgeChain, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	c, ok := ix.edges[id]
	return c, ok
}

// NodesWithLabel returns every node id ever tagged with label whose chain
// is visible at ts — callers must still ReadAt to confirm liveness since
// labels aren't un-indexed until a later version removes them.
func (ix *Index) NodesWithLabel(ts mvcc.Timestamp, label string) []NodeID {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	set := ix.labelIndex[label]
	out := make([]NodeID, 0, len(set))
	for id := range set {
		if chain, ok := ix.nodes[id]; ok {
			if _, visible := chain.ReadAt(ts); visible {
				out = append(out, id)
			}
		}
	}
	return out
}

// AllNodeIDs returns every node id ever created, for full scans when no
// label predicate narrows the search.
func (ix *Index) AllNodeIDs() []NodeID {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]NodeID, 0, len(ix.nodes))
	for id := range ix.nodes {
		out = append(out, id)
	}
	return out
}

// AllEdgeIDs returns every edge id ever created, for full scans when no
// type predicate narrows the search.
func (ix *Index) AllEdgeIDs() []EdgeID {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]EdgeID, 0, len(ix.edges))
	for id := range ix.edges {
		out = append(out, id)
	}
	return out
}

// EdgesWithType returns every edge id ever tagged with typ whose chain is
// visible at ts, mirroring NodesWithLabel for the type index.
func (ix *Index) EdgesWithType(ts mvcc.Timestamp, typ string) []EdgeID {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	set := ix.typeIndex[typ]
	out := make([]EdgeID, 0, len(set))
	for id := range set {
		if chain, ok := ix.edges[id]; ok {
			if _, visible := chain.ReadAt(ts); visible {
				out = append(out, id)
			}
		}
	}
	return out
}

func (ix *Index) PutEdge(ts mvcc.Timestamp, e Edge) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	chain, ok := ix.edges[e.ID]
	if !ok {
		chain = mvcc.NewChain[Edge](ts, e)
		ix.edges[e.ID] = chain
		ix.indexAdjacency(e)
	} else {
		chain.AppendVersion(ts, e)
	}
	ix.indexType(e.Type, e.ID)
}

func (ix *Index) indexAdjacency(e Edge) {
	if ix.outgoing[e.From] == nil {
		ix.outgoing[e.From] = make(map[EdgeID]struct{})
	}
	ix.outgoing[e.From][e.ID] = struct{}{}
	if ix.incoming[e.To] == nil {
		ix.incoming[e.To] = make(map[EdgeID]struct{})
	}
	ix.incoming[e.To][e.ID] = struct{}{}
}

func (ix *Index) indexType(typ string, id EdgeID) {
	set, ok := ix.typeIndex[typ]
	if !ok {
		set = make(map[EdgeID]struct{})
		ix.typeIndex[typ] = set
	}
	set[id] = struct{}{}
}

func (ix *Index) DeleteEdge(ts mvcc.Timestamp, id EdgeID) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	chain, ok := ix.edges[id]
	if !ok {
		return
	}
	chain.MarkDeleted(ts)
}

func (ix *Index) GetEdge(ts mvcc.Timestamp, id EdgeID) (Edge, bool) {
	ix.mu.RLock()
	chain, ok := ix.edges[id]
	ix.mu.RUnlock()
	if !ok {
		return Edge{}, false
	}
	return chain.ReadAt(ts)
}

// Adjacent returns every edge id incident to node id in the given
// direction, visible at ts.
func (ix *Index) Adjacent(ts mvcc.Timestamp, id NodeID, dir Direction) []EdgeID {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var out []EdgeID
	collect := func(set map[EdgeID]struct{}) {
		for eid := range set {
			if chain, ok := ix.edges[eid]; ok {
				if _, visible := chain.ReadAt(ts); visible {
					out = append(out, eid)
				}
			}
		}
	}
	if dir == DirOutgoing || dir == DirBoth {
		collect(ix.outgoing[id])
	}
	if dir == DirIncoming || dir == DirBoth {
		collect(ix.incoming[id])
	}
	return out
}
