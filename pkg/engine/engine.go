// Package engine implements DeepGraph's public storage facade: the single
// entry point spec.md §4.1 describes (add_node/get_node/.../clear/
// execute_cypher), wiring together pkg/graph's structural index, pkg/mvcc's
// snapshots, pkg/lock's two-phase locking, pkg/wal's durability, pkg/secidx's
// secondary indexes, and pkg/cypher/pkg/planner/pkg/executor's query
// pipeline behind one API surface.
//
// Grounded on pkg/storage/types.go's Engine interface (the method set:
// CreateNode/GetNode/UpdateNode/DeleteNode/..., NodeCount/EdgeCount, Clear)
// and pkg/storage/memory.go's implementation shape (sentinel errors via
// errors.New, fmt.Errorf("%w", ...) wrapping), generalized so every write
// runs as a single auto-committed transaction through pkg/txn.Coordinator
// instead of mutating bare maps directly.
package engine

import (
	"context"
	"os"
	"sort"

	"github.com/deepskilling/deepgraph/pkg/executor"
	"github.com/deepskilling/deepgraph/pkg/graph"
	"github.com/deepskilling/deepgraph/pkg/lock"
	"github.com/deepskilling/deepgraph/pkg/mvcc"
	"github.com/deepskilling/deepgraph/pkg/secidx"
	"github.com/deepskilling/deepgraph/pkg/txn"
	"github.com/deepskilling/deepgraph/pkg/wal"
)

// GraphStorage is DeepGraph's in-memory storage facade: the structural
// index lives only in process memory, but every write still passes through
// a WAL so a crash can be replayed into a fresh GraphStorage opened at the
// same directory. DiskStorage (disk.go) layers a page store on top for
// size-on-disk accounting and slower, fully-durable operation.
type GraphStorage struct {
	index     *graph.Index
	clock     *mvcc.Clock
	locks     *lock.Manager
	log       *wal.WAL
	coord     *txn.Coordinator
	secondary *secidx.Manager
}

// Open creates or reopens a GraphStorage rooted at dir: <dir>/wal holds the
// write-ahead log. If dir already contains a WAL, its committed
// transactions are replayed to rebuild the in-memory index before new
// writes are accepted (spec.md §4.7 Replay).
func Open(dir string) (*GraphStorage, error) {
	walDir := dir + "/wal"
	index := graph.NewIndex()
	clock := mvcc.NewClock()

	if err := txn.Recover(walDir, index, clock); err != nil {
		return nil, newError(KindDurability, "Open", err)
	}

	secondary := secidx.NewManagerWithBadgerDir(dir + "/secidx-badger")
	if err := recoverIndexes(walDir, secondary); err != nil {
		return nil, newError(KindDurability, "Open", err)
	}

	log, err := wal.Open(wal.DefaultConfig(walDir))
	if err != nil {
		return nil, newError(KindDurability, "Open", err)
	}

	locks := lock.NewManager()
	g := &GraphStorage{
		index:     index,
		clock:     clock,
		locks:     locks,
		log:       log,
		coord:     txn.NewCoordinator(index, locks, clock, log),
		secondary: secondary,
	}
	for _, desc := range secondary.Descriptors() {
		idx, _ := secondary.Get(desc.Name)
		g.backfill(idx, desc)
	}
	return g, nil
}

// recoverIndexes replays a WAL's index DDL records (KindCreateIndex,
// KindDropIndex) to rebuild the secondary-index namespace, since
// txn.Recover only replays node/edge DML into the structural index
// (spec.md §4.3: "Index state is recovered by replaying the WAL: the WAL
// records DDL (create/drop) as well as DML").
func recoverIndexes(dir string, secondary *secidx.Manager) error {
	return wal.Replay(dir, func(r wal.Record) {
		switch r.Kind {
		case wal.KindCreateIndex:
			if desc, ok := decodeDescriptor(r.Payload); ok {
				_, _ = secondary.Create(desc)
			}
		case wal.KindDropIndex:
			if name, ok := decodeDropIndex(r.Payload); ok {
				_ = secondary.Drop(name)
			}
		}
	})
}

// OpenInMemory opens a GraphStorage backed by a throwaway WAL directory
// under the OS temp dir, for callers that want transactional semantics
// (locking, snapshot isolation, atomic commit) without any expectation of
// surviving a process restart.
func OpenInMemory() (*GraphStorage, error) {
	dir, err := os.MkdirTemp("", "deepgraph-mem-*")
	if err != nil {
		return nil, newError(KindInternal, "OpenInMemory", err)
	}
	return Open(dir)
}

// Close flushes and closes the WAL. The in-memory index itself needs no
// explicit release.
func (g *GraphStorage) Close() error {
	if err := g.log.Close(); err != nil {
		return newError(KindDurability, "Close", err)
	}
	return nil
}

func (g *GraphStorage) snapshotTS() mvcc.Timestamp { return g.clock.Current() }

// reader adapts a GraphStorage to executor.Reader. It is a distinct type
// (rather than methods on GraphStorage itself) so the facade's public
// methods can keep spec.md's own names (GetNode(id), not GetNode(ts, id)).
type reader struct{ g *GraphStorage }

func (r reader) Snapshot() mvcc.Snapshot { return mvcc.Snapshot{TS: r.g.snapshotTS()} }

func (r reader) GetNode(ts mvcc.Timestamp, id graph.NodeID) (graph.Node, bool) {
	return r.g.index.GetNode(ts, id)
}

func (r reader) GetEdge(ts mvcc.Timestamp, id graph.EdgeID) (graph.Edge, bool) {
	return r.g.index.GetEdge(ts, id)
}

func (r reader) NodesWithLabel(ts mvcc.Timestamp, label string) []graph.NodeID {
	return r.g.index.NodesWithLabel(ts, label)
}

func (r reader) AllNodeIDs() []graph.NodeID { return r.g.index.AllNodeIDs() }

func (r reader) Adjacent(ts mvcc.Timestamp, id graph.NodeID, dir graph.Direction) []graph.EdgeID {
	return r.g.index.Adjacent(ts, id, dir)
}

func (r reader) Index(name string) (secidx.Descriptor, secidx.Index, bool) {
	idx, ok := r.g.secondary.Get(name)
	if !ok {
		return secidx.Descriptor{}, secidx.Index{}, false
	}
	return idx.Descriptor(), *idx, true
}

var _ executor.Reader = reader{}

// ---- node operations (spec.md §4.1) ----

// AddNode creates a node with the given labels and properties, returning
// its freshly minted id.
func (g *GraphStorage) AddNode(labels []string, props graph.PropertyMap) (graph.NodeID, error) {
	ctx := context.Background()
	t, err := g.coord.Begin(ctx)
	if err != nil {
		return graph.NodeID{}, classifyTxnErr("AddNode", err)
	}
	n := graph.Node{ID: graph.NewNodeID(), Labels: graph.NewLabelSet(labels...), Props: props.Clone()}
	if err := g.coord.CreateNode(ctx, t, n); err != nil {
		_ = g.coord.Abort(ctx, t)
		return graph.NodeID{}, classifyTxnErr("AddNode", err)
	}
	if err := g.coord.Commit(ctx, t); err != nil {
		return graph.NodeID{}, classifyTxnErr("AddNode", err)
	}
	g.indexNode(n)
	return n.ID, nil
}

// GetNode returns the node visible at the engine's current snapshot. Reads
// never error on a missing id; they return ok=false (spec.md §4.1
// "invalid-id lookup returns not present").
func (g *GraphStorage) GetNode(id graph.NodeID) (graph.Node, bool) {
	return g.index.GetNode(g.snapshotTS(), id)
}

// UpdateNode merges delta into the node's properties ("update_* semantics:
// merge", spec.md §4.1); an empty delta is a no-op (§9 Open Question).
// Unlike reads, updating an unknown id is an error.
func (g *GraphStorage) UpdateNode(id graph.NodeID, delta graph.PropertyMap) error {
	ctx := context.Background()
	cur, ok := g.GetNode(id)
	if !ok {
		return newError(KindNotFound, "UpdateNode", nil)
	}
	if len(delta) == 0 {
		return nil
	}
	t, err := g.coord.Begin(ctx)
	if err != nil {
		return classifyTxnErr("UpdateNode", err)
	}
	updated := cur.WithProps(delta)
	if err := g.coord.UpdateNode(ctx, t, updated); err != nil {
		_ = g.coord.Abort(ctx, t)
		return classifyTxnErr("UpdateNode", err)
	}
	if err := g.coord.Commit(ctx, t); err != nil {
		return classifyTxnErr("UpdateNode", err)
	}
	g.reindexNode(cur, updated)
	return nil
}

// DeleteNode removes a node and, per spec.md §4.1, cascades: every edge
// incident on it (incoming or outgoing) is deleted atomically in the same
// transaction.
func (g *GraphStorage) DeleteNode(id graph.NodeID) error {
	ctx := context.Background()
	cur, ok := g.GetNode(id)
	if !ok {
		return newError(KindNotFound, "DeleteNode", nil)
	}
	incident := g.index.Adjacent(g.snapshotTS(), id, graph.DirBoth)
	edges := make([]graph.Edge, 0, len(incident))
	for _, eid := range incident {
		if e, ok := g.index.GetEdge(g.snapshotTS(), eid); ok {
			edges = append(edges, e)
		}
	}

	t, err := g.coord.Begin(ctx)
	if err != nil {
		return classifyTxnErr("DeleteNode", err)
	}
	for _, e := range edges {
		if err := g.coord.DeleteEdge(ctx, t, e.ID); err != nil {
			_ = g.coord.Abort(ctx, t)
			return classifyTxnErr("DeleteNode", err)
		}
	}
	if err := g.coord.DeleteNode(ctx, t, id); err != nil {
		_ = g.coord.Abort(ctx, t)
		return classifyTxnErr("DeleteNode", err)
	}
	if err := g.coord.Commit(ctx, t); err != nil {
		return classifyTxnErr("DeleteNode", err)
	}
	for _, e := range edges {
		g.unindexEdge(e)
	}
	g.unindexNode(cur)
	return nil
}

// ---- edge operations (spec.md §4.1) ----

// AddEdge creates a directed, typed edge between two existing nodes.
// Either endpoint not existing is a KindNotFound error.
func (g *GraphStorage) AddEdge(src, dst graph.NodeID, typ string, props graph.PropertyMap) (graph.EdgeID, error) {
	if _, ok := g.GetNode(src); !ok {
		return graph.EdgeID{}, newError(KindNotFound, "AddEdge", nil)
	}
	if _, ok := g.GetNode(dst); !ok {
		return graph.EdgeID{}, newError(KindNotFound, "AddEdge", nil)
	}
	ctx := context.Background()
	t, err := g.coord.Begin(ctx)
	if err != nil {
		return graph.EdgeID{}, classifyTxnErr("AddEdge", err)
	}
	e := graph.Edge{ID: graph.NewEdgeID(), Type: typ, From: src, To: dst, Props: props.Clone()}
	if err := g.coord.CreateEdge(ctx, t, e); err != nil {
		_ = g.coord.Abort(ctx, t)
		return graph.EdgeID{}, classifyTxnErr("AddEdge", err)
	}
	if err := g.coord.Commit(ctx, t); err != nil {
		return graph.EdgeID{}, classifyTxnErr("AddEdge", err)
	}
	g.indexEdge(e)
	return e.ID, nil
}

func (g *GraphStorage) GetEdge(id graph.EdgeID) (graph.Edge, bool) {
	return g.index.GetEdge(g.snapshotTS(), id)
}

func (g *GraphStorage) UpdateEdge(id graph.EdgeID, delta graph.PropertyMap) error {
	ctx := context.Background()
	cur, ok := g.GetEdge(id)
	if !ok {
		return newError(KindNotFound, "UpdateEdge", nil)
	}
	if len(delta) == 0 {
		return nil
	}
	t, err := g.coord.Begin(ctx)
	if err != nil {
		return classifyTxnErr("UpdateEdge", err)
	}
	updated := cur.WithProps(delta)
	if err := g.coord.UpdateEdge(ctx, t, updated); err != nil {
		_ = g.coord.Abort(ctx, t)
		return classifyTxnErr("UpdateEdge", err)
	}
	if err := g.coord.Commit(ctx, t); err != nil {
		return classifyTxnErr("UpdateEdge", err)
	}
	g.reindexEdge(cur, updated)
	return nil
}

func (g *GraphStorage) DeleteEdge(id graph.EdgeID) error {
	ctx := context.Background()
	cur, ok := g.GetEdge(id)
	if !ok {
		return newError(KindNotFound, "DeleteEdge", nil)
	}
	t, err := g.coord.Begin(ctx)
	if err != nil {
		return classifyTxnErr("DeleteEdge", err)
	}
	if err := g.coord.DeleteEdge(ctx, t, id); err != nil {
		_ = g.coord.Abort(ctx, t)
		return classifyTxnErr("DeleteEdge", err)
	}
	if err := g.coord.Commit(ctx, t); err != nil {
		return classifyTxnErr("DeleteEdge", err)
	}
	g.unindexEdge(cur)
	return nil
}

// GetOutgoingEdges and GetIncomingEdges return the live edges incident on
// id in the requested direction, in a stable order within this snapshot
// (spec.md §4.1 ordering guarantee).
func (g *GraphStorage) GetOutgoingEdges(id graph.NodeID) ([]graph.Edge, error) {
	return g.edgesInDirection(id, graph.DirOutgoing, "GetOutgoingEdges")
}

func (g *GraphStorage) GetIncomingEdges(id graph.NodeID) ([]graph.Edge, error) {
	return g.edgesInDirection(id, graph.DirIncoming, "GetIncomingEdges")
}

func (g *GraphStorage) edgesInDirection(id graph.NodeID, dir graph.Direction, op string) ([]graph.Edge, error) {
	if _, ok := g.GetNode(id); !ok {
		return nil, newError(KindNotFound, op, nil)
	}
	ts := g.snapshotTS()
	ids := g.index.Adjacent(ts, id, dir)
	out := make([]graph.Edge, 0, len(ids))
	for _, eid := range ids {
		if e, ok := g.index.GetEdge(ts, eid); ok {
			out = append(out, e)
		}
	}
	sortEdges(out)
	return out, nil
}

// ---- scans (spec.md §4.1 / §4.2) ----

func (g *GraphStorage) FindNodesByLabel(label string) []graph.Node {
	ts := g.snapshotTS()
	ids := g.index.NodesWithLabel(ts, label)
	out := make([]graph.Node, 0, len(ids))
	for _, id := range ids {
		if n, ok := g.index.GetNode(ts, id); ok {
			out = append(out, n)
		}
	}
	sortNodes(out)
	return out
}

// FindNodesByProperty scans every live node for key == value (spec.md
// §4.2: O(N) fallback; a hash secondary index created on (label, key)
// serves the same query in O(1) via ExecuteCypher's planner, but this
// facade method always scans since it has no label to narrow by).
func (g *GraphStorage) FindNodesByProperty(key string, value graph.Value) []graph.Node {
	ts := g.snapshotTS()
	var out []graph.Node
	for _, id := range g.index.AllNodeIDs() {
		n, ok := g.index.GetNode(ts, id)
		if !ok {
			continue
		}
		if v, ok := n.Props[key]; ok && v.Equal(value) {
			out = append(out, n)
		}
	}
	sortNodes(out)
	return out
}

func (g *GraphStorage) FindEdgesByType(typ string) []graph.Edge {
	ts := g.snapshotTS()
	ids := g.index.EdgesWithType(ts, typ)
	out := make([]graph.Edge, 0, len(ids))
	for _, id := range ids {
		if e, ok := g.index.GetEdge(ts, id); ok {
			out = append(out, e)
		}
	}
	sortEdges(out)
	return out
}

func (g *GraphStorage) GetAllNodes() []graph.Node {
	ts := g.snapshotTS()
	ids := g.index.AllNodeIDs()
	out := make([]graph.Node, 0, len(ids))
	for _, id := range ids {
		if n, ok := g.index.GetNode(ts, id); ok {
			out = append(out, n)
		}
	}
	sortNodes(out)
	return out
}

func (g *GraphStorage) GetAllEdges() []graph.Edge {
	ts := g.snapshotTS()
	ids := g.index.AllEdgeIDs()
	out := make([]graph.Edge, 0, len(ids))
	for _, id := range ids {
		if e, ok := g.index.GetEdge(ts, id); ok {
			out = append(out, e)
		}
	}
	sortEdges(out)
	return out
}

func (g *GraphStorage) NodeCount() int { return len(g.GetAllNodes()) }
func (g *GraphStorage) EdgeCount() int { return len(g.GetAllEdges()) }

// Clear empties the graph and every secondary index. Clear is itself not a
// transaction: it replaces the structural index and secondary-index
// namespace wholesale rather than deleting entity-by-entity, matching the
// teacher's MemoryEngine.Clear (a single mutex-guarded map reset).
func (g *GraphStorage) Clear() error {
	g.index.Clear()
	g.secondary.Clear()
	return nil
}

func sortNodes(nodes []graph.Node) {
	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].ID.String() < nodes[j].ID.String() })
}

func sortEdges(edges []graph.Edge) {
	sort.SliceStable(edges, func(i, j int) bool { return edges[i].ID.String() < edges[j].ID.String() })
}
