// Package txn implements DeepGraph's transaction coordinator: begin/commit/
// abort lifecycle, lock acquisition through pkg/lock, commit-timestamp
// assignment through pkg/mvcc, write-ahead logging through pkg/wal, and
// read-your-writes buffering within an open transaction.
//
// Grounded on pkg/storage/transaction.go's Transaction type: buffered
// Operations, pendingNodes/pendingEdges/deletedNodes/deletedEdges maps for
// read-your-writes, Commit/Rollback, and SetMetadata/GetMetadata (kept at
// the teacher's 2048-character limit, a Neo4j tx.setMetaData
// compatibility constant worth preserving even without a Neo4j-compat
// surface, since it's a reasonable bound on its own). Unlike the teacher,
// which applies a transaction's buffered operations directly against
// MemoryEngine's maps under its single mutex, Coordinator drives
// pkg/lock for isolation and pkg/mvcc for snapshot visibility, and appends
// every operation to pkg/wal before it becomes visible to other
// transactions.
package txn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/deepskilling/deepgraph/pkg/graph"
	"github.com/deepskilling/deepgraph/pkg/lock"
	"github.com/deepskilling/deepgraph/pkg/mvcc"
	"github.com/deepskilling/deepgraph/pkg/wal"
)

const maxMetadataLen = 2048

var (
	ErrNoTransaction     = errors.New("txn: no active transaction")
	ErrTransactionClosed = errors.New("txn: transaction already committed or aborted")
	ErrMetadataTooLarge  = errors.New("txn: metadata exceeds 2048 characters")
)

// Status mirrors the teacher's TransactionStatus enum.
type Status string

const (
	StatusActive    Status = "active"
	StatusCommitted Status = "committed"
	StatusAborted   Status = "aborted"
)

type opKind uint8

const (
	opCreateNode opKind = iota
	opUpdateNode
	opDeleteNode
	opCreateEdge
	opUpdateEdge
	opDeleteEdge
)

type operation struct {
	kind opKind
	ts   time.Time
	node graph.Node
	edge graph.Edge
}

// Transaction is one open unit of work. All reads and writes issued through
// it see a consistent snapshot (its Begin-time commit timestamp) plus its
// own uncommitted writes (read-your-writes), and become visible to other
// transactions only at Commit.
type Transaction struct {
	mu sync.Mutex

	id       lock.TxnID
	status   Status
	snapshot mvcc.Snapshot
	started  time.Time

	coord *Coordinator

	ops []operation

	pendingNodes map[graph.NodeID]graph.Node
	deletedNodes map[graph.NodeID]struct{}
	pendingEdges map[graph.EdgeID]graph.Edge
	deletedEdges map[graph.EdgeID]struct{}

	metadata map[string]string
}

func (t *Transaction) ID() lock.TxnID  { return t.id }
func (t *Transaction) Status() Status  { return t.status }

// SetMetadata attaches a single key/value pair, matching Neo4j's
// tx.setMetaData() compatibility surface in the teacher.
func (t *Transaction) SetMetadata(key, value string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(value) > maxMetadataLen {
		return ErrMetadataTooLarge
	}
	if t.metadata == nil {
		t.metadata = make(map[string]string)
	}
	t.metadata[key] = value
	return nil
}

func (t *Transaction) GetMetadata(key string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.metadata[key]
	return v, ok
}

// Coordinator owns the shared machinery every transaction uses: the lock
// table, the commit-timestamp clock, the WAL, and the structural index.
type Coordinator struct {
	index *graph.Index
	locks *lock.Manager
	clock *mvcc.Clock
	log   *wal.WAL

	nextTxnID atomic.Uint64

	mu     sync.Mutex
	active map[lock.TxnID]*Transaction
}

func NewCoordinator(index *graph.Index, locks *lock.Manager, clock *mvcc.Clock, log *wal.WAL) *Coordinator {
	c := &Coordinator{index: index, locks: locks, clock: clock, log: log, active: make(map[lock.TxnID]*Transaction)}
	c.nextTxnID.Store(1)
	return c
}

// Begin starts a new transaction. The returned TxnID is a sequential
// positive integer, matching the original implementation's
// begin_transaction() contract (original_source/PyRustTest/test_2_transactions.py).
func (c *Coordinator) Begin(ctx context.Context) (*Transaction, error) {
	id := lock.TxnID(c.nextTxnID.Add(1) - 1)
	t := &Transaction{
		id:           id,
		status:       StatusActive,
		snapshot:     mvcc.Snapshot{TS: c.clock.Current()},
		started:      time.Now(),
		coord:        c,
		pendingNodes: make(map[graph.NodeID]graph.Node),
		deletedNodes: make(map[graph.NodeID]struct{}),
		pendingEdges: make(map[graph.EdgeID]graph.Edge),
		deletedEdges: make(map[graph.EdgeID]struct{}),
	}
	if _, err := c.log.Append(wal.KindBeginTxn, uint64(id), nil); err != nil {
		return nil, fmt.Errorf("txn: begin: %w", err)
	}
	c.mu.Lock()
	c.active[id] = t
	c.mu.Unlock()
	return t, nil
}

func (c *Coordinator) lockNode(ctx context.Context, t *Transaction, id graph.NodeID, mode lock.Mode) error {
	return c.locks.Acquire(ctx, t.id, lock.ResourceKey("node:"+id.String()), mode)
}

func (c *Coordinator) lockEdge(ctx context.Context, t *Transaction, id graph.EdgeID, mode lock.Mode) error {
	return c.locks.Acquire(ctx, t.id, lock.ResourceKey("edge:"+id.String()), mode)
}

// ReadNode returns the node visible to t: its own pending write, its own
// pending delete, or the most recent committed version at t's snapshot.
func (c *Coordinator) ReadNode(t *Transaction, id graph.NodeID) (graph.Node, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, deleted := t.deletedNodes[id]; deleted {
		return graph.Node{}, false
	}
	if n, ok := t.pendingNodes[id]; ok {
		return n, true
	}
	return c.index.GetNode(t.snapshot.TS, id)
}

func (c *Coordinator) ReadEdge(t *Transaction, id graph.EdgeID) (graph.Edge, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, deleted := t.deletedEdges[id]; deleted {
		return graph.Edge{}, false
	}
	if e, ok := t.pendingEdges[id]; ok {
		return e, true
	}
	return c.index.GetEdge(t.snapshot.TS, id)
}

// CreateNode stages a new node for creation, acquiring an exclusive lock on
// its (freshly minted) id — contention is impossible on a fresh id, so this
// never blocks, but still registers the hold for Release at commit/abort.
func (c *Coordinator) CreateNode(ctx context.Context, t *Transaction, n graph.Node) error {
	if n.ID.IsZero() {
		n.ID = graph.NewNodeID()
	}
	if err := c.lockNode(ctx, t, n.ID, lock.Exclusive); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pendingNodes[n.ID] = n
	t.ops = append(t.ops, operation{kind: opCreateNode, ts: time.Now(), node: n})
	return nil
}

func (c *Coordinator) UpdateNode(ctx context.Context, t *Transaction, n graph.Node) error {
	if err := c.lockNode(ctx, t, n.ID, lock.Exclusive); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pendingNodes[n.ID] = n
	t.ops = append(t.ops, operation{kind: opUpdateNode, ts: time.Now(), node: n})
	return nil
}

func (c *Coordinator) DeleteNode(ctx context.Context, t *Transaction, id graph.NodeID) error {
	if err := c.lockNode(ctx, t, id, lock.Exclusive); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pendingNodes, id)
	t.deletedNodes[id] = struct{}{}
	t.ops = append(t.ops, operation{kind: opDeleteNode, ts: time.Now(), node: graph.Node{ID: id}})
	return nil
}

func (c *Coordinator) CreateEdge(ctx context.Context, t *Transaction, e graph.Edge) error {
	if e.ID.IsZero() {
		e.ID = graph.NewEdgeID()
	}
	if err := c.lockEdge(ctx, t, e.ID, lock.Exclusive); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pendingEdges[e.ID] = e
	t.ops = append(t.ops, operation{kind: opCreateEdge, ts: time.Now(), edge: e})
	return nil
}

func (c *Coordinator) UpdateEdge(ctx context.Context, t *Transaction, e graph.Edge) error {
	if err := c.lockEdge(ctx, t, e.ID, lock.Exclusive); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pendingEdges[e.ID] = e
	t.ops = append(t.ops, operation{kind: opUpdateEdge, ts: time.Now(), edge: e})
	return nil
}

func (c *Coordinator) DeleteEdge(ctx context.Context, t *Transaction, id graph.EdgeID) error {
	if err := c.lockEdge(ctx, t, id, lock.Exclusive); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pendingEdges, id)
	t.deletedEdges[id] = struct{}{}
	t.ops = append(t.ops, operation{kind: opDeleteEdge, ts: time.Now(), edge: graph.Edge{ID: id}})
	return nil
}

// Commit assigns a commit timestamp, appends every staged operation plus a
// commit marker to the WAL, applies the writes to the structural index, and
// releases all of t's locks. Commit is atomic from the perspective of other
// transactions: no partial write set is ever observable mid-commit because
// the index mutations happen while t still holds every exclusive lock it
// acquired.
func (c *Coordinator) Commit(ctx context.Context, t *Transaction) error {
	t.mu.Lock()
	if t.status != StatusActive {
		t.mu.Unlock()
		return ErrTransactionClosed
	}
	ops := t.ops
	t.mu.Unlock()

	ts := c.clock.Next()

	for _, op := range ops {
		if err := c.appendWAL(t.id, op); err != nil {
			return err
		}
	}
	if _, err := c.log.Append(wal.KindCommitTxn, uint64(t.id), encodeTimestamp(ts)); err != nil {
		return fmt.Errorf("txn: commit: %w", err)
	}

	for _, op := range ops {
		c.applyOp(ts, op)
	}

	t.mu.Lock()
	t.status = StatusCommitted
	t.mu.Unlock()

	c.locks.Release(t.id)
	c.mu.Lock()
	delete(c.active, t.id)
	c.mu.Unlock()
	return nil
}

func (c *Coordinator) applyOp(ts mvcc.Timestamp, op operation) {
	switch op.kind {
	case opCreateNode, opUpdateNode:
		c.index.PutNode(ts, op.node)
	case opDeleteNode:
		c.index.DeleteNode(ts, op.node.ID)
	case opCreateEdge, opUpdateEdge:
		c.index.PutEdge(ts, op.edge)
	case opDeleteEdge:
		c.index.DeleteEdge(ts, op.edge.ID)
	}
}

func (c *Coordinator) appendWAL(id lock.TxnID, op operation) error {
	var kind wal.RecordKind
	var payload []byte
	switch op.kind {
	case opCreateNode:
		kind, payload = wal.KindCreateNode, encodeNode(op.node)
	case opUpdateNode:
		kind, payload = wal.KindUpdateNode, encodeNode(op.node)
	case opDeleteNode:
		kind, payload = wal.KindDeleteNode, []byte(op.node.ID.String())
	case opCreateEdge:
		kind, payload = wal.KindCreateEdge, encodeEdge(op.edge)
	case opUpdateEdge:
		kind, payload = wal.KindUpdateEdge, encodeEdge(op.edge)
	case opDeleteEdge:
		kind, payload = wal.KindDeleteEdge, []byte(op.edge.ID.String())
	}
	_, err := c.log.Append(kind, uint64(id), payload)
	return err
}

// Abort discards every staged operation and releases t's locks without
// touching the structural index.
func (c *Coordinator) Abort(ctx context.Context, t *Transaction) error {
	t.mu.Lock()
	if t.status != StatusActive {
		t.mu.Unlock()
		return ErrTransactionClosed
	}
	t.status = StatusAborted
	t.mu.Unlock()

	if _, err := c.log.Append(wal.KindAbortTxn, uint64(t.id), nil); err != nil {
		return fmt.Errorf("txn: abort: %w", err)
	}
	c.locks.Release(t.id)
	c.mu.Lock()
	delete(c.active, t.id)
	c.mu.Unlock()
	return nil
}
