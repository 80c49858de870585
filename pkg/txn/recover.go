package txn

import (
	"fmt"

	"github.com/deepskilling/deepgraph/pkg/graph"
	"github.com/deepskilling/deepgraph/pkg/mvcc"
	"github.com/deepskilling/deepgraph/pkg/wal"
)

// Recover replays every WAL segment in dir and rebuilds index, assigning a
// fresh commit timestamp per committed transaction from clock. Operations
// belonging to a transaction that never reached a KindCommitTxn record (a
// crash mid-transaction) are discarded, matching spec.md's atomic-recovery
// invariant: a replayed transaction is all-or-nothing.
//
// Grounded on pkg/storage/wal.go's RecoverFromWAL function shape (read the
// log once, replay each entry against the engine) generalized to buffer a
// transaction's operations until its commit marker is seen, since
// DeepGraph's WAL (unlike the teacher's) can contain aborted or
// crash-truncated transactions that must not be applied.
func Recover(dir string, index *graph.Index, clock *mvcc.Clock) error {
	pending := make(map[uint64][]wal.Record)

	err := wal.Replay(dir, func(r wal.Record) {
		switch r.Kind {
		case wal.KindBeginTxn:
			pending[r.TxnID] = nil
		case wal.KindCommitTxn:
			ops := pending[r.TxnID]
			delete(pending, r.TxnID)
			ts := clock.Next()
			for _, op := range ops {
				applyRecoveredOp(index, ts, op)
			}
		case wal.KindAbortTxn:
			delete(pending, r.TxnID)
		case wal.KindCheckpoint:
			// no-op: nothing truncates the log at a checkpoint, so
			// Recover replays every record of every segment.
		default:
			pending[r.TxnID] = append(pending[r.TxnID], r)
		}
	})
	if err != nil {
		return fmt.Errorf("txn: recover: %w", err)
	}
	return nil
}

func applyRecoveredOp(index *graph.Index, ts mvcc.Timestamp, r wal.Record) {
	switch r.Kind {
	case wal.KindCreateNode, wal.KindUpdateNode:
		if n, err := decodeNode(r.Payload); err == nil {
			index.PutNode(ts, n)
		}
	case wal.KindDeleteNode:
		if id, err := graph.ParseNodeID(string(r.Payload)); err == nil {
			index.DeleteNode(ts, id)
		}
	case wal.KindCreateEdge, wal.KindUpdateEdge:
		if e, err := decodeEdge(r.Payload); err == nil {
			index.PutEdge(ts, e)
		}
	case wal.KindDeleteEdge:
		if id, err := graph.ParseEdgeID(string(r.Payload)); err == nil {
			index.DeleteEdge(ts, id)
		}
	}
}
