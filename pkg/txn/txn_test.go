package txn

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepskilling/deepgraph/pkg/graph"
	"github.com/deepskilling/deepgraph/pkg/lock"
	"github.com/deepskilling/deepgraph/pkg/mvcc"
	"github.com/deepskilling/deepgraph/pkg/wal"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *graph.Index, *mvcc.Clock, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := wal.DefaultConfig(dir)
	cfg.SyncMode = wal.SyncImmediate
	log, err := wal.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	index := graph.NewIndex()
	clock := mvcc.NewClock()
	locks := lock.NewManager()
	return NewCoordinator(index, locks, clock, log), index, clock, dir
}

func TestBeginAssignsSequentialTxnIDs(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)
	t1, err := c.Begin(context.Background())
	require.NoError(t, err)
	t2, err := c.Begin(context.Background())
	require.NoError(t, err)
	assert.Less(t, uint64(t1.ID()), uint64(t2.ID()))
}

func TestCreateNodeIsVisibleWithinSameTransactionBeforeCommit(t *testing.T) {
	c, index, clock, _ := newTestCoordinator(t)
	tx, err := c.Begin(context.Background())
	require.NoError(t, err)

	n := graph.Node{ID: graph.NewNodeID(), Labels: graph.NewLabelSet("Person"), Props: graph.PropertyMap{"name": graph.String("Alice")}}
	require.NoError(t, c.CreateNode(context.Background(), tx, n))

	got, ok := c.ReadNode(tx, n.ID)
	require.True(t, ok)
	assert.Equal(t, graph.String("Alice"), got.Props["name"])

	// not yet visible through the structural index directly (no commit yet).
	_, ok = index.GetNode(clock.Current(), n.ID)
	assert.False(t, ok)
}

func TestCommitAppliesWritesToIndex(t *testing.T) {
	c, index, clock, _ := newTestCoordinator(t)
	tx, err := c.Begin(context.Background())
	require.NoError(t, err)

	n := graph.Node{ID: graph.NewNodeID(), Labels: graph.NewLabelSet("Person"), Props: graph.PropertyMap{"name": graph.String("Alice")}}
	require.NoError(t, c.CreateNode(context.Background(), tx, n))
	require.NoError(t, c.Commit(context.Background(), tx))

	assert.Equal(t, StatusCommitted, tx.Status())
	got, ok := index.GetNode(clock.Current(), n.ID)
	require.True(t, ok)
	assert.Equal(t, graph.String("Alice"), got.Props["name"])
}

func TestCommitTwiceFailsWithTransactionClosed(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)
	tx, err := c.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, c.Commit(context.Background(), tx))

	err = c.Commit(context.Background(), tx)
	assert.ErrorIs(t, err, ErrTransactionClosed)
}

func TestAbortDiscardsStagedWrites(t *testing.T) {
	c, index, clock, _ := newTestCoordinator(t)
	tx, err := c.Begin(context.Background())
	require.NoError(t, err)

	n := graph.Node{ID: graph.NewNodeID(), Labels: graph.NewLabelSet("Person"), Props: graph.PropertyMap{}}
	require.NoError(t, c.CreateNode(context.Background(), tx, n))
	require.NoError(t, c.Abort(context.Background(), tx))

	assert.Equal(t, StatusAborted, tx.Status())
	_, ok := index.GetNode(clock.Current(), n.ID)
	assert.False(t, ok)
}

func TestDeleteNodeHidesItFromReadYourWrites(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)
	tx, err := c.Begin(context.Background())
	require.NoError(t, err)

	n := graph.Node{ID: graph.NewNodeID(), Labels: graph.NewLabelSet("N"), Props: graph.PropertyMap{}}
	require.NoError(t, c.CreateNode(context.Background(), tx, n))
	require.NoError(t, c.DeleteNode(context.Background(), tx, n.ID))

	_, ok := c.ReadNode(tx, n.ID)
	assert.False(t, ok)
}

func TestSetMetadataRejectsOversizedValue(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)
	tx, err := c.Begin(context.Background())
	require.NoError(t, err)

	err = tx.SetMetadata("k", string(make([]byte, maxMetadataLen+1)))
	assert.ErrorIs(t, err, ErrMetadataTooLarge)
}

func TestGetMetadataRoundTrip(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)
	tx, err := c.Begin(context.Background())
	require.NoError(t, err)

	require.NoError(t, tx.SetMetadata("app", "deepgraph-cli"))
	v, ok := tx.GetMetadata("app")
	require.True(t, ok)
	assert.Equal(t, "deepgraph-cli", v)
}

func TestRecoverReplaysOnlyCommittedTransactions(t *testing.T) {
	c, _, _, dir := newTestCoordinator(t)

	committed, err := c.Begin(context.Background())
	require.NoError(t, err)
	keptNode := graph.Node{ID: graph.NewNodeID(), Labels: graph.NewLabelSet("Person"), Props: graph.PropertyMap{"name": graph.String("Alice")}}
	require.NoError(t, c.CreateNode(context.Background(), committed, keptNode))
	require.NoError(t, c.Commit(context.Background(), committed))

	uncommitted, err := c.Begin(context.Background())
	require.NoError(t, err)
	droppedNode := graph.Node{ID: graph.NewNodeID(), Labels: graph.NewLabelSet("Person"), Props: graph.PropertyMap{"name": graph.String("Bob")}}
	require.NoError(t, c.CreateNode(context.Background(), uncommitted, droppedNode))
	// uncommitted is left open (simulating a crash before Commit/Abort).

	freshIndex := graph.NewIndex()
	freshClock := mvcc.NewClock()
	require.NoError(t, Recover(dir, freshIndex, freshClock))

	_, ok := freshIndex.GetNode(freshClock.Current(), keptNode.ID)
	assert.True(t, ok, "committed transaction's writes must be recovered")

	_, ok = freshIndex.GetNode(freshClock.Current(), droppedNode.ID)
	assert.False(t, ok, "uncommitted transaction's writes must not be recovered")
}

func TestRecoverSkipsAbortedTransaction(t *testing.T) {
	c, _, _, dir := newTestCoordinator(t)

	tx, err := c.Begin(context.Background())
	require.NoError(t, err)
	n := graph.Node{ID: graph.NewNodeID(), Labels: graph.NewLabelSet("N"), Props: graph.PropertyMap{}}
	require.NoError(t, c.CreateNode(context.Background(), tx, n))
	require.NoError(t, c.Abort(context.Background(), tx))

	freshIndex := graph.NewIndex()
	freshClock := mvcc.NewClock()
	require.NoError(t, Recover(dir, freshIndex, freshClock))

	_, ok := freshIndex.GetNode(freshClock.Current(), n.ID)
	assert.False(t, ok)
}
