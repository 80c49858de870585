package secidx

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/deepskilling/deepgraph/pkg/graph"
)

// Backing selects the storage medium for an ordered index. BackingMemory
// (the default) keeps entries in a sorted in-process slice, fine up to
// moderate cardinality. BackingBadger spills entries into an embedded
// Badger instance keyed so Badger's own LSM ordering matches graph.Value's
// total order (spec §3), giving range scans over indexes too large to keep
// resident without the in-memory structure's O(n) insert cost.
//
// Grounded on the teacher's pkg/storage/badger.go / badger_transaction.go,
// which stores secondary-index membership as zero-value Badger keys
// (tx.badgerTx.Set(indexKey, []byte{})) rather than in a value payload —
// the same key-only idiom is used here.
type Backing string

const (
	BackingMemory Backing = "MEMORY"
	BackingBadger Backing = "BADGER"
)

type badgerOrderedIndex struct {
	db  *badger.DB
	dir string
}

func openBadgerOrdered(dir string) (*badgerOrderedIndex, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("secidx: open badger ordered index at %s: %w", dir, err)
	}
	return &badgerOrderedIndex{db: db, dir: dir}, nil
}

func (b *badgerOrderedIndex) close() error { return b.db.Close() }

func (b *badgerOrderedIndex) drop() error {
	if err := b.db.Close(); err != nil {
		return err
	}
	return os.RemoveAll(b.dir)
}

func (b *badgerOrderedIndex) insert(v graph.Value, id graph.NodeID) {
	key := sortableKey(v, id)
	_ = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, []byte{})
	})
}

func (b *badgerOrderedIndex) remove(v graph.Value, id graph.NodeID) {
	key := sortableKey(v, id)
	_ = b.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

// rangeScan walks the Badger keyspace starting at lo's prefix (or the very
// first key if lo is nil), decoding each key back into (value, id) and
// stopping as soon as a decoded value exceeds hi — a single bounded
// iterator rather than a full-index scan.
func (b *badgerOrderedIndex) rangeScan(lo, hi *graph.Value) []graph.NodeID {
	var out []graph.NodeID
	_ = b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		if lo != nil {
			it.Seek(valuePrefix(*lo))
		} else {
			it.Rewind()
		}
		for ; it.Valid(); it.Next() {
			v, id, ok := decodeSortableKey(it.Item().KeyCopy(nil))
			if !ok {
				continue
			}
			if hi != nil && hi.Less(v) {
				break
			}
			out = append(out, id)
		}
		return nil
	})
	return out
}

// sortableKey encodes (v, id) as a Badger key whose byte order matches
// graph.Value.Less's total order, with the id appended as a uniqueness
// suffix so distinct ids holding the same value don't collide.
func sortableKey(v graph.Value, id graph.NodeID) []byte {
	key := valuePrefix(v)
	idBytes := uuid.UUID(id)
	return append(key, idBytes[:]...)
}

func valuePrefix(v graph.Value) []byte {
	kind := v.Kind()
	if kind == graph.KindInt {
		kind = graph.KindFloat // ints and floats share one numeric key space
	}
	key := []byte{byte(kind)}
	switch v.Kind() {
	case graph.KindBool:
		if v.Bool() {
			key = append(key, 1)
		} else {
			key = append(key, 0)
		}
	case graph.KindInt, graph.KindFloat:
		key = append(key, sortableFloatBytes(v.Float())...)
	case graph.KindString:
		key = append(key, []byte(v.Text())...)
		key = append(key, 0) // NUL terminator bounds the string payload
	}
	return key
}

func decodeSortableKey(key []byte) (graph.Value, graph.NodeID, bool) {
	if len(key) < 1+16 {
		return graph.Value{}, graph.NodeID{}, false
	}
	kind := graph.Kind(key[0])
	idBytes := key[len(key)-16:]
	var id graph.NodeID
	copy(id[:], idBytes)
	payload := key[1 : len(key)-16]

	switch kind {
	case graph.KindNull:
		return graph.Null(), id, true
	case graph.KindBool:
		if len(payload) != 1 {
			return graph.Value{}, graph.NodeID{}, false
		}
		return graph.Bool(payload[0] == 1), id, true
	case graph.KindInt, graph.KindFloat:
		if len(payload) != 8 {
			return graph.Value{}, graph.NodeID{}, false
		}
		return graph.Float(sortableBytesToFloat(payload)), id, true
	case graph.KindString:
		if len(payload) < 1 {
			return graph.Value{}, graph.NodeID{}, false
		}
		return graph.String(string(payload[:len(payload)-1])), id, true
	}
	return graph.Value{}, graph.NodeID{}, false
}

// sortableFloatBytes maps a float64 onto a big-endian uint64 whose byte
// order matches IEEE-754 total order: flip the sign bit for non-negatives,
// invert every bit for negatives (the standard order-preserving float key
// trick used by most LSM-backed stores).
func sortableFloatBytes(f float64) []byte {
	bits := math.Float64bits(f)
	const signMask = uint64(1) << 63
	if bits&signMask != 0 {
		bits = ^bits
	} else {
		bits |= signMask
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, bits)
	return buf
}

func sortableBytesToFloat(buf []byte) float64 {
	bits := binary.BigEndian.Uint64(buf)
	const signMask = uint64(1) << 63
	if bits&signMask != 0 {
		bits &^= signMask
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits)
}
