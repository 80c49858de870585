package engine

import (
	"encoding/binary"

	"github.com/deepskilling/deepgraph/pkg/graph"
	"github.com/deepskilling/deepgraph/pkg/secidx"
	"github.com/deepskilling/deepgraph/pkg/wal"
)

// CreateHashIndex registers a hash index over (target, label, property) —
// create_hash_index(name, target) in spec.md §4.3, generalized with the
// label/property pair every lookup actually needs. A non-empty graph is
// backfilled by scanning its live records at creation time.
func (g *GraphStorage) CreateHashIndex(name string, target secidx.Target, label, property string) error {
	return g.createIndex(secidx.Descriptor{Name: name, Kind: secidx.KindHash, Target: target, Label: label, Property: property})
}

// CreateOrderedIndex registers a range-capable ordered index — spec.md
// §4.3's create_ordered_index(name, property), generalized the same way.
func (g *GraphStorage) CreateOrderedIndex(name string, target secidx.Target, label, property string) error {
	return g.createIndex(secidx.Descriptor{Name: name, Kind: secidx.KindOrdered, Target: target, Label: label, Property: property, Backing: secidx.BackingMemory})
}

// CreateBadgerOrderedIndex registers an ordered index backed by an embedded
// Badger instance instead of an in-memory sorted slice, for indexes
// expected to outgrow what the in-memory orderedIndex can hold comfortably.
func (g *GraphStorage) CreateBadgerOrderedIndex(name string, target secidx.Target, label, property string) error {
	return g.createIndex(secidx.Descriptor{Name: name, Kind: secidx.KindOrdered, Target: target, Label: label, Property: property, Backing: secidx.BackingBadger})
}

func (g *GraphStorage) createIndex(desc secidx.Descriptor) error {
	idx, err := g.secondary.Create(desc)
	if err != nil {
		return newError(KindInvalidArgument, "CreateIndex", err)
	}
	if _, err := g.log.Append(wal.KindCreateIndex, 0, encodeDescriptor(desc)); err != nil {
		return newError(KindDurability, "CreateIndex", err)
	}
	g.backfill(idx, desc)
	return nil
}

// DropIndex removes a named index. Dropping an unknown name is an error
// (spec.md §4.3); the name is reusable immediately afterward.
func (g *GraphStorage) DropIndex(name string) error {
	if err := g.secondary.Drop(name); err != nil {
		return newError(KindInvalidArgument, "DropIndex", err)
	}
	if _, err := g.log.Append(wal.KindDropIndex, 0, encodeDropIndex(name)); err != nil {
		return newError(KindDurability, "DropIndex", err)
	}
	return nil
}

// backfill scans every live record matching desc's target/label and
// inserts its indexed property value, used both at CreateIndex time
// (spec.md §4.3: "backfills by scanning live records at creation time")
// and while replaying KindCreateIndex during recovery.
func (g *GraphStorage) backfill(idx *secidx.Index, desc secidx.Descriptor) {
	ts := g.snapshotTS()
	switch desc.Target {
	case secidx.TargetNode:
		for _, id := range g.index.NodesWithLabel(ts, desc.Label) {
			n, ok := g.index.GetNode(ts, id)
			if !ok {
				continue
			}
			if v, ok := n.Props[desc.Property]; ok {
				idx.Insert(v, id)
			}
		}
	case secidx.TargetEdge:
		for _, id := range g.index.EdgesWithType(ts, desc.Label) {
			e, ok := g.index.GetEdge(ts, id)
			if !ok {
				continue
			}
			if v, ok := e.Props[desc.Property]; ok {
				idx.Insert(v, nodeIDFromEdge(e.ID))
			}
		}
	}
}

// nodeIDFromEdge lets an edge-targeted index reuse secidx.Index's
// NodeID-keyed buckets for edge ids too — DeepGraph's 128-bit NodeID and
// EdgeID share a wire representation (both google/uuid values), so an
// EdgeID can be carried through the same bucket type without a second,
// duplicated index implementation.
func nodeIDFromEdge(id graph.EdgeID) graph.NodeID { return graph.NodeID(id) }

// maintainNodeWrite updates every index whose target/label/property
// intersects the given node write, per spec.md §4.3: "every committed
// write updates any index whose target intersects the mutated record."
func (g *GraphStorage) maintainNodeWrite(old, new graph.Node, hadOld bool) {
	labels := new.Labels
	if hadOld {
		labels = unionLabels(new.Labels, old.Labels)
	}
	for l := range labels {
		for prop := range unionPropKeys(old, new, hadOld) {
			for _, idx := range g.secondary.IndexesForTarget(secidx.TargetNode, l, prop) {
				if hadOld {
					if v, ok := old.Props[prop]; ok && old.Labels.Has(l) {
						idx.Remove(v, old.ID)
					}
				}
				if v, ok := new.Props[prop]; ok && new.Labels.Has(l) {
					idx.Insert(v, new.ID)
				}
			}
		}
	}
}

func unionLabels(a, b graph.LabelSet) graph.LabelSet {
	out := make(graph.LabelSet, len(a)+len(b))
	for l := range a {
		out[l] = struct{}{}
	}
	for l := range b {
		out[l] = struct{}{}
	}
	return out
}

func unionPropKeys(old, new graph.Node, hadOld bool) map[string]struct{} {
	out := make(map[string]struct{}, len(new.Props))
	for k := range new.Props {
		out[k] = struct{}{}
	}
	if hadOld {
		for k := range old.Props {
			out[k] = struct{}{}
		}
	}
	return out
}

func (g *GraphStorage) indexNode(n graph.Node) {
	g.maintainNodeWrite(graph.Node{}, n, false)
}

func (g *GraphStorage) reindexNode(old, new graph.Node) {
	g.maintainNodeWrite(old, new, true)
}

func (g *GraphStorage) unindexNode(n graph.Node) {
	for l := range n.Labels {
		for prop, v := range n.Props {
			for _, idx := range g.secondary.IndexesForTarget(secidx.TargetNode, l, prop) {
				idx.Remove(v, n.ID)
			}
		}
	}
}

func (g *GraphStorage) indexEdge(e graph.Edge) {
	for prop, v := range e.Props {
		for _, idx := range g.secondary.IndexesForTarget(secidx.TargetEdge, e.Type, prop) {
			idx.Insert(v, nodeIDFromEdge(e.ID))
		}
	}
}

func (g *GraphStorage) reindexEdge(old, new graph.Edge) {
	for prop, v := range old.Props {
		for _, idx := range g.secondary.IndexesForTarget(secidx.TargetEdge, old.Type, prop) {
			idx.Remove(v, nodeIDFromEdge(old.ID))
		}
	}
	g.indexEdge(new)
}

func (g *GraphStorage) unindexEdge(e graph.Edge) {
	for prop, v := range e.Props {
		for _, idx := range g.secondary.IndexesForTarget(secidx.TargetEdge, e.Type, prop) {
			idx.Remove(v, nodeIDFromEdge(e.ID))
		}
	}
}

// ---- index DDL WAL payload encoding ----

func encodeDescriptor(d secidx.Descriptor) []byte {
	var buf []byte
	buf = append(buf, byte(kindByte(d.Kind)), byte(targetByte(d.Target)), backingByte(d.Backing))
	buf = appendIdxString(buf, d.Name)
	buf = appendIdxString(buf, d.Label)
	buf = appendIdxString(buf, d.Property)
	return buf
}

func decodeDescriptor(buf []byte) (secidx.Descriptor, bool) {
	if len(buf) < 3 {
		return secidx.Descriptor{}, false
	}
	kind := kindFromByte(buf[0])
	target := targetFromByte(buf[1])
	backing := backingFromByte(buf[2])
	rest := buf[3:]
	name, rest, ok := readIdxString(rest)
	if !ok {
		return secidx.Descriptor{}, false
	}
	label, rest, ok := readIdxString(rest)
	if !ok {
		return secidx.Descriptor{}, false
	}
	property, _, ok := readIdxString(rest)
	if !ok {
		return secidx.Descriptor{}, false
	}
	return secidx.Descriptor{Name: name, Kind: kind, Target: target, Label: label, Property: property, Backing: backing}, true
}

func encodeDropIndex(name string) []byte {
	return appendIdxString(nil, name)
}

func decodeDropIndex(buf []byte) (string, bool) {
	name, _, ok := readIdxString(buf)
	return name, ok
}

func kindByte(k secidx.Kind) byte {
	if k == secidx.KindOrdered {
		return 1
	}
	return 0
}

func kindFromByte(b byte) secidx.Kind {
	if b == 1 {
		return secidx.KindOrdered
	}
	return secidx.KindHash
}

func targetByte(t secidx.Target) byte {
	if t == secidx.TargetEdge {
		return 1
	}
	return 0
}

func targetFromByte(b byte) secidx.Target {
	if b == 1 {
		return secidx.TargetEdge
	}
	return secidx.TargetNode
}

func backingByte(b secidx.Backing) byte {
	if b == secidx.BackingBadger {
		return 1
	}
	return 0
}

func backingFromByte(b byte) secidx.Backing {
	if b == 1 {
		return secidx.BackingBadger
	}
	return secidx.BackingMemory
}

func appendIdxString(buf []byte, s string) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(len(s)))
	buf = append(buf, tmp[:]...)
	return append(buf, s...)
}

func readIdxString(buf []byte) (string, []byte, bool) {
	if len(buf) < 4 {
		return "", nil, false
	}
	n := binary.BigEndian.Uint32(buf[:4])
	rest := buf[4:]
	if uint32(len(rest)) < n {
		return "", nil, false
	}
	return string(rest[:n]), rest[n:], true
}
