// Package secidx implements DeepGraph's secondary index manager: a flat
// namespace of named indexes over node or edge properties, each either a
// hash index (point lookups, average O(1)) or an ordered index (range
// scans, O(log n) seek). Index DDL (create/drop) is itself WAL-replayed so
// an index definition survives a restart; its entries are rebuilt by a
// backfill when the engine opens.
//
// Grounded on pkg/storage/schema.go's SchemaManager: a flat
// map[string]*PropertyIndex namespace keyed by "Label:property", guarded by
// sync.RWMutex, with a composite-key hashing scheme for multi-property
// keys. DeepGraph generalizes PropertyIndex's single map[interface{}][]NodeID
// into two concrete index kinds and replaces the teacher's SHA-256
// composite-key hash with xxhash (cespare/xxhash/v2, already a pack
// dependency) since index bucket placement has no security requirement and
// a non-cryptographic hash is the idiom the pack otherwise reaches for.
package secidx

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/deepskilling/deepgraph/pkg/graph"
)

// Kind distinguishes the two supported index structures.
type Kind string

const (
	KindHash    Kind = "HASH"
	KindOrdered Kind = "ORDERED"
)

// Target names what an index is built over.
type Target string

const (
	TargetNode Target = "NODE"
	TargetEdge Target = "EDGE"
)

// Descriptor is an index's durable definition, the payload recorded in a
// KindCreateIndex WAL record so Replay can rebuild the namespace before
// backfill runs.
type Descriptor struct {
	Name     string
	Kind     Kind
	Target   Target
	Label    string // node label or edge type the index applies to
	Property string
	Backing  Backing // ordered indexes only; zero value behaves as BackingMemory
}

type hashIndex struct {
	mu      sync.RWMutex
	buckets map[uint64][]graph.NodeID
}

func newHashIndex() *hashIndex {
	return &hashIndex{buckets: make(map[uint64][]graph.NodeID)}
}

func bucketKey(v graph.Value) uint64 {
	h := xxhash.New()
	_, _ = h.Write([]byte{byte(v.Kind())})
	_, _ = h.Write([]byte(v.String()))
	return h.Sum64()
}

func (h *hashIndex) insert(v graph.Value, id graph.NodeID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	k := bucketKey(v)
	for _, existing := range h.buckets[k] {
		if existing == id {
			return
		}
	}
	h.buckets[k] = append(h.buckets[k], id)
}

func (h *hashIndex) remove(v graph.Value, id graph.NodeID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	k := bucketKey(v)
	ids := h.buckets[k]
	for i, existing := range ids {
		if existing == id {
			h.buckets[k] = append(ids[:i], ids[i+1:]...)
			return
		}
	}
}

func (h *hashIndex) lookup(v graph.Value) []graph.NodeID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := h.buckets[bucketKey(v)]
	out := make([]graph.NodeID, len(ids))
	copy(out, ids)
	return out
}

type orderedEntry struct {
	value graph.Value
	id    graph.NodeID
}

// orderedIndex keeps entries sorted by value, giving O(log n) range scans
// at the cost of an O(n) insert; acceptable for DeepGraph's embedded,
// moderate-cardinality scope (spec §8 non-goal: no distributed/sharded
// indexing).
type orderedIndex struct {
	mu      sync.RWMutex
	entries []orderedEntry
}

func newOrderedIndex() *orderedIndex {
	return &orderedIndex{}
}

func (o *orderedIndex) insert(v graph.Value, id graph.NodeID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	i := sort.Search(len(o.entries), func(i int) bool { return !o.entries[i].value.Less(v) })
	o.entries = append(o.entries, orderedEntry{})
	copy(o.entries[i+1:], o.entries[i:])
	o.entries[i] = orderedEntry{value: v, id: id}
}

func (o *orderedIndex) remove(v graph.Value, id graph.NodeID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, e := range o.entries {
		if e.id == id && e.value.Equal(v) {
			o.entries = append(o.entries[:i], o.entries[i+1:]...)
			return
		}
	}
}

// Range returns ids whose indexed value falls within [lo, hi]. A nil lo or
// hi means unbounded on that side.
func (o *orderedIndex) rangeScan(lo, hi *graph.Value) []graph.NodeID {
	o.mu.RLock()
	defer o.mu.RUnlock()
	start := 0
	if lo != nil {
		start = sort.Search(len(o.entries), func(i int) bool { return !o.entries[i].value.Less(*lo) })
	}
	var out []graph.NodeID
	for _, e := range o.entries[start:] {
		if hi != nil && hi.Less(e.value) {
			break
		}
		out = append(out, e.id)
	}
	return out
}

// Index is the union of the concrete structures behind one Descriptor: a
// hash index, an in-memory ordered index, or a Badger-backed ordered index.
type Index struct {
	desc   Descriptor
	hash   *hashIndex
	ord    *orderedIndex
	badger *badgerOrderedIndex
}

// Manager owns the flat index namespace. One Manager serves both node- and
// edge-targeted indexes, distinguished by Descriptor.Target. badgerDir, if
// set, roots one subdirectory per BackingBadger ordered index.
type Manager struct {
	mu        sync.RWMutex
	indexes   map[string]*Index
	badgerDir string
}

func NewManager() *Manager {
	return &Manager{indexes: make(map[string]*Index)}
}

// NewManagerWithBadgerDir is NewManager plus a root directory for
// BackingBadger ordered indexes, each opened at badgerDir/<index name>.
func NewManagerWithBadgerDir(badgerDir string) *Manager {
	return &Manager{indexes: make(map[string]*Index), badgerDir: badgerDir}
}

// Clear drops every index definition in place, used by the storage
// facade's clear() so a pre-existing *Manager reference stays valid. Any
// Badger-backed index is closed and its files removed first.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, idx := range m.indexes {
		if idx.badger != nil {
			_ = idx.badger.drop()
		}
	}
	m.indexes = make(map[string]*Index)
}

// Create registers a new index definition and returns it ready for
// backfill. Returns an error if the name is already taken.
func (m *Manager) Create(desc Descriptor) (*Index, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.indexes[desc.Name]; exists {
		return nil, fmt.Errorf("secidx: index %q already exists", desc.Name)
	}
	idx := &Index{desc: desc}
	switch desc.Kind {
	case KindHash:
		idx.hash = newHashIndex()
	case KindOrdered:
		if desc.Backing == BackingBadger {
			if m.badgerDir == "" {
				return nil, fmt.Errorf("secidx: index %q requests badger backing but no badger directory was configured", desc.Name)
			}
			b, err := openBadgerOrdered(filepath.Join(m.badgerDir, desc.Name))
			if err != nil {
				return nil, err
			}
			idx.badger = b
		} else {
			idx.ord = newOrderedIndex()
		}
	default:
		return nil, fmt.Errorf("secidx: unknown index kind %q", desc.Kind)
	}
	m.indexes[desc.Name] = idx
	return idx, nil
}

// Drop removes an index by name. Dropping an unknown name is an error
// (spec.md §4.3), though the name is immediately reusable afterward.
func (m *Manager) Drop(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.indexes[name]
	if !ok {
		return fmt.Errorf("secidx: index %q does not exist", name)
	}
	if idx.badger != nil {
		_ = idx.badger.drop()
	}
	delete(m.indexes, name)
	return nil
}

// Get returns the index by name, if any.
func (m *Manager) Get(name string) (*Index, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.indexes[name]
	return idx, ok
}

// ForLabel returns every index defined over the given target/label/property
// combination — used by the planner's index-selection pass to find a usable
// index for an equality or range predicate.
func (m *Manager) ForLabel(target Target, label, property string) []Descriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Descriptor
	for _, idx := range m.indexes {
		if idx.desc.Target == target && idx.desc.Label == label && idx.desc.Property == property {
			out = append(out, idx.desc)
		}
	}
	return out
}

// IndexesForTarget returns every live *Index defined over the given
// target/label/property combination, for maintenance: every committed
// write updates any index whose target intersects the mutated record
// (spec.md §4.3).
func (m *Manager) IndexesForTarget(target Target, label, property string) []*Index {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Index
	for _, idx := range m.indexes {
		if idx.desc.Target == target && idx.desc.Label == label && idx.desc.Property == property {
			out = append(out, idx)
		}
	}
	return out
}

// Descriptors returns every index definition sorted by name; pkg/engine
// uses it on Open to backfill the recovered indexes.
func (m *Manager) Descriptors() []Descriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Descriptor, 0, len(m.indexes))
	for _, idx := range m.indexes {
		out = append(out, idx.desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Insert adds one (value, id) pair into the named index, used during
// backfill and on every subsequent create/update of an indexed property.
func (idx *Index) Insert(v graph.Value, id graph.NodeID) {
	switch {
	case idx.hash != nil:
		idx.hash.insert(v, id)
	case idx.badger != nil:
		idx.badger.insert(v, id)
	default:
		idx.ord.insert(v, id)
	}
}

func (idx *Index) Remove(v graph.Value, id graph.NodeID) {
	switch {
	case idx.hash != nil:
		idx.hash.remove(v, id)
	case idx.badger != nil:
		idx.badger.remove(v, id)
	default:
		idx.ord.remove(v, id)
	}
}

func (idx *Index) Lookup(v graph.Value) []graph.NodeID {
	switch {
	case idx.hash != nil:
		return idx.hash.lookup(v)
	case idx.badger != nil:
		return idx.badger.rangeScan(&v, &v)
	default:
		return idx.ord.rangeScan(&v, &v)
	}
}

func (idx *Index) RangeScan(lo, hi *graph.Value) ([]graph.NodeID, error) {
	if idx.badger != nil {
		return idx.badger.rangeScan(lo, hi), nil
	}
	if idx.ord == nil {
		return nil, fmt.Errorf("secidx: index %q is a hash index, does not support range scans", idx.desc.Name)
	}
	return idx.ord.rangeScan(lo, hi), nil
}

func (idx *Index) Descriptor() Descriptor { return idx.desc }
