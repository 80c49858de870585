// Package graph implements DeepGraph's labeled-property-graph data model:
// property values, node and edge records, and the in-memory index that backs
// the storage facade.
//
// Design follows the teacher's Neo4j-flavored record model (see
// pkg/storage/types.go in the original NornicDB tree) generalized to a
// tagged-union property value with total ordering, and to MVCC version
// chains instead of bare records.
package graph

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
)

// Value is DeepGraph's tagged-union property value: null, bool, int64,
// float64, or string. Implementers should always pattern-match on Kind
// rather than assume a Go type assertion will succeed (see spec §9 on
// dynamic property typing).
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
}

func Null() Value            { return Value{kind: KindNull} }
func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }
func Int(i int64) Value      { return Value{kind: KindInt, i: i} }
func Float(f float64) Value  { return Value{kind: KindFloat, f: f} }
func String(s string) Value  { return Value{kind: KindString, s: s} }

func (v Value) Kind() Kind    { return v.kind }
func (v Value) IsNull() bool  { return v.kind == KindNull }
func (v Value) Bool() bool    { return v.b }
func (v Value) Int() int64    { return v.i }
func (v Value) Float() float64 {
	if v.kind == KindInt {
		return float64(v.i)
	}
	return v.f
}
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindString:
		return v.s
	}
	return ""
}

// Text returns the raw string payload; only meaningful when Kind() == KindString.
func (v Value) Text() string { return v.s }

// FromAny converts a native Go value (as produced by the Cypher literal
// parser or a bulk-import row) into a Value. Unsupported types return
// (Value{}, false) — callers surface InvalidArgument in that case.
func FromAny(a any) (Value, bool) {
	switch x := a.(type) {
	case nil:
		return Null(), true
	case bool:
		return Bool(x), true
	case int:
		return Int(int64(x)), true
	case int64:
		return Int(x), true
	case float64:
		return Float(x), true
	case float32:
		return Float(float64(x)), true
	case string:
		return String(x), true
	default:
		return Value{}, false
	}
}

// numericClass groups int and float for cross-comparison; strings and bools
// and null each form their own class. Values compare across classes only
// when both are numeric (spec §3: "integers and floats compare as reals").
func (v Value) numericClass() bool { return v.kind == KindInt || v.kind == KindFloat }

// Equal implements structural equality. Int/float compare as reals with
// bitwise float equality (spec's resolved Open Question: bitwise, not
// approximate).
func (v Value) Equal(o Value) bool {
	if v.numericClass() && o.numericClass() {
		return v.Float() == o.Float()
	}
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindString:
		return v.s == o.s
	default:
		return v.Float() == o.Float()
	}
}

// Less implements the total order spec §3 requires: numeric classes compare
// as reals (NaN ordered last, deterministically), strings compare
// lexicographically, and cross-type or null comparisons are defined only
// for ordered-index key purposes (null sorts first, then bool, int/float,
// then string) so that OrderedIndex has a stable total order over mixed
// keys.
func (v Value) Less(o Value) bool {
	if v.numericClass() && o.numericClass() {
		return lessFloatTotalOrder(v.Float(), o.Float())
	}
	if v.kind != o.kind {
		return v.typeRank() < o.typeRank()
	}
	switch v.kind {
	case KindBool:
		return !v.b && o.b
	case KindString:
		return v.s < o.s
	default:
		return false
	}
}

func (v Value) typeRank() int {
	switch v.kind {
	case KindNull:
		return 0
	case KindBool:
		return 1
	case KindInt, KindFloat:
		return 2
	case KindString:
		return 3
	}
	return 4
}

// lessFloatTotalOrder orders NaN deterministically last, matching IEEE-754
// total-order semantics for index keys (spec §3).
func lessFloatTotalOrder(a, b float64) bool {
	aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
	if aNaN && bNaN {
		return false
	}
	if aNaN {
		return false
	}
	if bNaN {
		return true
	}
	return a < b
}

// PropertyMap is an ordered-insensitive map of property name to Value.
// Go maps don't preserve insertion order, matching spec §3's "insertion
// order not observable."
type PropertyMap map[string]Value

// Clone deep-copies a property map (values are immutable, so a shallow
// copy of the map itself suffices).
func (p PropertyMap) Clone() PropertyMap {
	out := make(PropertyMap, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Merge applies update semantics: keys present in delta are inserted or
// replaced; keys absent from delta retain their prior value (spec §4.1
// update_* contract). An empty delta is a no-op (spec §9 Open Question
// resolution).
func (p PropertyMap) Merge(delta PropertyMap) PropertyMap {
	if len(delta) == 0 {
		return p
	}
	out := p.Clone()
	for k, v := range delta {
		out[k] = v
	}
	return out
}

// SortedKeys returns property keys in a stable, deterministic order —
// used when rendering rows so two calls against the same snapshot produce
// identical column ordering.
func (p PropertyMap) SortedKeys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LabelSet is a unique, unordered set of labels.
type LabelSet map[string]struct{}

func NewLabelSet(labels ...string) LabelSet {
	s := make(LabelSet, len(labels))
	for _, l := range labels {
		s[l] = struct{}{}
	}
	return s
}

func (s LabelSet) Has(label string) bool {
	_, ok := s[label]
	return ok
}

func (s LabelSet) Add(label string) { s[label] = struct{}{} }

func (s LabelSet) Slice() []string {
	out := make([]string, 0, len(s))
	for l := range s {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

func (s LabelSet) String() string {
	return strings.Join(s.Slice(), ":")
}
