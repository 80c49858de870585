package graph

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValueEqualCrossNumericClass(t *testing.T) {
	assert.True(t, Int(3).Equal(Float(3.0)))
	assert.False(t, Int(3).Equal(Float(3.5)))
}

func TestValueEqualStringAndBool(t *testing.T) {
	assert.True(t, String("a").Equal(String("a")))
	assert.False(t, String("a").Equal(String("b")))
	assert.True(t, Bool(true).Equal(Bool(true)))
	assert.False(t, Bool(true).Equal(Bool(false)))
}

func TestValueEqualNull(t *testing.T) {
	assert.True(t, Null().Equal(Null()))
	assert.False(t, Null().Equal(Int(0)))
}

func TestValueEqualDifferentKindsNotEqual(t *testing.T) {
	assert.False(t, String("3").Equal(Int(3)))
	assert.False(t, Bool(true).Equal(String("true")))
}

func TestValueLessNumericCrossClass(t *testing.T) {
	assert.True(t, Int(1).Less(Float(1.5)))
	assert.False(t, Float(2.0).Less(Int(1)))
}

func TestValueLessString(t *testing.T) {
	assert.True(t, String("a").Less(String("b")))
	assert.False(t, String("b").Less(String("a")))
}

func TestValueLessBool(t *testing.T) {
	assert.True(t, Bool(false).Less(Bool(true)))
	assert.False(t, Bool(true).Less(Bool(false)))
}

func TestValueLessCrossKindUsesTypeRank(t *testing.T) {
	assert.True(t, Null().Less(Bool(false)))
	assert.True(t, Bool(true).Less(Int(0)))
	assert.True(t, Int(1000000).Less(String("a")))
}

func TestValueLessNaNOrdersLast(t *testing.T) {
	nan := Float(math.NaN())
	assert.False(t, nan.Less(Float(1.0)))
	assert.True(t, Float(1.0).Less(nan))
	assert.False(t, nan.Less(nan))
}

func TestValueStringRendering(t *testing.T) {
	assert.Equal(t, "null", Null().String())
	assert.Equal(t, "true", Bool(true).String())
	assert.Equal(t, "42", Int(42).String())
	assert.Equal(t, "alice", String("alice").String())
}

func TestFromAny(t *testing.T) {
	v, ok := FromAny(nil)
	assert.True(t, ok)
	assert.True(t, v.IsNull())

	v, ok = FromAny(7)
	assert.True(t, ok)
	assert.Equal(t, Int(7), v)

	v, ok = FromAny(3.14)
	assert.True(t, ok)
	assert.Equal(t, Float(3.14), v)

	_, ok = FromAny(struct{}{})
	assert.False(t, ok)
}

func TestPropertyMapCloneIsIndependent(t *testing.T) {
	p := PropertyMap{"a": Int(1)}
	clone := p.Clone()
	clone["a"] = Int(2)
	assert.Equal(t, Int(1), p["a"])
}

func TestPropertyMapMergeEmptyDeltaIsNoOp(t *testing.T) {
	p := PropertyMap{"a": Int(1)}
	merged := p.Merge(nil)
	assert.Equal(t, p, merged)
}

func TestPropertyMapMergeOverridesOnlyGivenKeys(t *testing.T) {
	p := PropertyMap{"a": Int(1), "b": String("x")}
	merged := p.Merge(PropertyMap{"b": String("y")})
	assert.Equal(t, Int(1), merged["a"])
	assert.Equal(t, String("y"), merged["b"])
	assert.Equal(t, String("x"), p["b"], "original map must be untouched")
}

func TestPropertyMapSortedKeys(t *testing.T) {
	p := PropertyMap{"z": Int(1), "a": Int(2), "m": Int(3)}
	assert.Equal(t, []string{"a", "m", "z"}, p.SortedKeys())
}

func TestLabelSetHasAddSlice(t *testing.T) {
	s := NewLabelSet("Person", "Admin")
	assert.True(t, s.Has("Person"))
	assert.False(t, s.Has("Dog"))
	s.Add("Dog")
	assert.True(t, s.Has("Dog"))
	assert.Equal(t, []string{"Admin", "Dog", "Person"}, s.Slice())
}

func TestLabelSetString(t *testing.T) {
	s := NewLabelSet("B", "A")
	assert.Equal(t, "A:B", s.String())
}
