package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepskilling/deepgraph/pkg/cypher"
	"github.com/deepskilling/deepgraph/pkg/secidx"
)

func buildFrom(t *testing.T, query string) Op {
	t.Helper()
	q, err := cypher.Parse(query)
	require.NoError(t, err)
	op, err := Build(q)
	require.NoError(t, err)
	return op
}

func TestBuildSimpleMatchReturn(t *testing.T) {
	op := buildFrom(t, "MATCH (n:Person) RETURN n.name")
	proj, ok := op.(*Project)
	require.True(t, ok)
	scan, ok := proj.Input.(*NodeScan)
	require.True(t, ok)
	assert.Equal(t, "n", scan.Var)
	assert.Equal(t, "Person", scan.Label)
}

func TestBuildMatchWithWhereWrapsFilter(t *testing.T) {
	op := buildFrom(t, `MATCH (n:Person) WHERE n.age = 30 RETURN n.name`)
	proj, ok := op.(*Project)
	require.True(t, ok)
	_, ok = proj.Input.(*Filter)
	assert.True(t, ok)
}

func TestBuildMatchWithInlinePropsWrapsFilter(t *testing.T) {
	op := buildFrom(t, `MATCH (n:Person {name: "Alice"}) RETURN n`)
	proj, ok := op.(*Project)
	require.True(t, ok)
	_, ok = proj.Input.(*Filter)
	assert.True(t, ok, "an inline pattern property map must lower to a Filter")
}

func TestBuildRelationshipPatternProducesExpand(t *testing.T) {
	op := buildFrom(t, "MATCH (a)-[r:KNOWS]->(b) RETURN a, b")
	proj, ok := op.(*Project)
	require.True(t, ok)
	expand, ok := proj.Input.(*Expand)
	require.True(t, ok)
	assert.Equal(t, "a", expand.FromVar)
	assert.Equal(t, "b", expand.ToVar)
	assert.Equal(t, "KNOWS", expand.Type)
}

func TestBuildOrderByAndLimit(t *testing.T) {
	op := buildFrom(t, "MATCH (n:Person) RETURN n.name ORDER BY n.name LIMIT 5")
	limit, ok := op.(*Limit)
	require.True(t, ok)
	assert.Equal(t, int64(5), limit.N)
	_, ok = limit.Input.(*OrderBy)
	assert.True(t, ok)
}

func TestBuildCreateQuery(t *testing.T) {
	op := buildFrom(t, `CREATE (:Person {name: "Alice"})`)
	_, ok := op.(*Create)
	assert.True(t, ok)
}

func TestOptimizeIsIdempotent(t *testing.T) {
	op := buildFrom(t, `MATCH (n:Person) WHERE n.age = 30 RETURN n.name LIMIT 5`)
	indexes := secidx.NewManager()

	once := Optimize(op, indexes)
	twice := Optimize(once, indexes)
	assert.Equal(t, describePlan(once), describePlan(twice))
}

func TestOptimizeSelectsHashIndexForEqualityPredicate(t *testing.T) {
	indexes := secidx.NewManager()
	_, err := indexes.Create(secidx.Descriptor{Name: "byname", Kind: secidx.KindHash, Target: secidx.TargetNode, Label: "Person", Property: "name"})
	require.NoError(t, err)

	op := buildFrom(t, `MATCH (n:Person) WHERE n.name = "Alice" RETURN n`)
	optimized := Optimize(op, indexes)

	proj, ok := optimized.(*Project)
	require.True(t, ok)
	lookup, ok := proj.Input.(*IndexLookup)
	require.True(t, ok, "an equality predicate backed by a hash index must become an IndexLookup")
	assert.Equal(t, "byname", lookup.IndexName)
	assert.NotNil(t, lookup.Eq)
}

func TestOptimizeLeavesFilterWhenNoIndexMatches(t *testing.T) {
	indexes := secidx.NewManager()
	op := buildFrom(t, `MATCH (n:Person) WHERE n.name = "Alice" RETURN n`)
	optimized := Optimize(op, indexes)

	proj, ok := optimized.(*Project)
	require.True(t, ok)
	_, ok = proj.Input.(*Filter)
	assert.True(t, ok)
}

func TestOptimizeRangePredicateUsesOrderedIndex(t *testing.T) {
	indexes := secidx.NewManager()
	_, err := indexes.Create(secidx.Descriptor{Name: "byage", Kind: secidx.KindOrdered, Target: secidx.TargetNode, Label: "Person", Property: "age"})
	require.NoError(t, err)

	op := buildFrom(t, `MATCH (n:Person) WHERE n.age > 18 RETURN n`)
	optimized := Optimize(op, indexes)

	proj, ok := optimized.(*Project)
	require.True(t, ok)
	lookup, ok := proj.Input.(*IndexLookup)
	require.True(t, ok)
	assert.NotNil(t, lookup.Lo)
	assert.Nil(t, lookup.Hi)
}

func TestOptimizeDropsDeadTrailingExpand(t *testing.T) {
	indexes := secidx.NewManager()
	op := buildFrom(t, "MATCH (a)-[:KNOWS]->(b) RETURN a")
	optimized := Optimize(op, indexes)

	proj, ok := optimized.(*Project)
	require.True(t, ok)
	_, ok = proj.Input.(*Expand)
	assert.False(t, ok, "an Expand whose ToVar/RelVar is never referenced must be eliminated")
}

func TestOptimizeKeepsExpandWhenToVarIsUsed(t *testing.T) {
	indexes := secidx.NewManager()
	op := buildFrom(t, "MATCH (a)-[:KNOWS]->(b) RETURN b")
	optimized := Optimize(op, indexes)

	proj, ok := optimized.(*Project)
	require.True(t, ok)
	_, ok = proj.Input.(*Expand)
	assert.True(t, ok)
}

func TestOptimizePushesLimitBelowProject(t *testing.T) {
	indexes := secidx.NewManager()
	op := buildFrom(t, "MATCH (n:Person) RETURN n.name LIMIT 3")
	optimized := Optimize(op, indexes)

	project, ok := optimized.(*Project)
	require.True(t, ok, "pushdownLimit must move Limit below Project")
	_, ok = project.Input.(*Limit)
	assert.True(t, ok)
}
