package cypher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_MatchReturnsNode(t *testing.T) {
	q, err := Parse("MATCH (n) RETURN n")
	require.NoError(t, err)
	require.NotNil(t, q.Match)
	require.Len(t, q.Match.Patterns, 1)
	assert.Equal(t, "n", q.Match.Patterns[0].Nodes[0].Var)
	require.Len(t, q.Return.Items, 1)
	assert.Equal(t, "n", q.Return.Items[0].Var)
}

func TestParse_MatchWithLabelAndProps(t *testing.T) {
	q, err := Parse(`MATCH (n:Person {name: "Alice", age: 30}) RETURN n.name`)
	require.NoError(t, err)
	node := q.Match.Patterns[0].Nodes[0]
	assert.Equal(t, []string{"Person"}, node.Labels)
	assert.Equal(t, "Alice", node.PropMap["name"].Value.Text())
	assert.Equal(t, int64(30), node.PropMap["age"].Value.Int())
	assert.Equal(t, "name", q.Return.Items[0].Property)
}

func TestParse_RelationshipPattern(t *testing.T) {
	q, err := Parse("MATCH (a)-[r:KNOWS]->(b) RETURN a, b")
	require.NoError(t, err)
	pat := q.Match.Patterns[0]
	require.Len(t, pat.Nodes, 2)
	require.Len(t, pat.Rels, 1)
	assert.Equal(t, []string{"KNOWS"}, pat.Rels[0].Types)
	assert.Equal(t, RelOutgoing, pat.Rels[0].Direction)
}

func TestParse_IncomingRelationship(t *testing.T) {
	q, err := Parse("MATCH (a)<-[:KNOWS]-(b) RETURN a")
	require.NoError(t, err)
	assert.Equal(t, RelIncoming, q.Match.Patterns[0].Rels[0].Direction)
}

func TestParse_WhereAndOrderByLimit(t *testing.T) {
	q, err := Parse("MATCH (n:Person) WHERE n.age >= 18 AND n.age < 65 RETURN n.name ORDER BY n.age DESC LIMIT 10")
	require.NoError(t, err)
	require.NotNil(t, q.Where)
	bin, ok := q.Where.Expr.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, OpAnd, bin.Op)
	require.NotNil(t, q.OrderBy)
	assert.True(t, q.OrderBy.Keys[0].Desc)
	require.NotNil(t, q.Limit)
	assert.EqualValues(t, 10, q.Limit.N)
}

func TestParse_Create(t *testing.T) {
	q, err := Parse(`CREATE (n:Person {name: "Bob"})`)
	require.NoError(t, err) // RETURN is optional after CREATE
	require.NotNil(t, q.Create)
	assert.Nil(t, q.Return)

	q, err = Parse(`CREATE (n:Person {name: "Bob"}) RETURN n`)
	require.NoError(t, err)
	require.NotNil(t, q.Create)
	assert.Equal(t, []string{"Person"}, q.Create.Pattern.Nodes[0].Labels)
}

func TestParse_EmptyQueryIsError(t *testing.T) {
	_, err := Parse("   ")
	assert.Error(t, err)
}

func TestParse_OrPrecedence(t *testing.T) {
	q, err := Parse("MATCH (n) WHERE n.a = 1 OR n.b = 2 AND n.c = 3 RETURN n")
	require.NoError(t, err)
	top, ok := q.Where.Expr.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, OpOr, top.Op)
	_, rightIsAnd := top.Right.(*BinaryExpr)
	assert.True(t, rightIsAnd)
}

func TestValidate_UnboundIdentifier(t *testing.T) {
	err := Validate("MATCH (n) RETURN m")
	assert.Error(t, err)
}

func TestValidate_BoundIdentifierOK(t *testing.T) {
	err := Validate("MATCH (n:Person) WHERE n.age > 18 RETURN n.name")
	assert.NoError(t, err)
}
