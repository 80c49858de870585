package graph

import "github.com/google/uuid"

// NodeID and EdgeID are opaque 128-bit identifiers, generated with
// google/uuid rather than sequential integers so ids remain stable across
// WAL replay and never collide after a crash-recovered restart (spec §3:
// "ids are opaque and never reused").
type NodeID uuid.UUID
type EdgeID uuid.UUID

func NewNodeID() NodeID { return NodeID(uuid.New()) }
func NewEdgeID() EdgeID { return EdgeID(uuid.New()) }

func (id NodeID) String() string { return uuid.UUID(id).String() }
func (id EdgeID) String() string { return uuid.UUID(id).String() }

func (id NodeID) IsZero() bool { return id == NodeID{} }
func (id EdgeID) IsZero() bool { return id == EdgeID{} }

func ParseNodeID(s string) (NodeID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return NodeID{}, err
	}
	return NodeID(u), nil
}

func ParseEdgeID(s string) (EdgeID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return EdgeID{}, err
	}
	return EdgeID(u), nil
}
