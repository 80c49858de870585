package engine

import (
	"github.com/deepskilling/deepgraph/pkg/executor"
	"github.com/deepskilling/deepgraph/pkg/graph"
	"github.com/deepskilling/deepgraph/pkg/secidx"
)

// Facade is the storage-mode-agnostic surface spec.md §4.1 describes:
// GraphStorage (in-memory) and DiskStorage (durable, embeds GraphStorage)
// both satisfy it, so pkg/ingest, pkg/galgo, and cmd/deepgraph can depend
// on whichever a caller opened without a type switch.
type Facade interface {
	AddNode(labels []string, props graph.PropertyMap) (graph.NodeID, error)
	GetNode(id graph.NodeID) (graph.Node, bool)
	UpdateNode(id graph.NodeID, delta graph.PropertyMap) error
	DeleteNode(id graph.NodeID) error

	AddEdge(src, dst graph.NodeID, typ string, props graph.PropertyMap) (graph.EdgeID, error)
	GetEdge(id graph.EdgeID) (graph.Edge, bool)
	UpdateEdge(id graph.EdgeID, delta graph.PropertyMap) error
	DeleteEdge(id graph.EdgeID) error

	GetOutgoingEdges(id graph.NodeID) ([]graph.Edge, error)
	GetIncomingEdges(id graph.NodeID) ([]graph.Edge, error)

	FindNodesByLabel(label string) []graph.Node
	FindNodesByProperty(key string, value graph.Value) []graph.Node
	FindEdgesByType(typ string) []graph.Edge
	GetAllNodes() []graph.Node
	GetAllEdges() []graph.Edge
	NodeCount() int
	EdgeCount() int
	Clear() error

	CreateHashIndex(name string, target secidx.Target, label, property string) error
	CreateOrderedIndex(name string, target secidx.Target, label, property string) error
	CreateBadgerOrderedIndex(name string, target secidx.Target, label, property string) error
	DropIndex(name string) error

	ExecuteCypher(text string) (executor.ResultSet, error)
	Close() error
}

var (
	_ Facade = (*GraphStorage)(nil)
	_ Facade = (*DiskStorage)(nil)
)
