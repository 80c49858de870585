// Package ingest implements DeepGraph's bulk ingest interface (spec.md §6:
// "consumed by CSV/JSON importers"): streaming import_nodes/import_edges
// over pkg/engine's public facade only, returning counts, elapsed time, a
// per-row error list, and a mapping from external id to issued internal id.
//
// Grounded on the teacher's apoc/imports package (apoc.import.json/.csv) for
// the ImportResult shape (Nodes/Relationships/Time/Errors counters), adapted
// from a single whole-file import to a streaming row iterator so a caller
// can import a file too large to hold in memory, and rewired to call
// pkg/engine instead of mutating a storage engine's maps directly. The CSV
// and JSON readers themselves are explicitly out of scope (spec.md §1
// Non-goals: "CSV and JSON bulk-import parsers... call the same storage
// ingest API") — this package is the API they call, not the parsers.
package ingest

import (
	"fmt"
	"time"

	"github.com/deepskilling/deepgraph/pkg/engine"
	"github.com/deepskilling/deepgraph/pkg/graph"
)

// NodeRow is one row from an external node source: an external identifier
// (the source system's key, e.g. a CSV column value), labels, and
// properties.
type NodeRow struct {
	ExternalID string
	Labels     []string
	Props      graph.PropertyMap
}

// EdgeRow is one row from an external edge source, referencing its
// endpoints by the same external identifiers used in a prior NodeRow
// stream.
type EdgeRow struct {
	ExternalFrom string
	ExternalTo   string
	Type         string
	Props        graph.PropertyMap
}

// NodeIterator streams NodeRows. Next returns (row, true, nil) for each row,
// (zero, false, nil) at end of stream, or (zero, false, err) on a read
// error that aborts the whole import (a malformed individual row should
// instead be surfaced as a value in Result.Errors by the caller's iterator,
// not as a Next error, unless the underlying source itself is unreadable).
type NodeIterator interface {
	Next() (NodeRow, bool, error)
}

// EdgeIterator streams EdgeRows, the edge-side counterpart of NodeIterator.
type EdgeIterator interface {
	Next() (EdgeRow, bool, error)
}

// RowError records a single failed row without aborting the rest of the
// import (spec.md §6: "per-row error list").
type RowError struct {
	Row int
	Err error
}

func (e RowError) Error() string { return fmt.Sprintf("row %d: %v", e.Row, e.Err) }

// Result is the outcome of a bulk import: how many rows succeeded, how long
// it took, and which rows failed.
type Result struct {
	Count   int
	Elapsed time.Duration
	Errors  []RowError
}

// ImportNodes streams rows out of it, creating one node per row and
// recording its issued internal id in idMapOut keyed by ExternalID. A
// per-row failure (e.g. empty label) is appended to Result.Errors and the
// import continues with the next row; only an iterator-level read error
// aborts the whole call.
func ImportNodes(g engine.Facade, it NodeIterator, idMapOut map[string]graph.NodeID) (Result, error) {
	start := time.Now()
	res := Result{}
	for row := 0; ; row++ {
		r, ok, err := it.Next()
		if err != nil {
			res.Elapsed = time.Since(start)
			return res, fmt.Errorf("ingest: read node row %d: %w", row, err)
		}
		if !ok {
			break
		}
		id, err := g.AddNode(r.Labels, r.Props)
		if err != nil {
			res.Errors = append(res.Errors, RowError{Row: row, Err: err})
			continue
		}
		if r.ExternalID != "" && idMapOut != nil {
			idMapOut[r.ExternalID] = id
		}
		res.Count++
	}
	res.Elapsed = time.Since(start)
	return res, nil
}

// ImportEdges streams rows out of it, resolving each row's external
// endpoints through idMapIn (typically the idMapOut a prior ImportNodes
// call populated) and creating the edge. A row whose endpoint isn't in
// idMapIn is recorded as a row error, not an abort.
func ImportEdges(g engine.Facade, it EdgeIterator, idMapIn map[string]graph.NodeID) (Result, error) {
	start := time.Now()
	res := Result{}
	for row := 0; ; row++ {
		r, ok, err := it.Next()
		if err != nil {
			res.Elapsed = time.Since(start)
			return res, fmt.Errorf("ingest: read edge row %d: %w", row, err)
		}
		if !ok {
			break
		}
		from, ok := idMapIn[r.ExternalFrom]
		if !ok {
			res.Errors = append(res.Errors, RowError{Row: row, Err: fmt.Errorf("unknown external node id %q", r.ExternalFrom)})
			continue
		}
		to, ok := idMapIn[r.ExternalTo]
		if !ok {
			res.Errors = append(res.Errors, RowError{Row: row, Err: fmt.Errorf("unknown external node id %q", r.ExternalTo)})
			continue
		}
		if _, err := g.AddEdge(from, to, r.Type, r.Props); err != nil {
			res.Errors = append(res.Errors, RowError{Row: row, Err: err})
			continue
		}
		res.Count++
	}
	res.Elapsed = time.Since(start)
	return res, nil
}

// SliceNodeIterator adapts an in-memory []NodeRow to NodeIterator, useful
// for tests and for small imports materialized entirely up front.
type SliceNodeIterator struct {
	rows []NodeRow
	pos  int
}

func NewSliceNodeIterator(rows []NodeRow) *SliceNodeIterator {
	return &SliceNodeIterator{rows: rows}
}

func (s *SliceNodeIterator) Next() (NodeRow, bool, error) {
	if s.pos >= len(s.rows) {
		return NodeRow{}, false, nil
	}
	r := s.rows[s.pos]
	s.pos++
	return r, true, nil
}

// SliceEdgeIterator is SliceNodeIterator's edge-row counterpart.
type SliceEdgeIterator struct {
	rows []EdgeRow
	pos  int
}

func NewSliceEdgeIterator(rows []EdgeRow) *SliceEdgeIterator {
	return &SliceEdgeIterator{rows: rows}
}

func (s *SliceEdgeIterator) Next() (EdgeRow, bool, error) {
	if s.pos >= len(s.rows) {
		return EdgeRow{}, false, nil
	}
	r := s.rows[s.pos]
	s.pos++
	return r, true, nil
}
