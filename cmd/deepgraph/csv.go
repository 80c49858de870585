package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/deepskilling/deepgraph/pkg/engine"
	"github.com/deepskilling/deepgraph/pkg/graph"
	"github.com/deepskilling/deepgraph/pkg/ingest"
)

// csvNodeIterator streams a node CSV whose header is "id,labels,<prop>...".
// labels is a ";"-separated list; every remaining column becomes a
// property, value-sniffed into an int64, float64, bool, or string.
type csvNodeIterator struct {
	r       *csv.Reader
	f       io.Closer
	header  []string
	nodeCol int
	lblCol  int
}

func openCSVNodeIterator(path string) (*csvNodeIterator, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("reading header of %s: %w", path, err)
	}
	idx := columnIndex(header)
	idCol, ok := idx["id"]
	if !ok {
		f.Close()
		return nil, fmt.Errorf("%s: header must include an \"id\" column", path)
	}
	return &csvNodeIterator{r: r, f: f, header: header, nodeCol: idCol, lblCol: idx["labels"]}, nil
}

func (it *csvNodeIterator) Next() (ingest.NodeRow, bool, error) {
	rec, err := it.r.Read()
	if err == io.EOF {
		return ingest.NodeRow{}, false, nil
	}
	if err != nil {
		return ingest.NodeRow{}, false, err
	}
	row := ingest.NodeRow{
		ExternalID: rec[it.nodeCol],
		Props:      graph.PropertyMap{},
	}
	if it.lblCol >= 0 && it.lblCol < len(rec) && rec[it.lblCol] != "" {
		row.Labels = strings.Split(rec[it.lblCol], ";")
	}
	for i, col := range it.header {
		if i == it.nodeCol || i == it.lblCol {
			continue
		}
		row.Props[col] = sniffValue(rec[i])
	}
	return row, true, nil
}

func (it *csvNodeIterator) Close() error { return it.f.Close() }

// csvEdgeIterator streams an edge CSV whose header is "from,to,type,<prop>...".
type csvEdgeIterator struct {
	r       *csv.Reader
	f       io.Closer
	header  []string
	fromCol int
	toCol   int
	typeCol int
}

func openCSVEdgeIterator(path string) (*csvEdgeIterator, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("reading header of %s: %w", path, err)
	}
	idx := columnIndex(header)
	fromCol, ok := idx["from"]
	if !ok {
		f.Close()
		return nil, fmt.Errorf("%s: header must include a \"from\" column", path)
	}
	toCol, ok := idx["to"]
	if !ok {
		f.Close()
		return nil, fmt.Errorf("%s: header must include a \"to\" column", path)
	}
	typeCol, ok := idx["type"]
	if !ok {
		f.Close()
		return nil, fmt.Errorf("%s: header must include a \"type\" column", path)
	}
	return &csvEdgeIterator{r: r, f: f, header: header, fromCol: fromCol, toCol: toCol, typeCol: typeCol}, nil
}

func (it *csvEdgeIterator) Next() (ingest.EdgeRow, bool, error) {
	rec, err := it.r.Read()
	if err == io.EOF {
		return ingest.EdgeRow{}, false, nil
	}
	if err != nil {
		return ingest.EdgeRow{}, false, err
	}
	row := ingest.EdgeRow{
		ExternalFrom: rec[it.fromCol],
		ExternalTo:   rec[it.toCol],
		Type:         rec[it.typeCol],
		Props:        graph.PropertyMap{},
	}
	for i, col := range it.header {
		if i == it.fromCol || i == it.toCol || i == it.typeCol {
			continue
		}
		row.Props[col] = sniffValue(rec[i])
	}
	return row, true, nil
}

func (it *csvEdgeIterator) Close() error { return it.f.Close() }

func columnIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[strings.ToLower(strings.TrimSpace(col))] = i
	}
	if _, ok := idx["labels"]; !ok {
		idx["labels"] = -1
	}
	return idx
}

// sniffValue converts a raw CSV cell into the narrowest graph.Value kind it
// parses as: int64, then float64, then bool, falling back to string.
func sniffValue(raw string) graph.Value {
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return graph.Int(i)
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return graph.Float(f)
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return graph.Bool(b)
	}
	return graph.String(raw)
}

func runImport(db *engine.DiskStorage, nodesPath, edgesPath string) error {
	idMap := map[string]graph.NodeID{}

	if nodesPath != "" {
		it, err := openCSVNodeIterator(nodesPath)
		if err != nil {
			return err
		}
		defer it.Close()
		res, err := ingest.ImportNodes(db, it, idMap)
		if err != nil {
			return fmt.Errorf("importing nodes from %s: %w", nodesPath, err)
		}
		fmt.Printf("imported %d nodes from %s (%d row errors)\n", res.Count, nodesPath, len(res.Errors))
		for _, e := range res.Errors {
			fmt.Fprintln(os.Stderr, "  ", e)
		}
	}

	if edgesPath != "" {
		it, err := openCSVEdgeIterator(edgesPath)
		if err != nil {
			return err
		}
		defer it.Close()
		res, err := ingest.ImportEdges(db, it, idMap)
		if err != nil {
			return fmt.Errorf("importing edges from %s: %w", edgesPath, err)
		}
		fmt.Printf("imported %d edges from %s (%d row errors)\n", res.Count, edgesPath, len(res.Errors))
		for _, e := range res.Errors {
			fmt.Fprintln(os.Stderr, "  ", e)
		}
	}

	return nil
}
