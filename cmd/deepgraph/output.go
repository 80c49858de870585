package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/deepskilling/deepgraph/pkg/executor"
)

type resultFormatter func(w io.Writer, rs executor.ResultSet) error

func formatterFor(name string) (resultFormatter, error) {
	switch name {
	case "table", "":
		return formatTable, nil
	case "json":
		return formatJSON, nil
	case "csv":
		return formatCSV, nil
	default:
		return nil, fmt.Errorf("unknown --output format %q (want table, json, or csv)", name)
	}
}

func formatTable(w io.Writer, rs executor.ResultSet) error {
	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(rs.Columns, "\t"))
	for _, row := range rs.Rows {
		cells := make([]string, len(rs.Columns))
		for i, col := range rs.Columns {
			cells[i] = row[col].String()
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "(%d rows, %dms)\n", rs.RowCount, rs.ExecutionTimeMS)
	return nil
}

func formatCSV(w io.Writer, rs executor.ResultSet) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(rs.Columns); err != nil {
		return err
	}
	for _, row := range rs.Rows {
		cells := make([]string, len(rs.Columns))
		for i, col := range rs.Columns {
			cells[i] = row[col].String()
		}
		if err := cw.Write(cells); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatJSON(w io.Writer, rs executor.ResultSet) error {
	rows := make([]map[string]string, len(rs.Rows))
	for i, row := range rs.Rows {
		m := make(map[string]string, len(rs.Columns))
		for _, col := range rs.Columns {
			m[col] = row[col].String()
		}
		rows[i] = m
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Columns         []string            `json:"columns"`
		Rows            []map[string]string `json:"rows"`
		RowCount        int                 `json:"row_count"`
		ExecutionTimeMS int64               `json:"execution_time_ms"`
	}{rs.Columns, rows, rs.RowCount, rs.ExecutionTimeMS})
}
