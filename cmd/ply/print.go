package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/razeghi71/ply/value"
)

// printTable writes a dataset as aligned columns.
func printTable(w io.Writer, ds *value.Dataset) error {
	if len(ds.Attributes) == 0 {
		_, err := fmt.Fprintf(w, "(%d rows)\n", ds.Len())
		return err
	}

	widths := make([]int, len(ds.Attributes))
	for i, col := range ds.Attributes {
		widths[i] = len(col)
	}

	cells := make([][]string, len(ds.Data))
	for i, row := range ds.Data {
		cells[i] = make([]string, len(ds.Attributes))
		for j, col := range ds.Attributes {
			v, _ := row.Get(col)
			cells[i][j] = formatCell(v)
			if len(cells[i][j]) > widths[j] {
				widths[j] = len(cells[i][j])
			}
		}
	}

	header := make([]string, len(ds.Attributes))
	sep := make([]string, len(ds.Attributes))
	for i, col := range ds.Attributes {
		header[i] = padRight(col, widths[i])
		sep[i] = strings.Repeat("-", widths[i])
	}
	lines := []string{
		strings.TrimRight(strings.Join(header, " | "), " "),
		strings.Join(sep, "-+-"),
	}
	for _, row := range cells {
		parts := make([]string, len(row))
		for i := range row {
			parts[i] = padRight(row[i], widths[i])
		}
		lines = append(lines, strings.TrimRight(strings.Join(parts, " | "), " "))
	}

	_, err := io.WriteString(w, strings.Join(lines, "\n")+"\n")
	return err
}

// formatCell renders one value for a table cell. Nested datasets only
// show their size.
func formatCell(v value.Value) string {
	switch v.Type {
	case value.TypeNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case value.TypeTime:
		return v.Time.Format(time.RFC3339)
	case value.TypeSet:
		parts := make([]string, len(v.Set))
		for i, e := range v.Set {
			parts[i] = formatCell(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case value.TypeDataset:
		return fmt.Sprintf("<%d rows>", v.Dataset.Len())
	default:
		return v.AsString()
	}
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
