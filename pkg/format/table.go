package format

import (
	"fmt"
	"sort"
	"strings"
)

const minColumnWidth = 8

// Columns returns the union of all keys seen across rows, in the order rows
// introduce them. Go maps are unordered, so keys within a single row are
// examined in sorted order; the union keeps first-seen order across rows,
// so heterogeneous rows contribute their new columns after earlier ones.
func Columns(rows []map[string]interface{}) []string {
	var columns []string
	seen := map[string]bool{}
	for _, row := range rows {
		keys := make([]string, 0, len(row))
		for k := range row {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if !seen[key] {
				seen[key] = true
				columns = append(columns, key)
			}
		}
	}
	return columns
}

// CellString renders a single cell value the way both the table and CSV
// renderers expect it.
func CellString(v interface{}) string {
	if v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case float64:
		// JSON numbers decode as float64; keep integers integral
		if s == float64(int64(s)) {
			return fmt.Sprintf("%d", int64(s))
		}
		return fmt.Sprintf("%v", s)
	default:
		return fmt.Sprintf("%v", s)
	}
}

// RenderTable turns rows into a fixed-width text table. Every column is
// padded to at least 8 characters and to the widest of header and cells.
// When rowLimit > 0 and rows exceed it, the overflow is replaced by a count
// note. Deterministic: same input yields byte-identical output.
func RenderTable(rows []map[string]interface{}, rowLimit int) string {
	if len(rows) == 0 {
		return "No results found."
	}

	columns := Columns(rows)

	widths := make([]int, len(columns))
	for i, col := range columns {
		widths[i] = len(col)
		if widths[i] < minColumnWidth {
			widths[i] = minColumnWidth
		}
	}

	display := rows
	truncated := 0
	if rowLimit > 0 && len(rows) > rowLimit {
		display = rows[:rowLimit]
		truncated = len(rows) - rowLimit
	}

	for _, row := range display {
		for i, col := range columns {
			if w := len(CellString(row[col])); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var sb strings.Builder
	for i, col := range columns {
		if i > 0 {
			sb.WriteString("  ")
		}
		sb.WriteString(pad(col, widths[i]))
	}
	sb.WriteString("\n")
	for i := range columns {
		if i > 0 {
			sb.WriteString("  ")
		}
		sb.WriteString(strings.Repeat("-", widths[i]))
	}
	sb.WriteString("\n")

	for _, row := range display {
		for i, col := range columns {
			if i > 0 {
				sb.WriteString("  ")
			}
			sb.WriteString(pad(CellString(row[col]), widths[i]))
		}
		sb.WriteString("\n")
	}

	if truncated > 0 {
		sb.WriteString(fmt.Sprintf("... and %d more row(s)\n", truncated))
	}

	return sb.String()
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
