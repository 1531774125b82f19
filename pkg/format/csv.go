package format

import (
	"strings"
)

// RenderCSV turns rows into CSV text. The header row comes first, columns
// in the same order as RenderTable. A field is quote-wrapped with internal
// quotes doubled when it contains a comma, quote, or newline; otherwise it
// is emitted bare. When rowLimit > 0 only the first rowLimit rows render.
// Deterministic: same input yields byte-identical output.
func RenderCSV(rows []map[string]interface{}, rowLimit int) string {
	if len(rows) == 0 {
		return ""
	}

	columns := Columns(rows)

	display := rows
	if rowLimit > 0 && len(rows) > rowLimit {
		display = rows[:rowLimit]
	}

	var sb strings.Builder
	for i, col := range columns {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(csvField(col))
	}
	sb.WriteString("\n")

	for _, row := range display {
		for i, col := range columns {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString(csvField(CellString(row[col])))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func csvField(s string) string {
	if strings.ContainsAny(s, ",\"\n") {
		return "\"" + strings.ReplaceAll(s, "\"", "\"\"") + "\""
	}
	return s
}

// ParseSimpleCSV parses CSV text the way the agent's tool results encode
// it: the first line holds column names, every following line splits on
// comma with surrounding quotes trimmed per field. This is deliberately not
// RFC-4180 complete: embedded commas inside quoted fields are not handled.
func ParseSimpleCSV(text string) []map[string]interface{} {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) < 2 {
		return nil
	}

	headers := splitSimpleCSVLine(lines[0])
	var rows []map[string]interface{}
	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := splitSimpleCSVLine(line)
		row := make(map[string]interface{}, len(headers))
		for i, header := range headers {
			if i < len(fields) {
				row[header] = fields[i]
			} else {
				row[header] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func splitSimpleCSVLine(line string) []string {
	parts := strings.Split(strings.TrimSuffix(line, "\r"), ",")
	fields := make([]string, len(parts))
	for i, part := range parts {
		fields[i] = strings.Trim(strings.TrimSpace(part), "\"")
	}
	return fields
}
