package bot

import (
	"fmt"

	"github.com/iancoleman/strcase"

	"github.com/go-go-golems/figaro/pkg/format"
	"github.com/go-go-golems/figaro/pkg/relay"
)

const (
	adaptiveCardContentType = "application/vnd.microsoft.card.adaptive"
	csvContentType          = "text/csv"
	maxFactColumns          = 4
)

// Attachment is one entry of a reply activity's attachments list.
type Attachment struct {
	ContentType string      `json:"contentType"`
	Content     interface{} `json:"content,omitempty"`
	Name        string      `json:"name,omitempty"`
}

// BuildResultCard renders one SynthesizedResult as an adaptive card: the
// summary, the insights, a monospace table of the rows (capped at rowLimit)
// and a note per chart.
func BuildResultCard(result *relay.SynthesizedResult, rowLimit int) map[string]interface{} {
	var body []map[string]interface{}

	body = append(body, map[string]interface{}{
		"type": "TextBlock",
		"text": result.Summary,
		"wrap": true,
		"size": "Medium",
	})

	if result.Insights != "" {
		body = append(body, map[string]interface{}{
			"type":     "TextBlock",
			"text":     result.Insights,
			"wrap":     true,
			"isSubtle": true,
		})
	}

	if facts := buildFactSet(result.Rows); facts != nil {
		body = append(body, facts)
	}

	if len(result.Rows) > 0 {
		body = append(body, map[string]interface{}{
			"type":     "TextBlock",
			"text":     "```\n" + format.RenderTable(result.Rows, rowLimit) + "```",
			"wrap":     false,
			"fontType": "Monospace",
		})
	}

	if result.SQL != "" {
		body = append(body, map[string]interface{}{
			"type":     "TextBlock",
			"text":     "SQL: `" + result.SQL + "`",
			"wrap":     true,
			"isSubtle": true,
		})
	}

	for range result.Charts {
		body = append(body, map[string]interface{}{
			"type":     "TextBlock",
			"text":     "A chart is available for this result.",
			"isSubtle": true,
		})
	}

	return map[string]interface{}{
		"$schema": "http://adaptivecards.io/schemas/adaptive-card.json",
		"type":    "AdaptiveCard",
		"version": "1.5",
		"body":    body,
	}
}

// buildFactSet turns the first row into a FactSet when the result is narrow
// enough to read as key/value pairs. Column names are prettified.
func buildFactSet(rows []map[string]interface{}) map[string]interface{} {
	if len(rows) != 1 {
		return nil
	}
	columns := format.Columns(rows)
	if len(columns) == 0 || len(columns) > maxFactColumns {
		return nil
	}

	var facts []map[string]interface{}
	for _, col := range columns {
		facts = append(facts, map[string]interface{}{
			"title": strcase.ToCamel(col),
			"value": format.CellString(rows[0][col]),
		})
	}
	return map[string]interface{}{
		"type":  "FactSet",
		"facts": facts,
	}
}

// BuildReasoningCard renders the paired reasoning result as a collapsed
// secondary card.
func BuildReasoningCard(result *relay.SynthesizedResult) map[string]interface{} {
	return map[string]interface{}{
		"$schema": "http://adaptivecards.io/schemas/adaptive-card.json",
		"type":    "AdaptiveCard",
		"version": "1.5",
		"body": []map[string]interface{}{
			{
				"type":     "TextBlock",
				"text":     "Reasoning",
				"weight":   "Bolder",
				"isSubtle": true,
			},
			{
				"type":     "TextBlock",
				"text":     result.Summary,
				"wrap":     true,
				"isSubtle": true,
			},
		},
	}
}

// BuildAttachments renders the whole response into reply attachments,
// including a CSV attachment when rows are present.
func BuildAttachments(response *relay.Response, rowLimit int) []Attachment {
	var attachments []Attachment

	main := response.Main()
	attachments = append(attachments, Attachment{
		ContentType: adaptiveCardContentType,
		Content:     BuildResultCard(main, rowLimit),
	})

	if response.MultiMessage {
		for _, extra := range response.Results[1:] {
			attachments = append(attachments, Attachment{
				ContentType: adaptiveCardContentType,
				Content:     BuildReasoningCard(extra),
			})
		}
	}

	if len(main.Rows) > 0 {
		attachments = append(attachments, Attachment{
			ContentType: csvContentType,
			Name:        fmt.Sprintf("results-%d-rows.csv", len(main.Rows)),
			Content:     format.RenderCSV(main.Rows, 0),
		})
	}

	return attachments
}
