package relay

import (
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/figaro/pkg/agentapi"
)

// Accumulator is the mutable running total of all deltas for one in-flight
// query. Exactly one exists per query; it is never shared across concurrent
// queries, and its final state is read once by the synthesizer.
//
// Routing is implemented here exactly once, and both the live streaming
// path and the buffered fallback path go through Route(), which guarantees
// identical synthesis output for identical content.
//
// Text items and tool items accumulate in separate channels; ordering is
// guaranteed within each channel, not across them.
type Accumulator struct {
	text            strings.Builder
	thinking        strings.Builder
	toolResults     []agentapi.Content
	charts          []agentapi.Content
	captureThinking bool
	hasThinking     bool
}

func NewAccumulator(captureThinking bool) *Accumulator {
	return &Accumulator{
		captureThinking: captureThinking,
	}
}

// Route dispatches every content item of a delta into the running
// aggregates. Unknown items are logged and skipped.
func (a *Accumulator) Route(delta *agentapi.Delta) {
	for _, item := range delta.Content {
		a.routeItem(item)
	}
}

func (a *Accumulator) routeItem(item agentapi.Content) {
	switch c := item.(type) {
	case agentapi.TextContent:
		a.text.WriteString(c.Text)

	case agentapi.ThinkingContent:
		if a.captureThinking && c.Text != "" {
			a.thinking.WriteString(c.Text)
			a.hasThinking = true
		}

	case agentapi.ToolUseContent:
		a.toolResults = append(a.toolResults, c)

	case agentapi.ToolResultsContent:
		a.toolResults = append(a.toolResults, c)

	case agentapi.ChartContent:
		a.charts = append(a.charts, c)

	default:
		log.Debug().Str("content_type", string(item.Type())).Msg("Skipping content item with no aggregation effect")
	}
}

// Text returns the concatenation of all text items so far, in arrival order.
func (a *Accumulator) Text() string {
	return a.text.String()
}

// Thinking returns the captured reasoning text, empty unless capture was
// enabled and thinking content arrived.
func (a *Accumulator) Thinking() string {
	return a.thinking.String()
}

func (a *Accumulator) HasThinking() bool {
	return a.hasThinking
}

// ToolResults returns the tool_use and tool_results items verbatim, in
// arrival order.
func (a *Accumulator) ToolResults() []agentapi.Content {
	return a.toolResults
}

func (a *Accumulator) Charts() []agentapi.Content {
	return a.charts
}
