package relay

import (
	"github.com/rs/zerolog"
)

type ResultSource string

const (
	// SourceAgentAPI marks results produced from the agent API response.
	SourceAgentAPI ResultSource = "agent_api"
	// SourceFallbackQuery marks results produced by the static fallback
	// query when the agent API was unreachable.
	SourceFallbackQuery ResultSource = "fallback_query"
	// SourceConfigurationError marks a human-readable "nothing is
	// configured" answer.
	SourceConfigurationError ResultSource = "configuration_error"
	// SourceErrorFallback marks the terminal "everything failed" answer.
	SourceErrorFallback ResultSource = "error_fallback"
)

// ChartSpec is one parsed chart specification attached to a result.
type ChartSpec struct {
	Type string                 `json:"type"`
	Spec map[string]interface{} `json:"spec"`
}

// SynthesizedResult is the final structured outcome of one query. It is
// always a displayable answer: errors below the transport level are folded
// into Summary/Insights instead of surfacing as Go errors.
type SynthesizedResult struct {
	Summary  string                   `json:"summary"`
	Rows     []map[string]interface{} `json:"rows"`
	Insights string                   `json:"insights"`
	SQL      string                   `json:"sql"`
	Charts   []ChartSpec              `json:"charts,omitempty"`
	Source   ResultSource             `json:"source"`
}

func (r *SynthesizedResult) MarshalZerologObject(e *zerolog.Event) {
	e.Str("source", string(r.Source))
	e.Int("rows", len(r.Rows))
	e.Int("charts", len(r.Charts))
	e.Bool("has_sql", r.SQL != "")
}

// Response is what the relay hands back to the presentation layer: the main
// result, optionally paired with a reasoning-only result when thinking
// capture produced content.
type Response struct {
	Results      []*SynthesizedResult `json:"results"`
	MultiMessage bool                 `json:"multi_message"`
}

func NewResponse(results ...*SynthesizedResult) *Response {
	return &Response{
		Results:      results,
		MultiMessage: len(results) > 1,
	}
}

// Main returns the primary result. A Response always has at least one.
func (r *Response) Main() *SynthesizedResult {
	return r.Results[0]
}
